// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mpu9250 drives the InvenSense MPU-9250 nine-axis IMU over
// SPI. The AK8963 magnetometer sits behind the chip's internal I2C
// master and is sampled automatically into the external sensor
// registers, so one burst read returns all nine axes plus the die
// temperature.
package mpu9250

import (
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3/spi"
)

// Opts configures the device at init time. Ranges use the register
// encoding: 0-3 selects ±2/4/8/16 g and ±250/500/1000/2000 °/s.
type Opts struct {
	AccelRange    byte
	GyroRange     byte
	DLPF          byte // 0-7
	SampleRateDiv byte // output rate = internal rate / (1 + div)
}

// Dev is a handle to one MPU-9250.
type Dev struct {
	c      spi.Conn
	opts   Opts
	magAdj [3]float64 // AK8963 factory sensitivity adjustment
	magOK  bool
}

// Sample is one burst read. Accel, gyro and temperature are raw LSB
// values; mag is sensitivity-adjusted and remapped into the
// accel/gyro axis frame.
type Sample struct {
	Ax, Ay, Az int16
	Temp       int16
	Gx, Gy, Gz int16
	Mx, My, Mz float64
	MagValid   bool
}

// TempC converts the raw die temperature per the datasheet formula.
func (s Sample) TempC() float64 {
	return float64(s.Temp)/333.87 + 21.0
}

// New resets and configures the device. A missing or broken
// magnetometer does not fail init; MagAvailable reports it.
func New(c spi.Conn, opts Opts) (*Dev, error) {
	d := &Dev{c: c, opts: opts}

	if err := d.writeReg(regPwrMgmt1, bitHReset); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := d.writeReg(regPwrMgmt1, bitClkPLL); err != nil {
		return nil, fmt.Errorf("wake: %w", err)
	}
	time.Sleep(10 * time.Millisecond)

	id, err := d.readReg(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("WHO_AM_I read: %w", err)
	}
	if id != whoAmIMPU9250 && id != whoAmIMPU9255 {
		return nil, fmt.Errorf("unexpected WHO_AM_I 0x%02X", id)
	}

	// All axes on, then filter, rate and range configuration.
	steps := []struct {
		reg, val byte
	}{
		{regPwrMgmt2, 0x00},
		{regConfig, opts.DLPF & 0x07},
		{regSmplrtDiv, opts.SampleRateDiv},
		{regGyroConfig, (opts.GyroRange & 0x03) << 3},
		{regAccelConfig, (opts.AccelRange & 0x03) << 3},
		{regAccelConfig2, opts.DLPF & 0x07},
		// SPI-only operation with the internal I2C master running for
		// the magnetometer.
		{regUserCtrl, bitI2CMstEn | bitI2CIfDis},
		{regI2CMstCtrl, i2cMstClk400kHz},
	}
	for _, st := range steps {
		if err := d.writeReg(st.reg, st.val); err != nil {
			return nil, fmt.Errorf("configure 0x%02X: %w", st.reg, err)
		}
	}

	if err := d.initMag(); err == nil {
		d.magOK = true
	}
	return d, nil
}

// MagAvailable reports whether the AK8963 answered at init.
func (d *Dev) MagAvailable() bool {
	return d.magOK
}

// MagAdjustment returns the factory sensitivity multipliers.
func (d *Dev) MagAdjustment() [3]float64 {
	return d.magAdj
}

// initMag resets the AK8963, loads the factory sensitivity values from
// fuse ROM, starts continuous 16-bit measurement and arms slave 0 so
// the I2C master copies ST1..ST2 into the external sensor registers
// every internal sample.
func (d *Dev) initMag() error {
	if err := d.slaveWrite(akRegCntl2, akSoftReset); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)

	wia, err := d.slaveRead(akRegWIA, 1)
	if err != nil {
		return err
	}
	if wia[0] != akWhoAmI {
		return fmt.Errorf("AK8963 WIA 0x%02X", wia[0])
	}

	if err := d.slaveWrite(akRegCntl1, akModeFuseROM); err != nil {
		return err
	}
	asa, err := d.slaveRead(akRegASAX, 3)
	if err != nil {
		return err
	}
	for i, v := range asa {
		d.magAdj[i] = float64(int(v)-128)/256.0 + 1.0
	}
	if err := d.slaveWrite(akRegCntl1, akModePowerOff); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	if err := d.slaveWrite(akRegCntl1, akBit16|akModeCont100); err != nil {
		return err
	}

	// Slave 0 autoreads ST1 through ST2 (8 bytes) from now on.
	for _, st := range []struct{ reg, val byte }{
		{regI2CSlv0Addr, akAddr | bitSlvRead},
		{regI2CSlv0Reg, akRegSt1},
		{regI2CSlv0Ctrl, bitSlvEn | 8},
	} {
		if err := d.writeReg(st.reg, st.val); err != nil {
			return err
		}
	}
	return nil
}

// Read burst-reads accel, temperature, gyro and the autoread
// magnetometer block in one transaction.
func (d *Dev) Read() (Sample, error) {
	// 14 MPU bytes (0x3B..0x48) followed directly by 8 external sensor
	// bytes (0x49..0x50).
	buf, err := d.readBurst(regAccelXoutH, 22)
	if err != nil {
		return Sample{}, fmt.Errorf("burst read: %w", err)
	}

	s := Sample{
		Ax:   int16(binary.BigEndian.Uint16(buf[0:2])),
		Ay:   int16(binary.BigEndian.Uint16(buf[2:4])),
		Az:   int16(binary.BigEndian.Uint16(buf[4:6])),
		Temp: int16(binary.BigEndian.Uint16(buf[6:8])),
		Gx:   int16(binary.BigEndian.Uint16(buf[8:10])),
		Gy:   int16(binary.BigEndian.Uint16(buf[10:12])),
		Gz:   int16(binary.BigEndian.Uint16(buf[12:14])),
	}

	if d.magOK {
		st1 := buf[14]
		st2 := buf[21]
		if st1&akSt1DataReady != 0 && st2&akSt2Overflow == 0 {
			// AK8963 data is little-endian and its axes differ from
			// the accel/gyro frame: X and Y swap, Z inverts.
			mx := float64(int16(binary.LittleEndian.Uint16(buf[15:17]))) * d.magAdj[0]
			my := float64(int16(binary.LittleEndian.Uint16(buf[17:19]))) * d.magAdj[1]
			mz := float64(int16(binary.LittleEndian.Uint16(buf[19:21]))) * d.magAdj[2]
			s.Mx = my
			s.My = mx
			s.Mz = -mz
			s.MagValid = true
		}
	}
	return s, nil
}

// slaveWrite performs one register write on the AK8963 through I2C
// slave 0.
func (d *Dev) slaveWrite(reg, val byte) error {
	for _, st := range []struct{ reg, val byte }{
		{regI2CSlv0Addr, akAddr},
		{regI2CSlv0Reg, reg},
		{regI2CSlv0DO, val},
		{regI2CSlv0Ctrl, bitSlvEn | 1},
	} {
		if err := d.writeReg(st.reg, st.val); err != nil {
			return err
		}
	}
	// Give the 400 kHz master time to run the transfer.
	time.Sleep(2 * time.Millisecond)
	return nil
}

// slaveRead reads n bytes from the AK8963 through slave 0 into the
// external sensor registers.
func (d *Dev) slaveRead(reg byte, n int) ([]byte, error) {
	for _, st := range []struct{ reg, val byte }{
		{regI2CSlv0Addr, akAddr | bitSlvRead},
		{regI2CSlv0Reg, reg},
		{regI2CSlv0Ctrl, bitSlvEn | byte(n)},
	} {
		if err := d.writeReg(st.reg, st.val); err != nil {
			return nil, err
		}
	}
	time.Sleep(2 * time.Millisecond)
	return d.readBurst(regExtSensData0, n)
}

func (d *Dev) writeReg(reg, val byte) error {
	return d.c.Tx([]byte{reg, val}, nil)
}

func (d *Dev) readReg(reg byte) (byte, error) {
	buf, err := d.readBurst(reg, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (d *Dev) readBurst(reg byte, n int) ([]byte, error) {
	w := make([]byte, n+1)
	w[0] = reg | bitSPIRead
	r := make([]byte, n+1)
	if err := d.c.Tx(w, r); err != nil {
		return nil, err
	}
	return r[1:], nil
}

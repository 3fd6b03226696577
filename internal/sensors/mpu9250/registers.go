// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mpu9250

// MPU-9250 register map, names per the InvenSense datasheet.
const (
	regSmplrtDiv    = 0x19
	regConfig       = 0x1A
	regGyroConfig   = 0x1B
	regAccelConfig  = 0x1C
	regAccelConfig2 = 0x1D
	regI2CMstCtrl   = 0x23
	regI2CSlv0Addr  = 0x24
	regI2CSlv0Reg   = 0x25
	regI2CSlv0Ctrl  = 0x26
	regI2CSlv0DO    = 0x63
	regAccelXoutH   = 0x3B
	regExtSensData0 = 0x49
	regUserCtrl     = 0x6A
	regPwrMgmt1     = 0x6B
	regPwrMgmt2     = 0x6C
	regWhoAmI       = 0x75

	bitSPIRead  = 0x80 // OR'd into the register for SPI reads
	bitHReset   = 0x80 // PWR_MGMT_1
	bitClkPLL   = 0x01 // PWR_MGMT_1 CLKSEL: auto-select best clock
	bitI2CMstEn = 0x20 // USER_CTRL
	bitI2CIfDis = 0x10 // USER_CTRL: disable the I2C slave interface
	bitSlvEn    = 0x80 // I2C_SLVx_CTRL
	bitSlvRead  = 0x80 // I2C_SLVx_ADDR

	i2cMstClk400kHz = 0x0D

	whoAmIMPU9250 = 0x71
	whoAmIMPU9255 = 0x73
)

// AK8963 magnetometer, reached through the internal I2C master.
const (
	akAddr = 0x0C

	akRegWIA   = 0x00
	akRegSt1   = 0x02
	akRegHXL   = 0x03
	akRegCntl1 = 0x0A
	akRegCntl2 = 0x0B
	akRegASAX  = 0x10

	akWhoAmI       = 0x48
	akModePowerOff = 0x00
	akModeCont100  = 0x06 // continuous measurement, 100 Hz
	akModeFuseROM  = 0x0F
	akBit16        = 0x10 // CNTL1: 16-bit output
	akSoftReset    = 0x01 // CNTL2
	akSt1DataReady = 0x01
	akSt2Overflow  = 0x08
)

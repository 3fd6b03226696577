package sensors

import (
	"context"
	"log"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
	"github.com/relabs-tech/sensor_pipeline/internal/sensors/mpu9250"
)

// Offerer accepts raw samples; the pipeline's channel queues satisfy
// it.
type Offerer interface {
	Offer(s imu.RawSample)
}

// Source produces raw samples until its context is done.
type Source interface {
	Run(ctx context.Context) error
}

// NewSource builds the configured sample source: the MPU-9250 pump or
// the synthetic generator.
func NewSource(s config.Settings, clk clock.Clock, accel, gyro, mag Offerer) (Source, error) {
	switch s.SensorDriver {
	case "mpu9250":
		return NewPump(s, clk, accel, gyro, mag)
	case "synthetic":
		return NewSynthetic(s, clk, accel, gyro, mag), nil
	default:
		return nil, errors.Errorf("unknown sensor driver %q", s.SensorDriver)
	}
}

// Pump reads the MPU-9250 at the sample interval and feeds the
// channel queues.
type Pump struct {
	dev      *mpu9250.Dev
	port     spi.PortCloser
	clk      clock.Clock
	interval time.Duration
	accel    Offerer
	gyro     Offerer
	mag      Offerer
}

// openIMU brings up the SPI port and the MPU-9250 behind it.
func openIMU(s config.Settings) (*mpu9250.Dev, spi.PortCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, errors.Wrap(err, "periph host init")
	}

	port, err := spireg.Open(s.SPIDevice)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "SPI open %s", s.SPIDevice)
	}
	c, err := port.Connect(physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		port.Close()
		return nil, nil, errors.Wrap(err, "SPI connect")
	}

	dev, err := mpu9250.New(c, mpu9250.Opts{
		AccelRange:    s.IMUAccelRange,
		GyroRange:     s.IMUGyroRange,
		DLPF:          s.IMUDLPFConfig,
		SampleRateDiv: s.IMUSampleRateDiv,
	})
	if err != nil {
		port.Close()
		return nil, nil, errors.Wrap(err, "mpu9250 init")
	}
	return dev, port, nil
}

// NewPump opens the SPI port and brings up the IMU.
func NewPump(s config.Settings, clk clock.Clock, accel, gyro, mag Offerer) (*Pump, error) {
	dev, port, err := openIMU(s)
	if err != nil {
		return nil, err
	}

	log.Printf("sensors: MPU-9250 on %s, accel ±%dg, gyro ±%d°/s, DLPF %d",
		s.SPIDevice,
		[]int{2, 4, 8, 16}[s.IMUAccelRange],
		[]int{250, 500, 1000, 2000}[s.IMUGyroRange],
		s.IMUDLPFConfig)
	if !dev.MagAvailable() {
		log.Printf("sensors: WARNING: magnetometer did not answer, mag channel disabled")
	}

	return &Pump{
		dev:      dev,
		port:     port,
		clk:      clk,
		interval: time.Duration(s.SampleInterval) * time.Millisecond,
		accel:    accel,
		gyro:     gyro,
		mag:      mag,
	}, nil
}

// Run pumps samples until ctx is done.
func (p *Pump) Run(ctx context.Context) error {
	defer p.port.Close()

	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		s, err := p.dev.Read()
		if err != nil {
			log.Printf("sensors: imu read error: %v", err)
			continue
		}

		temp := s.TempC()
		p.accel.Offer(imu.RawSample{Channel: imu.Accel, X: float64(s.Ax), Y: float64(s.Ay), Z: float64(s.Az), Temperature: temp})
		p.gyro.Offer(imu.RawSample{Channel: imu.Gyro, X: float64(s.Gx), Y: float64(s.Gy), Z: float64(s.Gz), Temperature: temp})
		if s.MagValid {
			p.mag.Offer(imu.RawSample{Channel: imu.Mag, X: s.Mx, Y: s.My, Z: s.Mz, Temperature: temp})
		}
	}
}

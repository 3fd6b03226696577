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
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/env"
)

// EnvSampler reads a BME280/BMP280 on its own SPI port and hands each
// reading to the callback. It runs beside the correction cycle and
// never touches the IMU queues.
type EnvSampler struct {
	dev      *bmxx80.Dev
	port     spi.PortCloser
	clk      clock.Clock
	interval time.Duration
	onSample func(env.Sample)
}

// NewEnvSampler opens the environment sensor named in the settings.
func NewEnvSampler(s config.Settings, clk clock.Clock, onSample func(env.Sample)) (*EnvSampler, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}

	port, err := spireg.Open(s.EnvSPIDevice)
	if err != nil {
		return nil, errors.Wrapf(err, "SPI open %s", s.EnvSPIDevice)
	}
	dev, err := bmxx80.NewSPI(port, &bmxx80.DefaultOpts)
	if err != nil {
		port.Close()
		return nil, errors.Wrap(err, "bmxx80 init")
	}

	log.Printf("sensors: %s on %s", dev, s.EnvSPIDevice)
	return &EnvSampler{
		dev:      dev,
		port:     port,
		clk:      clk,
		interval: time.Duration(s.EnvSampleInterval) * time.Millisecond,
		onSample: onSample,
	}, nil
}

// Run samples until ctx is done.
func (e *EnvSampler) Run(ctx context.Context) error {
	defer e.port.Close()
	defer e.dev.Halt()

	ticker := e.clk.Ticker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var phys physic.Env
		if err := e.dev.Sense(&phys); err != nil {
			log.Printf("sensors: env read error: %v", err)
			continue
		}
		pa := float64(phys.Pressure) / float64(physic.Pascal)
		e.onSample(env.Sample{
			Temperature: phys.Temperature.Celsius(),
			Pressure:    pa,
			PressureHPa: pa / 100,
			AltitudeM:   env.AltitudeFromPressure(pa),
		})
	}
}

package sensors

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// OpenFrameReader opens the configured sensor for direct frame reads,
// bypassing the pipeline queues. The calibration wizard uses it to
// sample the raw device. close releases the hardware.
func OpenFrameReader(s config.Settings, clk clock.Clock) (read func() (accel, gyro, mag imu.Vec3, err error), close func(), err error) {
	switch s.SensorDriver {
	case "mpu9250":
		dev, port, err := openIMU(s)
		if err != nil {
			return nil, nil, err
		}
		read = func() (imu.Vec3, imu.Vec3, imu.Vec3, error) {
			sample, err := dev.Read()
			if err != nil {
				return imu.Vec3{}, imu.Vec3{}, imu.Vec3{}, err
			}
			return imu.Vec3{float64(sample.Ax), float64(sample.Ay), float64(sample.Az)},
				imu.Vec3{float64(sample.Gx), float64(sample.Gy), float64(sample.Gz)},
				imu.Vec3{sample.Mx, sample.My, sample.Mz},
				nil
		}
		return read, func() { port.Close() }, nil

	case "synthetic":
		gen := NewSynthetic(s, clk, nil, nil, nil)
		start := clk.Now()
		read = func() (imu.Vec3, imu.Vec3, imu.Vec3, error) {
			a, g, m := gen.Frame(clk.Now().Sub(start).Seconds())
			return a.Vec(), g.Vec(), m.Vec(), nil
		}
		return read, func() {}, nil

	default:
		return nil, nil, errors.Errorf("unknown sensor driver %q", s.SensorDriver)
	}
}

package sensors

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/sensor_pipeline/internal/calibration"
	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/homeref"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

const gravityMS2 = 9.80665

// Synthetic generates a smooth rocking motion with consistent gravity
// and field vectors, so the full pipeline runs on a bench machine with
// no hardware attached.
type Synthetic struct {
	clk      clock.Clock
	interval time.Duration
	accel    Offerer
	gyro     Offerer
	mag      Offerer

	field    imu.Vec3
	hardIron imu.Vec3
	drift    imu.Vec3
}

// NewSynthetic builds a generator paced at the sample interval.
func NewSynthetic(s config.Settings, clk clock.Clock, accel, gyro, mag Offerer) *Synthetic {
	return &Synthetic{
		clk:      clk,
		interval: time.Duration(s.SampleInterval) * time.Millisecond,
		accel:    accel,
		gyro:     gyro,
		mag:      mag,
		field:    homeref.FieldFromAngles(0, 60, 480),
		hardIron: imu.Vec3{25, -10, 5},
		drift:    imu.Vec3{0.4, -0.2, 0.1},
	}
}

// Run emits frames until ctx is done.
func (g *Synthetic) Run(ctx context.Context) error {
	start := g.clk.Now()
	ticker := g.clk.Ticker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		g.emit(g.clk.Now().Sub(start).Seconds())
	}
}

// emit produces one frame at elapsed seconds since start.
func (g *Synthetic) emit(elapsed float64) {
	accel, gyro, mag := g.Frame(elapsed)
	g.accel.Offer(accel)
	g.gyro.Offer(gyro)
	g.mag.Offer(mag)
}

// Frame computes the raw samples at elapsed seconds since start. The
// mag vector carries a fixed hard-iron offset so the adaptive bias
// estimator has something to find.
func (g *Synthetic) Frame(elapsed float64) (accel, gyro, mag imu.RawSample) {
	roll := 20 * math.Sin(0.5*elapsed)
	pitch := 15 * math.Cos(0.35*elapsed)
	yaw := 25 * math.Sin(0.05*elapsed)

	r := calibration.MatrixFromQuaternion(calibration.QuaternionFromRPY(roll, pitch, yaw))
	toBody := calibration.Transpose(r)

	a := calibration.Apply(toBody, imu.Vec3{0, 0, gravityMS2})
	m := calibration.Apply(toBody, g.field)
	temp := 24.5 + 0.5*math.Sin(elapsed/60)

	accel = imu.RawSample{Channel: imu.Accel, X: a[0], Y: a[1], Z: a[2], Temperature: temp}
	gyro = imu.RawSample{
		Channel:     imu.Gyro,
		X:           10*math.Cos(0.5*elapsed) + g.drift[0],
		Y:           -5.25*math.Sin(0.35*elapsed) + g.drift[1],
		Z:           1.25*math.Cos(0.05*elapsed) + g.drift[2],
		Temperature: temp,
	}
	mag = imu.RawSample{
		Channel:     imu.Mag,
		X:           m[0] + g.hardIron[0],
		Y:           m[1] + g.hardIron[1],
		Z:           m[2] + g.hardIron[2],
		Temperature: temp,
	}
	return accel, gyro, mag
}

package sensors

import (
	"math"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensor_pipeline/internal/attitude"
	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

type captureOfferer struct {
	samples []imu.RawSample
}

func (c *captureOfferer) Offer(s imu.RawSample) {
	c.samples = append(c.samples, s)
}

func (c *captureOfferer) last(t *testing.T) imu.RawSample {
	t.Helper()
	require.NotEmpty(t, c.samples)
	return c.samples[len(c.samples)-1]
}

func newSyntheticForTest() (*Synthetic, *captureOfferer, *captureOfferer, *captureOfferer) {
	s := config.Defaults()
	var accel, gyro, mag captureOfferer
	return NewSynthetic(s, clock.New(), &accel, &gyro, &mag), &accel, &gyro, &mag
}

func TestNewSourceDispatch(t *testing.T) {
	s := config.Defaults()
	s.SensorDriver = "synthetic"
	src, err := NewSource(s, clock.New(), &captureOfferer{}, &captureOfferer{}, &captureOfferer{})
	require.NoError(t, err)
	assert.IsType(t, &Synthetic{}, src)

	s.SensorDriver = "bogus"
	_, err = NewSource(s, clock.New(), &captureOfferer{}, &captureOfferer{}, &captureOfferer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sensor driver")
}

func TestSyntheticEmitsGravityFrame(t *testing.T) {
	g, accel, gyro, mag := newSyntheticForTest()

	// At t=0 the trajectory sits at roll 0, pitch 15.
	g.emit(0)

	a := accel.last(t)
	assert.Equal(t, imu.Accel, a.Channel)
	assert.InDelta(t, -gravityMS2*math.Sin(15*math.Pi/180), a.X, 1e-9)
	assert.InDelta(t, 0, a.Y, 1e-9)
	assert.InDelta(t, gravityMS2*math.Cos(15*math.Pi/180), a.Z, 1e-9)
	assert.InDelta(t, 24.5, a.Temperature, 1e-9)

	w := gyro.last(t)
	assert.Equal(t, imu.Gyro, w.Channel)
	assert.InDelta(t, 10+g.drift[0], w.X, 1e-9)

	m := mag.last(t)
	assert.Equal(t, imu.Mag, m.Channel)
	require.NotZero(t, m.X)
}

// The generated accel and mag vectors must agree with the attitude
// they were generated from, otherwise bench runs would show a compass
// that drifts against its own motion.
func TestSyntheticRoundTripsThroughTiltCompass(t *testing.T) {
	g, accel, _, mag := newSyntheticForTest()

	for _, elapsed := range []float64{0, 0.8, 2.0, 7.3} {
		g.emit(elapsed)

		wantRoll := 20 * math.Sin(0.5*elapsed)
		wantPitch := 15 * math.Cos(0.35*elapsed)
		wantYaw := 25 * math.Sin(0.05*elapsed)

		a := accel.last(t)
		m := mag.last(t)

		tc := attitude.NewTiltCompass()
		tc.ObserveAccel(imu.CorrectedSample{X: a.X, Y: a.Y, Z: a.Z})
		tc.ObserveMag(imu.CorrectedSample{
			X: m.X - g.hardIron[0],
			Y: m.Y - g.hardIron[1],
			Z: m.Z - g.hardIron[2],
		})

		roll, pitch, yaw := tc.RPY()
		assert.InDelta(t, wantRoll, roll, 1e-9, "roll at t=%v", elapsed)
		assert.InDelta(t, wantPitch, pitch, 1e-9, "pitch at t=%v", elapsed)
		assert.InDelta(t, wantYaw, yaw, 1e-9, "yaw at t=%v", elapsed)
	}
}

func TestSyntheticMagCarriesHardIron(t *testing.T) {
	g, _, _, mag := newSyntheticForTest()

	g.emit(0)
	m := mag.last(t)

	// Pitch-15 body frame of the home field, plus the baked-in offset.
	field := g.field
	cp, sp := math.Cos(15*math.Pi/180), math.Sin(15*math.Pi/180)
	assert.InDelta(t, field[0]*cp-field[2]*sp+g.hardIron[0], m.X, 1e-9)
	assert.InDelta(t, field[1]+g.hardIron[1], m.Y, 1e-9)
	assert.InDelta(t, field[0]*sp+field[2]*cp+g.hardIron[2], m.Z, 1e-9)
}

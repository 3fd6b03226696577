package attitude

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

const g = 9.81

func TestTiltCompassLevel(t *testing.T) {
	tc := NewTiltCompass()
	tc.ObserveAccel(imu.CorrectedSample{X: 0, Y: 0, Z: g})

	roll, pitch, _ := tc.RPY()
	assert.InDelta(t, 0, roll, 1e-9)
	assert.InDelta(t, 0, pitch, 1e-9)
}

func TestTiltCompassRoll90(t *testing.T) {
	tc := NewTiltCompass()
	tc.ObserveAccel(imu.CorrectedSample{X: 0, Y: g, Z: 0})

	roll, pitch, _ := tc.RPY()
	assert.InDelta(t, 90, roll, 1e-9)
	assert.InDelta(t, 0, pitch, 1e-9)
}

func TestTiltCompassPitch30(t *testing.T) {
	tc := NewTiltCompass()
	// Nose up 30 degrees: gravity shifts onto -x.
	tc.ObserveAccel(imu.CorrectedSample{X: -0.5 * g, Y: 0, Z: 0.8660254037844387 * g})

	roll, pitch, _ := tc.RPY()
	assert.InDelta(t, 0, roll, 1e-9)
	assert.InDelta(t, 30, pitch, 1e-9)
}

func TestTiltCompassYawLevel(t *testing.T) {
	tc := NewTiltCompass()
	tc.ObserveAccel(imu.CorrectedSample{X: 0, Y: 0, Z: g})

	// Heading north: field straight ahead plus the downward component.
	tc.ObserveMag(imu.CorrectedSample{X: 1, Y: 0, Z: 0.5})
	_, _, yaw := tc.RPY()
	assert.InDelta(t, 0, yaw, 1e-9)

	// Heading east: the northward field now points out the left side.
	tc.ObserveMag(imu.CorrectedSample{X: 0, Y: -1, Z: 0.5})
	_, _, yaw = tc.RPY()
	assert.InDelta(t, 90, yaw, 1e-9)
}

func TestTiltCompassYawCompensatesRoll(t *testing.T) {
	tc := NewTiltCompass()
	// Rolled 90 degrees right, still heading north. The nav-frame
	// field (1, 0, 0.5) lands on body (1, 0.5, 0).
	tc.ObserveAccel(imu.CorrectedSample{X: 0, Y: g, Z: 0})
	tc.ObserveMag(imu.CorrectedSample{X: 1, Y: 0.5, Z: 0})

	_, _, yaw := tc.RPY()
	assert.InDelta(t, 0, yaw, 1e-9)
}

func TestTiltCompassIgnoresFreeFall(t *testing.T) {
	tc := NewTiltCompass()
	tc.ObserveAccel(imu.CorrectedSample{X: 0, Y: g, Z: 0})
	tc.ObserveAccel(imu.CorrectedSample{})

	roll, _, _ := tc.RPY()
	assert.InDelta(t, 90, roll, 1e-9)
}

func TestTiltCompassAttitudeQuaternion(t *testing.T) {
	tc := NewTiltCompass()
	est := tc.Attitude()
	assert.Equal(t, 1.0, est.Quat.Real)
	assert.Equal(t, 0.0, est.YawDeg)

	tc.ObserveAccel(imu.CorrectedSample{X: 0, Y: g, Z: 0})
	est = tc.Attitude()
	// Roll 90: q = (cos45, sin45, 0, 0).
	assert.InDelta(t, 0.7071067811865476, est.Quat.Real, 1e-9)
	assert.InDelta(t, 0.7071067811865476, est.Quat.Imag, 1e-9)
	assert.InDelta(t, 0, est.Quat.Jmag, 1e-9)
	assert.InDelta(t, 0, est.Quat.Kmag, 1e-9)
}

func TestStillBiasLearnsFromQuietWindow(t *testing.T) {
	b := NewStillBias(8, 0.5)
	for i := 0; i < 8; i++ {
		jitter := 0.01 * float64(i%2)
		b.Observe(imu.CorrectedSample{X: 0.5 + jitter, Y: -0.2, Z: 0.1})
	}

	bias := b.GyroBias()
	assert.InDelta(t, 0.505, bias[0], 1e-9)
	assert.InDelta(t, -0.2, bias[1], 1e-9)
	assert.InDelta(t, 0.1, bias[2], 1e-9)
}

func TestStillBiasRejectsMotion(t *testing.T) {
	b := NewStillBias(8, 0.5)
	for i := 0; i < 8; i++ {
		b.Observe(imu.CorrectedSample{X: float64(i) * 10})
	}
	assert.Equal(t, imu.Vec3{}, b.GyroBias())

	// A later quiet window still takes effect.
	for i := 0; i < 8; i++ {
		b.Observe(imu.CorrectedSample{X: 1, Y: 1, Z: 1})
	}
	assert.Equal(t, imu.Vec3{1, 1, 1}, b.GyroBias())
}

func TestTrackerRoutesChannels(t *testing.T) {
	tr := NewTracker(4, 0.5)
	tr.ObserveCorrected(imu.Accel, imu.CorrectedSample{X: 0, Y: g, Z: 0})
	tr.ObserveCorrected(imu.Mag, imu.CorrectedSample{X: 1, Y: 0.5, Z: 0})
	for i := 0; i < 4; i++ {
		tr.ObserveCorrected(imu.Gyro, imu.CorrectedSample{X: 2, Y: 0, Z: -1})
	}

	roll, _, yaw := tr.RPY()
	assert.InDelta(t, 90, roll, 1e-9)
	assert.InDelta(t, 0, yaw, 1e-9)
	assert.Equal(t, imu.Vec3{2, 0, -1}, tr.GyroBias())
}

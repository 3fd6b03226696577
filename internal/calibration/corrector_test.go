package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

func identityParams() Params {
	return Params{
		AccelScale: imu.Vec3{1, 1, 1},
		GyroScale:  imu.Vec3{1, 1, 1},
		MagScale:   imu.Vec3{1, 1, 1},
	}
}

func TestIdentityCorrectionIsExact(t *testing.T) {
	p := identityParams()
	raw := imu.RawSample{Channel: imu.Accel, X: 12.5, Y: -7.25, Z: 981.0, Temperature: 25}

	want := imu.CorrectedSample{X: 12.5, Y: -7.25, Z: 981.0, Temperature: 25}
	assert.Equal(t, want, CorrectAccel(raw, p))

	raw.Channel = imu.Mag
	assert.Equal(t, want, CorrectMag(raw, p))

	// With correction disabled the gyro ignores the external bias
	// estimate entirely.
	raw.Channel = imu.Gyro
	assert.Equal(t, want, CorrectGyro(raw, p, imu.Vec3{9, 9, 9}))
}

func TestAccelScaleExample(t *testing.T) {
	p := identityParams()
	p.AccelScale = imu.Vec3{0.001, 0.001, 0.001}
	raw := imu.RawSample{Channel: imu.Accel, X: 1000, Y: 2000, Z: 3000, Temperature: 25}

	got := CorrectAccel(raw, p)

	assert.InDelta(t, 1.0, got.X, 1e-12)
	assert.InDelta(t, 2.0, got.Y, 1e-12)
	assert.InDelta(t, 3.0, got.Z, 1e-12)
	assert.Equal(t, 25.0, got.Temperature)
}

func TestScaleAndBiasPerAxis(t *testing.T) {
	p := identityParams()
	p.MagScale = imu.Vec3{2, 3, 4}
	p.MagBias = imu.Vec3{1, -1, 0.5}
	raw := imu.RawSample{Channel: imu.Mag, X: 10, Y: 10, Z: 10}

	got := CorrectMag(raw, p)

	assert.Equal(t, 19.0, got.X)  // 10*2 - 1
	assert.Equal(t, 31.0, got.Y)  // 10*3 + 1
	assert.Equal(t, 39.5, got.Z)  // 10*4 - 0.5
}

func TestZeroRotationTripleIsBitIdentical(t *testing.T) {
	s := config.Defaults()
	s.AccelScale = imu.Vec3{0.25, 0.5, 0.75}
	s.AccelBias = imu.Vec3{0.1, 0.2, 0.3}
	s.BoardRotation = imu.Vec3{}

	p := Reload(s)
	require.False(t, p.RotationEnabled)

	raw := imu.RawSample{Channel: imu.Accel, X: 3.7, Y: -1.1, Z: 0.9}
	got := CorrectAccel(raw, p)

	// Exact equality: the disabled path must skip the transform, not
	// multiply by an identity matrix.
	assert.Equal(t, raw.X*0.25-0.1, got.X)
	assert.Equal(t, raw.Y*0.5-0.2, got.Y)
	assert.Equal(t, raw.Z*0.75-0.3, got.Z)
}

func TestGyroBiasSubtractedAfterRotation(t *testing.T) {
	s := config.Defaults()
	s.BoardRotation = imu.Vec3{0, 0, 9000} // yaw +90°, hundredths of a degree
	p := Reload(s)
	require.True(t, p.RotationEnabled)
	require.True(t, p.GyroBiasCorrection)

	raw := imu.RawSample{Channel: imu.Gyro, X: 10, Y: 20, Z: 30}
	got := CorrectGyro(raw, p, imu.Vec3{1, 2, 3})

	// Rotated (10,20,30) → (-20,10,30), then minus (1,2,3). Subtracting
	// before the rotation would give (-18,9,27) instead.
	assert.InDelta(t, -21.0, got.X, 1e-9)
	assert.InDelta(t, 8.0, got.Y, 1e-9)
	assert.InDelta(t, 27.0, got.Z, 1e-9)
}

func TestRotationAppliesToAllChannels(t *testing.T) {
	s := config.Defaults()
	s.BoardRotation = imu.Vec3{0, 0, 9000}
	p := Reload(s)

	raw := imu.RawSample{X: 1, Y: 2, Z: 3}

	for name, got := range map[string]imu.CorrectedSample{
		"accel": CorrectAccel(raw, p),
		"gyro":  CorrectGyro(raw, p, imu.Vec3{}),
		"mag":   CorrectMag(raw, p),
	} {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, -2.0, got.X, 1e-9)
			assert.InDelta(t, 1.0, got.Y, 1e-9)
			assert.InDelta(t, 3.0, got.Z, 1e-9)
		})
	}
}

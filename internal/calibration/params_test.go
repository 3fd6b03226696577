package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

func TestReloadKeepsScalePerAxis(t *testing.T) {
	s := config.Defaults()
	s.AccelScale = imu.Vec3{0.1, 0.2, 0.3}
	s.GyroScale = imu.Vec3{0.4, 0.5, 0.6}
	s.MagBias = imu.Vec3{7, 8, 9}
	s.MagBiasNullingRate = 0.125

	p := Reload(s)

	assert.Equal(t, imu.Vec3{0.1, 0.2, 0.3}, p.AccelScale)
	assert.Equal(t, imu.Vec3{0.4, 0.5, 0.6}, p.GyroScale)
	assert.Equal(t, imu.Vec3{7, 8, 9}, p.MagBias)
	assert.Equal(t, 0.125, p.BiasNullingRate)
	assert.True(t, p.GyroBiasCorrection)
}

func TestReloadRotationFromCentidegrees(t *testing.T) {
	s := config.Defaults()
	s.BoardRotation = imu.Vec3{9000, 0, 0} // roll +90°

	p := Reload(s)
	require.True(t, p.RotationEnabled)

	out := Apply(p.Rotation, imu.Vec3{0, 0, 1})
	assert.InDelta(t, 0.0, out[0], 1e-9)
	assert.InDelta(t, -1.0, out[1], 1e-9)
	assert.InDelta(t, 0.0, out[2], 1e-9)
}

func TestReloadZeroTripleDisablesRotation(t *testing.T) {
	p := Reload(config.Defaults())

	assert.False(t, p.RotationEnabled)
	assert.Equal(t, Matrix{}, p.Rotation)
}

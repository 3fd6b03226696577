package magbias

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensor_pipeline/internal/attitude"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// The local field used throughout: 20 units horizontal, 40 vertical.
var testField = imu.Vec3{20, 0, 40}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("attitude")
	require.NoError(t, err)
	assert.Equal(t, AttitudeReferenced, v)
	assert.Equal(t, "attitude", v.String())

	v, err = ParseVariant("legacy")
	require.NoError(t, err)
	assert.Equal(t, LegacyNormDifference, v)
	assert.Equal(t, "legacy", v.String())

	_, err = ParseVariant("kalman")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"kalman"`)
}

func TestAttitudeVariantEquilibrium(t *testing.T) {
	e := New(AttitudeReferenced)

	// A sample that already matches the expected field exactly.
	out, changed := e.Update(imu.CorrectedSample{X: 20, Y: 0, Z: 40}, attitude.Level, testField, 0.1)
	assert.True(t, changed)
	assert.Equal(t, imu.Vec3{}, e.Bias())
	assert.Equal(t, imu.CorrectedSample{X: 20, Y: 0, Z: 40}, out)
}

func TestAttitudeVariantStepDirection(t *testing.T) {
	e := New(AttitudeReferenced)

	// True field plus an offset of (5, -3, 2).
	out, changed := e.Update(imu.CorrectedSample{X: 25, Y: -3, Z: 42}, attitude.Level, testField, 0.1)
	assert.True(t, changed)

	// The bias was zero going in, so the sample passes through.
	assert.Equal(t, 25.0, out.X)

	bias := e.Bias()
	assert.InDelta(t, 0.514247, bias[0], 1e-4)
	assert.InDelta(t, -0.061710, bias[1], 1e-4)
	assert.InDelta(t, 0.2, bias[2], 1e-12)
}

func TestAttitudeVariantConverges(t *testing.T) {
	e := New(AttitudeReferenced)

	// A stationary vehicle keeps measuring the same offset field. The
	// published sample converges to the expected field's horizontal
	// magnitude and vertical component.
	var out imu.CorrectedSample
	for i := 0; i < 200; i++ {
		out, _ = e.Update(imu.CorrectedSample{X: 25, Y: -3, Z: 42}, attitude.Level, testField, 0.2)
	}

	assert.InDelta(t, 20, math.Hypot(out.X, out.Y), 1e-6)
	assert.InDelta(t, 40, out.Z, 1e-9)
	assert.InDelta(t, 2, e.Bias()[2], 1e-9)
}

func TestAttitudeVariantSkipsDegenerateGeometry(t *testing.T) {
	e := New(AttitudeReferenced)

	// No horizontal component at all: the normalization divides zero
	// by zero and the step must be skipped, not applied as NaN.
	out, changed := e.Update(imu.CorrectedSample{X: 0, Y: 0, Z: 42}, attitude.Level, testField, 0.1)
	assert.False(t, changed)
	assert.Equal(t, imu.Vec3{}, e.Bias())
	assert.Equal(t, 42.0, out.Z)
}

func TestUpdateRemovesBiasBeforeAdjusting(t *testing.T) {
	e := New(AttitudeReferenced)
	e.bias = imu.Vec3{1, 2, 3}

	out, _ := e.Update(imu.CorrectedSample{X: 10, Y: 10, Z: 10, Temperature: 31.5}, attitude.Level, testField, 0.1)
	assert.Equal(t, 9.0, out.X)
	assert.Equal(t, 8.0, out.Y)
	assert.Equal(t, 7.0, out.Z)
	assert.Equal(t, 31.5, out.Temperature)
}

func TestNormVariantPrimesOnFirstSample(t *testing.T) {
	e := New(LegacyNormDifference)

	_, changed := e.Update(imu.CorrectedSample{X: 100}, attitude.Level, imu.Vec3{}, 1)
	assert.False(t, changed)
	assert.Equal(t, imu.Vec3{}, e.Bias())
}

func TestNormVariantIgnoresSmallDifferences(t *testing.T) {
	e := New(LegacyNormDifference)
	e.Update(imu.CorrectedSample{X: 100}, attitude.Level, imu.Vec3{}, 1)

	// 20 units apart, below the 50 unit threshold: no step, and the
	// stored sample must not slide either.
	_, changed := e.Update(imu.CorrectedSample{X: 120}, attitude.Level, imu.Vec3{}, 1)
	assert.False(t, changed)
	assert.Equal(t, imu.Vec3{}, e.Bias())
	assert.Equal(t, imu.Vec3{100, 0, 0}, e.prev)
}

func TestNormVariantStep(t *testing.T) {
	e := New(LegacyNormDifference)
	e.Update(imu.CorrectedSample{X: 100}, attitude.Level, imu.Vec3{}, 1)

	// From (100,0,0) to (0,160,0): difference norm ~188.68, magnitude
	// grows by 60, so the bias walks opposite the difference.
	out, changed := e.Update(imu.CorrectedSample{Y: 160}, attitude.Level, imu.Vec3{}, 1)
	assert.True(t, changed)
	assert.Equal(t, 160.0, out.Y)

	bias := e.Bias()
	assert.InDelta(t, -31.7999, bias[0], 1e-3)
	assert.InDelta(t, 50.8799, bias[1], 1e-3)
	assert.InDelta(t, 0, bias[2], 1e-12)
	assert.Equal(t, imu.Vec3{0, 160, 0}, e.prev)
}

func TestNormVariantRemovesBiasFirst(t *testing.T) {
	e := New(LegacyNormDifference)
	e.bias = imu.Vec3{10, -5, 0}
	e.prev = imu.Vec3{90, 5, 0}
	e.primed = true

	// (100,0,0) minus the bias is (90,5,0), identical to the stored
	// sample: no step, but the published value has the bias removed.
	out, changed := e.Update(imu.CorrectedSample{X: 100}, attitude.Level, imu.Vec3{}, 1)
	assert.False(t, changed)
	assert.Equal(t, 90.0, out.X)
	assert.Equal(t, 5.0, out.Y)
	assert.Equal(t, imu.Vec3{10, -5, 0}, e.Bias())
}

func TestResetClearsAllState(t *testing.T) {
	e := New(LegacyNormDifference)
	e.bias = imu.Vec3{5, -3, 2}
	e.prev = imu.Vec3{1, 1, 1}
	e.primed = true

	e.Reset()
	assert.Equal(t, imu.Vec3{}, e.Bias())
	assert.False(t, e.primed)

	// The next sample primes again instead of stepping.
	_, changed := e.Update(imu.CorrectedSample{X: 500}, attitude.Level, imu.Vec3{}, 1)
	assert.False(t, changed)
	assert.Equal(t, imu.Vec3{500, 0, 0}, e.prev)
}

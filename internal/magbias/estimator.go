// Package magbias nulls the slowly drifting magnetometer offset while
// the vehicle flies. Two strategies are available: one references the
// current attitude and the local field, the other compares consecutive
// sample norms.
package magbias

import (
	"fmt"
	"math"
	"sync"

	"github.com/relabs-tech/sensor_pipeline/internal/attitude"
	"github.com/relabs-tech/sensor_pipeline/internal/calibration"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// Variant selects the bias update strategy. It is fixed when the
// estimator is built and does not follow settings reloads.
type Variant int

const (
	// AttitudeReferenced compares the attitude-rotated sample against
	// the expected local field and walks the bias toward the residual.
	AttitudeReferenced Variant = iota

	// LegacyNormDifference uses the change in field magnitude between
	// two well-separated samples. Kept for vehicles without a home
	// location.
	LegacyNormDifference
)

// ParseVariant maps a settings value to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "attitude":
		return AttitudeReferenced, nil
	case "legacy":
		return LegacyNormDifference, nil
	default:
		return 0, fmt.Errorf("unknown mag bias variant %q", s)
	}
}

func (v Variant) String() string {
	switch v {
	case AttitudeReferenced:
		return "attitude"
	case LegacyNormDifference:
		return "legacy"
	default:
		return "unknown"
	}
}

// minNormDifference is the smallest magnitude change between two
// samples the norm-difference variant will act on.
const minNormDifference = 50

// Estimator tracks the adaptive magnetometer bias. Update removes the
// current bias from each sample before deciding whether to move it, so
// published samples never include a correction that was derived from
// them.
type Estimator struct {
	mu      sync.Mutex
	variant Variant
	bias    imu.Vec3

	// norm-difference state
	prev   imu.Vec3
	primed bool
}

func New(v Variant) *Estimator {
	return &Estimator{variant: v}
}

// Update removes the current bias from sample and, when the variant's
// conditions hold, moves the bias by one step of size rate. The
// returned sample always has the pre-update bias removed; changed
// reports whether the bias moved.
//
// att and expectedField are only read by the attitude-referenced
// variant: expectedField is the local geomagnetic field in the
// navigation frame.
func (e *Estimator) Update(sample imu.CorrectedSample, att attitude.Estimate, expectedField imu.Vec3, rate float64) (imu.CorrectedSample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sample.X -= e.bias[0]
	sample.Y -= e.bias[1]
	sample.Z -= e.bias[2]

	var changed bool
	switch e.variant {
	case AttitudeReferenced:
		changed = e.updateFromAttitude(sample, att, expectedField, rate)
	case LegacyNormDifference:
		changed = e.updateFromNormDifference(sample, rate)
	}
	return sample, changed
}

// updateFromAttitude rotates the bias-removed sample into the
// navigation frame, splits the expected field into its horizontal
// magnitude and vertical component, and steps the bias toward the
// difference. Degenerate geometry surfaces as NaN and skips the step.
func (e *Estimator) updateFromAttitude(sample imu.CorrectedSample, att attitude.Estimate, expectedField imu.Vec3, rate float64) bool {
	rxy := math.Sqrt(expectedField[0]*expectedField[0] + expectedField[1]*expectedField[1])
	rz := expectedField[2]

	r := calibration.MatrixFromQuaternion(att.Quat)
	be := calibration.Apply(r, sample.Vec())

	cy := math.Cos(att.YawDeg * math.Pi / 180)
	sy := math.Sin(att.YawDeg * math.Pi / 180)

	xy0 := cy*be[0] + sy*be[1]
	xy1 := -sy*be[0] + cy*be[1]
	xyNorm := math.Sqrt(xy0*xy0 + xy1*xy1)

	delta := imu.Vec3{
		-rate * (xy0/xyNorm*rxy - xy0),
		-rate * (xy1/xyNorm*rxy - xy1),
		-rate * (rz - be[2]),
	}

	if math.IsNaN(delta[0]) || math.IsNaN(delta[1]) || math.IsNaN(delta[2]) {
		return false
	}
	e.bias[0] += delta[0]
	e.bias[1] += delta[1]
	e.bias[2] += delta[2]
	return true
}

// updateFromNormDifference steps the bias from the magnitude change
// between the stored sample and this one. The first sample only primes
// the stored value, and samples closer than minNormDifference leave
// both the bias and the stored value alone.
func (e *Estimator) updateFromNormDifference(sample imu.CorrectedSample, rate float64) bool {
	cur := sample.Vec()
	if !e.primed {
		e.prev = cur
		e.primed = true
		return false
	}

	diff := imu.Vec3{e.prev[0] - cur[0], e.prev[1] - cur[1], e.prev[2] - cur[2]}
	normDiff := math.Sqrt(diff[0]*diff[0] + diff[1]*diff[1] + diff[2]*diff[2])
	if normDiff <= minNormDifference {
		return false
	}

	normPrev := math.Sqrt(e.prev[0]*e.prev[0] + e.prev[1]*e.prev[1] + e.prev[2]*e.prev[2])
	normCur := math.Sqrt(cur[0]*cur[0] + cur[1]*cur[1] + cur[2]*cur[2])
	scale := rate * (normPrev - normCur) / normDiff

	e.bias[0] += diff[0] * scale
	e.bias[1] += diff[1] * scale
	e.bias[2] += diff[2] * scale
	e.prev = cur
	return true
}

// Bias returns the current adaptive bias.
func (e *Estimator) Bias() imu.Vec3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bias
}

// Reset clears the bias and the norm-difference history. Called on
// settings reloads so stale state never outlives a calibration change.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bias = imu.Vec3{}
	e.prev = imu.Vec3{}
	e.primed = false
}

package calibration

import (
	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// Params is one immutable snapshot of the correction coefficients. The
// pipeline copies a Params value into each cycle before use, so a
// settings reload can never mix old and new coefficients within a
// cycle.
type Params struct {
	AccelScale imu.Vec3
	AccelBias  imu.Vec3
	GyroScale  imu.Vec3
	MagScale   imu.Vec3
	MagBias    imu.Vec3

	// Subtract the externally estimated gyro bias after rotation.
	GyroBiasCorrection bool

	// Mounting rotation. When the configured board-rotation triple is
	// exactly zero the transform is skipped, not multiplied by an
	// identity matrix.
	RotationEnabled bool
	Rotation        Matrix

	// Gain of the adaptive mag bias estimator; zero disables it.
	BiasNullingRate float64
}

// Reload derives fresh correction parameters from a settings snapshot.
// Scale and bias stay per-axis for every channel. The board-rotation
// triple arrives in hundredths of a degree; a non-zero triple is
// composed into a quaternion and expanded to the rotation matrix.
//
// Callers that hold adaptive mag bias state must reset it whenever this
// runs: new coefficients invalidate the running estimate.
func Reload(s config.Settings) Params {
	p := Params{
		AccelScale:         s.AccelScale,
		AccelBias:          s.AccelBias,
		GyroScale:          s.GyroScale,
		MagScale:           s.MagScale,
		MagBias:            s.MagBias,
		GyroBiasCorrection: s.GyroBiasCorrection,
		BiasNullingRate:    s.MagBiasNullingRate,
	}

	if s.BoardRotation == (imu.Vec3{}) {
		return p
	}

	q := QuaternionFromRPY(
		s.BoardRotation[0]/100,
		s.BoardRotation[1]/100,
		s.BoardRotation[2]/100,
	)
	p.Rotation = MatrixFromQuaternion(q)
	p.RotationEnabled = true
	return p
}

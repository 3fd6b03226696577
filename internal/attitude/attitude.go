package attitude

import (
	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// Estimate is one attitude solution: the body attitude quaternion and
// the yaw it implies, in degrees.
type Estimate struct {
	Quat   quat.Number
	YawDeg float64
}

// Level is the identity attitude.
var Level = Estimate{Quat: quat.Number{Real: 1}}

// Source is the pipeline's read-only view of the attitude estimator.
// The estimator itself lives outside the correction pipeline; only
// these two reads are consumed.
type Source interface {
	Attitude() Estimate
	GyroBias() imu.Vec3
}

// Fixed is a Source pinned to constant values.
type Fixed struct {
	Est  Estimate
	Bias imu.Vec3
}

func (f Fixed) Attitude() Estimate { return f.Est }
func (f Fixed) GyroBias() imu.Vec3 { return f.Bias }

package calibration

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// Matrix is a 3×3 rotation matrix, row-major.
type Matrix [3][3]float64

// QuaternionFromRPY composes a roll/pitch/yaw triple in degrees into an
// attitude quaternion (ZYX order). The scalar part is kept non-negative
// so equal rotations compare equal.
func QuaternionFromRPY(rollDeg, pitchDeg, yawDeg float64) quat.Number {
	phi := rollDeg * math.Pi / 180 / 2
	theta := pitchDeg * math.Pi / 180 / 2
	psi := yawDeg * math.Pi / 180 / 2

	cphi, sphi := math.Cos(phi), math.Sin(phi)
	ctheta, stheta := math.Cos(theta), math.Sin(theta)
	cpsi, spsi := math.Cos(psi), math.Sin(psi)

	q := quat.Number{
		Real: cphi*ctheta*cpsi + sphi*stheta*spsi,
		Imag: sphi*ctheta*cpsi - cphi*stheta*spsi,
		Jmag: cphi*stheta*cpsi + sphi*ctheta*spsi,
		Kmag: cphi*ctheta*spsi - sphi*stheta*cpsi,
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

// MatrixFromQuaternion expands a unit quaternion into its rotation
// matrix.
func MatrixFromQuaternion(q quat.Number) Matrix {
	q0, q1, q2, q3 := q.Real, q.Imag, q.Jmag, q.Kmag

	q0s, q1s, q2s, q3s := q0*q0, q1*q1, q2*q2, q3*q3

	return Matrix{
		{q0s + q1s - q2s - q3s, 2 * (q1*q2 + q0*q3), 2 * (q1*q3 - q0*q2)},
		{2 * (q1*q2 - q0*q3), q0s - q1s + q2s - q3s, 2 * (q2*q3 + q0*q1)},
		{2 * (q1*q3 + q0*q2), 2 * (q2*q3 - q0*q1), q0s - q1s - q2s + q3s},
	}
}

// Apply transforms v in the sensor-to-body sense:
//
//	out[i] = Σ_j m[j][i] * v[j]
//
// Pure function; used for the mounting rotation of every channel and
// for rotating mag readings by the attitude matrix.
func Apply(m Matrix, v imu.Vec3) imu.Vec3 {
	return imu.Vec3{
		m[0][0]*v[0] + m[1][0]*v[1] + m[2][0]*v[2],
		m[0][1]*v[0] + m[1][1]*v[1] + m[2][1]*v[2],
		m[0][2]*v[0] + m[1][2]*v[1] + m[2][2]*v[2],
	}
}

// Transpose returns mᵀ, the inverse rotation for an orthonormal m.
func Transpose(m Matrix) Matrix {
	return Matrix{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
}

package calibration

import (
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// CorrectAccel applies per-axis scale and bias, then the mounting
// rotation. Temperature passes through unmodified.
func CorrectAccel(raw imu.RawSample, p Params) imu.CorrectedSample {
	return correct(raw, p.AccelScale, p.AccelBias, p)
}

// CorrectMag applies per-axis scale and the static (hard-iron)
// calibration bias, then the mounting rotation. The adaptive bias
// estimate is not applied here; the estimator removes it separately.
func CorrectMag(raw imu.RawSample, p Params) imu.CorrectedSample {
	return correct(raw, p.MagScale, p.MagBias, p)
}

// CorrectGyro applies per-axis scale and the mounting rotation, then
// subtracts biasEstimate when gyro bias correction is enabled. The
// static calibration bias never applies to the gyro channel; its bias
// comes from the external estimate alone.
func CorrectGyro(raw imu.RawSample, p Params, biasEstimate imu.Vec3) imu.CorrectedSample {
	v := imu.Vec3{
		raw.X * p.GyroScale[0],
		raw.Y * p.GyroScale[1],
		raw.Z * p.GyroScale[2],
	}
	if p.RotationEnabled {
		v = Apply(p.Rotation, v)
	}
	if p.GyroBiasCorrection {
		v[0] -= biasEstimate[0]
		v[1] -= biasEstimate[1]
		v[2] -= biasEstimate[2]
	}
	return imu.CorrectedSample{X: v[0], Y: v[1], Z: v[2], Temperature: raw.Temperature}
}

func correct(raw imu.RawSample, scale, bias imu.Vec3, p Params) imu.CorrectedSample {
	v := imu.Vec3{
		raw.X*scale[0] - bias[0],
		raw.Y*scale[1] - bias[1],
		raw.Z*scale[2] - bias[2],
	}
	if p.RotationEnabled {
		v = Apply(p.Rotation, v)
	}
	return imu.CorrectedSample{X: v[0], Y: v[1], Z: v[2], Temperature: raw.Temperature}
}

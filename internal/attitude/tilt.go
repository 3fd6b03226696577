package attitude

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/sensor_pipeline/internal/calibration"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// TiltCompass derives a coarse attitude from corrected accelerometer
// and magnetometer samples: roll/pitch from the gravity vector, yaw
// from the tilt-compensated field. It is a stand-in reference for the
// adaptive mag bias estimator, not a flight attitude solution.
type TiltCompass struct {
	mu       sync.RWMutex
	rollDeg  float64
	pitchDeg float64
	yawDeg   float64
	lastMag  imu.Vec3
	haveMag  bool
}

func NewTiltCompass() *TiltCompass {
	return &TiltCompass{}
}

// ObserveAccel updates roll and pitch from one corrected accel sample:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay^2 + az^2))
//
// Near-zero samples (free fall, unpowered sensor) are ignored.
func (tc *TiltCompass) ObserveAccel(s imu.CorrectedSample) {
	a := r3.Vector{X: s.X, Y: s.Y, Z: s.Z}
	if a.Norm() < 1e-6 {
		return
	}

	rollRad := math.Atan2(a.Y, a.Z)
	pitchRad := math.Atan2(-a.X, math.Sqrt(a.Y*a.Y+a.Z*a.Z))

	tc.mu.Lock()
	tc.rollDeg = rollRad * 180 / math.Pi
	tc.pitchDeg = pitchRad * 180 / math.Pi
	if tc.haveMag {
		tc.updateYawLocked()
	}
	tc.mu.Unlock()
}

// ObserveMag updates yaw from one corrected mag sample using the
// current roll/pitch.
func (tc *TiltCompass) ObserveMag(s imu.CorrectedSample) {
	m := r3.Vector{X: s.X, Y: s.Y, Z: s.Z}
	if m.Norm() < 1e-6 {
		return
	}

	tc.mu.Lock()
	tc.lastMag = imu.Vec3{s.X, s.Y, s.Z}
	tc.haveMag = true
	tc.updateYawLocked()
	tc.mu.Unlock()
}

// updateYawLocked recomputes yaw from the stored mag sample and the
// current roll/pitch. Caller holds tc.mu.
func (tc *TiltCompass) updateYawLocked() {
	phi := tc.rollDeg * math.Pi / 180
	theta := tc.pitchDeg * math.Pi / 180
	m := tc.lastMag

	// De-rotate the field to the horizontal plane, then take the
	// heading (NED, x forward).
	xh := m[0]*math.Cos(theta) + m[1]*math.Sin(theta)*math.Sin(phi) + m[2]*math.Sin(theta)*math.Cos(phi)
	yh := m[1]*math.Cos(phi) - m[2]*math.Sin(phi)
	if xh == 0 && yh == 0 {
		return
	}
	tc.yawDeg = math.Atan2(-yh, xh) * 180 / math.Pi
}

// Attitude returns the current estimate as a quaternion plus yaw.
func (tc *TiltCompass) Attitude() Estimate {
	tc.mu.RLock()
	roll, pitch, yaw := tc.rollDeg, tc.pitchDeg, tc.yawDeg
	tc.mu.RUnlock()

	return Estimate{
		Quat:   calibration.QuaternionFromRPY(roll, pitch, yaw),
		YawDeg: yaw,
	}
}

// RPY returns roll, pitch, yaw in degrees.
func (tc *TiltCompass) RPY() (roll, pitch, yaw float64) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.rollDeg, tc.pitchDeg, tc.yawDeg
}

// StillBias estimates the slow gyro bias by averaging whole windows of
// corrected gyro samples taken while the vehicle is still. A window
// with per-axis spread above the threshold is discarded.
type StillBias struct {
	mu        sync.Mutex
	threshold float64
	window    [][3]float64
	size      int
	bias      imu.Vec3
}

func NewStillBias(windowSize int, stillThreshold float64) *StillBias {
	return &StillBias{
		threshold: stillThreshold,
		window:    make([][3]float64, 0, windowSize),
		size:      windowSize,
	}
}

// Observe feeds one corrected gyro sample.
func (b *StillBias) Observe(s imu.CorrectedSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.window = append(b.window, [3]float64{s.X, s.Y, s.Z})
	if len(b.window) < b.size {
		return
	}

	axis := make([]float64, len(b.window))
	var mean imu.Vec3
	still := true
	for i := 0; i < 3; i++ {
		for j, w := range b.window {
			axis[j] = w[i]
		}
		mean[i] = stat.Mean(axis, nil)
		if stat.StdDev(axis, nil) > b.threshold {
			still = false
			break
		}
	}
	if still {
		b.bias = mean
	}
	b.window = b.window[:0]
}

// GyroBias returns the most recent still-window mean, zero until the
// first still window completes.
func (b *StillBias) GyroBias() imu.Vec3 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bias
}

// Tracker bundles the tilt compass and the stillness bias estimate
// into one attitude Source fed from the pipeline's corrected output.
type Tracker struct {
	*TiltCompass
	*StillBias
}

func NewTracker(windowSize int, stillThreshold float64) *Tracker {
	return &Tracker{
		TiltCompass: NewTiltCompass(),
		StillBias:   NewStillBias(windowSize, stillThreshold),
	}
}

// ObserveCorrected routes one corrected sample to the right tracker.
func (t *Tracker) ObserveCorrected(ch imu.Channel, s imu.CorrectedSample) {
	switch ch {
	case imu.Accel:
		t.ObserveAccel(s)
	case imu.Gyro:
		t.Observe(s)
	case imu.Mag:
		t.ObserveMag(s)
	}
}

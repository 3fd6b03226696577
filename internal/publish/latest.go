package publish

import (
	"sync"

	"github.com/relabs-tech/sensor_pipeline/internal/env"
	"github.com/relabs-tech/sensor_pipeline/internal/homeref"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// Bias is the JSON shape of an adaptive mag bias update.
type Bias struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Fault is the JSON shape of the fault indicator topic. It is
// published retained so late subscribers see the current state.
type Fault struct {
	Active bool   `json:"active"`
	Kind   string `json:"kind,omitempty"`
}

// State is a point-in-time snapshot of everything the pipeline has
// published, for the web API and the console.
type State struct {
	Accel   *imu.CorrectedSample `json:"accel,omitempty"`
	Gyro    *imu.CorrectedSample `json:"gyro,omitempty"`
	Mag     *imu.CorrectedSample `json:"mag,omitempty"`
	MagBias *Bias                `json:"mag_bias,omitempty"`
	Env     *env.Sample          `json:"env,omitempty"`
	GPS     *homeref.Fix         `json:"gps,omitempty"`
}

// Latest retains the most recent update per kind. It is the retained
// in-process mirror of the broker topics.
type Latest struct {
	mu      sync.RWMutex
	samples map[imu.Channel]imu.CorrectedSample
	bias    imu.Vec3
	biasSet bool
	env     env.Sample
	envSet  bool
	fix     homeref.Fix
	fixSet  bool
}

func NewLatest() *Latest {
	return &Latest{samples: make(map[imu.Channel]imu.CorrectedSample)}
}

func (l *Latest) PublishSample(ch imu.Channel, s imu.CorrectedSample) {
	l.mu.Lock()
	l.samples[ch] = s
	l.mu.Unlock()
}

func (l *Latest) PublishMagBias(bias imu.Vec3) {
	l.mu.Lock()
	l.bias = bias
	l.biasSet = true
	l.mu.Unlock()
}

// SetEnv records the latest barometer sample.
func (l *Latest) SetEnv(s env.Sample) {
	l.mu.Lock()
	l.env = s
	l.envSet = true
	l.mu.Unlock()
}

// SetFix records the latest GPS fix.
func (l *Latest) SetFix(f homeref.Fix) {
	l.mu.Lock()
	l.fix = f
	l.fixSet = true
	l.mu.Unlock()
}

// Sample returns the latest corrected sample for one channel.
func (l *Latest) Sample(ch imu.Channel) (imu.CorrectedSample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.samples[ch]
	return s, ok
}

// MagBias returns the latest adaptive bias update.
func (l *Latest) MagBias() (imu.Vec3, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bias, l.biasSet
}

// State assembles the snapshot. Absent values stay nil.
func (l *Latest) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var st State
	if s, ok := l.samples[imu.Accel]; ok {
		c := s
		st.Accel = &c
	}
	if s, ok := l.samples[imu.Gyro]; ok {
		c := s
		st.Gyro = &c
	}
	if s, ok := l.samples[imu.Mag]; ok {
		c := s
		st.Mag = &c
	}
	if l.biasSet {
		st.MagBias = &Bias{X: l.bias[0], Y: l.bias[1], Z: l.bias[2]}
	}
	if l.envSet {
		e := l.env
		st.Env = &e
	}
	if l.fixSet {
		f := l.fix
		st.GPS = &f
	}
	return st
}

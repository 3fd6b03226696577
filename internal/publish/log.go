package publish

import (
	"fmt"
	"io"
	"sync"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// Log is the plain-text publisher for broker-less runs: each update
// becomes one line on w. Corrected samples arrive at cycle rate, so
// every thins each channel down to one line per every updates; bias
// updates always print.
type Log struct {
	mu    sync.Mutex
	w     io.Writer
	every int
	count map[imu.Channel]int
}

func NewLog(w io.Writer, every int) *Log {
	if every < 1 {
		every = 1
	}
	return &Log{w: w, every: every, count: make(map[imu.Channel]int)}
}

func (l *Log) PublishSample(ch imu.Channel, s imu.CorrectedSample) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count[ch]++
	if l.count[ch]%l.every != 0 {
		return
	}
	fmt.Fprintf(l.w, "%-5s x=%9.3f y=%9.3f z=%9.3f t=%5.1f\n", ch, s.X, s.Y, s.Z, s.Temperature)
}

func (l *Log) PublishMagBias(bias imu.Vec3) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.w, "bias  x=%9.4f y=%9.4f z=%9.4f\n", bias[0], bias[1], bias[2])
}

// Package publish carries corrected pipeline output to its consumers:
// the MQTT broker, the in-process state cache behind the web and
// console views, and any extra observer hooks.
package publish

import (
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// Sink consumes corrected samples and adaptive bias updates.
type Sink interface {
	PublishSample(ch imu.Channel, s imu.CorrectedSample)
	PublishMagBias(bias imu.Vec3)
}

// Fanout replicates every update to its sinks in order.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) PublishSample(ch imu.Channel, s imu.CorrectedSample) {
	for _, sink := range f.sinks {
		sink.PublishSample(ch, s)
	}
}

func (f *Fanout) PublishMagBias(bias imu.Vec3) {
	for _, sink := range f.sinks {
		sink.PublishMagBias(bias)
	}
}

// Observer adapts plain callbacks to a Sink. Nil callbacks are
// skipped, so partial observers are fine.
type Observer struct {
	OnSample func(ch imu.Channel, s imu.CorrectedSample)
	OnBias   func(bias imu.Vec3)
}

func (o Observer) PublishSample(ch imu.Channel, s imu.CorrectedSample) {
	if o.OnSample != nil {
		o.OnSample(ch, s)
	}
}

func (o Observer) PublishMagBias(bias imu.Vec3) {
	if o.OnBias != nil {
		o.OnBias(bias)
	}
}

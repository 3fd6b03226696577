package pipeline

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

// Queue buffers raw samples between a sensor pump goroutine and the
// driver. Offer never blocks the producer; the driver drains one
// sample per cycle with a bounded wait.
type Queue struct {
	name string
	clk  clock.Clock
	ch   chan imu.RawSample
}

func NewQueue(ch imu.Channel, depth int, clk clock.Clock) *Queue {
	return &Queue{
		name: ch.String(),
		clk:  clk,
		ch:   make(chan imu.RawSample, depth),
	}
}

// Offer enqueues one raw sample without blocking. When the queue is
// full the oldest sample is evicted so fresh data always wins.
func (q *Queue) Offer(s imu.RawSample) {
	for {
		select {
		case q.ch <- s:
			return
		default:
		}
		select {
		case <-q.ch:
			queueDropsTotal.WithLabelValues(q.name).Inc()
		default:
		}
	}
}

// TryReceive returns the oldest queued sample. A zero wait only takes
// what is already queued; a positive wait blocks until a sample
// arrives or the wait elapses.
func (q *Queue) TryReceive(wait time.Duration) (imu.RawSample, bool) {
	select {
	case s := <-q.ch:
		return s, true
	default:
	}
	if wait <= 0 {
		return imu.RawSample{}, false
	}

	t := q.clk.Timer(wait)
	defer t.Stop()
	select {
	case s := <-q.ch:
		return s, true
	case <-t.C:
		return imu.RawSample{}, false
	}
}

// Len returns the number of queued samples.
func (q *Queue) Len() int {
	return len(q.ch)
}

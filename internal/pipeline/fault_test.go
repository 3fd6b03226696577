package pipeline

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestFaultsRaiseAndClear(t *testing.T) {
	f := NewFaults()

	_, active := f.Current()
	assert.False(t, active)

	f.Report("gyro")
	kind, active := f.Current()
	assert.True(t, active)
	assert.Equal(t, "gyro", kind)

	// Repeated reports keep the same state.
	f.Report("gyro")
	kind, active = f.Current()
	assert.True(t, active)
	assert.Equal(t, "gyro", kind)

	f.Clear()
	_, active = f.Current()
	assert.False(t, active)

	// Clearing an inactive fault is a no-op.
	f.Clear()
	_, active = f.Current()
	assert.False(t, active)
}

func TestFaultsTrackKindChange(t *testing.T) {
	f := NewFaults()
	f.Report("gyro")
	f.Report("accel")

	kind, active := f.Current()
	assert.True(t, active)
	assert.Equal(t, "accel", kind)
}

func TestFaultsNotifyOnRaiseTransitionsOnly(t *testing.T) {
	f := NewFaults()
	var raised []string
	f.OnRaise(func(kind string) { raised = append(raised, kind) })

	f.Report("gyro")
	f.Report("gyro")
	f.Report("accel")
	f.Clear()
	f.Report("gyro")

	assert.Equal(t, []string{"gyro", "accel", "gyro"}, raised)
}

func TestFaultsNotifyOnClearTransitionsOnly(t *testing.T) {
	f := NewFaults()
	var cleared int
	f.OnClear(func() { cleared++ })

	f.Clear()
	f.Report("gyro")
	f.Clear()
	f.Clear()

	assert.Equal(t, 1, cleared)
}

func TestWatchdogHealthy(t *testing.T) {
	mock := clock.NewMock()
	w := NewWatchdog(mock, 100*time.Millisecond)

	assert.False(t, w.Healthy())

	w.Service()
	assert.True(t, w.Healthy())
	assert.Equal(t, uint64(1), w.Services())

	mock.Add(200 * time.Millisecond)
	assert.False(t, w.Healthy())

	w.Service()
	assert.True(t, w.Healthy())
	assert.Equal(t, uint64(2), w.Services())
}

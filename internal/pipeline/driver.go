// Package pipeline runs the sensor correction loop: a fixed-period
// worker that drains one raw sample per channel per cycle, applies the
// calibration, feeds the adaptive mag bias estimator, and hands the
// corrected samples to the publisher.
package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/sensor_pipeline/internal/attitude"
	"github.com/relabs-tech/sensor_pipeline/internal/calibration"
	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
	"github.com/relabs-tech/sensor_pipeline/internal/magbias"
)

// AttitudeSource provides the current attitude estimate and the
// external gyro drift estimate consumed by the gyro corrector.
type AttitudeSource interface {
	Attitude() attitude.Estimate
	GyroBias() imu.Vec3
}

// HomeField reports the expected geomagnetic field in the navigation
// frame. The estimator stays idle until the home location is set.
type HomeField interface {
	Field() (imu.Vec3, bool)
}

// Publisher receives every corrected sample and adaptive bias update,
// in publish order.
type Publisher interface {
	PublishSample(ch imu.Channel, s imu.CorrectedSample)
	PublishMagBias(bias imu.Vec3)
}

// Driver owns the cycle loop and the calibration snapshot. All
// per-cycle reads go through bounded-wait queues: gyro is mandatory
// with a short wait, accel is mandatory and must already be queued,
// mag is optional.
type Driver struct {
	clk       clock.Clock
	accel     *Queue
	gyro      *Queue
	mag       *Queue
	attitude  AttitudeSource
	home      HomeField
	pub       Publisher
	faults    *Faults
	watchdog  *Watchdog
	estimator *magbias.Estimator

	mu       sync.RWMutex
	params   calibration.Params
	period   time.Duration
	gyroWait time.Duration
	rate     float64
}

// DriverConfig carries the collaborators for NewDriver. All fields are
// required except Mag, which may be nil when no magnetometer exists.
type DriverConfig struct {
	Clock     clock.Clock
	Store     *config.Store
	Accel     *Queue
	Gyro      *Queue
	Mag       *Queue
	Attitude  AttitudeSource
	Home      HomeField
	Publisher Publisher
	Faults    *Faults
	Watchdog  *Watchdog
	Estimator *magbias.Estimator
}

// NewDriver wires the correction loop and subscribes it to settings
// reloads. Each reload swaps in a fresh calibration snapshot and
// resets the estimator so a calibration change never fights the stale
// adaptive bias.
func NewDriver(c DriverConfig) *Driver {
	d := &Driver{
		clk:       c.Clock,
		accel:     c.Accel,
		gyro:      c.Gyro,
		mag:       c.Mag,
		attitude:  c.Attitude,
		home:      c.Home,
		pub:       c.Publisher,
		faults:    c.Faults,
		watchdog:  c.Watchdog,
		estimator: c.Estimator,
	}
	d.apply(c.Store.Get(), false)
	c.Store.OnChange(func(s config.Settings) { d.apply(s, true) })
	return d
}

func (d *Driver) apply(s config.Settings, reload bool) {
	d.mu.Lock()
	d.params = calibration.Reload(s)
	d.period = time.Duration(s.CyclePeriod) * time.Millisecond
	d.gyroWait = time.Duration(s.GyroWait) * time.Millisecond
	d.rate = s.MagBiasNullingRate
	d.mu.Unlock()

	if reload {
		d.estimator.Reset()
		settingsReloadsTotal.Inc()
		log.Printf("pipeline: calibration snapshot swapped, adaptive mag bias reset")
	}
}

func (d *Driver) snapshot() (calibration.Params, time.Duration, time.Duration, float64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.params, d.period, d.gyroWait, d.rate
}

// Run executes correction cycles at the configured period until ctx is
// done. Period changes from a settings reload take effect on the next
// tick.
func (d *Driver) Run(ctx context.Context) error {
	_, period, _, _ := d.snapshot()
	log.Printf("pipeline: running at %v cycle period", period)

	ticker := d.clk.Ticker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		d.cycle()

		if _, p, _, _ := d.snapshot(); p != period {
			period = p
			ticker.Reset(period)
			log.Printf("pipeline: cycle period now %v", period)
		}
	}
}

// cycle performs one correction pass. Accel is corrected and published
// before gyro; mag is last and optional. A missing mandatory channel
// abandons the whole cycle.
func (d *Driver) cycle() {
	params, period, gyroWait, rate := d.snapshot()

	gyroRaw, ok := d.gyro.TryReceive(gyroWait)
	if !ok {
		d.skip("gyro", period)
		return
	}
	accelRaw, ok := d.accel.TryReceive(0)
	if !ok {
		d.skip("accel", period)
		return
	}
	d.faults.Clear()

	d.pub.PublishSample(imu.Accel, calibration.CorrectAccel(accelRaw, params))
	samplesTotal.WithLabelValues("accel").Inc()

	var drift imu.Vec3
	if params.GyroBiasCorrection {
		drift = d.attitude.GyroBias()
	}
	d.pub.PublishSample(imu.Gyro, calibration.CorrectGyro(gyroRaw, params, drift))
	samplesTotal.WithLabelValues("gyro").Inc()

	if magRaw, ok := d.tryMag(); ok {
		mag := calibration.CorrectMag(magRaw, params)
		if rate > 0 {
			if field, set := d.home.Field(); set {
				var changed bool
				mag, changed = d.estimator.Update(mag, d.attitude.Attitude(), field, rate)
				if changed {
					bias := d.estimator.Bias()
					d.pub.PublishMagBias(bias)
					magBiasGauge.WithLabelValues("x").Set(bias[0])
					magBiasGauge.WithLabelValues("y").Set(bias[1])
					magBiasGauge.WithLabelValues("z").Set(bias[2])
				}
			}
		}
		d.pub.PublishSample(imu.Mag, mag)
		samplesTotal.WithLabelValues("mag").Inc()
	}

	d.watchdog.Service()
	cyclesTotal.Inc()
}

func (d *Driver) tryMag() (imu.RawSample, bool) {
	if d.mag == nil {
		return imu.RawSample{}, false
	}
	return d.mag.TryReceive(0)
}

// skip abandons the cycle after a missing mandatory read. Liveness is
// still serviced, then the loop backs off one extra period before the
// fault is raised.
func (d *Driver) skip(kind string, period time.Duration) {
	d.watchdog.Service()
	d.clk.Sleep(period)
	d.faults.Report(kind)
}

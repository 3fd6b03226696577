// Package app assembles the pipeline's components into the runnable
// programs behind cmd/.
package app

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/sensor_pipeline/internal/attitude"
	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/display"
	"github.com/relabs-tech/sensor_pipeline/internal/env"
	"github.com/relabs-tech/sensor_pipeline/internal/homeref"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
	"github.com/relabs-tech/sensor_pipeline/internal/magbias"
	"github.com/relabs-tech/sensor_pipeline/internal/pipeline"
	"github.com/relabs-tech/sensor_pipeline/internal/publish"
	"github.com/relabs-tech/sensor_pipeline/internal/recorder"
	"github.com/relabs-tech/sensor_pipeline/internal/sensors"
)

// Gyro stillness detection for the adaptive drift estimate: window in
// samples, threshold in corrected gyro units.
const (
	stillWindow    = 200
	stillThreshold = 1.5
)

const watchdogTimeout = time.Second

// RunPipeline composes and runs the full pipeline from one settings
// file: source, correction loop, publishers, and the optional
// GPS/env/display/web side channels.
func RunPipeline(ctx context.Context, configPath string) error {
	store, err := config.NewStore(configPath)
	if err != nil {
		return err
	}
	s := store.Get()
	clk := clock.New()

	variant, err := magbias.ParseVariant(s.MagBiasVariant)
	if err != nil {
		return err
	}

	accelQ := pipeline.NewQueue(imu.Accel, s.QueueDepth, clk)
	gyroQ := pipeline.NewQueue(imu.Gyro, s.QueueDepth, clk)
	magQ := pipeline.NewQueue(imu.Mag, s.QueueDepth, clk)

	tracker := attitude.NewTracker(stillWindow, stillThreshold)
	home := homeref.NewStatic(s)
	store.OnChange(home.Apply)

	latest := publish.NewLatest()
	sinks := []publish.Sink{latest, publish.Observer{OnSample: tracker.ObserveCorrected}}

	faults := pipeline.NewFaults()
	watchdog := pipeline.NewWatchdog(clk, watchdogTimeout)

	var rec *recorder.Recorder
	if s.RecordPath != "" {
		rec, err = recorder.Open(s.RecordPath, clk)
		if err != nil {
			return err
		}
		defer rec.Close()
		faults.OnRaise(rec.RecordFault)
		sinks = append(sinks, rec)
	}

	var broker *publish.MQTT
	if s.MQTTBroker != "" {
		broker, err = publish.NewMQTT(s)
		if err != nil {
			return err
		}
		defer broker.Close()
		sinks = append(sinks, broker)
		faults.OnRaise(func(kind string) {
			broker.PublishFault(publish.Fault{Active: true, Kind: kind})
		})
		faults.OnClear(func() {
			broker.PublishFault(publish.Fault{})
		})
	}

	driver := pipeline.NewDriver(pipeline.DriverConfig{
		Clock:     clk,
		Store:     store,
		Accel:     accelQ,
		Gyro:      gyroQ,
		Mag:       magQ,
		Attitude:  tracker,
		Home:      home,
		Publisher: publish.NewFanout(sinks...),
		Faults:    faults,
		Watchdog:  watchdog,
		Estimator: magbias.New(variant),
	})

	source, err := sensors.NewSource(s, clk, accelQ, gyroQ, magQ)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return store.Watch(ctx) })
	g.Go(func() error { return source.Run(ctx) })
	g.Go(func() error { return driver.Run(ctx) })

	if s.GPSSerialPort != "" {
		gps := homeref.NewReceiver(home, s, func(f homeref.Fix) {
			latest.SetFix(f)
			if broker != nil {
				broker.PublishFix(f)
			}
		})
		g.Go(func() error { return gps.Run(ctx) })
	}

	if s.EnvSPIDevice != "" {
		sampler, err := sensors.NewEnvSampler(s, clk, func(e env.Sample) {
			latest.SetEnv(e)
			if broker != nil {
				broker.PublishEnv(e)
			}
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return sampler.Run(ctx) })
	}

	if s.DisplayEnabled {
		disp, err := display.New(s, clk, tracker, latest)
		if err != nil {
			return err
		}
		g.Go(func() error { return disp.Run(ctx) })
	}

	if s.WebListenAddr != "" {
		srv := NewServer(s, latest, tracker, watchdog, faults)
		g.Go(func() error { return srv.Run(ctx) })
	}

	return g.Wait()
}

package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/sensor_pipeline/internal/attitude"
	"github.com/relabs-tech/sensor_pipeline/internal/config"
	"github.com/relabs-tech/sensor_pipeline/internal/homeref"
	"github.com/relabs-tech/sensor_pipeline/internal/imu"
	"github.com/relabs-tech/sensor_pipeline/internal/magbias"
	"github.com/relabs-tech/sensor_pipeline/internal/pipeline"
	"github.com/relabs-tech/sensor_pipeline/internal/publish"
	"github.com/relabs-tech/sensor_pipeline/internal/sensors"
)

// RunStandalone drives the synthetic source through the full correction
// loop and prints the tracked attitude, no hardware or broker needed.
// An empty configPath runs on bench defaults with the estimator turned
// on so the printed bias converges toward the generator's hard iron.
func RunStandalone(ctx context.Context, configPath string) error {
	var store *config.Store
	if configPath != "" {
		var err error
		store, err = config.NewStore(configPath)
		if err != nil {
			return err
		}
	} else {
		s := config.Defaults()
		s.MagBiasNullingRate = 0.005
		s.HomeSet = true
		s.HomeDeclinationDeg = 0
		s.HomeInclinationDeg = 60
		s.HomeFieldStrength = 480
		store = config.NewStaticStore(s)
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
	latest := publish.NewLatest()
	// One sample line per channel per console interval keeps the
	// stdout stream readable at cycle rate.
	sampleLog := publish.NewLog(os.Stdout, s.ConsoleLogInterval/s.SampleInterval)

	driver := pipeline.NewDriver(pipeline.DriverConfig{
		Clock:     clk,
		Store:     store,
		Accel:     accelQ,
		Gyro:      gyroQ,
		Mag:       magQ,
		Attitude:  tracker,
		Home:      home,
		Publisher: publish.NewFanout(latest, sampleLog, publish.Observer{OnSample: tracker.ObserveCorrected}),
		Faults:    pipeline.NewFaults(),
		Watchdog:  pipeline.NewWatchdog(clk, watchdogTimeout),
		Estimator: magbias.New(variant),
	})
	source := sensors.NewSynthetic(s, clk, accelQ, gyroQ, magQ)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return source.Run(ctx) })
	g.Go(func() error { return driver.Run(ctx) })
	g.Go(func() error {
		ticker := clk.Ticker(time.Duration(s.ConsoleLogInterval) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			roll, pitch, yaw := tracker.RPY()
			line := fmt.Sprintf("ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f", roll, pitch, yaw)
			if bias, ok := latest.MagBias(); ok {
				line += fmt.Sprintf("  BIAS=%6.2f %6.2f %6.2f", bias[0], bias[1], bias[2])
			}
			fmt.Println(line)
		}
	})

	return g.Wait()
}

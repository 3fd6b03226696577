package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensor_pipeline_cycles_total",
		Help: "Correction cycles completed with both mandatory channels read.",
	})

	cycleSkipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_pipeline_cycle_skips_total",
		Help: "Cycles skipped because a mandatory channel was unavailable.",
	}, []string{"channel"})

	samplesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_pipeline_samples_total",
		Help: "Corrected samples published, by channel.",
	}, []string{"channel"})

	queueDropsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_pipeline_queue_drops_total",
		Help: "Raw samples evicted from a full channel queue.",
	}, []string{"channel"})

	magBiasGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sensor_pipeline_mag_bias",
		Help: "Adaptive magnetometer bias estimate, by axis.",
	}, []string{"axis"})

	faultGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensor_pipeline_fault",
		Help: "1 while a mandatory channel fault is active.",
	})

	settingsReloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensor_pipeline_settings_reloads_total",
		Help: "Calibration snapshot swaps applied by the driver.",
	})
)

func init() {
	prometheus.MustRegister(
		cyclesTotal,
		cycleSkipsTotal,
		samplesTotal,
		queueDropsTotal,
		magBiasGauge,
		faultGauge,
		settingsReloadsTotal,
	)
}

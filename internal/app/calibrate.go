package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

const gravity = 9.80665

const (
	gyroSamples = 100
	poseSamples = 50
	magSamples  = 200
)

// CalibrationReader returns one raw accel/gyro/mag frame in sensor
// counts.
type CalibrationReader func() (accel, gyro, mag imu.Vec3, err error)

// CalibrationResult is the wizard's report. Scale and bias follow the
// corrector's convention: corrected = raw*scale - bias.
type CalibrationResult struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	GyroBias         imu.Vec3 `json:"gyro_bias"`
	GyroStaticStdDev float64  `json:"gyro_static_stddev"`
	GyroConfidence   float64  `json:"gyro_confidence"`

	AccelScale      imu.Vec3 `json:"accel_scale"`
	AccelBias       imu.Vec3 `json:"accel_bias"`
	AccelAvgStdDev  float64  `json:"accel_avg_stddev"`
	AccelConfidence float64  `json:"accel_confidence"`

	MagScale       imu.Vec3 `json:"mag_scale"`
	MagBias        imu.Vec3 `json:"mag_bias"`
	MagRange       imu.Vec3 `json:"mag_range"`
	MagConfidence  float64  `json:"mag_confidence"`
	MagSampleCount int      `json:"mag_sample_count"`

	TotalSamples int `json:"total_samples"`
}

// Calibrator walks the operator through the gyro, accel, and mag
// phases against a live sensor.
type Calibrator struct {
	read    CalibrationReader
	clk     clock.Clock
	out     io.Writer
	confirm func(prompt string) error
	pace    time.Duration
}

// NewCalibrator builds a wizard. confirm blocks until the operator has
// posed the board as prompted.
func NewCalibrator(read CalibrationReader, clk clock.Clock, out io.Writer, confirm func(string) error) *Calibrator {
	return &Calibrator{
		read:    read,
		clk:     clk,
		out:     out,
		confirm: confirm,
		pace:    100 * time.Millisecond,
	}
}

// Run executes all three phases and returns the measured calibration.
func (c *Calibrator) Run() (*CalibrationResult, error) {
	res := &CalibrationResult{
		Version:    1,
		Timestamp:  c.clk.Now(),
		AccelScale: imu.Vec3{1, 1, 1},
		MagScale:   imu.Vec3{1, 1, 1},
	}

	if err := c.calibrateGyro(res); err != nil {
		return nil, err
	}
	if err := c.calibrateAccel(res); err != nil {
		return nil, err
	}
	if err := c.calibrateMag(res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Calibrator) calibrateGyro(res *CalibrationResult) error {
	if err := c.confirm("place the board flat and keep it completely still"); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "calibration: sampling gyro at rest")

	samples, err := c.collect(func(a, g, m imu.Vec3) imu.Vec3 { return g }, gyroSamples)
	if err != nil {
		return err
	}
	xs, ys, zs := columns(samples)

	res.GyroBias = imu.Vec3{stat.Mean(xs, nil), stat.Mean(ys, nil), stat.Mean(zs, nil)}
	res.GyroStaticStdDev = (stat.StdDev(xs, nil) + stat.StdDev(ys, nil) + stat.StdDev(zs, nil)) / 3
	res.GyroConfidence = 100.0 / (1.0 + res.GyroStaticStdDev*1000.0)
	res.TotalSamples += len(samples)
	return nil
}

func (c *Calibrator) calibrateAccel(res *CalibrationResult) error {
	poses := []string{
		"place the board flat, +Z up",
		"place the board upside down, +Z down",
		"stand the board on its left edge, +X up",
		"stand the board on its right edge, +X down",
		"stand the board on its rear edge, +Y up",
		"stand the board on its front edge, +Y down",
	}

	means := make([]imu.Vec3, len(poses))
	for i, prompt := range poses {
		if err := c.confirm(prompt); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "calibration: sampling accel pose %d/%d\n", i+1, len(poses))

		samples, err := c.collect(func(a, g, m imu.Vec3) imu.Vec3 { return a }, poseSamples)
		if err != nil {
			return err
		}
		xs, ys, zs := columns(samples)
		means[i] = imu.Vec3{stat.Mean(xs, nil), stat.Mean(ys, nil), stat.Mean(zs, nil)}

		sd := (stat.StdDev(xs, nil) + stat.StdDev(ys, nil) + stat.StdDev(zs, nil)) / 3
		res.AccelAvgStdDev = (res.AccelAvgStdDev*float64(i) + sd) / float64(i+1)
		res.TotalSamples += len(samples)
	}

	// Opposing pose pairs give scale and bias per axis: with
	// corrected = raw*s - b, the pair solves to s = 2g/(up-down) and
	// b = s*(up+down)/2.
	pairs := []struct {
		axis     int
		up, down int
	}{
		{2, 0, 1},
		{0, 2, 3},
		{1, 4, 5},
	}
	for _, p := range pairs {
		up, down := means[p.up][p.axis], means[p.down][p.axis]
		if up == down {
			return fmt.Errorf("accel axis %d saw no difference between opposing poses", p.axis)
		}
		s := 2 * gravity / (up - down)
		res.AccelScale[p.axis] = s
		res.AccelBias[p.axis] = s * (up + down) / 2
	}

	res.AccelConfidence = 100.0 / (1.0 + res.AccelAvgStdDev*100.0)
	return nil
}

func (c *Calibrator) calibrateMag(res *CalibrationResult) error {
	if err := c.confirm("rotate the board slowly through all orientations until sampling finishes"); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "calibration: sampling mag while rotating")

	samples, err := c.collect(func(a, g, m imu.Vec3) imu.Vec3 { return m }, magSamples)
	if err != nil {
		return err
	}

	minV := imu.Vec3{samples[0][0], samples[0][1], samples[0][2]}
	maxV := minV
	for _, s := range samples {
		for i := 0; i < 3; i++ {
			if s[i] < minV[i] {
				minV[i] = s[i]
			}
			if s[i] > maxV[i] {
				maxV[i] = s[i]
			}
		}
	}

	var ranges imu.Vec3
	for i := 0; i < 3; i++ {
		ranges[i] = maxV[i] - minV[i]
		if ranges[i] <= 0 {
			return fmt.Errorf("mag axis %d saw no variation, rotate through more orientations", i)
		}
	}
	avgRange := (ranges[0] + ranges[1] + ranges[2]) / 3

	// Hard iron is the ellipsoid center, soft iron a diagonal
	// approximation from the per-axis ranges. The center is scaled so
	// the corrector can subtract it after applying the scale.
	for i := 0; i < 3; i++ {
		res.MagScale[i] = avgRange / ranges[i]
		res.MagBias[i] = res.MagScale[i] * (maxV[i] + minV[i]) / 2
	}
	res.MagRange = ranges
	res.MagSampleCount = len(samples)
	res.TotalSamples += len(samples)

	minRange := ranges[0]
	maxRange := ranges[0]
	for i := 1; i < 3; i++ {
		if ranges[i] < minRange {
			minRange = ranges[i]
		}
		if ranges[i] > maxRange {
			maxRange = ranges[i]
		}
	}
	res.MagConfidence = minRange / maxRange * 100.0
	return nil
}

func (c *Calibrator) collect(pick func(a, g, m imu.Vec3) imu.Vec3, n int) ([]imu.Vec3, error) {
	samples := make([]imu.Vec3, 0, n)
	for i := 0; i < n; i++ {
		a, g, m, err := c.read()
		if err != nil {
			return nil, err
		}
		samples = append(samples, pick(a, g, m))
		if c.pace > 0 {
			c.clk.Sleep(c.pace)
		}
	}
	return samples, nil
}

func columns(samples []imu.Vec3) (xs, ys, zs []float64) {
	xs = make([]float64, len(samples))
	ys = make([]float64, len(samples))
	zs = make([]float64, len(samples))
	for i, s := range samples {
		xs[i], ys[i], zs[i] = s[0], s[1], s[2]
	}
	return xs, ys, zs
}

// Snippet renders the settings lines for the measured calibration,
// ready to paste into the config file.
func (r *CalibrationResult) Snippet() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# calibration %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "ACCEL_SCALE=%g,%g,%g\n", r.AccelScale[0], r.AccelScale[1], r.AccelScale[2])
	fmt.Fprintf(&b, "ACCEL_BIAS=%g,%g,%g\n", r.AccelBias[0], r.AccelBias[1], r.AccelBias[2])
	fmt.Fprintf(&b, "MAG_SCALE=%g,%g,%g\n", r.MagScale[0], r.MagScale[1], r.MagScale[2])
	fmt.Fprintf(&b, "MAG_BIAS=%g,%g,%g\n", r.MagBias[0], r.MagBias[1], r.MagBias[2])
	return b.String()
}

// WriteReport saves the full JSON report into dir and returns the path.
func (r *CalibrationResult) WriteReport(dir string) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal calibration results: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("calibration_%d.json", r.Timestamp.Unix()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write calibration file: %w", err)
	}
	return path, nil
}

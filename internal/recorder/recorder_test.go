package recorder

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

func TestRecorderLogsEventsAcrossClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.db")

	r, err := Open(path, clock.New())
	require.NoError(t, err)
	runID := r.RunID()

	r.PublishSample(imu.Accel, imu.CorrectedSample{X: 1, Y: 2, Z: 3, Temperature: 25})
	r.PublishSample(imu.Gyro, imu.CorrectedSample{X: -0.5, Y: 0.25, Z: 0})
	r.PublishMagBias(imu.Vec3{0.5, -0.25, 0.125})
	r.RecordFault("gyro")
	require.NoError(t, r.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM samples WHERE run_id = ?`, runID).Scan(&n))
	assert.Equal(t, 2, n)

	var x, y, z, temp float64
	require.NoError(t, db.QueryRow(
		`SELECT x, y, z, temp_c FROM samples WHERE run_id = ? AND channel = 'accel'`, runID,
	).Scan(&x, &y, &z, &temp))
	assert.Equal(t, []float64{1, 2, 3, 25}, []float64{x, y, z, temp})

	require.NoError(t, db.QueryRow(`SELECT x, y, z FROM mag_bias WHERE run_id = ?`, runID).Scan(&x, &y, &z))
	assert.Equal(t, []float64{0.5, -0.25, 0.125}, []float64{x, y, z})

	var kind string
	require.NoError(t, db.QueryRow(`SELECT kind FROM faults WHERE run_id = ?`, runID).Scan(&kind))
	assert.Equal(t, "gyro", kind)
}

func TestRecorderFlushesOnTimer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.db")
	mock := clock.NewMock()

	r, err := Open(path, mock)
	require.NoError(t, err)
	defer r.Close()

	_, ok, err := r.LastBias()
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		r.PublishSample(imu.Accel, imu.CorrectedSample{X: float64(i)})
	}
	r.PublishMagBias(imu.Vec3{1, 0, 0})
	r.PublishMagBias(imu.Vec3{2, -1, 0})

	// Let the writer arm its ticker before advancing the clock.
	time.Sleep(10 * time.Millisecond)
	mock.Add(time.Second)

	require.Eventually(t, func() bool {
		n, err := r.SampleCount("accel")
		return err == nil && n == 3
	}, 2*time.Second, 10*time.Millisecond)

	bias, ok, err := r.LastBias()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, imu.Vec3{2, -1, 0}, bias)
}

func TestRecorderRunsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.db")

	first, err := Open(path, clock.New())
	require.NoError(t, err)
	first.PublishSample(imu.Accel, imu.CorrectedSample{X: 1})
	require.NoError(t, first.Close())

	second, err := Open(path, clock.New())
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID(), second.RunID())

	n, err := second.SampleCount("accel")
	require.NoError(t, err)
	assert.Zero(t, n)

	second.PublishSample(imu.Accel, imu.CorrectedSample{X: 2})
	require.NoError(t, second.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var runs, samples int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&samples))
	assert.Equal(t, 2, runs)
	assert.Equal(t, 2, samples)
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.db")
	r, err := Open(path, clock.New())
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

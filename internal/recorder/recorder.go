// Package recorder keeps a flight log in a local SQLite file. Every
// published sample, bias update, and fault lands in the database keyed
// by a per-boot run ID, so a session can be replayed or inspected
// after the fact with any sqlite client.
package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/sensor_pipeline/internal/imu"
)

const (
	flushBatch    = 64
	flushInterval = 500 * time.Millisecond
	queueCap      = 1024
)

type eventKind int

const (
	evSample eventKind = iota
	evBias
	evFault
)

type event struct {
	kind    eventKind
	channel string
	x, y, z float64
	temp    float64
	detail  string
	at      time.Time
}

// Recorder batches events through a single writer goroutine so the
// correction cycle never waits on disk.
type Recorder struct {
	*sql.DB
	runID string
	clk   clock.Clock

	mu      sync.RWMutex
	closed  bool
	ch      chan event
	done    chan struct{}
	dropped atomic.Uint64
}

// Open creates or opens the database at path and starts a new run.
func Open(path string, clk clock.Clock) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id        TEXT PRIMARY KEY,
			started_unix  BIGINT
		);
		CREATE TABLE IF NOT EXISTS samples (
			run_id        TEXT,
			channel       TEXT,
			x             DOUBLE,
			y             DOUBLE,
			z             DOUBLE,
			temp_c        DOUBLE,
			ts_unix_nanos BIGINT
		);
		CREATE TABLE IF NOT EXISTS mag_bias (
			run_id        TEXT,
			x             DOUBLE,
			y             DOUBLE,
			z             DOUBLE,
			ts_unix_nanos BIGINT
		);
		CREATE TABLE IF NOT EXISTS faults (
			run_id        TEXT,
			kind          TEXT,
			ts_unix_nanos BIGINT
		);
		CREATE INDEX IF NOT EXISTS idx_samples_run_chan ON samples(run_id, channel);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	r := &Recorder{
		DB:    db,
		runID: uuid.New().String(),
		clk:   clk,
		ch:    make(chan event, queueCap),
		done:  make(chan struct{}),
	}
	if _, err := db.Exec(`INSERT INTO runs (run_id, started_unix) VALUES (?, ?)`, r.runID, clk.Now().Unix()); err != nil {
		db.Close()
		return nil, fmt.Errorf("insert run: %w", err)
	}

	log.Printf("recorder: logging to %s, run %s", path, r.runID)
	go r.writer()
	return r, nil
}

// RunID identifies the current session's rows.
func (r *Recorder) RunID() string { return r.runID }

// PublishSample queues a corrected sample for the flight log.
func (r *Recorder) PublishSample(ch imu.Channel, s imu.CorrectedSample) {
	r.enqueue(event{kind: evSample, channel: ch.String(), x: s.X, y: s.Y, z: s.Z, temp: s.Temperature, at: r.clk.Now()})
}

// PublishMagBias queues an adaptive bias update.
func (r *Recorder) PublishMagBias(bias imu.Vec3) {
	r.enqueue(event{kind: evBias, x: bias[0], y: bias[1], z: bias[2], at: r.clk.Now()})
}

// RecordFault queues a channel fault.
func (r *Recorder) RecordFault(kind string) {
	r.enqueue(event{kind: evFault, detail: kind, at: r.clk.Now()})
}

func (r *Recorder) enqueue(ev event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- ev:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) writer() {
	defer close(r.done)

	ticker := r.clk.Ticker(flushInterval)
	defer ticker.Stop()

	batch := make([]event, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.flush(batch); err != nil {
			log.Printf("recorder: flush failed: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (r *Recorder) flush(batch []event) error {
	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("begin flush tx: %w", err)
	}
	for _, ev := range batch {
		nanos := ev.at.UnixNano()
		switch ev.kind {
		case evSample:
			_, err = tx.Exec(`INSERT INTO samples (run_id, channel, x, y, z, temp_c, ts_unix_nanos) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.runID, ev.channel, ev.x, ev.y, ev.z, ev.temp, nanos)
		case evBias:
			_, err = tx.Exec(`INSERT INTO mag_bias (run_id, x, y, z, ts_unix_nanos) VALUES (?, ?, ?, ?, ?)`,
				r.runID, ev.x, ev.y, ev.z, nanos)
		case evFault:
			_, err = tx.Exec(`INSERT INTO faults (run_id, kind, ts_unix_nanos) VALUES (?, ?, ?)`,
				r.runID, ev.detail, nanos)
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush tx: %w", err)
	}
	return nil
}

// SampleCount reports how many samples this run has logged on a channel.
func (r *Recorder) SampleCount(channel string) (int, error) {
	var n int
	err := r.QueryRow(`SELECT COUNT(*) FROM samples WHERE run_id = ? AND channel = ?`, r.runID, channel).Scan(&n)
	return n, err
}

// LastBias returns the most recent adaptive bias row of this run.
func (r *Recorder) LastBias() (imu.Vec3, bool, error) {
	var v imu.Vec3
	err := r.QueryRow(`SELECT x, y, z FROM mag_bias WHERE run_id = ? ORDER BY ts_unix_nanos DESC, rowid DESC LIMIT 1`, r.runID).
		Scan(&v[0], &v[1], &v[2])
	if err == sql.ErrNoRows {
		return imu.Vec3{}, false, nil
	}
	if err != nil {
		return imu.Vec3{}, false, err
	}
	return v, true, nil
}

// Close drains the queue, flushes, and closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
	if n := r.dropped.Load(); n > 0 {
		log.Printf("recorder: dropped %d events under backpressure", n)
	}
	return r.DB.Close()
}

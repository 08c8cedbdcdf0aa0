// Package audit keeps a SQLite record of verified shots for offline review
// of disputed hits.
//
// Writes happen on a single writer goroutine fed by a bounded queue; when
// the queue is full records are dropped rather than stalling the
// simulation.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/automoto/rewind/server/lagcomp"
	_ "modernc.org/sqlite"
)

// Log is a lagcomp.Sink backed by SQLite.
type Log struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against Close closing it.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64

	recordConsistent bool
}

var _ lagcomp.Sink = (*Log)(nil)

type req struct {
	rec  lagcomp.Reconciliation
	done chan struct{} // flush marker when non-nil
}

// Row is one stored shot.
type Row struct {
	ShotID         string
	ServerTime     float64
	Shooter        uint
	Outcome        string
	Target         uint
	PredictionTime float64
	Discrepancy    float64
	Damage         bool
}

// Open creates or opens the audit database at path. Confirmed hits and
// misses are stored only when recordConsistent is set.
func Open(path string, queueSize int, recordConsistent bool) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if queueSize <= 0 {
		queueSize = 1024
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	l := &Log{
		db:               db,
		ch:               make(chan req, queueSize),
		recordConsistent: recordConsistent,
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.loop()
	}()
	return l, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS shots (
			shot_id TEXT PRIMARY KEY,
			server_time REAL NOT NULL,
			shooter INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			target INTEGER NOT NULL,
			server_victim INTEGER NOT NULL,
			claimed_victim INTEGER NOT NULL,
			prediction_time REAL NOT NULL,
			server_prediction_time REAL NOT NULL,
			claimed_prediction_time REAL NOT NULL,
			target_time REAL NOT NULL,
			discrepancy REAL NOT NULL,
			claimed_sample_time REAL NOT NULL,
			start_x REAL, start_y REAL, start_z REAL,
			end_x REAL, end_y REAL, end_z REAL,
			rewound_x REAL, rewound_y REAL, rewound_z REAL,
			damage INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS shots_shooter ON shots(shooter, server_time);`,
		`CREATE INDEX IF NOT EXISTS shots_outcome ON shots(outcome);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Publish queues rec. It never blocks.
func (l *Log) Publish(rec lagcomp.Reconciliation) {
	if l == nil || (rec.Consistent() && !l.recordConsistent) {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- req{rec: rec}:
	default:
		if l.dropped.Add(1)%100 == 1 {
			log.Printf("[audit] queue full, dropped %d records so far", l.dropped.Load())
		}
	}
}

// Dropped returns how many records were lost to a full queue.
func (l *Log) Dropped() uint64 {
	return l.dropped.Load()
}

// Flush waits until everything queued before the call is committed.
func (l *Log) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if queued, err := l.send(ctx, req{done: done}); !queued {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send blocks until r is queued. Nothing is queued once the log is closed.
func (l *Log) send(ctx context.Context, r req) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false, nil
	}
	select {
	case l.ch <- r:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close drains the queue and closes the database.
func (l *Log) Close() error {
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.ch)
		l.mu.Unlock()
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}

const insertShot = `INSERT OR REPLACE INTO shots(
	shot_id, server_time, shooter, outcome, target, server_victim, claimed_victim,
	prediction_time, server_prediction_time, claimed_prediction_time, target_time,
	discrepancy, claimed_sample_time,
	start_x, start_y, start_z, end_x, end_y, end_z, rewound_x, rewound_y, rewound_z,
	damage) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

func (l *Log) loop() {
	ctx := context.Background()
	const commitEvery = 256

	var (
		tx      *sql.Tx
		opCount int
	)
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			log.Printf("[audit] commit: %v", err)
		}
		tx = nil
		opCount = 0
	}

	for r := range l.ch {
		if r.done != nil {
			commit()
			close(r.done)
			continue
		}
		if tx == nil {
			txx, err := l.db.BeginTx(ctx, nil)
			if err != nil {
				log.Printf("[audit] begin: %v", err)
				continue
			}
			tx = txx
		}
		if err := write(ctx, tx, r.rec); err != nil {
			log.Printf("[audit] insert shot %s: %v", r.rec.ShotID, err)
		}
		opCount++
		if opCount >= commitEvery || len(l.ch) == 0 {
			commit()
		}
	}
	commit()
}

func write(ctx context.Context, tx *sql.Tx, rec lagcomp.Reconciliation) error {
	damage := 0
	if rec.ApplyDamage {
		damage = 1
	}
	p := rec.RewoundPose.Position
	_, err := tx.ExecContext(ctx, insertShot,
		rec.ShotID.String(), rec.ServerTime, int64(rec.Shooter), rec.Kind.String(),
		int64(rec.Target), int64(rec.ServerVictim), int64(rec.ClaimedVictim),
		rec.PredictionTime, rec.ServerPredictionTime, rec.ClaimedPredictionTime, rec.TargetTime,
		rec.ClaimDiscrepancy, rec.ClaimedSampleTime,
		rec.Start.X(), rec.Start.Y(), rec.Start.Z(),
		rec.End.X(), rec.End.Y(), rec.End.Z(),
		p.X(), p.Y(), p.Z(),
		damage,
	)
	return err
}

// Recent returns up to limit shots, newest first. A non-zero shooter keeps
// only that shooter's shots.
func (l *Log) Recent(ctx context.Context, shooter lagcomp.EntityID, limit int) ([]Row, error) {
	q := `SELECT shot_id, server_time, shooter, outcome, target, prediction_time, discrepancy, damage
		FROM shots WHERE (? = 0 OR shooter = ?) ORDER BY server_time DESC, rowid DESC LIMIT ?`
	rows, err := l.db.QueryContext(ctx, q, int64(shooter), int64(shooter), limit)
	if err != nil {
		return nil, fmt.Errorf("query shots: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var shooterID, target int64
		var damage int
		if err := rows.Scan(&r.ShotID, &r.ServerTime, &shooterID, &r.Outcome, &target, &r.PredictionTime, &r.Discrepancy, &damage); err != nil {
			return nil, fmt.Errorf("scan shot: %w", err)
		}
		r.Shooter, r.Target, r.Damage = uint(shooterID), uint(target), damage != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

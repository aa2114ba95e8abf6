package sink

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

const createDetections = `CREATE TABLE IF NOT EXISTS detections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	cycle INTEGER NOT NULL,
	record INTEGER NOT NULL,
	class_id INTEGER NOT NULL,
	label TEXT NOT NULL,
	known BOOLEAN NOT NULL,
	score REAL NOT NULL,
	x_min REAL NOT NULL,
	y_min REAL NOT NULL,
	x_max REAL NOT NULL,
	y_max REAL NOT NULL,
	detected_at DATETIME NOT NULL
)`

const insertDetection = `INSERT INTO detections
	(run_id, cycle, record, class_id, label, known, score, x_min, y_min, x_max, y_max, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQL stores batches in a detections table, one transaction per batch.
type SQL struct {
	db *sql.DB
}

// NewSQL wraps an open database. Call EnsureSchema before the first Write.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

// EnsureSchema creates the detections table if needed.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createDetections); err != nil {
		return errors.Wrap(err, "sink: create detections table")
	}
	return nil
}

// Write implements Sink. Either every record of the batch is committed or
// none is.
func (s *SQL) Write(ctx context.Context, b Batch) (err error) {
	defer func() {
		if err != nil {
			err = errors.Mark(err, ErrWrite)
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sink: begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertDetection)
	if err != nil {
		return errors.Wrap(err, "sink: prepare insert")
	}
	defer stmt.Close()

	for _, r := range b.Records {
		d := r.Detection
		if _, err = stmt.ExecContext(ctx,
			b.RunID, int64(b.Cycle), d.Index, d.ClassID, r.Label.String(), r.Label.Known,
			d.Score, d.Box[0], d.Box[1], d.Box[2], d.Box[3], b.Time,
		); err != nil {
			return errors.Wrapf(err, "sink: insert record %d", d.Index)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "sink: commit")
	}
	return nil
}

// Package db is the sqlite ledger of sync runs and per-file outcomes.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chmdznr/pcsync/pkg/models"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// Path returns the ledger file of a track.
func Path(track string) string {
	return track + ".db"
}

// New opens (and creates if needed) the ledger at path.
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open ledger", goerr.V("path", path))
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, goerr.Wrap(err, "failed to initialize ledger", goerr.V("path", path))
	}

	return db, nil
}

// schemaVersion is stored in user_version. Ledgers older than 2 kept one
// files row per flag and are rebuilt.
const schemaVersion = 2

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	if version < schemaVersion {
		if _, err := db.Exec(`DROP TABLE IF EXISTS files`); err != nil {
			return err
		}
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			track TEXT NOT NULL,
			start_index INTEGER,
			passes INTEGER DEFAULT 0,
			status TEXT,
			started_at DATETIME,
			finished_at DATETIME
		);
		CREATE TABLE IF NOT EXISTS passes (
			run_id TEXT,
			pass INTEGER,
			generation INTEGER,
			start_index INTEGER,
			completed BOOLEAN,
			failed_at INTEGER,
			transferred INTEGER,
			bytes INTEGER,
			recorded_at DATETIME,
			PRIMARY KEY (run_id, pass)
		);
		CREATE TABLE IF NOT EXISTS files (
			track TEXT,
			file_key TEXT,
			submission_id TEXT,
			flag TEXT,
			path TEXT,
			status TEXT,
			size INTEGER,
			error TEXT,
			run_id TEXT,
			updated_at DATETIME,
			staged_at DATETIME,
			PRIMARY KEY (track, file_key)
		);
		CREATE INDEX IF NOT EXISTS idx_files_status ON files(track, status);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(track, started_at);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf(`PRAGMA user_version=%d`, schemaVersion))
	return err
}

// StartRun records the beginning of a sync run.
func (db *DB) StartRun(track string, start int) (*models.Run, error) {
	run := &models.Run{
		ID:         uuid.NewString(),
		Track:      track,
		StartIndex: start,
		Status:     RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := db.Exec(`
		INSERT INTO runs (id, track, start_index, passes, status, started_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, run.ID, run.Track, run.StartIndex, run.Status, run.StartedAt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to record run", goerr.V("track", track))
	}
	return run, nil
}

// RecordPass stores the result of one engine pass.
func (db *DB) RecordPass(runID string, pass int, snap *models.Snapshot, res *models.PassResult) error {
	failedAt := sql.NullInt64{}
	if !res.Completed {
		failedAt = sql.NullInt64{Int64: int64(res.FailedAt), Valid: true}
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO passes (run_id, pass, generation, start_index, completed, failed_at, transferred, bytes, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, pass, snap.Generation, res.Start, res.Completed, failedAt,
		res.Count(models.OutcomeTransferred), res.TransferredBytes(), time.Now().UTC())
	if err != nil {
		return goerr.Wrap(err, "failed to record pass", goerr.V("run", runID), goerr.V("pass", pass))
	}

	_, err = tx.Exec(`UPDATE runs SET passes = ? WHERE id = ?`, pass, runID)
	if err != nil {
		return goerr.Wrap(err, "failed to update run", goerr.V("run", runID))
	}

	return tx.Commit()
}

// FinishRun marks a run as ended with status.
func (db *DB) FinishRun(runID, status string) error {
	_, err := db.Exec(`
		UPDATE runs
		SET status = ?, finished_at = ?
		WHERE id = ?
	`, status, time.Now().UTC(), runID)
	if err != nil {
		return goerr.Wrap(err, "failed to finish run", goerr.V("run", runID))
	}
	return nil
}

// RecordOutcome stores the latest outcome of a (submission, file type) pair.
func (db *DB) RecordOutcome(track, runID string, o models.Outcome) error {
	var errText sql.NullString
	if o.Err != nil {
		errText = sql.NullString{String: o.Err.Error(), Valid: true}
	}
	key := models.FileKey(o.Spec, o.SubmissionID)
	_, err := db.Exec(`
		INSERT INTO files (track, file_key, submission_id, flag, path, status, size, error, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track, file_key) DO UPDATE SET
			flag = excluded.flag,
			path = excluded.path,
			status = excluded.status,
			size = CASE WHEN excluded.status IN ('transferred', 'already-present') THEN excluded.size ELSE files.size END,
			error = excluded.error,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at,
			staged_at = CASE WHEN excluded.status = 'transferred' THEN NULL ELSE files.staged_at END
	`, track, key, o.SubmissionID, o.Spec.Flag, o.Path, string(o.Kind), o.Bytes, errText, runID, time.Now().UTC())
	if err != nil {
		return goerr.Wrap(err, "failed to record outcome",
			goerr.V("track", track), goerr.V("id", o.SubmissionID), goerr.V("file", key))
	}
	return nil
}

// MarkStaged records that the file of spec for a submission was copied to
// the archive bucket.
func (db *DB) MarkStaged(track string, spec models.FileTypeSpec, submissionID, path string, size int64) error {
	now := time.Now().UTC()
	key := models.FileKey(spec, submissionID)
	_, err := db.Exec(`
		INSERT INTO files (track, file_key, submission_id, flag, path, status, size, updated_at, staged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track, file_key) DO UPDATE SET
			size = excluded.size,
			staged_at = excluded.staged_at
	`, track, key, submissionID, spec.Flag, path, string(models.OutcomeAlreadyPresent), size, now, now)
	if err != nil {
		return goerr.Wrap(err, "failed to mark staged", goerr.V("id", submissionID), goerr.V("file", key))
	}
	return nil
}

// IsStaged reports whether a file was staged since it was last downloaded.
func (db *DB) IsStaged(track string, spec models.FileTypeSpec, submissionID string) (bool, error) {
	var staged sql.NullTime
	key := models.FileKey(spec, submissionID)
	err := db.QueryRow(`
		SELECT staged_at FROM files
		WHERE track = ? AND file_key = ?
	`, track, key).Scan(&staged)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to query file", goerr.V("file", key))
	}
	return staged.Valid, nil
}

// GetStats returns per-status statistics of a track
func (db *DB) GetStats(track string) (*models.Stats, error) {
	var stats models.Stats
	err := db.QueryRow(`
		SELECT
			COUNT(*) as total_files,
			COALESCE(SUM(size), 0) as total_size,
			COUNT(CASE WHEN status = 'transferred' THEN 1 END) as transferred_files,
			COALESCE(SUM(CASE WHEN status = 'transferred' THEN size ELSE 0 END), 0) as transferred_size,
			COUNT(CASE WHEN status = 'already-present' THEN 1 END) as present_files,
			COUNT(CASE WHEN status = 'not-submitted' THEN 1 END) as not_submitted,
			COUNT(CASE WHEN status = 'field-missing' THEN 1 END) as field_missing,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed_files,
			COUNT(staged_at) as staged_files,
			COALESCE(SUM(CASE WHEN staged_at IS NOT NULL THEN size ELSE 0 END), 0) as staged_size
		FROM files
		WHERE track = ?
	`, track).Scan(
		&stats.TotalFiles,
		&stats.TotalSize,
		&stats.TransferredFiles,
		&stats.TransferredSize,
		&stats.PresentFiles,
		&stats.NotSubmitted,
		&stats.FieldMissing,
		&stats.FailedFiles,
		&stats.StagedFiles,
		&stats.StagedSize,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get stats", goerr.V("track", track))
	}
	return &stats, nil
}

// LastRun returns the most recent run of a track, or nil if there is none.
func (db *DB) LastRun(track string) (*models.Run, error) {
	var (
		run      models.Run
		finished sql.NullTime
	)
	err := db.QueryRow(`
		SELECT id, track, start_index, passes, status, started_at, finished_at
		FROM runs
		WHERE track = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, track).Scan(&run.ID, &run.Track, &run.StartIndex, &run.Passes, &run.Status, &run.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get last run", goerr.V("track", track))
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// RunLog records the passes and outcomes of one run.
type RunLog struct {
	db  *DB
	run *models.Run
}

// RunLog returns a recorder bound to run.
func (db *DB) RunLog(run *models.Run) *RunLog {
	return &RunLog{db: db, run: run}
}

// RecordOutcome implements the engine's outcome recorder.
func (l *RunLog) RecordOutcome(o models.Outcome) error {
	return l.db.RecordOutcome(l.run.Track, l.run.ID, o)
}

// RecordPass implements the driver's pass recorder.
func (l *RunLog) RecordPass(pass int, snap *models.Snapshot, res *models.PassResult) error {
	l.run.Passes = pass
	return l.db.RecordPass(l.run.ID, pass, snap, res)
}

// Finish ends the run with the given status.
func (l *RunLog) Finish(status string) error {
	return l.db.FinishRun(l.run.ID, status)
}

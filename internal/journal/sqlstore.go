package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory if it does not exist.
func Open(path string) (*SqlStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

func (s *SqlStore) Close() error { return s.db.Close() }

func (s *SqlStore) Begin(sub *Submission) (string, error) {
	if sub == nil {
		return "", errors.New("submission is nil")
	}
	sub.RunID = newRunID()
	sub.StartedAt = s.now().UTC()
	if sub.Phase == "" {
		sub.Phase = "form"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO submissions(run_id, claim_id, notes, phase, started_at)
		 VALUES(?, ?, ?, ?, ?)`,
		sub.RunID, nilIfEmpty(sub.ClaimID), sub.Notes, sub.Phase, formatTime(sub.StartedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert submission: %w", err)
	}
	for i, f := range sub.Files {
		_, err := tx.Exec(
			"INSERT INTO submission_files(run_id, position, name, size, failed) VALUES(?, ?, ?, ?, ?)",
			sub.RunID, i, f.Name, f.Size, f.Failed,
		)
		if err != nil {
			return "", fmt.Errorf("insert submission file %s: %w", f.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit submission: %w", err)
	}
	return sub.RunID, nil
}

func (s *SqlStore) Finish(runID string, out Outcome) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var score any
	if out.Score != nil {
		score = *out.Score
	}
	res, err := tx.Exec(
		`UPDATE submissions
		 SET claim_id = COALESCE(?, claim_id), phase = ?, failed_during = ?, message = ?, score = ?, ended_at = ?
		 WHERE run_id = ?`,
		nilIfEmpty(out.ClaimID), out.Phase, nilIfEmpty(out.FailedDuring), nilIfEmpty(out.Message), score,
		formatTime(s.now().UTC()), runID,
	)
	if err != nil {
		return fmt.Errorf("finish submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish %s: %w", runID, ErrNotFound)
	}
	if _, err := tx.Exec("UPDATE submission_files SET failed = 0 WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("reset failed files: %w", err)
	}
	for _, pos := range out.FailedPositions {
		if _, err := tx.Exec("UPDATE submission_files SET failed = 1 WHERE run_id = ? AND position = ?", runID, pos); err != nil {
			return fmt.Errorf("mark failed file %d: %w", pos, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish: %w", err)
	}
	return nil
}

const selectSubmission = `SELECT run_id, claim_id, notes, phase, failed_during, message, score, started_at, ended_at
	FROM submissions`

func (s *SqlStore) Get(runID string) (*Submission, error) {
	sub, err := scanSubmission(s.db.QueryRow(selectSubmission+" WHERE run_id = ?", runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if err := s.loadFiles(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SqlStore) List(limit int) ([]*Submission, error) {
	query := selectSubmission + " ORDER BY run_id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	var out []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, sub := range out {
		if err := s.loadFiles(sub); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SqlStore) loadFiles(sub *Submission) error {
	rows, err := s.db.Query(
		"SELECT name, size, failed FROM submission_files WHERE run_id = ? ORDER BY position", sub.RunID,
	)
	if err != nil {
		return fmt.Errorf("list submission files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.Name, &f.Size, &f.Failed); err != nil {
			return fmt.Errorf("scan submission file: %w", err)
		}
		sub.Files = append(sub.Files, f)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*Submission, error) {
	var (
		sub                                   Submission
		claimID, failedDuring, message, ended sql.NullString
		started                               string
		score                                 sql.NullInt64
	)
	err := row.Scan(&sub.RunID, &claimID, &sub.Notes, &sub.Phase, &failedDuring, &message, &score, &started, &ended)
	if err != nil {
		return nil, err
	}
	sub.ClaimID = nullStr(claimID)
	sub.FailedDuring = nullStr(failedDuring)
	sub.Message = nullStr(message)
	if score.Valid {
		v := int(score.Int64)
		sub.Score = &v
	}
	if sub.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if ended.Valid {
		if sub.EndedAt, err = parseTime(ended.String); err != nil {
			return nil, err
		}
	}
	return &sub, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse journal time %q: %w", s, err)
	}
	return t, nil
}

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

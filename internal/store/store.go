// Package store handles the SQLite session index.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/keeglog/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for indexed sessions.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			participant TEXT NOT NULL,
			mode INTEGER NOT NULL,
			purpose INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			passwords INTEGER NOT NULL,
			marker_count INTEGER NOT NULL,
			sample_count INTEGER NOT NULL,
			channel_count INTEGER NOT NULL,
			device_name TEXT NOT NULL,
			time_correction REAL NOT NULL,
			eeg_path TEXT NOT NULL,
			marker_path TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_key_stats (
			session_id TEXT NOT NULL,
			char TEXT NOT NULL,
			count INTEGER NOT NULL,
			latency_sum_ms INTEGER NOT NULL,
			latency_count INTEGER NOT NULL,
			PRIMARY KEY (session_id, char)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_finished_at ON sessions(finished_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_participant ON sessions(participant);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertSession stores a persisted session and its per-key timing.
func (s *Store) InsertSession(ctx context.Context, rec model.SessionRecord, keys []model.KeyStats) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, participant, mode, purpose, started_at, finished_at, passwords, marker_count, sample_count, channel_count, device_name, time_correction, eeg_path, marker_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Participant,
		int(rec.Mode),
		int(rec.Purpose),
		rec.StartedAt.Format(time.RFC3339Nano),
		rec.FinishedAt.Format(time.RFC3339Nano),
		rec.Passwords,
		rec.Markers,
		rec.Samples,
		rec.Channels,
		rec.DeviceName,
		rec.TimeCorrection,
		rec.TelemetryPath,
		rec.MarkerPath,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", rec.ID, err)
	}

	if len(keys) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO session_key_stats (session_id, char, count, latency_sum_ms, latency_count)
			 VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() {
			_ = stmt.Close()
		}()
		for _, ks := range keys {
			if _, err := stmt.ExecContext(ctx, rec.ID, ks.Char, ks.Count, ks.LatencySumMs, ks.LatencyCount); err != nil {
				return fmt.Errorf("insert key stats %q: %w", ks.Char, err)
			}
		}
	}

	return tx.Commit()
}

// ListSessions returns indexed sessions ordered by finish time, oldest first.
func (s *Store) ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.SessionRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Participant != "" {
		clauses = append(clauses, "s.participant = ?")
		args = append(args, filter.Participant)
	}
	if filter.Mode != 0 {
		clauses = append(clauses, "s.mode = ?")
		args = append(args, int(filter.Mode))
	}
	if filter.Since != nil {
		clauses = append(clauses, "s.finished_at >= ?")
		args = append(args, filter.Since.Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT s.id, s.participant, s.mode, s.purpose, s.started_at, s.finished_at,
			s.passwords, s.marker_count, s.sample_count, s.channel_count, s.device_name,
			s.time_correction, s.eeg_path, s.marker_path,
			COALESCE(SUM(k.latency_sum_ms), 0), COALESCE(SUM(k.latency_count), 0)
		FROM sessions s
		LEFT JOIN session_key_stats k ON k.session_id = s.id
		WHERE %s
		GROUP BY s.id
		ORDER BY s.finished_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var sessions []model.SessionRecord
	for rows.Next() {
		var rec model.SessionRecord
		var mode, purpose int
		var startedAt, finishedAt string
		if err := rows.Scan(&rec.ID, &rec.Participant, &mode, &purpose, &startedAt, &finishedAt,
			&rec.Passwords, &rec.Markers, &rec.Samples, &rec.Channels, &rec.DeviceName,
			&rec.TimeCorrection, &rec.TelemetryPath, &rec.MarkerPath,
			&rec.LatencySumMs, &rec.LatencyCount); err != nil {
			return nil, err
		}
		rec.Mode = model.PasswordMode(mode)
		rec.Purpose = model.Purpose(purpose)
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if filter.Last > 0 && len(sessions) > filter.Last {
		sessions = sessions[len(sessions)-filter.Last:]
	}
	return sessions, nil
}

// ListKeyAggregatesForSessions aggregates per-key timing across sessions.
func (s *Store) ListKeyAggregatesForSessions(ctx context.Context, sessionIDs []string) ([]model.KeyAggregate, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(sessionIDs))
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT char, SUM(count), SUM(latency_sum_ms), SUM(latency_count)
		FROM session_key_stats
		WHERE session_id IN (%s)
		GROUP BY char
		ORDER BY char`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []model.KeyAggregate
	for rows.Next() {
		var agg model.KeyAggregate
		if err := rows.Scan(&agg.Char, &agg.Count, &agg.LatencySumMs, &agg.LatencyCount); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

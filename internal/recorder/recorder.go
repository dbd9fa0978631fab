// Package recorder persists a finished session as aligned CSV files and
// indexes it.
package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/stats"
)

// TimeLayout formats session start and finish times in file names.
const TimeLayout = "2006-01-02-15-04-05"

// Indexer records persisted sessions.
type Indexer interface {
	InsertSession(ctx context.Context, rec model.SessionRecord, keys []model.KeyStats) error
}

// Files names the units written for one session.
type Files struct {
	Telemetry string
	Markers   string
}

// Recorder writes sessions under a base directory.
type Recorder struct {
	baseDir string
	index   Indexer
	logger  *slog.Logger
}

// New returns a Recorder rooted at baseDir. index may be nil.
func New(baseDir string, index Indexer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{baseDir: baseDir, index: index, logger: logger}
}

// Dir returns the directory a session's files go to.
func (r *Recorder) Dir(s model.Session) string {
	dir := filepath.Join(r.baseDir, s.Participant, s.Mode.Name())
	if s.Purpose == model.PurposePrediction {
		dir = filepath.Join(dir, "prediction")
	}
	return dir
}

// BaseName returns {participant}_{mode}_{start}_{finish} in local time.
func BaseName(s model.Session) string {
	return fmt.Sprintf("%s_%s_%s_%s",
		s.Participant,
		s.Mode.Name(),
		s.StartedAt.Local().Format(TimeLayout),
		s.FinishedAt.Local().Format(TimeLayout),
	)
}

// Persist writes the telemetry and marker units, then indexes the session.
// Timestamps are written exactly as captured.
func (r *Recorder) Persist(ctx context.Context, rec model.Recording) (Files, error) {
	s := rec.Session
	if s.FinishedAt.IsZero() {
		return Files{}, fmt.Errorf("session %s has no finish time", s.ID)
	}
	dir := r.Dir(s)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("failed to create session dir %s: %w", dir, err)
	}
	base := BaseName(s)
	files := Files{
		Telemetry: filepath.Join(dir, base+"_EEG.csv"),
		Markers:   filepath.Join(dir, base+"_MRK.csv"),
	}

	if err := writeAtomic(files.Telemetry, func(w *csv.Writer) error {
		return writeTelemetry(w, rec.Labels, rec.Telemetry)
	}); err != nil {
		return Files{}, err
	}
	if err := writeAtomic(files.Markers, func(w *csv.Writer) error {
		return writeMarkers(w, rec.Markers)
	}); err != nil {
		return Files{}, err
	}
	r.logger.Info("session persisted",
		"session", s.ID,
		"eeg", files.Telemetry,
		"markers", files.Markers,
		"samples", len(rec.Telemetry),
		"events", len(rec.Markers),
	)

	if r.index != nil {
		indexed := model.SessionRecord{
			ID:             s.ID,
			Participant:    s.Participant,
			Mode:           s.Mode,
			Purpose:        s.Purpose,
			StartedAt:      s.StartedAt,
			FinishedAt:     s.FinishedAt,
			Passwords:      len(s.Passwords),
			Markers:        len(rec.Markers),
			Samples:        len(rec.Telemetry),
			Channels:       len(rec.Labels),
			DeviceName:     s.DeviceName,
			TimeCorrection: s.TimeCorrection,
			TelemetryPath:  files.Telemetry,
			MarkerPath:     files.Markers,
		}
		if err := r.index.InsertSession(ctx, indexed, stats.KeyLatencies(rec.Markers)); err != nil {
			return files, fmt.Errorf("failed to index session %s: %w", s.ID, err)
		}
	}
	return files, nil
}

func writeTelemetry(w *csv.Writer, labels []string, samples []model.TelemetrySample) error {
	header := append([]string{"timestamp"}, labels...)
	if err := w.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, s := range samples {
		if len(s.Values) != len(labels) {
			return fmt.Errorf("sample at %v has %d values, want %d", s.Timestamp, len(s.Values), len(labels))
		}
		row[0] = formatFloat(s.Timestamp)
		for i, v := range s.Values {
			row[i+1] = formatFloat(v)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeMarkers(w *csv.Writer, events []model.MarkerEvent) error {
	if err := w.Write([]string{"timestamp", "key marker"}); err != nil {
		return err
	}
	for _, ev := range events {
		if err := w.Write([]string{formatFloat(ev.Timestamp), ev.Char}); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeAtomic fills a temp file next to path and renames it into place.
func writeAtomic(path string, fill func(*csv.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if err := writeCSV(tmp, fill); err != nil {
		cleanup()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

func writeCSV(out io.Writer, fill func(*csv.Writer) error) error {
	w := csv.NewWriter(out)
	if err := fill(w); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

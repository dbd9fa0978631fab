package recorder

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/store"
)

type fakeIndex struct {
	recs []model.SessionRecord
	keys [][]model.KeyStats
	err  error
}

func (f *fakeIndex) InsertSession(_ context.Context, rec model.SessionRecord, keys []model.KeyStats) error {
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	f.keys = append(f.keys, keys)
	return nil
}

func sampleRecording(purpose model.Purpose) model.Recording {
	start := time.Date(2026, 5, 4, 9, 30, 0, 0, time.Local)
	return model.Recording{
		Session: model.Session{
			ID:             "sess-1",
			Participant:    "alice",
			Mode:           model.ModeMixedFixed8,
			Purpose:        purpose,
			Passwords:      []string{"ABCDEFGH", "IJKLMNOP"},
			StartedAt:      start,
			FinishedAt:     start.Add(95 * time.Second),
			DeviceName:     "Muse-00FE",
			TimeCorrection: 0.125,
		},
		Labels: []string{"TP9", "AF7", "AF8", "TP10", "Right AUX"},
		Telemetry: []model.TelemetrySample{
			{Timestamp: 1000.5, Values: []float64{1, 2, 3, 4, 5}},
			{Timestamp: 1000.50390625, Values: []float64{1.5, 2.5, 3.5, 4.5, 5.5}},
			{Timestamp: 1000.5078125, Values: []float64{-1, 0, 1, 2, 3}},
		},
		Markers: []model.MarkerEvent{
			{Timestamp: 1000.6, Char: "A"},
			{Timestamp: 1000.9, Char: "B"},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestPersistWritesAlignedUnits(t *testing.T) {
	base := filepath.Join(t.TempDir(), "session_data")
	idx := &fakeIndex{}
	rec := sampleRecording(model.PurposeTraining)
	files, err := New(base, idx, nil).Persist(context.Background(), rec)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	wantDir := filepath.Join(base, "alice", "MIXED_FIXED_8")
	if filepath.Dir(files.Telemetry) != wantDir || filepath.Dir(files.Markers) != wantDir {
		t.Fatalf("unexpected dirs: %+v", files)
	}
	name := filepath.Base(files.Telemetry)
	if name != "alice_MIXED_FIXED_8_2026-05-04-09-30-00_2026-05-04-09-31-35_EEG.csv" {
		t.Fatalf("unexpected telemetry name %q", name)
	}
	if !strings.HasSuffix(files.Markers, "_2026-05-04-09-31-35_MRK.csv") {
		t.Fatalf("unexpected marker name %q", files.Markers)
	}

	eeg := readCSV(t, files.Telemetry)
	if len(eeg) != 1+len(rec.Telemetry) {
		t.Fatalf("expected %d telemetry lines, got %d", 1+len(rec.Telemetry), len(eeg))
	}
	if strings.Join(eeg[0], ",") != "timestamp,TP9,AF7,AF8,TP10,Right AUX" {
		t.Fatalf("unexpected header %v", eeg[0])
	}
	for _, row := range eeg {
		if len(row) != 1+len(rec.Labels) {
			t.Fatalf("unexpected row width %d: %v", len(row), row)
		}
	}
	if eeg[2][0] != "1000.50390625" || eeg[3][1] != "-1" {
		t.Fatalf("timestamps or values altered: %v", eeg)
	}

	mrk := readCSV(t, files.Markers)
	if len(mrk) != 1+len(rec.Markers) {
		t.Fatalf("expected %d marker lines, got %d", 1+len(rec.Markers), len(mrk))
	}
	if strings.Join(mrk[0], ",") != "timestamp,key marker" {
		t.Fatalf("unexpected marker header %v", mrk[0])
	}
	if mrk[1][0] != "1000.6" || mrk[1][1] != "A" {
		t.Fatalf("unexpected marker row %v", mrk[1])
	}

	if len(idx.recs) != 1 {
		t.Fatalf("expected session to be indexed once, got %d", len(idx.recs))
	}
	got := idx.recs[0]
	if got.TimeCorrection != 0.125 || got.Samples != 3 || got.Markers != 2 || got.Channels != 5 || got.Passwords != 2 {
		t.Fatalf("unexpected index record: %+v", got)
	}
	if len(idx.keys[0]) != 2 {
		t.Fatalf("expected key stats for both keys, got %+v", idx.keys[0])
	}

	entries, err := os.ReadDir(wantDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected no temp files left, got %d entries", len(entries))
	}
}

func TestPersistPredictionSubdir(t *testing.T) {
	base := t.TempDir()
	files, err := New(base, nil, nil).Persist(context.Background(), sampleRecording(model.PurposePrediction))
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	want := filepath.Join(base, "alice", "MIXED_FIXED_8", "prediction")
	if filepath.Dir(files.Markers) != want {
		t.Fatalf("expected prediction dir %s, got %s", want, filepath.Dir(files.Markers))
	}
}

func TestPersistEmptyStreams(t *testing.T) {
	rec := sampleRecording(model.PurposeTraining)
	rec.Telemetry = nil
	rec.Markers = nil
	files, err := New(t.TempDir(), nil, nil).Persist(context.Background(), rec)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if rows := readCSV(t, files.Telemetry); len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
	if rows := readCSV(t, files.Markers); len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}

func TestPersistRequiresFinishTime(t *testing.T) {
	rec := sampleRecording(model.PurposeTraining)
	rec.Session.FinishedAt = time.Time{}
	if _, err := New(t.TempDir(), nil, nil).Persist(context.Background(), rec); err == nil {
		t.Fatalf("expected error without finish time")
	}
}

func TestPersistReportsIndexFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(t.TempDir(), &fakeIndex{err: boom}, nil).Persist(context.Background(), sampleRecording(model.PurposeTraining))
	if !errors.Is(err, boom) {
		t.Fatalf("expected index error, got %v", err)
	}
}

func TestPersistUnwritableBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(base, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := New(base, nil, nil).Persist(context.Background(), sampleRecording(model.PurposeTraining))
	if err == nil || !strings.Contains(err.Error(), base) {
		t.Fatalf("expected error naming %s, got %v", base, err)
	}
}

func TestPersistIndexesIntoStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "keeglog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	if _, err := New(t.TempDir(), st, nil).Persist(context.Background(), sampleRecording(model.PurposeTraining)); err != nil {
		t.Fatalf("persist: %v", err)
	}
	sessions, err := st.ListSessions(context.Background(), model.SessionFilter{Participant: "alice"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || sessions[0].TimeCorrection != 0.125 {
		t.Fatalf("unexpected indexed sessions: %+v", sessions)
	}
	if sessions[0].LatencyCount != 1 || sessions[0].LatencySumMs != 300 {
		t.Fatalf("unexpected latency totals: %+v", sessions[0])
	}
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/keeglog/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "keeglog.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func record(id, participant string, mode model.PasswordMode, finished time.Time) model.SessionRecord {
	return model.SessionRecord{
		ID:             id,
		Participant:    participant,
		Mode:           mode,
		Purpose:        model.PurposeTraining,
		StartedAt:      finished.Add(-time.Minute),
		FinishedAt:     finished,
		Passwords:      2,
		Markers:        8,
		Samples:        1000,
		Channels:       5,
		DeviceName:     "Muse-00FE",
		TimeCorrection: -0.25,
		TelemetryPath:  "/data/" + id + "_EEG.csv",
		MarkerPath:     "/data/" + id + "_MRK.csv",
	}
}

func TestInsertAndListSessions(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := st.InsertSession(ctx, record("b", "alice", model.ModePinFixed4, base.Add(time.Hour)), []model.KeyStats{
		{Char: "1", Count: 2, LatencySumMs: 300, LatencyCount: 2},
		{Char: "2", Count: 1, LatencySumMs: 100, LatencyCount: 1},
	}); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if err := st.InsertSession(ctx, record("a", "alice", model.ModePinFixed4, base), nil); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := st.InsertSession(ctx, record("c", "bob", model.ModeMixedFixed8, base.Add(2*time.Hour)), nil); err != nil {
		t.Fatalf("insert c: %v", err)
	}

	all, err := st.ListSessions(ctx, model.SessionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Fatalf("unexpected order: %+v", all)
	}
	b := all[1]
	if b.LatencySumMs != 400 || b.LatencyCount != 3 {
		t.Fatalf("unexpected latency totals: %d/%d", b.LatencySumMs, b.LatencyCount)
	}
	if b.TimeCorrection != -0.25 || b.Channels != 5 || b.DeviceName != "Muse-00FE" {
		t.Fatalf("unexpected fields: %+v", b)
	}
	if !b.FinishedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected finish time: %v", b.FinishedAt)
	}

	alice, err := st.ListSessions(ctx, model.SessionFilter{Participant: "alice", Last: 1})
	if err != nil {
		t.Fatalf("list alice: %v", err)
	}
	if len(alice) != 1 || alice[0].ID != "b" {
		t.Fatalf("unexpected filtered sessions: %+v", alice)
	}

	mixed, err := st.ListSessions(ctx, model.SessionFilter{Mode: model.ModeMixedFixed8})
	if err != nil {
		t.Fatalf("list mixed: %v", err)
	}
	if len(mixed) != 1 || mixed[0].ID != "c" {
		t.Fatalf("unexpected mode filter result: %+v", mixed)
	}

	since := base.Add(90 * time.Minute)
	recent, err := st.ListSessions(ctx, model.SessionFilter{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "c" {
		t.Fatalf("unexpected since result: %+v", recent)
	}
}

func TestDuplicateSessionIDRollsBack(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	rec := record("dup", "alice", model.ModePinFixed4, time.Now())
	if err := st.InsertSession(ctx, rec, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.InsertSession(ctx, rec, []model.KeyStats{{Char: "1", Count: 1}}); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}
	aggs, err := st.ListKeyAggregatesForSessions(ctx, []string{"dup"})
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if len(aggs) != 0 {
		t.Fatalf("expected rolled back key stats, got %+v", aggs)
	}
}

func TestListKeyAggregates(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	now := time.Now()
	if err := st.InsertSession(ctx, record("s1", "alice", model.ModePinFixed4, now), []model.KeyStats{
		{Char: "1", Count: 2, LatencySumMs: 200, LatencyCount: 1},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.InsertSession(ctx, record("s2", "alice", model.ModePinFixed4, now.Add(time.Second)), []model.KeyStats{
		{Char: "1", Count: 1, LatencySumMs: 100, LatencyCount: 1},
		{Char: "5", Count: 1, LatencySumMs: 50, LatencyCount: 1},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	aggs, err := st.ListKeyAggregatesForSessions(ctx, []string{"s1", "s2"})
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("expected 2 keys, got %+v", aggs)
	}
	if aggs[0].Char != "1" || aggs[0].Count != 3 || aggs[0].LatencySumMs != 300 || aggs[0].LatencyCount != 2 {
		t.Fatalf("unexpected aggregate: %+v", aggs[0])
	}
	if got, _ := st.ListKeyAggregatesForSessions(ctx, nil); got != nil {
		t.Fatalf("expected nil for no sessions")
	}
}

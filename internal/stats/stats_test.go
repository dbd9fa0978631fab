package stats

import (
	"bytes"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/keeglog/internal/model"
)

func TestKeyLatencies(t *testing.T) {
	markers := []model.MarkerEvent{
		{Timestamp: 100.0, Char: "1"},
		{Timestamp: 100.25, Char: "2"},
		{Timestamp: 100.5, Char: "1"},
		{Timestamp: 103.0, Char: "3"},
	}
	got := KeyLatencies(markers)
	want := []model.KeyStats{
		{Char: "1", Count: 2, LatencySumMs: 250, LatencyCount: 1},
		{Char: "2", Count: 1, LatencySumMs: 250, LatencyCount: 1},
		{Char: "3", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected stats:\n got %+v\nwant %+v", got, want)
	}
	if len(KeyLatencies(nil)) != 0 {
		t.Fatalf("expected no stats for no markers")
	}
}

func TestSessionMetrics(t *testing.T) {
	start := time.Unix(0, 0)
	rec := model.SessionRecord{
		StartedAt:    start,
		FinishedAt:   start.Add(30 * time.Second),
		Markers:      40,
		LatencySumMs: 900,
		LatencyCount: 3,
	}
	kpm, lat := SessionMetrics(rec)
	if math.Abs(kpm-80) > 1e-9 {
		t.Fatalf("expected 80 keys/min, got %f", kpm)
	}
	if math.Abs(lat-300) > 1e-9 {
		t.Fatalf("expected 300ms, got %f", lat)
	}
	kpm, lat = SessionMetrics(model.SessionRecord{})
	if kpm != 0 || lat != 0 {
		t.Fatalf("expected zero metrics, got %f %f", kpm, lat)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4}, 2)
	want := []float64{1, 1.5, 2.5, 3.5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 9}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{5, 5, 5}); got != "+++" {
		t.Fatalf("unexpected flat sparkline %q", got)
	}
}

func TestResample(t *testing.T) {
	got := Resample([]float64{1, 3, 5, 7}, 2)
	if !reflect.DeepEqual(got, []float64{2, 6}) {
		t.Fatalf("unexpected resample %v", got)
	}
	if got := Resample([]float64{1, 2}, 10); len(got) != 2 {
		t.Fatalf("expected short input unchanged, got %v", got)
	}
}

func TestSlowestKeys(t *testing.T) {
	aggs := []model.KeyAggregate{
		{Char: "A", Count: 4, LatencySumMs: 400, LatencyCount: 4},
		{Char: "B", Count: 2, LatencySumMs: 600, LatencyCount: 2},
		{Char: "C", Count: 1},
		{Char: "D", Count: 3, LatencySumMs: 300, LatencyCount: 1},
	}
	got := SlowestKeys(aggs, 2)
	if len(got) != 2 || got[0].Char != "B" || got[1].Char != "D" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if all := SlowestKeys(aggs, 0); len(all) != 3 {
		t.Fatalf("expected keys without latency to be skipped, got %+v", all)
	}
}

func TestRenderSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "No sessions found.") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

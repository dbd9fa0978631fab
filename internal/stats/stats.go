// Package stats contains keystroke-timing calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/verte-zerg/keeglog/internal/model"
)

const sparkChars = " .:-=+*#%@"

// MaxLatencyMs bounds the inter-key intervals counted as typing latency.
// Longer gaps are pauses (reading the next password, confirming).
const MaxLatencyMs = 2000

// KeyLatencies aggregates marker events per key. Each interval shorter
// than MaxLatencyMs is attributed to the later key.
func KeyLatencies(markers []model.MarkerEvent) []model.KeyStats {
	byKey := map[string]*model.KeyStats{}
	var order []string
	for i, ev := range markers {
		ks, ok := byKey[ev.Char]
		if !ok {
			ks = &model.KeyStats{Char: ev.Char}
			byKey[ev.Char] = ks
			order = append(order, ev.Char)
		}
		ks.Count++
		if i == 0 {
			continue
		}
		delta := int64(math.Round((ev.Timestamp - markers[i-1].Timestamp) * 1000))
		if delta >= 0 && delta < MaxLatencyMs {
			ks.LatencySumMs += delta
			ks.LatencyCount++
		}
	}
	sort.Strings(order)
	out := make([]model.KeyStats, 0, len(order))
	for _, ch := range order {
		out = append(out, *byKey[ch])
	}
	return out
}

// SessionMetrics computes keys per minute and mean latency for a session.
func SessionMetrics(rec model.SessionRecord) (keysPerMin, meanLatencyMs float64) {
	duration := rec.FinishedAt.Sub(rec.StartedAt)
	if duration > 0 {
		keysPerMin = float64(rec.Markers) / duration.Minutes()
	}
	if rec.LatencyCount > 0 {
		meanLatencyMs = float64(rec.LatencySumMs) / float64(rec.LatencyCount)
	}
	return keysPerMin, meanLatencyMs
}

func meanLatency(agg model.KeyAggregate) float64 {
	if agg.LatencyCount == 0 {
		return 0
	}
	return float64(agg.LatencySumMs) / float64(agg.LatencyCount)
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Resample averages values into at most width buckets.
func Resample(values []float64, width int) []float64 {
	if width <= 0 || len(values) <= width {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, width)
	for i := range out {
		lo := i * len(values) / width
		hi := (i + 1) * len(values) / width
		var sum float64
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// RenderSummary prints a summary block for sessions.
func RenderSummary(w io.Writer, sessions []model.SessionRecord) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	var totalKPM, totalLatency float64
	var latencySessions, samples, markers int
	for _, s := range sessions {
		kpm, lat := SessionMetrics(s)
		totalKPM += kpm
		if s.LatencyCount > 0 {
			totalLatency += lat
			latencySessions++
		}
		samples += s.Samples
		markers += s.Markers
	}
	count := float64(len(sessions))
	avgLatency := 0.0
	if latencySessions > 0 {
		avgLatency = totalLatency / float64(latencySessions)
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", len(sessions)),
		fmt.Sprintf("Markers: %d", markers),
		fmt.Sprintf("EEG samples: %d", samples),
		fmt.Sprintf("Avg keys/min: %.2f", totalKPM/count),
		fmt.Sprintf("Avg latency: %.1f ms", avgLatency),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderSessionTable prints one row per session.
func RenderSessionTable(w io.Writer, sessions []model.SessionRecord) error {
	if len(sessions) == 0 {
		return nil
	}
	headers := []string{"Finished", "User", "Mode", "Purpose", "Keys", "Samples", "Keys/min", "Latency (ms)", "Offset (s)"}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		kpm, lat := SessionMetrics(s)
		rows = append(rows, []string{
			s.FinishedAt.Local().Format("2006-01-02 15:04"),
			s.Participant,
			s.Mode.Name(),
			s.Purpose.String(),
			fmt.Sprintf("%d", s.Markers),
			fmt.Sprintf("%d", s.Samples),
			fmt.Sprintf("%.1f", kpm),
			fmt.Sprintf("%.1f", lat),
			fmt.Sprintf("%.4f", s.TimeCorrection),
		})
	}
	if _, err := fmt.Fprintln(w, "Sessions"); err != nil {
		return err
	}
	rightAlign := map[int]bool{4: true, 5: true, 6: true, 7: true, 8: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderLatencyCurve prints mean latency per session as a sparkline,
// smoothed with a moving average of the given window.
func RenderLatencyCurve(w io.Writer, sessions []model.SessionRecord, window, width int) error {
	if len(sessions) < 2 {
		return nil
	}
	values := make([]float64, len(sessions))
	for i, s := range sessions {
		_, values[i] = SessionMetrics(s)
	}
	smoothed := Resample(MovingAverage(values, window), width)
	if _, err := fmt.Fprintf(w, "Latency trend (window %d)\n", max(window, 1)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "|%s|\n\n", Sparkline(smoothed)); err != nil {
		return err
	}
	return nil
}

// RenderKeyTable prints per-key aggregates, slowest first.
func RenderKeyTable(w io.Writer, aggs []model.KeyAggregate, top int) error {
	slow := SlowestKeys(aggs, top)
	if len(slow) == 0 {
		_, err := fmt.Fprintln(w, "No key stats found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Slowest Keys"); err != nil {
		return err
	}
	headers := []string{"Key", "Avg Latency (ms)", "Count"}
	rows := make([][]string, 0, len(slow))
	for _, agg := range slow {
		rows = append(rows, []string{
			agg.Char,
			fmt.Sprintf("%.1f", meanLatency(agg)),
			fmt.Sprintf("%d", agg.Count),
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{1: true, 2: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

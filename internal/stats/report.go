package stats

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/verte-zerg/keeglog/internal/model"
)

// Source is the slice of the session index a report reads from.
type Source interface {
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.SessionRecord, error)
	ListKeyAggregatesForSessions(ctx context.Context, sessionIDs []string) ([]model.KeyAggregate, error)
}

// Report contains precomputed data for the sessions report.
type Report struct {
	Sessions    []model.SessionRecord
	KeyAggs     []model.KeyAggregate
	TopKeys     []string
	CurveWindow int
}

// BuildReport loads and prepares data for rendering.
func BuildReport(ctx context.Context, src Source, filter model.SessionFilter) (Report, error) {
	sessions, err := src.ListSessions(ctx, filter)
	if err != nil {
		return Report{}, fmt.Errorf("list sessions: %w", err)
	}
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	aggs, err := src.ListKeyAggregatesForSessions(ctx, ids)
	if err != nil {
		return Report{}, fmt.Errorf("list key stats: %w", err)
	}
	return Report{
		Sessions:    sessions,
		KeyAggs:     aggs,
		TopKeys:     TopKeysByFrequency(aggs, 5),
		CurveWindow: filter.CurveWindow,
	}, nil
}

// WriteReport renders the full report. width bounds the latency curve.
func WriteReport(w io.Writer, r Report, width int) error {
	if err := RenderSummary(w, r.Sessions); err != nil {
		return err
	}
	if len(r.Sessions) == 0 {
		return nil
	}
	if err := RenderSessionTable(w, r.Sessions); err != nil {
		return err
	}
	if err := RenderLatencyCurve(w, r.Sessions, r.CurveWindow, width-2); err != nil {
		return err
	}
	if len(r.TopKeys) > 0 {
		if _, err := fmt.Fprintf(w, "Most pressed: %s\n\n", strings.Join(r.TopKeys, " ")); err != nil {
			return err
		}
	}
	return RenderKeyTable(w, r.KeyAggs, 10)
}

// Package telemetry discovers biosignal streams and pulls their samples.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/verte-zerg/keeglog/internal/model"
)

// TypeEEG is the type tag EEG sources advertise.
const TypeEEG = "EEG"

const correctionTimeout = 2 * time.Second

// ErrNotFound is returned when no matching source could be attached.
var ErrNotFound = errors.New("telemetry source not found")

// StreamInfo describes an advertised telemetry source.
type StreamInfo struct {
	Name         string
	Type         string
	SourceID     string
	ChannelCount int
	SampleRate   float64
	Labels       []string
	// Handle is transport specific and passed back to Resolver.Open.
	Handle any
}

// Resolver enumerates and opens telemetry sources.
type Resolver interface {
	Resolve(ctx context.Context, typeTag string, timeout time.Duration) ([]StreamInfo, error)
	Open(ctx context.Context, info StreamInfo) (Inlet, error)
}

// Inlet is an open connection to one source.
type Inlet interface {
	Info() StreamInfo
	PullChunk(timeout time.Duration, maxSamples int) ([]model.TelemetrySample, error)
	TimeCorrection(timeout time.Duration) (float64, error)
	Close() error
}

// Link discovers sources of one type tag.
type Link struct {
	resolver Resolver
	typeTag  string
	logger   *slog.Logger
}

// NewLink returns a Link resolving sources tagged typeTag.
func NewLink(resolver Resolver, typeTag string, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Link{resolver: resolver, typeTag: typeTag, logger: logger}
}

// Discover resolves sources for up to timeout and attaches to the first
// whose name contains filter (any source when filter is empty). Sources
// that fail to open are skipped. It records the clock correction once.
func (l *Link) Discover(ctx context.Context, filter string, timeout time.Duration) (*Stream, error) {
	infos, err := l.resolver.Resolve(ctx, l.typeTag, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s streams: %w", l.typeTag, err)
	}
	for _, info := range infos {
		if filter != "" && !strings.Contains(info.Name, filter) {
			continue
		}
		inlet, err := l.resolver.Open(ctx, info)
		if err != nil {
			l.logger.Warn("failed to open telemetry stream", "stream", info.Name, "error", err)
			continue
		}
		correction, err := inlet.TimeCorrection(correctionTimeout)
		if err != nil {
			l.logger.Warn("time correction unavailable", "stream", info.Name, "error", err)
			correction = 0
		}
		stream := newStream(inlet, correction)
		l.logger.Info("attached telemetry stream",
			"stream", stream.Name(),
			"channels", stream.ChannelCount(),
			"time_correction", correction)
		return stream, nil
	}
	return nil, ErrNotFound
}

// Stream is an attached telemetry source.
type Stream struct {
	inlet      Inlet
	info       StreamInfo
	correction float64

	mu      sync.Mutex
	dropped int
}

func newStream(inlet Inlet, correction float64) *Stream {
	return &Stream{inlet: inlet, info: inlet.Info(), correction: correction}
}

// Name returns the source name.
func (s *Stream) Name() string {
	return s.info.Name
}

// ChannelCount returns the channel count reported at attach.
func (s *Stream) ChannelCount() int {
	return s.info.ChannelCount
}

// Labels returns one label per channel in device order. Missing labels
// are filled with ch1..chN.
func (s *Stream) Labels() []string {
	labels := make([]string, s.info.ChannelCount)
	for i := range labels {
		if i < len(s.info.Labels) && s.info.Labels[i] != "" {
			labels[i] = s.info.Labels[i]
			continue
		}
		labels[i] = fmt.Sprintf("ch%d", i+1)
	}
	return labels
}

// TimeCorrection returns the offset measured at attach.
func (s *Stream) TimeCorrection() float64 {
	return s.correction
}

// Pull returns up to maxSamples samples, waiting at most timeout.
// Samples whose width differs from the channel count are dropped.
func (s *Stream) Pull(timeout time.Duration, maxSamples int) ([]model.TelemetrySample, error) {
	samples, err := s.inlet.PullChunk(timeout, maxSamples)
	if len(samples) == 0 {
		return nil, err
	}
	kept := samples[:0]
	for _, sample := range samples {
		if len(sample.Values) != s.info.ChannelCount {
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
			continue
		}
		kept = append(kept, sample)
	}
	return kept, err
}

// Dropped returns the number of malformed samples discarded so far.
func (s *Stream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close disconnects from the source.
func (s *Stream) Close() error {
	return s.inlet.Close()
}

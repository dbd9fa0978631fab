package telemetry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/verte-zerg/keeglog/internal/streambus"
)

// Muse headset stream parameters.
const (
	MuseSampleRate = 256
	MuseChunkSize  = 12
)

// MuseLabels are the channel labels a Muse headset reports, in order.
var MuseLabels = []string{"TP9", "AF7", "AF8", "TP10", "Right AUX"}

// MuseInfo describes a Muse-like EEG stream named after deviceID.
func MuseInfo(deviceID string) streambus.Info {
	name := "Muse"
	if deviceID != "" {
		name = "Muse-" + deviceID
	}
	return streambus.Info{
		Name:         name,
		Type:         TypeEEG,
		ChannelCount: len(MuseLabels),
		SampleRate:   MuseSampleRate,
		Format:       streambus.FormatFloat32,
		Labels:       append([]string(nil), MuseLabels...),
	}
}

// Simulator pushes synthetic EEG chunks to an outlet at a fixed rate.
type Simulator struct {
	outlet *streambus.Outlet
	rate   float64
	chunk  int
	rnd    *rand.Rand

	start float64
	count int
}

// NewSimulator returns a Simulator publishing on outlet. A rate <= 0 uses
// the outlet's nominal rate.
func NewSimulator(outlet *streambus.Outlet, rate float64, seed int64) *Simulator {
	if rate <= 0 {
		rate = outlet.Info().SampleRate
	}
	if rate <= 0 {
		rate = MuseSampleRate
	}
	return &Simulator{
		outlet: outlet,
		rate:   rate,
		chunk:  MuseChunkSize,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

// Run streams until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	period := time.Duration(float64(s.chunk) / s.rate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	s.start = s.outlet.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.outlet.PushChunk(s.nextChunk()); err != nil {
				return err
			}
		}
	}
}

// Sent returns the number of samples generated so far.
func (s *Simulator) Sent() int {
	return s.count
}

func (s *Simulator) nextChunk() []streambus.Sample {
	channels := s.outlet.Info().ChannelCount
	out := make([]streambus.Sample, s.chunk)
	for i := range out {
		t := float64(s.count) / s.rate
		values := make([]float64, channels)
		for ch := range values {
			alpha := 40 * math.Sin(2*math.Pi*(8+float64(ch))*t)
			values[ch] = 800 + alpha + s.rnd.NormFloat64()*5
		}
		out[i] = streambus.Sample{Timestamp: s.start + t, Values: values}
		s.count++
	}
	return out
}

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/streambus"
)

type fakeInlet struct {
	info       StreamInfo
	chunks     [][]model.TelemetrySample
	correction float64
	closed     bool
}

func (f *fakeInlet) Info() StreamInfo { return f.info }

func (f *fakeInlet) PullChunk(time.Duration, int) ([]model.TelemetrySample, error) {
	if len(f.chunks) == 0 {
		return nil, nil
	}
	chunk := f.chunks[0]
	f.chunks = f.chunks[1:]
	return chunk, nil
}

func (f *fakeInlet) TimeCorrection(time.Duration) (float64, error) { return f.correction, nil }

func (f *fakeInlet) Close() error {
	f.closed = true
	return nil
}

type fakeResolver struct {
	infos   []StreamInfo
	inlets  map[string]*fakeInlet
	opened  []string
	openErr map[string]error
}

func (f *fakeResolver) Resolve(context.Context, string, time.Duration) ([]StreamInfo, error) {
	return f.infos, nil
}

func (f *fakeResolver) Open(_ context.Context, info StreamInfo) (Inlet, error) {
	f.opened = append(f.opened, info.Name)
	if err := f.openErr[info.Name]; err != nil {
		return nil, err
	}
	return f.inlets[info.Name], nil
}

func newFakeResolver(names ...string) *fakeResolver {
	r := &fakeResolver{inlets: map[string]*fakeInlet{}, openErr: map[string]error{}}
	for _, name := range names {
		info := StreamInfo{Name: name, Type: TypeEEG, ChannelCount: 2, Labels: []string{"TP9", "AF7"}}
		r.infos = append(r.infos, info)
		r.inlets[name] = &fakeInlet{info: info, correction: 0.25}
	}
	return r
}

func TestDiscoverFirstWithoutFilter(t *testing.T) {
	resolver := newFakeResolver("Muse-AAAA", "Muse-BBBB")
	stream, err := NewLink(resolver, TypeEEG, nil).Discover(context.Background(), "", time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if stream.Name() != "Muse-AAAA" {
		t.Fatalf("expected first stream, got %s", stream.Name())
	}
	if stream.TimeCorrection() != 0.25 {
		t.Fatalf("expected recorded correction, got %f", stream.TimeCorrection())
	}
}

func TestDiscoverFilterBySubstring(t *testing.T) {
	resolver := newFakeResolver("Muse-AAAA", "Muse-BBBB")
	stream, err := NewLink(resolver, TypeEEG, nil).Discover(context.Background(), "BBBB", time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if stream.Name() != "Muse-BBBB" {
		t.Fatalf("expected filtered stream, got %s", stream.Name())
	}
}

func TestDiscoverNotFound(t *testing.T) {
	resolver := newFakeResolver("Muse-AAAA")
	_, err := NewLink(resolver, TypeEEG, nil).Discover(context.Background(), "ZZZZ", time.Second)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(resolver.opened) != 0 {
		t.Fatalf("expected no open attempts, got %v", resolver.opened)
	}
}

func TestDiscoverSkipsUnopenable(t *testing.T) {
	resolver := newFakeResolver("Muse-AAAA", "Muse-BBBB")
	resolver.openErr["Muse-AAAA"] = errors.New("refused")
	stream, err := NewLink(resolver, TypeEEG, nil).Discover(context.Background(), "", time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if stream.Name() != "Muse-BBBB" {
		t.Fatalf("expected fallback stream, got %s", stream.Name())
	}
}

func TestStreamPullDropsMalformed(t *testing.T) {
	resolver := newFakeResolver("Muse-AAAA")
	resolver.inlets["Muse-AAAA"].chunks = [][]model.TelemetrySample{{
		{Timestamp: 1, Values: []float64{1, 2}},
		{Timestamp: 2, Values: []float64{1}},
		{Timestamp: 3, Values: []float64{3, 4}},
	}}
	stream, err := NewLink(resolver, TypeEEG, nil).Discover(context.Background(), "", time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	samples, err := stream.Pull(0, 360)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(samples) != 2 || samples[0].Timestamp != 1 || samples[1].Timestamp != 3 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
	if stream.Dropped() != 1 {
		t.Fatalf("expected 1 dropped sample, got %d", stream.Dropped())
	}
}

func TestStreamLabelsFallback(t *testing.T) {
	inlet := &fakeInlet{info: StreamInfo{Name: "x", ChannelCount: 3, Labels: []string{"A"}}}
	stream := newStream(inlet, 0)
	labels := stream.Labels()
	if len(labels) != 3 || labels[0] != "A" || labels[1] != "ch2" || labels[2] != "ch3" {
		t.Fatalf("unexpected labels: %v", labels)
	}
}

func TestBusDiscoveryWithSimulator(t *testing.T) {
	dir := streambus.NewDirectory(t.TempDir())
	outlet, err := streambus.NewOutlet(dir, MuseInfo("00FE"), streambus.OutletOptions{})
	if err != nil {
		t.Fatalf("new outlet: %v", err)
	}
	t.Cleanup(func() {
		_ = outlet.Close()
	})

	link := NewLink(NewBusResolver(dir, nil), TypeEEG, nil)
	stream, err := link.Discover(context.Background(), "00FE", time.Second)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	t.Cleanup(func() {
		_ = stream.Close()
	})
	if stream.ChannelCount() != len(MuseLabels) {
		t.Fatalf("expected %d channels, got %d", len(MuseLabels), stream.ChannelCount())
	}
	if labels := stream.Labels(); labels[4] != "Right AUX" {
		t.Fatalf("unexpected labels: %v", labels)
	}

	sim := NewSimulator(outlet, 0, 1)
	if err := outlet.PushChunk(sim.nextChunk()); err != nil {
		t.Fatalf("push: %v", err)
	}
	var got []model.TelemetrySample
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < MuseChunkSize && time.Now().Before(deadline) {
		chunk, err := stream.Pull(100*time.Millisecond, 360)
		if err != nil {
			t.Fatalf("pull: %v", err)
		}
		got = append(got, chunk...)
	}
	if len(got) != MuseChunkSize {
		t.Fatalf("expected %d samples, got %d", MuseChunkSize, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Fatalf("timestamps out of order at %d", i)
		}
	}
}

func TestSimulatorChunkShape(t *testing.T) {
	dir := streambus.NewDirectory(t.TempDir())
	outlet, err := streambus.NewOutlet(dir, MuseInfo(""), streambus.OutletOptions{})
	if err != nil {
		t.Fatalf("new outlet: %v", err)
	}
	defer func() {
		_ = outlet.Close()
	}()
	sim := NewSimulator(outlet, 128, 7)
	chunk := sim.nextChunk()
	if len(chunk) != MuseChunkSize || sim.Sent() != MuseChunkSize {
		t.Fatalf("unexpected chunk size %d (sent %d)", len(chunk), sim.Sent())
	}
	step := chunk[1].Timestamp - chunk[0].Timestamp
	if step < 1.0/128-1e-9 || step > 1.0/128+1e-9 {
		t.Fatalf("unexpected sample spacing %f", step)
	}
	for _, s := range chunk {
		if len(s.Values) != len(MuseLabels) {
			t.Fatalf("unexpected width %d", len(s.Values))
		}
	}
}

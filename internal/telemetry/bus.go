package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/verte-zerg/keeglog/internal/clock"
	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/streambus"
)

// BusResolver finds telemetry sources on the local stream bus.
type BusResolver struct {
	resolver *streambus.Resolver
	clock    clock.Clock
}

// NewBusResolver returns a Resolver over the bus directory.
func NewBusResolver(dir *streambus.Directory, clk clock.Clock) *BusResolver {
	if clk == nil {
		clk = clock.Real()
	}
	return &BusResolver{resolver: streambus.NewResolver(dir), clock: clk}
}

// Resolve implements Resolver.
func (r *BusResolver) Resolve(ctx context.Context, typeTag string, timeout time.Duration) ([]StreamInfo, error) {
	infos, err := r.resolver.Resolve(ctx, streambus.PropType, typeTag, timeout)
	if err != nil {
		return nil, err
	}
	out := make([]StreamInfo, 0, len(infos))
	for _, info := range infos {
		if info.Format != streambus.FormatFloat32 {
			continue
		}
		out = append(out, fromBusInfo(info))
	}
	return out, nil
}

// Open implements Resolver.
func (r *BusResolver) Open(ctx context.Context, info StreamInfo) (Inlet, error) {
	busInfo, ok := info.Handle.(streambus.Info)
	if !ok {
		return nil, fmt.Errorf("stream %q was not resolved from the bus", info.Name)
	}
	inlet, err := streambus.Dial(ctx, busInfo, streambus.InletOptions{Clock: r.clock})
	if err != nil {
		return nil, err
	}
	return &busInlet{inlet: inlet}, nil
}

type busInlet struct {
	inlet *streambus.Inlet
}

func (b *busInlet) Info() StreamInfo {
	return fromBusInfo(b.inlet.Info())
}

func (b *busInlet) PullChunk(timeout time.Duration, maxSamples int) ([]model.TelemetrySample, error) {
	samples, err := b.inlet.PullChunk(timeout, maxSamples)
	if len(samples) == 0 {
		return nil, err
	}
	out := make([]model.TelemetrySample, len(samples))
	for i, s := range samples {
		out[i] = model.TelemetrySample{Timestamp: s.Timestamp, Values: s.Values}
	}
	return out, err
}

func (b *busInlet) TimeCorrection(timeout time.Duration) (float64, error) {
	return b.inlet.TimeCorrection(timeout)
}

func (b *busInlet) Close() error {
	return b.inlet.Close()
}

func fromBusInfo(info streambus.Info) StreamInfo {
	return StreamInfo{
		Name:         info.Name,
		Type:         info.Type,
		SourceID:     info.SourceID,
		ChannelCount: info.ChannelCount,
		SampleRate:   info.SampleRate,
		Labels:       append([]string(nil), info.Labels...),
		Handle:       info,
	}
}

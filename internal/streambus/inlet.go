package streambus

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/verte-zerg/keeglog/internal/clock"
)

const (
	defaultMaxBuffered = 360 * 60
	helloTimeout       = 2 * time.Second
)

// InletOptions tunes an Inlet. The zero value is usable.
type InletOptions struct {
	Clock clock.Clock
	// MaxBuffered bounds samples held between pulls; the oldest are
	// discarded first.
	MaxBuffered int
}

// Inlet receives samples from one outlet.
type Inlet struct {
	info        Info
	conn        net.Conn
	clock       clock.Clock
	maxBuffered int

	encMu sync.Mutex
	enc   *cbor.Encoder

	mu      sync.Mutex
	queue   []Sample
	err     error
	closing bool

	notify chan struct{}
	probes chan probe
	done   chan struct{}
}

// Dial connects to the outlet described by info and waits for its hello.
func Dial(ctx context.Context, info Info, opts InletOptions) (*Inlet, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", info.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream %q: %w", info.Name, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(helloTimeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, err
	}
	dec := newDecoder(conn)
	var hello frame
	if err := dec.Decode(&hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read hello from stream %q: %w", info.Name, err)
	}
	if hello.Kind != frameHello || hello.Info == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("stream %q: unexpected first frame %d", info.Name, hello.Kind)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	in := &Inlet{
		info:        *hello.Info,
		conn:        conn,
		clock:       opts.Clock,
		maxBuffered: opts.MaxBuffered,
		enc:         newEncoder(conn),
		notify:      make(chan struct{}, 1),
		probes:      make(chan probe, 1),
		done:        make(chan struct{}),
	}
	if in.clock == nil {
		in.clock = clock.Real()
	}
	if in.maxBuffered <= 0 {
		in.maxBuffered = defaultMaxBuffered
	}
	go in.readLoop(dec)
	return in, nil
}

// Info returns the description sent by the outlet.
func (in *Inlet) Info() Info {
	return in.info
}

// PullChunk returns up to maxSamples buffered samples (all of them when
// maxSamples <= 0). When nothing is buffered it waits at most timeout.
// A lost stream reports ErrLost once its buffer is drained.
func (in *Inlet) PullChunk(timeout time.Duration, maxSamples int) ([]Sample, error) {
	if out := in.take(maxSamples); len(out) > 0 {
		return out, nil
	}
	if err := in.failure(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-in.notify:
	case <-in.done:
	case <-timer.C:
	}
	if out := in.take(maxSamples); len(out) > 0 {
		return out, nil
	}
	return nil, in.failure()
}

// TimeCorrection estimates the offset to add to remote timestamps to map
// them onto the local clock, using one probe round-trip.
func (in *Inlet) TimeCorrection(timeout time.Duration) (float64, error) {
	select {
	case <-in.probes:
	default:
	}
	sent := seconds(in.clock.Now())
	in.encMu.Lock()
	err := in.enc.Encode(frame{Kind: frameProbe, Probe: &probe{Sent: sent}})
	in.encMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("failed to send probe: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case p := <-in.probes:
			if p.Sent != sent {
				continue
			}
			received := seconds(in.clock.Now())
			return (sent+received)/2 - p.Remote, nil
		case <-in.done:
			return 0, in.failure()
		case <-timer.C:
			return 0, ErrTimeout
		}
	}
}

// Close disconnects from the outlet.
func (in *Inlet) Close() error {
	in.mu.Lock()
	in.closing = true
	in.mu.Unlock()
	err := in.conn.Close()
	<-in.done
	return err
}

func (in *Inlet) readLoop(dec *cbor.Decoder) {
	defer close(in.done)
	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			in.mu.Lock()
			if in.closing {
				in.err = ErrClosed
			} else {
				in.err = fmt.Errorf("%w: %q: %v", ErrLost, in.info.Name, err)
			}
			in.mu.Unlock()
			return
		}
		switch f.Kind {
		case frameSample:
			if f.Sample == nil {
				continue
			}
			in.mu.Lock()
			in.queue = append(in.queue, *f.Sample)
			if over := len(in.queue) - in.maxBuffered; over > 0 {
				in.queue = in.queue[over:]
			}
			in.mu.Unlock()
			select {
			case in.notify <- struct{}{}:
			default:
			}
		case frameProbeReply:
			if f.Probe == nil {
				continue
			}
			select {
			case in.probes <- *f.Probe:
			default:
			}
		}
	}
}

func (in *Inlet) take(maxSamples int) []Sample {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := len(in.queue)
	if n == 0 {
		return nil
	}
	if maxSamples > 0 && n > maxSamples {
		n = maxSamples
	}
	out := make([]Sample, n)
	copy(out, in.queue[:n])
	in.queue = in.queue[n:]
	if len(in.queue) == 0 {
		in.queue = nil
	}
	return out
}

func (in *Inlet) failure() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.err
}

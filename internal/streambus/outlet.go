package streambus

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/keeglog/internal/clock"
)

const (
	defaultQueueSize = 1024
	aliveProbeWait   = 200 * time.Millisecond
)

// OutletOptions tunes an Outlet. The zero value is usable.
type OutletOptions struct {
	Clock     clock.Clock
	Logger    *slog.Logger
	QueueSize int
}

// Outlet publishes one stream to any number of subscribers. Pushes never
// block: a subscriber whose queue is full misses the sample.
type Outlet struct {
	info      Info
	dir       *Directory
	listener  net.Listener
	clock     clock.Clock
	logger    *slog.Logger
	queueSize int

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
	wg          sync.WaitGroup
}

type subscriber struct {
	conn  net.Conn
	queue chan frame
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// NewOutlet starts listening on loopback and advertises info in dir. An
// empty SourceID is replaced with a fresh uuid. It fails with
// ErrNameInUse when a reachable outlet already advertises the same name.
func NewOutlet(dir *Directory, info Info, opts OutletOptions) (*Outlet, error) {
	if info.SourceID == "" {
		info.SourceID = uuid.NewString()
	}
	if err := info.validate(); err != nil {
		return nil, err
	}
	if err := claimName(dir, info.Name); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen for stream %q: %w", info.Name, err)
	}
	info.Addr = ln.Addr().String()
	info.PID = os.Getpid()
	if err := dir.advertise(info); err != nil {
		_ = ln.Close()
		return nil, err
	}

	o := &Outlet{
		info:        info,
		dir:         dir,
		listener:    ln,
		clock:       opts.Clock,
		logger:      opts.Logger,
		queueSize:   opts.QueueSize,
		subscribers: map[*subscriber]struct{}{},
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.queueSize <= 0 {
		o.queueSize = defaultQueueSize
	}
	o.wg.Add(1)
	go o.acceptLoop()
	return o, nil
}

// claimName removes stale advertisements for name and rejects live ones.
func claimName(dir *Directory, name string) error {
	infos, err := dir.List()
	if err != nil {
		return err
	}
	for _, info := range infos {
		if info.Name != name {
			continue
		}
		if reachable(info.Addr) {
			return fmt.Errorf("%w: %q", ErrNameInUse, name)
		}
		if err := dir.remove(info.SourceID); err != nil {
			return fmt.Errorf("failed to remove stale advertisement: %w", err)
		}
	}
	return nil
}

func reachable(addr string) bool {
	if addr == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", addr, aliveProbeWait)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Info returns the advertised stream description.
func (o *Outlet) Info() Info {
	return o.info
}

// Now returns the outlet clock in float seconds.
func (o *Outlet) Now() float64 {
	return seconds(o.clock.Now())
}

// Subscribers returns the number of connected inlets.
func (o *Outlet) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subscribers)
}

// PushSample fans one sample out to every subscriber.
func (o *Outlet) PushSample(s Sample) error {
	if o.info.Format == FormatFloat32 && len(s.Values) != o.info.ChannelCount {
		return fmt.Errorf("stream %q: sample has %d values, want %d", o.info.Name, len(s.Values), o.info.ChannelCount)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	f := frame{Kind: frameSample, Sample: &s}
	for sub := range o.subscribers {
		select {
		case sub.queue <- f:
		default:
		}
	}
	return nil
}

// PushChunk pushes samples in order.
func (o *Outlet) PushChunk(samples []Sample) error {
	for _, s := range samples {
		if err := o.PushSample(s); err != nil {
			return err
		}
	}
	return nil
}

// PushString publishes a single string sample.
func (o *Outlet) PushString(text string, timestamp float64) error {
	return o.PushSample(Sample{Timestamp: timestamp, Text: text})
}

// Close withdraws the advertisement and disconnects all subscribers.
func (o *Outlet) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	subs := make([]*subscriber, 0, len(o.subscribers))
	for sub := range o.subscribers {
		subs = append(subs, sub)
	}
	o.mu.Unlock()

	_ = o.listener.Close()
	for _, sub := range subs {
		sub.stop()
	}
	err := o.dir.remove(o.info.SourceID)
	o.wg.Wait()
	return err
}

func (o *Outlet) acceptLoop() {
	defer o.wg.Done()
	for {
		conn, err := o.listener.Accept()
		if err != nil {
			if !isExpectedCloseError(err) {
				o.logger.Warn("stream accept failed", "stream", o.info.Name, "error", err)
			}
			return
		}
		sub := &subscriber{
			conn:  conn,
			queue: make(chan frame, o.queueSize),
			done:  make(chan struct{}),
		}
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			_ = conn.Close()
			return
		}
		o.subscribers[sub] = struct{}{}
		o.mu.Unlock()

		o.wg.Add(2)
		go o.writeLoop(sub)
		go o.readLoop(sub)
	}
}

func (o *Outlet) writeLoop(sub *subscriber) {
	defer o.wg.Done()
	defer o.drop(sub)

	enc := newEncoder(sub.conn)
	info := o.info
	if err := enc.Encode(frame{Kind: frameHello, Info: &info}); err != nil {
		o.logDisconnect(err)
		return
	}
	for {
		select {
		case f := <-sub.queue:
			if err := enc.Encode(f); err != nil {
				o.logDisconnect(err)
				return
			}
		case <-sub.done:
			return
		}
	}
}

func (o *Outlet) readLoop(sub *subscriber) {
	defer o.wg.Done()
	defer o.drop(sub)

	dec := newDecoder(sub.conn)
	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			o.logDisconnect(err)
			return
		}
		if f.Kind != frameProbe || f.Probe == nil {
			continue
		}
		reply := frame{Kind: frameProbeReply, Probe: &probe{Sent: f.Probe.Sent, Remote: o.Now()}}
		select {
		case sub.queue <- reply:
		case <-sub.done:
			return
		}
	}
}

func (o *Outlet) drop(sub *subscriber) {
	o.mu.Lock()
	delete(o.subscribers, sub)
	o.mu.Unlock()
	sub.stop()
}

func (o *Outlet) logDisconnect(err error) {
	if isExpectedCloseError(err) {
		return
	}
	o.logger.Debug("subscriber disconnected", "stream", o.info.Name, "error", err)
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

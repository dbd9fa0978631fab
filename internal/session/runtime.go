// Package session drives one data-collection run: discovery of the EEG
// stream, keystroke markers, sample capture and persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/verte-zerg/keeglog/internal/clock"
	"github.com/verte-zerg/keeglog/internal/config"
	"github.com/verte-zerg/keeglog/internal/generator"
	"github.com/verte-zerg/keeglog/internal/logging"
	"github.com/verte-zerg/keeglog/internal/marker"
	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/profile"
	"github.com/verte-zerg/keeglog/internal/recorder"
	"github.com/verte-zerg/keeglog/internal/telemetry"
)

// State is the runtime lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateFinished:
		return "FINISHED"
	default:
		return "DISCONNECTED"
	}
}

// Verdict is the outcome of a prediction session.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictCorrect
	VerdictIncorrect
)

func (v Verdict) String() string {
	switch v {
	case VerdictCorrect:
		return "correct"
	case VerdictIncorrect:
		return "incorrect"
	default:
		return ""
	}
}

// Options tunes a runtime.
type Options struct {
	Purpose               model.Purpose
	Iterations            int
	DeviceID              string
	FirstDiscoveryTimeout time.Duration
	RetryDiscoveryTimeout time.Duration
	PullMaxSamples        int
	FinishGrace           time.Duration
}

// DefaultOptions returns the standard training options.
func DefaultOptions() Options {
	return Options{
		Purpose:               model.PurposeTraining,
		Iterations:            4,
		FirstDiscoveryTimeout: 500 * time.Millisecond,
		RetryDiscoveryTimeout: 5 * time.Second,
		PullMaxSamples:        360,
		FinishGrace:           3 * time.Second,
	}
}

// Discoverer attaches to a telemetry stream.
type Discoverer interface {
	Discover(ctx context.Context, filter string, timeout time.Duration) (*telemetry.Stream, error)
}

// Persister writes a finished recording.
type Persister interface {
	Persist(ctx context.Context, rec model.Recording) (recorder.Files, error)
}

// TextEntry is the visible input box the participant types into.
type TextEntry interface {
	KeyDown(r rune)
	Submit()
	Value() string
}

// Key is one key press. Enter is set for the confirm key; otherwise Rune
// carries the typed character.
type Key struct {
	Rune  rune
	Enter bool
}

// Deps are the collaborators a runtime needs.
type Deps struct {
	Profiles    config.Store
	Link        Discoverer
	OpenMarkers func(name string) (marker.Publisher, error)
	Recorder    Persister
	Entry       TextEntry
	Clock       clock.Clock
	Generator   *generator.Generator
	Logger      *slog.Logger
}

type discoveryResult struct {
	stream *telemetry.Stream
	err    error
}

// Runtime is the session state machine. Tick and HandleKey must be called
// from a single goroutine.
type Runtime struct {
	opts    Options
	deps    Deps
	logger  *slog.Logger
	session model.Session
	markers *marker.Channel

	state    State
	closing  bool
	released bool

	results     chan discoveryResult
	discovering bool
	attempts    int

	stream    *telemetry.Stream
	labels    []string
	samples   []model.TelemetrySample
	lostNoted bool

	passIndex       int
	charIndex       int
	awaitingConfirm bool
	verdict         Verdict

	persisted bool
	files     recorder.Files
}

// New loads the active participant and mode, prepares the passwords and
// opens the marker channel.
func New(opts Options, deps Deps) (*Runtime, error) {
	if deps.Profiles == nil || deps.Link == nil || deps.OpenMarkers == nil || deps.Recorder == nil {
		return nil, errors.New("session: profiles, link, markers and recorder are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Generator == nil {
		deps.Generator = generator.New()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Entry == nil {
		deps.Entry = &BufferEntry{}
	}
	defaults := DefaultOptions()
	if opts.FirstDiscoveryTimeout <= 0 {
		opts.FirstDiscoveryTimeout = defaults.FirstDiscoveryTimeout
	}
	if opts.RetryDiscoveryTimeout <= 0 {
		opts.RetryDiscoveryTimeout = defaults.RetryDiscoveryTimeout
	}
	if opts.PullMaxSamples <= 0 {
		opts.PullMaxSamples = defaults.PullMaxSamples
	}
	if opts.FinishGrace <= 0 {
		opts.FinishGrace = defaults.FinishGrace
	}

	participant, err := profile.ActiveUser(deps.Profiles)
	if err != nil {
		return nil, err
	}
	mode, err := profile.ActiveMode(deps.Profiles)
	if err != nil {
		return nil, err
	}

	var passwords []string
	switch opts.Purpose {
	case model.PurposePrediction:
		pw, err := profile.Password(deps.Profiles, participant, mode)
		if err != nil {
			return nil, err
		}
		passwords = []string{strings.ToUpper(pw)}
	default:
		if opts.Iterations <= 0 {
			return nil, fmt.Errorf("iterations must be positive, got %d", opts.Iterations)
		}
		passwords = deps.Generator.Generate(mode, opts.Iterations)
	}
	opts.Iterations = len(passwords)

	name := marker.ChannelName(participant, opts.Purpose)
	pub, err := deps.OpenMarkers(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open marker channel %q: %w", name, err)
	}

	r := &Runtime{
		opts:    opts,
		deps:    deps,
		logger:  deps.Logger,
		markers: marker.NewChannel(pub),
		results: make(chan discoveryResult, 1),
		session: model.Session{
			ID:          uuid.NewString(),
			Participant: participant,
			Mode:        mode,
			Purpose:     opts.Purpose,
			Passwords:   passwords,
			StartedAt:   deps.Clock.Now(),
		},
	}
	r.logger.Info("session created",
		"session", r.session.ID,
		"participant", participant,
		"mode", mode.Name(),
		"purpose", opts.Purpose.String(),
		"passwords", len(passwords),
		"device", r.DeviceID())
	return r, nil
}

// Tick runs one logic step. done reports that the loop should stop.
func (r *Runtime) Tick() (done bool, err error) {
	if r.closing {
		r.release()
		return true, nil
	}
	switch r.state {
	case StateDisconnected:
		r.tickDisconnected()
	case StateRunning:
		r.tickRunning()
	case StateFinished:
		return r.tickFinished()
	}
	return false, nil
}

func (r *Runtime) tickDisconnected() {
	select {
	case res := <-r.results:
		r.discovering = false
		if res.err == nil && res.stream != nil {
			r.attach(res.stream)
			return
		}
		r.logger.Debug("telemetry discovery failed", "attempt", r.attempts, "error", res.err)
	default:
	}
	if !r.discovering {
		r.launchDiscovery()
	}
}

func (r *Runtime) launchDiscovery() {
	timeout := r.opts.RetryDiscoveryTimeout
	if r.attempts == 0 {
		timeout = r.opts.FirstDiscoveryTimeout
	}
	r.attempts++
	r.discovering = true
	link := r.deps.Link
	filter := r.opts.DeviceID
	results := r.results
	go func() {
		stream, err := link.Discover(context.Background(), filter, timeout)
		results <- discoveryResult{stream: stream, err: err}
	}()
}

func (r *Runtime) attach(stream *telemetry.Stream) {
	r.stream = stream
	r.labels = stream.Labels()
	r.session.DeviceName = stream.Name()
	r.session.TimeCorrection = stream.TimeCorrection()
	r.state = StateRunning
	r.logger.Info("session running",
		"stream", stream.Name(),
		"channels", stream.ChannelCount(),
		"time_correction", stream.TimeCorrection(),
		"attempts", r.attempts)
}

func (r *Runtime) tickRunning() {
	samples, err := r.stream.Pull(0, r.opts.PullMaxSamples)
	if len(samples) > 0 {
		r.samples = append(r.samples, samples...)
		r.logger.Log(context.Background(), logging.LevelTrace, "pulled samples",
			"count", len(samples), "total", len(r.samples))
	}
	if err != nil && !r.lostNoted {
		r.lostNoted = true
		r.logger.Warn("telemetry stream lost; continuing without new samples",
			"stream", r.stream.Name(), "error", err)
	}
}

func (r *Runtime) tickFinished() (bool, error) {
	if !r.persisted {
		r.persisted = true
		r.session.FinishedAt = r.deps.Clock.Now()
		files, err := r.deps.Recorder.Persist(context.Background(), r.Recording())
		if err != nil {
			r.logger.Error("failed to persist session", "session", r.session.ID, "error", err)
			r.release()
			return true, fmt.Errorf("persist session: %w", err)
		}
		r.files = files
	}
	if r.deps.Clock.Now().Sub(r.session.FinishedAt) >= r.opts.FinishGrace {
		r.release()
		return true, nil
	}
	return false, nil
}

// HandleKey applies one key press. Keys outside RUNNING are ignored.
func (r *Runtime) HandleKey(k Key) error {
	if r.closing || r.state != StateRunning {
		return nil
	}
	if r.opts.Purpose == model.PurposePrediction {
		return r.handlePredictionKey(k)
	}
	return r.handleTrainingKey(k)
}

func (r *Runtime) handleTrainingKey(k Key) error {
	if k.Enter {
		if !r.awaitingConfirm {
			return nil
		}
		r.deps.Entry.Submit()
		r.awaitingConfirm = false
		r.charIndex = 0
		r.passIndex++
		if r.passIndex == r.opts.Iterations {
			r.finish()
		}
		return nil
	}
	if r.awaitingConfirm {
		return nil
	}
	password := []rune(r.session.Passwords[r.passIndex])
	expected := password[r.charIndex]
	if unicode.ToUpper(k.Rune) != unicode.ToUpper(expected) {
		return nil
	}
	upper := unicode.ToUpper(expected)
	if err := r.markers.Publish(string(upper), model.Seconds(r.deps.Clock.Now())); err != nil {
		return err
	}
	r.deps.Entry.KeyDown(upper)
	r.charIndex++
	if r.charIndex == len(password) {
		r.awaitingConfirm = true
	}
	return nil
}

func (r *Runtime) handlePredictionKey(k Key) error {
	if k.Enter {
		typed := r.deps.Entry.Value()
		if strings.EqualFold(typed, r.session.Passwords[0]) {
			r.verdict = VerdictCorrect
		} else {
			r.verdict = VerdictIncorrect
		}
		r.deps.Entry.Submit()
		r.passIndex = 1
		r.logger.Info("prediction password entered", "session", r.session.ID, "verdict", r.verdict.String())
		r.finish()
		return nil
	}
	if !unicode.IsPrint(k.Rune) {
		return nil
	}
	upper := unicode.ToUpper(k.Rune)
	if err := r.markers.Publish(string(upper), model.Seconds(r.deps.Clock.Now())); err != nil {
		return err
	}
	r.deps.Entry.KeyDown(upper)
	r.charIndex++
	return nil
}

func (r *Runtime) finish() {
	r.state = StateFinished
	r.logger.Info("session finished",
		"session", r.session.ID,
		"markers", r.markers.Len(),
		"samples", len(r.samples))
}

// Close asks the runtime to stop. It takes effect on the next Tick.
func (r *Runtime) Close() {
	r.closing = true
}

// release closes the marker channel and the stream once. An in-flight
// discovery is left to finish; its stream is closed when it arrives.
func (r *Runtime) release() {
	if r.released {
		return
	}
	r.released = true
	if err := r.markers.Close(); err != nil {
		r.logger.Warn("failed to close marker channel", "error", err)
	}
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			r.logger.Debug("failed to close telemetry stream", "error", err)
		}
	}
	select {
	case res := <-r.results:
		r.discovering = false
		closeResult(res)
	default:
	}
	if r.discovering {
		go func(results <-chan discoveryResult) {
			closeResult(<-results)
		}(r.results)
	}
}

func closeResult(res discoveryResult) {
	if res.stream != nil {
		_ = res.stream.Close()
	}
}

// Recording snapshots the captured data.
func (r *Runtime) Recording() model.Recording {
	sess := r.session
	sess.Passwords = append([]string(nil), r.session.Passwords...)
	return model.Recording{
		Session:   sess,
		Labels:    append([]string(nil), r.labels...),
		Telemetry: r.samples,
		Markers:   r.markers.Events(),
	}
}

func (r *Runtime) State() State {
	return r.state
}

func (r *Runtime) Session() model.Session {
	return r.session
}

// Progress returns passwords entered and the total.
func (r *Runtime) Progress() (entered, total int) {
	return r.passIndex, r.opts.Iterations
}

// CurrentPassword returns the password being typed, or "" once all are done.
func (r *Runtime) CurrentPassword() string {
	if r.passIndex >= len(r.session.Passwords) {
		return ""
	}
	return r.session.Passwords[r.passIndex]
}

func (r *Runtime) CharIndex() int {
	return r.charIndex
}

func (r *Runtime) AwaitingConfirm() bool {
	return r.awaitingConfirm
}

func (r *Runtime) SampleCount() int {
	return len(r.samples)
}

func (r *Runtime) MarkerCount() int {
	return r.markers.Len()
}

// StreamName returns the attached stream name, or "" when disconnected.
func (r *Runtime) StreamName() string {
	if r.stream == nil {
		return ""
	}
	return r.stream.Name()
}

// DeviceID returns the device filter, or "any device" when unset.
func (r *Runtime) DeviceID() string {
	if r.opts.DeviceID == "" {
		return "any device"
	}
	return r.opts.DeviceID
}

func (r *Runtime) Verdict() Verdict {
	return r.verdict
}

// Files returns the persisted file paths once the session is saved.
func (r *Runtime) Files() recorder.Files {
	return r.files
}

// Purpose returns whether this is a training or prediction run.
func (r *Runtime) Purpose() model.Purpose {
	return r.opts.Purpose
}

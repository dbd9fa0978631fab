// Package model defines shared data structures.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PasswordMode selects the alphabet and length of generated passwords.
type PasswordMode int

const (
	// ModePinFixed4 is a 4-digit numeric pin.
	ModePinFixed4 PasswordMode = 1
	// ModeMixedFixed8 is an 8-character letter password.
	ModeMixedFixed8 PasswordMode = 2
)

type modeSpec struct {
	name     string
	alphabet string
	length   int
}

var modeSpecs = map[PasswordMode]modeSpec{
	ModePinFixed4:   {name: "PIN_FIXED_4", alphabet: "0123456789", length: 4},
	ModeMixedFixed8: {name: "MIXED_FIXED_8", alphabet: "abcdefghijklmnopqrstuvwxyz", length: 8},
}

// Modes lists every password mode in numeric order.
func Modes() []PasswordMode {
	return []PasswordMode{ModePinFixed4, ModeMixedFixed8}
}

// Valid reports whether m is a known mode.
func (m PasswordMode) Valid() bool {
	_, ok := modeSpecs[m]
	return ok
}

// Name returns the mode name used in file names and directories.
func (m PasswordMode) Name() string {
	if spec, ok := modeSpecs[m]; ok {
		return spec.name
	}
	return fmt.Sprintf("MODE_%d", int(m))
}

func (m PasswordMode) String() string {
	return m.Name()
}

// Alphabet returns the lower-case symbol pool for the mode.
func (m PasswordMode) Alphabet() string {
	return modeSpecs[m].alphabet
}

// Length returns the fixed password length for the mode.
func (m PasswordMode) Length() int {
	return modeSpecs[m].length
}

// ParseMode accepts a mode number ("1") or name ("PIN_FIXED_4").
func ParseMode(value string) (PasswordMode, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		mode := PasswordMode(n)
		if !mode.Valid() {
			return 0, fmt.Errorf("unknown password mode %d", n)
		}
		return mode, nil
	}
	for _, mode := range Modes() {
		if strings.EqualFold(mode.Name(), value) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown password mode %q", value)
}

// Purpose distinguishes training sessions from prediction sessions.
type Purpose int

const (
	// PurposeTraining types generated passwords.
	PurposeTraining Purpose = iota
	// PurposePrediction types the participant's stored password.
	PurposePrediction
)

func (p Purpose) String() string {
	switch p {
	case PurposePrediction:
		return "Prediction"
	default:
		return "Training"
	}
}

// Session identifies one collection run.
type Session struct {
	ID             string
	Participant    string
	Mode           PasswordMode
	Purpose        Purpose
	Passwords      []string
	StartedAt      time.Time
	FinishedAt     time.Time
	DeviceName     string
	TimeCorrection float64
}

// MarkerEvent is one accepted keystroke.
type MarkerEvent struct {
	Timestamp float64
	Char      string
}

// TelemetrySample is one device sample across all channels.
type TelemetrySample struct {
	Timestamp float64
	Values    []float64
}

// Recording bundles a finished session with its captured streams.
type Recording struct {
	Session   Session
	Labels    []string
	Telemetry []TelemetrySample
	Markers   []MarkerEvent
}

// SessionRecord is the indexed summary of a persisted session. The latency
// totals cover all keys of the session and are filled in by listings.
type SessionRecord struct {
	ID             string
	Participant    string
	Mode           PasswordMode
	Purpose        Purpose
	StartedAt      time.Time
	FinishedAt     time.Time
	Passwords      int
	Markers        int
	Samples        int
	Channels       int
	DeviceName     string
	TimeCorrection float64
	TelemetryPath  string
	MarkerPath     string
	LatencySumMs   int64
	LatencyCount   int64
}

// KeyStats stores per-key timing for a session.
type KeyStats struct {
	Char         string
	Count        int
	LatencySumMs int64
	LatencyCount int64
}

// KeyAggregate aggregates key stats across sessions.
type KeyAggregate struct {
	Char         string
	Count        int
	LatencySumMs int64
	LatencyCount int64
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	Participant string
	Mode        PasswordMode
	Since       *time.Time
	Last        int
	CurveWindow int
}

// Seconds converts t to the float seconds used by marker and sample timestamps.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Package streambus implements a small local streaming protocol for
// sample streams: sources advertise themselves in a shared directory and
// subscribers pull samples over loopback TCP as CBOR frames.
//
// A connection carries a sequence of CBOR items. The outlet sends one
// hello frame carrying the stream Info, then sample frames in push
// order. Either side may exchange probe frames, which the inlet uses to
// estimate the clock offset between the two processes.
package streambus

import (
	"errors"
	"fmt"
	"strings"
)

// Sample formats.
const (
	FormatFloat32 = "float32"
	FormatString  = "string"
)

// Resolver properties.
const (
	PropName     = "name"
	PropType     = "type"
	PropSourceID = "source_id"
)

var (
	// ErrNameInUse is returned when a live outlet already advertises the name.
	ErrNameInUse = errors.New("stream name already in use")
	// ErrClosed is returned by operations on a closed outlet or inlet.
	ErrClosed = errors.New("stream closed")
	// ErrLost is returned when the remote end of a stream went away.
	ErrLost = errors.New("stream lost")
	// ErrTimeout is returned when a probe is not answered in time.
	ErrTimeout = errors.New("stream timeout")
)

// Info describes an advertised stream.
type Info struct {
	Name         string   `cbor:"1,keyasint"`
	Type         string   `cbor:"2,keyasint"`
	ChannelCount int      `cbor:"3,keyasint"`
	SampleRate   float64  `cbor:"4,keyasint"`
	Format       string   `cbor:"5,keyasint"`
	SourceID     string   `cbor:"6,keyasint"`
	Labels       []string `cbor:"7,keyasint,omitempty"`
	Addr         string   `cbor:"8,keyasint,omitempty"`
	PID          int      `cbor:"9,keyasint,omitempty"`
}

// Match reports whether the info property prop equals value.
func (i Info) Match(prop, value string) bool {
	switch prop {
	case PropName:
		return i.Name == value
	case PropType:
		return i.Type == value
	case PropSourceID:
		return i.SourceID == value
	default:
		return false
	}
}

func (i Info) validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("stream name is empty")
	}
	if strings.TrimSpace(i.Type) == "" {
		return fmt.Errorf("stream type is empty")
	}
	if i.ChannelCount <= 0 {
		return fmt.Errorf("stream %q: channel count must be > 0", i.Name)
	}
	switch i.Format {
	case FormatFloat32:
	case FormatString:
		if i.ChannelCount != 1 {
			return fmt.Errorf("stream %q: string streams carry exactly one channel", i.Name)
		}
	default:
		return fmt.Errorf("stream %q: unknown format %q", i.Name, i.Format)
	}
	if len(i.Labels) > 0 && len(i.Labels) != i.ChannelCount {
		return fmt.Errorf("stream %q: %d labels for %d channels", i.Name, len(i.Labels), i.ChannelCount)
	}
	return nil
}

// Sample is a single timestamped sample. Values is used by numeric
// streams, Text by string streams.
type Sample struct {
	Timestamp float64   `cbor:"1,keyasint"`
	Values    []float64 `cbor:"2,keyasint,omitempty"`
	Text      string    `cbor:"3,keyasint,omitempty"`
}

type frameKind uint8

const (
	frameHello frameKind = iota + 1
	frameSample
	frameProbe
	frameProbeReply
)

// probe carries the inlet send time and, in replies, the outlet clock.
type probe struct {
	Sent   float64 `cbor:"1,keyasint"`
	Remote float64 `cbor:"2,keyasint,omitempty"`
}

type frame struct {
	Kind   frameKind `cbor:"1,keyasint"`
	Info   *Info     `cbor:"2,keyasint,omitempty"`
	Sample *Sample   `cbor:"3,keyasint,omitempty"`
	Probe  *probe    `cbor:"4,keyasint,omitempty"`
}

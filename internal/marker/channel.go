// Package marker publishes keystroke markers and keeps a local copy.
package marker

import (
	"fmt"
	"sync"

	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/streambus"
)

// StreamType is the type tag marker channels advertise.
const StreamType = "Keystroke Markers"

// Publisher broadcasts string samples to external subscribers.
type Publisher interface {
	PushString(text string, timestamp float64) error
	Close() error
}

// ChannelName returns the broadcast name for a participant's session.
func ChannelName(participant string, purpose model.Purpose) string {
	return fmt.Sprintf("%s %s Session Markers", participant, purpose)
}

// StreamInfo describes a marker channel on the stream bus.
func StreamInfo(name string) streambus.Info {
	return streambus.Info{
		Name:         name,
		Type:         StreamType,
		ChannelCount: 1,
		Format:       streambus.FormatString,
	}
}

// Channel publishes markers and buffers them in publish order.
type Channel struct {
	mu     sync.Mutex
	pub    Publisher
	events []model.MarkerEvent
}

// NewChannel wraps pub. The local buffer starts empty.
func NewChannel(pub Publisher) *Channel {
	return &Channel{pub: pub}
}

// Publish broadcasts the marker and, only if that succeeds, records it.
func (c *Channel) Publish(char string, timestamp float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pub.PushString(char, timestamp); err != nil {
		return fmt.Errorf("failed to publish marker %q: %w", char, err)
	}
	c.events = append(c.events, model.MarkerEvent{Timestamp: timestamp, Char: char})
	return nil
}

// Events returns a copy of the recorded markers.
func (c *Channel) Events() []model.MarkerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.MarkerEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Len returns the number of recorded markers.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Close closes the publisher. Recorded events stay readable.
func (c *Channel) Close() error {
	return c.pub.Close()
}

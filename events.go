package memstream

import (
	"github.com/pior/memstream/text"
)

// EventType identifies the parser notification carried by an Event.
type EventType uint8

const (
	EventResponse EventType = iota + 1
	EventError
	EventEnd
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventResponse:
		return "response"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is one parser notification.
type Event struct {
	Type     EventType
	Response *text.Response // EventResponse
	Err      error          // EventError
	HadError bool           // EventClose
}

// EventChannel is a text.Handler publishing notifications on a channel.
//
// Sends block until the consumer receives, which throttles the parser and
// the connection feeding it. The channel is closed after the close event.
type EventChannel struct {
	ch chan Event
}

var _ text.Handler = (*EventChannel)(nil)

// NewEventChannel creates an event channel with the given buffer size.
func NewEventChannel(size int) *EventChannel {
	return &EventChannel{ch: make(chan Event, size)}
}

// Events returns the channel to receive from.
func (c *EventChannel) Events() <-chan Event {
	return c.ch
}

func (c *EventChannel) Response(resp *text.Response) {
	c.ch <- Event{Type: EventResponse, Response: resp}
}

func (c *EventChannel) Error(err error) {
	c.ch <- Event{Type: EventError, Err: err}
}

func (c *EventChannel) End() {
	c.ch <- Event{Type: EventEnd}
}

func (c *EventChannel) Close(hadError bool) {
	c.ch <- Event{Type: EventClose, HadError: hadError}
	close(c.ch)
}

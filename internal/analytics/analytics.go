// Package analytics records widget usage events. It is layered on the engine by
// composition: a gateway decorator and an engine listener feed a Sink.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// Event names.
const (
	EventOpened           = "chat_opened"
	EventClosed           = "chat_closed"
	EventMessageSent      = "chat_message_sent"
	EventResponseReceived = "chat_response_received"
	EventError            = "chat_error"
	EventEscalated        = "whatsapp_button_clicked"
	EventQuickReply       = "quick_question_clicked"
)

// DefaultTopic is the topic events are published on.
const DefaultTopic = "chatwidget.analytics"

// Event is one analytics record.
type Event struct {
	Name      string         `json:"event"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Props     map[string]any `json:"props,omitempty"`
}

// Sink receives events. Tracking must not block the caller for long; sinks
// report failures but callers only log them.
type Sink interface {
	Track(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Track calls f.
func (f SinkFunc) Track(ctx context.Context, ev Event) error { return f(ctx, ev) }

// LogSink writes events to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

// Track logs the event at info level.
func (s LogSink) Track(_ context.Context, ev Event) error {
	s.Logger.Info().
		Str("event", ev.Name).
		Str("session_id", ev.SessionID).
		Fields(ev.Props).
		Msg("analytics")
	return nil
}

// PublisherSink publishes events as JSON watermill messages.
type PublisherSink struct {
	pub   message.Publisher
	topic string
}

// NewPublisherSink creates a sink publishing to topic.
func NewPublisherSink(pub message.Publisher, topic string) *PublisherSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &PublisherSink{pub: pub, topic: topic}
}

// Track publishes the event.
func (s *PublisherSink) Track(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.Name, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event", ev.Name)
	msg.Metadata.Set("session_id", ev.SessionID)

	if err := s.pub.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Name, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (s *PublisherSink) Close() error {
	return s.pub.Close()
}

// Decode parses a published event payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Multi fans an event out to several sinks, returning the first error.
type Multi []Sink

// Track sends ev to every sink.
func (m Multi) Track(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Track(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

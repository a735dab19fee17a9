package domain

import "time"

type EventType string

const (
	EventSnapshot      EventType = "stream.snapshot"
	EventStreamCreated EventType = "stream.created"
	EventStreamUpdated EventType = "stream.updated"
	EventStreamDeleted EventType = "stream.deleted"
	EventStreamStatus  EventType = "stream.status"
	EventStreamMetrics EventType = "stream.metrics"
)

// StreamEvent describes one change in a user's registry.
type StreamEvent struct {
	Type      EventType      `json:"type"`
	UserID    UserID         `json:"user_id"`
	StreamID  StreamID       `json:"stream_id,omitempty"`
	Stream    *Stream        `json:"stream,omitempty"`
	Metrics   *StreamMetrics `json:"metrics,omitempty"`
	Streams   []*Stream      `json:"streams,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

package domain

import (
	"time"
)

type StreamID string

// StreamStatus is the lifecycle state of a stream configuration.
type StreamStatus string

const (
	StatusOffline  StreamStatus = "offline"
	StatusStarting StreamStatus = "starting"
	StatusLive     StreamStatus = "live"
	StatusStopping StreamStatus = "stopping"
)

// Running reports whether the status counts against the user's quota.
func (s StreamStatus) Running() bool {
	return s == StatusStarting || s == StatusLive
}

func (s StreamStatus) Valid() bool {
	switch s {
	case StatusOffline, StatusStarting, StatusLive, StatusStopping:
		return true
	}
	return false
}

type Quality string

const (
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
)

func (q Quality) Valid() bool {
	return q == Quality1080p || q == Quality720p || q == Quality480p
}

type Orientation string

const (
	OrientationDesktop Orientation = "desktop"
	OrientationMobile  Orientation = "mobile"
)

func (o Orientation) Valid() bool {
	return o == OrientationDesktop || o == OrientationMobile
}

// Telemetry is the simulated live signal of a stream. All fields are zero
// while the stream is offline.
type Telemetry struct {
	Ping          int     `json:"ping"`
	ViewerCount   int     `json:"viewer_count"`
	DroppedFrames int     `json:"dropped_frames"`
	UploadSpeed   float64 `json:"upload_speed"` // Mbps
}

type Stream struct {
	ID               StreamID     `json:"id"`
	Owner            UserID       `json:"user_id"`
	Title            string       `json:"title"`
	DestinationKey   string       `json:"destination_key"`
	Quality          Quality      `json:"quality"`
	Orientation      Orientation  `json:"orientation"`
	Looping          bool         `json:"looping"`
	MaxDurationHours *int         `json:"max_duration_hours,omitempty"`
	FileName         string       `json:"file_name,omitempty"`
	OverlayText      string       `json:"overlay_text,omitempty"`
	Status           StreamStatus `json:"status"`
	StartTime        *time.Time   `json:"start_time,omitempty"`
	Telemetry
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy safe to hand out of the engine.
func (s *Stream) Clone() *Stream {
	if s == nil {
		return nil
	}
	c := *s
	if s.MaxDurationHours != nil {
		h := *s.MaxDurationHours
		c.MaxDurationHours = &h
	}
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	return &c
}

// ResetToOffline returns the stream to its idle state: no start time, zero telemetry.
func (s *Stream) ResetToOffline() {
	s.Status = StatusOffline
	s.StartTime = nil
	s.Telemetry = Telemetry{}
}

// StreamDraft carries the user-supplied fields of a new stream.
type StreamDraft struct {
	Title            string
	DestinationKey   string
	Quality          Quality
	Orientation      Orientation
	Looping          bool
	MaxDurationHours *int
	FileName         string
	OverlayText      string
}

// WithDefaults fills unset enum fields with the panel defaults (720p, desktop).
func (d StreamDraft) WithDefaults() StreamDraft {
	if d.Quality == "" {
		d.Quality = Quality720p
	}
	if d.Orientation == "" {
		d.Orientation = OrientationDesktop
	}
	return d
}

// StreamPatch is a partial update of a stream's configuration. Nil fields are
// left untouched. Status and telemetry belong to the lifecycle engine and are
// deliberately absent.
type StreamPatch struct {
	Title            *string
	DestinationKey   *string
	Quality          *Quality
	Orientation      *Orientation
	Looping          *bool
	MaxDurationHours *int
	ClearMaxDuration bool
	FileName         *string
	OverlayText      *string
}

func (p StreamPatch) IsEmpty() bool {
	return p.Title == nil && p.DestinationKey == nil && p.Quality == nil &&
		p.Orientation == nil && p.Looping == nil && p.MaxDurationHours == nil &&
		!p.ClearMaxDuration && p.FileName == nil && p.OverlayText == nil
}

func (p StreamPatch) ApplyTo(s *Stream) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.DestinationKey != nil {
		s.DestinationKey = *p.DestinationKey
	}
	if p.Quality != nil {
		s.Quality = *p.Quality
	}
	if p.Orientation != nil {
		s.Orientation = *p.Orientation
	}
	if p.Looping != nil {
		s.Looping = *p.Looping
	}
	if p.ClearMaxDuration {
		s.MaxDurationHours = nil
	}
	if p.MaxDurationHours != nil {
		h := *p.MaxDurationHours
		s.MaxDurationHours = &h
	}
	if p.FileName != nil {
		s.FileName = *p.FileName
	}
	if p.OverlayText != nil {
		s.OverlayText = *p.OverlayText
	}
}

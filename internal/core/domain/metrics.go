package domain

// StreamMetrics is the telemetry view handed to the presentation layer.
type StreamMetrics struct {
	StreamID      StreamID     `json:"stream_id"`
	Status        StreamStatus `json:"status"`
	Ping          int          `json:"ping"`
	ViewerCount   int          `json:"viewer_count"`
	DroppedFrames int          `json:"dropped_frames"`
	UploadSpeed   float64      `json:"upload_speed"`
	Duration      string       `json:"duration"` // HH:MM:SS
	// Degraded flags a live stream whose dropped frames crossed the warning
	// threshold. The engine never acts on it.
	Degraded bool `json:"degraded"`
}

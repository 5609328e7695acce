package journal

import "time"

// SessionRecord is one uploaded video. ClosedAt is nil while the session is
// still open on the service as far as this client knows.
type SessionRecord struct {
	ID          string     `json:"id"`
	FileName    string     `json:"file_name"`
	FrameCount  int        `json:"frame_count"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	FPS         float64    `json:"fps"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CloseReason string     `json:"close_reason,omitempty"`
}

// RenderRecord is one exported render.
type RenderRecord struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	FramesProcessed int       `json:"frames_processed"`
	OutputPath      string    `json:"output_path"`
	Digest          string    `json:"digest"`
	SizeBytes       int64     `json:"size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}

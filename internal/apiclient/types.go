package apiclient

import (
	"io"
	"strconv"
)

// VideoMetadata describes an uploaded video. It is immutable once the
// service returns it.
type VideoMetadata struct {
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
}

// UploadResponse is returned by /upload.
type UploadResponse struct {
	VideoID string        `json:"video_id"`
	Meta    VideoMetadata `json:"meta"`
}

// SelectResponse is returned by /select. OK=false means no trackable
// subject was found at the point; it is not an error.
type SelectResponse struct {
	OK      bool   `json:"ok"`
	TrackID *int   `json:"track_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// RenderResponse is returned by /render once the whole video has been
// processed, or rejected.
type RenderResponse struct {
	OK              bool   `json:"ok"`
	OutputPath      string `json:"output_path,omitempty"`
	Message         string `json:"message,omitempty"`
	FramesProcessed *int   `json:"frames_processed,omitempty"`
}

// OKResponse is the body of reset, close and health.
type OKResponse struct {
	OK bool `json:"ok"`
}

// File is a video handed to Upload.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Default preview frame options.
const (
	DefaultFrameDownscale  = 640
	DefaultFrameInferEvery = 3
	DefaultFrameBlurKSize  = 25
	DefaultFrameFeatherPx  = 5
	DefaultFrameJPGQuality = 85
)

// Default full-render options.
const (
	DefaultRenderDownscale = 720
	DefaultRenderBlurKSize = 31
	DefaultRenderFeatherPx = 7
	DefaultRenderEndFrame  = -1
)

// FrameOptions carries the per-frame rendering parameters. Zero values
// fall back to the defaults.
type FrameOptions struct {
	Downscale  int
	InferEvery int
	BlurKSize  int
	FeatherPx  int
	Outline    bool
	JPGQuality int
}

// DefaultFrameOptions returns the preview defaults.
func DefaultFrameOptions() FrameOptions {
	return FrameOptions{
		Downscale:  DefaultFrameDownscale,
		InferEvery: DefaultFrameInferEvery,
		BlurKSize:  DefaultFrameBlurKSize,
		FeatherPx:  DefaultFrameFeatherPx,
		JPGQuality: DefaultFrameJPGQuality,
	}
}

// WithDefaults returns a copy with every zero field replaced by its default.
func (o FrameOptions) WithDefaults() FrameOptions {
	o.Downscale = orDefault(o.Downscale, DefaultFrameDownscale)
	o.InferEvery = orDefault(o.InferEvery, DefaultFrameInferEvery)
	o.BlurKSize = orDefault(o.BlurKSize, DefaultFrameBlurKSize)
	o.FeatherPx = orDefault(o.FeatherPx, DefaultFrameFeatherPx)
	o.JPGQuality = orDefault(o.JPGQuality, DefaultFrameJPGQuality)
	return o
}

// RenderOptions carries the full-render parameters. A nil Downscale is
// omitted from the request so the service renders at source resolution.
// Other zero values fall back to the defaults; EndFrame 0 means -1 (to end).
type RenderOptions struct {
	Downscale  *int
	BlurKSize  int
	FeatherPx  int
	Outline    bool
	StartFrame int
	EndFrame   int
}

// DefaultRenderOptions returns the render defaults, downscaled to 720.
func DefaultRenderOptions() RenderOptions {
	downscale := DefaultRenderDownscale
	return RenderOptions{
		Downscale: &downscale,
		BlurKSize: DefaultRenderBlurKSize,
		FeatherPx: DefaultRenderFeatherPx,
		EndFrame:  DefaultRenderEndFrame,
	}
}

// WithDefaults returns a copy with every zero field replaced by its default.
func (o RenderOptions) WithDefaults() RenderOptions {
	o.BlurKSize = orDefault(o.BlurKSize, DefaultRenderBlurKSize)
	o.FeatherPx = orDefault(o.FeatherPx, DefaultRenderFeatherPx)
	o.EndFrame = orDefault(o.EndFrame, DefaultRenderEndFrame)
	return o
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

package frames

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"

	// Frame format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp" // WebP format support
)

// Handle refers to one acquired frame. The zero Handle refers to nothing.
type Handle uint64

// ErrEmptyFrame is returned when Acquire is given no data.
var ErrEmptyFrame = errors.New("empty frame data")

// Frame is an acquired, immutable preview image.
type Frame struct {
	Handle     Handle
	Index      int
	Width      int
	Height     int
	Format     string
	Data       []byte
	AcquiredAt time.Time
}

// Manager tracks every acquired frame until it is released. Each handle is
// released exactly once; a released handle can no longer be resolved.
type Manager struct {
	mu   sync.Mutex
	next Handle
	live map[Handle]*Frame
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{live: make(map[Handle]*Frame)}
}

// Acquire registers encoded image data for frameIndex and returns its
// handle. The image header is decoded to learn the dimensions; data that is
// not a supported image is rejected and no handle is created. The Manager
// takes ownership of data.
func (m *Manager) Acquire(data []byte, frameIndex int) (Handle, error) {
	if len(data) == 0 {
		return 0, ErrEmptyFrame
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode frame %d: %w", frameIndex, err)
	}

	m.mu.Lock()
	m.next++
	h := m.next
	m.live[h] = &Frame{
		Handle:     h,
		Index:      frameIndex,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Format:     format,
		Data:       data,
		AcquiredAt: time.Now(),
	}
	live := len(m.live)
	m.mu.Unlock()

	metrics.FrameHandlesAcquired.Inc()
	metrics.FrameHandlesLive.Set(float64(live))
	metrics.FrameBytesLive.Add(float64(len(data)))
	return h, nil
}

// Get resolves a live handle.
func (m *Manager) Get(h Handle) (*Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.live[h]
	return f, ok
}

// Release frees the frame behind h. It reports false when h was never
// acquired or has already been released.
func (m *Manager) Release(h Handle) bool {
	if h == 0 {
		return false
	}

	m.mu.Lock()
	f, ok := m.live[h]
	if ok {
		delete(m.live, h)
	}
	live := len(m.live)
	m.mu.Unlock()

	if !ok {
		logging.Debug("frame handle %d already released", h)
		return false
	}

	metrics.FrameHandlesReleased.Inc()
	metrics.FrameHandlesLive.Set(float64(live))
	metrics.FrameBytesLive.Sub(float64(len(f.Data)))
	return true
}

// ReleaseAll frees every live frame and returns how many were released.
func (m *Manager) ReleaseAll() int {
	m.mu.Lock()
	handles := make([]Handle, 0, len(m.live))
	for h := range m.live {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	n := 0
	for _, h := range handles {
		if m.Release(h) {
			n++
		}
	}
	return n
}

// Live returns the number of acquired, unreleased frames.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

package session

import (
	"context"
	"sync"
	"time"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/frames"
	"subject-focus/internal/playback"
)

// Processor is the subset of the processing service a Session drives.
// *apiclient.Client implements it.
type Processor interface {
	Upload(ctx context.Context, file apiclient.File) (*apiclient.UploadResponse, error)
	GetFrame(ctx context.Context, videoID string, frameIndex int, opts apiclient.FrameOptions) ([]byte, error)
	SelectSubject(ctx context.Context, videoID string, frameIndex, x, y, downscale int) (*apiclient.SelectResponse, error)
	ResetTarget(ctx context.Context, videoID string) (*apiclient.OKResponse, error)
	Render(ctx context.Context, videoID string, opts apiclient.RenderOptions) (*apiclient.RenderResponse, error)
	Close(ctx context.Context, videoID string) (*apiclient.OKResponse, error)
}

// Exporter saves the rendered video of a session and returns where it was
// written.
type Exporter interface {
	Export(ctx context.Context, sessionID string, framesProcessed int) (string, error)
}

// Recorder keeps a durable record of session lifetimes.
type Recorder interface {
	SessionOpened(ctx context.Context, id, fileName string, meta apiclient.VideoMetadata) error
	SessionClosed(ctx context.Context, id, reason string) error
}

// Options configures a Session.
type Options struct {
	// Frame options for every preview fetch. Zero fields use the defaults.
	Frame apiclient.FrameOptions
	// Render options for full renders. The zero value uses
	// apiclient.DefaultRenderOptions().
	Render apiclient.RenderOptions
	// PlaybackInterval is the playback cadence.
	PlaybackInterval time.Duration
	// NewTicker creates the playback ticker. Defaults to playback.NewTicker.
	NewTicker func(time.Duration) playback.Ticker
	// RenderTimeout bounds a full render. Zero means no limit.
	RenderTimeout time.Duration
	// CloseOnRemove closes the server-side session when the video is removed.
	CloseOnRemove bool

	Notifier Notifier
	Exporter Exporter
	Recorder Recorder
}

// Session drives one video through the processing service: upload, preview,
// subject selection, playback and render. All methods are safe for
// concurrent use. Blocking methods return once their network call settles.
type Session struct {
	proc    Processor
	opts    Options
	frames  *frames.Manager
	display *frames.Display

	mu sync.Mutex

	id             string
	fileName       string
	meta           apiclient.VideoMetadata
	currentFrame   int
	displayedFrame int
	playing        bool
	loading        bool
	hasTarget      bool
	rendering      bool
	uploading      bool
	pending        int

	// generation changes on every teardown; responses from an older
	// generation are discarded.
	generation uint64

	// displaySeq is issued per display fetch; appliedSeq is the newest
	// installed. Older responses never replace newer ones.
	displaySeq uint64
	appliedSeq uint64

	// epoch identifies the active playback run, zero when stopped.
	epoch     uint64
	lastEpoch uint64
	task      *playback.Task

	// selectSeq is issued per selection; responses at or below
	// selectApplied or selectFloor are stale.
	selectSeq     uint64
	selectApplied uint64
	selectFloor   uint64

	bgCtx    context.Context
	bgCancel context.CancelFunc
	fetches  sync.WaitGroup
}

// New creates an empty Session.
func New(proc Processor, opts Options) *Session {
	opts.Frame = opts.Frame.WithDefaults()
	if opts.Render == (apiclient.RenderOptions{}) {
		opts.Render = apiclient.DefaultRenderOptions()
	}
	if opts.PlaybackInterval <= 0 {
		opts.PlaybackInterval = playback.DefaultInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = playback.NewTicker
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}

	mgr := frames.NewManager()
	return &Session{
		proc:           proc,
		opts:           opts,
		frames:         mgr,
		display:        frames.NewDisplay(mgr),
		displayedFrame: -1,
	}
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	State             State                   `json:"state"`
	SessionID         string                  `json:"session_id,omitempty"`
	FileName          string                  `json:"file_name,omitempty"`
	Meta              apiclient.VideoMetadata `json:"meta"`
	CurrentFrame      int                     `json:"current_frame"`
	DisplayedFrame    int                     `json:"displayed_frame"`
	IsPlaying         bool                    `json:"is_playing"`
	IsLoadingFrame    bool                    `json:"is_loading_frame"`
	HasTarget         bool                    `json:"has_target"`
	IsRendering       bool                    `json:"is_rendering"`
	IsUploading       bool                    `json:"is_uploading"`
	PendingSelections int                     `json:"pending_selections"`
	LiveFrames        int                     `json:"live_frames"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		SessionID:         s.id,
		FileName:          s.fileName,
		Meta:              s.meta,
		CurrentFrame:      s.currentFrame,
		DisplayedFrame:    s.displayedFrame,
		IsPlaying:         s.playing,
		IsLoadingFrame:    s.loading,
		HasTarget:         s.hasTarget,
		IsRendering:       s.rendering,
		IsUploading:       s.uploading,
		PendingSelections: s.pending,
	}
	s.mu.Unlock()

	snap.State = snap.derive()
	snap.LiveFrames = s.frames.Live()
	return snap
}

// DisplayedFrame returns the frame currently shown, if any.
func (s *Session) DisplayedFrame() (*frames.Frame, bool) {
	return s.display.Current()
}

// FrameOptions returns the preview options in effect.
func (s *Session) FrameOptions() apiclient.FrameOptions {
	return s.opts.Frame
}

// Wait blocks until background playback fetches have settled.
func (s *Session) Wait() {
	s.fetches.Wait()
}

func (s *Session) notify(level Level, title, detail string) {
	s.opts.Notifier.Notify(Notification{Level: level, Title: title, Detail: detail})
}

package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/metrics"
	"subject-focus/internal/playback"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const waitTimeout = 2 * time.Second

type selectCall struct {
	ID        string
	Frame     int
	X, Y      int
	Downscale int
}

// fakeProcessor is a scripted processing service.
type fakeProcessor struct {
	mu sync.Mutex

	videoID   string
	meta      apiclient.VideoMetadata
	frameData []byte

	uploadErr   error
	frameHook   func(frame int) error
	selectHook  func(call int) (*apiclient.SelectResponse, error)
	resetResp   *apiclient.OKResponse
	resetErr    error
	renderResp  *apiclient.RenderResponse
	renderErr   error
	renderCalls int

	frameCalls  []int
	selectCalls []selectCall
	resetCalls  int
	closeCalls  []string
}

func newFakeProcessor(t *testing.T, frameCount int) *fakeProcessor {
	t.Helper()
	return &fakeProcessor{
		videoID:   "vid-1",
		meta:      apiclient.VideoMetadata{FrameCount: frameCount, Width: 1280, Height: 720, FPS: 30},
		frameData: testPNG(t, 640, 360),
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func (f *fakeProcessor) Upload(_ context.Context, file apiclient.File) (*apiclient.UploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &apiclient.UploadResponse{VideoID: f.videoID, Meta: f.meta}, nil
}

func (f *fakeProcessor) GetFrame(_ context.Context, _ string, frame int, _ apiclient.FrameOptions) ([]byte, error) {
	f.mu.Lock()
	f.frameCalls = append(f.frameCalls, frame)
	hook := f.frameHook
	data := f.frameData
	f.mu.Unlock()

	if hook != nil {
		if err := hook(frame); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (f *fakeProcessor) SelectSubject(_ context.Context, id string, frame, x, y, downscale int) (*apiclient.SelectResponse, error) {
	f.mu.Lock()
	f.selectCalls = append(f.selectCalls, selectCall{ID: id, Frame: frame, X: x, Y: y, Downscale: downscale})
	n := len(f.selectCalls)
	hook := f.selectHook
	f.mu.Unlock()

	if hook != nil {
		return hook(n)
	}
	trackID := 1
	return &apiclient.SelectResponse{OK: true, TrackID: &trackID}, nil
}

func (f *fakeProcessor) ResetTarget(_ context.Context, _ string) (*apiclient.OKResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	if f.resetErr != nil {
		return nil, f.resetErr
	}
	if f.resetResp != nil {
		return f.resetResp, nil
	}
	return &apiclient.OKResponse{OK: true}, nil
}

func (f *fakeProcessor) Render(_ context.Context, _ string, _ apiclient.RenderOptions) (*apiclient.RenderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renderCalls++
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	if f.renderResp != nil {
		return f.renderResp, nil
	}
	n := f.meta.FrameCount
	return &apiclient.RenderResponse{OK: true, FramesProcessed: &n}, nil
}

func (f *fakeProcessor) Close(_ context.Context, id string) (*apiclient.OKResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls = append(f.closeCalls, id)
	return &apiclient.OKResponse{OK: true}, nil
}

func (f *fakeProcessor) frames() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.frameCalls...)
}

func (f *fakeProcessor) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frameCalls) + len(f.selectCalls) + f.resetCalls + f.renderCalls + len(f.closeCalls)
}

type notifications struct {
	mu   sync.Mutex
	list []Notification
}

func (n *notifications) Notify(note Notification) {
	n.mu.Lock()
	n.list = append(n.list, note)
	n.mu.Unlock()
}

func (n *notifications) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.list))
	for _, note := range n.list {
		out = append(out, note.Title)
	}
	return out
}

func (n *notifications) has(title string) bool {
	for _, got := range n.titles() {
		if got == title {
			return true
		}
	}
	return false
}

type fakeExporter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (e *fakeExporter) Export(_ context.Context, id string, framesProcessed int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, id)
	if e.err != nil {
		return "", e.err
	}
	return "/downloads/" + id + "_focused.mp4", nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	opened []string
	closed map[string]string
}

func (r *fakeRecorder) SessionOpened(_ context.Context, id, _ string, _ apiclient.VideoMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, id)
	return nil
}

func (r *fakeRecorder) SessionClosed(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed == nil {
		r.closed = map[string]string{}
	}
	r.closed[id] = reason
	return nil
}

type harness struct {
	proc     *fakeProcessor
	session  *Session
	notes    *notifications
	exporter *fakeExporter
	recorder *fakeRecorder

	mu      sync.Mutex
	tickers []*playback.ManualTicker
}

func newHarness(t *testing.T, frameCount int) *harness {
	t.Helper()
	h := &harness{
		proc:     newFakeProcessor(t, frameCount),
		notes:    &notifications{},
		exporter: &fakeExporter{},
		recorder: &fakeRecorder{},
	}
	h.session = New(h.proc, Options{
		NewTicker: func(time.Duration) playback.Ticker {
			mt := playback.NewManualTicker()
			h.mu.Lock()
			h.tickers = append(h.tickers, mt)
			h.mu.Unlock()
			return mt
		},
		CloseOnRemove: true,
		Notifier:      h.notes,
		Exporter:      h.exporter,
		Recorder:      h.recorder,
	})
	t.Cleanup(func() {
		_ = h.session.Close(context.Background())
		h.session.Wait()
	})
	return h
}

func (h *harness) upload(t *testing.T) {
	t.Helper()
	err := h.session.Upload(context.Background(), apiclient.File{
		Name:        "clip.mp4",
		ContentType: "video/mp4",
		Body:        strings.NewReader("video"),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
}

func (h *harness) ticker(t *testing.T) *playback.ManualTicker {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.tickers) == 0 {
		t.Fatal("playback never started")
	}
	return h.tickers[len(h.tickers)-1]
}

// stepTo moves the logical frame to target with interactive steps.
func (h *harness) stepTo(t *testing.T, target int) {
	t.Helper()
	for h.session.Snapshot().CurrentFrame < target {
		if err := h.session.Step(context.Background(), 1); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestUploadEchoesMetadata(t *testing.T) {
	h := newHarness(t, 300)
	h.upload(t)

	snap := h.session.Snapshot()
	wantMeta := apiclient.VideoMetadata{FrameCount: 300, Width: 1280, Height: 720, FPS: 30}
	if diff := cmp.Diff(wantMeta, snap.Meta); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if snap.SessionID != "vid-1" || snap.State != Ready || snap.CurrentFrame != 0 || snap.DisplayedFrame != 0 {
		t.Errorf("unexpected snapshot after upload: %+v", snap)
	}
	if diff := cmp.Diff([]int{0}, h.proc.frames()); diff != "" {
		t.Errorf("frame fetches mismatch (-want +got):\n%s", diff)
	}
	if snap.LiveFrames != 1 {
		t.Errorf("LiveFrames = %d, want 1", snap.LiveFrames)
	}

	h.notes.mu.Lock()
	first := h.notes.list[0]
	h.notes.mu.Unlock()
	if first.Title != "Video uploaded successfully" || first.Detail != "300 frames • 1280x720" {
		t.Errorf("unexpected notification: %+v", first)
	}
	if diff := cmp.Diff([]string{"vid-1"}, h.recorder.opened); diff != "" {
		t.Errorf("recorder mismatch (-want +got):\n%s", diff)
	}

	if err := h.session.Upload(context.Background(), apiclient.File{Name: "b.mp4", Body: strings.NewReader("x")}); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Upload error = %v, want ErrSessionActive", err)
	}
}

func TestUploadFailureReturnsToEmpty(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantTitle string
	}{
		{"validation", &apiclient.ValidationError{Field: "file", Reason: "not a video"}, "Invalid file"},
		{"transport", &apiclient.TransportError{Op: "upload", StatusCode: 500, Status: "500 Internal Server Error"}, "Upload failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 10)
			h.proc.uploadErr = tt.err

			err := h.session.Upload(context.Background(), apiclient.File{Name: "a.mp4", Body: strings.NewReader("x")})
			if !errors.Is(err, tt.err) {
				t.Errorf("Upload error = %v, want %v", err, tt.err)
			}
			if snap := h.session.Snapshot(); snap.State != Empty || snap.IsUploading {
				t.Errorf("state after failed upload = %+v", snap)
			}
			if !h.notes.has(tt.wantTitle) {
				t.Errorf("notifications %v missing %q", h.notes.titles(), tt.wantTitle)
			}
			if len(h.proc.frames()) != 0 {
				t.Error("no frame should be fetched after a failed upload")
			}
		})
	}
}

func TestStepForwardThenBackward(t *testing.T) {
	const frameCount = 6

	for start := 0; start < frameCount-1; start++ {
		h := newHarness(t, frameCount)
		h.upload(t)
		h.stepTo(t, start)

		before := len(h.proc.frames())
		if err := h.session.Step(context.Background(), 1); err != nil {
			t.Fatalf("Step(+1) from %d failed: %v", start, err)
		}
		if got := h.session.Snapshot().CurrentFrame; got != start+1 {
			t.Errorf("after Step(+1) from %d CurrentFrame = %d", start, got)
		}
		if err := h.session.Step(context.Background(), -1); err != nil {
			t.Fatalf("Step(-1) failed: %v", err)
		}

		snap := h.session.Snapshot()
		if snap.CurrentFrame != start || snap.DisplayedFrame != start {
			t.Errorf("start %d: CurrentFrame = %d, DisplayedFrame = %d", start, snap.CurrentFrame, snap.DisplayedFrame)
		}
		fetched := h.proc.frames()[before:]
		if diff := cmp.Diff([]int{start + 1, start}, fetched); diff != "" {
			t.Errorf("start %d: fetches mismatch (-want +got):\n%s", start, diff)
		}
		if snap.LiveFrames != 1 {
			t.Errorf("start %d: LiveFrames = %d, want 1", start, snap.LiveFrames)
		}
	}
}

func TestStepOutOfRangeIsNoop(t *testing.T) {
	h := newHarness(t, 3)
	h.upload(t)

	before := h.session.Snapshot()
	if err := h.session.Step(context.Background(), -1); err != nil {
		t.Errorf("Step(-1) at 0 error = %v, want nil", err)
	}
	if diff := cmp.Diff(before, h.session.Snapshot()); diff != "" {
		t.Errorf("state changed on no-op step (-want +got):\n%s", diff)
	}

	h.stepTo(t, 2)
	fetches := len(h.proc.frames())
	before = h.session.Snapshot()
	if err := h.session.Step(context.Background(), 1); err != nil {
		t.Errorf("Step(+1) at end error = %v, want nil", err)
	}
	if diff := cmp.Diff(before, h.session.Snapshot()); diff != "" {
		t.Errorf("state changed on no-op step (-want +got):\n%s", diff)
	}
	if len(h.proc.frames()) != fetches {
		t.Error("out-of-range step must not fetch")
	}
}

func TestStepPreconditions(t *testing.T) {
	h := newHarness(t, 10)
	if err := h.session.Step(context.Background(), 1); !errors.Is(err, ErrNoSession) {
		t.Errorf("Step without session error = %v, want ErrNoSession", err)
	}

	h.upload(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	h.proc.frameHook = func(int) error {
		entered <- struct{}{}
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- h.session.Step(context.Background(), 1) }()
	<-entered

	if snap := h.session.Snapshot(); !snap.IsLoadingFrame || snap.State != Stepping {
		t.Errorf("expected loading state, got %+v", snap)
	}
	if err := h.session.Step(context.Background(), 1); !errors.Is(err, ErrBusy) {
		t.Errorf("Step during load error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	h.proc.frameHook = nil

	if _, err := h.session.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay failed: %v", err)
	}
	if err := h.session.Step(context.Background(), 1); !errors.Is(err, ErrPlaying) {
		t.Errorf("Step while playing error = %v, want ErrPlaying", err)
	}
}

func TestStepFailureNotifies(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)

	h.proc.frameHook = func(int) error {
		return &apiclient.TransportError{Op: "frame", StatusCode: http.StatusInternalServerError, Status: "500 Internal Server Error"}
	}
	if err := h.session.Step(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}

	snap := h.session.Snapshot()
	if snap.IsLoadingFrame || snap.CurrentFrame != 0 || snap.DisplayedFrame != 0 {
		t.Errorf("state not rolled back: %+v", snap)
	}
	if !h.notes.has("Failed to load frame") {
		t.Errorf("notifications %v missing frame failure", h.notes.titles())
	}
}

func TestPlaybackAdvances(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)

	playing, err := h.session.TogglePlay()
	if err != nil || !playing {
		t.Fatalf("TogglePlay = %v, %v", playing, err)
	}
	ticker := h.ticker(t)
	for i := 0; i < 3; i++ {
		if !ticker.Tick(waitTimeout) {
			t.Fatalf("tick %d not taken", i)
		}
	}
	eventually(t, "frame 3", func() bool { return h.session.Snapshot().CurrentFrame == 3 })
	h.session.Wait()

	if diff := cmp.Diff([]int{0, 1, 2, 3}, h.proc.frames()); diff != "" {
		t.Errorf("fetches mismatch (-want +got):\n%s", diff)
	}
	snap := h.session.Snapshot()
	if snap.DisplayedFrame != 3 || !snap.IsPlaying || snap.IsLoadingFrame {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.LiveFrames != 1 {
		t.Errorf("LiveFrames = %d, want 1", snap.LiveFrames)
	}
}

func TestPlaybackFromLastFrameWrapsAndStops(t *testing.T) {
	h := newHarness(t, 3)
	h.upload(t)
	h.stepTo(t, 2)
	fetches := len(h.proc.frames())

	if _, err := h.session.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay failed: %v", err)
	}
	ticker := h.ticker(t)
	if !ticker.Tick(waitTimeout) {
		t.Fatal("tick not taken")
	}
	eventually(t, "playback to stop", func() bool { return !h.session.Snapshot().IsPlaying })

	snap := h.session.Snapshot()
	if snap.CurrentFrame != 0 || snap.State != Ready {
		t.Errorf("after end: %+v", snap)
	}
	eventually(t, "ticker to stop", ticker.Stopped)
	if ticker.Tick(20 * time.Millisecond) {
		t.Error("a finished playback must not take further ticks")
	}
	h.session.Wait()
	if len(h.proc.frames()) != fetches {
		t.Errorf("end of playback fetched frames: %v", h.proc.frames()[fetches:])
	}
}

func TestPauseStopsTimerFetches(t *testing.T) {
	h := newHarness(t, 100)
	h.upload(t)

	if _, err := h.session.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay failed: %v", err)
	}
	ticker := h.ticker(t)
	if !ticker.Tick(waitTimeout) {
		t.Fatal("tick not taken")
	}
	eventually(t, "frame 1", func() bool { return h.session.Snapshot().CurrentFrame == 1 })

	h.session.mu.Lock()
	epoch := h.session.epoch
	h.session.mu.Unlock()

	playing, err := h.session.TogglePlay()
	if err != nil || playing {
		t.Fatalf("TogglePlay (pause) = %v, %v", playing, err)
	}
	h.session.Wait()
	fetches := len(h.proc.frames())

	// A tick already dispatched when pause happened is ignored.
	h.session.advance(epoch)
	ticker.Tick(20 * time.Millisecond)
	h.session.Wait()

	if got := len(h.proc.frames()); got != fetches {
		t.Errorf("fetches after pause: %v", h.proc.frames()[fetches:])
	}
	if got := h.session.Snapshot().CurrentFrame; got != 1 {
		t.Errorf("CurrentFrame = %d after pause, want 1", got)
	}
}

func TestStalePlaybackFrameDiscarded(t *testing.T) {
	h := newHarness(t, 100)
	h.upload(t)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.proc.frameHook = func(int) error {
		entered <- struct{}{}
		<-release
		return nil
	}

	if _, err := h.session.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay failed: %v", err)
	}
	if !h.ticker(t).Tick(waitTimeout) {
		t.Fatal("tick not taken")
	}
	<-entered

	if _, err := h.session.TogglePlay(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	close(release)
	h.session.Wait()

	snap := h.session.Snapshot()
	if snap.DisplayedFrame != 0 {
		t.Errorf("stale playback frame was displayed: DisplayedFrame = %d", snap.DisplayedFrame)
	}
	if snap.LiveFrames != 1 {
		t.Errorf("LiveFrames = %d, stale frame not released", snap.LiveFrames)
	}
}

func TestPlaybackFailureKeepsClockRunning(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)

	h.proc.frameHook = func(frame int) error {
		if frame == 1 {
			return &apiclient.TransportError{Op: "frame", StatusCode: 500, Status: "500 Internal Server Error"}
		}
		return nil
	}
	if _, err := h.session.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay failed: %v", err)
	}
	ticker := h.ticker(t)
	ticker.Tick(waitTimeout)
	ticker.Tick(waitTimeout)
	eventually(t, "frame 2", func() bool { return h.session.Snapshot().CurrentFrame == 2 })
	h.session.Wait()

	snap := h.session.Snapshot()
	if !snap.IsPlaying || snap.DisplayedFrame != 2 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if h.notes.has("Failed to load frame") {
		t.Error("playback failures must not notify")
	}
}

func TestSelectThenResetReloadsOnce(t *testing.T) {
	h := newHarness(t, 300)
	h.upload(t)

	res, err := h.session.Select(context.Background(), 400, 300)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if !res.OK || !res.Applied {
		t.Errorf("Select result = %+v", res)
	}
	want := []selectCall{{ID: "vid-1", Frame: 0, X: 400, Y: 300, Downscale: 640}}
	if diff := cmp.Diff(want, h.proc.selectCalls); diff != "" {
		t.Errorf("select calls mismatch (-want +got):\n%s", diff)
	}
	if !h.session.Snapshot().HasTarget {
		t.Fatal("HasTarget should be true after a successful selection")
	}
	if !h.notes.has("Subject locked") {
		t.Errorf("notifications %v missing lock", h.notes.titles())
	}

	fetches := len(h.proc.frames())
	if err := h.session.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	snap := h.session.Snapshot()
	if snap.HasTarget {
		t.Error("HasTarget should be false after reset")
	}
	if diff := cmp.Diff([]int{0}, h.proc.frames()[fetches:]); diff != "" {
		t.Errorf("reset reload mismatch (-want +got):\n%s", diff)
	}
	if snap.LiveFrames != 1 {
		t.Errorf("LiveFrames = %d, want 1", snap.LiveFrames)
	}
}

func TestSelectNegativeResult(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)
	h.proc.selectHook = func(int) (*apiclient.SelectResponse, error) {
		return &apiclient.SelectResponse{OK: false, Message: "nothing there"}, nil
	}

	res, err := h.session.Select(context.Background(), 5, 5)
	if err != nil {
		t.Fatalf("negative result returned error: %v", err)
	}
	if res.OK || !res.Applied || res.Message != "nothing there" {
		t.Errorf("Select result = %+v", res)
	}
	if h.session.Snapshot().HasTarget {
		t.Error("HasTarget must stay false")
	}
	if !h.notes.has("No subject found") {
		t.Errorf("notifications %v missing miss", h.notes.titles())
	}
}

func TestSelectWithoutFrame(t *testing.T) {
	h := newHarness(t, 10)
	if _, err := h.session.Select(context.Background(), 1, 1); !errors.Is(err, ErrNoSession) {
		t.Errorf("Select without session error = %v, want ErrNoSession", err)
	}

	h.proc.frameHook = func(int) error {
		return &apiclient.TransportError{Op: "frame", StatusCode: 500, Status: "500"}
	}
	h.upload(t)
	if _, err := h.session.Select(context.Background(), 1, 1); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Select without frame error = %v, want ErrNoFrame", err)
	}
}

func TestOlderSelectionResponseDiscarded(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)

	releaseFirst := make(chan struct{})
	firstEntered := make(chan struct{})
	h.proc.selectHook = func(call int) (*apiclient.SelectResponse, error) {
		if call == 1 {
			close(firstEntered)
			<-releaseFirst
			return &apiclient.SelectResponse{OK: true}, nil
		}
		return &apiclient.SelectResponse{OK: false}, nil
	}

	firstDone := make(chan *SelectResult, 1)
	go func() {
		res, _ := h.session.Select(context.Background(), 10, 10)
		firstDone <- res
	}()
	<-firstEntered

	if h.session.Snapshot().State != Selecting {
		t.Errorf("state = %v, want selecting", h.session.Snapshot().State)
	}

	second, err := h.session.Select(context.Background(), 20, 20)
	if err != nil || !second.Applied {
		t.Fatalf("second Select = %+v, %v", second, err)
	}

	close(releaseFirst)
	first := <-firstDone
	if first.Applied {
		t.Error("older response must not be applied after a newer one")
	}
	if h.session.Snapshot().HasTarget {
		t.Error("HasTarget must follow the newest selection")
	}
}

func TestResetDiscardsInflightSelection(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	h.proc.selectHook = func(int) (*apiclient.SelectResponse, error) {
		close(entered)
		<-release
		return &apiclient.SelectResponse{OK: true}, nil
	}

	done := make(chan *SelectResult, 1)
	go func() {
		res, _ := h.session.Select(context.Background(), 10, 10)
		done <- res
	}()
	<-entered

	if err := h.session.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	close(release)

	if res := <-done; res.Applied {
		t.Error("selection issued before reset must be discarded")
	}
	if h.session.Snapshot().HasTarget {
		t.Error("HasTarget must stay false after reset")
	}
}

func TestResetFailure(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)
	if _, err := h.session.Select(context.Background(), 1, 1); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	h.proc.resetResp = &apiclient.OKResponse{OK: false}
	if err := h.session.Reset(context.Background()); !errors.Is(err, ErrResetRejected) {
		t.Errorf("Reset error = %v, want ErrResetRejected", err)
	}
	if !h.session.Snapshot().HasTarget {
		t.Error("a failed reset must keep the target")
	}
	if !h.notes.has("Reset failed") {
		t.Errorf("notifications %v missing reset failure", h.notes.titles())
	}
}

func TestRenderRequiresTarget(t *testing.T) {
	h := newHarness(t, 10)
	if _, err := h.session.Render(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Render without session error = %v, want ErrNoSession", err)
	}

	h.upload(t)
	calls := h.proc.networkCalls()

	if _, err := h.session.Render(context.Background()); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Render error = %v, want ErrNoTarget", err)
	}
	if got := h.proc.networkCalls(); got != calls {
		t.Errorf("Render without target made %d network calls", got-calls)
	}
	if !h.notes.has("Cannot render") {
		t.Errorf("notifications %v missing precondition failure", h.notes.titles())
	}
	if len(h.exporter.calls) != 0 {
		t.Error("no export expected")
	}
}

func TestBeginRenderMarksRendering(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)
	if _, err := h.session.Select(context.Background(), 400, 300); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	run, err := h.session.BeginRender()
	if err != nil {
		t.Fatalf("BeginRender failed: %v", err)
	}
	if snap := h.session.Snapshot(); !snap.IsRendering || snap.State != Rendering {
		t.Errorf("expected rendering state before run, got %+v", snap)
	}
	if _, err := h.session.BeginRender(); !errors.Is(err, ErrBusy) {
		t.Errorf("second BeginRender error = %v, want ErrBusy", err)
	}
	if !h.notes.has("Cannot render") {
		t.Errorf("notifications %v missing busy render", h.notes.titles())
	}

	if _, err := run(context.Background()); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if h.session.Snapshot().IsRendering {
		t.Error("IsRendering must clear after the render returns")
	}
}

func TestRenderExportsOnSuccess(t *testing.T) {
	h := newHarness(t, 300)
	h.upload(t)
	if _, err := h.session.Select(context.Background(), 400, 300); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	res, err := h.session.Render(context.Background())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := &RenderResult{OK: true, FramesProcessed: 300, SavedPath: "/downloads/vid-1_focused.mp4"}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("render result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"vid-1"}, h.exporter.calls); diff != "" {
		t.Errorf("export calls mismatch (-want +got):\n%s", diff)
	}
	snap := h.session.Snapshot()
	if snap.IsRendering || !snap.HasTarget {
		t.Errorf("unexpected snapshot after render: %+v", snap)
	}
}

func TestRenderFailureSkipsDownload(t *testing.T) {
	tests := []struct {
		name    string
		resp    *apiclient.RenderResponse
		err     error
		wantErr bool
	}{
		{"rejected", &apiclient.RenderResponse{OK: false, Message: "no track"}, nil, false},
		{"transport", nil, &apiclient.TransportError{Op: "render", StatusCode: 500, Status: "500"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 10)
			h.upload(t)
			if _, err := h.session.Select(context.Background(), 1, 1); err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			h.proc.renderResp = tt.resp
			h.proc.renderErr = tt.err
			before := h.session.Snapshot()

			res, err := h.session.Render(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Render error = %v, wantErr %v", err, tt.wantErr)
			}
			if res != nil && res.OK {
				t.Error("failed render reported OK")
			}
			if len(h.exporter.calls) != 0 {
				t.Error("failed render must not download")
			}
			after := h.session.Snapshot()
			if after.IsRendering {
				t.Error("IsRendering must revert")
			}
			if after.HasTarget != before.HasTarget || after.CurrentFrame != before.CurrentFrame {
				t.Error("render failure must not alter target or frame state")
			}
			if !h.notes.has("Rendering failed") {
				t.Errorf("notifications %v missing render failure", h.notes.titles())
			}
		})
	}
}

func TestRemoveMidPlayback(t *testing.T) {
	h := newHarness(t, 100)
	h.upload(t)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.proc.frameHook = func(int) error {
		entered <- struct{}{}
		<-release
		return nil
	}

	if _, err := h.session.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay failed: %v", err)
	}
	ticker := h.ticker(t)
	ticker.Tick(waitTimeout)
	<-entered

	if err := h.session.Remove(context.Background()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	acquired := testutil.ToFloat64(metrics.FrameHandlesAcquired)
	close(release)
	h.session.Wait()

	if got := testutil.ToFloat64(metrics.FrameHandlesAcquired); got != acquired {
		t.Errorf("handles acquired after remove: %v, want %v", got, acquired)
	}
	snap := h.session.Snapshot()
	if snap.State != Empty || snap.IsPlaying || snap.DisplayedFrame != -1 {
		t.Errorf("unexpected snapshot after remove: %+v", snap)
	}
	if snap.LiveFrames != 0 {
		t.Errorf("LiveFrames = %d after remove, want 0", snap.LiveFrames)
	}
	eventually(t, "ticker to stop", ticker.Stopped)
	if _, ok := h.session.DisplayedFrame(); ok {
		t.Error("no frame should be displayed after remove")
	}
	if diff := cmp.Diff([]string{"vid-1"}, h.proc.closeCalls); diff != "" {
		t.Errorf("close calls mismatch (-want +got):\n%s", diff)
	}
	if h.recorder.closed["vid-1"] != "removed" {
		t.Errorf("recorder closed = %v", h.recorder.closed)
	}
	if err := h.session.Remove(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Remove error = %v, want ErrNoSession", err)
	}
}

func TestRemoveDuringStep(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.proc.frameHook = func(int) error {
		entered <- struct{}{}
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- h.session.Step(context.Background(), 1) }()
	<-entered

	if err := h.session.Remove(context.Background()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	acquired := testutil.ToFloat64(metrics.FrameHandlesAcquired)
	close(release)

	if err := <-done; !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Step error = %v, want ErrSessionClosed", err)
	}
	if got := testutil.ToFloat64(metrics.FrameHandlesAcquired); got != acquired {
		t.Errorf("handles acquired after remove: %v, want %v", got, acquired)
	}
	snap := h.session.Snapshot()
	if snap.State != Empty || snap.LiveFrames != 0 || snap.IsLoadingFrame {
		t.Errorf("unexpected snapshot after remove: %+v", snap)
	}
	if h.notes.has("Failed to load frame") {
		t.Error("a removed session must not report frame failures")
	}
}

func TestUnknownSessionTearsDown(t *testing.T) {
	h := newHarness(t, 10)
	h.upload(t)

	h.proc.frameHook = func(int) error {
		return &apiclient.TransportError{Op: "frame", StatusCode: http.StatusNotFound, Status: "404 Not Found"}
	}
	if err := h.session.Step(context.Background(), 1); !apiclient.IsUnknownSession(err) {
		t.Errorf("Step error = %v, want unknown session", err)
	}

	snap := h.session.Snapshot()
	if snap.State != Empty || snap.LiveFrames != 0 {
		t.Errorf("local state not discarded: %+v", snap)
	}
	if !h.notes.has("Session expired") {
		t.Errorf("notifications %v missing expiry", h.notes.titles())
	}
	if len(h.proc.closeCalls) != 0 {
		t.Error("an expired session must not be closed")
	}
	if h.recorder.closed["vid-1"] != "expired" {
		t.Errorf("recorder closed = %v", h.recorder.closed)
	}
}

func TestStateDerivation(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want State
	}{
		{"empty", Snapshot{}, Empty},
		{"uploading", Snapshot{IsUploading: true}, Uploading},
		{"ready", Snapshot{SessionID: "v"}, Ready},
		{"stepping", Snapshot{SessionID: "v", IsLoadingFrame: true}, Stepping},
		{"playing", Snapshot{SessionID: "v", IsPlaying: true, IsLoadingFrame: true}, Playing},
		{"selecting", Snapshot{SessionID: "v", PendingSelections: 2}, Selecting},
		{"rendering wins", Snapshot{SessionID: "v", IsRendering: true, IsPlaying: true}, Rendering},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.derive(); got != tt.want {
				t.Errorf("derive() = %v, want %v", got, tt.want)
			}
		})
	}
}

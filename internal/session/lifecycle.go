package session

import (
	"context"
	"errors"
	"fmt"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"
)

// Upload sends a video and opens a session for it, then loads frame 0.
// Only an empty Session accepts an upload. A failure to load the first
// frame is surfaced to the user but does not undo the upload.
func (s *Session) Upload(ctx context.Context, file apiclient.File) error {
	s.mu.Lock()
	if s.id != "" || s.uploading {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.uploading = true
	gen := s.generation
	s.mu.Unlock()

	resp, err := s.proc.Upload(ctx, file)

	s.mu.Lock()
	if gen == s.generation {
		s.uploading = false
	}
	if err != nil {
		s.mu.Unlock()
		var ve *apiclient.ValidationError
		if errors.As(err, &ve) {
			s.notify(LevelError, "Invalid file", "Please select a valid video file")
		} else {
			logging.Error("Upload error: %v", err)
			s.notify(LevelError, "Upload failed", err.Error())
		}
		return err
	}
	if gen != s.generation {
		// Removed while uploading: the new server session has no owner.
		s.mu.Unlock()
		s.closeRemote(ctx, resp.VideoID)
		return ErrSessionClosed
	}

	s.id = resp.VideoID
	s.fileName = file.Name
	s.meta = resp.Meta
	s.currentFrame = 0
	s.displayedFrame = -1
	s.hasTarget = false
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	req := s.beginInteractiveLocked(0)
	s.mu.Unlock()

	metrics.SessionsOpenedTotal.Inc()
	metrics.SessionActive.Set(1)
	logging.Info("Session %s opened for %s: %d frames, %dx%d @ %.2f fps",
		resp.VideoID, file.Name, resp.Meta.FrameCount, resp.Meta.Width, resp.Meta.Height, resp.Meta.FPS)

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.SessionOpened(ctx, resp.VideoID, file.Name, resp.Meta); err != nil {
			logging.Warn("Failed to record session %s: %v", resp.VideoID, err)
		}
	}

	s.notify(LevelInfo, "Video uploaded successfully",
		fmt.Sprintf("%d frames • %dx%d", resp.Meta.FrameCount, resp.Meta.Width, resp.Meta.Height))

	if err := s.runInteractive(ctx, req); err != nil && !errors.Is(err, ErrSessionClosed) {
		logging.Debug("First frame of %s not loaded: %v", resp.VideoID, err)
	}
	return nil
}

// Remove discards the session: playback stops, the displayed frame is
// released and every in-flight response is ignored from now on. The
// server-side session is closed when CloseOnRemove is set.
func (s *Session) Remove(ctx context.Context) error {
	return s.teardown(ctx, "removed", s.opts.CloseOnRemove)
}

// Close discards the session like Remove and always closes it server-side.
func (s *Session) Close(ctx context.Context) error {
	return s.teardown(ctx, "closed", true)
}

func (s *Session) teardown(ctx context.Context, reason string, closeServer bool) error {
	s.mu.Lock()
	if s.id == "" && !s.uploading {
		s.mu.Unlock()
		return ErrNoSession
	}
	id := s.teardownLocked(reason)
	s.mu.Unlock()

	if id == "" {
		logging.Info("Upload abandoned")
		return nil
	}
	logging.Info("Session %s %s", id, reason)

	if closeServer {
		s.closeRemote(ctx, id)
	}
	s.recordClosed(ctx, id, reason)
	return nil
}

// expire tears down a session the service no longer knows. It does nothing
// if the session of generation gen is already gone.
func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.id == "" {
		s.mu.Unlock()
		return
	}
	id := s.teardownLocked("expired")
	s.mu.Unlock()

	logging.Warn("Session %s is unknown to the service, discarding local state", id)
	s.recordClosed(context.Background(), id, "expired")
	s.notify(LevelError, "Session expired", "The video is no longer available on the server. Upload it again.")
}

// teardownLocked resets the session to Empty and returns the id it had.
func (s *Session) teardownLocked(reason string) string {
	id := s.id

	s.stopPlaybackLocked()
	s.display.Clear()
	s.generation++
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgCancel = nil
	}

	s.id = ""
	s.fileName = ""
	s.meta = apiclient.VideoMetadata{}
	s.currentFrame = 0
	s.displayedFrame = -1
	s.loading = false
	s.hasTarget = false
	s.rendering = false
	s.uploading = false
	s.pending = 0
	s.selectFloor = s.selectSeq

	if id != "" {
		metrics.SessionActive.Set(0)
		metrics.SessionsClosedTotal.WithLabelValues(reason).Inc()
	}
	return id
}

func (s *Session) closeRemote(ctx context.Context, id string) {
	resp, err := s.proc.Close(ctx, id)
	switch {
	case apiclient.IsUnknownSession(err):
		logging.Debug("Session %s already gone on the server", id)
	case err != nil:
		logging.Warn("Failed to close session %s: %v", id, err)
	case !resp.OK:
		logging.Warn("Service refused to close session %s", id)
	}
}

func (s *Session) recordClosed(ctx context.Context, id, reason string) {
	if s.opts.Recorder == nil {
		return
	}
	if err := s.opts.Recorder.SessionClosed(ctx, id, reason); err != nil {
		logging.Warn("Failed to record close of session %s: %v", id, err)
	}
}

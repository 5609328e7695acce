package session

import (
	"context"
	"errors"
	"fmt"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/frames"
	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"
)

const (
	modeInteractive = "interactive"
	modePlayback    = "playback"
)

// fetchRequest captures the state a display fetch was issued under.
type fetchRequest struct {
	id    string
	gen   uint64
	seq   uint64
	frame int
	epoch uint64 // zero for interactive fetches
}

func (r fetchRequest) mode() string {
	if r.epoch != 0 {
		return modePlayback
	}
	return modeInteractive
}

// Step moves the logical frame by delta and loads it interactively. A target
// outside [0, frameCount) is a no-op: nothing is fetched and nil is returned.
func (s *Session) Step(ctx context.Context, delta int) error {
	s.mu.Lock()
	switch {
	case s.id == "":
		s.mu.Unlock()
		return ErrNoSession
	case s.playing:
		s.mu.Unlock()
		return ErrPlaying
	case s.loading:
		s.mu.Unlock()
		return ErrBusy
	}
	target := s.currentFrame + delta
	if target < 0 || target >= s.meta.FrameCount {
		s.mu.Unlock()
		logging.Debug("Step to frame %d ignored (frame count %d)", target, s.meta.FrameCount)
		return nil
	}
	req := s.beginInteractiveLocked(target)
	s.mu.Unlock()

	return s.runInteractive(ctx, req)
}

// beginInteractiveLocked marks an interactive load as outstanding.
func (s *Session) beginInteractiveLocked(frame int) fetchRequest {
	s.loading = true
	s.displaySeq++
	return fetchRequest{id: s.id, gen: s.generation, seq: s.displaySeq, frame: frame}
}

// fetch downloads and acquires one frame. Nothing is acquired for a
// request issued before the last teardown; ErrSessionClosed is returned
// instead.
func (s *Session) fetch(ctx context.Context, req fetchRequest) (frames.Handle, error) {
	data, err := s.proc.GetFrame(ctx, req.id, req.frame, s.opts.Frame)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.gen != s.generation {
		return 0, ErrSessionClosed
	}
	return s.frames.Acquire(data, req.frame)
}

// runInteractive performs an interactive load. Failures are surfaced to the
// user and the loading flag is cleared on every path.
func (s *Session) runInteractive(ctx context.Context, req fetchRequest) error {
	h, err := s.fetch(ctx, req)

	s.mu.Lock()
	current := req.gen == s.generation
	if current {
		s.loading = false
	}
	if err != nil {
		s.mu.Unlock()
		if !current {
			metrics.FrameFetchesTotal.WithLabelValues(modeInteractive, "stale").Inc()
			return ErrSessionClosed
		}
		metrics.FrameFetchesTotal.WithLabelValues(modeInteractive, "error").Inc()
		if apiclient.IsUnknownSession(err) {
			s.expire(req.gen)
			return err
		}
		logging.Error("Frame load error (frame %d): %v", req.frame, err)
		s.notify(LevelError, "Failed to load frame", err.Error())
		return fmt.Errorf("failed to load frame %d: %w", req.frame, err)
	}
	applied := s.applyLocked(req, h)
	s.mu.Unlock()

	if !applied {
		s.frames.Release(h)
		metrics.FrameFetchesTotal.WithLabelValues(modeInteractive, "stale").Inc()
		logging.Debug("Discarded stale frame %d (seq %d)", req.frame, req.seq)
		if !current {
			return ErrSessionClosed
		}
		return nil
	}
	metrics.FrameFetchesTotal.WithLabelValues(modeInteractive, "applied").Inc()
	return nil
}

// runPlayback performs a playback fetch. Failures are only logged so that a
// single bad frame cannot stall the clock.
func (s *Session) runPlayback(ctx context.Context, req fetchRequest) {
	defer s.fetches.Done()

	h, err := s.fetch(ctx, req)
	if errors.Is(err, ErrSessionClosed) {
		metrics.FrameFetchesTotal.WithLabelValues(modePlayback, "stale").Inc()
		logging.Debug("Discarded playback frame %d of a removed session", req.frame)
		return
	}
	if err != nil {
		metrics.FrameFetchesTotal.WithLabelValues(modePlayback, "error").Inc()
		switch {
		case apiclient.IsUnknownSession(err):
			s.expire(req.gen)
		case errors.Is(err, context.Canceled):
			logging.Debug("Playback fetch of frame %d cancelled", req.frame)
		default:
			logging.Warn("Playback frame %d failed: %v", req.frame, err)
		}
		return
	}

	s.mu.Lock()
	applied := s.applyLocked(req, h)
	s.mu.Unlock()

	if !applied {
		s.frames.Release(h)
		metrics.FrameFetchesTotal.WithLabelValues(modePlayback, "stale").Inc()
		logging.Debug("Discarded stale playback frame %d (seq %d, epoch %d)", req.frame, req.seq, req.epoch)
		return
	}
	metrics.FrameFetchesTotal.WithLabelValues(modePlayback, "applied").Inc()
}

// applyLocked installs h as the displayed frame if req is still current:
// same generation, newer than the last installed frame, and, for playback
// fetches, issued by the active playback run. The caller releases h when
// this returns false.
func (s *Session) applyLocked(req fetchRequest, h frames.Handle) bool {
	if req.gen != s.generation || req.seq <= s.appliedSeq {
		return false
	}
	if req.epoch != 0 && req.epoch != s.epoch {
		return false
	}

	s.appliedSeq = req.seq
	s.display.Swap(h)
	s.displayedFrame = req.frame
	if req.epoch == 0 && !s.playing {
		s.currentFrame = req.frame
	}
	return true
}

package session

import (
	"context"
	"errors"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"
)

// SelectResult reports the outcome of a subject selection.
type SelectResult struct {
	// OK is the service's answer: a subject was found at the point.
	OK      bool
	TrackID *int
	Message string
	// Applied is false when a newer selection, or a reset, superseded this
	// response before it arrived. A superseded response changes nothing.
	Applied bool
}

// Select asks the service to track the subject at (x, y) in the pixel space
// of the displayed frame. Selections are not serialized against each other;
// each carries a sequence number and a response older than one already
// applied is discarded.
func (s *Session) Select(ctx context.Context, x, y int) (*SelectResult, error) {
	s.mu.Lock()
	if s.id == "" {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	if s.displayedFrame < 0 {
		s.mu.Unlock()
		return nil, ErrNoFrame
	}
	s.selectSeq++
	seq := s.selectSeq
	gen := s.generation
	id := s.id
	frame := s.displayedFrame
	s.pending++
	s.mu.Unlock()

	resp, err := s.proc.SelectSubject(ctx, id, frame, x, y, s.opts.Frame.Downscale)

	s.mu.Lock()
	current := gen == s.generation
	if current {
		s.pending--
	}
	if err != nil {
		s.mu.Unlock()
		metrics.SelectionsTotal.WithLabelValues("error").Inc()
		if !current {
			return nil, ErrSessionClosed
		}
		if apiclient.IsUnknownSession(err) {
			s.expire(gen)
			return nil, err
		}
		logging.Error("Selection error at (%d, %d) on frame %d: %v", x, y, frame, err)
		return nil, err
	}

	result := &SelectResult{OK: resp.OK, TrackID: resp.TrackID, Message: resp.Message}
	if !current || seq <= s.selectApplied || seq <= s.selectFloor {
		s.mu.Unlock()
		metrics.SelectionsTotal.WithLabelValues("stale").Inc()
		logging.Debug("Discarded stale selection %d", seq)
		if !current {
			return result, ErrSessionClosed
		}
		return result, nil
	}
	s.selectApplied = seq
	if resp.OK {
		s.hasTarget = true
	}
	s.mu.Unlock()

	result.Applied = true
	if resp.OK {
		metrics.SelectionsTotal.WithLabelValues("locked").Inc()
		if resp.TrackID != nil {
			logging.Info("Subject locked on frame %d (track %d)", frame, *resp.TrackID)
		}
		s.notify(LevelInfo, "Subject locked", "Blur effect active")
	} else {
		metrics.SelectionsTotal.WithLabelValues("miss").Inc()
		s.notify(LevelError, "No subject found", "Click on a person or object")
	}
	return result, nil
}

// Reset drops the tracked subject on the server, then reloads the current
// frame once so the preview no longer shows the blur. Selections still in
// flight when the reset succeeds are discarded.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.id == "" {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	id := s.id
	gen := s.generation
	s.mu.Unlock()

	resp, err := s.proc.ResetTarget(ctx, id)
	if err == nil && !resp.OK {
		err = ErrResetRejected
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if err != nil {
		s.mu.Unlock()
		if apiclient.IsUnknownSession(err) {
			s.expire(gen)
			return err
		}
		logging.Error("Reset error: %v", err)
		s.notify(LevelError, "Reset failed", err.Error())
		return err
	}
	s.hasTarget = false
	s.selectFloor = s.selectSeq
	req := s.beginInteractiveLocked(s.currentFrame)
	s.mu.Unlock()

	s.notify(LevelInfo, "Target reset", "Subject tracking has been reset")

	if err := s.runInteractive(ctx, req); err != nil && !errors.Is(err, ErrSessionClosed) {
		return err
	}
	return nil
}

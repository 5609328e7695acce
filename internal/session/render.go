package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"
)

// RenderResult reports a completed render.
type RenderResult struct {
	OK              bool
	FramesProcessed int
	Message         string
	// OutputPath is the artifact path reported by the service.
	OutputPath string
	// SavedPath is where the exported video was written locally, empty when
	// no Exporter is configured or the render failed.
	SavedPath string
}

// RenderFunc runs a render whose preconditions have already been checked.
type RenderFunc func(ctx context.Context) (*RenderResult, error)

// Render processes the whole video with the current target and, on
// success, exports the result right away. A Session without a target is
// rejected before any network call. A render the service refuses comes back
// as a result with OK=false and a nil error.
func (s *Session) Render(ctx context.Context) (*RenderResult, error) {
	run, err := s.BeginRender()
	if err != nil {
		return nil, err
	}
	return run(ctx)
}

// BeginRender checks the render preconditions and marks the Session as
// rendering. The returned RenderFunc must be called exactly once; it clears
// the flag when it returns. A failed precondition is reported to the user
// and returned.
func (s *Session) BeginRender() (RenderFunc, error) {
	s.mu.Lock()
	var precondition error
	switch {
	case s.id == "":
		precondition = ErrNoSession
	case !s.hasTarget:
		precondition = ErrNoTarget
	case s.rendering:
		precondition = ErrBusy
	}
	if precondition != nil {
		s.mu.Unlock()
		metrics.RendersTotal.WithLabelValues("precondition").Inc()
		detail := "Please select a subject first"
		if errors.Is(precondition, ErrBusy) {
			detail = "A render is already running"
		}
		s.notify(LevelError, "Cannot render", detail)
		return nil, precondition
	}
	s.rendering = true
	id := s.id
	gen := s.generation
	s.mu.Unlock()

	return func(ctx context.Context) (*RenderResult, error) {
		return s.render(ctx, id, gen)
	}, nil
}

func (s *Session) render(ctx context.Context, id string, gen uint64) (*RenderResult, error) {
	defer func() {
		s.mu.Lock()
		if gen == s.generation {
			s.rendering = false
		}
		s.mu.Unlock()
	}()

	renderCtx := ctx
	if s.opts.RenderTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, s.opts.RenderTimeout)
		defer cancel()
	}

	logging.Info("Rendering session %s", id)
	start := time.Now()
	resp, err := s.proc.Render(renderCtx, id, s.opts.Render)
	metrics.RenderDuration.Observe(time.Since(start).Seconds())

	if !s.isGeneration(gen) {
		return nil, ErrSessionClosed
	}
	if err != nil {
		metrics.RendersTotal.WithLabelValues("failed").Inc()
		if apiclient.IsUnknownSession(err) {
			s.expire(gen)
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("render exceeded %v: %w", s.opts.RenderTimeout, err)
		}
		logging.Error("Render error for %s: %v", id, err)
		s.notify(LevelError, "Rendering failed", err.Error())
		return nil, err
	}

	result := &RenderResult{OK: resp.OK, Message: resp.Message, OutputPath: resp.OutputPath}
	if resp.FramesProcessed != nil {
		result.FramesProcessed = *resp.FramesProcessed
	}
	if !resp.OK {
		metrics.RendersTotal.WithLabelValues("rejected").Inc()
		msg := resp.Message
		if msg == "" {
			msg = "Rendering failed"
		}
		logging.Warn("Render of %s rejected: %s", id, msg)
		s.notify(LevelError, "Rendering failed", msg)
		return result, nil
	}

	logging.Info("Rendered %s in %v (%d frames)", id, time.Since(start).Round(time.Millisecond), result.FramesProcessed)
	s.notify(LevelInfo, "Video rendered successfully", fmt.Sprintf("Processed %d frames", result.FramesProcessed))

	if s.opts.Exporter == nil {
		metrics.RendersTotal.WithLabelValues("success").Inc()
		return result, nil
	}

	path, err := s.opts.Exporter.Export(ctx, id, result.FramesProcessed)
	if err != nil {
		metrics.RendersTotal.WithLabelValues("failed").Inc()
		if apiclient.IsUnknownSession(err) {
			s.expire(gen)
			return result, err
		}
		logging.Error("Download of %s failed: %v", id, err)
		s.notify(LevelError, "Download failed", err.Error())
		return result, err
	}
	result.SavedPath = path
	metrics.RendersTotal.WithLabelValues("success").Inc()
	s.notify(LevelInfo, "Video saved", path)
	return result, nil
}

func (s *Session) isGeneration(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

package session

import (
	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"
	"subject-focus/internal/playback"
)

// TogglePlay starts playback when stopped and stops it when playing. It
// returns whether playback is now running. Once it returns after stopping,
// no further tick advances the frame or fetches anything.
func (s *Session) TogglePlay() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		return false, ErrNoSession
	}
	if s.playing {
		s.stopPlaybackLocked()
		logging.Debug("Playback paused at frame %d", s.currentFrame)
		return false, nil
	}

	s.lastEpoch++
	epoch := s.lastEpoch
	s.epoch = epoch
	s.playing = true
	s.task = playback.Start(s.opts.NewTicker(s.opts.PlaybackInterval), func() {
		s.advance(epoch)
	})
	metrics.PlaybackActive.Set(1)
	logging.Debug("Playback started at frame %d (epoch %d)", s.currentFrame, epoch)
	return true, nil
}

// IsPlaying reports whether the playback clock is running.
func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *Session) stopPlaybackLocked() {
	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
	if s.playing {
		metrics.PlaybackActive.Set(0)
	}
	s.playing = false
	s.epoch = 0
}

// advance handles one tick of the playback run identified by epoch. At the
// end of the video playback stops and the logical frame wraps to 0;
// otherwise the frame advances before its fetch resolves.
func (s *Session) advance(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || !s.playing {
		s.mu.Unlock()
		metrics.PlaybackTicksTotal.WithLabelValues("ignored").Inc()
		return
	}

	next := s.currentFrame + 1
	if next >= s.meta.FrameCount {
		s.stopPlaybackLocked()
		s.currentFrame = 0
		s.mu.Unlock()
		metrics.PlaybackTicksTotal.WithLabelValues("ended").Inc()
		logging.Debug("Playback reached the end (epoch %d)", epoch)
		return
	}

	s.currentFrame = next
	s.displaySeq++
	req := fetchRequest{id: s.id, gen: s.generation, seq: s.displaySeq, frame: next, epoch: epoch}
	ctx := s.bgCtx
	s.fetches.Add(1)
	s.mu.Unlock()

	metrics.PlaybackTicksTotal.WithLabelValues("advanced").Inc()
	go s.runPlayback(ctx, req)
}

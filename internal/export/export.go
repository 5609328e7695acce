package export

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subject-focus/internal/filesystem"
	"subject-focus/internal/journal"
	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"

	"golang.org/x/crypto/blake2b"
)

// Downloader streams a rendered video. *apiclient.Client implements it.
type Downloader interface {
	Download(ctx context.Context, videoID string, w io.Writer) (int64, error)
}

// RenderRecorder stores exported renders. *journal.Journal implements it.
type RenderRecorder interface {
	RecordRender(ctx context.Context, r journal.RenderRecord) (int64, error)
}

// ErrUnsafeSessionID is returned for a session id that cannot be used as a
// file name inside the download directory.
var ErrUnsafeSessionID = errors.New("session id is not a safe file name")

// Filename returns the name a session's rendered video is saved under.
func Filename(sessionID string) string {
	return sessionID + "_focused.mp4"
}

// checkSessionID rejects ids assigned by the service that would escape the
// download directory or name a hidden file.
func checkSessionID(id string) error {
	if id == "" || strings.HasPrefix(id, ".") ||
		strings.ContainsAny(id, `/\:`) || strings.ContainsRune(id, 0) ||
		filepath.Base(id) != id {
		return fmt.Errorf("%w: %q", ErrUnsafeSessionID, id)
	}
	return nil
}

// Saver downloads rendered videos into a directory.
type Saver struct {
	dir        string
	downloader Downloader
	recorder   RenderRecorder
	retry      filesystem.RetryConfig
}

// NewSaver creates a Saver writing into dir. recorder may be nil.
func NewSaver(dir string, downloader Downloader, recorder RenderRecorder) *Saver {
	return &Saver{
		dir:        dir,
		downloader: downloader,
		recorder:   recorder,
		retry:      filesystem.DefaultRetryConfig(),
	}
}

// Dir returns the download directory.
func (s *Saver) Dir() string {
	return s.dir
}

// Result describes a saved video.
type Result struct {
	Path      string
	SizeBytes int64
	Digest    string
}

// Export implements session.Exporter: it saves the rendered video of
// sessionID and returns its path.
func (s *Saver) Export(ctx context.Context, sessionID string, framesProcessed int) (string, error) {
	res, err := s.Save(ctx, sessionID, framesProcessed)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// Save downloads the rendered video of sessionID into a temporary file,
// then renames it to Filename(sessionID) so a partial download never
// appears under the final name. An existing file of that name is replaced.
func (s *Saver) Save(ctx context.Context, sessionID string, framesProcessed int) (*Result, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	if err := filesystem.MkdirAllWithRetry(s.dir, 0o755, s.retry); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	tmp, err := filesystem.CreateTempWithRetry(s.dir, ".download-*.part", s.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to create download file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				logging.Warn("Failed to remove partial download %s: %v", tmpPath, rmErr)
			}
		}
	}()

	hash, err := blake2b.New256(nil)
	if err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("failed to create digest: %w", err)
	}

	start := time.Now()
	n, err := s.downloader.Download(ctx, sessionID, io.MultiWriter(tmp, hash))
	if err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("failed to flush download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close download: %w", err)
	}

	finalPath := filepath.Join(s.dir, Filename(sessionID))
	if err := filesystem.RenameWithRetry(tmpPath, finalPath, s.retry); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", finalPath, err)
	}
	committed = true

	res := &Result{
		Path:      finalPath,
		SizeBytes: n,
		Digest:    hex.EncodeToString(hash.Sum(nil)),
	}
	metrics.ExportBytesTotal.Add(float64(n))
	logging.Info("Saved %s (%d bytes, blake2b %s) in %v", finalPath, n, res.Digest[:16], time.Since(start).Round(time.Millisecond))

	if s.recorder != nil {
		if _, err := s.recorder.RecordRender(ctx, journal.RenderRecord{
			SessionID:       sessionID,
			FramesProcessed: framesProcessed,
			OutputPath:      finalPath,
			Digest:          res.Digest,
			SizeBytes:       n,
		}); err != nil {
			logging.Warn("Failed to record render of %s: %v", sessionID, err)
		}
	}
	return res, nil
}

// Verify recomputes the digest of a saved file.
func Verify(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

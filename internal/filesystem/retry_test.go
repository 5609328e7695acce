package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "ESTALE error",
			err:  syscall.ESTALE,
			want: true,
		},
		{
			name: "EBUSY wrapped in PathError",
			err:  &os.PathError{Op: "rename", Path: "/x", Err: syscall.EBUSY},
			want: true,
		},
		{
			name: "EAGAIN wrapped with fmt",
			err:  fmt.Errorf("write: %w", syscall.EAGAIN),
			want: true,
		},
		{
			name: "ENOENT error",
			err:  syscall.ENOENT,
			want: false,
		},
		{
			name: "generic error",
			err:  os.ErrNotExist,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isTransientError(tt.err)
			if got != tt.want {
				t.Errorf("isTransientError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithRetry_RecoversFromTransientError(t *testing.T) {
	attempts := 0
	err := withRetry("rename", "/tmp/x", fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return syscall.ESTALE
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry returned error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	attempts := 0
	err := withRetry("rename", "/tmp/x", fastConfig(), func() error {
		attempts++
		return syscall.EBUSY
	})
	if !errors.Is(err, syscall.EBUSY) {
		t.Errorf("err = %v, want EBUSY", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4 (1 + 3 retries)", attempts)
	}
}

func TestWithRetry_PermanentErrorNotRetried(t *testing.T) {
	attempts := 0
	err := withRetry("create", "/tmp/x", fastConfig(), func() error {
		attempts++
		return os.ErrPermission
	})
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("err = %v, want ErrPermission", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestCreateAndRename(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads", "nested")

	if err := MkdirAllWithRetry(dir, 0755, fastConfig()); err != nil {
		t.Fatalf("MkdirAllWithRetry failed: %v", err)
	}

	f, err := CreateTempWithRetry(dir, ".export-*", fastConfig())
	if err != nil {
		t.Fatalf("CreateTempWithRetry failed: %v", err)
	}
	if _, err := f.WriteString("video"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	final := filepath.Join(dir, "vid_focused.mp4")
	if err := RenameWithRetry(f.Name(), final, fastConfig()); err != nil {
		t.Fatalf("RenameWithRetry failed: %v", err)
	}

	data, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "video" {
		t.Errorf("content = %q, want %q", data, "video")
	}
	if _, err := os.Stat(f.Name()); !os.IsNotExist(err) {
		t.Error("temp file should be gone after rename")
	}
}

func TestRenameWithRetry_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := RenameWithRetry(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"), fastConfig())
	if !os.IsNotExist(err) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestCreateTempWithRetry_MissingDir(t *testing.T) {
	_, err := CreateTempWithRetry(filepath.Join(t.TempDir(), "nope"), "x-*", fastConfig())
	if err == nil {
		t.Error("expected error for missing directory")
	}
}

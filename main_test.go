package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/controller"
)

type recordingHandler struct {
	mu   sync.Mutex
	keys []controller.Key
}

func (h *recordingHandler) HandleKey(k controller.Key) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, k)
	return true
}

func TestReadKeys(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []controller.Key
	}{
		{
			name:  "arrows and space",
			input: []byte("\x1b[C\x1b[D "),
			want:  []controller.Key{controller.KeyRight, controller.KeyLeft, controller.KeySpace},
		},
		{
			name:  "stops at quit",
			input: []byte("rq v"),
			want:  []controller.Key{controller.KeyReset, controller.KeyQuit},
		},
		{
			name:  "ctrl-c quits",
			input: []byte{0x03, 'x'},
			want:  []controller.Key{controller.KeyQuit},
		},
		{
			name:  "end of input",
			input: []byte("Vz"),
			want:  []controller.Key{controller.KeyRender},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{}
			if err := readKeys(bytes.NewReader(tt.input), h); err != nil {
				t.Fatalf("readKeys() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, h.keys); diff != "" {
				t.Errorf("keys mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTerminalWithoutRawModeIsNotInteractive(t *testing.T) {
	var term *terminal
	if term.Interactive() {
		t.Error("nil terminal must not be interactive")
	}
	term.Restore()

	term = &terminal{}
	if term.Interactive() {
		t.Error("terminal without saved state must not be interactive")
	}
	term.Restore()
}

func TestOpenVideo(t *testing.T) {
	dir := t.TempDir()

	mp4 := filepath.Join(dir, "clip.MP4")
	if err := os.WriteFile(mp4, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	// WebM magic bytes, no extension.
	sniffed := filepath.Join(dir, "capture")
	if err := os.WriteFile(sniffed, []byte("\x1a\x45\xdf\xa3\x01\x00\x00\x00webm"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path     string
		wantName string
		wantType string
	}{
		{mp4, "clip.MP4", "video/mp4"},
		{sniffed, "capture", "video/webm"},
	}
	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			file, f, err := openVideo(tt.path)
			if err != nil {
				t.Fatalf("openVideo() error = %v", err)
			}
			defer f.Close()

			if file.Name != tt.wantName || file.ContentType != tt.wantType {
				t.Errorf("got %q (%s), want %q (%s)", file.Name, file.ContentType, tt.wantName, tt.wantType)
			}
			body, err := io.ReadAll(file.Body)
			if err != nil {
				t.Fatal(err)
			}
			want, _ := os.ReadFile(tt.path)
			if !bytes.Equal(body, want) {
				t.Error("body must start from the beginning of the file")
			}
		})
	}

	if _, _, err := openVideo(dir); err == nil {
		t.Error("expected an error for a directory")
	}
	if _, _, err := openVideo(filepath.Join(dir, "missing.mp4")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

type fakeUploader struct {
	got apiclient.File
	n   int
}

func (f *fakeUploader) Upload(_ context.Context, file apiclient.File) error {
	f.got = file
	b, err := io.ReadAll(file.Body)
	f.n = len(b)
	return err
}

func TestUploadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.webm")
	if err := os.WriteFile(path, bytes.Repeat([]byte{1}, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	u := &fakeUploader{}
	uploadPath(context.Background(), u, path)
	if u.got.Name != "walk.webm" || u.got.ContentType != "video/webm" || u.n != 2048 {
		t.Errorf("uploaded %q (%s, %d bytes)", u.got.Name, u.got.ContentType, u.n)
	}

	missing := &fakeUploader{}
	uploadPath(context.Background(), missing, filepath.Join(t.TempDir(), "nope.mp4"))
	if missing.got.Name != "" {
		t.Error("a missing file must not be uploaded")
	}
}

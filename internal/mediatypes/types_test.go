package mediatypes

import "testing"

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		ext      string
		expected string
	}{
		{".mp4", "video/mp4"},
		{".mov", "video/quicktime"},
		{".webm", "video/webm"},
		{".jpg", "image/jpeg"},
		{".xyz", "application/octet-stream"},
		{"", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := GetMimeType(tt.ext); got != tt.expected {
				t.Errorf("GetMimeType(%q) = %q, want %q", tt.ext, got, tt.expected)
			}
		})
	}
}

func TestIsVideo(t *testing.T) {
	tests := []struct {
		contentType string
		expected    bool
	}{
		{"video/mp4", true},
		{"VIDEO/QuickTime", true},
		{"video/webm; codecs=vp9", true},
		{"image/jpeg", false},
		{"application/octet-stream", false},
		{"", false},
		{"videos", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := IsVideo(tt.contentType); got != tt.expected {
				t.Errorf("IsVideo(%q) = %v, want %v", tt.contentType, got, tt.expected)
			}
		})
	}
}

func TestDetectContentType(t *testing.T) {
	// ISO base media header ("ftyp") is sniffed as video/mp4.
	mp4Head := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}

	tests := []struct {
		name     string
		file     string
		head     []byte
		expected string
	}{
		{"extension wins", "clip.MOV", nil, "video/quicktime"},
		{"unknown extension without content", "clip.bin", nil, "application/octet-stream"},
		{"sniffed mp4", "clip.bin", mp4Head, "video/mp4"},
		{"sniffed text", "notes", []byte("hello world"), "text/plain; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectContentType(tt.file, tt.head); got != tt.expected {
				t.Errorf("DetectContentType(%q) = %q, want %q", tt.file, got, tt.expected)
			}
		})
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/logging"
	"subject-focus/internal/mediatypes"
)

type uploader interface {
	Upload(ctx context.Context, file apiclient.File) error
}

// openVideo opens path for upload. The content type comes from the
// extension or, failing that, the first bytes of the file.
func openVideo(path string) (apiclient.File, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return apiclient.File{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return apiclient.File{}, nil, err
	}
	if info.IsDir() {
		f.Close()
		return apiclient.File{}, nil, fmt.Errorf("%s is a directory", path)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return apiclient.File{}, nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return apiclient.File{}, nil, err
	}

	file := apiclient.File{
		Name:        filepath.Base(path),
		ContentType: mediatypes.DetectContentType(path, head[:n]),
		Body:        f,
	}
	return file, f, nil
}

// uploadPath uploads the video given on the command line. Failures are
// reported by the session.
func uploadPath(ctx context.Context, u uploader, path string) {
	file, f, err := openVideo(path)
	if err != nil {
		logging.Error("Cannot open %s: %v", path, err)
		return
	}
	defer f.Close()

	logging.Info("Uploading %s (%s)", file.Name, file.ContentType)
	if err := u.Upload(ctx, file); err != nil {
		logging.Debug("Upload of %s failed: %v", file.Name, err)
	}
}

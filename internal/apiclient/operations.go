package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"subject-focus/internal/mediatypes"
)

// Upload sends a video and creates a new session. Files whose media type
// is not video/* are rejected with a *ValidationError before any request.
func (c *Client) Upload(ctx context.Context, file File) (*UploadResponse, error) {
	if file.Body == nil {
		return nil, &ValidationError{Field: "file", Reason: "no content"}
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = mediatypes.DetectContentType(file.Name, nil)
	}
	if !mediatypes.IsVideo(contentType) {
		return nil, &ValidationError{Field: "file", Reason: fmt.Sprintf("%q is not a video (%s)", file.Name, contentType)}
	}

	// Stream the file instead of buffering it; uploads are never retried.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, file.Body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload", nil), pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req, "upload")
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}

	var out UploadResponse
	if err := decodeJSON(resp, "upload", &out); err != nil {
		return nil, err
	}
	if out.VideoID == "" || out.Meta.FrameCount <= 0 {
		return nil, &TransportError{
			Op:         "upload",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        fmt.Errorf("malformed response: video_id=%q frame_count=%d", out.VideoID, out.Meta.FrameCount),
		}
	}
	return &out, nil
}

// GetFrame returns the processed preview image for one frame.
func (c *Client) GetFrame(ctx context.Context, videoID string, frameIndex int, opts FrameOptions) ([]byte, error) {
	opts = opts.WithDefaults()
	query := url.Values{
		"video_id":    {videoID},
		"frame_index": {strconv.Itoa(frameIndex)},
		"downscale":   {strconv.Itoa(opts.Downscale)},
		"infer_every": {strconv.Itoa(opts.InferEvery)},
		"blur_ksize":  {strconv.Itoa(opts.BlurKSize)},
		"feather_px":  {strconv.Itoa(opts.FeatherPx)},
		"outline":     {formatBool(opts.Outline)},
		"jpg_quality": {strconv.Itoa(opts.JPGQuality)},
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var data []byte
	err := c.retry.retry(ctx, "frame", func() error {
		return c.get(ctx, "frame", "/frame", query, func(resp *http.Response) error {
			var buf bytes.Buffer
			if _, err := readBody(resp, "frame", &buf); err != nil {
				return err
			}
			data = buf.Bytes()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SelectSubject asks the service to lock onto the subject at (x, y), given
// in the pixel space of a frame rendered at downscale. A response with
// OK=false is a negative result, not an error.
func (c *Client) SelectSubject(ctx context.Context, videoID string, frameIndex, x, y, downscale int) (*SelectResponse, error) {
	if downscale <= 0 {
		downscale = DefaultFrameDownscale
	}
	fields := [][2]string{
		{"video_id", videoID},
		{"frame_index", strconv.Itoa(frameIndex)},
		{"x", strconv.Itoa(x)},
		{"y", strconv.Itoa(y)},
		{"downscale", strconv.Itoa(downscale)},
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out SelectResponse
	err := c.retry.retry(ctx, "select", func() error {
		return c.postForm(ctx, "select", "/select", fields, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetTarget drops the tracked subject.
func (c *Client) ResetTarget(ctx context.Context, videoID string) (*OKResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out OKResponse
	err := c.retry.retry(ctx, "reset", func() error {
		return c.postForm(ctx, "reset", "/reset", [][2]string{{"video_id", videoID}}, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Render processes the whole video server-side. It returns only once the
// output artifact exists or the service rejected the render. It is bounded
// by ctx alone and never retried.
func (c *Client) Render(ctx context.Context, videoID string, opts RenderOptions) (*RenderResponse, error) {
	opts = opts.WithDefaults()
	fields := [][2]string{{"video_id", videoID}}
	if opts.Downscale != nil {
		fields = append(fields, [2]string{"downscale", strconv.Itoa(*opts.Downscale)})
	}
	fields = append(fields,
		[2]string{"blur_ksize", strconv.Itoa(opts.BlurKSize)},
		[2]string{"feather_px", strconv.Itoa(opts.FeatherPx)},
		[2]string{"outline", formatBool(opts.Outline)},
		[2]string{"start_frame", strconv.Itoa(opts.StartFrame)},
		[2]string{"end_frame", strconv.Itoa(opts.EndFrame)},
	)

	var out RenderResponse
	if err := c.postForm(ctx, "render", "/render", fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download streams the rendered video into w and returns the byte count.
// A retry is only attempted while nothing has been written yet.
func (c *Client) Download(ctx context.Context, videoID string, w io.Writer) (int64, error) {
	query := url.Values{"video_id": {videoID}}

	var written int64
	var partial error
	err := c.retry.retry(ctx, "download", func() error {
		return c.get(ctx, "download", "/download", query, func(resp *http.Response) error {
			n, err := readBody(resp, "download", w)
			written += n
			if err != nil && n > 0 {
				// Partial output cannot be rewound, so stop retrying.
				partial = err
				return nil
			}
			return err
		})
	})
	if partial != nil {
		return written, &TransportError{Op: "download", Err: fmt.Errorf("interrupted after %d bytes: %w", written, partial)}
	}
	return written, err
}

// Close invalidates the session server-side.
func (c *Client) Close(ctx context.Context, videoID string) (*OKResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out OKResponse
	if err := c.postForm(ctx, "close", "/close", [][2]string{{"video_id", videoID}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) (*OKResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out OKResponse
	err := c.retry.retry(ctx, "health", func() error {
		return c.get(ctx, "health", "/health", nil, func(resp *http.Response) error {
			return decodeJSON(resp, "health", &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

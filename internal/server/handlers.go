package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/controller"
	"subject-focus/internal/frames"
	"subject-focus/internal/logging"
	"subject-focus/internal/mediatypes"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	ServiceOK    bool   `json:"serviceOk"`
	ServiceError string `json:"serviceError,omitempty"`
	HasSession   bool   `json:"hasSession"`
	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports on the client and the processing service behind it.
// The client is up as long as it answers, so an unreachable service gives
// a degraded status with 200 rather than an error code.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Version:      s.cfg.Version,
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		HasSession:   s.session.Snapshot().SessionID != "",
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthTimeout)
		defer cancel()
		resp, err := s.health.Health(ctx)
		switch {
		case err != nil:
			response.ServiceError = err.Error()
		case !resp.OK:
			response.ServiceError = "service reported not ok"
		default:
			response.ServiceOK = true
		}
		if !response.ServiceOK {
			response.Status = statusDegraded
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// GetState returns the session snapshot.
func (s *Server) GetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// GetFrame serves the displayed frame. With ?width=N it is scaled down to
// at most N pixels wide.
func (s *Server) GetFrame(w http.ResponseWriter, r *http.Request) {
	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, "width must be a non-negative integer", http.StatusBadRequest)
			return
		}
		width = n
	}

	frame, ok := s.session.DisplayedFrame()
	if !ok {
		writeJSONError(w, "no frame displayed", http.StatusNotFound)
		return
	}

	data := frame.Data
	contentType := mediatypes.GetMimeType("." + frame.Format)
	if width > 0 && width < frame.Width {
		scaled, err := frame.Scaled(width, frames.DefaultScaledQuality)
		if err != nil {
			logging.Error("Failed to scale frame %d: %v", frame.Index, err)
			writeJSONError(w, "failed to scale frame", http.StatusInternalServerError)
			return
		}
		data = scaled
		contentType = "image/jpeg"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Index", strconv.Itoa(frame.Index))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Debug("Frame write aborted: %v", err)
	}
}

// GetNotifications returns notifications newer than ?after=ID.
func (s *Server) GetNotifications(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeJSONError(w, "after must be a notification id", http.StatusBadRequest)
			return
		}
		after = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lastId":        s.feed.LastID(),
		"notifications": s.feed.Since(after),
	})
}

// Upload streams the multipart "file" field to the processing service. The
// request returns once the session is open and its first frame requested.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		writeJSONError(w, "expected a multipart/form-data body", http.StatusBadRequest)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeJSONError(w, "missing file field", http.StatusBadRequest)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		file := apiclient.File{
			Name:        part.FileName(),
			ContentType: partContentType(part.Header.Get("Content-Type"), part.FileName()),
			Body:        part,
		}
		// The session outlives the request: a client that hangs up once the
		// body is sent must not cancel the first frame load.
		err = s.session.Upload(context.WithoutCancel(r.Context()), file)
		part.Close()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s.session.Snapshot())
		return
	}
}

// partContentType prefers the declared type of a part, falling back to the
// file extension when the browser sent none or a generic one.
func partContentType(declared, name string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return declared
		}
	}
	return mediatypes.DetectContentType(name, nil)
}

type acceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// Click selects the subject under a click on the frame element.
func (s *Server) Click(w http.ResponseWriter, r *http.Request) {
	var click controller.Click
	if err := decodeJSONBody(w, r, &click); err != nil {
		writeJSONError(w, "invalid click: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: s.input.HandleClick(click)})
}

type keyRequest struct {
	Key string `json:"key"`
}

// Key dispatches a named key, as if pressed in the terminal.
func (s *Server) Key(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, "invalid key: "+err.Error(), http.StatusBadRequest)
		return
	}
	k, ok := controller.ParseKey(req.Key)
	if !ok {
		writeJSONError(w, "unknown key "+strconv.Quote(req.Key), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: s.input.HandleKey(k)})
}

// TogglePlay starts or pauses playback.
func (s *Server) TogglePlay(w http.ResponseWriter, _ *http.Request) {
	playing, err := s.session.TogglePlay()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"playing": playing})
}

// Reset drops the tracked subject. It runs in the background; the outcome
// arrives as a notification.
func (s *Server) Reset(w http.ResponseWriter, _ *http.Request) {
	s.dispatchKey(w, controller.KeyReset)
}

// Render starts a full render in the background. Precondition failures
// (no video, no target, a render already running) answer 409.
func (s *Server) Render(w http.ResponseWriter, _ *http.Request) {
	if err := s.input.StartRender(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: true})
}

// Remove discards the loaded video.
func (s *Server) Remove(w http.ResponseWriter, _ *http.Request) {
	s.dispatchKey(w, controller.KeyRemove)
}

func (s *Server) dispatchKey(w http.ResponseWriter, k controller.Key) {
	if !s.input.HandleKey(k) {
		writeJSONError(w, "no video loaded", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: true})
}

package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"snapcast/internal/transcript"
	"snapcast/internal/upload"
	"snapcast/internal/video"
)

// Multipart bodies above this are kept in temp files rather than memory.
const maxMemory = 32 << 20

type server struct {
	uploads     Uploader
	sessions    *upload.Sessions
	videos      VideoReader
	transcripts TranscriptResolver
	auth        Authenticator
	corsOrigins []string

	mux *http.ServeMux
}

type Options struct {
	Uploads     Uploader
	Sessions    *upload.Sessions
	Videos      VideoReader
	Transcripts TranscriptResolver
	Auth        Authenticator
	CORSOrigins []string
}

func NewServer(opts Options) *server {
	s := &server{
		uploads:     opts.Uploads,
		sessions:    opts.Sessions,
		videos:      opts.Videos,
		transcripts: opts.Transcripts,
		auth:        opts.Auth,
		corsOrigins: opts.CORSOrigins,
		mux:         http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/uploads", s.handleAPIUpload)
	s.mux.HandleFunc("/api/uploads/", s.handleAPIUploadSession)
	s.mux.HandleFunc("/api/videos/", s.handleAPIVideoDetail)
	s.mux.HandleFunc("/healthz", s.handleHealth)

	return s
}

// Handler returns the API wrapped in CORS handling.
func (s *server) Handler() http.Handler {
	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	headers := []string{"Content-Type", "Authorization"}
	if h, ok := s.auth.(HeaderAuthenticator); ok {
		headers = append(headers, h.Header)
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   headers,
		AllowCredentials: true,
	})
	return c.Handler(s.mux)
}

type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

type apiSessionResponse struct {
	AssetID   string `json:"assetId"`
	UploadURL string `json:"uploadUrl"`
	IssuedAt  string `json:"issuedAt"`
}

type apiTranscriptResponse struct {
	AssetID string `json:"assetId"`
	transcript.Result
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleAPIUpload handles POST /api/uploads - allocate, transfer and save in one request
func (s *server) handleAPIUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actorID := s.auth.Authenticate(r)
	if actorID == "" {
		s.sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	details, cleanup, err := s.parseUploadForm(w, r)
	if err != nil {
		s.sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	v, err := s.uploads.Upload(r.Context(), actorID, details)
	if err != nil {
		s.sendUploadError(w, err)
		return
	}

	s.sendJSON(w, v, http.StatusCreated)
}

// handleAPIUploadSession handles
//
//	POST /api/uploads/session    - allocate an asset and park the session
//	POST /api/uploads/{assetId}  - complete a parked session
func (s *server) handleAPIUploadSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actorID := s.auth.Authenticate(r)
	if actorID == "" {
		s.sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	assetID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/uploads/"), "/")
	if assetID == "" {
		s.sendJSONError(w, "asset ID required", http.StatusBadRequest)
		return
	}

	if assetID == "session" {
		session, err := s.uploads.BeginUpload(r.Context(), actorID)
		if err != nil {
			s.sendUploadError(w, err)
			return
		}
		s.sessions.Put(actorID, session)
		s.sendJSON(w, apiSessionResponse{
			AssetID:   session.AssetID,
			UploadURL: session.UploadURL,
			IssuedAt:  session.IssuedAt.UTC().Format(time.RFC3339),
		}, http.StatusCreated)
		return
	}

	details, cleanup, err := s.parseUploadForm(w, r)
	if err != nil {
		s.sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	session, ok := s.sessions.Take(actorID, assetID)
	if !ok {
		s.sendJSONError(w, "upload session not found or expired", http.StatusNotFound)
		return
	}

	v, err := s.uploads.CompleteUpload(r.Context(), actorID, session, details)
	if err != nil {
		// rejected input never touches the session; park it again for a corrected retry
		if errors.Is(err, upload.ErrInvalidInput) {
			s.sessions.Put(actorID, session)
		}
		s.sendUploadError(w, err)
		return
	}

	s.sendJSON(w, v, http.StatusCreated)
}

// handleAPIVideoDetail handles
//
//	GET /api/videos/{assetId}
//	GET /api/videos/{assetId}/transcript
func (s *server) handleAPIVideoDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/")
	assetID, sub, _ := strings.Cut(rest, "/")
	if assetID == "" {
		s.sendJSONError(w, "asset ID required", http.StatusBadRequest)
		return
	}
	if sub != "" && sub != "transcript" {
		s.sendJSONError(w, "not found", http.StatusNotFound)
		return
	}

	v, err := s.videos.GetByAssetID(r.Context(), assetID)
	if err != nil {
		slog.Error("failed to read video", "asset_id", assetID, "error", err)
		s.sendJSONError(w, "failed to read video", http.StatusInternalServerError)
		return
	}
	// private videos are only visible to their owner
	if v == nil || (v.Visibility == video.Private && v.OwnerID != s.auth.Authenticate(r)) {
		s.sendJSONError(w, "video not found", http.StatusNotFound)
		return
	}

	if sub == "" {
		s.sendJSON(w, v, http.StatusOK)
		return
	}

	result := s.transcripts.Resolve(r.Context(), assetID)
	s.sendJSON(w, apiTranscriptResponse{AssetID: assetID, Result: result}, http.StatusOK)
}

func (s *server) parseUploadForm(w http.ResponseWriter, r *http.Request) (upload.Details, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxVideoSize+upload.MaxThumbnailSize+maxMemory)

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return upload.Details{}, noop, errors.New("request body too large")
		}
		return upload.Details{}, noop, errors.New("invalid form data")
	}

	var files []multipart.File
	cleanup := func() {
		for _, f := range files {
			f.Close()
		}
		r.MultipartForm.RemoveAll()
	}

	d := upload.Details{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Visibility:  r.FormValue("visibility"),
	}

	if raw := strings.TrimSpace(r.FormValue("duration")); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			cleanup()
			return upload.Details{}, noop, errors.New("invalid duration")
		}
		n := int(secs + 0.5)
		d.Duration = &n
	}

	for _, field := range []string{"video", "thumbnail"} {
		f, header, err := r.FormFile(field)
		if err != nil {
			cleanup()
			return upload.Details{}, noop, errors.New("missing " + field + " file")
		}
		files = append(files, f)

		uf := upload.File{Body: f, Size: header.Size}
		if field == "video" {
			d.Video = uf
		} else {
			d.Thumbnail = uf
		}
	}

	return d, cleanup, nil
}

// Helper functions for JSON responses
func (s *server) sendJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *server) sendJSONError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, apiErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}, status)
}

func (s *server) sendUploadError(w http.ResponseWriter, err error) {
	var se *upload.StageError
	if !errors.As(err, &se) {
		slog.Error("upload failed", "error", err)
		s.sendJSONError(w, "upload failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	message := se.Kind.Error()
	switch {
	case errors.Is(se.Kind, upload.ErrAuthenticationRequired):
		status = http.StatusUnauthorized
	case errors.Is(se.Kind, upload.ErrInvalidInput):
		status = http.StatusBadRequest
		if se.Err != nil {
			message = se.Err.Error()
		}
	case errors.Is(se.Kind, upload.ErrSessionConsumed):
		status = http.StatusConflict
	case errors.Is(se.Kind, upload.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
		message = "too many uploads, slow down and try again shortly"
	case errors.Is(se.Kind, upload.ErrAssetProvisioning), errors.Is(se.Kind, upload.ErrUploadTransport):
		status = http.StatusBadGateway
	case errors.Is(se.Kind, upload.ErrPersistence):
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		slog.Error("upload failed", "stage", se.Stage, "error", err)
	}

	s.sendJSON(w, apiErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Stage:   string(se.Stage),
	}, status)
}

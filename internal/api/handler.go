package api

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"handpose-backend/internal/config"
	"handpose-backend/internal/domain"
	"handpose-backend/internal/ingest"
	"handpose-backend/internal/retention"
	"handpose-backend/internal/temp"
)

// multipartMemoryLimit caps the in-memory portion of a parsed form; larger
// parts spill to disk before we stage them.
const multipartMemoryLimit = 32 << 20

// Handler wires HTTP routes to the ingestion and retention services.
type Handler struct {
	cfg       *config.Config
	ingest    *ingest.Service
	retention *retention.Service
	temp      *temp.Store
}

// NewHandler creates a Handler instance.
func NewHandler(cfg *config.Config, ing *ingest.Service, ret *retention.Service, tempStore *temp.Store) *Handler {
	return &Handler{cfg: cfg, ingest: ing, retention: ret, temp: tempStore}
}

// Router returns a configured chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Post("/sessions/keypoints", h.handleSubmitKeypoints)
		r.Post("/sessions/{token}/video", h.handleSubmitVideo)
		r.Get("/sessions/{token}", h.handleSessionStatus)
		r.Post("/sessions/{token}/progress", h.handleProgress)
		r.Post("/sessions/{token}/retry", h.handleRetry)
		r.Delete("/sessions/{sessionID}", h.handleDelete)
		r.Post("/upload", h.handleLegacyUpload)
		r.Get("/cleanup/preview", h.handleCleanupPreview)
		r.Post("/cleanup/run", h.handleCleanupRun)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSubmitKeypoints(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, domain.NewValidationError("invalid multipart payload"))
		return
	}
	token := r.FormValue("token")

	req := ingest.KeypointsRequest{
		Token:      token,
		PatientRef: r.FormValue("patient"),
		Notes:      r.FormValue("notes"),
	}
	var err error
	req.KeypointsFile, err = h.stageFormFile(r, token, "keypoints")
	if err != nil {
		writeError(w, domain.NewValidationError("keypoints file is required"))
		return
	}
	// optional
	req.MetadataFile, _ = h.stageFormFile(r, token, "metadata")

	result, err := h.ingest.SubmitKeypoints(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

func (h *Handler) handleSubmitVideo(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, domain.NewValidationError("invalid multipart payload"))
		return
	}
	videoFile, err := h.stageFormFile(r, token, "video")
	if err != nil {
		writeError(w, domain.NewValidationError("video file is required"))
		return
	}

	result, err := h.ingest.SubmitVideo(r.Context(), ingest.VideoRequest{Token: token, VideoFile: videoFile})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (h *Handler) handleLegacyUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, domain.NewValidationError("invalid multipart payload"))
		return
	}
	token := r.FormValue("token")
	req := ingest.LegacyRequest{
		Token:      token,
		PatientRef: r.FormValue("patient"),
	}
	req.VideoFile, _ = h.stageFormFile(r, token, "video")
	req.KeypointsFile, _ = h.stageFormFile(r, token, "keypoints")
	req.MetadataFile, _ = h.stageFormFile(r, token, "metadata")

	result, err := h.ingest.SubmitLegacy(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.ingest.SessionStatus(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Progress int    `json:"progress"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.NewValidationError("invalid request payload"))
		return
	}
	view, err := h.ingest.ReportProgress(r.Context(), chi.URLParam(r, "token"), body.Progress, body.Error)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	result, err := h.ingest.RetryAnalysis(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, domain.NewValidationError("invalid session id"))
		return
	}
	actor := r.Header.Get("X-Actor")
	result, err := h.retention.SoftDelete(r.Context(), sessionID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (h *Handler) handleCleanupPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.retention.PreviewCleanup(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, preview)
}

func (h *Handler) handleCleanupRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.retention.RunCleanupNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

// stageFormFile copies one multipart file to local staging and returns its
// path. The ingestion service owns removal from here on.
func (h *Handler) stageFormFile(r *http.Request, token, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return h.stage(token, header, file)
}

func (h *Handler) stage(token string, header *multipart.FileHeader, file multipart.File) (string, error) {
	name := header.Filename
	if name == "" {
		name = "upload.bin"
	}
	if token == "" {
		token = "anonymous"
	}
	return h.temp.Stage(token, name, file)
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-API-Key"); key == "" || key != h.cfg.APIKey {
			writeFailure(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type envelope struct {
	Success  bool                 `json:"success"`
	Data     any                  `json:"data,omitempty"`
	Code     string               `json:"code,omitempty"`
	Message  string               `json:"message,omitempty"`
	Conflict *domain.ConflictInfo `json:"conflict,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		writeFailure(w, http.StatusInternalServerError, string(domain.CodeInternal), "internal error", nil)
		return
	}
	writeFailure(w, statusForCode(domainErr.Code), string(domainErr.Code), domainErr.Message, domainErr.Conflict)
}

func writeFailure(w http.ResponseWriter, status int, code, message string, conflict *domain.ConflictInfo) {
	writeJSON(w, status, envelope{Code: code, Message: message, Conflict: conflict})
}

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation, domain.CodePatientNotFound, domain.CodeProtocolNotFound:
		// Invalid referents on a submission are caller errors, not 404s: the
		// requested resource is the session, not the patient.
		return http.StatusBadRequest
	case domain.CodeSessionNotFound:
		return http.StatusNotFound
	case domain.CodeDuplicateSession, domain.CodeVideoAlreadyUploaded, domain.CodeSessionNotRetriable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

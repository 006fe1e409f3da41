package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/apperror"
	"github.com/abdul-hamid-achik/clearframe/internal/audit"
	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/processor/watermark"
	"github.com/abdul-hamid-achik/clearframe/internal/storage"
	"github.com/google/uuid"
)

// maxSelectionsBody caps the selections blob.
const maxSelectionsBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestScope returns the owner and job id of a request. The owner is
// uuid.Nil on public routes.
func requestScope(r *http.Request, public bool) (owner, id uuid.UUID, err error) {
	if !public {
		var ok bool
		if owner, ok = GetUserID(r.Context()); !ok {
			return uuid.Nil, uuid.Nil, apperror.ErrUnauthorized
		}
	}
	id, err = uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apperror.ErrJobNotFound
	}
	return owner, id, nil
}

type jobResponse struct {
	*job.Job
	StreamURL string `json:"stream_url"`
}

func newJobResponse(cfg *Config, j *job.Job) jobResponse {
	return jobResponse{Job: j, StreamURL: streamURL(cfg, j.ID)}
}

// recordAudit stores entry. Failures are logged and never fail the
// request.
func recordAudit(cfg *Config, r *http.Request, entry audit.Entry) {
	if cfg.Audit == nil {
		return
	}
	if err := cfg.Audit.LogFromRequest(r.Context(), r, entry); err != nil {
		logger.FromContext(r.Context()).Warn("audit log failed", "action", string(entry.Action), "error", err)
	}
}

func auditJob(cfg *Config, r *http.Request, action audit.Action, owner, jobID uuid.UUID, metadata map[string]any) {
	recordAudit(cfg, r, audit.Entry{
		UserID:       owner,
		Action:       action,
		ResourceType: "job",
		ResourceID:   jobID,
		Metadata:     metadata,
	})
}

func streamURL(cfg *Config, id uuid.UUID) string {
	return fmt.Sprintf("%s/v1/videos/%s/stream", cfg.BaseURL, id)
}

func uploadHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r.Context())
		if !ok {
			apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
			return
		}
		log := logger.FromContext(r.Context())

		maxSize := cfg.MaxUploadSize
		if maxSize <= 0 {
			maxSize = 500 * 1024 * 1024
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrFileTooLarge))
				return
			}
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(err, "bad_request", "Expected a multipart upload", http.StatusBadRequest))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, err := r.FormFile("file")
		if err != nil {
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(err, "missing_file", "Please select a video to upload", http.StatusBadRequest))
			return
		}
		defer func() { _ = file.Close() }()

		if IsBlockedExtension(header.Filename) {
			apperror.WriteJSON(w, r, apperror.ErrInvalidFileType)
			return
		}

		filename := SanitizeFilename(header.Filename)
		contentType := DetectContentType(header.Header.Get("Content-Type"), filename)
		log.Info("uploading video", "filename", filename, "size", header.Size, "content_type", contentType)

		j, err := cfg.Jobs.Create(r.Context(), job.CreateInput{
			OwnerID:     userID,
			Filename:    filename,
			ContentType: contentType,
			Size:        header.Size,
			Body:        file,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		auditJob(cfg, r, audit.ActionJobUpload, userID, j.ID, map[string]any{
			"filename": filename,
			"size":     header.Size,
			"tier":     j.Tier,
		})

		writeJSON(w, http.StatusCreated, map[string]any{
			"job_id":       j.ID,
			"status":       j.Status,
			"tier":         j.Tier,
			"message":      "Video uploaded. Select watermark regions, then start processing.",
			"redirect_url": streamURL(cfg, j.ID),
		})
	}
}

type listQuery struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`
}

func listJobsHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r.Context())
		if !ok {
			apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
			return
		}

		q := listQuery{Limit: 20}
		var err error
		if v := r.URL.Query().Get("limit"); v != "" {
			if q.Limit, err = strconv.Atoi(v); err != nil {
				apperror.WriteJSON(w, r, apperror.Validation("limit must be a number"))
				return
			}
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if q.Offset, err = strconv.Atoi(v); err != nil {
				apperror.WriteJSON(w, r, apperror.Validation("offset must be a number"))
				return
			}
		}
		if err := cfg.validate.Struct(q); err != nil {
			apperror.WriteJSON(w, r, apperror.Validation("limit must be 0-100 and offset non-negative"))
			return
		}

		jobs, err := cfg.Jobs.List(r.Context(), userID, q.Limit, q.Offset)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := make([]jobResponse, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, newJobResponse(cfg, j))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":   out,
			"limit":  q.Limit,
			"offset": q.Offset,
		})
	}
}

func getJobHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, id, err := requestScope(r, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		j, err := cfg.Jobs.Get(r.Context(), owner, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newJobResponse(cfg, j))
	}
}

func jobStatusHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, id, err := requestScope(r, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		j, err := cfg.Jobs.Get(r.Context(), owner, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":        j.ID,
			"status":        j.Status,
			"error_message": j.ErrorMessage,
		})
	}
}

func getSelectionsHandler(cfg *Config, public bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, id, err := requestScope(r, public)
		if err != nil {
			writeError(w, r, err)
			return
		}
		j, err := cfg.Jobs.Get(r.Context(), owner, id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var selections json.RawMessage = []byte("[]")
		if len(j.Selections) > 0 && json.Valid(j.Selections) {
			selections = j.Selections
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":     j.ID,
			"status":     j.Status,
			"watermarks": selections,
		})
	}
}

func submitSelectionsHandler(cfg *Config, public bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, id, err := requestScope(r, public)
		if err != nil {
			writeError(w, r, err)
			return
		}

		blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSelectionsBody))
		if err != nil {
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(err, "bad_request", "Selections body is too large", http.StatusRequestEntityTooLarge))
			return
		}
		if !json.Valid(blob) {
			apperror.WriteJSON(w, r, apperror.Validation("Selections must be JSON"))
			return
		}

		j, err := cfg.Jobs.SubmitSelections(r.Context(), owner, id, blob)
		if err != nil {
			writeError(w, r, err)
			return
		}
		regions := len(watermark.DecodeSelections(blob))
		auditJob(cfg, r, audit.ActionJobSelections, j.OwnerID, j.ID, map[string]any{
			"regions": regions,
			"public":  public,
		})

		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":  j.ID,
			"status":  j.Status,
			"regions": regions,
			"message": "Watermark selections saved",
		})
	}
}

func processHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, id, err := requestScope(r, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		j, err := cfg.Jobs.StartProcessing(r.Context(), owner, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		auditJob(cfg, r, audit.ActionJobProcess, owner, j.ID, nil)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":  j.ID,
			"status":  j.Status,
			"message": "Processing started",
		})
	}
}

func downloadHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, id, err := requestScope(r, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		j, err := cfg.Jobs.Get(r.Context(), owner, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if j.Status != job.StatusCompleted {
			apperror.WriteJSON(w, r, apperror.ErrNotReady)
			return
		}
		if j.ProcessedRef == nil || *j.ProcessedRef == "" {
			apperror.WriteJSON(w, r, apperror.ErrFileNotFound)
			return
		}

		ttl := cfg.DownloadURLTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		expiresAt := time.Now().UTC().Add(ttl)

		url := streamURL(cfg, j.ID)
		if cfg.Remote != nil {
			signed, err := cfg.Remote.GetPresignedURL(r.Context(), *j.ProcessedRef, int(ttl.Seconds()))
			switch {
			case err == nil:
				url = signed
			case errors.Is(err, storage.ErrPresignUnsupported):
			default:
				logger.FromContext(r.Context()).Warn("presign failed, falling back to stream url", "job_id", j.ID.String(), "error", err)
			}
		}

		auditJob(cfg, r, audit.ActionJobDownload, owner, j.ID, nil)

		writeJSON(w, http.StatusOK, map[string]any{
			"download_url": url,
			"expires_at":   expiresAt,
		})
	}
}

func deleteJobHandler(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, id, err := requestScope(r, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := cfg.Jobs.Delete(r.Context(), owner, id); err != nil {
			writeError(w, r, err)
			return
		}
		auditJob(cfg, r, audit.ActionJobDelete, owner, id, nil)
		w.WriteHeader(http.StatusNoContent)
	}
}

package client

import (
	"encoding/json"
	"time"
)

type Job struct {
	ID                    string     `json:"id"`
	OriginalFilename      string     `json:"original_filename"`
	Status                string     `json:"status"`
	ErrorMessage          *string    `json:"error_message,omitempty"`
	ContentType           string     `json:"content_type"`
	SizeBytes             int64      `json:"size_bytes"`
	Tier                  string     `json:"tier"`
	StreamURL             string     `json:"stream_url"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type UploadResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Tier        string `json:"tier"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url"`
}

type ListJobsResponse struct {
	Jobs   []Job `json:"jobs"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type JobStatus struct {
	JobID        string  `json:"job_id"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func (s *JobStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Region is a watermark rectangle in source-pixel coordinates.
type Region struct {
	X         float64  `json:"x" yaml:"x"`
	Y         float64  `json:"y" yaml:"y"`
	Width     float64  `json:"width" yaml:"width"`
	Height    float64  `json:"height" yaml:"height"`
	Timestamp *float64 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

type SelectionsRequest struct {
	Watermarks []Region `json:"watermarks"`
}

type SelectionsResponse struct {
	JobID      string          `json:"job_id"`
	Status     string          `json:"status"`
	Watermarks json.RawMessage `json:"watermarks"`
}

type SubmitSelectionsResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Regions int    `json:"regions"`
	Message string `json:"message"`
}

type ProcessResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type DownloadResponse struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Account struct {
	UserID               string     `json:"user_id"`
	Admin                bool       `json:"admin"`
	Plan                 string     `json:"plan"`
	SubscriptionStatus   string     `json:"subscription_status"`
	SubscriptionEndsAt   *time.Time `json:"subscription_ends_at,omitempty"`
	Credits              int64      `json:"credits"`
	FreeUploadsRemaining int64      `json:"free_uploads_remaining"`
	Tier                 string     `json:"tier"`
	Unlimited            bool       `json:"unlimited"`
	CanUpload            bool       `json:"can_upload"`
}

type AccountResponse struct {
	Account Account          `json:"account"`
	Jobs    map[string]int64 `json:"jobs"`
}

type CheckoutRequest struct {
	Kind  string `json:"kind"`
	Packs int64  `json:"packs,omitempty"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// StreamInfo describes a ranged video response.
type StreamInfo struct {
	// Offset is where the body starts within the file.
	Offset int64
	// Total is the full file size, or -1 when the server did not say.
	Total int64
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

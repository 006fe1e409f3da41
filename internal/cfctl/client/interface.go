package client

import (
	"context"
	"io"
	"time"
)

// ClientInterface is the API surface the commands use; MockClient
// implements it for tests.
type ClientInterface interface {
	SetToken(token string)
	BaseURL() string

	Upload(ctx context.Context, filePath string, progress io.Writer) (*UploadResponse, error)
	ListJobs(ctx context.Context, limit, offset int) (*ListJobsResponse, error)
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetStatus(ctx context.Context, jobID string) (*JobStatus, error)
	DeleteJob(ctx context.Context, jobID string) error

	GetSelections(ctx context.Context, jobID string) (*SelectionsResponse, error)
	SubmitSelections(ctx context.Context, jobID string, regions []Region) (*SubmitSelectionsResponse, error)
	Process(ctx context.Context, jobID string) (*ProcessResponse, error)
	WaitForJob(ctx context.Context, jobID string, pollInterval, timeout time.Duration, onStatus func(*JobStatus)) (*JobStatus, error)

	Download(ctx context.Context, jobID string) (*DownloadResponse, error)
	Stream(ctx context.Context, target string, offset int64) (io.ReadCloser, *StreamInfo, error)

	Account(ctx context.Context) (*AccountResponse, error)
	Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error)
}

var _ ClientInterface = (*Client)(nil)

package client

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of ClientInterface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) SetToken(token string) {
	m.Called(token)
}

func (m *MockClient) BaseURL() string {
	return m.Called().String(0)
}

func (m *MockClient) Upload(ctx context.Context, filePath string, progress io.Writer) (*UploadResponse, error) {
	args := m.Called(ctx, filePath, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UploadResponse), args.Error(1)
}

func (m *MockClient) ListJobs(ctx context.Context, limit, offset int) (*ListJobsResponse, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ListJobsResponse), args.Error(1)
}

func (m *MockClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Job), args.Error(1)
}

func (m *MockClient) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*JobStatus), args.Error(1)
}

func (m *MockClient) DeleteJob(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockClient) GetSelections(ctx context.Context, jobID string) (*SelectionsResponse, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SelectionsResponse), args.Error(1)
}

func (m *MockClient) SubmitSelections(ctx context.Context, jobID string, regions []Region) (*SubmitSelectionsResponse, error) {
	args := m.Called(ctx, jobID, regions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SubmitSelectionsResponse), args.Error(1)
}

func (m *MockClient) Process(ctx context.Context, jobID string) (*ProcessResponse, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProcessResponse), args.Error(1)
}

func (m *MockClient) WaitForJob(ctx context.Context, jobID string, pollInterval, timeout time.Duration, onStatus func(*JobStatus)) (*JobStatus, error) {
	args := m.Called(ctx, jobID, pollInterval, timeout, onStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*JobStatus), args.Error(1)
}

func (m *MockClient) Download(ctx context.Context, jobID string) (*DownloadResponse, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DownloadResponse), args.Error(1)
}

func (m *MockClient) Stream(ctx context.Context, target string, offset int64) (io.ReadCloser, *StreamInfo, error) {
	args := m.Called(ctx, target, offset)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(*StreamInfo), args.Error(2)
}

func (m *MockClient) Account(ctx context.Context) (*AccountResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AccountResponse), args.Error(1)
}

func (m *MockClient) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutResponse), args.Error(1)
}

var _ ClientInterface = (*MockClient)(nil)

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/version"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of err when it is an *APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if strings.HasPrefix(target, "/") {
		target = c.baseURL + target
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	// Presigned object storage URLs must not carry our token.
	if c.token != "" && strings.HasPrefix(target, c.baseURL+"/") {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", "cfctl/"+version.Short())
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}
	if respBody != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	return nil
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		apiErr.Code = errResp.Code
		if apiErr.Code == "" {
			apiErr.Code = errResp.Error
		}
		apiErr.Message = errResp.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

// Upload streams filePath as a multipart form. progress, when non-nil,
// receives every byte read from the file.
func (c *Client) Upload(ctx context.Context, filePath string, progress io.Writer) (*UploadResponse, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var src io.Reader = file
	if progress != nil {
		src = io.TeeReader(file, progress)
	}
	return c.UploadReader(ctx, src, filepath.Base(filePath))
}

func (c *Client) UploadReader(ctx context.Context, r io.Reader, filename string) (*UploadResponse, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/jobs", pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, parseError(resp)
	}

	var result UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

func (c *Client) ListJobs(ctx context.Context, limit, offset int) (*ListJobsResponse, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var result ListJobsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/jobs?"+params.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var result Job
	if err := c.doJSON(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var result JobStatus
	if err := c.doJSON(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID)+"/status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetSelections(ctx context.Context, jobID string) (*SelectionsResponse, error) {
	var result SelectionsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID)+"/watermarks", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SubmitSelections(ctx context.Context, jobID string, regions []Region) (*SubmitSelectionsResponse, error) {
	if regions == nil {
		regions = []Region{}
	}
	var result SubmitSelectionsResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/watermarks", SelectionsRequest{Watermarks: regions}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Process(ctx context.Context, jobID string) (*ProcessResponse, error) {
	var result ProcessResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/process", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Download(ctx context.Context, jobID string) (*DownloadResponse, error) {
	var result DownloadResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID)+"/download", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/jobs/"+url.PathEscape(jobID), nil, nil)
}

func (c *Client) Account(ctx context.Context) (*AccountResponse, error) {
	var result AccountResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/account", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	var result CheckoutResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/billing/checkout", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stream fetches a video from offset onward. target is an absolute URL
// or an API path. A server that ignores the range answers 200 and the
// body starts at zero.
func (c *Client) Stream(ctx context.Context, target string, offset int64) (io.ReadCloser, *StreamInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	info := &StreamInfo{Total: -1}
	switch resp.StatusCode {
	case http.StatusOK:
		info.Total = resp.ContentLength
	case http.StatusPartialContent:
		info.Offset, info.Total = parseContentRange(resp.Header.Get("Content-Range"))
	case http.StatusRequestedRangeNotSatisfiable:
		_ = resp.Body.Close()
		// Nothing past offset: the file is already complete.
		if _, total := parseContentRange(resp.Header.Get("Content-Range")); total == offset {
			return io.NopCloser(strings.NewReader("")), &StreamInfo{Offset: offset, Total: total}, nil
		}
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: "requested range not satisfiable"}
	default:
		defer func() { _ = resp.Body.Close() }()
		return nil, nil, parseError(resp)
	}
	return resp.Body, info, nil
}

// parseContentRange reads "bytes start-end/total" and "bytes */total".
func parseContentRange(v string) (start, total int64) {
	total = -1
	spec, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return 0, total
	}
	rng, size, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, total
	}
	if n, err := strconv.ParseInt(size, 10, 64); err == nil {
		total = n
	}
	if first, _, ok := strings.Cut(rng, "-"); ok {
		if n, err := strconv.ParseInt(first, 10, 64); err == nil {
			start = n
		}
	}
	return start, total
}

// WaitForJob polls the job status until it is terminal. onStatus, when
// non-nil, sees every poll result.
func (c *Client) WaitForJob(ctx context.Context, jobID string, pollInterval, timeout time.Duration, onStatus func(*JobStatus)) (*JobStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.GetStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if onStatus != nil {
			onStatus(status)
		}
		if status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

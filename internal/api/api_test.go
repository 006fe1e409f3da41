package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/audit"
	"github.com/abdul-hamid-achik/clearframe/internal/billing"
	"github.com/abdul-hamid-achik/clearframe/internal/dispatch"
	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/processor/watermark"
	"github.com/abdul-hamid-achik/clearframe/internal/resolver"
	"github.com/abdul-hamid-achik/clearframe/internal/storage"
	"github.com/abdul-hamid-achik/clearframe/internal/stream"
	"github.com/abdul-hamid-achik/clearframe/internal/worker"
	"github.com/google/uuid"
)

const testBaseURL = "http://clearframe.test"

// processedPayload is what the fake ffmpeg writes as output.
var processedPayload = func() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}()

// fakeFFmpeg writes processedPayload to the output argument, or fails
// with a diagnostic when fail is set.
type fakeFFmpeg struct {
	fail  bool
	gate  chan struct{}
	calls chan []string
}

func (f *fakeFFmpeg) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if f.calls != nil {
		f.calls <- args
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return []byte("Invalid data found when processing input"), errors.New("exit status 1")
	}
	return nil, os.WriteFile(args[len(args)-1], processedPayload, 0o640)
}

func noProbe(context.Context, string, ...string) ([]byte, error) {
	return nil, errors.New("ffprobe unavailable")
}

type fixture struct {
	t       *testing.T
	handler http.Handler
	jobs    *job.Service
	ledger  *billing.MemoryLedger
	pool    *dispatch.Pool
	audit   *audit.MemoryStore
	user    uuid.UUID
	token   string
}

type fixtureOptions struct {
	ffmpeg           *fakeFFmpeg
	pool             dispatch.PoolConfig
	publicSelections bool
	limiter          Limiter
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	root := t.TempDir()
	local, err := storage.NewLocalStorage(root)
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	if opts.ffmpeg == nil {
		opts.ffmpeg = &fakeFFmpeg{}
	}
	if opts.pool.Workers == 0 {
		opts.pool = dispatch.PoolConfig{Workers: 2, Depth: 4, AdmitTimeout: 50 * time.Millisecond}
	}
	if opts.limiter == nil {
		opts.limiter = allowAll{}
	}

	repo := job.NewMemoryRepository()
	res := resolver.New(resolver.ExactPath{Root: local.Root()})
	inv := watermark.NewInvoker(watermark.DefaultConfig(), res, local.Root(),
		watermark.WithRunner(opts.ffmpeg.run),
		watermark.WithProber(noProbe),
	)

	ledger := billing.NewMemoryLedger()
	bill := billing.NewService(billing.ServiceConfig{Ledger: ledger, BaseURL: testBaseURL})

	deps := &worker.Dependencies{Jobs: repo, Invoker: inv}
	pool := dispatch.NewPool(opts.pool, worker.NewProcessor(deps).Run)
	pool.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})

	svc := job.NewService(job.ServiceConfig{
		Repository:   repo,
		Local:        local,
		Dispatcher:   pool,
		Entitlements: bill,
	})
	deps.Lifecycle = svc

	user := uuid.New()
	token, err := NewToken(testJWTSecret, user, time.Hour)
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}

	auditStore := audit.NewMemoryStore()
	handler := NewRouter(&Config{
		Jobs:             svc,
		Billing:          bill,
		Stream:           stream.NewServer(svc, res, inv),
		Limiter:          opts.limiter,
		Audit:            audit.NewLogger(auditStore),
		JWTSecret:        testJWTSecret,
		BaseURL:          testBaseURL,
		PublicSelections: opts.publicSelections,
	})

	return &fixture{t: t, handler: handler, jobs: svc, ledger: ledger, pool: pool, audit: auditStore, user: user, token: token}
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) bool { return true }

func (f *fixture) do(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) upload(filename, contentType string, data []byte) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		f.t.Fatalf("CreatePart() error = %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	return f.do(http.MethodPost, "/v1/jobs", buf.Bytes(), mw.FormDataContentType())
}

func (f *fixture) mustUpload() uuid.UUID {
	f.t.Helper()
	rec := f.upload("clip.mp4", "video/mp4", []byte("0123456789"))
	if rec.Code != http.StatusCreated {
		f.t.Fatalf("upload status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp struct {
		JobID uuid.UUID `json:"job_id"`
	}
	decode(f.t, rec, &resp)
	return resp.JobID
}

func (f *fixture) waitStatus(id uuid.UUID, want job.Status) map[string]any {
	f.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		rec := f.do(http.MethodGet, "/v1/jobs/"+id.String()+"/status", nil, "")
		var body map[string]any
		decode(f.t, rec, &body)
		if body["status"] == string(want) {
			return body
		}
		if time.Now().After(deadline) {
			f.t.Fatalf("status = %v, want %s", body["status"], want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

func TestJobLifecycle(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rec := f.upload("clip.mp4", "video/mp4", []byte("0123456789"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var created struct {
		JobID       uuid.UUID `json:"job_id"`
		Status      string    `json:"status"`
		Tier        string    `json:"tier"`
		RedirectURL string    `json:"redirect_url"`
	}
	decode(t, rec, &created)
	if created.Status != string(job.StatusPending) {
		t.Errorf("status = %q, want %q", created.Status, job.StatusPending)
	}
	if created.Tier != job.TierFree {
		t.Errorf("tier = %q, want %q", created.Tier, job.TierFree)
	}
	id := created.JobID
	wantStream := testBaseURL + "/v1/videos/" + id.String() + "/stream"
	if created.RedirectURL != wantStream {
		t.Errorf("redirect_url = %q, want %q", created.RedirectURL, wantStream)
	}

	// The original streams before processing.
	req := httptest.NewRequest(http.MethodGet, "/v1/videos/"+id.String()+"/stream", nil)
	req.Header.Set("Range", "bytes=2-4")
	srec := httptest.NewRecorder()
	f.handler.ServeHTTP(srec, req)
	if srec.Code != http.StatusPartialContent || srec.Body.String() != "234" {
		t.Errorf("original stream = %d %q, want 206 %q", srec.Code, srec.Body.String(), "234")
	}

	selections := `[{"x":10,"y":20,"width":100,"height":40}]`
	rec = f.do(http.MethodPost, "/v1/jobs/"+id.String()+"/watermarks", []byte(selections), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("watermarks status = %d: %s", rec.Code, rec.Body.String())
	}
	var saved map[string]any
	decode(t, rec, &saved)
	if saved["regions"] != float64(1) {
		t.Errorf("regions = %v, want 1", saved["regions"])
	}

	rec = f.do(http.MethodGet, "/v1/jobs/"+id.String()+"/watermarks", nil, "")
	var stored struct {
		Watermarks json.RawMessage `json:"watermarks"`
	}
	decode(t, rec, &stored)
	if string(stored.Watermarks) != selections {
		t.Errorf("watermarks = %s, want %s", stored.Watermarks, selections)
	}

	rec = f.do(http.MethodGet, "/v1/jobs/"+id.String()+"/download", nil, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("download before completion = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = f.do(http.MethodPost, "/v1/jobs/"+id.String()+"/process", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("process status = %d: %s", rec.Code, rec.Body.String())
	}

	f.waitStatus(id, job.StatusCompleted)

	rec = f.do(http.MethodGet, "/v1/jobs/"+id.String()+"/download", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d: %s", rec.Code, rec.Body.String())
	}
	var dl struct {
		DownloadURL string    `json:"download_url"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	decode(t, rec, &dl)
	if dl.DownloadURL != wantStream {
		t.Errorf("download_url = %q, want %q", dl.DownloadURL, wantStream)
	}
	if !dl.ExpiresAt.After(time.Now()) {
		t.Errorf("expires_at = %v, want a future time", dl.ExpiresAt)
	}

	req = httptest.NewRequest(http.MethodGet, strings.TrimPrefix(dl.DownloadURL, testBaseURL), nil)
	req.Header.Set("Range", "bytes=10-19")
	srec = httptest.NewRecorder()
	f.handler.ServeHTTP(srec, req)
	if srec.Code != http.StatusPartialContent {
		t.Fatalf("processed stream status = %d, want %d", srec.Code, http.StatusPartialContent)
	}
	if got := srec.Header().Get("Content-Range"); got != "bytes 10-19/256" {
		t.Errorf("Content-Range = %q, want %q", got, "bytes 10-19/256")
	}
	if !bytes.Equal(srec.Body.Bytes(), processedPayload[10:20]) {
		t.Errorf("body = %v, want %v", srec.Body.Bytes(), processedPayload[10:20])
	}

	rec = f.do(http.MethodPost, "/v1/jobs/"+id.String()+"/process", nil, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second process = %d, want %d", rec.Code, http.StatusConflict)
	}
	rec = f.do(http.MethodPost, "/v1/jobs/"+id.String()+"/watermarks", []byte(`[]`), "application/json")
	if rec.Code != http.StatusConflict {
		t.Errorf("watermarks after completion = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestJobFailureIsReported(t *testing.T) {
	f := newFixture(t, fixtureOptions{ffmpeg: &fakeFFmpeg{fail: true}})
	id := f.mustUpload()

	rec := f.do(http.MethodPost, "/v1/jobs/"+id.String()+"/process", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("process status = %d: %s", rec.Code, rec.Body.String())
	}

	body := f.waitStatus(id, job.StatusFailed)
	msg, _ := body["error_message"].(string)
	if !strings.HasPrefix(msg, "FFmpeg failed") {
		t.Errorf("error_message = %q, want FFmpeg failed prefix", msg)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/videos/"+id.String()+"/stream", nil)
	srec := httptest.NewRecorder()
	f.handler.ServeHTTP(srec, req)
	if srec.Code != http.StatusConflict {
		t.Errorf("stream of failed job = %d, want %d", srec.Code, http.StatusConflict)
	}
}

func TestUploadRejects(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		wantStatus  int
	}{
		{"not a video", "notes.txt", "text/plain", http.StatusBadRequest},
		{"blocked extension", "clip.exe", "video/mp4", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{})
			rec := f.upload(tt.filename, tt.contentType, []byte("data"))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	t.Run("missing file field", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("other", "x")
		_ = mw.Close()
		rec := f.do(http.MethodPost, "/v1/jobs", buf.Bytes(), mw.FormDataContentType())
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestUploadRequiresEntitlement(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.mustUpload()

	rec := f.upload("again.mp4", "video/mp4", []byte("0123456789"))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("second free upload = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}

	if err := f.ledger.Grant(context.Background(), f.user, 1); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	rec = f.upload("again.mp4", "video/mp4", []byte("0123456789"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload with credit = %d, want %d", rec.Code, http.StatusCreated)
	}
	var created map[string]any
	decode(t, rec, &created)
	if created["tier"] != job.TierPaid {
		t.Errorf("tier = %v, want %q", created["tier"], job.TierPaid)
	}

	rec = f.do(http.MethodGet, "/v1/account", nil, "")
	var account struct {
		Account struct {
			Credits   int64 `json:"credits"`
			CanUpload bool  `json:"can_upload"`
		} `json:"account"`
		Jobs map[string]int `json:"jobs"`
	}
	decode(t, rec, &account)
	if account.Account.Credits != 0 || account.Account.CanUpload {
		t.Errorf("account = %+v, want no credits left", account.Account)
	}
	if account.Jobs[string(job.StatusPending)] != 2 {
		t.Errorf("pending jobs = %d, want 2", account.Jobs[string(job.StatusPending)])
	}
}

func TestProcessRejectsWhenQueueFull(t *testing.T) {
	ff := &fakeFFmpeg{gate: make(chan struct{}), calls: make(chan []string, 4)}
	f := newFixture(t, fixtureOptions{
		ffmpeg: ff,
		pool:   dispatch.PoolConfig{Workers: 1, Depth: 1, AdmitTimeout: 20 * time.Millisecond},
	})
	defer close(ff.gate)
	if err := f.ledger.Grant(context.Background(), f.user, 5); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	first, second := f.mustUpload(), f.mustUpload()

	rec := f.do(http.MethodPost, "/v1/jobs/"+first.String()+"/process", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first process = %d: %s", rec.Code, rec.Body.String())
	}
	<-ff.calls

	rec = f.do(http.MethodPost, "/v1/jobs/"+second.String()+"/process", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("second process = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	// A rejected job keeps its state and can be retried.
	rec = f.do(http.MethodGet, "/v1/jobs/"+second.String(), nil, "")
	var j map[string]any
	decode(t, rec, &j)
	if j["status"] != string(job.StatusPending) {
		t.Errorf("rejected job status = %v, want %q", j["status"], job.StatusPending)
	}

	rec = f.do(http.MethodDelete, "/v1/jobs/"+first.String(), nil, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("delete while processing = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestDeleteJob(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	id := f.mustUpload()

	rec := f.do(http.MethodDelete, "/v1/jobs/"+id.String(), nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want %d: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	rec = f.do(http.MethodGet, "/v1/jobs/"+id.String(), nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want %d", rec.Code, http.StatusNotFound)
	}

	entries := f.audit.Entries()
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	for i, want := range []audit.Action{audit.ActionJobUpload, audit.ActionJobDelete} {
		e := entries[i]
		if e.Action != want || e.UserID != f.user || e.ResourceID != id {
			t.Errorf("audit[%d] = %+v, want %s on %s", i, e, want, id)
		}
	}
}

func TestJobsAreScopedToOwner(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	id := f.mustUpload()

	other, err := NewToken(testJWTSecret, uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}
	f.token = other

	for _, path := range []string{
		"/v1/jobs/" + id.String(),
		"/v1/jobs/" + id.String() + "/status",
		"/v1/jobs/" + id.String() + "/watermarks",
	} {
		if rec := f.do(http.MethodGet, path, nil, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusNotFound)
		}
	}
	if rec := f.do(http.MethodPost, "/v1/jobs/"+id.String()+"/process", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("process = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec := f.do(http.MethodGet, "/v1/jobs", nil, "")
	var list struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	decode(t, rec, &list)
	if len(list.Jobs) != 0 {
		t.Errorf("other owner sees %d jobs, want 0", len(list.Jobs))
	}
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	if err := f.ledger.Grant(context.Background(), f.user, 2); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	for range 3 {
		f.mustUpload()
	}

	tests := []struct {
		query      string
		wantStatus int
		wantLen    int
	}{
		{"", http.StatusOK, 3},
		{"?limit=2", http.StatusOK, 2},
		{"?limit=2&offset=2", http.StatusOK, 1},
		{"?limit=500", http.StatusBadRequest, 0},
		{"?offset=-1", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/v1/jobs"+tt.query, nil, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var list struct {
				Jobs []struct {
					StreamURL string `json:"stream_url"`
				} `json:"jobs"`
			}
			decode(t, rec, &list)
			if len(list.Jobs) != tt.wantLen {
				t.Errorf("len(jobs) = %d, want %d", len(list.Jobs), tt.wantLen)
			}
			for _, j := range list.Jobs {
				if !strings.HasPrefix(j.StreamURL, testBaseURL+"/v1/videos/") {
					t.Errorf("stream_url = %q", j.StreamURL)
				}
			}
		})
	}
}

func TestSubmitSelectionsRejectsInvalidJSON(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	id := f.mustUpload()

	rec := f.do(http.MethodPost, "/v1/jobs/"+id.String()+"/watermarks", []byte(`{not json`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	// Unusable regions are stored as sent and skipped at processing time.
	rec = f.do(http.MethodPost, "/v1/jobs/"+id.String()+"/watermarks", []byte(`[{"x":"a"}]`), "application/json")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestPublicSelections(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{publicSelections: true})
		id := f.mustUpload()
		f.token = ""

		rec := f.do(http.MethodPost, "/v1/public/jobs/"+id.String()+"/watermarks", []byte(`[{"x":1,"y":1,"width":5,"height":5}]`), "application/json")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		rec = f.do(http.MethodGet, "/v1/public/jobs/"+id.String()+"/watermarks", nil, "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		id := f.mustUpload()
		f.token = ""

		rec := f.do(http.MethodPost, "/v1/public/jobs/"+id.String()+"/watermarks", []byte(`[]`), "application/json")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}

func TestAPIRequiresAuth(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.token = ""

	paths := []struct{ method, path string }{
		{http.MethodGet, "/v1/jobs"},
		{http.MethodPost, "/v1/jobs"},
		{http.MethodGet, "/v1/jobs/" + uuid.NewString()},
		{http.MethodPost, "/v1/jobs/" + uuid.NewString() + "/process"},
		{http.MethodGet, "/v1/account"},
	}
	for _, p := range paths {
		if rec := f.do(p.method, p.path, nil, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want %d", p.method, p.path, rec.Code, http.StatusUnauthorized)
		}
	}

	// Streaming is public.
	rec := f.do(http.MethodGet, "/v1/videos/"+uuid.NewString()+"/stream", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("stream of unknown job = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestInvalidJobID(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	rec := f.do(http.MethodGet, "/v1/jobs/not-a-uuid", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCheckoutWithoutStripe(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	rec := f.do(http.MethodPost, "/v1/billing/checkout", []byte(`{"kind":"credits","packs":1}`), "application/json")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	rec = f.do(http.MethodPost, "/v1/billing/checkout", []byte(`{"kind":"lifetime"}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid kind = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	defer limiter.Stop()
	now := time.Now()
	limiter.now = func() time.Time { return now }

	f := newFixture(t, fixtureOptions{limiter: limiter})
	if rec := f.do(http.MethodGet, "/v1/jobs", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("first = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec := f.do(http.MethodGet, "/v1/jobs", nil, ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"clip.mp4", "clip.mp4"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\clip.mov`, "clip.mov"},
		{"we<ird>:na|me?.mp4", "weirdname.mp4"},
		{"tab\there.mp4", "tabhere.mp4"},
		{"...", "unnamed_video"},
		{"", "unnamed_video"},
		{strings.Repeat("a", 300) + ".mp4", strings.Repeat("a", 251) + ".mp4"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		declared string
		filename string
		want     string
	}{
		{"video/mp4", "clip.mp4", "video/mp4"},
		{"Video/MP4; codecs=avc1", "clip.mp4", "video/mp4"},
		{"", "clip.mp4", "video/mp4"},
		{"application/octet-stream", "clip.mp4", "video/mp4"},
		{"", "noext", "application/octet-stream"},
		{"text/plain", "clip.mp4", "text/plain"},
	}
	for _, tt := range tests {
		if got := DetectContentType(tt.declared, tt.filename); got != tt.want {
			t.Errorf("DetectContentType(%q, %q) = %q, want %q", tt.declared, tt.filename, got, tt.want)
		}
	}
}

func TestIsBlockedExtension(t *testing.T) {
	for name, want := range map[string]bool{
		"clip.mp4":  false,
		"clip.EXE":  true,
		"script.sh": true,
		"noext":     false,
	} {
		if got := IsBlockedExtension(name); got != want {
			t.Errorf("IsBlockedExtension(%q) = %v, want %v", name, got, want)
		}
	}
}

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeStorage struct{ err error }

func (f fakeStorage) HealthCheck(context.Context) error { return f.err }

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		storageErr error
		ffmpegErr  error
		eventsErr  error
		wantStatus int
		wantHealth Status
	}{
		{"all healthy", nil, nil, nil, http.StatusOK, StatusHealthy},
		{"storage down", errors.New("bucket missing"), nil, nil, http.StatusServiceUnavailable, StatusUnhealthy},
		{"ffmpeg missing", nil, errors.New("ffmpeg not installed"), nil, http.StatusServiceUnavailable, StatusUnhealthy},
		{"events down", nil, nil, errors.New("nats connection RECONNECTING"), http.StatusOK, StatusDegraded},
		{"events and storage down", errors.New("x"), nil, errors.New("y"), http.StatusServiceUnavailable, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(nil, nil).
				WithVersion("1.0.0").
				WithStorage(fakeStorage{err: tt.storageErr}).
				WithFFmpeg(func() error { return tt.ffmpegErr }).
				Optional("events", fakeStorage{err: tt.eventsErr}.HealthCheck)

			rec := httptest.NewRecorder()
			ReadinessHandler(c)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantHealth {
				t.Errorf("health = %s, want %s", resp.Status, tt.wantHealth)
			}
			if resp.Version != "1.0.0" {
				t.Errorf("version = %q", resp.Version)
			}
			if len(resp.Components) != 3 {
				t.Fatalf("components = %d, want 3", len(resp.Components))
			}
			if got := resp.Components[2]; got.Name != "events" || !got.Optional {
				t.Errorf("events component = %+v", got)
			}
		})
	}
}

func TestCheckHonoursContextDeadline(t *testing.T) {
	c := NewChecker(nil, nil).With("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := c.CheckAll(ctx)
	if resp.Status != StatusUnhealthy || resp.Components[0].Error == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("missing Cache-Control")
	}
}

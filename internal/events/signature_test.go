package events

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"type":"job.completed","data":{}}`)
	ts := time.Unix(1234567890, 0)

	h := Sign("whsec_a", ts, body)
	if !strings.HasPrefix(h, "t=1234567890,v1=") {
		t.Errorf("Sign() = %q", h)
	}
	if h != Sign("whsec_a", ts, body) {
		t.Error("Sign() should be deterministic")
	}
	if h == Sign("whsec_b", ts, body) {
		t.Error("Sign() should vary with secret")
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"type":"job.completed"}`)
	secret := "whsec_test_secret"
	now := time.Unix(1700000000, 0)
	valid := Sign(secret, now, body)
	v1 := valid[strings.Index(valid, "v1="):]

	tests := []struct {
		name    string
		header  string
		secret  string
		body    []byte
		wantErr error
	}{
		{"valid", valid, secret, body, nil},
		{"rotated secret", valid + ",v1=00ff", secret, body, nil},
		{"wrong secret", valid, "other", body, ErrSignatureMismatch},
		{"tampered body", valid, secret, []byte(`{"type":"job.failed"}`), ErrSignatureMismatch},
		{"expired", Sign(secret, now.Add(-time.Hour), body), secret, body, ErrSignatureExpired},
		{"from the future", Sign(secret, now.Add(time.Hour), body), secret, body, ErrSignatureExpired},
		{"empty", "", secret, body, ErrSignatureMalformed},
		{"no timestamp", v1, secret, body, ErrSignatureMalformed},
		{"no mac", "t=1700000000", secret, body, ErrSignatureMalformed},
		{"bad timestamp", "t=x," + v1, secret, body, ErrSignatureMalformed},
		{"bad hex", "t=1700000000,v1=zz", secret, body, ErrSignatureMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.header, tt.secret, tt.body, 5*time.Minute, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

package job

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSourcesOf(t *testing.T) {
	tests := map[Status][]Status{
		StatusPending:    nil,
		StatusProcessing: {StatusPending},
		StatusCompleted:  {StatusProcessing},
		StatusFailed:     {StatusProcessing},
	}
	for to, want := range tests {
		got := SourcesOf(to)
		if strings.Join(statusNames(got), ",") != strings.Join(statusNames(want), ",") {
			t.Errorf("SourcesOf(%s) = %v, want %v", to, got, want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusProcessing.Terminal() {
		t.Error("pending/processing must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("completed/failed must be terminal")
	}
	if Status("queued").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestUploadKey(t *testing.T) {
	owner := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	id := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	key, err := UploadKey(TierPaid, owner, id, "Holiday.MOV")
	if err != nil {
		t.Fatalf("UploadKey() error = %v", err)
	}
	want := "uploads/paid/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222.mov"
	if key != want {
		t.Errorf("UploadKey() = %q, want %q", key, want)
	}

	key, _ = UploadKey(TierFree, owner, id, "noext")
	if !strings.HasPrefix(key, "uploads/free/") || strings.Contains(key, ".") {
		t.Errorf("UploadKey() without extension = %q", key)
	}

	if _, err := UploadKey("gold", owner, id, "a.mp4"); err != ErrInvalidTier {
		t.Errorf("UploadKey() with bad tier error = %v, want ErrInvalidTier", err)
	}
}

func TestRefsOrder(t *testing.T) {
	processed := "processed/u/p.mp4"
	j := &Job{OriginalRef: "uploads/paid/u/o.mp4"}
	if got := j.Refs(); len(got) != 1 || got[0] != j.OriginalRef {
		t.Errorf("Refs() = %v", got)
	}

	j.ProcessedRef = &processed
	got := j.Refs()
	if len(got) != 2 || got[0] != processed || got[1] != j.OriginalRef {
		t.Errorf("Refs() = %v, want processed first", got)
	}
}

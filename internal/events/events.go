package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	EventJobCreated    = "job.created"
	EventJobProcessing = "job.processing"
	EventJobCompleted  = "job.completed"
	EventJobFailed     = "job.failed"
	EventJobDeleted    = "job.deleted"
)

var ValidEventTypes = map[string]bool{
	EventJobCreated:    true,
	EventJobProcessing: true,
	EventJobCompleted:  true,
	EventJobFailed:     true,
	EventJobDeleted:    true,
}

type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// JobData is the payload carried by every job.* event.
type JobData struct {
	JobID            string `json:"job_id"`
	OwnerID          string `json:"owner_id"`
	Status           string `json:"status"`
	OriginalFilename string `json:"original_filename,omitempty"`
	ProcessedRef     string `json:"processed_ref,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
	DurationMs       int64  `json:"duration_ms,omitempty"`
}

func NewEvent(eventType string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
		Data:      dataBytes,
	}, nil
}

func NewJobEvent(eventType string, data JobData) (*Event, error) {
	return NewEvent(eventType, data)
}

// Subject maps an event type onto a dotted subject under prefix,
// e.g. "clearframe.jobs" + "job.completed" -> "clearframe.jobs.completed".
func (e *Event) Subject(prefix string) string {
	name := e.Type
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

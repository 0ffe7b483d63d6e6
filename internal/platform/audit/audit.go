// Package audit records which patient records and documents were viewed.
// The trail is an event log for compliance review, not a clinical data
// store; failures to record are logged and never block the viewing path.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one view event.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"subject"`
	Source    string    `json:"source"`
	PatientID string    `json:"patientId"`
	Resource  string    `json:"resource,omitempty"`
	Action    string    `json:"action"`
	ViewedAt  time.Time `json:"viewedAt"`
}

// Repo persists view events.
type Repo interface {
	Record(ctx context.Context, e *Entry) error
	ListByPatient(ctx context.Context, source, patientID string, limit int) ([]Entry, error)
}

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps the trail in process memory. Used when no database URL
// is configured; the trail then lasts as long as the process.
type MemoryRepo struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Record(_ context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ViewedAt.IsZero() {
		e.ViewedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.entries = append(r.entries, *e)
	r.mu.Unlock()
	return nil
}

// ListByPatient returns the newest entries first.
func (r *MemoryRepo) ListByPatient(_ context.Context, source, patientID string, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, limit)
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.Source != source || e.PatientID != patientID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

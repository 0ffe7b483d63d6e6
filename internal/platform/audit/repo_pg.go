package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRepo struct {
	pool *pgxpool.Pool
}

func NewPGRepo(pool *pgxpool.Pool) Repo {
	return &pgRepo{pool: pool}
}

// EnsureSchema creates the audit table when it does not exist yet. The
// table is append-only; there is no update or delete path.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS view_audit (
			id         UUID PRIMARY KEY,
			subject    TEXT NOT NULL,
			source     TEXT NOT NULL,
			patient_id TEXT NOT NULL,
			resource   TEXT NOT NULL DEFAULT '',
			action     TEXT NOT NULL,
			viewed_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS view_audit_patient_idx
			ON view_audit (source, patient_id, viewed_at DESC);
	`)
	return err
}

func (r *pgRepo) Record(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ViewedAt.IsZero() {
		e.ViewedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO view_audit (id, subject, source, patient_id, resource, action, viewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Subject, e.Source, e.PatientID, e.Resource, e.Action, e.ViewedAt,
	)
	return err
}

func (r *pgRepo) ListByPatient(ctx context.Context, source, patientID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, subject, source, patient_id, resource, action, viewed_at
		FROM view_audit
		WHERE source = $1 AND patient_id = $2
		ORDER BY viewed_at DESC
		LIMIT $3`,
		source, patientID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Subject, &e.Source, &e.PatientID, &e.Resource, &e.Action, &e.ViewedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

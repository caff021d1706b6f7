package genlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Entry is one prompt-generation log row. Logging is best-effort: callers
// swallow insert failures and never roll back the parent operation.
type Entry struct {
	ID              string
	UserID          string
	ProjectPublicID string
	Stage           int
	Tool            string
	Success         bool
	FallbackUsed    bool
	Confidence      float64
	CreatedAt       time.Time
}

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Insert(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	const q = `
INSERT INTO prompt_generation_logs
  (id, user_id, project_public_id, stage, tool, success, fallback_used, confidence)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at;
`
	err := r.db.QueryRow(q,
		e.ID, e.UserID, e.ProjectPublicID, e.Stage, e.Tool, e.Success, e.FallbackUsed, e.Confidence).
		Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}

// CountByUserSince counts generation attempts in the trailing window. The
// nightly job compares it with the project-row count to spot dropped
// best-effort log writes.
func (r *Repo) CountByUserSince(userID string, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*)
FROM prompt_generation_logs
WHERE user_id = $1 AND created_at >= $2;
`
	var count int
	if err := r.db.QueryRow(q, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count generation logs: %w", err)
	}
	return count, nil
}

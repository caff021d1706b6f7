package prompt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPromptNotFound = errors.New("prompt not found")

// GeneratedPrompt is one immutable versioned prompt row. Only rating and
// archival flags are ever updated after creation.
type GeneratedPrompt struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ProjectPublicID string    `json:"project_public_id"`
	Kind            string    `json:"kind"` // skeleton | screen | export
	Tool            string    `json:"tool"`
	Version         int       `json:"version"`
	IsCurrent       bool      `json:"is_current"`
	Content         string    `json:"content"`
	SnippetIDs      []string  `json:"snippet_ids,omitempty"`
	Confidence      float64   `json:"confidence"`
	Rating          *int      `json:"rating,omitempty"`
	Archived        bool      `json:"archived"`
	CreatedAt       time.Time `json:"created_at"`
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Insert stores a new version and makes it current. The previous current
// version for the same (project, kind, tool) is demoted in the same
// transaction so exactly one version is current at a time. Writers for the
// same logical prompt are serialized with a transaction-scoped advisory
// lock; under read committed, concurrent demote-then-insert pairs would
// otherwise miss each other's uncommitted rows and both end up current.
func (r *Repo) Insert(ctx context.Context, p *GeneratedPrompt) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const lock = `select pg_advisory_xact_lock(hashtextextended($1, 0));`
	lockKey := p.ProjectPublicID + "/" + p.Kind + "/" + p.Tool
	if _, err := tx.Exec(ctx, lock, lockKey); err != nil {
		return fmt.Errorf("lock prompt line: %w", err)
	}

	const demote = `
update generated_prompts
set is_current = false
where project_public_id = $1 and kind = $2 and tool = $3 and is_current = true;
`
	if _, err := tx.Exec(ctx, demote, p.ProjectPublicID, p.Kind, p.Tool); err != nil {
		return fmt.Errorf("demote current: %w", err)
	}

	const insert = `
insert into generated_prompts
  (id, user_id, project_public_id, kind, tool, version, is_current, content, snippet_ids, confidence)
values
  ($1::uuid, $2::uuid, $3, $4, $5,
   coalesce((select max(version) from generated_prompts where project_public_id = $3 and kind = $4 and tool = $5), 0) + 1,
   true, $6, $7, $8)
returning version, created_at;
`
	err = tx.QueryRow(ctx, insert,
		p.ID, p.UserID, p.ProjectPublicID, p.Kind, p.Tool, p.Content, p.SnippetIDs, p.Confidence).
		Scan(&p.Version, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	p.IsCurrent = true

	return tx.Commit(ctx)
}

// SetRating records user feedback on a prompt the user owns.
func (r *Repo) SetRating(ctx context.Context, userID, promptID string, rating int) error {
	const q = `
update generated_prompts
set rating = $3
where id = $2::uuid and user_id = $1::uuid;
`
	ct, err := r.db.Exec(ctx, q, userID, promptID, rating)
	if err != nil {
		return fmt.Errorf("set rating: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrPromptNotFound
	}
	return nil
}

// Archive flags a prompt without deleting it.
func (r *Repo) Archive(ctx context.Context, userID, promptID string) error {
	const q = `
update generated_prompts
set archived = true
where id = $2::uuid and user_id = $1::uuid;
`
	ct, err := r.db.Exec(ctx, q, userID, promptID)
	if err != nil {
		return fmt.Errorf("archive prompt: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrPromptNotFound
	}
	return nil
}

// ListByProject returns the non-archived prompts for one project, newest
// first.
func (r *Repo) ListByProject(ctx context.Context, userID, projectPublicID string) ([]GeneratedPrompt, error) {
	const q = `
select id::text, user_id::text, project_public_id, kind, tool, version, is_current,
       content, snippet_ids, confidence, rating, archived, created_at
from generated_prompts
where user_id = $1::uuid and project_public_id = $2 and archived = false
order by created_at desc;
`
	rows, err := r.db.Query(ctx, q, userID, projectPublicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GeneratedPrompt, 0, 8)
	for rows.Next() {
		var p GeneratedPrompt
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProjectPublicID, &p.Kind, &p.Tool, &p.Version,
			&p.IsCurrent, &p.Content, &p.SnippetIDs, &p.Confidence, &p.Rating, &p.Archived, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Current returns the current version for one (project, kind, tool).
func (r *Repo) Current(ctx context.Context, userID, projectPublicID, kind, tool string) (*GeneratedPrompt, error) {
	const q = `
select id::text, user_id::text, project_public_id, kind, tool, version, is_current,
       content, snippet_ids, confidence, rating, archived, created_at
from generated_prompts
where user_id = $1::uuid and project_public_id = $2 and kind = $3 and tool = $4 and is_current = true;
`
	var p GeneratedPrompt
	err := r.db.QueryRow(ctx, q, userID, projectPublicID, kind, tool).
		Scan(&p.ID, &p.UserID, &p.ProjectPublicID, &p.Kind, &p.Tool, &p.Version,
			&p.IsCurrent, &p.Content, &p.SnippetIDs, &p.Confidence, &p.Rating, &p.Archived, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPromptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one auto-save snapshot. There is exactly one live snapshot per
// (user, project); every save overwrites the previous one.
type Session struct {
	UserID         string    `json:"user_id"`
	ProjectID      string    `json:"project_id"`
	State          State     `json:"state"`
	CurrentStage   Stage     `json:"current_stage"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Completed      bool      `json:"completed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type SessionRepo struct {
	db *pgxpool.Pool
}

func NewSessionRepo(db *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{db: db}
}

// Save upserts the snapshot. Last write wins; snapshots are never diffed or
// merged.
func (r *SessionRepo) Save(ctx context.Context, userID string, state State) error {
	snapshot, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	const q = `
insert into wizard_sessions (user_id, project_public_id, snapshot, current_stage, elapsed_seconds, completed, updated_at)
values ($1::uuid, $2, $3, $4, $5, $6, now())
on conflict (user_id, project_public_id) do update
set
  snapshot = excluded.snapshot,
  current_stage = excluded.current_stage,
  elapsed_seconds = excluded.elapsed_seconds,
  completed = excluded.completed,
  updated_at = now();
`
	_, err = r.db.Exec(ctx, q,
		userID, state.ProjectID, snapshot, int(state.CurrentStage), state.ElapsedSeconds, state.Completed)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Latest returns the most recently saved snapshot for the user, optionally
// scoped to one project. The snapshot is deserialized verbatim.
func (r *SessionRepo) Latest(ctx context.Context, userID, projectID string) (*Session, error) {
	const q = `
select user_id::text, project_public_id, snapshot, current_stage, elapsed_seconds, completed, updated_at
from wizard_sessions
where user_id = $1::uuid and ($2 = '' or project_public_id = $2)
order by updated_at desc
limit 1;
`
	var (
		s        Session
		snapshot []byte
		stage    int
	)
	err := r.db.QueryRow(ctx, q, userID, projectID).
		Scan(&s.UserID, &s.ProjectID, &snapshot, &stage, &s.ElapsedSeconds, &s.Completed, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if err := json.Unmarshal(snapshot, &s.State); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	s.CurrentStage = Stage(stage)
	return &s, nil
}

// PurgeCompletedBefore deletes completed snapshots that have not been touched
// since the cutoff. Run by the nightly maintenance job.
func (r *SessionRepo) PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
delete from wizard_sessions
where completed = true and updated_at < $1;
`
	ct, err := r.db.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return ct.RowsAffected(), nil
}

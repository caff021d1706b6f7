package mvp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildtrix/mvp-studio-backend/internal/mvp/domain"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Create inserts the project and its questionnaire in one transaction.
// The public id is regenerated on a unique violation, like any other
// crypto/rand short id.
func (r *Repo) Create(ctx context.Context, userID string, p *domain.Project, q *domain.Questionnaire) error {
	if p.Name == "" {
		return fmt.Errorf("name required")
	}
	if p.Status == "" {
		p.Status = domain.StatusYetToBuild
	}
	if p.CompletionStage == 0 {
		p.CompletionStage = 1
	}

	blueprint, screens, flow, export, err := marshalArtifacts(p)
	if err != nil {
		return err
	}

	for i := 0; i < 5; i++ {
		publicID, err := domain.NewPublicID("mvp")
		if err != nil {
			return err
		}

		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}

		const insertProject = `
insert into mvps
  (public_id, user_id, name, platforms, design_style, description, target_audience,
   generated_prompt, blueprint, screen_prompts, flow_doc, export_doc,
   status, completion_stage, from_studio)
values ($1, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
returning public_id, created_at, updated_at;
`
		err = tx.QueryRow(ctx, insertProject,
			publicID, userID, p.Name, p.Platforms, p.DesignStyle, p.Description, p.TargetAudience,
			p.GeneratedPrompt, blueprint, screens, flow, export,
			string(p.Status), p.CompletionStage, p.FromStudio).
			Scan(&p.PublicID, &p.CreatedAt, &p.UpdatedAt)

		if err != nil {
			_ = tx.Rollback(ctx)
			// unique violation on public_id → retry with a fresh id
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				continue
			}
			return err
		}

		if q != nil {
			const insertQ = `
insert into questionnaires (project_public_id, validated_with_users, discussed_with_others, motivation, updated_at)
values ($1, $2, $3, $4, now());
`
			if _, err := tx.Exec(ctx, insertQ, p.PublicID, q.ValidatedWithUsers, q.DiscussedWithOthers, q.Motivation); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("insert questionnaire: %w", err)
			}
			q.ProjectPublicID = p.PublicID
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to generate unique project id")
}

const projectColumns = `
public_id, name, platforms, design_style, description, coalesce(target_audience, ''),
coalesce(generated_prompt, ''), blueprint, screen_prompts, flow_doc, export_doc,
status, completion_stage, from_studio, created_at, updated_at`

func (r *Repo) Get(ctx context.Context, userID, publicID string) (*domain.Project, error) {
	q := `
select ` + projectColumns + `
from mvps
where user_id = $1::uuid and public_id = $2 and deleted_at is null;
`
	row := r.db.QueryRow(ctx, q, userID, publicID)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repo) List(ctx context.Context, userID string) ([]domain.Project, error) {
	q := `
select ` + projectColumns + `
from mvps
where user_id = $1::uuid and deleted_at is null
order by created_at desc;
`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateStatus sets the lifecycle status. Any valid value may follow any
// other; only membership in the enum is enforced.
func (r *Repo) UpdateStatus(ctx context.Context, userID, publicID string, status domain.Status) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}

	const q = `
update mvps
set status = $3, updated_at = now()
where user_id = $1::uuid and public_id = $2 and deleted_at is null;
`
	ct, err := r.db.Exec(ctx, q, userID, publicID, string(status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SoftDelete marks the project abandoned. Rows are never hard-deleted by
// user flows.
func (r *Repo) SoftDelete(ctx context.Context, userID, publicID string) error {
	const q = `
update mvps
set status = $3, deleted_at = now(), updated_at = now()
where user_id = $1::uuid and public_id = $2 and deleted_at is null;
`
	ct, err := r.db.Exec(ctx, q, userID, publicID, string(domain.StatusAbandoned))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// StageArtifacts carries the optional artifact updates for one stage save.
// Nil fields keep the stored value.
type StageArtifacts struct {
	GeneratedPrompt *string
	Blueprint       *domain.Blueprint
	ScreenPrompts   []domain.ScreenPrompt
	Flow            *domain.FlowDocument
	Export          *domain.ExportDocument
}

// SaveStage persists a stage's artifacts. completion_stage only ever grows:
// re-saving an earlier stage after a later one never lowers it.
func (r *Repo) SaveStage(ctx context.Context, userID, publicID string, stage int, a StageArtifacts) error {
	var blueprint, screens, flow, export []byte
	var err error
	if a.Blueprint != nil {
		if blueprint, err = json.Marshal(a.Blueprint); err != nil {
			return fmt.Errorf("marshal blueprint: %w", err)
		}
	}
	if a.ScreenPrompts != nil {
		if screens, err = json.Marshal(a.ScreenPrompts); err != nil {
			return fmt.Errorf("marshal screen prompts: %w", err)
		}
	}
	if a.Flow != nil {
		if flow, err = json.Marshal(a.Flow); err != nil {
			return fmt.Errorf("marshal flow: %w", err)
		}
	}
	if a.Export != nil {
		if export, err = json.Marshal(a.Export); err != nil {
			return fmt.Errorf("marshal export: %w", err)
		}
	}

	const q = `
update mvps
set
  generated_prompt = coalesce($4, generated_prompt),
  blueprint = coalesce($5::jsonb, blueprint),
  screen_prompts = coalesce($6::jsonb, screen_prompts),
  flow_doc = coalesce($7::jsonb, flow_doc),
  export_doc = coalesce($8::jsonb, export_doc),
  completion_stage = greatest(completion_stage, $3),
  updated_at = now()
where user_id = $1::uuid and public_id = $2 and deleted_at is null;
`
	ct, err := r.db.Exec(ctx, q, userID, publicID, stage,
		a.GeneratedPrompt, blueprint, screens, flow, export)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertQuestionnaire creates or replaces the one questionnaire row keyed on
// the project.
func (r *Repo) UpsertQuestionnaire(ctx context.Context, userID string, q *domain.Questionnaire) error {
	const stmt = `
insert into questionnaires (project_public_id, validated_with_users, discussed_with_others, motivation, updated_at)
select m.public_id, $3, $4, $5, now()
from mvps m
where m.user_id = $1::uuid and m.public_id = $2 and m.deleted_at is null
on conflict (project_public_id) do update
set
  validated_with_users = excluded.validated_with_users,
  discussed_with_others = excluded.discussed_with_others,
  motivation = excluded.motivation,
  updated_at = now();
`
	ct, err := r.db.Exec(ctx, stmt, userID, q.ProjectPublicID,
		q.ValidatedWithUsers, q.DiscussedWithOthers, q.Motivation)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountCreatedSince implements the durable side of the quota reconciler:
// rows actually created in the trailing window, with the oldest creation
// time for the reset computation. Soft-deleted rows still count.
func (r *Repo) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, time.Time, error) {
	const q = `
select count(*), coalesce(min(created_at), 'epoch'::timestamptz)
from mvps
where user_id = $1::uuid and created_at >= $2;
`
	var (
		count  int
		oldest time.Time
	)
	if err := r.db.QueryRow(ctx, q, userID, since).Scan(&count, &oldest); err != nil {
		return 0, time.Time{}, fmt.Errorf("count created: %w", err)
	}
	if count == 0 {
		oldest = time.Time{}
	}
	return count, oldest, nil
}

// ActiveUserIDsSince lists users who created projects in the window. Used by
// the nightly drift reconcile.
func (r *Repo) ActiveUserIDsSince(ctx context.Context, since time.Time) ([]string, error) {
	const q = `
select distinct user_id::text
from mvps
where created_at >= $1;
`
	rows, err := r.db.Query(ctx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0, 32)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func marshalArtifacts(p *domain.Project) (blueprint, screens, flow, export []byte, err error) {
	if p.Blueprint != nil {
		if blueprint, err = json.Marshal(p.Blueprint); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal blueprint: %w", err)
		}
	}
	if p.ScreenPrompts != nil {
		if screens, err = json.Marshal(p.ScreenPrompts); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal screen prompts: %w", err)
		}
	}
	if p.Flow != nil {
		if flow, err = json.Marshal(p.Flow); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal flow: %w", err)
		}
	}
	if p.Export != nil {
		if export, err = json.Marshal(p.Export); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal export: %w", err)
		}
	}
	return blueprint, screens, flow, export, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p      domain.Project
		status string

		blueprint, screens, flow, export []byte
	)
	err := row.Scan(&p.PublicID, &p.Name, &p.Platforms, &p.DesignStyle, &p.Description, &p.TargetAudience,
		&p.GeneratedPrompt, &blueprint, &screens, &flow, &export,
		&status, &p.CompletionStage, &p.FromStudio, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)

	if len(blueprint) > 0 {
		p.Blueprint = &domain.Blueprint{}
		if err := json.Unmarshal(blueprint, p.Blueprint); err != nil {
			return nil, fmt.Errorf("unmarshal blueprint: %w", err)
		}
	}
	if len(screens) > 0 {
		if err := json.Unmarshal(screens, &p.ScreenPrompts); err != nil {
			return nil, fmt.Errorf("unmarshal screen prompts: %w", err)
		}
	}
	if len(flow) > 0 {
		p.Flow = &domain.FlowDocument{}
		if err := json.Unmarshal(flow, p.Flow); err != nil {
			return nil, fmt.Errorf("unmarshal flow: %w", err)
		}
	}
	if len(export) > 0 {
		p.Export = &domain.ExportDocument{}
		if err := json.Unmarshal(export, p.Export); err != nil {
			return nil, fmt.Errorf("unmarshal export: %w", err)
		}
	}
	return &p, nil
}

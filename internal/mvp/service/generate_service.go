package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/buildtrix/mvp-studio-backend/internal/genlog"
	"github.com/buildtrix/mvp-studio-backend/internal/logging"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp/domain"
	"github.com/buildtrix/mvp-studio-backend/internal/prompt"
	"github.com/buildtrix/mvp-studio-backend/internal/quota"
	"github.com/buildtrix/mvp-studio-backend/internal/wizard"
)

// ErrStageNotReady is returned when a stage generation is requested before
// its upstream artifacts exist.
var ErrStageNotReady = errors.New("stage prerequisites missing")

// ProjectStore is the durable project persistence the service needs.
type ProjectStore interface {
	Create(ctx context.Context, userID string, p *domain.Project, q *domain.Questionnaire) error
	Get(ctx context.Context, userID, publicID string) (*domain.Project, error)
	SaveStage(ctx context.Context, userID, publicID string, stage int, a mvp.StageArtifacts) error
	UpsertQuestionnaire(ctx context.Context, userID string, q *domain.Questionnaire) error
}

// PromptStore archives generated prompts. Best-effort from this service.
type PromptStore interface {
	Insert(ctx context.Context, p *prompt.GeneratedPrompt) error
}

// GenerationLog records generation attempts. Best-effort.
type GenerationLog interface {
	Insert(e *genlog.Entry) error
}

// QuotaGate is the consume side of the quota reconciler.
type QuotaGate interface {
	CheckStatus(ctx context.Context, userID string) quota.Status
	ConsumeReconciled(ctx context.Context, userID string) (quota.Status, error)
}

// ArtifactGenerator is the upstream LLM. Every call is one attempt; any error
// means the caller substitutes deterministic fallback content.
type ArtifactGenerator interface {
	GenerateBlueprint(ctx context.Context, idea domain.AppIdea, answers domain.ValidationAnswers) (*domain.Blueprint, error)
	GenerateScreenPrompts(ctx context.Context, bp domain.Blueprint) ([]domain.ScreenPrompt, error)
}

// SessionStore persists wizard snapshots.
type SessionStore interface {
	Save(ctx context.Context, userID string, state wizard.State) error
}

// QuotaExceededError carries the durable-store-derived numbers the handler
// must surface with the 429.
type QuotaExceededError struct {
	Status quota.Status
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("generation quota exceeded: %d of %d used", e.Status.Used, e.Status.Limit)
}

type GenerateService struct {
	projects ProjectStore
	prompts  PromptStore
	logs     GenerationLog
	quota    QuotaGate
	llm      ArtifactGenerator
	sessions SessionStore
}

func NewGenerateService(projects ProjectStore, prompts PromptStore, logs GenerationLog, gate QuotaGate, gen ArtifactGenerator, sessions SessionStore) *GenerateService {
	return &GenerateService{
		projects: projects,
		prompts:  prompts,
		logs:     logs,
		quota:    gate,
		llm:      gen,
		sessions: sessions,
	}
}

// Result is what the generate endpoint returns to the front end.
type Result struct {
	ProjectID    string
	Prompt       string
	FallbackUsed bool
	Report       prompt.Report
	Quota        quota.Status
}

// Generate runs the single-shot generation flow: consume quota, call the
// LLM (falling back to deterministic content on failure), persist the
// project and questionnaire transactionally, then archive the prompt and
// log the attempt best-effort.
func (s *GenerateService) Generate(ctx context.Context, userID string, idea domain.AppIdea, answers domain.ValidationAnswers, tool prompt.Tool) (*Result, error) {
	logger := logging.New(ctx)

	if err := validateIdea(idea); err != nil {
		return nil, err
	}

	st, err := s.quota.ConsumeReconciled(ctx, userID)
	if err != nil || !st.Allowed {
		if err != nil {
			logger.Error("quota_consume", err)
		}
		// The counter is not trusted at this point; report the
		// durable-store numbers.
		return nil, &QuotaExceededError{Status: s.quota.CheckStatus(ctx, userID)}
	}

	fallbackUsed := false
	bp, err := s.llm.GenerateBlueprint(ctx, idea, answers)
	if err != nil {
		logger.Warnf("generate_blueprint", "llm failed, using fallback: %v", err)
		bp = prompt.FallbackBlueprint(idea)
		fallbackUsed = true
	}

	snippets := prompt.Enrich(idea)

	text := prompt.Assemble(prompt.Input{
		Idea:       idea,
		Validation: &answers,
		Blueprint:  bp,
		Snippets:   snippets,
	}, tool, wizard.StageIdea)
	report := prompt.Validate(text)

	project := &domain.Project{
		Name:            idea.AppName,
		Platforms:       idea.Platforms,
		DesignStyle:     idea.DesignStyle,
		Description:     idea.Description,
		TargetAudience:  idea.TargetAudience,
		GeneratedPrompt: text,
		Blueprint:       bp,
		Status:          domain.StatusYetToBuild,
		CompletionStage: 1,
		FromStudio:      false,
	}
	questionnaire := &domain.Questionnaire{
		ValidatedWithUsers:  answers.ValidatedWithUsers,
		DiscussedWithOthers: answers.DiscussedWithOthers,
		Motivation:          answers.Motivation,
	}

	if err := s.projects.Create(ctx, userID, project, questionnaire); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	s.archivePrompt(ctx, logger, userID, project.PublicID, "skeleton", tool, text, snippets, report)
	s.logAttempt(logger, userID, project.PublicID, int(wizard.StageIdea), tool, fallbackUsed, report)

	return &Result{
		ProjectID:    project.PublicID,
		Prompt:       text,
		FallbackUsed: fallbackUsed,
		Report:       report,
		Quota:        st,
	}, nil
}

// SaveSnapshot persists a wizard auto-save. The first save for a new studio
// run consumes quota and creates the project row; subsequent saves update
// artifacts without touching the quota. completion_stage never decreases.
func (s *GenerateService) SaveSnapshot(ctx context.Context, userID string, state wizard.State) (wizard.State, bool, error) {
	logger := logging.New(ctx)

	created := false
	if state.ProjectID == "" {
		if state.Idea == nil {
			return state, false, fmt.Errorf("snapshot has no idea data")
		}

		st, err := s.quota.ConsumeReconciled(ctx, userID)
		if err != nil || !st.Allowed {
			if err != nil {
				logger.Error("quota_consume", err)
			}
			return state, false, &QuotaExceededError{Status: s.quota.CheckStatus(ctx, userID)}
		}

		project := &domain.Project{
			Name:            state.Idea.AppName,
			Platforms:       state.Idea.Platforms,
			DesignStyle:     state.Idea.DesignStyle,
			Description:     state.Idea.Description,
			TargetAudience:  state.Idea.TargetAudience,
			Status:          domain.StatusYetToBuild,
			CompletionStage: int(state.CurrentStage),
			FromStudio:      true,
		}

		var questionnaire *domain.Questionnaire
		if state.Validation != nil {
			questionnaire = &domain.Questionnaire{
				ValidatedWithUsers:  state.Validation.ValidatedWithUsers,
				DiscussedWithOthers: state.Validation.DiscussedWithOthers,
				Motivation:          state.Validation.Motivation,
			}
		}

		if err := s.projects.Create(ctx, userID, project, questionnaire); err != nil {
			return state, false, fmt.Errorf("create project: %w", err)
		}

		next, err := wizard.Reduce(state, wizard.AttachProject{ProjectID: project.PublicID})
		if err != nil {
			return state, false, err
		}
		state = next
		created = true
	} else {
		artifacts := mvp.StageArtifacts{
			Blueprint:     state.Blueprint,
			ScreenPrompts: state.ScreenPrompts,
			Flow:          state.Flow,
			Export:        state.Export,
		}
		if state.Export != nil && state.Export.Content != "" {
			artifacts.GeneratedPrompt = &state.Export.Content
		}

		stage := int(state.CurrentStage)
		if state.Completed {
			stage = int(wizard.StageExport)
		}

		if err := s.projects.SaveStage(ctx, userID, state.ProjectID, stage, artifacts); err != nil {
			return state, false, fmt.Errorf("save stage: %w", err)
		}

		// Questionnaire updates ride along best-effort.
		if state.Validation != nil {
			q := &domain.Questionnaire{
				ProjectPublicID:     state.ProjectID,
				ValidatedWithUsers:  state.Validation.ValidatedWithUsers,
				DiscussedWithOthers: state.Validation.DiscussedWithOthers,
				Motivation:          state.Validation.Motivation,
			}
			if err := s.projects.UpsertQuestionnaire(ctx, userID, q); err != nil {
				logger.Warnf("upsert_questionnaire", "continuing without questionnaire update: %v", err)
			}
		}
	}

	if err := s.sessions.Save(ctx, userID, state); err != nil {
		return state, created, fmt.Errorf("save session: %w", err)
	}

	// A finished export is archived as a first-class prompt row.
	if state.Completed && state.Export != nil && state.Export.Content != "" {
		report := prompt.Validate(state.Export.Content)
		s.archivePrompt(ctx, logger, userID, state.ProjectID, "export", prompt.Tool(state.Export.Tool), state.Export.Content, nil, report)
		s.logAttempt(logger, userID, state.ProjectID, int(wizard.StageExport), prompt.Tool(state.Export.Tool), false, report)
	}

	return state, created, nil
}

// StageBlueprintResult is the outcome of a stage-3 regeneration.
type StageBlueprintResult struct {
	Blueprint    *domain.Blueprint
	FallbackUsed bool
}

// StageScreenPromptsResult is the outcome of a stage-4 regeneration.
type StageScreenPromptsResult struct {
	ScreenPrompts []domain.ScreenPrompt
	FallbackUsed  bool
}

// GenerateStageBlueprint produces the stage-3 blueprint for an existing
// project: one LLM attempt with the deterministic fallback on failure. The
// blueprint is persisted, the refreshed skeleton prompt is archived as a new
// version, and the attempt is logged. Quota is not consumed; only project
// creation is metered.
func (s *GenerateService) GenerateStageBlueprint(ctx context.Context, userID, publicID string, answers domain.ValidationAnswers, tool prompt.Tool) (*StageBlueprintResult, error) {
	logger := logging.New(ctx)

	project, err := s.projects.Get(ctx, userID, publicID)
	if err != nil {
		return nil, err
	}
	idea := ideaFromProject(project)

	fallbackUsed := false
	bp, err := s.llm.GenerateBlueprint(ctx, idea, answers)
	if err != nil {
		logger.Warnf("generate_blueprint", "llm failed, using fallback: %v", err)
		bp = prompt.FallbackBlueprint(idea)
		fallbackUsed = true
	}

	if err := s.projects.SaveStage(ctx, userID, publicID, int(wizard.StageBlueprint), mvp.StageArtifacts{Blueprint: bp}); err != nil {
		return nil, fmt.Errorf("save blueprint: %w", err)
	}

	snippets := prompt.Enrich(idea)
	text := prompt.Assemble(prompt.Input{
		Idea:       idea,
		Validation: &answers,
		Blueprint:  bp,
		Snippets:   snippets,
	}, tool, wizard.StageIdea)
	report := prompt.Validate(text)

	s.archivePrompt(ctx, logger, userID, publicID, "skeleton", tool, text, snippets, report)
	s.logAttempt(logger, userID, publicID, int(wizard.StageBlueprint), tool, fallbackUsed, report)

	return &StageBlueprintResult{Blueprint: bp, FallbackUsed: fallbackUsed}, nil
}

// GenerateStageScreenPrompts produces the stage-4 per-screen prompts from the
// stored blueprint, with the same single-attempt-then-fallback contract.
func (s *GenerateService) GenerateStageScreenPrompts(ctx context.Context, userID, publicID string, tool prompt.Tool) (*StageScreenPromptsResult, error) {
	logger := logging.New(ctx)

	project, err := s.projects.Get(ctx, userID, publicID)
	if err != nil {
		return nil, err
	}
	if project.Blueprint == nil {
		return nil, ErrStageNotReady
	}

	fallbackUsed := false
	prompts, err := s.llm.GenerateScreenPrompts(ctx, *project.Blueprint)
	if err != nil {
		logger.Warnf("generate_screen_prompts", "llm failed, using fallback: %v", err)
		prompts = prompt.FallbackScreenPrompts(project.Blueprint)
		fallbackUsed = true
	}

	if err := s.projects.SaveStage(ctx, userID, publicID, int(wizard.StageScreenPrompts), mvp.StageArtifacts{ScreenPrompts: prompts}); err != nil {
		return nil, fmt.Errorf("save screen prompts: %w", err)
	}

	text := prompt.Assemble(prompt.Input{
		Idea:          ideaFromProject(project),
		Blueprint:     project.Blueprint,
		ScreenPrompts: prompts,
	}, tool, wizard.StageScreenPrompts)
	report := prompt.Validate(text)

	s.archivePrompt(ctx, logger, userID, publicID, "screen", tool, text, nil, report)
	s.logAttempt(logger, userID, publicID, int(wizard.StageScreenPrompts), tool, fallbackUsed, report)

	return &StageScreenPromptsResult{ScreenPrompts: prompts, FallbackUsed: fallbackUsed}, nil
}

// GenerateStageFlow derives the stage-5 navigation flow from the stored
// blueprint and screen prompts. Flow generation is fully deterministic.
func (s *GenerateService) GenerateStageFlow(ctx context.Context, userID, publicID string) (*domain.FlowDocument, error) {
	project, err := s.projects.Get(ctx, userID, publicID)
	if err != nil {
		return nil, err
	}
	if project.Blueprint == nil || len(project.ScreenPrompts) == 0 {
		return nil, ErrStageNotReady
	}

	flow := prompt.FallbackFlow(project.Blueprint)
	if err := s.projects.SaveStage(ctx, userID, publicID, int(wizard.StageFlow), mvp.StageArtifacts{Flow: flow}); err != nil {
		return nil, fmt.Errorf("save flow: %w", err)
	}
	return flow, nil
}

func ideaFromProject(p *domain.Project) domain.AppIdea {
	return domain.AppIdea{
		AppName:        p.Name,
		Platforms:      p.Platforms,
		DesignStyle:    p.DesignStyle,
		Description:    p.Description,
		TargetAudience: p.TargetAudience,
	}
}

func (s *GenerateService) archivePrompt(ctx context.Context, logger *logging.Logger, userID, projectID, kind string, tool prompt.Tool, text string, snippets []prompt.SnippetResult, report prompt.Report) {
	ids := make([]string, 0, len(snippets))
	for _, sn := range snippets {
		ids = append(ids, sn.ID)
	}

	row := &prompt.GeneratedPrompt{
		UserID:          userID,
		ProjectPublicID: projectID,
		Kind:            kind,
		Tool:            string(tool),
		Content:         text,
		SnippetIDs:      ids,
		Confidence:      float64(report.Score) / 100,
	}
	if err := s.prompts.Insert(ctx, row); err != nil {
		// continue even if this fails
		logger.Warnf("archive_prompt", "prompt row not saved: %v", err)
	}
}

func (s *GenerateService) logAttempt(logger *logging.Logger, userID, projectID string, stage int, tool prompt.Tool, fallbackUsed bool, report prompt.Report) {
	err := s.logs.Insert(&genlog.Entry{
		UserID:          userID,
		ProjectPublicID: projectID,
		Stage:           stage,
		Tool:            string(tool),
		Success:         true,
		FallbackUsed:    fallbackUsed,
		Confidence:      float64(report.Score) / 100,
	})
	if err != nil {
		// continue even if this fails
		logger.Warnf("generation_log", "log row not saved: %v", err)
	}
}

func validateIdea(idea domain.AppIdea) error {
	if strings.TrimSpace(idea.AppName) == "" {
		return fmt.Errorf("appName is required")
	}
	if strings.TrimSpace(idea.Description) == "" {
		return fmt.Errorf("ideaDescription is required")
	}
	if len(idea.Platforms) == 0 {
		return fmt.Errorf("at least one platform is required")
	}
	return nil
}

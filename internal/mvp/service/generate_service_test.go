package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtrix/mvp-studio-backend/internal/genlog"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp/domain"
	"github.com/buildtrix/mvp-studio-backend/internal/prompt"
	"github.com/buildtrix/mvp-studio-backend/internal/quota"
	"github.com/buildtrix/mvp-studio-backend/internal/wizard"
)

type stubProjects struct {
	created       []*domain.Project
	createErr     error
	project       *domain.Project
	getErr        error
	savedStages   []int
	saveStageErr  error
	questionnaire *domain.Questionnaire
}

func (s *stubProjects) Create(ctx context.Context, userID string, p *domain.Project, q *domain.Questionnaire) error {
	if s.createErr != nil {
		return s.createErr
	}
	p.PublicID = "mvp-12345-6789"
	s.created = append(s.created, p)
	s.questionnaire = q
	return nil
}

func (s *stubProjects) Get(ctx context.Context, userID, publicID string) (*domain.Project, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.project, nil
}

func (s *stubProjects) SaveStage(ctx context.Context, userID, publicID string, stage int, a mvp.StageArtifacts) error {
	if s.saveStageErr != nil {
		return s.saveStageErr
	}
	s.savedStages = append(s.savedStages, stage)
	return nil
}

func (s *stubProjects) UpsertQuestionnaire(ctx context.Context, userID string, q *domain.Questionnaire) error {
	s.questionnaire = q
	return nil
}

type stubPrompts struct {
	rows []*prompt.GeneratedPrompt
	err  error
}

func (s *stubPrompts) Insert(ctx context.Context, p *prompt.GeneratedPrompt) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, p)
	return nil
}

type stubLogs struct {
	entries []*genlog.Entry
	err     error
}

func (s *stubLogs) Insert(e *genlog.Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

type stubQuota struct {
	consume  quota.Status
	check    quota.Status
	err      error
	consumed int
}

func (s *stubQuota) CheckStatus(ctx context.Context, userID string) quota.Status { return s.check }

func (s *stubQuota) ConsumeReconciled(ctx context.Context, userID string) (quota.Status, error) {
	s.consumed++
	return s.consume, s.err
}

type stubLLM struct {
	bp        *domain.Blueprint
	err       error
	screens   []domain.ScreenPrompt
	screenErr error
}

func (s *stubLLM) GenerateBlueprint(ctx context.Context, idea domain.AppIdea, answers domain.ValidationAnswers) (*domain.Blueprint, error) {
	return s.bp, s.err
}

func (s *stubLLM) GenerateScreenPrompts(ctx context.Context, bp domain.Blueprint) ([]domain.ScreenPrompt, error) {
	return s.screens, s.screenErr
}

type stubSessions struct {
	saved []wizard.State
	err   error
}

func (s *stubSessions) Save(ctx context.Context, userID string, state wizard.State) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, state)
	return nil
}

type fixture struct {
	projects *stubProjects
	prompts  *stubPrompts
	logs     *stubLogs
	quota    *stubQuota
	llm      *stubLLM
	sessions *stubSessions
	svc      *GenerateService
}

func newFixture() *fixture {
	f := &fixture{
		projects: &stubProjects{},
		prompts:  &stubPrompts{},
		logs:     &stubLogs{},
		quota: &stubQuota{
			consume: quota.Status{Allowed: true, Limit: 3, Used: 1, Remaining: 2},
			check:   quota.Status{Allowed: false, Limit: 3, Used: 3, Remaining: 0},
		},
		llm: &stubLLM{bp: &domain.Blueprint{
			SchemaVersion: 1,
			AppName:       "TaskMaster Pro",
			Overview:      "Task management with reminders",
			Screens:       []domain.Screen{{Name: "Home", Purpose: "list"}},
		}},
		sessions: &stubSessions{},
	}
	f.svc = NewGenerateService(f.projects, f.prompts, f.logs, f.quota, f.llm, f.sessions)
	return f
}

func validIdea() domain.AppIdea {
	return domain.AppIdea{
		AppName:     "TaskMaster Pro",
		Platforms:   []string{"web"},
		DesignStyle: "minimal",
		Description: "A productivity app for managing daily tasks",
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	answers := domain.ValidationAnswers{ValidatedWithUsers: true}

	t.Run("successful generation persists and returns the prompt", func(t *testing.T) {
		f := newFixture()

		res, err := f.svc.Generate(ctx, "user-1", validIdea(), answers, prompt.ToolCursor)
		require.NoError(t, err)

		assert.Equal(t, "mvp-12345-6789", res.ProjectID)
		assert.False(t, res.FallbackUsed)
		assert.Contains(t, res.Prompt, "TaskMaster Pro")
		assert.Equal(t, 2, res.Quota.Remaining)

		require.Len(t, f.projects.created, 1)
		created := f.projects.created[0]
		assert.Equal(t, domain.StatusYetToBuild, created.Status)
		assert.Equal(t, 1, created.CompletionStage)
		assert.False(t, created.FromStudio)
		require.NotNil(t, f.projects.questionnaire)
		assert.True(t, f.projects.questionnaire.ValidatedWithUsers)

		require.Len(t, f.prompts.rows, 1)
		assert.Equal(t, "skeleton", f.prompts.rows[0].Kind)
		require.Len(t, f.logs.entries, 1)
		assert.False(t, f.logs.entries[0].FallbackUsed)
	})

	t.Run("invalid idea is rejected before quota is touched", func(t *testing.T) {
		f := newFixture()

		_, err := f.svc.Generate(ctx, "user-1", domain.AppIdea{AppName: "X"}, answers, prompt.ToolCursor)
		assert.Error(t, err)
		assert.Equal(t, 0, f.quota.consumed)
	})

	t.Run("quota denial surfaces durable numbers", func(t *testing.T) {
		f := newFixture()
		f.quota.consume = quota.Status{Allowed: false, Limit: 3, Used: 7, Remaining: 0}

		_, err := f.svc.Generate(ctx, "user-1", validIdea(), answers, prompt.ToolCursor)

		var qe *QuotaExceededError
		require.ErrorAs(t, err, &qe)
		// The 429 numbers come from CheckStatus, not the inflated counter.
		assert.Equal(t, 3, qe.Status.Used)
		assert.Empty(t, f.projects.created)
	})

	t.Run("quota store failure denies generation", func(t *testing.T) {
		f := newFixture()
		f.quota.err = errors.New("redis down")
		f.quota.consume = quota.Status{Allowed: false}

		_, err := f.svc.Generate(ctx, "user-1", validIdea(), answers, prompt.ToolCursor)

		var qe *QuotaExceededError
		assert.ErrorAs(t, err, &qe)
	})

	t.Run("llm failure substitutes the fallback blueprint", func(t *testing.T) {
		f := newFixture()
		f.llm.bp = nil
		f.llm.err = errors.New("timeout")

		res, err := f.svc.Generate(ctx, "user-1", validIdea(), answers, prompt.ToolCursor)
		require.NoError(t, err)

		assert.True(t, res.FallbackUsed)
		assert.Contains(t, res.Prompt, "TaskMaster Pro")
		require.Len(t, f.projects.created, 1)
		assert.NotNil(t, f.projects.created[0].Blueprint)
		require.Len(t, f.logs.entries, 1)
		assert.True(t, f.logs.entries[0].FallbackUsed)
	})

	t.Run("create failure fails the request", func(t *testing.T) {
		f := newFixture()
		f.projects.createErr = errors.New("pg down")

		_, err := f.svc.Generate(ctx, "user-1", validIdea(), answers, prompt.ToolCursor)
		assert.Error(t, err)
		assert.Empty(t, f.prompts.rows)
	})

	t.Run("archive and log failures are swallowed", func(t *testing.T) {
		f := newFixture()
		f.prompts.err = errors.New("pg down")
		f.logs.err = errors.New("pg down")

		res, err := f.svc.Generate(ctx, "user-1", validIdea(), answers, prompt.ToolCursor)
		require.NoError(t, err)
		assert.NotEmpty(t, res.Prompt)
	})
}

func TestSaveSnapshot(t *testing.T) {
	ctx := context.Background()

	ideaState := func() wizard.State {
		s := wizard.NewState()
		idea := validIdea()
		s, err := wizard.Reduce(s, wizard.SetIdea{Idea: idea})
		if err != nil {
			panic(err)
		}
		return s
	}

	t.Run("first save consumes quota and creates the project", func(t *testing.T) {
		f := newFixture()

		saved, created, err := f.svc.SaveSnapshot(ctx, "user-1", ideaState())
		require.NoError(t, err)

		assert.True(t, created)
		assert.Equal(t, "mvp-12345-6789", saved.ProjectID)
		assert.Equal(t, 1, f.quota.consumed)
		require.Len(t, f.projects.created, 1)
		assert.True(t, f.projects.created[0].FromStudio)
		require.Len(t, f.sessions.saved, 1)
		assert.Equal(t, "mvp-12345-6789", f.sessions.saved[0].ProjectID)
	})

	t.Run("first save without idea data is rejected", func(t *testing.T) {
		f := newFixture()

		_, _, err := f.svc.SaveSnapshot(ctx, "user-1", wizard.NewState())
		assert.Error(t, err)
		assert.Equal(t, 0, f.quota.consumed)
	})

	t.Run("first save over quota is denied", func(t *testing.T) {
		f := newFixture()
		f.quota.consume = quota.Status{Allowed: false, Limit: 3, Used: 3}

		_, created, err := f.svc.SaveSnapshot(ctx, "user-1", ideaState())

		var qe *QuotaExceededError
		require.ErrorAs(t, err, &qe)
		assert.False(t, created)
		assert.Empty(t, f.sessions.saved)
	})

	t.Run("subsequent saves update artifacts without quota", func(t *testing.T) {
		f := newFixture()

		state := ideaState()
		state.ProjectID = "mvp-11111-2222"
		state.CurrentStage = wizard.StageBlueprint
		state.Blueprint = f.llm.bp

		saved, created, err := f.svc.SaveSnapshot(ctx, "user-1", state)
		require.NoError(t, err)

		assert.False(t, created)
		assert.Equal(t, "mvp-11111-2222", saved.ProjectID)
		assert.Equal(t, 0, f.quota.consumed)
		assert.Equal(t, []int{int(wizard.StageBlueprint)}, f.projects.savedStages)
	})

	t.Run("completed export archives a prompt row", func(t *testing.T) {
		f := newFixture()

		state := ideaState()
		state.ProjectID = "mvp-11111-2222"
		state.Completed = true
		state.Export = &domain.ExportDocument{
			SchemaVersion: 1,
			Tool:          "cursor",
			Content:       "## Overview\nFull export content for the app.",
		}

		_, _, err := f.svc.SaveSnapshot(ctx, "user-1", state)
		require.NoError(t, err)

		assert.Equal(t, []int{int(wizard.StageExport)}, f.projects.savedStages)
		require.Len(t, f.prompts.rows, 1)
		assert.Equal(t, "export", f.prompts.rows[0].Kind)
		assert.Equal(t, "cursor", f.prompts.rows[0].Tool)
		require.Len(t, f.logs.entries, 1)
	})

	t.Run("session save failure fails the call", func(t *testing.T) {
		f := newFixture()
		f.sessions.err = errors.New("pg down")

		_, _, err := f.svc.SaveSnapshot(ctx, "user-1", ideaState())
		assert.Error(t, err)
	})
}

func storedProject() *domain.Project {
	return &domain.Project{
		PublicID:    "mvp-12345-6789",
		Name:        "TaskMaster Pro",
		Platforms:   []string{"web"},
		DesignStyle: "minimal",
		Description: "A productivity app for managing daily tasks",
		Status:      domain.StatusYetToBuild,
	}
}

func TestGenerateStageBlueprint(t *testing.T) {
	ctx := context.Background()
	answers := domain.ValidationAnswers{ValidatedWithUsers: true}

	t.Run("persists the blueprint and archives a refreshed prompt", func(t *testing.T) {
		f := newFixture()
		f.projects.project = storedProject()

		res, err := f.svc.GenerateStageBlueprint(ctx, "user-1", "mvp-12345-6789", answers, prompt.ToolCursor)
		require.NoError(t, err)

		assert.False(t, res.FallbackUsed)
		assert.Equal(t, "TaskMaster Pro", res.Blueprint.AppName)
		assert.Equal(t, []int{int(wizard.StageBlueprint)}, f.projects.savedStages)
		require.Len(t, f.prompts.rows, 1)
		assert.Equal(t, "skeleton", f.prompts.rows[0].Kind)
		require.Len(t, f.logs.entries, 1)
		assert.Equal(t, int(wizard.StageBlueprint), f.logs.entries[0].Stage)
		// Stage regeneration is free; only project creation is metered.
		assert.Equal(t, 0, f.quota.consumed)
	})

	t.Run("llm failure substitutes the fallback blueprint", func(t *testing.T) {
		f := newFixture()
		f.projects.project = storedProject()
		f.llm.bp = nil
		f.llm.err = errors.New("timeout")

		res, err := f.svc.GenerateStageBlueprint(ctx, "user-1", "mvp-12345-6789", answers, prompt.ToolCursor)
		require.NoError(t, err)

		assert.True(t, res.FallbackUsed)
		require.NotNil(t, res.Blueprint)
		assert.Equal(t, "TaskMaster Pro", res.Blueprint.AppName)
		require.Len(t, f.logs.entries, 1)
		assert.True(t, f.logs.entries[0].FallbackUsed)
	})

	t.Run("unknown project surfaces the repo error", func(t *testing.T) {
		f := newFixture()
		f.projects.getErr = domain.ErrNotFound

		_, err := f.svc.GenerateStageBlueprint(ctx, "user-1", "mvp-00000-0000", answers, prompt.ToolCursor)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestGenerateStageScreenPrompts(t *testing.T) {
	ctx := context.Background()

	withBlueprint := func() *domain.Project {
		p := storedProject()
		p.Blueprint = &domain.Blueprint{
			SchemaVersion: 1,
			AppName:       "TaskMaster Pro",
			Screens: []domain.Screen{
				{Name: "Home", Purpose: "list"},
				{Name: "Task detail", Purpose: "edit"},
			},
		}
		return p
	}

	t.Run("returns per-screen prompts and persists them", func(t *testing.T) {
		f := newFixture()
		f.projects.project = withBlueprint()
		f.llm.screens = []domain.ScreenPrompt{
			{SchemaVersion: 1, ScreenName: "Home", Prompt: "Build the Home screen."},
		}

		res, err := f.svc.GenerateStageScreenPrompts(ctx, "user-1", "mvp-12345-6789", prompt.ToolBolt)
		require.NoError(t, err)

		assert.False(t, res.FallbackUsed)
		require.Len(t, res.ScreenPrompts, 1)
		assert.Equal(t, []int{int(wizard.StageScreenPrompts)}, f.projects.savedStages)
		require.Len(t, f.prompts.rows, 1)
		assert.Equal(t, "screen", f.prompts.rows[0].Kind)
	})

	t.Run("llm failure falls back to one prompt per blueprint screen", func(t *testing.T) {
		f := newFixture()
		f.projects.project = withBlueprint()
		f.llm.screenErr = errors.New("timeout")

		res, err := f.svc.GenerateStageScreenPrompts(ctx, "user-1", "mvp-12345-6789", prompt.ToolBolt)
		require.NoError(t, err)

		assert.True(t, res.FallbackUsed)
		require.Len(t, res.ScreenPrompts, 2)
		assert.Equal(t, "Home", res.ScreenPrompts[0].ScreenName)
	})

	t.Run("missing blueprint is rejected", func(t *testing.T) {
		f := newFixture()
		f.projects.project = storedProject()

		_, err := f.svc.GenerateStageScreenPrompts(ctx, "user-1", "mvp-12345-6789", prompt.ToolBolt)
		assert.ErrorIs(t, err, ErrStageNotReady)
		assert.Empty(t, f.projects.savedStages)
	})
}

func TestGenerateStageFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("derives and persists the flow from stored artifacts", func(t *testing.T) {
		f := newFixture()
		p := storedProject()
		p.Blueprint = &domain.Blueprint{
			SchemaVersion: 1,
			AppName:       "TaskMaster Pro",
			Screens:       []domain.Screen{{Name: "Home"}, {Name: "Task detail"}},
		}
		p.ScreenPrompts = []domain.ScreenPrompt{{ScreenName: "Home", Prompt: "p"}}
		f.projects.project = p

		flow, err := f.svc.GenerateStageFlow(ctx, "user-1", "mvp-12345-6789")
		require.NoError(t, err)

		require.NotNil(t, flow)
		assert.NotEmpty(t, flow.Steps)
		assert.Equal(t, []int{int(wizard.StageFlow)}, f.projects.savedStages)
	})

	t.Run("missing upstream artifacts are rejected", func(t *testing.T) {
		f := newFixture()
		p := storedProject()
		p.Blueprint = &domain.Blueprint{SchemaVersion: 1, AppName: "TaskMaster Pro"}
		f.projects.project = p

		_, err := f.svc.GenerateStageFlow(ctx, "user-1", "mvp-12345-6789")
		assert.ErrorIs(t, err, ErrStageNotReady)
	})
}

package wizard

import (
	"github.com/buildtrix/mvp-studio-backend/internal/mvp/domain"
)

// Stage is one of the six sequential studio steps.
type Stage int

const (
	StageIdea Stage = iota + 1
	StageValidation
	StageBlueprint
	StageScreenPrompts
	StageFlow
	StageExport

	FirstStage = StageIdea
	LastStage  = StageExport
)

func (s Stage) Valid() bool {
	return s >= FirstStage && s <= LastStage
}

func (s Stage) String() string {
	switch s {
	case StageIdea:
		return "idea"
	case StageValidation:
		return "validation"
	case StageBlueprint:
		return "blueprint"
	case StageScreenPrompts:
		return "screen_prompts"
	case StageFlow:
		return "flow"
	case StageExport:
		return "export"
	}
	return "unknown"
}

// StateSchemaVersion is bumped whenever the snapshot shape changes.
const StateSchemaVersion = 1

// State is the full studio state. It is treated as an immutable value:
// Reduce returns a new State and never mutates its input. The whole value is
// serialized verbatim as the session snapshot.
type State struct {
	SchemaVersion int `json:"schema_version"`

	ProjectID string `json:"project_id,omitempty"`

	Idea          *domain.AppIdea           `json:"idea,omitempty"`
	Validation    *domain.ValidationAnswers `json:"validation,omitempty"`
	Blueprint     *domain.Blueprint         `json:"blueprint,omitempty"`
	ScreenPrompts []domain.ScreenPrompt     `json:"screen_prompts,omitempty"`
	Flow          *domain.FlowDocument      `json:"flow,omitempty"`
	Export        *domain.ExportDocument    `json:"export,omitempty"`

	CurrentStage    Stage   `json:"current_stage"`
	CompletedStages []Stage `json:"completed_stages,omitempty"`
	StaleStages     []Stage `json:"stale_stages,omitempty"`

	ElapsedSeconds int  `json:"elapsed_seconds"`
	Completed      bool `json:"completed"`
}

func NewState() State {
	return State{
		SchemaVersion: StateSchemaVersion,
		CurrentStage:  StageIdea,
	}
}

// StageCompleted reports whether the stage was ever completed. Completion is
// monotonic: editing an earlier stage marks later stages stale but never
// un-completes them.
func (s State) StageCompleted(stage Stage) bool {
	return containsStage(s.CompletedStages, stage)
}

// StageStale reports whether a completed stage's artifact may be outdated
// because an upstream stage was edited after it was generated.
func (s State) StageStale(stage Stage) bool {
	return containsStage(s.StaleStages, stage)
}

// StageReady reports whether the data required to enter a stage exists.
func StageReady(s State, stage Stage) bool {
	switch stage {
	case StageIdea:
		return true
	case StageValidation:
		return s.Idea != nil
	case StageBlueprint:
		return s.Idea != nil && s.Validation != nil
	case StageScreenPrompts:
		return s.Blueprint != nil
	case StageFlow:
		return s.Blueprint != nil && len(s.ScreenPrompts) > 0
	case StageExport:
		return s.Blueprint != nil && len(s.ScreenPrompts) > 0 && s.Flow != nil
	}
	return false
}

func containsStage(stages []Stage, stage Stage) bool {
	for _, s := range stages {
		if s == stage {
			return true
		}
	}
	return false
}

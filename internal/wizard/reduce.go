package wizard

import (
	"fmt"

	"github.com/buildtrix/mvp-studio-backend/internal/mvp/domain"
)

// Action is one studio state transition. The concrete types below form a
// closed set; Reduce rejects anything else.
type Action interface {
	isAction()
}

type SetIdea struct {
	Idea domain.AppIdea
}

type SetValidation struct {
	Answers domain.ValidationAnswers
}

type SetBlueprint struct {
	Blueprint domain.Blueprint
}

type SetScreenPrompts struct {
	Prompts []domain.ScreenPrompt
}

type SetFlow struct {
	Flow domain.FlowDocument
}

type SetExport struct {
	Export domain.ExportDocument
}

type GoToStage struct {
	Stage Stage
}

type Tick struct {
	Seconds int
}

type AttachProject struct {
	ProjectID string
}

func (SetIdea) isAction()          {}
func (SetValidation) isAction()    {}
func (SetBlueprint) isAction()     {}
func (SetScreenPrompts) isAction() {}
func (SetFlow) isAction()          {}
func (SetExport) isAction()        {}
func (GoToStage) isAction()        {}
func (Tick) isAction()             {}
func (AttachProject) isAction()    {}

// Reduce applies one action to the studio state and returns the next state.
// The input state is never mutated. Moving forward requires the target
// stage's upstream data to exist; moving backward is always allowed and
// leaves downstream artifacts in place, marked stale.
func Reduce(s State, a Action) (State, error) {
	switch act := a.(type) {
	case SetIdea:
		if act.Idea.AppName == "" || act.Idea.Description == "" {
			return s, fmt.Errorf("idea requires app name and description")
		}
		next := s
		next.Idea = &act.Idea
		next = completeStage(next, StageIdea)
		return markDownstreamStale(next, StageIdea), nil

	case SetValidation:
		if s.Idea == nil {
			return s, fmt.Errorf("validation answers require an idea")
		}
		next := s
		next.Validation = &act.Answers
		next = completeStage(next, StageValidation)
		return markDownstreamStale(next, StageValidation), nil

	case SetBlueprint:
		if !StageReady(s, StageBlueprint) {
			return s, fmt.Errorf("blueprint requires idea and validation answers")
		}
		next := s
		bp := act.Blueprint
		next.Blueprint = &bp
		next = completeStage(next, StageBlueprint)
		next = clearStale(next, StageBlueprint)
		return markDownstreamStale(next, StageBlueprint), nil

	case SetScreenPrompts:
		if !StageReady(s, StageScreenPrompts) {
			return s, fmt.Errorf("screen prompts require a blueprint")
		}
		if len(act.Prompts) == 0 {
			return s, fmt.Errorf("screen prompts must not be empty")
		}
		next := s
		next.ScreenPrompts = append([]domain.ScreenPrompt(nil), act.Prompts...)
		next = completeStage(next, StageScreenPrompts)
		next = clearStale(next, StageScreenPrompts)
		return markDownstreamStale(next, StageScreenPrompts), nil

	case SetFlow:
		if !StageReady(s, StageFlow) {
			return s, fmt.Errorf("flow requires blueprint and screen prompts")
		}
		next := s
		flow := act.Flow
		next.Flow = &flow
		next = completeStage(next, StageFlow)
		next = clearStale(next, StageFlow)
		return markDownstreamStale(next, StageFlow), nil

	case SetExport:
		if !StageReady(s, StageExport) {
			return s, fmt.Errorf("export requires all prior stage artifacts")
		}
		if act.Export.Content == "" {
			return s, fmt.Errorf("export content must not be empty")
		}
		next := s
		exp := act.Export
		next.Export = &exp
		next = completeStage(next, StageExport)
		next = clearStale(next, StageExport)
		next.CurrentStage = StageExport
		next.Completed = true
		return next, nil

	case GoToStage:
		if !act.Stage.Valid() {
			return s, fmt.Errorf("invalid stage %d", act.Stage)
		}
		if act.Stage > s.CurrentStage && !StageReady(s, act.Stage) {
			return s, fmt.Errorf("stage %s is not ready", act.Stage)
		}
		next := s
		next.CurrentStage = act.Stage
		return next, nil

	case Tick:
		if act.Seconds < 0 {
			return s, fmt.Errorf("tick seconds must be non-negative")
		}
		next := s
		next.ElapsedSeconds += act.Seconds
		return next, nil

	case AttachProject:
		if act.ProjectID == "" {
			return s, fmt.Errorf("project id must not be empty")
		}
		next := s
		next.ProjectID = act.ProjectID
		return next, nil
	}

	return s, fmt.Errorf("unknown action %T", a)
}

func completeStage(s State, stage Stage) State {
	if containsStage(s.CompletedStages, stage) {
		return s
	}
	next := s
	next.CompletedStages = append(append([]Stage(nil), s.CompletedStages...), stage)
	return next
}

// markDownstreamStale flags every completed stage after the edited one.
// Artifacts are kept; the caller decides whether to regenerate them.
func markDownstreamStale(s State, edited Stage) State {
	next := s
	stale := append([]Stage(nil), s.StaleStages...)
	for st := edited + 1; st <= LastStage; st++ {
		if containsStage(s.CompletedStages, st) && !containsStage(stale, st) {
			stale = append(stale, st)
		}
	}
	next.StaleStages = stale
	return next
}

func clearStale(s State, stage Stage) State {
	if !containsStage(s.StaleStages, stage) {
		return s
	}
	next := s
	out := make([]Stage, 0, len(s.StaleStages))
	for _, st := range s.StaleStages {
		if st != stage {
			out = append(out, st)
		}
	}
	next.StaleStages = out
	return next
}

package domain

import "time"

// Status is the lifecycle status of an MVP record. Transitions between
// statuses are deliberately unconstrained; only the value set is enforced.
type Status string

const (
	StatusYetToBuild Status = "Yet To Build"
	StatusBuilt      Status = "Built"
	StatusLaunched   Status = "Launched"
	StatusAbandoned  Status = "Abandoned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusYetToBuild, StatusBuilt, StatusLaunched, StatusAbandoned:
		return true
	}
	return false
}

// AppIdea holds the raw stage-1 input captured from the user.
type AppIdea struct {
	AppName        string   `json:"appName"`
	Platforms      []string `json:"platforms"`
	DesignStyle    string   `json:"designStyle"`
	Description    string   `json:"ideaDescription"`
	TargetAudience string   `json:"targetAudience,omitempty"`
}

// ValidationAnswers holds the stage-2 questionnaire answers.
type ValidationAnswers struct {
	ValidatedWithUsers  bool   `json:"validatedWithUsers"`
	DiscussedWithOthers bool   `json:"discussedWithOthers"`
	Motivation          string `json:"motivation,omitempty"`
}

// Blueprint is the structured stage-3 artifact. Every generated document
// carries a schema version so producer and consumer can detect shape drift.
type Blueprint struct {
	SchemaVersion int         `json:"schema_version"`
	AppName       string      `json:"app_name"`
	Overview      string      `json:"overview"`
	Screens       []Screen    `json:"screens"`
	Roles         []string    `json:"roles"`
	DataModels    []DataModel `json:"data_models"`
}

type Screen struct {
	Name     string   `json:"name"`
	Purpose  string   `json:"purpose"`
	Elements []string `json:"elements"`
}

type DataModel struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// ScreenPrompt is one stage-4 per-screen prompt document.
type ScreenPrompt struct {
	SchemaVersion int    `json:"schema_version"`
	ScreenName    string `json:"screen_name"`
	Prompt        string `json:"prompt"`
}

// FlowDocument is the stage-5 navigation flow description.
type FlowDocument struct {
	SchemaVersion int      `json:"schema_version"`
	Description   string   `json:"description"`
	Steps         []string `json:"steps"`
}

// ExportDocument is the stage-6 unified export for one target tool.
type ExportDocument struct {
	SchemaVersion int       `json:"schema_version"`
	Tool          string    `json:"tool"`
	Content       string    `json:"content"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Project is a user's MVP record: the idea plus everything the studio
// generated for it.
type Project struct {
	PublicID        string          `json:"public_id"`
	Name            string          `json:"name"`
	Platforms       []string        `json:"platforms"`
	DesignStyle     string          `json:"design_style"`
	Description     string          `json:"description"`
	TargetAudience  string          `json:"target_audience,omitempty"`
	GeneratedPrompt string          `json:"generated_prompt,omitempty"`
	Blueprint       *Blueprint      `json:"blueprint,omitempty"`
	ScreenPrompts   []ScreenPrompt  `json:"screen_prompts,omitempty"`
	Flow            *FlowDocument   `json:"flow,omitempty"`
	Export          *ExportDocument `json:"export,omitempty"`
	Status          Status          `json:"status"`
	CompletionStage int             `json:"completion_stage"`
	FromStudio      bool            `json:"from_studio"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Questionnaire is the one-to-one validation record for a project.
type Questionnaire struct {
	ProjectPublicID     string    `json:"project_public_id"`
	ValidatedWithUsers  bool      `json:"validated_with_users"`
	DiscussedWithOthers bool      `json:"discussed_with_others"`
	Motivation          string    `json:"motivation,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

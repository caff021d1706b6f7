package prompt

import (
	"fmt"

	"github.com/buildtrix/mvp-studio-backend/internal/mvp/domain"
)

// Fallback documents are substituted when the upstream generation call fails
// or returns unparsable output. They are fully deterministic, built only
// from the raw idea fields, and always non-empty: the user receives a
// lower-quality artifact instead of an error.

func FallbackBlueprint(idea domain.AppIdea) *domain.Blueprint {
	return &domain.Blueprint{
		SchemaVersion: 1,
		AppName:       idea.AppName,
		Overview: fmt.Sprintf("%s is an application for %s. %s",
			idea.AppName, audienceOrDefault(idea), idea.Description),
		Screens: []domain.Screen{
			{Name: "Home", Purpose: "Landing screen introducing " + idea.AppName, Elements: []string{"hero section", "primary call to action", "navigation"}},
			{Name: "Main", Purpose: "Core workflow of the application", Elements: []string{"content list", "detail view", "create action"}},
			{Name: "Profile", Purpose: "Account details and preferences", Elements: []string{"user info", "settings", "sign out"}},
		},
		Roles: []string{"user", "admin"},
		DataModels: []domain.DataModel{
			{Name: "User", Fields: []string{"id", "email", "display_name", "created_at"}},
			{Name: "Item", Fields: []string{"id", "owner_id", "title", "description", "created_at"}},
		},
	}
}

func FallbackScreenPrompts(bp *domain.Blueprint) []domain.ScreenPrompt {
	out := make([]domain.ScreenPrompt, 0, len(bp.Screens))
	for _, s := range bp.Screens {
		out = append(out, domain.ScreenPrompt{
			SchemaVersion: 1,
			ScreenName:    s.Name,
			Prompt: fmt.Sprintf("Build the %s screen of %s. %s Include: %s.",
				s.Name, bp.AppName, s.Purpose, joinOr(s.Elements, "standard layout elements")),
		})
	}
	return out
}

func FallbackFlow(bp *domain.Blueprint) *domain.FlowDocument {
	steps := make([]string, 0, len(bp.Screens))
	for _, s := range bp.Screens {
		steps = append(steps, "Navigate to "+s.Name)
	}
	return &domain.FlowDocument{
		SchemaVersion: 1,
		Description:   fmt.Sprintf("Users of %s move linearly through the main screens.", bp.AppName),
		Steps:         steps,
	}
}

func audienceOrDefault(idea domain.AppIdea) string {
	if idea.TargetAudience != "" {
		return idea.TargetAudience
	}
	return "its users"
}

func joinOr(elements []string, def string) string {
	if len(elements) == 0 {
		return def
	}
	out := elements[0]
	for _, e := range elements[1:] {
		out += ", " + e
	}
	return out
}

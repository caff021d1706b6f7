package prompt

import (
	"fmt"
	"strings"

	"github.com/buildtrix/mvp-studio-backend/internal/mvp/domain"
	"github.com/buildtrix/mvp-studio-backend/internal/wizard"
)

// Input carries everything the assembler may interpolate. Only the fields a
// given stage needs have to be set.
type Input struct {
	Idea          domain.AppIdea
	Validation    *domain.ValidationAnswers
	Blueprint     *domain.Blueprint
	ScreenPrompts []domain.ScreenPrompt
	Flow          *domain.FlowDocument
	Snippets      []SnippetResult
}

// Enrich retrieves knowledge snippets for the idea. Best-effort: the worst
// outcome is an empty snippet set, never a failure of the caller.
func Enrich(idea domain.AppIdea) []SnippetResult {
	query := CategoryFor(idea.Description) + " " + idea.AppName + " " + idea.Description
	return SearchSnippets(query)
}

// Assemble deterministically renders the prompt text for one stage and
// target tool. Given identical input it produces byte-identical output.
func Assemble(in Input, tool Tool, stage wizard.Stage) string {
	p := ProfileFor(tool)

	switch stage {
	case wizard.StageScreenPrompts:
		return assembleScreens(in, p)
	case wizard.StageExport:
		return assembleExport(in, p)
	default:
		return assembleSkeleton(in, p)
	}
}

// assembleSkeleton renders the full-app prompt from the raw idea.
func assembleSkeleton(in Input, p toolProfile) string {
	var b strings.Builder

	b.WriteString(p.Preamble)
	b.WriteString("\n\n")

	section(&b, p, "App Overview")
	fmt.Fprintf(&b, "Name: %s\n", in.Idea.AppName)
	fmt.Fprintf(&b, "Platforms: %s\n", strings.Join(in.Idea.Platforms, ", "))
	fmt.Fprintf(&b, "Design style: %s\n", in.Idea.DesignStyle)
	fmt.Fprintf(&b, "Description: %s\n", in.Idea.Description)
	if in.Idea.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", in.Idea.TargetAudience)
	}

	if in.Validation != nil {
		b.WriteString("\n")
		section(&b, p, "Founder Context")
		fmt.Fprintf(&b, "Validated with real users: %s\n", yesNo(in.Validation.ValidatedWithUsers))
		fmt.Fprintf(&b, "Discussed with others: %s\n", yesNo(in.Validation.DiscussedWithOthers))
		if in.Validation.Motivation != "" {
			fmt.Fprintf(&b, "Motivation: %s\n", in.Validation.Motivation)
		}
	}

	if in.Blueprint != nil {
		b.WriteString("\n")
		writeBlueprint(&b, p, in.Blueprint)
	}

	writeSnippets(&b, p, in.Snippets)

	b.WriteString("\n")
	b.WriteString(p.Closing)
	b.WriteString("\n")
	return b.String()
}

// assembleScreens renders one prompt document per screen, concatenated.
func assembleScreens(in Input, p toolProfile) string {
	var b strings.Builder

	b.WriteString(p.Preamble)
	b.WriteString("\n\n")

	section(&b, p, "App Overview")
	fmt.Fprintf(&b, "Name: %s\n", in.Idea.AppName)
	fmt.Fprintf(&b, "Design style: %s\n", in.Idea.DesignStyle)
	fmt.Fprintf(&b, "Description: %s\n", in.Idea.Description)

	if in.Blueprint != nil {
		for _, s := range in.Blueprint.Screens {
			b.WriteString("\n")
			section(&b, p, "Screen: "+s.Name)
			fmt.Fprintf(&b, "Purpose: %s\n", s.Purpose)
			if len(s.Elements) > 0 {
				b.WriteString("Elements:\n")
				for _, el := range s.Elements {
					fmt.Fprintf(&b, "- %s\n", el)
				}
			}
		}
	}

	writeSnippets(&b, p, in.Snippets)

	b.WriteString("\n")
	b.WriteString(p.Closing)
	b.WriteString("\n")
	return b.String()
}

// assembleExport renders the unified stage-6 export from all prior artifacts.
func assembleExport(in Input, p toolProfile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Implementation prompt for %s\n\n", p.DisplayName)
	b.WriteString(p.Preamble)
	b.WriteString("\n\n")

	section(&b, p, "App Overview")
	fmt.Fprintf(&b, "Name: %s\n", in.Idea.AppName)
	fmt.Fprintf(&b, "Platforms: %s\n", strings.Join(in.Idea.Platforms, ", "))
	fmt.Fprintf(&b, "Design style: %s\n", in.Idea.DesignStyle)
	fmt.Fprintf(&b, "Description: %s\n", in.Idea.Description)
	if in.Idea.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", in.Idea.TargetAudience)
	}

	if in.Blueprint != nil {
		b.WriteString("\n")
		writeBlueprint(&b, p, in.Blueprint)
	}

	if len(in.ScreenPrompts) > 0 {
		b.WriteString("\n")
		section(&b, p, "Screen Prompts")
		for _, sp := range in.ScreenPrompts {
			fmt.Fprintf(&b, "\n%s %s\n%s\n", p.SectionMarker+"#", sp.ScreenName, sp.Prompt)
		}
	}

	if in.Flow != nil {
		b.WriteString("\n")
		section(&b, p, "Navigation Flow")
		fmt.Fprintf(&b, "%s\n", in.Flow.Description)
		for i, step := range in.Flow.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}

	writeSnippets(&b, p, in.Snippets)

	b.WriteString("\n")
	b.WriteString(p.Closing)
	b.WriteString("\n")
	return b.String()
}

func writeBlueprint(b *strings.Builder, p toolProfile, bp *domain.Blueprint) {
	section(b, p, "Blueprint")
	fmt.Fprintf(b, "%s\n", bp.Overview)

	if len(bp.Screens) > 0 {
		b.WriteString("\nScreens:\n")
		for _, s := range bp.Screens {
			fmt.Fprintf(b, "- %s: %s\n", s.Name, s.Purpose)
		}
	}
	if len(bp.Roles) > 0 {
		fmt.Fprintf(b, "\nUser roles: %s\n", strings.Join(bp.Roles, ", "))
	}
	if len(bp.DataModels) > 0 {
		b.WriteString("\nData models:\n")
		for _, m := range bp.DataModels {
			fmt.Fprintf(b, "- %s (%s)\n", m.Name, strings.Join(m.Fields, ", "))
		}
	}
}

func writeSnippets(b *strings.Builder, p toolProfile, snippets []SnippetResult) {
	if len(snippets) == 0 {
		return
	}
	b.WriteString("\n")
	section(b, p, "Reference Notes")
	for _, s := range snippets {
		fmt.Fprintf(b, "- %s: %s\n", s.Title, s.Excerpt)
	}
}

func section(b *strings.Builder, p toolProfile, title string) {
	fmt.Fprintf(b, "%s %s\n", p.SectionMarker, title)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

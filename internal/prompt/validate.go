package prompt

import "strings"

// Report is the result of the heuristic prompt check. It annotates; it
// never blocks assembly.
type Report struct {
	IsValid     bool     `json:"isValid"`
	Score       int      `json:"score"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

const minPromptLength = 200

var placeholderTokens = []string{"{{", "}}", "[TODO]", "<placeholder>", "TBD"}

var expectedSections = []string{"Overview"}

// Validate scores a prompt 0-100 against simple structural heuristics:
// required sections present, a minimum length, and no leftover placeholder
// tokens.
func Validate(text string) Report {
	r := Report{Score: 100, Issues: []string{}, Suggestions: []string{}}

	if len(text) < minPromptLength {
		r.Score -= 40
		r.Issues = append(r.Issues, "prompt is too short")
		r.Suggestions = append(r.Suggestions, "describe the app, its screens, and its data in more detail")
	}

	for _, s := range expectedSections {
		if !strings.Contains(text, s) {
			r.Score -= 20
			r.Issues = append(r.Issues, "missing section: "+s)
			r.Suggestions = append(r.Suggestions, "add an "+s+" section")
		}
	}

	for _, tok := range placeholderTokens {
		if strings.Contains(text, tok) {
			r.Score -= 25
			r.Issues = append(r.Issues, "contains placeholder token: "+tok)
			r.Suggestions = append(r.Suggestions, "replace "+tok+" with real content")
			break
		}
	}

	if !strings.Contains(text, "\n") {
		r.Score -= 10
		r.Issues = append(r.Issues, "prompt is a single line")
		r.Suggestions = append(r.Suggestions, "structure the prompt into sections")
	}

	if r.Score < 0 {
		r.Score = 0
	}
	r.IsValid = r.Score >= 60
	return r
}

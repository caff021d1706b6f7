package prompt

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Snippet is one knowledge-base document loaded at boot. Snippets enrich
// assembled prompts; retrieval is strictly best-effort.
type Snippet struct {
	ID      string
	Title   string
	Content string
}

// SnippetResult is one retrieval hit, trimmed for inclusion in a prompt.
type SnippetResult struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

var snippets []Snippet

// LoadSnippets walks dir and loads every .md/.txt file. Called once at boot.
func LoadSnippets(dir string) error {
	snippets = snippets[:0]
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if ext := strings.ToLower(filepath.Ext(path)); ext != ".md" && ext != ".txt" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		snippets = append(snippets, Snippet{ID: path, Title: title, Content: string(b)})
		return nil
	})
	return err
}

// SearchSnippets scores loaded snippets by keyword hits and returns the top
// three. An empty result set is a normal outcome, never an error.
func SearchSnippets(q string) []SnippetResult {
	q = strings.ToLower(q)
	type scored struct {
		res  SnippetResult
		hits int
	}
	out := make([]scored, 0, len(snippets))
	for _, s := range snippets {
		text := strings.ToLower(s.Title + "\n" + s.Content)
		hits := 0
		for _, tok := range strings.Fields(q) {
			if tok == "" {
				continue
			}
			if strings.Contains(text, tok) {
				hits++
			}
		}
		if hits > 0 {
			excerpt := s.Content
			if len(excerpt) > 240 {
				excerpt = excerpt[:240] + "..."
			}
			out = append(out, scored{SnippetResult{ID: s.ID, Title: s.Title, Excerpt: excerpt, Score: float64(hits)}, hits})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].hits > out[j].hits })
	if len(out) > 3 {
		out = out[:3]
	}

	res := make([]SnippetResult, len(out))
	for i, s := range out {
		res[i] = s.res
	}
	return res
}

// categoryKeywords maps an app-idea category to its retrieval vocabulary.
// The category feeds the snippet query alongside the idea text itself.
var categoryKeywords = map[string][]string{
	"ecommerce":    {"shop", "store", "cart", "checkout", "sell", "marketplace", "order"},
	"social":       {"social", "chat", "friend", "follow", "feed", "community", "share"},
	"productivity": {"task", "todo", "note", "plan", "schedule", "track", "habit"},
	"fitness":      {"fitness", "workout", "health", "exercise", "diet", "calorie"},
	"finance":      {"budget", "expense", "invoice", "payment", "money", "finance"},
	"education":    {"learn", "course", "quiz", "study", "teach", "lesson"},
}

// CategoryFor classifies an idea description by keyword lookup. Returns
// "general" when nothing matches.
func CategoryFor(description string) string {
	text := strings.ToLower(description)
	best, bestHits := "general", 0
	for _, cat := range []string{"ecommerce", "social", "productivity", "fitness", "finance", "education"} {
		hits := 0
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = cat, hits
		}
	}
	return best
}

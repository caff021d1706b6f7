package bootstrap

import "github.com/buildtrix/mvp-studio-backend/internal/prompt"

func LoadSnippets(dir string) error {
	return prompt.LoadSnippets(dir)
}

// Package template holds the project template catalog: named file layouts
// per language, plus the per-language system prompts used to generate them.
package template

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
)

// FileSpec describes one file of a project template.
type FileSpec struct {
	Path    string              `yaml:"path" json:"path"`
	Role    string              `yaml:"role" json:"role,omitempty"`
	Kind    generation.UnitKind `yaml:"kind" json:"kind"`
	Content string              `yaml:"content" json:"-"`
}

// Template is a named project layout.
type Template struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Languages   []string   `yaml:"languages" json:"languages"`
	Prompt      string     `yaml:"prompt" json:"-"`
	Files       []FileSpec `yaml:"files" json:"files"`
	Builtin     bool       `yaml:"-" json:"builtin"`
}

// Supports reports whether the template can be used for lang. Matching is
// case-insensitive and an empty language list supports every language.
func (t *Template) Supports(lang string) bool {
	if len(t.Languages) == 0 {
		return true
	}
	for _, l := range t.Languages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

// Validate checks structural invariants and normalizes file kinds.
func (t *Template) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	seen := make(map[string]bool, len(t.Files))
	for i := range t.Files {
		f := &t.Files[i]
		if strings.TrimSpace(f.Path) == "" {
			return fmt.Errorf("files[%d]: path is required", i)
		}
		if path.IsAbs(f.Path) || strings.HasPrefix(path.Clean(f.Path), "..") {
			return fmt.Errorf("files[%d]: path %q escapes the project", i, f.Path)
		}
		switch f.Kind {
		case "":
			f.Kind = generation.KindGenerate
		case generation.KindGenerate, generation.KindStatic:
		default:
			return fmt.Errorf("files[%d]: unknown kind %q", i, f.Kind)
		}
		key := path.Clean(f.Path)
		if seen[key] {
			return fmt.Errorf("files[%d]: duplicate path %q", i, key)
		}
		seen[key] = true
	}
	return nil
}

// PromptTemplate is the system prompt for one language.
type PromptTemplate struct {
	Language    string `yaml:"language"`
	Description string `yaml:"description"`
	Template    string `yaml:"template"`
}

// DefaultPromptLanguage names the prompt used when a language has none.
const DefaultPromptLanguage = "default"

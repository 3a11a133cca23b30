package service

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/domain/template"
)

// PlannerService expands a generation request into work units using the
// template catalog. It has no side effects and never calls the backend.
type PlannerService struct {
	catalog *template.Catalog
}

// NewPlannerService creates a PlannerService over catalog.
func NewPlannerService(catalog *template.Catalog) *PlannerService {
	return &PlannerService{catalog: catalog}
}

// Catalog returns the catalog the planner resolves templates from.
func (s *PlannerService) Catalog() *template.Catalog {
	return s.catalog
}

// Resolve returns the template named by req if it supports req.Language.
func (s *PlannerService) Resolve(req generation.Request) (template.Template, error) {
	t, ok := s.catalog.Get(req.Template)
	if !ok {
		return template.Template{}, fmt.Errorf("%w %q", generation.ErrInvalidTemplate, req.Template)
	}
	if !t.Supports(req.Language) {
		return template.Template{}, fmt.Errorf("%w %q for template %q (supported: %s)",
			generation.ErrInvalidLanguage, req.Language, t.Name, strings.Join(t.Languages, ", "))
	}
	return t, nil
}

// Plan returns the ordered work units for req. The result depends only on
// template, language, base package and project name.
func (s *PlannerService) Plan(req generation.Request) ([]generation.WorkUnit, error) {
	t, err := s.Resolve(req)
	if err != nil {
		return nil, err
	}

	data := template.NewFileData(req.BasePackage, req.ProjectName, req.Language)
	units := make([]generation.WorkUnit, 0, len(t.Files))
	seen := make(map[string]bool, len(t.Files))

	for i, f := range t.Files {
		p := path.Clean(strings.TrimSpace(renderOrRaw(t.Name, "path", f.Path, data)))
		if p == "." || path.IsAbs(p) || strings.HasPrefix(p, "../") || p == ".." {
			return nil, fmt.Errorf("%w: template %q file %d renders to unsafe path %q",
				generation.ErrInvalidTemplate, t.Name, i, p)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: template %q renders duplicate path %q",
				generation.ErrInvalidTemplate, t.Name, p)
		}
		seen[p] = true

		units = append(units, generation.WorkUnit{
			ID:    p,
			Index: i,
			Path:  p,
			Role:  renderOrRaw(t.Name, "role", f.Role, data),
			Kind:  f.Kind,
			Hint:  renderOrRaw(t.Name, "content", f.Content, data),
			State: generation.UnitPending,
		})
	}
	return units, nil
}

// SystemPrompt renders the language prompt for req, including the
// template's extra instructions.
func (s *PlannerService) SystemPrompt(req generation.Request) (string, error) {
	t, err := s.Resolve(req)
	if err != nil {
		return "", err
	}
	p := s.catalog.Prompt(req.Language)
	out, err := template.Render("prompt:"+p.Language, p.Template, template.PromptData{
		BasePackage: req.BasePackage,
		ExtraPrompt: strings.TrimSpace(t.Prompt),
		Language:    req.Language,
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return out, nil
}

// renderOrRaw renders text and falls back to the raw text when the template
// does not render.
func renderOrRaw(tmpl, field, text string, data template.FileData) string {
	if text == "" || !strings.Contains(text, "{{") {
		return text
	}
	out, err := template.Render(tmpl+":"+field, text, data)
	if err != nil {
		slog.Warn("template render failed, using raw text", "template", tmpl, "field", field, "error", err)
		return text
	}
	return out
}

package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml builtin/prompts/*.yaml
var builtinFS embed.FS

// Catalog is an immutable set of project templates and language prompts.
type Catalog struct {
	templates map[string]Template
	prompts   map[string]PromptTemplate
}

// Builtin returns the catalog compiled into the binary.
func Builtin() (*Catalog, error) {
	c := &Catalog{
		templates: make(map[string]Template),
		prompts:   make(map[string]PromptTemplate),
	}
	templates, err := loadTemplates(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("builtin templates: %w", err)
	}
	for _, t := range templates {
		t.Builtin = true
		c.templates[t.Name] = t
	}
	prompts, err := loadPrompts(builtinFS, "builtin/prompts")
	if err != nil {
		return nil, fmt.Errorf("builtin prompts: %w", err)
	}
	for _, p := range prompts {
		c.prompts[strings.ToLower(p.Language)] = p
	}
	if _, ok := c.prompts[DefaultPromptLanguage]; !ok {
		return nil, errors.New("builtin prompts: missing default prompt")
	}
	return c, nil
}

// Load returns the builtin catalog overlaid with the YAML files found in
// templateDir and promptDir. Missing directories are ignored. Files that fail
// to parse or validate are skipped; their errors are joined into the
// returned error while the catalog is still usable.
func Load(templateDir, promptDir string) (*Catalog, error) {
	c, err := Builtin()
	if err != nil {
		return nil, err
	}
	var skipped []error
	if templateDir != "" {
		templates, err := loadTemplates(os.DirFS(templateDir), ".")
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", templateDir, err))
		}
		for _, t := range templates {
			c.templates[t.Name] = t
		}
	}
	if promptDir != "" {
		prompts, err := loadPrompts(os.DirFS(promptDir), ".")
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", promptDir, err))
		}
		for _, p := range prompts {
			c.prompts[strings.ToLower(p.Language)] = p
		}
	}
	return c, errors.Join(skipped...)
}

// New builds a catalog from explicit templates and prompts.
func New(templates []Template, prompts []PromptTemplate) (*Catalog, error) {
	c := &Catalog{
		templates: make(map[string]Template, len(templates)),
		prompts:   make(map[string]PromptTemplate, len(prompts)),
	}
	for _, t := range templates {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
		c.templates[t.Name] = t
	}
	for _, p := range prompts {
		c.prompts[strings.ToLower(p.Language)] = p
	}
	return c, nil
}

// Get returns the named template.
func (c *Catalog) Get(name string) (Template, bool) {
	t, ok := c.templates[name]
	return t, ok
}

// Templates returns all templates sorted by name.
func (c *Catalog) Templates() []Template {
	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Languages returns the sorted set of languages that have a prompt or are
// named by a template.
func (c *Catalog) Languages() []string {
	set := make(map[string]bool)
	for lang := range c.prompts {
		if lang != DefaultPromptLanguage {
			set[lang] = true
		}
	}
	for _, t := range c.templates {
		for _, l := range t.Languages {
			set[strings.ToLower(l)] = true
		}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Prompt returns the system prompt for lang, falling back to the default.
func (c *Catalog) Prompt(lang string) PromptTemplate {
	if p, ok := c.prompts[strings.ToLower(lang)]; ok {
		return p
	}
	return c.prompts[DefaultPromptLanguage]
}

func loadTemplates(fsys fs.FS, dir string) ([]Template, error) {
	var (
		out  []Template
		errs []error
	)
	err := forEachYAML(fsys, dir, func(name string, data []byte) {
		var t Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", name, err))
			return
		}
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate %s: %w", name, err))
			return
		}
		out = append(out, t)
	})
	if err != nil {
		return nil, err
	}
	return out, errors.Join(errs...)
}

func loadPrompts(fsys fs.FS, dir string) ([]PromptTemplate, error) {
	var (
		out  []PromptTemplate
		errs []error
	)
	err := forEachYAML(fsys, dir, func(name string, data []byte) {
		var p PromptTemplate
		if err := yaml.Unmarshal(data, &p); err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", name, err))
			return
		}
		if p.Language == "" || p.Template == "" {
			errs = append(errs, fmt.Errorf("validate %s: language and template are required", name))
			return
		}
		out = append(out, p)
	})
	if err != nil {
		return nil, err
	}
	return out, errors.Join(errs...)
}

// forEachYAML calls fn for every .yaml/.yml file directly inside dir.
// A missing directory yields no calls.
func forEachYAML(fsys fs.FS, dir string, fn func(name string, data []byte)) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		fn(name, data)
	}
	return nil
}

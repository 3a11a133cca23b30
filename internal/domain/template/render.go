package template

import (
	"bytes"
	"fmt"
	"strings"
	texttemplate "text/template"
)

// FileData is the data available to file paths and contents.
type FileData struct {
	Package     string
	ProjectName string
	Language    string
	Ext         string // source file extension for Language, with the dot
}

var extensions = map[string]string{
	"go":         ".go",
	"python":     ".py",
	"javascript": ".js",
	"typescript": ".ts",
	"java":       ".java",
	"rust":       ".rs",
	"c":          ".c",
	"c++":        ".cpp",
	"c#":         ".cs",
	"ruby":       ".rb",
	"kotlin":     ".kt",
}

// NewFileData returns the render data for a project.
func NewFileData(pkg, projectName, language string) FileData {
	ext, ok := extensions[strings.ToLower(language)]
	if !ok {
		ext = ".txt"
	}
	return FileData{Package: pkg, ProjectName: projectName, Language: language, Ext: ext}
}

// PromptData is the data available to system prompts.
type PromptData struct {
	BasePackage string
	ExtraPrompt string
	Language    string
}

// Render executes text as a text/template against data.
func Render(name, text string, data any) (string, error) {
	t, err := texttemplate.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.String(), nil
}

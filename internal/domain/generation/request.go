// Package generation defines the domain model of a code generation job:
// the request, its work units, the job state machine, and progress events.
package generation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultBasePackage is used when a request omits basePackage.
const DefaultBasePackage = "github.com/user/app"

// maxProjectNameLen bounds the project name, which becomes a path segment
// in the archive.
const maxProjectNameLen = 128

// Request is the inbound generation request, decoded once from the stream.
type Request struct {
	Prompt      string `json:"prompt"`
	Language    string `json:"language"`
	Template    string `json:"template"`
	BasePackage string `json:"basePackage"`
	WorkerCount int    `json:"workerCount"`
	Model       string `json:"model"`
	ProjectName string `json:"projectName"`
}

// Limits are the server-side bounds a request is validated against.
type Limits struct {
	MaxWorkers   int
	DefaultModel string
}

// Normalize returns a copy of r with trimmed fields and defaults applied.
// It never changes workerCount: out-of-range values are rejected by Validate.
func (r Request) Normalize(lim Limits) Request {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Language = strings.TrimSpace(r.Language)
	r.Template = strings.TrimSpace(r.Template)
	r.BasePackage = strings.TrimSpace(r.BasePackage)
	r.Model = strings.TrimSpace(r.Model)
	r.ProjectName = strings.TrimSpace(r.ProjectName)

	if r.BasePackage == "" {
		r.BasePackage = DefaultBasePackage
	}
	if r.Model == "" {
		r.Model = lim.DefaultModel
	}
	if r.ProjectName == "" && r.Language != "" {
		r.ProjectName = strings.ToLower(r.Language) + "-project"
	}
	return r
}

// Validate checks the request against the server limits. Every error wraps
// ErrInvalidRequest.
func (r Request) Validate(lim Limits) error {
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if r.Template == "" {
		return fmt.Errorf("%w: template is required", ErrInvalidRequest)
	}
	if r.Language == "" {
		return fmt.Errorf("%w: language is required", ErrInvalidRequest)
	}
	if r.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if r.WorkerCount < 1 || r.WorkerCount > lim.MaxWorkers {
		return fmt.Errorf("%w: workerCount must be between 1 and %d, got %d",
			ErrInvalidRequest, lim.MaxWorkers, r.WorkerCount)
	}
	if err := validateProjectName(r.ProjectName); err != nil {
		return fmt.Errorf("%w: projectName %v", ErrInvalidRequest, err)
	}
	if strings.ContainsAny(r.BasePackage, " \t\n") {
		return fmt.Errorf("%w: basePackage must not contain whitespace", ErrInvalidRequest)
	}
	return nil
}

// validateProjectName ensures the name is safe for use as a single path segment.
func validateProjectName(name string) error {
	if name == "" {
		return errors.New("is required")
	}
	if len(name) > maxProjectNameLen {
		return fmt.Errorf("too long (max %d chars)", maxProjectNameLen)
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.New("must not contain path separators")
	}
	if strings.Contains(name, "..") {
		return errors.New("must not contain '..'")
	}
	if name[0] == '.' {
		return errors.New("must not start with '.'")
	}
	if filepath.Clean(name) != name {
		return errors.New("contains invalid path characters")
	}
	return nil
}

package generation

import (
	"errors"
	"fmt"
)

// Request-level errors. They are reported before any job is created.
var (
	// ErrInvalidRequest covers schema and validation failures of a GenerationRequest.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidTemplate indicates the named template is not in the catalog.
	ErrInvalidTemplate = fmt.Errorf("%w: unknown template", ErrInvalidRequest)

	// ErrInvalidLanguage indicates the template does not support the requested language.
	ErrInvalidLanguage = fmt.Errorf("%w: unsupported language", ErrInvalidRequest)

	// ErrCapacity indicates admission was rejected because the server runs
	// its maximum number of jobs.
	ErrCapacity = errors.New("server at capacity")
)

// Job-level errors.
var (
	// ErrArchive indicates the archive could not be built or stored.
	ErrArchive = errors.New("archive failed")

	// ErrUnitsFailed indicates at least one work unit ended in failure.
	ErrUnitsFailed = errors.New("one or more files failed to generate")

	// ErrConnectionLost indicates the originating connection closed; the job
	// is cancelled and nothing further is reported.
	ErrConnectionLost = errors.New("connection lost")

	// ErrJobCancelled indicates the job was cancelled through the registry
	// while its connection stayed open. The stream ends with a terminal error.
	ErrJobCancelled = errors.New("job cancelled")
)

// FailureCause classifies why a single work unit failed.
type FailureCause string

const (
	CauseTimeout     FailureCause = "timeout"
	CauseBackend     FailureCause = "backend"
	CauseMalformed   FailureCause = "malformed"
	CauseUnavailable FailureCause = "unavailable"
)

// Retryable reports whether a unit failing with this cause may be attempted again.
func (c FailureCause) Retryable() bool {
	switch c {
	case CauseTimeout, CauseBackend, CauseUnavailable:
		return true
	default:
		return false
	}
}

// UnitFailure is the typed outcome of a work unit that did not produce content.
// It is isolated to its unit and never aborts the job.
type UnitFailure struct {
	UnitID string
	Cause  FailureCause
	Err    error
}

func (f *UnitFailure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("unit %s: %s", f.UnitID, f.Cause)
	}
	return fmt.Sprintf("unit %s: %s: %v", f.UnitID, f.Cause, f.Err)
}

func (f *UnitFailure) Unwrap() error {
	return f.Err
}

// AsUnitFailure extracts a *UnitFailure from err.
func AsUnitFailure(err error) (*UnitFailure, bool) {
	var uf *UnitFailure
	if errors.As(err, &uf) {
		return uf, true
	}
	return nil, false
}

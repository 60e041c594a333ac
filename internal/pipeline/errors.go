package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidInput
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Machine-stable reason codes.
const (
	ReasonProjectNotFound        = "project_not_found"
	ReasonCandidateNotFound      = "candidate_not_found"
	ReasonApplicationNotFound    = "application_not_found"
	ReasonStageNotFound          = "stage_not_found"
	ReasonNoStagesConfigured     = "no_stages_configured"
	ReasonDuplicateApplication   = "duplicate_application"
	ReasonInvalidReorderSet      = "invalid_reorder_set"
	ReasonConcurrentModification = "concurrent_modification"
	ReasonForbidden              = "forbidden"
)

// Error is the typed failure returned by every pipeline operation.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return e.Reason + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason code of err, "" for foreign errors.
func ReasonOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}

// Store-level sentinels. The service translates them into typed errors.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate live application")
	ErrRetryExhausted = errors.New("concurrent modification retries exhausted")
)

func errProjectNotFound(kind Kind, id int64) *Error {
	return newError(kind, ReasonProjectNotFound, "project %d not found", id)
}

func errCandidateNotFound(id int64) *Error {
	return newError(KindInvalidInput, ReasonCandidateNotFound, "candidate %d not found", id)
}

func errApplicationNotFound(id int64) *Error {
	return newError(KindNotFound, ReasonApplicationNotFound, "application %d not found", id)
}

func errStageNotFound(projectID int64, ref string) *Error {
	return newError(KindInvalidInput, ReasonStageNotFound, "stage %s not found in project %d", ref, projectID)
}

func errNoStages(projectID int64) *Error {
	return newError(KindInvalidInput, ReasonNoStagesConfigured, "project %d has no stages configured", projectID)
}

func errDuplicate(projectID, candidateID int64) *Error {
	return newError(KindConflict, ReasonDuplicateApplication,
		"candidate %d already has a live application in project %d", candidateID, projectID)
}

func errInvalidReorderSet(invalid []int64) *Error {
	e := newError(KindInvalidInput, ReasonInvalidReorderSet, "some application ids do not belong to this stage")
	e.Details = map[string]any{"invalid_ids": invalid}
	return e
}

func errConcurrent(cause error) *Error {
	e := newError(KindConflict, ReasonConcurrentModification, "the column was modified concurrently, retry the request")
	e.Err = cause
	return e
}

func errForbidden() *Error {
	return newError(KindForbidden, ReasonForbidden, "you do not have permission to modify this pipeline")
}

func errInternal(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var pe *Error
	if errors.As(cause, &pe) {
		return cause
	}
	if errors.Is(cause, ErrRetryExhausted) {
		return errConcurrent(cause)
	}
	return fmt.Errorf("%s: %w", op, cause)
}

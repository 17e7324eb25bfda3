package errx

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline stage an error originated from. It is safe
// to show to end users.
type Stage string

const (
	StageRetrieve Stage = "retrieve"
	StageRewrite  Stage = "rewrite"
	StagePlan     Stage = "plan_sql"
	StageValidate Stage = "validate_sql"
	StageExecute  Stage = "run_sql"
	StageReport   Stage = "report"
	StageEmail    Stage = "email"
	StageCache    Stage = "cache"
)

// Kind classifies pipeline errors so the orchestrator can map them to
// terminal states and retry decisions without inspecting error text.
type Kind string

const (
	KindRetrievalDegraded Kind = "retrieval_degraded"
	KindRewrite           Kind = "rewrite"
	KindSQLValidation     Kind = "sql_validation"
	KindSQLExecution      Kind = "sql_execution"
	KindReport            Kind = "report"
	KindEmailDelivery     Kind = "email_delivery"
	KindCache             Kind = "cache"
)

// PipelineError wraps an underlying error with the stage it came from, its
// kind, and a message safe to surface to callers. Unconditional marks
// rejections that must never re-enter the retry loop (unsafe SQL).
type PipelineError struct {
	Err           error
	Stage         Stage
	Kind          Kind
	Message       string
	Unconditional bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the underlying error or the PipelineError itself.
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to PipelineError or the wrapped error in a chain.
func (e *PipelineError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**PipelineError); ok {
		*t = e
		return true
	}
	return false
}

// New creates a new PipelineError with the provided information.
func New(kind Kind, stage Stage, message string, err error) *PipelineError {
	return &PipelineError{
		Err:     err,
		Stage:   stage,
		Kind:    kind,
		Message: message,
	}
}

// Validation builds a retryable SQL validation rejection.
func Validation(message string) *PipelineError {
	return New(KindSQLValidation, StageValidate, message, nil)
}

// Unsafe builds an unconditional SQL rejection. It is never routed back
// into the retry loop, regardless of remaining budget.
func Unsafe(message string) *PipelineError {
	e := New(KindSQLValidation, StageValidate, message, nil)
	e.Unconditional = true
	return e
}

// KindOf returns the Kind of err, or the empty Kind when err is not a
// PipelineError.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsUnconditional reports whether err is a rejection that must bypass the
// retry budget.
func IsUnconditional(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Unconditional
}

// Detail returns the feedback text handed back to the SQL planner on a
// rejected attempt.
func Detail(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if pe.Err != nil {
			return fmt.Sprintf("%s: %v", pe.Message, pe.Err)
		}
		return pe.Message
	}
	return err.Error()
}

// UserMessage renders a user-visible failure description that names the
// failing stage without leaking internals.
func UserMessage(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return fmt.Sprintf("the %s stage failed: %s", pe.Stage, pe.Message)
	}
	return "the request failed"
}

package schema

import (
	"errors"
	"fmt"
)

// ErrorKind tags every failure the pipeline can report.
type ErrorKind string

const (
	ParseFailure            ErrorKind = "ParseFailure"
	ScopeViolation          ErrorKind = "ScopeViolation"
	StructuredSourceFailure ErrorKind = "StructuredSourceFailure"
	SemanticSourceFailure   ErrorKind = "SemanticSourceFailure"
	GenerationFailure       ErrorKind = "GenerationFailure"
	ConfigurationError      ErrorKind = "ConfigurationError"
	InternalFailure         ErrorKind = "InternalFailure"
)

var (
	// ErrScopeViolation is returned whenever a query would run without a team scope.
	ErrScopeViolation = errors.New("query has no team scope")
	// ErrDimensionMismatch is returned when embedding and vector store dimensions differ.
	ErrDimensionMismatch = errors.New("embedding dimension does not match vector store dimension")
	// ErrEmptyQuestion is returned for blank or unparseable questions.
	ErrEmptyQuestion = errors.New("question is empty or unparseable")
)

// PipelineError is an error carrying its taxonomy kind.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewError builds a PipelineError.
func NewError(kind ErrorKind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the taxonomy kind of err. Untagged errors report InternalFailure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrScopeViolation) {
		return ScopeViolation
	}
	return InternalFailure
}

// ToChunkError converts err into the error payload of a terminal chunk.
func ToChunkError(err error) *ChunkError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return &ChunkError{Kind: pe.Kind, Message: pe.Message}
	}
	return &ChunkError{Kind: KindOf(err), Message: err.Error()}
}

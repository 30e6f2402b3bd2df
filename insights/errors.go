package insights

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput        = errors.New("input is empty")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrNoAnalysis        = errors.New("no analysis result in session")
	ErrAnalysisInFlight  = errors.New("an analysis is already running")
	ErrTurnInFlight      = errors.New("a chat reply is still streaming")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidStar       = errors.New("star filter must be between 0 and 5")
)

// AnalysisErrorKind classifies why a structured extraction failed.
type AnalysisErrorKind string

const (
	AnalysisInvalidInput  AnalysisErrorKind = "invalid_input"
	AnalysisTransport     AnalysisErrorKind = "transport"
	AnalysisTimeout       AnalysisErrorKind = "timeout"
	AnalysisRateLimited   AnalysisErrorKind = "rate_limited"
	AnalysisServer        AnalysisErrorKind = "server"
	AnalysisMalformed     AnalysisErrorKind = "malformed"
	AnalysisSchemaInvalid AnalysisErrorKind = "schema"
)

// AnalysisError is returned for every failed Analyze call. No partial result accompanies it.
type AnalysisError struct {
	Kind AnalysisErrorKind
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ChatError is returned when a chat stream cannot be opened or breaks mid-reply.
// Partial holds whatever text had arrived before the failure.
type ChatError struct {
	Partial string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("chat stream interrupted after %d bytes: %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("chat stream failed: %v", e.Err)
}

func (e *ChatError) Unwrap() error { return e.Err }

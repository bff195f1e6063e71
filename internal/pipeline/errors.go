package pipeline

import (
	"errors"
	"fmt"

	"github.com/sells-group/prequal-cli/internal/resilience"
)

// Stage identifies where in the chain a pipeline run failed.
type Stage string

const (
	StageRequest   Stage = "request"
	StageBuild     Stage = "build_resource"
	StageDocuments Stage = "fetch_documents"
	StageMerge     Stage = "merge"
	StageMap       Stage = "map_data"
)

// Kind is the failure taxonomy of a pipeline error.
type Kind string

const (
	// KindTransport covers timeouts, refused/reset connections, DNS and TLS
	// failures before an HTTP status was received.
	KindTransport Kind = "transport"
	// KindHTTP covers non-2xx responses; StatusCode carries the code.
	KindHTTP Kind = "http_status"
	// KindCredentials marks missing or unusable provider credentials.
	KindCredentials Kind = "credentials"
	// KindContract marks a provider response violating its own schema.
	KindContract Kind = "contract"
	// KindDocument marks an invalid downloaded payload (too small, wrong
	// signature) or a failed download under the all-or-nothing policy.
	KindDocument Kind = "document"
	// KindMapping marks an internal shape mismatch while writing field
	// responses; a code or schema bug, not routine degradation.
	KindMapping Kind = "mapping"
)

// Error is the terminal failure of a pipeline run.
type Error struct {
	Provider   string
	Stage      Stage
	Kind       Kind
	Transport  resilience.TransportKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s stage %s: %s: %v", e.Provider, e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s stage %s: %s", e.Provider, e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable is the retry predicate over the error-kind taxonomy. Transport
// failures from the fixed retryable set and 5xx/timeout-ish HTTP statuses
// qualify; credentials, contract, document and mapping failures never do.
func Retryable(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Kind {
	case KindTransport:
		return resilience.RetryableTransport(pe.Transport)
	case KindHTTP:
		return resilience.RetryableStatus(pe.StatusCode)
	default:
		return false
	}
}

func failf(provider string, stage Stage, kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Provider: provider,
		Stage:    stage,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Err:      err,
	}
}

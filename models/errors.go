package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so each boundary can decide
// whether a failure is recovered or fatal.
type ErrorKind int

const (
	// KindConfig is a missing or invalid setting. Fatal at startup.
	KindConfig ErrorKind = iota + 1
	// KindProvider is a failed embedding call.
	KindProvider
	// KindIndex is a failed vector index call.
	KindIndex
	// KindModel is a failed language model call.
	KindModel
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindProvider:
		return "provider"
	case KindIndex:
		return "index"
	case KindModel:
		return "model"
	default:
		return "unknown"
	}
}

// PipelineError carries an ErrorKind together with the failed operation.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) error {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// ConfigError reports an invalid or missing setting.
func ConfigError(op, format string, args ...any) error {
	return &PipelineError{Kind: KindConfig, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first PipelineError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

var (
	// ErrNoDocuments means the document directory held no usable sources.
	ErrNoDocuments = errors.New("no source documents found")

	// ErrAllBatchesFailed means ingestion stored nothing.
	ErrAllBatchesFailed = errors.New("all ingestion batches failed")

	// ErrEngineUnavailable means the pipeline could not be constructed.
	ErrEngineUnavailable = errors.New("rag engine is not initialized")
)

package failure

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	LoadError         Kind = "LoadError"
	ChunkError        Kind = "ChunkError"
	TransientAPIError Kind = "TransientAPIError"
	TerminalAPIError  Kind = "TerminalAPIError"
	ParseError        Kind = "ParseError"
	AggregationGap    Kind = "AggregationGap"
	Cancelled         Kind = "Cancelled"
	ConfigError       Kind = "ConfigError"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrNoText            = errors.New("no usable text")
)

// Error is the typed error carried across package boundaries. Op names the
// operation that failed ("ingest.load", "extraction.extract", ...).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of the first *Error in err's chain. Context
// cancellation without a typed wrapper maps to Cancelled.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled, true
	}
	return "", false
}

func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Message strips the op/kind prefix for user-facing summaries.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Err != nil {
		return fe.Err.Error()
	}
	return err.Error()
}

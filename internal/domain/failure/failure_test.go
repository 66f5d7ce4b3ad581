package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("pipeline: %w", New(LoadError, "ingest.load", ErrNoText))

	tests := []struct {
		name   string
		err    error
		want   Kind
		wantOk bool
	}{
		{"nil", nil, "", false},
		{"plain", errors.New("boom"), "", false},
		{"direct", New(ParseError, "parse", errors.New("bad json")), ParseError, true},
		{"wrapped", wrapped, LoadError, true},
		{"context cancel", context.Canceled, Cancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KindOf(tt.err)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("KindOf() = %v,%v; want %v,%v", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestError_UnwrapSentinel(t *testing.T) {
	err := New(LoadError, "ingest.load", fmt.Errorf("%w: .png", ErrUnsupportedFormat))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Error("sentinel lost through Error wrapper")
	}
	if !Is(err, LoadError) {
		t.Error("Is(LoadError) = false")
	}
	if got := Message(err); got != "unsupported format: .png" {
		t.Errorf("Message() = %q", got)
	}
}

func TestError_String(t *testing.T) {
	err := Newf(TerminalAPIError, "extraction.extract", "status %d", 401)
	if got := err.Error(); got != "extraction.extract: TerminalAPIError: status 401" {
		t.Errorf("Error() = %q", got)
	}
}

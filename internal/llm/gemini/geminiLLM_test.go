package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/akolanti/BidExtract/internal/llm"
	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantTransient bool
	}{
		{"quota", genai.APIError{Code: 429, Message: "quota"}, 429, true},
		{"wrapped unavailable", fmt.Errorf("call: %w", genai.APIError{Code: 503, Message: "down"}), 503, true},
		{"bad key", genai.APIError{Code: 400, Message: "API key not valid"}, 400, false},
		{"deadline", context.DeadlineExceeded, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr *llm.APIError
			if !errors.As(classify(tt.err), &apiErr) {
				t.Fatalf("classify(%v) is not an APIError", tt.err)
			}
			if apiErr.StatusCode != tt.wantStatus || apiErr.Transient != tt.wantTransient {
				t.Errorf("got status %d transient %v", apiErr.StatusCode, apiErr.Transient)
			}
			if apiErr.Provider != providerName {
				t.Errorf("Provider = %q", apiErr.Provider)
			}
		})
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/akolanti/BidExtract/internal/adapter"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

func writeJsonResponse(w http.ResponseWriter, statusCode int, data any, log *logger_i.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are already sent
		if log != nil {
			log.Error("Error encoding response", "error", err)
		}
	}
}

func (h *JobHandler) validateContext(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		h.logger.WithContext(ctx).Warn("context error", "error", err)
		return false
	}
	return true
}

func WriteErrorResponse(w http.ResponseWriter, httpCode int, id string, message string) {
	writeJsonResponse(w, httpCode, adapter.BadRequest(id, message, httpCode), nil)
}

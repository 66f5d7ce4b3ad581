package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/akolanti/BidExtract/internal/adapter"
	"github.com/akolanti/BidExtract/internal/api"
	"github.com/akolanti/BidExtract/internal/domain/jobModel"
	"github.com/akolanti/BidExtract/internal/job"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/go-chi/chi/v5"
)

const maxRequestBody = 1 << 20

type JobService interface {
	Submit(ctx context.Context, paths []string) (jobModel.Job, error)
	GetJob(ctx context.Context, id string) (jobModel.Job, bool)
}

type JobHandler struct {
	service JobService
	logger  *logger_i.Logger
}

func NewJobHandler(service JobService) *JobHandler {
	return &JobHandler{service: service, logger: logger_i.NewLogger("RequestHandler")}
}

// Routes mounts the run API on r.
func (h *JobHandler) Routes(r chi.Router) {
	r.Post("/runs", h.PostRunHandler)
	r.Get("/status/{id}", h.GetStatusHandler)
}

// PostRunHandler queues a batch over server-side paths and answers 202 with
// the job id to poll.
func (h *JobHandler) PostRunHandler(w http.ResponseWriter, r *http.Request) {
	if !h.validateContext(r.Context()) {
		return
	}
	log := h.logger.WithContext(r.Context())

	var req api.RunRequest
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Error("Couldn't close the run request reader", "error", err)
		}
	}(r.Body)
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		log.Warn("Bad run request", "error", err)
		WriteErrorResponse(w, http.StatusBadRequest, "", "Bad Request")
		return
	}

	created, err := h.service.Submit(r.Context(), req.Paths)
	switch {
	case errors.Is(err, job.ErrShuttingDown):
		WriteErrorResponse(w, http.StatusServiceUnavailable, "", err.Error())
		return
	case err != nil:
		log.Warn("run rejected", "error", err)
		WriteErrorResponse(w, http.StatusBadRequest, "", err.Error())
		return
	}
	writeJsonResponse(w, http.StatusAccepted, adapter.ToInitJobResponse(created), log)
}

func (h *JobHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !h.validateContext(r.Context()) {
		return
	}
	id := chi.URLParam(r, "id")
	result, isFound := h.service.GetJob(r.Context(), id)
	if !isFound {
		WriteErrorResponse(w, http.StatusNotFound, id, "Job not found")
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToAPIResponse(result), h.logger.WithContext(r.Context()))
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/tastythames/credcheck/internal/batch"
)

type StartRequest struct {
	Recipient string `json:"recipient,omitempty"`
}

type StartResponse struct {
	Owner   string `json:"owner"`
	Outcome string `json:"outcome"`
	JobID   string `json:"job_id,omitempty"`
	Targets int    `json:"targets,omitempty"`
	Error   string `json:"error,omitempty"`
}

type BatchResponse struct {
	Owner     string `json:"owner"`
	JobID     string `json:"job_id"`
	State     string `json:"state"`
	Targets   int    `json:"targets"`
	Workers   int    `json:"workers"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
	Dropped   uint64 `json:"notifications_dropped"`
}

type CancelResponse struct {
	Owner   string `json:"owner"`
	Stopped bool   `json:"stopped"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	dispatcher *batch.Dispatcher
	logger     *slog.Logger
}

// startBatch handles POST /api/v1/batches/{owner}.
func (h *handlers) startBatch(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	outcome, job, err := h.dispatcher.Start(r.Context(), owner, batch.StartOptions{Recipient: req.Recipient})
	resp := StartResponse{Owner: owner, Outcome: outcome.String()}
	if err != nil {
		resp.Error = err.Error()
	}

	status := http.StatusOK
	switch outcome {
	case batch.OutcomeStarted:
		status = http.StatusAccepted
		resp.JobID = job.ID
		resp.Targets = job.Len()
	case batch.OutcomeAlreadyRunning:
		status = http.StatusConflict
	case batch.OutcomeFailed:
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

// getBatch handles GET /api/v1/batches/{owner}.
func (h *handlers) getBatch(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	job, ok := h.dispatcher.Registry().Job(owner)
	if !ok {
		respondError(w, http.StatusNotFound, "no active batch")
		return
	}
	respondJSON(w, http.StatusOK, batchResponse(job))
}

// listBatches handles GET /api/v1/batches.
func (h *handlers) listBatches(w http.ResponseWriter, _ *http.Request) {
	jobs := h.dispatcher.Registry().Jobs()
	ret := make([]BatchResponse, 0, len(jobs))
	for _, j := range jobs {
		ret = append(ret, batchResponse(j))
	}
	sort.Slice(ret, func(a, b int) bool { return ret[a].Owner < ret[b].Owner })
	respondJSON(w, http.StatusOK, ret)
}

// cancelBatch handles DELETE /api/v1/batches/{owner}.
func (h *handlers) cancelBatch(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	stopped := h.dispatcher.Cancel(r.Context(), owner)
	status := http.StatusOK
	if !stopped {
		status = http.StatusNotFound
	}
	respondJSON(w, status, CancelResponse{Owner: owner, Stopped: stopped})
}

func batchResponse(j *batch.Job) BatchResponse {
	st := j.Stats()
	return BatchResponse{
		Owner:     j.Owner(),
		JobID:     j.ID,
		State:     j.State().String(),
		Targets:   j.Len(),
		Workers:   j.Width(),
		Succeeded: st.Succeeded,
		Failed:    st.Failed,
		Dropped:   st.Outbox.Dropped,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg})
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"server/internal/jobs"
)

type workerProcessRequest struct {
	jobs.Payload
	Caption string `json:"caption"` // legacy queued jobs still send caption
}

// WorkerProcess is the task-queue callback: it runs the pipeline executor
// for one job. The queue retries non-2xx responses, so processing failures
// that already produced a terminal record still return 200.
func (a *App) WorkerProcess(w http.ResponseWriter, r *http.Request) {
	var req workerProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Outcome == "" {
		req.Outcome = req.Caption
	}

	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"job_id", req.JobID},
		{"title", req.Title},
		{"outcome", req.Outcome},
		{"original_link", req.OriginalLink},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	// A queue-side disconnect cancels the request context; the pipeline
	// must not be aborted mid-run or the cancellation would be written as
	// the job's terminal error.
	if err := a.Jobs.ProcessJob(context.WithoutCancel(r.Context()), req.Payload); err != nil {
		a.Logger.Error().Err(err).Str("job_id", req.JobID).Msg("handlers: job processing failed")
	}

	a.json(w, http.StatusOK, map[string]string{"status": "processing", "job_id": req.JobID})
}

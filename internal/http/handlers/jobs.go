package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type createJobRequest struct {
	Title              string   `json:"title"`
	Outcome            string   `json:"outcome"`
	Caption            string   `json:"caption"` // legacy alias for outcome
	OriginalLink       string   `json:"original_link"`
	SourceImageURL     string   `json:"source_image_url"`
	DurationSeconds    int      `json:"duration_seconds"`
	Style              string   `json:"style"`
	CharacterImageURLs []string `json:"character_image_urls"`
}

type createJobResponse struct {
	JobID string `json:"job_id"`
}

func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Outcome == "" {
		req.Outcome = req.Caption
	}

	jobID, err := a.Jobs.CreateJob(r.Context(), domain.CreateJobRequest{
		Title:              req.Title,
		Outcome:            req.Outcome,
		OriginalLink:       req.OriginalLink,
		SourceImageURL:     req.SourceImageURL,
		DurationSeconds:    req.DurationSeconds,
		Style:              req.Style,
		CharacterImageURLs: req.CharacterImageURLs,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: job creation failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}

	a.json(w, http.StatusOK, createJobResponse{JobID: jobID})
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}

	view, err := a.Jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: status lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve status")
		return
	}

	a.json(w, http.StatusOK, view)
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/providers/veo"
)

// ServiceOptions configures the job orchestration service.
type ServiceOptions struct {
	Store   Store
	Backend Backend
	Logger  zerolog.Logger

	// FetchClient fetches caller-supplied images. Defaults to a client
	// with a 15 second timeout.
	FetchClient *http.Client

	// PollInterval and PollMaxAttempts drive the executor's own
	// completion polling. PollMaxAttempts of zero disables it; the job
	// then completes through status-triggered reconciliation only.
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Service orchestrates the job lifecycle: creation and dispatch, the
// pipeline executor that drives pending -> processing -> done|error, and
// the status resolver that reconciles stored state against the backend
// operation on every client poll.
type Service struct {
	store           Store
	backend         Backend
	dispatcher      Dispatcher
	logger          zerolog.Logger
	fetchClient     *http.Client
	pollInterval    time.Duration
	pollMaxAttempts int
}

func NewService(opts ServiceOptions) *Service {
	fetchClient := opts.FetchClient
	if fetchClient == nil {
		fetchClient = &http.Client{Timeout: 15 * time.Second}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Service{
		store:           opts.Store,
		backend:         opts.Backend,
		logger:          opts.Logger,
		fetchClient:     fetchClient,
		pollInterval:    pollInterval,
		pollMaxAttempts: opts.PollMaxAttempts,
	}
}

// UseDispatcher injects the active dispatch strategy. Called once at
// startup; the local strategy needs the service constructed first.
func (s *Service) UseDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// CreateJob validates the request, persists the initial pending record and
// hands the job to the active dispatch strategy. It returns the job id
// without waiting for processing to start.
func (s *Service) CreateJob(ctx context.Context, req domain.CreateJobRequest) (string, error) {
	if err := req.Normalize(); err != nil {
		return "", err
	}
	if s.dispatcher == nil {
		return "", domain.ErrNoDispatcher
	}

	jobID := uuid.NewString()
	now := time.Now().UTC()
	rec := &domain.JobRecord{
		JobID:              jobID,
		Status:             domain.JobStatusPending,
		Title:              req.Title,
		Outcome:            req.Outcome,
		OriginalLink:       req.OriginalLink,
		SourceImageURL:     req.SourceImageURL,
		DurationSeconds:    req.DurationSeconds,
		Style:              domain.Style(req.Style),
		CharacterImageURLs: req.CharacterImageURLs,
		JobStartTime:       now,
	}
	s.saveRecord(ctx, rec)

	payload := Payload{
		JobID:              jobID,
		Title:              req.Title,
		Outcome:            req.Outcome,
		OriginalLink:       req.OriginalLink,
		SourceImageURL:     req.SourceImageURL,
		DurationSeconds:    req.DurationSeconds,
		Style:              req.Style,
		CharacterImageURLs: req.CharacterImageURLs,
	}
	if err := s.dispatcher.Dispatch(ctx, payload); err != nil {
		return "", fmt.Errorf("dispatch job %s: %w", jobID, err)
	}

	s.logger.Info().Str("job_id", jobID).Msg("jobs: created")
	return jobID, nil
}

// ProcessJob is the pipeline executor. It drives one job from pending
// through image acquisition, upload and operation submission, then (when
// executor polling is enabled) to its terminal state. Every failure mode,
// panics included, ends in a terminal error write, never a crashed worker.
func (s *Service) ProcessJob(ctx context.Context, p Payload) (err error) {
	log := s.logger.With().Str("job_id", p.JobID).Logger()

	existing, loadErr := s.store.LoadJob(ctx, p.JobID)
	if loadErr != nil && !errors.Is(loadErr, domain.ErrNotFound) {
		log.Warn().Err(loadErr).Msg("jobs: could not load existing record")
	}
	if existing != nil && existing.Status.Terminal() {
		log.Info().Str("status", string(existing.Status)).Msg("jobs: already terminal, skipping")
		return nil
	}
	// At-least-once delivery can replay a job whose operation is already
	// submitted. The stored handle is immutable; resume from it instead of
	// re-running the pipeline and submitting a second operation.
	if existing != nil && existing.Status == domain.JobStatusProcessing && existing.OperationName != "" {
		log.Info().Str("operation", existing.OperationName).Msg("jobs: operation already submitted, resuming from checkpoint")
		if s.pollMaxAttempts > 0 {
			s.awaitCompletion(ctx, existing, log)
		}
		return nil
	}
	start := time.Now().UTC()
	if existing != nil && !existing.JobStartTime.IsZero() {
		start = existing.JobStartTime
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			s.failJob(ctx, p, start, err, log)
		}
	}()

	rec, err := s.runPipeline(ctx, p, start, log)
	if err != nil {
		s.failJob(ctx, p, start, err, log)
		return err
	}

	if s.pollMaxAttempts > 0 {
		s.awaitCompletion(ctx, rec, log)
	}
	return nil
}

// runPipeline performs the pending -> processing side effects in order:
// resolve a starting image, persist it, submit the generation request and
// checkpoint the operation handle. From the checkpoint on, the job is
// resumable purely from stored state.
func (s *Service) runPipeline(ctx context.Context, p Payload, start time.Time, log zerolog.Logger) (*domain.JobRecord, error) {
	if p.Outcome == "" {
		return nil, fmt.Errorf("outcome is required")
	}
	style := domain.NormalizeStyle(p.Style)

	var sourceImage []byte
	if p.SourceImageURL != "" {
		data, err := fetchImage(ctx, s.fetchClient, p.SourceImageURL)
		if err != nil {
			log.Warn().Err(err).Msg("jobs: source image unusable, generating starting frame instead")
		} else {
			log.Info().Int("bytes", len(data)).Msg("jobs: using provided source image")
			sourceImage = data
		}
	}

	if sourceImage == nil {
		prompt := buildImagePrompt(p.Title, p.Outcome, p.OriginalLink, style)
		data, err := s.backend.GenerateStartingFrame(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("generate starting frame: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("no starting frame produced and no usable source image provided")
		}
		log.Info().Int("bytes", len(data)).Msg("jobs: starting frame generated")
		sourceImage = data
	}

	imageURI, err := s.store.UploadImage(ctx, p.JobID, 1, sourceImage)
	if err != nil {
		return nil, fmt.Errorf("persist starting image: %w", err)
	}

	var refs [][]byte
	if len(p.CharacterImageURLs) > 0 {
		urls := p.CharacterImageURLs
		if len(urls) > domain.MaxCharacterImages {
			urls = urls[:domain.MaxCharacterImages]
		}
		refs = fetchReferenceImages(ctx, s.fetchClient, urls)
		log.Info().Int("requested", len(urls)).Int("resolved", len(refs)).Msg("jobs: reference images fetched")
	}

	duration := p.DurationSeconds
	if duration <= 0 || len(refs) > 0 {
		duration = domain.DefaultDurationSeconds
	}

	operationName, err := s.backend.SubmitVideo(ctx, veo.SubmitRequest{
		Prompt:          buildVideoPrompt(p.Title, p.Outcome, p.OriginalLink, style),
		Image:           sourceImage,
		ReferenceImages: refs,
		DurationSeconds: duration,
		NegativePrompt:  negativePrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("submit video generation: %w", err)
	}

	rec := &domain.JobRecord{
		JobID:              p.JobID,
		Status:             domain.JobStatusProcessing,
		Title:              p.Title,
		Outcome:            p.Outcome,
		OriginalLink:       p.OriginalLink,
		SourceImageURL:     p.SourceImageURL,
		DurationSeconds:    duration,
		Style:              style,
		CharacterImageURLs: p.CharacterImageURLs,
		JobStartTime:       start,
		ImageURI:           imageURI,
		OperationName:      operationName,
	}
	s.saveRecord(ctx, rec)
	log.Info().Str("operation", operationName).Msg("jobs: video processing started")
	return rec, nil
}

// awaitCompletion polls the operation at a fixed interval up to the attempt
// ceiling. Exceeding the ceiling is a timeout error, not an infinite wait.
func (s *Service) awaitCompletion(ctx context.Context, rec *domain.JobRecord, log zerolog.Logger) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.pollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Warn().Err(ctx.Err()).Msg("jobs: polling abandoned, resolver will reconcile")
			return
		case <-ticker.C:
		}

		result, err := s.backend.PollOperation(ctx, rec.OperationName)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("jobs: poll failed, retrying")
			continue
		}
		if !result.Done {
			continue
		}
		if result.ErrorMessage != "" {
			s.writeError(ctx, rec, result.ErrorMessage, log)
			return
		}
		s.writeDone(ctx, rec, result.VideoURI, log)
		return
	}

	s.writeError(ctx, rec, fmt.Sprintf("video generation timed out after %d polling attempts", s.pollMaxAttempts), log)
}

// GetStatus resolves the client-facing status of a job. Terminal records
// return directly. A processing record with an operation handle triggers a
// single fresh poll of the backend; observed completion is written back so
// the next poll is served from storage even if the executor died. A
// still-running operation returns waiting without mutating the record.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*domain.StatusView, error) {
	rec, err := s.store.LoadJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("jobs: status load failed")
		}
		return nil, domain.ErrNotFound
	}

	log := s.logger.With().Str("job_id", jobID).Logger()

	switch rec.Status {
	case domain.JobStatusDone, domain.JobStatusError:
		return s.statusView(rec), nil

	case domain.JobStatusProcessing:
		if rec.OperationName == "" {
			return s.statusView(rec), nil
		}
		result, err := s.backend.PollOperation(ctx, rec.OperationName)
		if err != nil {
			// Transient poll failure reads as still waiting; the next
			// client poll retries reconciliation.
			log.Warn().Err(err).Msg("jobs: reconciliation poll failed")
			return s.statusView(rec), nil
		}
		if !result.Done {
			return s.statusView(rec), nil
		}
		if result.ErrorMessage != "" {
			rec = s.writeError(ctx, rec, result.ErrorMessage, log)
		} else {
			rec = s.writeDone(ctx, rec, result.VideoURI, log)
		}
		return s.statusView(rec), nil

	default: // pending, queued
		return s.statusView(rec), nil
	}
}

// writeDone transitions a record into done, deriving the client URL from
// the backend's video reference. Racing writers converge on the same
// content, so last writer wins is acceptable here.
func (s *Service) writeDone(ctx context.Context, rec *domain.JobRecord, videoURI string, log zerolog.Logger) *domain.JobRecord {
	end := time.Now().UTC()
	rec.Status = domain.JobStatusDone
	rec.VideoURI = videoURI
	rec.VideoURL = s.store.PublicURL(videoURI)
	rec.JobEndTime = &end
	s.saveRecord(ctx, rec)
	log.Info().Str("video_uri", videoURI).Msg("jobs: video complete")
	return rec
}

func (s *Service) writeError(ctx context.Context, rec *domain.JobRecord, message string, log zerolog.Logger) *domain.JobRecord {
	end := time.Now().UTC()
	rec.Status = domain.JobStatusError
	rec.Error = message
	rec.JobEndTime = &end
	s.saveRecord(ctx, rec)
	log.Error().Str("error", message).Msg("jobs: job failed")
	return rec
}

// failJob converts a pipeline failure into a terminal error record while
// preserving previously stored fields for client-facing status.
func (s *Service) failJob(ctx context.Context, p Payload, start time.Time, cause error, log zerolog.Logger) {
	rec, err := s.store.LoadJob(ctx, p.JobID)
	if err != nil || rec == nil {
		rec = &domain.JobRecord{
			JobID:           p.JobID,
			Title:           p.Title,
			Outcome:         p.Outcome,
			OriginalLink:    p.OriginalLink,
			SourceImageURL:  p.SourceImageURL,
			DurationSeconds: p.DurationSeconds,
			Style:           domain.NormalizeStyle(p.Style),
			JobStartTime:    start,
		}
	}
	if rec.Status.Terminal() {
		return
	}
	s.writeError(ctx, rec, cause.Error(), log)
}

// saveRecord persists best-effort: a failed write is logged and never
// escalated out of the state transition that produced it.
func (s *Service) saveRecord(ctx context.Context, rec *domain.JobRecord) {
	if err := s.store.SaveJob(ctx, rec.JobID, rec); err != nil {
		s.logger.Error().Err(err).Str("job_id", rec.JobID).Str("status", string(rec.Status)).Msg("jobs: failed to persist record")
	}
}

func (s *Service) statusView(rec *domain.JobRecord) *domain.StatusView {
	view := &domain.StatusView{
		OriginalLink: rec.OriginalLink,
		JobStartTime: startTimePtr(rec),
		JobEndTime:   rec.JobEndTime,
	}
	if rec.ImageURI != "" {
		view.ImageURL = s.store.PublicURL(rec.ImageURI)
	}

	switch rec.Status {
	case domain.JobStatusDone:
		view.Status = domain.ViewStatusDone
		view.VideoURL = rec.VideoURL
		if view.VideoURL == "" && rec.VideoURI != "" {
			view.VideoURL = s.store.PublicURL(rec.VideoURI)
		}
	case domain.JobStatusError:
		view.Status = domain.ViewStatusError
		view.Error = rec.Error
	default:
		view.Status = domain.ViewStatusWaiting
	}
	return view
}

func startTimePtr(rec *domain.JobRecord) *time.Time {
	if rec.JobStartTime.IsZero() {
		return nil
	}
	t := rec.JobStartTime
	return &t
}

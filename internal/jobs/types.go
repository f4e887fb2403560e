package jobs

import (
	"context"

	"server/internal/domain"
	"server/internal/providers/veo"
)

// Payload is the unit of work handed to a dispatch strategy. It carries the
// immutable creation inputs so a worker can process the job without loading
// the record first (the stored record still wins for job_start_time).
type Payload struct {
	JobID              string   `json:"job_id"`
	Title              string   `json:"title"`
	Outcome            string   `json:"outcome"`
	OriginalLink       string   `json:"original_link"`
	SourceImageURL     string   `json:"source_image_url,omitempty"`
	DurationSeconds    int      `json:"duration_seconds,omitempty"`
	Style              string   `json:"style,omitempty"`
	CharacterImageURLs []string `json:"character_image_urls,omitempty"`
}

// Store is the durable record store contract. Each job owns a distinct key,
// so implementations need no cross-job locking.
type Store interface {
	SaveJob(ctx context.Context, jobID string, rec *domain.JobRecord) error
	LoadJob(ctx context.Context, jobID string) (*domain.JobRecord, error)
	UploadImage(ctx context.Context, jobID string, index int, data []byte) (string, error)
	PublicURL(uri string) string
}

// Backend is the external generation capability: starting frames, video
// submission, and operation polling.
type Backend interface {
	GenerateStartingFrame(ctx context.Context, prompt string) ([]byte, error)
	SubmitVideo(ctx context.Context, req veo.SubmitRequest) (string, error)
	PollOperation(ctx context.Context, name string) (veo.OperationResult, error)
}

// Dispatcher gets a newly created job to a worker. Exactly one
// implementation is active per deployment.
type Dispatcher interface {
	Dispatch(ctx context.Context, p Payload) error
}

// Processor runs the pipeline for one job. Satisfied by *Service.
type Processor interface {
	ProcessJob(ctx context.Context, p Payload) error
}

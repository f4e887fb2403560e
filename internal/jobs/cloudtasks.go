package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	cloudtasks "google.golang.org/api/cloudtasks/v2"
)

// CloudTasksOptions names the queue and the worker endpoint tasks call back into.
type CloudTasksOptions struct {
	Project          string
	Location         string
	Queue            string
	WorkerServiceURL string
}

// CloudTasksDispatcher hands jobs to a Cloud Tasks push queue. The queue
// delivers each payload to the worker's /worker/process endpoint at least
// once; delivery and retry are the queue's responsibility.
type CloudTasksDispatcher struct {
	svc       *cloudtasks.Service
	queuePath string
	targetURL string
	logger    zerolog.Logger
}

func NewCloudTasksDispatcher(ctx context.Context, opts CloudTasksOptions, logger zerolog.Logger) (*CloudTasksDispatcher, error) {
	svc, err := cloudtasks.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create cloud tasks service: %w", err)
	}
	return &CloudTasksDispatcher{
		svc:       svc,
		queuePath: fmt.Sprintf("projects/%s/locations/%s/queues/%s", opts.Project, opts.Location, opts.Queue),
		targetURL: opts.WorkerServiceURL + "/worker/process",
		logger:    logger,
	}, nil
}

func (d *CloudTasksDispatcher) Dispatch(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	task := &cloudtasks.Task{
		HttpRequest: &cloudtasks.HttpRequest{
			HttpMethod: "POST",
			Url:        d.targetURL,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       base64.StdEncoding.EncodeToString(body),
		},
	}

	created, err := d.svc.Projects.Locations.Queues.Tasks.
		Create(d.queuePath, &cloudtasks.CreateTaskRequest{Task: task}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", p.JobID, err)
	}

	d.logger.Info().Str("job_id", p.JobID).Str("task", created.Name).Msg("dispatch: job enqueued to cloud tasks")
	return nil
}

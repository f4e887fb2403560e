package jobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/storage/v1"

	"server/internal/domain"
)

// GCSStore persists job records and starting-frame images as objects in a
// Google Cloud Storage bucket via the JSON API. Each job owns a distinct
// key, so concurrent access across jobs needs no coordination.
type GCSStore struct {
	svc    *storage.Service
	bucket string
	logger zerolog.Logger
}

// NewGCSStore builds a store on top of Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket string, logger zerolog.Logger) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	svc, err := storage.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	return &GCSStore{svc: svc, bucket: bucket, logger: logger}, nil
}

// SaveJob overwrites the full record document for jobID.
func (s *GCSStore) SaveJob(ctx context.Context, jobID string, rec *domain.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", jobID, err)
	}
	object := &storage.Object{Name: jobObjectPath(jobID)}
	_, err = s.svc.Objects.Insert(s.bucket, object).
		Media(bytes.NewReader(data), googleapi.ContentType("application/json")).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("upload job %s: %w", jobID, err)
	}
	s.logger.Debug().Str("job_id", jobID).Str("status", string(rec.Status)).Msg("jobstore: record saved")
	return nil
}

// LoadJob fetches the record for jobID. A missing object surfaces as
// domain.ErrNotFound, indistinguishable from an id that never existed.
func (s *GCSStore) LoadJob(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	resp, err := s.svc.Objects.Get(s.bucket, jobObjectPath(jobID)).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("download job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", jobID, err)
	}
	var rec domain.JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &rec, nil
}

// UploadImage stores a starting-frame image and returns its gs:// URI.
func (s *GCSStore) UploadImage(ctx context.Context, jobID string, index int, data []byte) (string, error) {
	path := imageObjectPath(jobID, index)
	object := &storage.Object{Name: path}
	_, err := s.svc.Objects.Insert(s.bucket, object).
		Media(bytes.NewReader(data), googleapi.ContentType("image/png")).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload image %s: %w", path, err)
	}
	uri := fmt.Sprintf("gs://%s/%s", s.bucket, path)
	s.logger.Debug().Str("job_id", jobID).Str("uri", uri).Int("bytes", len(data)).Msg("jobstore: image uploaded")
	return uri, nil
}

// PublicURL derives the client-consumable URL for a stored object URI.
func (s *GCSStore) PublicURL(uri string) string {
	return PublicURL(uri)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

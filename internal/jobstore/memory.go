package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"server/internal/domain"
)

// MemoryStore keeps job records and images in process memory. It backs
// deployments that run without a bucket and doubles as the store used in
// tests. Records are stored as marshaled bytes so callers never share a
// mutable document.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
	images  map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
		images:  make(map[string][]byte),
	}
}

func (s *MemoryStore) SaveJob(ctx context.Context, jobID string, rec *domain.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", jobID, err)
	}
	s.mu.Lock()
	s.records[jobID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadJob(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	s.mu.RLock()
	data, ok := s.records[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	var rec domain.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &rec, nil
}

func (s *MemoryStore) UploadImage(ctx context.Context, jobID string, index int, data []byte) (string, error) {
	path := imageObjectPath(jobID, index)
	s.mu.Lock()
	s.images[path] = append([]byte(nil), data...)
	s.mu.Unlock()
	return "memory://" + path, nil
}

// PublicURL passes memory URIs through unchanged; they are only meaningful
// within the process that produced them.
func (s *MemoryStore) PublicURL(uri string) string {
	return PublicURL(uri)
}

// Image returns a stored image by job and index, for tests and local serving.
func (s *MemoryStore) Image(jobID string, index int) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.images[imageObjectPath(jobID, index)]
	return data, ok
}

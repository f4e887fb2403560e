package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/jobstore"
	"server/internal/providers/veo"
)

// stubBackend completes every submitted operation immediately.
type stubBackend struct {
	videoURI string
	errMsg   string

	submitCtxErr error
}

func (b *stubBackend) GenerateStartingFrame(ctx context.Context, prompt string) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, nil
}

func (b *stubBackend) SubmitVideo(ctx context.Context, req veo.SubmitRequest) (string, error) {
	b.submitCtxErr = ctx.Err()
	return "operations/stub", nil
}

func (b *stubBackend) PollOperation(ctx context.Context, name string) (veo.OperationResult, error) {
	return veo.OperationResult{Done: true, VideoURI: b.videoURI, ErrorMessage: b.errMsg}, nil
}

type noopDispatcher struct{ dispatched int }

func (d *noopDispatcher) Dispatch(ctx context.Context, p jobs.Payload) error {
	d.dispatched++
	return nil
}

func newTestRouters(t *testing.T) (api http.Handler, worker http.Handler, store *jobstore.MemoryStore) {
	t.Helper()
	store = jobstore.NewMemoryStore()
	svc := jobs.NewService(jobs.ServiceOptions{
		Store:        store,
		Backend:      &stubBackend{videoURI: "gs://b/out.mp4"},
		Logger:       zerolog.Nop(),
		PollInterval: time.Millisecond,
	})
	svc.UseDispatcher(&noopDispatcher{})

	app := handlers.NewApp(svc, zerolog.Nop())
	cfg := &infra.Config{RateLimitPerMin: 1000}
	return httpapi.NewAPIRouter(app, zerolog.Nop(), cfg), httpapi.NewWorkerRouter(app, zerolog.Nop()), store
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	api, _, _ := newTestRouters(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestJobsCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantInBody string
	}{
		{
			name:     "valid request",
			body:     `{"title":"T","outcome":"O","original_link":"http://a"}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "legacy caption alias",
			body:     `{"title":"T","caption":"O","original_link":"http://a"}`,
			wantCode: http.StatusOK,
		},
		{
			name:       "missing outcome",
			body:       `{"title":"T","original_link":"http://a"}`,
			wantCode:   http.StatusBadRequest,
			wantInBody: "outcome",
		},
		{
			name:       "missing everything",
			body:       `{}`,
			wantCode:   http.StatusBadRequest,
			wantInBody: "required",
		},
		{
			name:       "malformed json",
			body:       `{"title":`,
			wantCode:   http.StatusBadRequest,
			wantInBody: "invalid payload",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api, _, store := newTestRouters(t)
			rr := postJSON(t, api, "/jobs/create", tc.body)

			if rr.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tc.wantCode, rr.Body.String())
			}
			if tc.wantInBody != "" && !strings.Contains(rr.Body.String(), tc.wantInBody) {
				t.Fatalf("body = %s, want containing %q", rr.Body.String(), tc.wantInBody)
			}
			if tc.wantCode != http.StatusOK {
				return
			}

			var resp struct {
				JobID string `json:"job_id"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.JobID == "" {
				t.Fatal("no job_id returned")
			}
			rec, err := store.LoadJob(context.Background(), resp.JobID)
			if err != nil {
				t.Fatalf("LoadJob() error = %v", err)
			}
			if rec.Status != domain.JobStatusPending {
				t.Fatalf("record status = %q", rec.Status)
			}
			if rec.Outcome != "O" {
				t.Fatalf("outcome = %q", rec.Outcome)
			}
		})
	}
}

func TestJobStatusEndpoint(t *testing.T) {
	api, _, store := newTestRouters(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/status/missing-id", nil)
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d", rr.Code)
	}

	_ = store.SaveJob(context.Background(), "j1", &domain.JobRecord{
		JobID:        "j1",
		Status:       domain.JobStatusPending,
		OriginalLink: "http://a",
		JobStartTime: time.Now().UTC(),
	})

	req = httptest.NewRequest(http.MethodGet, "/jobs/status/j1", nil)
	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rr.Code, rr.Body.String())
	}

	var view domain.StatusView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Status != domain.ViewStatusWaiting {
		t.Fatalf("view status = %q, want waiting", view.Status)
	}
	if view.OriginalLink != "http://a" {
		t.Fatalf("original_link = %q", view.OriginalLink)
	}
}

func TestWorkerProcess(t *testing.T) {
	t.Run("missing fields rejected with names", func(t *testing.T) {
		_, worker, _ := newTestRouters(t)
		rr := postJSON(t, worker, "/worker/process", `{"title":"T"}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "missing required fields: job_id, outcome, original_link") {
			t.Fatalf("body = %s", rr.Body.String())
		}
	})

	t.Run("valid payload runs the pipeline", func(t *testing.T) {
		_, worker, store := newTestRouters(t)
		rr := postJSON(t, worker, "/worker/process",
			`{"job_id":"w1","title":"T","outcome":"O","original_link":"http://a"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d (body %s)", rr.Code, rr.Body.String())
		}

		rec, err := store.LoadJob(context.Background(), "w1")
		if err != nil {
			t.Fatalf("LoadJob() error = %v", err)
		}
		if rec.Status != domain.JobStatusProcessing {
			t.Fatalf("record status = %q, want processing with executor polling disabled", rec.Status)
		}
		if rec.OperationName != "operations/stub" {
			t.Fatalf("operation_name = %q", rec.OperationName)
		}
	})

	t.Run("canceled delivery does not abort the pipeline", func(t *testing.T) {
		store := jobstore.NewMemoryStore()
		backend := &stubBackend{videoURI: "gs://b/out.mp4"}
		svc := jobs.NewService(jobs.ServiceOptions{
			Store:        store,
			Backend:      backend,
			Logger:       zerolog.Nop(),
			PollInterval: time.Millisecond,
		})
		app := handlers.NewApp(svc, zerolog.Nop())
		worker := httpapi.NewWorkerRouter(app, zerolog.Nop())

		// The queue dropping the connection shows up as a canceled
		// request context. The pipeline must still run to its checkpoint.
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/worker/process",
			bytes.NewBufferString(`{"job_id":"w3","title":"T","outcome":"O","original_link":"http://a"}`))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(ctx)
		rr := httptest.NewRecorder()
		worker.ServeHTTP(rr, req)

		if backend.submitCtxErr != nil {
			t.Fatalf("submission context error = %v, want detached context", backend.submitCtxErr)
		}
		rec, err := store.LoadJob(context.Background(), "w3")
		if err != nil {
			t.Fatalf("LoadJob() error = %v", err)
		}
		if rec.Status != domain.JobStatusProcessing {
			t.Fatalf("record status = %q (error=%q), cancellation leaked into the pipeline", rec.Status, rec.Error)
		}
	})

	t.Run("legacy caption payload accepted", func(t *testing.T) {
		_, worker, store := newTestRouters(t)
		rr := postJSON(t, worker, "/worker/process",
			`{"job_id":"w2","title":"T","caption":"O","original_link":"http://a"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d (body %s)", rr.Code, rr.Body.String())
		}
		rec, err := store.LoadJob(context.Background(), "w2")
		if err != nil {
			t.Fatalf("LoadJob() error = %v", err)
		}
		if rec.Outcome != "O" {
			t.Fatalf("outcome = %q", rec.Outcome)
		}
	})
}

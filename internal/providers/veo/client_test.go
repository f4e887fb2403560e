package veo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

var pngHeader = append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 16)...)

func newFakeAPI(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{
		APIKey:           "test-key",
		BaseURL:          srv.URL,
		ImageModel:       "imagen-test",
		VideoModel:       "veo-test",
		OutputStorageURI: "gs://bucket/videos/",
		HTTPClient:       srv.Client(),
		Logger:           zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, srv
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatal("NewClient() accepted empty api key")
	}
}

func TestGenerateStartingFrame(t *testing.T) {
	client, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/imagen-test:predict" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("api key missing from query")
		}

		var req imagePredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Instances) != 1 || req.Instances[0].Prompt != "a stadium" {
			t.Errorf("instances = %+v", req.Instances)
		}
		if req.Parameters.AspectRatio != "9:16" {
			t.Errorf("aspect ratio = %q", req.Parameters.AspectRatio)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"predictions": []map[string]string{{
				"bytesBase64Encoded": base64.StdEncoding.EncodeToString(pngHeader),
				"mimeType":           "image/png",
			}},
		})
	})

	data, err := client.GenerateStartingFrame(context.Background(), "a stadium")
	if err != nil {
		t.Fatalf("GenerateStartingFrame() error = %v", err)
	}
	if len(data) != len(pngHeader) {
		t.Fatalf("frame bytes = %d, want %d", len(data), len(pngHeader))
	}
}

func TestGenerateStartingFrameEmptyPredictions(t *testing.T) {
	client, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[]}`))
	})

	_, err := client.GenerateStartingFrame(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "no images returned") {
		t.Fatalf("error = %v, want no images returned", err)
	}
}

func TestSubmitVideo(t *testing.T) {
	client, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/veo-test:predictLongRunning" {
			t.Errorf("path = %s", r.URL.Path)
		}

		var req videoPredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		inst := req.Instances[0]
		if inst.Image == nil || inst.Image.MimeType != "image/png" {
			t.Errorf("image = %+v", inst.Image)
		}
		if len(inst.ReferenceImages) != 1 || inst.ReferenceImages[0].ReferenceType != "asset" {
			t.Errorf("reference images = %+v", inst.ReferenceImages)
		}
		if req.Parameters.DurationSeconds != 8 {
			t.Errorf("duration = %d", req.Parameters.DurationSeconds)
		}
		if req.Parameters.StorageURI != "gs://bucket/videos/" {
			t.Errorf("storage uri = %q", req.Parameters.StorageURI)
		}
		if req.Parameters.NegativePrompt != "blurry" {
			t.Errorf("negative prompt = %q", req.Parameters.NegativePrompt)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"name": "operations/abc123", "done": false})
	})

	name, err := client.SubmitVideo(context.Background(), SubmitRequest{
		Prompt:          "goal celebration",
		Image:           pngHeader,
		ReferenceImages: [][]byte{pngHeader},
		DurationSeconds: 8,
		NegativePrompt:  "blurry",
	})
	if err != nil {
		t.Fatalf("SubmitVideo() error = %v", err)
	}
	if name != "operations/abc123" {
		t.Fatalf("operation name = %q", name)
	}
}

func TestSubmitVideoRequiresImage(t *testing.T) {
	client, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached the backend without an image")
	})

	if _, err := client.SubmitVideo(context.Background(), SubmitRequest{Prompt: "p"}); err == nil {
		t.Fatal("SubmitVideo() accepted an empty image")
	}
}

func TestPollOperation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want OperationResult
	}{
		{
			name: "still running",
			body: `{"name":"operations/x","done":false}`,
			want: OperationResult{},
		},
		{
			name: "done with video",
			body: `{"name":"operations/x","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"gs://b/v.mp4"}}]}}}`,
			want: OperationResult{Done: true, VideoURI: "gs://b/v.mp4"},
		},
		{
			name: "done with error",
			body: `{"name":"operations/x","done":true,"error":{"code":8,"message":"quota exceeded"}}`,
			want: OperationResult{Done: true, ErrorMessage: "quota exceeded"},
		},
		{
			name: "done with nothing",
			body: `{"name":"operations/x","done":true}`,
			want: OperationResult{Done: true, ErrorMessage: "generation completed but no video was produced"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/operations/x" {
					t.Errorf("path = %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tc.body))
			})

			got, err := client.PollOperation(context.Background(), "operations/x")
			if err != nil {
				t.Fatalf("PollOperation() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("result = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestInvokeSurfacesAPIErrors(t *testing.T) {
	client, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"rate limited"}}`))
	})

	_, err := client.GenerateStartingFrame(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error = %v, want api message surfaced", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("error = %v, want status code", err)
	}
}

func TestInvokeSurfacesNonJSONErrorBody(t *testing.T) {
	client, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded\n"))
	})

	_, err := client.GenerateStartingFrame(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "upstream exploded") {
		t.Fatalf("error = %v, want the full raw body surfaced", err)
	}
}

func TestSniffMime(t *testing.T) {
	if got := sniffMime(pngHeader); got != "image/png" {
		t.Fatalf("sniffMime(png) = %q", got)
	}
	if got := sniffMime([]byte("definitely text")); got != "image/png" {
		t.Fatalf("sniffMime(text) = %q, want png fallback", got)
	}
}

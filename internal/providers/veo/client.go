package veo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// Options controls how the generation client is configured.
type Options struct {
	APIKey           string
	BaseURL          string
	ImageModel       string
	VideoModel       string
	OutputStorageURI string // gs:// prefix for generated videos
	HTTPClient       *http.Client
	Logger           zerolog.Logger
}

// Client is a thin HTTP facade over the generative API: Imagen for starting
// frames and Veo for video generation as a long-running operation. Callers
// treat operation names as opaque identifiers and poll until done.
type Client struct {
	apiKey           string
	baseURL          string
	imageModel       string
	videoModel       string
	outputStorageURI string
	httpClient       *http.Client
	logger           zerolog.Logger
}

// SubmitRequest carries everything a video generation submission needs.
type SubmitRequest struct {
	Prompt          string
	Image           []byte
	ReferenceImages [][]byte
	DurationSeconds int
	NegativePrompt  string
}

// OperationResult is the normalized state of a polled operation. Exactly one
// of VideoURI or ErrorMessage is set when Done is true.
type OperationResult struct {
	Done         bool
	VideoURI     string
	ErrorMessage string
}

// NewClient constructs a client with sane defaults. Callers may provide a
// nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "imagen-3.0-generate-002"
	}
	videoModel := opts.VideoModel
	if videoModel == "" {
		videoModel = "veo-3.1-generate-preview"
	}

	return &Client{
		apiKey:           strings.TrimSpace(opts.APIKey),
		baseURL:          baseURL,
		imageModel:       imageModel,
		videoModel:       videoModel,
		outputStorageURI: opts.OutputStorageURI,
		httpClient:       httpClient,
		logger:           opts.Logger,
	}, nil
}

type inlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

type referenceImage struct {
	Image         inlineImage `json:"image"`
	ReferenceType string      `json:"referenceType,omitempty"`
}

type imagePredictRequest struct {
	Instances  []imageInstance `json:"instances"`
	Parameters imageParameters `json:"parameters"`
}

type imageInstance struct {
	Prompt string `json:"prompt"`
}

type imageParameters struct {
	SampleCount    int    `json:"sampleCount,omitempty"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
	OutputMimeType string `json:"outputMimeType,omitempty"`
}

type imagePredictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

type videoPredictRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type videoInstance struct {
	Prompt          string           `json:"prompt"`
	Image           *inlineImage     `json:"image,omitempty"`
	ReferenceImages []referenceImage `json:"referenceImages,omitempty"`
}

type videoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	NegativePrompt  string `json:"negativePrompt,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	StorageURI      string `json:"storageUri,omitempty"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse *struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// GenerateStartingFrame produces a 9:16 PNG starting frame from a text prompt.
func (c *Client) GenerateStartingFrame(ctx context.Context, prompt string) ([]byte, error) {
	payload := imagePredictRequest{
		Instances: []imageInstance{{Prompt: prompt}},
		Parameters: imageParameters{
			SampleCount:    1,
			AspectRatio:    "9:16",
			OutputMimeType: "image/png",
		},
	}

	var response imagePredictResponse
	path := fmt.Sprintf("/models/%s:predict", url.PathEscape(c.imageModel))
	if err := c.invoke(ctx, http.MethodPost, path, payload, &response); err != nil {
		return nil, fmt.Errorf("generate starting frame: %w", err)
	}
	if len(response.Predictions) == 0 {
		return nil, fmt.Errorf("generate starting frame: no images returned")
	}

	data, err := base64.StdEncoding.DecodeString(response.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("decode starting frame: %w", err)
	}
	c.logger.Debug().Str("model", c.imageModel).Int("bytes", len(data)).Msg("veo: starting frame generated")
	return data, nil
}

// SubmitVideo submits a generation request and returns the operation name.
// The name is stable for the life of the operation and safe to persist.
func (c *Client) SubmitVideo(ctx context.Context, req SubmitRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("submit video: starting image is required")
	}

	instance := videoInstance{
		Prompt: req.Prompt,
		Image: &inlineImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(req.Image),
			MimeType:           sniffMime(req.Image),
		},
	}
	for _, ref := range req.ReferenceImages {
		if len(ref) == 0 {
			continue
		}
		instance.ReferenceImages = append(instance.ReferenceImages, referenceImage{
			Image: inlineImage{
				BytesBase64Encoded: base64.StdEncoding.EncodeToString(ref),
				MimeType:           sniffMime(ref),
			},
			ReferenceType: "asset",
		})
	}

	duration := req.DurationSeconds
	if duration <= 0 {
		duration = 8
	}

	payload := videoPredictRequest{
		Instances: []videoInstance{instance},
		Parameters: videoParameters{
			AspectRatio:     "9:16",
			DurationSeconds: duration,
			NegativePrompt:  req.NegativePrompt,
			Resolution:      "1080p",
			StorageURI:      c.outputStorageURI,
		},
	}

	var response operationResponse
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(c.videoModel))
	if err := c.invoke(ctx, http.MethodPost, path, payload, &response); err != nil {
		return "", fmt.Errorf("submit video: %w", err)
	}
	if response.Name == "" {
		return "", fmt.Errorf("submit video: no operation name returned")
	}

	c.logger.Info().Str("model", c.videoModel).Str("operation", response.Name).Msg("veo: video generation submitted")
	return response.Name, nil
}

// PollOperation fetches the current state of a long-running operation by name.
func (c *Client) PollOperation(ctx context.Context, name string) (OperationResult, error) {
	var response operationResponse
	if err := c.invoke(ctx, http.MethodGet, "/"+strings.TrimLeft(name, "/"), nil, &response); err != nil {
		return OperationResult{}, fmt.Errorf("poll operation %s: %w", name, err)
	}

	if !response.Done {
		return OperationResult{}, nil
	}
	if response.Error != nil && response.Error.Message != "" {
		return OperationResult{Done: true, ErrorMessage: response.Error.Message}, nil
	}
	if r := response.Response; r != nil && r.GenerateVideoResponse != nil && len(r.GenerateVideoResponse.GeneratedSamples) > 0 {
		uri := r.GenerateVideoResponse.GeneratedSamples[0].Video.URI
		if uri != "" {
			return OperationResult{Done: true, VideoURI: uri}, nil
		}
	}
	return OperationResult{Done: true, ErrorMessage: "generation completed but no video was produced"}, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, payload, out any) error {
	endpoint := c.baseURL + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		// Read once; decoding directly from the body would swallow bytes
		// the raw fallback still needs.
		data, _ := io.ReadAll(resp.Body)
		var apiErr apiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("backend status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		if len(data) > 0 {
			return fmt.Errorf("backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("backend status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sniffMime(data []byte) string {
	mime := mimetype.Detect(data).String()
	if !strings.HasPrefix(mime, "image/") {
		return "image/png"
	}
	return mime
}

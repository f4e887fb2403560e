package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// JobStatus enumerates the lifecycle states of a video job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued" // legacy persisted alias of pending
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether no further transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Style selects the rendering flavor of the generated video.
type Style string

const (
	StyleAction   Style = "action"
	StyleAnimated Style = "animated"
)

var styleAliases = map[string]Style{
	"action":            StyleAction,
	"action_commentary": StyleAction,
	"realistic":         StyleAction,
	"sports":            StyleAction,
	"animated":          StyleAnimated,
	"animation":         StyleAnimated,
	"2d":                StyleAnimated,
	"fantasy":           StyleAnimated,
	"fantasy_ai_gen":    StyleAnimated,
	"vibe_music_edit":   StyleAnimated,
	"stylized":          StyleAnimated,
}

// NormalizeStyle maps free-form style input to a supported value.
func NormalizeStyle(s string) Style {
	if style, ok := styleAliases[strings.TrimSpace(strings.ToLower(s))]; ok {
		return style
	}
	return StyleAction
}

const (
	// DefaultDurationSeconds is the clip length requested from the backend
	// when the caller does not ask for one. The backend also requires
	// exactly this duration whenever reference images are attached.
	DefaultDurationSeconds = 8

	// MaxCharacterImages caps how many character reference URLs are
	// carried into generation.
	MaxCharacterImages = 3
)

// JobRecord is the single persistent entity of the pipeline: a flat JSON
// document keyed by JobID in the blob store. Every write replaces the full
// document, so writers must merge previously stored fields forward rather
// than truncating them.
type JobRecord struct {
	JobID              string     `json:"job_id"`
	Status             JobStatus  `json:"status"`
	Title              string     `json:"title"`
	Outcome            string     `json:"outcome"`
	OriginalLink       string     `json:"original_link"`
	SourceImageURL     string     `json:"source_image_url,omitempty"`
	DurationSeconds    int        `json:"duration_seconds,omitempty"`
	Style              Style      `json:"style,omitempty"`
	CharacterImageURLs []string   `json:"character_image_urls,omitempty"`
	JobStartTime       time.Time  `json:"job_start_time"`
	JobEndTime         *time.Time `json:"job_end_time,omitempty"`
	ImageURI           string     `json:"image_uri,omitempty"`
	OperationName      string     `json:"operation_name,omitempty"`
	VideoURI           string     `json:"video_uri,omitempty"`
	VideoURL           string     `json:"video_url,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// CreateJobRequest carries the immutable inputs captured at job creation.
type CreateJobRequest struct {
	Title              string
	Outcome            string
	OriginalLink       string
	SourceImageURL     string
	DurationSeconds    int
	Style              string
	CharacterImageURLs []string
}

// Normalize trims inputs, applies defaults and caps, and validates the
// required fields. It is called once at the creation boundary so the rest
// of the pipeline never re-derives aliases or defaults.
func (r *CreateJobRequest) Normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Outcome = strings.TrimSpace(r.Outcome)
	r.OriginalLink = strings.TrimSpace(r.OriginalLink)
	r.SourceImageURL = strings.TrimSpace(r.SourceImageURL)

	var missing []string
	if r.Title == "" {
		missing = append(missing, "title")
	}
	if r.Outcome == "" {
		missing = append(missing, "outcome")
	}
	if r.OriginalLink == "" {
		missing = append(missing, "original_link")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidRequest, strings.Join(missing, ", "))
	}

	if r.DurationSeconds <= 0 {
		r.DurationSeconds = DefaultDurationSeconds
	}
	r.Style = string(NormalizeStyle(r.Style))

	urls := make([]string, 0, len(r.CharacterImageURLs))
	for _, raw := range r.CharacterImageURLs {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		urls = append(urls, u)
		if len(urls) == MaxCharacterImages {
			break
		}
	}
	r.CharacterImageURLs = urls

	// Reference images constrain the backend to the default duration.
	if len(r.CharacterImageURLs) > 0 {
		r.DurationSeconds = DefaultDurationSeconds
	}
	return nil
}

// ValidImageURL reports whether raw is an absolute http(s) URL worth
// attempting to fetch.
func ValidImageURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// StatusView is the client-facing projection of a job record. Clients only
// ever see waiting, done or error; internal phase detail stays internal.
type StatusView struct {
	Status       string     `json:"status"`
	OriginalLink string     `json:"original_link,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	VideoURL     string     `json:"video_url,omitempty"`
	Error        string     `json:"error,omitempty"`
	JobStartTime *time.Time `json:"job_start_time,omitempty"`
	JobEndTime   *time.Time `json:"job_end_time,omitempty"`
}

const (
	ViewStatusWaiting = "waiting"
	ViewStatusDone    = "done"
	ViewStatusError   = "error"
)

package probe

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// Kind selects which protocol workflow a run drives.
type Kind string

const (
	KindTextToImage  Kind = "text_to_image"
	KindImageToImage Kind = "image_to_image"
	KindImageToVideo Kind = "image_to_video"
)

// ParseKind validates a workflow kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTextToImage, KindImageToImage, KindImageToVideo:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown workflow kind: %q", s)
	}
}

// ReferenceImage is caller-owned image input, passed read-only into
// workflows that need it.
type ReferenceImage struct {
	Data     []byte
	MimeType string
}

// Available reports whether the image carries usable bytes.
func (r ReferenceImage) Available() bool {
	return len(r.Data) > 0
}

// Base64 returns the image bytes in the transfer encoding the endpoints
// expect.
func (r ReferenceImage) Base64() string {
	return base64.StdEncoding.EncodeToString(r.Data)
}

// Input carries everything one workflow needs for one endpoint run.
type Input struct {
	Endpoint Endpoint
	Prompt   string
	Seed     int64
	Token    string
	Images   []ReferenceImage
}

// Result is a workflow's terminal payload.
type Result struct {
	Kind    ResultKind
	Payload string
}

// Reporter lets a workflow surface progress into the run's observable state.
// Log entries appear in issuance order; status transitions are visible to
// observers before the next step begins.
type Reporter interface {
	Logf(format string, args ...any)
	SetStatus(status Status)
}

// Workflow encodes one test type's exact sequence of network calls, payload
// shapes, and success detection.
type Workflow interface {
	Kind() Kind
	Run(ctx context.Context, in *Input, rep Reporter) (*Result, error)
}

// Settings are the fixed model/aspect constants and polling bounds shared by
// the workflow implementations.
type Settings struct {
	ImageModel       string
	ImageAspectRatio string
	VideoModel       string
	VideoAspectRatio string
	CropAspectRatio  string
	PollInterval     time.Duration
	MaxPollAttempts  int
}

// DefaultSettings returns the workflow constants used in production.
func DefaultSettings() Settings {
	return Settings{
		ImageModel:       "IMAGEN_3_5",
		ImageAspectRatio: "IMAGE_ASPECT_RATIO_LANDSCAPE",
		VideoModel:       "VEO_2_0",
		VideoAspectRatio: "VIDEO_ASPECT_RATIO_LANDSCAPE",
		CropAspectRatio:  AspectLandscape,
		PollInterval:     5 * time.Second,
		MaxPollAttempts:  120,
	}
}

func (s Settings) pollConfig() PollConfig {
	cfg := DefaultPollConfig()
	if s.PollInterval > 0 {
		cfg.Interval = s.PollInterval
	}
	if s.MaxPollAttempts > 0 {
		cfg.MaxAttempts = s.MaxPollAttempts
	}
	return cfg
}

// initialStatus is the status a run resets to before its first step.
func initialStatus(kind Kind) Status {
	if kind == KindTextToImage {
		return StatusRunning
	}
	return StatusUploading
}

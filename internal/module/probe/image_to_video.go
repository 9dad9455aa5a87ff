package probe

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mediaprobe/server/internal/shared/metrics"
)

// ImageToVideo drives the four-step upload, generate, poll, and fetch
// workflow.
type ImageToVideo struct {
	client   *Client
	cropper  Cropper
	settings Settings
	metrics  *metrics.Metrics
}

// NewImageToVideo creates the image-to-video workflow.
func NewImageToVideo(client *Client, cropper Cropper, settings Settings, m *metrics.Metrics) *ImageToVideo {
	return &ImageToVideo{
		client:   client,
		cropper:  cropper,
		settings: settings,
		metrics:  m,
	}
}

// Kind returns the workflow kind.
func (w *ImageToVideo) Kind() Kind {
	return KindImageToVideo
}

// Run selects the start frame, crops it best-effort, uploads it, starts the
// generation, polls the returned operation handle, and fetches the final
// video through the endpoint.
func (w *ImageToVideo) Run(ctx context.Context, in *Input, rep Reporter) (*Result, error) {
	frame, ok := w.startFrame(in.Images)
	if !ok {
		return nil, ErrNoReferenceImage
	}

	// Crop failure is never fatal; continue with the original bytes.
	rep.Logf("Cropping start frame to %s", w.settings.CropAspectRatio)
	if cropped, err := w.cropper.Crop(frame.Data, w.settings.CropAspectRatio); err != nil {
		rep.Logf("Crop failed, using original image: %v", err)
	} else {
		frame = ReferenceImage{Data: cropped, MimeType: frame.MimeType}
		rep.Logf("Start frame cropped")
	}

	rep.SetStatus(StatusUploading)
	rep.Logf("Uploading start frame")

	uploadResp, err := w.client.UploadVideoFrame(ctx, in.Endpoint, in.Token, frame)
	if err != nil {
		return nil, fmt.Errorf("upload start frame: %w", err)
	}
	mediaID, ok := uploadResp.FrameMediaID()
	if !ok {
		return nil, ErrNoMediaID
	}
	rep.Logf("Start frame registered as %s", mediaID)

	rep.SetStatus(StatusRunning)
	rep.Logf("Starting video generation (seed %d)", in.Seed)

	genResp, err := w.client.GenerateVideo(ctx, in.Endpoint, in.Token, &generateVideoRequest{
		MediaGenerationID: mediaID,
		Prompt:            in.Prompt,
		Seed:              in.Seed,
		Model:             w.settings.VideoModel,
		AspectRatio:       w.settings.VideoAspectRatio,
	})
	if err != nil {
		return nil, err
	}
	if len(genResp.Operations) == 0 {
		return nil, ErrNoOperations
	}
	rep.Logf("Generation started, polling %d operation(s)", len(genResp.Operations))

	videoURL, err := w.poll(ctx, in, rep, genResp.Operations)
	if err != nil {
		return nil, err
	}
	rep.Logf("Video ready, downloading result")

	content, mediaType, err := w.client.DownloadVideo(ctx, in.Endpoint, in.Token, videoURL)
	if err != nil {
		return nil, err
	}
	rep.Logf("Video downloaded (%d bytes)", len(content))

	payload := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(content)
	return &Result{Kind: ResultVideo, Payload: payload}, nil
}

// startFrame picks the first available reference image, falling back to the
// second slot.
func (w *ImageToVideo) startFrame(images []ReferenceImage) (ReferenceImage, bool) {
	for i := 0; i < 2 && i < len(images); i++ {
		if images[i].Available() {
			return images[i], true
		}
	}
	return ReferenceImage{}, false
}

// poll repeatedly checks the first operation handle until it carries a
// result URL, an explicit error, or the attempt budget runs out.
func (w *ImageToVideo) poll(ctx context.Context, in *Input, rep Reporter, ops []Operation) (string, error) {
	attempts := 0
	defer func() { w.metrics.ObservePollAttempts(attempts) }()

	return Poll(ctx, w.settings.pollConfig(), ops,
		func(ctx context.Context, current []Operation) ([]Operation, error) {
			attempts++
			return w.client.CheckOperations(ctx, in.Endpoint, in.Token, current)
		},
		func(current []Operation) (string, bool, error) {
			if len(current) == 0 {
				return "", false, nil
			}
			op := &current[0]

			if msg := op.ErrMessage(); msg != "" {
				return "", false, &OperationError{Message: msg}
			}
			if !op.Completed() {
				return "", false, nil
			}
			url, found := op.ResultURL()
			if !found {
				// A success marker without an extractable URL is not yet
				// terminal.
				rep.Logf("Generation finished but no video URL yet, continuing to poll")
				return "", false, nil
			}
			return url, true, nil
		},
		func(attempt int, err error) {
			rep.Logf("Status check failed (attempt %d): %v", attempt, err)
		},
	)
}

package probe

import (
	"context"
)

// TextToImage drives the single-call text-to-image workflow.
type TextToImage struct {
	client   *Client
	settings Settings
}

// NewTextToImage creates the text-to-image workflow.
func NewTextToImage(client *Client, settings Settings) *TextToImage {
	return &TextToImage{
		client:   client,
		settings: settings,
	}
}

// Kind returns the workflow kind.
func (w *TextToImage) Kind() Kind {
	return KindTextToImage
}

// Run issues one generation request and extracts the encoded image from the
// fixed nested path.
func (w *TextToImage) Run(ctx context.Context, in *Input, rep Reporter) (*Result, error) {
	rep.SetStatus(StatusRunning)
	rep.Logf("Requesting image generation (seed %d)", in.Seed)

	resp, err := w.client.GenerateImage(ctx, in.Endpoint, in.Token, &generateImageRequest{
		Prompt:      in.Prompt,
		Seed:        in.Seed,
		Model:       w.settings.ImageModel,
		AspectRatio: w.settings.ImageAspectRatio,
	})
	if err != nil {
		return nil, err
	}
	rep.Logf("Generation response received")

	encoded := resp.EncodedImage()
	if encoded == "" {
		return nil, ErrNoImageReturned
	}

	rep.Logf("Image generated (%d bytes encoded)", len(encoded))
	return &Result{Kind: ResultImage, Payload: encoded}, nil
}

package probe

import (
	"context"
	"fmt"
)

// subjectCategory tags every reference input submitted to the recipe call.
const subjectCategory = "CATEGORY_SUBJECT"

// subjectCaption is the literal caption attached to each reference input.
const subjectCaption = "reference image"

// ImageToImage drives the two-step upload-then-compose workflow.
type ImageToImage struct {
	client   *Client
	settings Settings
}

// NewImageToImage creates the image-to-image workflow.
func NewImageToImage(client *Client, settings Settings) *ImageToImage {
	return &ImageToImage{
		client:   client,
		settings: settings,
	}
}

// Kind returns the workflow kind.
func (w *ImageToImage) Kind() Kind {
	return KindImageToImage
}

// Run uploads every reference image strictly in order, then composes them
// with one recipe call. The compose step only begins after all uploads
// succeed.
func (w *ImageToImage) Run(ctx context.Context, in *Input, rep Reporter) (*Result, error) {
	if len(in.Images) == 0 {
		return nil, ErrNoReferenceImage
	}

	rep.SetStatus(StatusUploading)

	inputs := make([]recipeInput, 0, len(in.Images))
	for i, img := range in.Images {
		rep.Logf("Uploading reference image %d/%d", i+1, len(in.Images))

		resp, err := w.client.UploadMedia(ctx, in.Endpoint, in.Token, img)
		if err != nil {
			return nil, fmt.Errorf("upload reference image %d: %w", i+1, err)
		}

		mediaID, ok := resp.MediaID()
		if !ok {
			return nil, fmt.Errorf("reference image %d: %w", i+1, ErrNoMediaID)
		}
		rep.Logf("Reference image %d registered as %s", i+1, mediaID)

		inputs = append(inputs, recipeInput{
			MediaGenerationID: mediaID,
			Category:          subjectCategory,
			Caption:           subjectCaption,
		})
	}

	rep.SetStatus(StatusRunning)
	rep.Logf("Composing edited image from %d reference(s) (seed %d)", len(inputs), in.Seed)

	resp, err := w.client.RunRecipe(ctx, in.Endpoint, in.Token, &runRecipeRequest{
		Prompt: in.Prompt,
		Seed:   in.Seed,
		Inputs: inputs,
	})
	if err != nil {
		return nil, err
	}
	rep.Logf("Recipe response received")

	encoded := resp.EncodedImage()
	if encoded == "" {
		return nil, ErrNoImageReturned
	}

	rep.Logf("Edited image generated (%d bytes encoded)", len(encoded))
	return &Result{Kind: ResultImage, Payload: encoded}, nil
}

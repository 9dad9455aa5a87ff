package probe

import "encoding/json"

// Wire types for the per-endpoint HTTP surface. The upstream response shapes
// are not contractually fixed, so every expected field is optional and
// results are extracted through ordered fallback chains.

type generateImageRequest struct {
	Prompt      string `json:"prompt"`
	Seed        int64  `json:"seed"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspectRatio"`
}

type generatedImage struct {
	EncodedImage string `json:"encodedImage,omitempty"`
}

type imagePanel struct {
	GeneratedImages []generatedImage `json:"generatedImages,omitempty"`
}

type generateImageResponse struct {
	ImagePanels []imagePanel `json:"imagePanels,omitempty"`
}

// EncodedImage returns the generated image at the fixed nested path, or "".
func (r *generateImageResponse) EncodedImage() string {
	if r == nil || len(r.ImagePanels) == 0 {
		return ""
	}
	images := r.ImagePanels[0].GeneratedImages
	if len(images) == 0 {
		return ""
	}
	return images[0].EncodedImage
}

type uploadMediaRequest struct {
	RawBytes string `json:"rawBytes"`
	MimeType string `json:"mimeType"`
}

type mediaResult struct {
	MediaGenerationID string `json:"mediaGenerationId,omitempty"`
}

type mediaRef struct {
	GenerationID string `json:"generationId,omitempty"`
}

type uploadMediaResponse struct {
	Result            *mediaResult `json:"result,omitempty"`
	MediaGenerationID string       `json:"mediaGenerationId,omitempty"`
	Media             *mediaRef    `json:"media,omitempty"`
}

// MediaID resolves the uploaded media identifier through the full fallback
// chain: result.mediaGenerationId, mediaGenerationId, media.generationId.
func (r *uploadMediaResponse) MediaID() (string, bool) {
	return FirstNonEmpty(
		func() string {
			if r.Result == nil {
				return ""
			}
			return r.Result.MediaGenerationID
		},
		func() string { return r.MediaGenerationID },
		func() string {
			if r.Media == nil {
				return ""
			}
			return r.Media.GenerationID
		},
	)
}

// FrameMediaID resolves the identifier for a video start frame, which only
// ever appears at the first two paths.
func (r *uploadMediaResponse) FrameMediaID() (string, bool) {
	return FirstNonEmpty(
		func() string {
			if r.Result == nil {
				return ""
			}
			return r.Result.MediaGenerationID
		},
		func() string { return r.MediaGenerationID },
	)
}

type recipeInput struct {
	MediaGenerationID string `json:"mediaGenerationId"`
	Category          string `json:"category"`
	Caption           string `json:"caption"`
}

type runRecipeRequest struct {
	Prompt string        `json:"prompt"`
	Seed   int64         `json:"seed"`
	Inputs []recipeInput `json:"inputs"`
}

type generateVideoRequest struct {
	MediaGenerationID string `json:"mediaGenerationId"`
	Prompt            string `json:"prompt"`
	Seed              int64  `json:"seed"`
	Model             string `json:"model"`
	AspectRatio       string `json:"aspectRatio"`
}

type generateVideoResponse struct {
	Operations []Operation `json:"operations,omitempty"`
}

type checkOperationsRequest struct {
	Operations []Operation `json:"operations"`
}

type checkOperationsResponse struct {
	Operations []Operation `json:"operations,omitempty"`
}

type videoRef struct {
	FifeURL        string `json:"fifeUrl,omitempty"`
	ServingBaseURI string `json:"servingBaseUri,omitempty"`
}

type videoResult struct {
	URL string `json:"url,omitempty"`
}

type operationError struct {
	Message string `json:"message,omitempty"`
}

// operationFields are the optional fields the harness is allowed to inspect
// on an otherwise opaque operation handle.
type operationFields struct {
	Status   string          `json:"status,omitempty"`
	Done     bool            `json:"done,omitempty"`
	Error    *operationError `json:"error,omitempty"`
	Metadata *struct {
		Video *videoRef `json:"video,omitempty"`
	} `json:"metadata,omitempty"`
	Result *struct {
		Video *videoResult `json:"video,omitempty"`
	} `json:"result,omitempty"`
	Video    *videoRef `json:"video,omitempty"`
	VideoURL string    `json:"videoUrl,omitempty"`
}

// Operation is an opaque in-progress generation handle. The provider-defined
// shape is preserved verbatim and resubmitted on every status check; only
// the optional fields above are ever inspected.
type Operation struct {
	raw    json.RawMessage
	fields operationFields
}

func (o *Operation) UnmarshalJSON(b []byte) error {
	o.raw = append(o.raw[:0], b...)
	return json.Unmarshal(b, &o.fields)
}

func (o Operation) MarshalJSON() ([]byte, error) {
	if o.raw != nil {
		return o.raw, nil
	}
	return json.Marshal(o.fields)
}

// completionStatuses are the status strings treated as successful terminal
// markers alongside the done flag.
var completionStatuses = map[string]bool{
	"MEDIA_GENERATION_STATUS_SUCCESSFUL": true,
	"SUCCEEDED":                          true,
	"COMPLETED":                          true,
}

// Completed reports whether the operation has reached a successful terminal
// marker.
func (o *Operation) Completed() bool {
	return o.fields.Done || completionStatuses[o.fields.Status]
}

// ErrMessage returns the operation's explicit error message, or "".
func (o *Operation) ErrMessage() string {
	if o.fields.Error == nil {
		return ""
	}
	return o.fields.Error.Message
}

// ResultURL resolves the generated video URL through the full fallback
// chain; ok is false when no path yields a value.
func (o *Operation) ResultURL() (string, bool) {
	f := &o.fields
	return FirstNonEmpty(
		func() string {
			if f.Metadata == nil || f.Metadata.Video == nil {
				return ""
			}
			return f.Metadata.Video.FifeURL
		},
		func() string {
			if f.Metadata == nil || f.Metadata.Video == nil {
				return ""
			}
			return f.Metadata.Video.ServingBaseURI
		},
		func() string {
			if f.Result == nil || f.Result.Video == nil {
				return ""
			}
			return f.Result.Video.URL
		},
		func() string {
			if f.Video == nil {
				return ""
			}
			return f.Video.FifeURL
		},
		func() string {
			if f.Video == nil {
				return ""
			}
			return f.Video.ServingBaseURI
		},
		func() string { return f.VideoURL },
	)
}

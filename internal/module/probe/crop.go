package probe

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// Aspect ratio labels accepted by the crop collaborator.
const (
	AspectLandscape = "LANDSCAPE"
	AspectPortrait  = "PORTRAIT"
	AspectSquare    = "SQUARE"
)

// Cropper crops image bytes to a target aspect ratio. Implementations may
// fail with a CropError; callers fall back to the original image.
type Cropper interface {
	Crop(imageBytes []byte, aspectRatio string) ([]byte, error)
}

// centerCropper crops to the largest centered window matching the target
// ratio and re-encodes in the source format.
type centerCropper struct{}

// NewCenterCropper returns the default crop collaborator.
func NewCenterCropper() Cropper {
	return centerCropper{}
}

func aspectDims(label string) (w, h int, err error) {
	switch label {
	case AspectLandscape:
		return 16, 9, nil
	case AspectPortrait:
		return 9, 16, nil
	case AspectSquare:
		return 1, 1, nil
	default:
		return 0, 0, fmt.Errorf("unknown aspect ratio: %q", label)
	}
}

func (centerCropper) Crop(imageBytes []byte, aspectRatio string) ([]byte, error) {
	rw, rh, err := aspectDims(aspectRatio)
	if err != nil {
		return nil, &CropError{Err: err}
	}

	src, format, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, &CropError{Err: fmt.Errorf("decode image: %w", err)}
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, &CropError{Err: fmt.Errorf("empty image")}
	}

	// Largest centered window with the requested ratio.
	cropW, cropH := width, height
	if width*rh > height*rw {
		cropW = height * rw / rh
	} else {
		cropH = width * rh / rw
	}
	x0 := bounds.Min.X + (width-cropW)/2
	y0 := bounds.Min.Y + (height-cropH)/2
	window := image.Rect(x0, y0, x0+cropW, y0+cropH)

	dst := image.NewRGBA(image.Rect(0, 0, cropW, cropH))
	xdraw.Copy(dst, image.Point{}, src, window, xdraw.Src, nil)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 92})
	default:
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return nil, &CropError{Err: fmt.Errorf("encode %s: %w", format, err)}
	}

	return buf.Bytes(), nil
}

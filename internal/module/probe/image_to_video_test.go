package probe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCropper returns fixed bytes or a fixed error.
type mockCropper struct {
	out []byte
	err error
}

func (c *mockCropper) Crop(imageBytes []byte, _ string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.out != nil {
		return c.out, nil
	}
	return imageBytes, nil
}

// videoServer scripts the four-step endpoint protocol.
func videoServer(t *testing.T, statusResponses []string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var statusCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/video/upload":
			w.Write([]byte(`{"result":{"mediaGenerationId":"frame-1"}}`))
		case "/api/video/generate":
			var req generateVideoRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "frame-1", req.MediaGenerationID)
			w.Write([]byte(`{"operations":[{"name":"op-1","status":"PENDING"}]}`))
		case "/api/video/status":
			n := statusCalls.Add(1)
			idx := int(n) - 1
			if idx >= len(statusResponses) {
				idx = len(statusResponses) - 1
			}
			w.Write([]byte(statusResponses[idx]))
		case "/api/video/download":
			w.Header().Set("Content-Type", "video/mp4")
			w.Write([]byte("video-bytes"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	return srv, &statusCalls
}

func TestImageToVideo_Run(t *testing.T) {
	frame := ReferenceImage{Data: []byte("frame"), MimeType: "image/png"}

	t.Run("Completes the full upload, poll, and download sequence", func(t *testing.T) {
		srv, statusCalls := videoServer(t, []string{
			`{"operations":[{"name":"op-1","status":"PENDING"}]}`,
			`{"operations":[{"name":"op-1","done":true,"metadata":{"video":{"fifeUrl":"https://cdn.example.com/v1"}}}]}`,
		})
		defer srv.Close()

		wf := NewImageToVideo(NewClient(srv.Client(), nil), &mockCropper{}, fastSettings(), nil)
		assert.Equal(t, KindImageToVideo, wf.Kind())

		rep := &mockReporter{}
		result, err := wf.Run(context.Background(), &Input{
			Endpoint: testEndpoint(srv),
			Prompt:   "make it move",
			Token:    "tok",
			Images:   []ReferenceImage{frame},
		}, rep)
		require.NoError(t, err)
		assert.Equal(t, ResultVideo, result.Kind)

		want := "data:video/mp4;base64," + base64.StdEncoding.EncodeToString([]byte("video-bytes"))
		assert.Equal(t, want, result.Payload)
		assert.Equal(t, int32(2), statusCalls.Load())
		assert.Equal(t, []Status{StatusUploading, StatusRunning}, rep.statuses)
	})

	t.Run("Crop failure is non-fatal and uses the original bytes", func(t *testing.T) {
		var uploaded string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/video/upload":
				var req uploadMediaRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				uploaded = req.RawBytes
				w.Write([]byte(`{"mediaGenerationId":"frame-1"}`))
			case "/api/video/generate":
				w.Write([]byte(`{"operations":[{"done":true,"videoUrl":"https://cdn.example.com/v"}]}`))
			case "/api/video/status":
				w.Write([]byte(`{"operations":[{"done":true,"videoUrl":"https://cdn.example.com/v"}]}`))
			case "/api/video/download":
				w.Write([]byte("v"))
			}
		}))
		defer srv.Close()

		cropper := &mockCropper{err: &CropError{Err: errors.New("decode image: bad header")}}
		wf := NewImageToVideo(NewClient(srv.Client(), nil), cropper, fastSettings(), nil)

		rep := &mockReporter{}
		_, err := wf.Run(context.Background(), &Input{
			Endpoint: testEndpoint(srv),
			Token:    "tok",
			Images:   []ReferenceImage{frame},
		}, rep)
		require.NoError(t, err)
		assert.Equal(t, frame.Base64(), uploaded)

		found := false
		for _, line := range rep.logs {
			if line == "Crop failed, using original image: crop failed: decode image: bad header" {
				found = true
			}
		}
		assert.True(t, found, "crop failure is logged")
	})

	t.Run("Falls back to the second image slot for the start frame", func(t *testing.T) {
		srv, _ := videoServer(t, []string{
			`{"operations":[{"done":true,"videoUrl":"https://cdn.example.com/v"}]}`,
		})
		defer srv.Close()

		wf := NewImageToVideo(NewClient(srv.Client(), nil), &mockCropper{}, fastSettings(), nil)
		_, err := wf.Run(context.Background(), &Input{
			Endpoint: testEndpoint(srv),
			Token:    "tok",
			Images:   []ReferenceImage{{}, frame},
		}, &mockReporter{})
		assert.NoError(t, err)
	})

	t.Run("Fails without a usable start frame", func(t *testing.T) {
		wf := NewImageToVideo(NewClient(http.DefaultClient, nil), &mockCropper{}, fastSettings(), nil)
		_, err := wf.Run(context.Background(), &Input{Token: "tok"}, &mockReporter{})
		require.Error(t, err)
		assert.Equal(t, ErrNoReferenceImage, err)
	})

	t.Run("Fails when generation returns no operations", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/video/upload":
				w.Write([]byte(`{"mediaGenerationId":"frame-1"}`))
			case "/api/video/generate":
				w.Write([]byte(`{"operations":[]}`))
			}
		}))
		defer srv.Close()

		wf := NewImageToVideo(NewClient(srv.Client(), nil), &mockCropper{}, fastSettings(), nil)
		_, err := wf.Run(context.Background(), &Input{
			Endpoint: testEndpoint(srv),
			Token:    "tok",
			Images:   []ReferenceImage{frame},
		}, &mockReporter{})
		require.Error(t, err)
		assert.Equal(t, ErrNoOperations, err)
	})

	t.Run("Operation error is terminal", func(t *testing.T) {
		srv, statusCalls := videoServer(t, []string{
			`{"operations":[{"name":"op-1","error":{"message":"content policy violation"}}]}`,
		})
		defer srv.Close()

		wf := NewImageToVideo(NewClient(srv.Client(), nil), &mockCropper{}, fastSettings(), nil)
		_, err := wf.Run(context.Background(), &Input{
			Endpoint: testEndpoint(srv),
			Token:    "tok",
			Images:   []ReferenceImage{frame},
		}, &mockReporter{})
		require.Error(t, err)

		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "content policy violation", opErr.Message)
		assert.Equal(t, int32(1), statusCalls.Load())
	})

	t.Run("Success marker without a URL keeps polling until timeout", func(t *testing.T) {
		srv, statusCalls := videoServer(t, []string{
			`{"operations":[{"name":"op-1","done":true}]}`,
		})
		defer srv.Close()

		settings := fastSettings()
		settings.MaxPollAttempts = 3
		wf := NewImageToVideo(NewClient(srv.Client(), nil), &mockCropper{}, settings, nil)

		rep := &mockReporter{}
		_, err := wf.Run(context.Background(), &Input{
			Endpoint: testEndpoint(srv),
			Token:    "tok",
			Images:   []ReferenceImage{frame},
		}, rep)
		require.Error(t, err)
		assert.Equal(t, ErrPollTimeout, err)
		assert.Equal(t, int32(3), statusCalls.Load())
	})

	t.Run("Transient status failures are retried", func(t *testing.T) {
		var statusCalls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/video/upload":
				w.Write([]byte(`{"mediaGenerationId":"frame-1"}`))
			case "/api/video/generate":
				w.Write([]byte(`{"operations":[{"name":"op-1"}]}`))
			case "/api/video/status":
				if statusCalls.Add(1) < 3 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				w.Write([]byte(`{"operations":[{"done":true,"videoUrl":"https://cdn.example.com/v"}]}`))
			case "/api/video/download":
				w.Write([]byte("v"))
			}
		}))
		defer srv.Close()

		wf := NewImageToVideo(NewClient(srv.Client(), nil), &mockCropper{}, fastSettings(), nil)
		result, err := wf.Run(context.Background(), &Input{
			Endpoint: testEndpoint(srv),
			Token:    "tok",
			Images:   []ReferenceImage{frame},
		}, &mockReporter{})
		require.NoError(t, err)
		assert.Equal(t, ResultVideo, result.Kind)
		assert.Equal(t, int32(3), statusCalls.Load())
	})
}

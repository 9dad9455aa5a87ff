package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextToImage_Run(t *testing.T) {
	t.Run("Extracts the encoded image on success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/image/generate", r.URL.Path)
			w.Write([]byte(`{"imagePanels":[{"generatedImages":[{"encodedImage":"abc123"}]}]}`))
		}))
		defer srv.Close()

		wf := NewTextToImage(NewClient(srv.Client(), nil), fastSettings())
		assert.Equal(t, KindTextToImage, wf.Kind())

		rep := &mockReporter{}
		result, err := wf.Run(context.Background(), &Input{
			Endpoint: testEndpoint(srv),
			Prompt:   "a red fox",
			Seed:     42,
			Token:    "tok",
		}, rep)
		require.NoError(t, err)
		assert.Equal(t, ResultImage, result.Kind)
		assert.Equal(t, "abc123", result.Payload)
		assert.Equal(t, []Status{StatusRunning}, rep.statuses)
	})

	t.Run("Fails when the response carries no image", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"imagePanels":[]}`))
		}))
		defer srv.Close()

		wf := NewTextToImage(NewClient(srv.Client(), nil), fastSettings())
		_, err := wf.Run(context.Background(), &Input{Endpoint: testEndpoint(srv), Token: "tok"}, &mockReporter{})
		require.Error(t, err)
		assert.Equal(t, ErrNoImageReturned, err)
		assert.Equal(t, "No image returned", err.Error())
	})

	t.Run("Propagates endpoint errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"bad token"}}`))
		}))
		defer srv.Close()

		wf := NewTextToImage(NewClient(srv.Client(), nil), fastSettings())
		_, err := wf.Run(context.Background(), &Input{Endpoint: testEndpoint(srv), Token: "tok"}, &mockReporter{})
		require.Error(t, err)
		assert.Equal(t, "bad token", err.Error())
	})
}

package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaprobe/server/internal/module/probe"
)

// recordingWorkflow captures the input of every run.
type recordingWorkflow struct {
	mu     sync.Mutex
	inputs []*probe.Input
}

func (w *recordingWorkflow) Kind() probe.Kind {
	return probe.KindTextToImage
}

func (w *recordingWorkflow) Run(_ context.Context, in *probe.Input, _ probe.Reporter) (*probe.Result, error) {
	w.mu.Lock()
	w.inputs = append(w.inputs, in)
	w.mu.Unlock()
	return &probe.Result{Kind: probe.ResultImage, Payload: "img"}, nil
}

type handlerFixture struct {
	router       *gin.Engine
	orchestrator *probe.Orchestrator
	store        *probe.StateStore
	workflow     *recordingWorkflow
}

func newHandlerFixture(t *testing.T, defaultToken string) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fleet, err := probe.NewFleet([]probe.Endpoint{
		{ID: "a", BaseURL: "http://a.example"},
		{ID: "b", BaseURL: "http://b.example"},
	})
	require.NoError(t, err)

	store := probe.NewStateStore(fleet)
	runner := probe.NewRunner(store, nil, nil)
	wf := &recordingWorkflow{}
	runner.Register(wf)
	orchestrator := probe.NewOrchestrator(fleet, runner, nil)
	health := probe.NewHealthMonitor(fleet, nil, nil, nil, nil)

	h := NewProbeHandler(orchestrator, store, fleet, health, defaultToken, nil)

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))

	return &handlerFixture{
		router:       router,
		orchestrator: orchestrator,
		store:        store,
		workflow:     wf,
	}
}

func TestProbeHandler_LaunchRuns(t *testing.T) {
	t.Run("Accepts a run and fans out to the fleet", func(t *testing.T) {
		f := newHandlerFixture(t, "default-token")

		body := `{"workflow":"text_to_image","prompt":"a red fox"}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)

		var resp struct {
			Workflow  string   `json:"workflow"`
			Endpoints []string `json:"endpoints"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "text_to_image", resp.Workflow)
		assert.ElementsMatch(t, []string{"a", "b"}, resp.Endpoints)

		f.orchestrator.Wait()
		assert.Len(t, f.workflow.inputs, 2)
		for _, st := range f.store.All() {
			assert.Equal(t, probe.StatusSuccess, st.Status)
		}
	})

	t.Run("Uses the caller's bearer token over the default", func(t *testing.T) {
		f := newHandlerFixture(t, "default-token")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs",
			strings.NewReader(`{"workflow":"text_to_image"}`))
		req.Header.Set("Authorization", "Bearer caller-token")
		f.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusAccepted, w.Code)

		f.orchestrator.Wait()
		require.NotEmpty(t, f.workflow.inputs)
		assert.Equal(t, "caller-token", f.workflow.inputs[0].Token)
	})

	t.Run("Falls back to the default token", func(t *testing.T) {
		f := newHandlerFixture(t, "default-token")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs",
			strings.NewReader(`{"workflow":"text_to_image"}`))
		f.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusAccepted, w.Code)

		f.orchestrator.Wait()
		require.NotEmpty(t, f.workflow.inputs)
		assert.Equal(t, "default-token", f.workflow.inputs[0].Token)
	})

	t.Run("Decodes reference images", func(t *testing.T) {
		f := newHandlerFixture(t, "tok")

		data := base64.StdEncoding.EncodeToString([]byte("image-bytes"))
		body := `{"workflow":"text_to_image","reference_images":[{"data":"` + data + `","mime_type":"image/jpeg"}]}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
		f.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusAccepted, w.Code)

		f.orchestrator.Wait()
		require.NotEmpty(t, f.workflow.inputs)
		require.Len(t, f.workflow.inputs[0].Images, 1)
		assert.Equal(t, []byte("image-bytes"), f.workflow.inputs[0].Images[0].Data)
		assert.Equal(t, "image/jpeg", f.workflow.inputs[0].Images[0].MimeType)
	})

	t.Run("Rejects a missing workflow", func(t *testing.T) {
		f := newHandlerFixture(t, "tok")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{}`))
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Rejects an unknown workflow", func(t *testing.T) {
		f := newHandlerFixture(t, "tok")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs",
			strings.NewReader(`{"workflow":"text_to_audio"}`))
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Rejects invalid base64 image data", func(t *testing.T) {
		f := newHandlerFixture(t, "tok")

		body := `{"workflow":"text_to_image","reference_images":[{"data":"!!not-base64!!"}]}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProbeHandler_ListRuns(t *testing.T) {
	f := newHandlerFixture(t, "tok")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Runs []*probe.RunState `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 2)
	for _, st := range resp.Runs {
		assert.Equal(t, probe.StatusIdle, st.Status)
	}
}

func TestProbeHandler_GetRun(t *testing.T) {
	f := newHandlerFixture(t, "tok")

	t.Run("Returns a known endpoint's state", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/a", nil)
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var st probe.RunState
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
		assert.Equal(t, "a", st.EndpointID)
	})

	t.Run("Returns 404 for an unknown endpoint", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/nope", nil)
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestProbeHandler_ListEndpoints(t *testing.T) {
	f := newHandlerFixture(t, "tok")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/endpoints", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Endpoints []struct {
			ID     string `json:"id"`
			Health string `json:"health"`
		} `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Endpoints, 2)
	assert.Equal(t, "unknown", resp.Endpoints[0].Health)
}

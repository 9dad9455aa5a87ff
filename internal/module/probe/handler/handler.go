package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediaprobe/server/internal/module/probe"
	"github.com/mediaprobe/server/internal/shared/response"
)

// ProbeHandler exposes the fleet harness over HTTP: launching runs and
// reading per-endpoint run state.
type ProbeHandler struct {
	orchestrator *probe.Orchestrator
	store        *probe.StateStore
	fleet        *probe.Fleet
	health       *probe.HealthMonitor
	defaultToken string
	logger       *zap.Logger
}

// NewProbeHandler creates a new probe handler. defaultToken is used when a
// request does not carry its own bearer token.
func NewProbeHandler(
	orchestrator *probe.Orchestrator,
	store *probe.StateStore,
	fleet *probe.Fleet,
	health *probe.HealthMonitor,
	defaultToken string,
	logger *zap.Logger,
) *ProbeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProbeHandler{
		orchestrator: orchestrator,
		store:        store,
		fleet:        fleet,
		health:       health,
		defaultToken: defaultToken,
		logger:       logger.Named("probe-handler"),
	}
}

// RegisterRoutes registers probe routes.
func (h *ProbeHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/runs", h.LaunchRuns)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:endpoint_id", h.GetRun)
	r.GET("/endpoints", h.ListEndpoints)
}

// launchRequest is the body of POST /runs.
type launchRequest struct {
	Workflow        string                `json:"workflow" binding:"required"`
	Prompt          string                `json:"prompt"`
	ReferenceImages []referenceImageInput `json:"reference_images"`
}

type referenceImageInput struct {
	Data     string `json:"data"` // base64
	MimeType string `json:"mime_type"`
}

// LaunchRuns starts the selected workflow against every configured endpoint.
// POST /api/v1/runs
func (h *ProbeHandler) LaunchRuns(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	kind, err := probe.ParseKind(req.Workflow)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	images := make([]probe.ReferenceImage, 0, len(req.ReferenceImages))
	for _, in := range req.ReferenceImages {
		data, err := base64.StdEncoding.DecodeString(in.Data)
		if err != nil {
			response.BadRequest(c, "reference image is not valid base64")
			return
		}
		mimeType := in.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		images = append(images, probe.ReferenceImage{Data: data, MimeType: mimeType})
	}

	token := h.bearerToken(c)

	h.logger.Info("launching fleet run",
		zap.String("workflow", string(kind)),
		zap.Int("reference_images", len(images)))

	// Runs outlive the HTTP request; outcomes land in the state store.
	h.orchestrator.Launch(context.Background(), &probe.Request{
		Kind:   kind,
		Prompt: req.Prompt,
		Images: images,
		Token:  token,
	})

	ids := make([]string, 0, h.fleet.Len())
	for _, ep := range h.fleet.All() {
		ids = append(ids, ep.ID)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"workflow":  kind,
		"endpoints": ids,
	})
}

// ListRuns returns the current run state of every endpoint.
// GET /api/v1/runs
func (h *ProbeHandler) ListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": h.store.All()})
}

// GetRun returns one endpoint's run state, including its log trail.
// GET /api/v1/runs/:endpoint_id
func (h *ProbeHandler) GetRun(c *gin.Context) {
	id := c.Param("endpoint_id")
	state, ok := h.store.Get(id)
	if !ok {
		response.NotFound(c, "unknown endpoint: "+id)
		return
	}
	c.JSON(http.StatusOK, state)
}

// endpointView decorates an endpoint with its last observed health.
type endpointView struct {
	probe.Endpoint
	Health probe.HealthStatus `json:"health"`
}

// ListEndpoints returns the configured fleet with health status.
// GET /api/v1/endpoints
func (h *ProbeHandler) ListEndpoints(c *gin.Context) {
	views := make([]endpointView, 0, h.fleet.Len())
	for _, ep := range h.fleet.All() {
		views = append(views, endpointView{
			Endpoint: ep,
			Health:   h.health.Status(ep.ID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": views})
}

// bearerToken extracts the caller's bearer token, falling back to the
// configured default.
func (h *ProbeHandler) bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")); token != "" {
			return token
		}
	}
	return h.defaultToken
}

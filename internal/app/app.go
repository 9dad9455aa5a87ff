package app

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mediaprobe/server/internal/infra/httpclient"
	"github.com/mediaprobe/server/internal/module/probe"
	probehandler "github.com/mediaprobe/server/internal/module/probe/handler"
	"github.com/mediaprobe/server/internal/shared/config"
	"github.com/mediaprobe/server/internal/shared/logger"
	"github.com/mediaprobe/server/internal/shared/metrics"
	"github.com/mediaprobe/server/internal/shared/middleware"
)

// Application wires the harness together: fleet, workflows, orchestrator,
// health monitor, and the HTTP surface.
type Application struct {
	router       *gin.Engine
	orchestrator *probe.Orchestrator
	health       *probe.HealthMonitor
	logger       *zap.Logger
}

// LoadConfig loads the application configuration.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}

// New builds the application from configuration.
func New(cfg *config.Config) (*Application, error) {
	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, err
	}

	endpoints := make([]probe.Endpoint, 0, len(cfg.Fleet))
	for _, ep := range cfg.Fleet {
		endpoints = append(endpoints, probe.Endpoint{
			ID:      ep.ID,
			Name:    ep.Name,
			BaseURL: ep.BaseURL,
		})
	}
	fleet, err := probe.NewFleet(endpoints)
	if err != nil {
		return nil, err
	}

	m := metrics.New("mediaprobe")
	client := probe.NewClient(httpclient.New(cfg.HTTPClient), zapLog)
	store := probe.NewStateStore(fleet)

	settings := probe.DefaultSettings()
	settings.ImageModel = cfg.Probe.ImageModel
	settings.ImageAspectRatio = cfg.Probe.ImageAspectRatio
	settings.VideoModel = cfg.Probe.VideoModel
	settings.VideoAspectRatio = cfg.Probe.VideoAspectRatio
	settings.CropAspectRatio = cfg.Probe.CropAspectRatio
	if cfg.Probe.PollInterval > 0 {
		settings.PollInterval = cfg.Probe.PollInterval
	}
	if cfg.Probe.MaxPollAttempts > 0 {
		settings.MaxPollAttempts = cfg.Probe.MaxPollAttempts
	}

	runner := probe.NewRunner(store, zapLog, m)
	runner.Register(probe.NewTextToImage(client, settings))
	runner.Register(probe.NewImageToImage(client, settings))
	runner.Register(probe.NewImageToVideo(client, probe.NewCenterCropper(), settings, m))

	orchestrator := probe.NewOrchestrator(fleet, runner, zapLog)

	health := probe.NewHealthMonitor(fleet, client, &probe.HealthConfig{
		CheckInterval:    cfg.Health.CheckInterval,
		CheckTimeout:     cfg.Health.CheckTimeout,
		FailureThreshold: cfg.Health.FailureThreshold,
	}, zapLog, m)
	health.Start()

	router := buildRouter(cfg, zapLog, m, orchestrator, store, fleet, health)

	return &Application{
		router:       router,
		orchestrator: orchestrator,
		health:       health,
		logger:       zapLog,
	}, nil
}

func buildRouter(
	cfg *config.Config,
	zapLog *zap.Logger,
	m *metrics.Metrics,
	orchestrator *probe.Orchestrator,
	store *probe.StateStore,
	fleet *probe.Fleet,
	health *probe.HealthMonitor,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Recovery(zapLog))
	router.Use(middleware.Metrics(m))
	router.Use(cors.Default())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := probehandler.NewProbeHandler(orchestrator, store, fleet, health, cfg.AuthToken, zapLog)
	h.RegisterRoutes(router.Group("/api/v1"))

	return router
}

// Router returns the HTTP handler.
func (a *Application) Router() http.Handler {
	return a.router
}

// Stop shuts down background components and waits for in-flight runs.
func (a *Application) Stop() {
	a.health.Stop()
	a.orchestrator.Wait()
	_ = a.logger.Sync()
}

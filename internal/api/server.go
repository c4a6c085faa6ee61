package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jgulick48/herzborg-bridge/internal/models"
	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

// Registry is the view of the binding the API works against.
type Registry interface {
	Handlers() []thing.Handler
	Handler(uid thing.UID) (thing.Handler, bool)
	SendCommand(uid thing.UID, channelID string, command thing.Command) error
}

// Server serves the REST API, health checks and metrics.
type Server struct {
	srv *http.Server
}

func New(cfg models.HTTPConfig, registry Registry, metricsHandler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(cfg, registry, metricsHandler, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func NewRouter(cfg models.HTTPConfig, registry Registry, metricsHandler http.Handler, logger *zap.Logger) *gin.Engine {
	logger = logger.Named("api")
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	limit := rate.Limit(cfg.CommandRate)
	if cfg.CommandRate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.CommandBurst
	if burst <= 0 {
		burst = 1
	}
	handler := &thingsHandler{
		registry: registry,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
	r.GET("/things", handler.List)
	r.GET("/things/:uid", handler.Get)
	r.POST("/things/:uid/channels/:channel", handler.Command)
	return r
}

// Start blocks until the server stops. A clean shutdown is not an error.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

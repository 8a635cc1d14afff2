// Package remote exposes the engine over HTTP for remote control panels.
package remote

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/engine"
	"github.com/gabrielcapilla/sdrtune/internal/ports"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Engine is the part of the engine the API drives.
type Engine interface {
	Call(ctx context.Context, msg engine.Msg) error
	Snapshot() engine.Snapshot
	Subscribe() (<-chan engine.Snapshot, func())
	Tuning(kind domain.Kind) domain.TuningParams
}

type Store interface {
	ports.StationStore
	ports.TuningStore
}

type Server struct {
	eng    Engine
	store  Store
	cfg    domain.RemoteConfig
	router *gin.Engine
	log    zerolog.Logger
}

func NewServer(eng Engine, store Store, cfg domain.RemoteConfig, log zerolog.Logger) *Server {
	s := &Server{
		eng:   eng,
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "remote").Logger(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog(), s.cors())

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/state", s.state)
		api.POST("/tune", s.tune)
		api.POST("/stop", s.stop)
		api.POST("/tabs/:kind", s.clickTab)
		api.GET("/ws", s.stream)

		devices := api.Group("/devices")
		devices.GET("", s.listDevices)
		devices.POST("/:serial/select", s.selectDevice)
		devices.POST("/:serial/connect", s.connectDevice(true))
		devices.POST("/:serial/disconnect", s.connectDevice(false))

		stations := api.Group("/stations")
		stations.GET("", s.listStations)
		stations.POST("", s.saveStation)
		stations.PUT("", s.updateStation)
		stations.DELETE("", s.removeStation)

		tuning := api.Group("/tuning")
		tuning.GET("/:kind", s.getTuning)
		tuning.PUT("/:kind", s.setTuning)
	}
	return r
}

func (s *Server) cors() gin.HandlerFunc {
	config := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) == 0 || slices.Contains(s.cfg.CORSOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.cfg.CORSOrigins
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type"}
	return cors.New(config)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("Request")
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.cfg.Listen).Msg("Remote API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// statusFor maps engine and domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDeviceBusy),
		errors.Is(err, domain.ErrDeviceUnavailable),
		errors.Is(err, domain.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, engine.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

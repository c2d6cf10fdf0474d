// Package api wires the Gin engine: routes, middleware, and the HTTP
// server lifecycle.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/VertexProxyAPI/internal/api/handlers"
	"github.com/router-for-me/VertexProxyAPI/internal/api/middleware"
	"github.com/router-for-me/VertexProxyAPI/internal/auth"
	"github.com/router-for-me/VertexProxyAPI/internal/buildinfo"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
	"github.com/router-for-me/VertexProxyAPI/internal/logging"
	log "github.com/sirupsen/logrus"
)

// Server is the HTTP front of the bridge. The active config is held
// behind a mutex so the config watcher can swap it while requests read
// snapshots through Config.
type Server struct {
	mu         sync.RWMutex
	cfg        *config.Config
	provider   auth.Provider
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the engine and route table.
func NewServer(cfg *config.Config, provider auth.Provider, client *http.Client, requestLogger *logging.FileRequestLogger) *Server {
	s := &Server{cfg: cfg, provider: provider}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestLogging(requestLogger))

	h := handlers.New(provider, client, s.Config)

	engine.GET("/", s.health)

	authed := engine.Group("/", middleware.ProxyAuth(s.Config))
	authed.GET("/v1/chat/completions", h.ChatCompletions)
	authed.POST("/v1/chat/completions", h.ChatCompletions)
	authed.GET("/v1/models", h.Models)
	authed.POST("/v1/models/*action", h.NativeGenerate)
	authed.POST("/v1beta/models/*action", h.NativeGenerate)

	s.engine = engine
	return s
}

// Config returns the active config snapshot.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateConfig swaps the active config. Handlers pick the new snapshot
// up on their next request.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	log.Info("configuration updated")
}

// health reports liveness and the active auth mode.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   buildinfo.Version,
		"auth_mode": s.Config().AuthMode(),
	})
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	cfg := s.Config()
	addr := fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 30 * time.Second,
	}
	log.Infof("listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

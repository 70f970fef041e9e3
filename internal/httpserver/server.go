// Package httpserver wires the one HTTP listener this process exposes:
// a gin.Engine carrying the Live Broadcaster's /ws route and the
// Prometheus /metrics route as disjoint groups, so the indexer never
// opens a second port for metrics scraping. Grounded on
// ChainSafe-canton-middleware/pkg/app/relayer.Server's signal-context +
// graceful-shutdown shape, adapted from chi to the teacher's gin stack.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/broadcast"
)

const shutdownTimeout = 10 * time.Second

// Server is the shared metrics+broadcaster HTTP surface.
type Server struct {
	engine *gin.Engine
	addr   string
	log    *zap.Logger
	srv    *http.Server
}

// New builds the shared engine and registers the /metrics and /ws route
// groups. wsHandler may be nil in processes that run the pipeline
// without the broadcaster (e.g. a future collector-only deployment).
func New(addr string, wsHandler *broadcast.Handler, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if wsHandler != nil {
		engine.GET("/ws", wsHandler.ServeWS)
	}

	return &Server{
		engine: engine,
		addr:   addr,
		log:    log,
		srv:    &http.Server{Addr: addr, Handler: engine},
	}
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("httpserver: listening", zap.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

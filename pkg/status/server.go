package status

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itohio/aqnode/pkg/node"
)

// Server exposes the node's health and last cycle report over HTTP.
type Server struct {
	addr    string
	engine  *gin.Engine
	started time.Time

	mu     sync.RWMutex
	last   *node.Report
	counts map[node.Outcome]int
}

// New constructs a server listening on addr.
func New(addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		addr:    addr,
		engine:  engine,
		started: time.Now(),
		counts:  make(map[node.Outcome]int),
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Update records a cycle report. It is registered with Loop.OnUpdate.
func (s *Server) Update(r node.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &r
	s.counts[r.Outcome]++
}

// Run starts the HTTP server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.engine.GET("/status", s.handleStatus)
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no cycle completed yet"})
		return
	}

	counts := make(gin.H, len(s.counts))
	for k, v := range s.counts {
		counts[string(k)] = v
	}

	c.JSON(http.StatusOK, gin.H{
		"report": s.last,
		"counts": counts,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

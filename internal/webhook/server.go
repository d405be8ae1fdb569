// Package webhook exposes the engines over HTTP: Graph change
// notifications, the heartbeat trigger and suggestion responses.
package webhook

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ShayCichocki/monica/internal/graph"
	"github.com/ShayCichocki/monica/internal/suggest"
	"github.com/ShayCichocki/monica/pkg/models"
)

// CompletionHandler processes completion deliveries.
type CompletionHandler interface {
	HandleCompletion(ctx context.Context, ev models.CompletionEvent) (models.Outcome, error)
}

// SuggestionEngine runs heartbeats and records responses.
type SuggestionEngine interface {
	Tick(ctx context.Context, now time.Time) ([]models.SuggestionRecord, error)
	Respond(taskID string, response models.SuggestionResponse, at time.Time) (*models.SuggestionRecord, error)
}

// TaskGetter loads tasks named by Graph notifications.
type TaskGetter interface {
	Get(ctx context.Context, id string) (*models.Task, error)
}

// Renewer extends expiring Graph subscriptions.
type Renewer interface {
	RenewExpiring(ctx context.Context) (*graph.RenewResult, error)
}

// Config wires a Server.
type Config struct {
	Chain   CompletionHandler
	Suggest SuggestionEngine
	// Tasks resolves Graph notification resources; nil disables Graph
	// notification handling.
	Tasks TaskGetter
	// Sink receives suggestions offered by heartbeats.
	Sink suggest.Sink
	// Renewer enables POST /renew when set.
	Renewer Renewer
	// ClientState, when set, must match every Graph notification.
	ClientState string
	Now         func() time.Time
}

// Server is the webhook and heartbeat HTTP server.
type Server struct {
	cfg    Config
	router *gin.Engine
}

// NewServer creates a server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sink == nil {
		cfg.Sink = suggest.LogSink{}
	}

	router := gin.New()
	// Graph task IDs contain an escaped slash.
	router.UseRawPath = true
	router.UnescapePathValues = true
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{cfg: cfg, router: router}

	router.GET("/healthz", s.handleHealth)
	router.GET("/taskchain", s.handleTaskChain)
	router.POST("/taskchain", s.handleTaskChain)
	router.POST("/heartbeat", s.handleHeartbeat)
	router.POST("/suggestions/:task_id/response", s.handleRespond)
	if cfg.Renewer != nil {
		router.POST("/renew", s.handleRenew)
	}

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[webhook] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("[webhook] shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs each request through the standard logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[webhook] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

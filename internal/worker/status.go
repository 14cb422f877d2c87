package worker

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/provectl/internal/auth"
	"github.com/danmuck/provectl/internal/observability"
)

const version = "0.1.0"

type StatusConfig struct {
	CORSOrigins []string
	// Token, when set, is required as a bearer token on /cache and /executions.
	Token string
}

// Status is the read-only HTTP surface over a running worker.
type Status struct {
	worker  *Worker
	control *Control
	router  *gin.Engine
	guard   gin.HandlerFunc
	started time.Time
}

// NewStatus builds the router; control may be nil.
func NewStatus(w *Worker, control *Control, cfg StatusConfig) *Status {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(*logs.Zerolog()))
	r.Use(observability.RequestMetricsMiddleware(w.ID()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	var validator auth.Validator
	if token := strings.TrimSpace(cfg.Token); token != "" {
		validator = auth.StaticToken{Token: token}
	}
	s := &Status{worker: w, control: control, router: r, guard: auth.Require(validator), started: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Status) Router() *gin.Engine {
	return s.router
}

func (s *Status) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.worker.ID(),
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.worker.IsReady()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		body := gin.H{
			"ready":     ready,
			"worker_id": s.worker.ID(),
			"queued":    s.worker.QueueLen(),
			"processed": s.worker.Processed(),
		}
		if s.control != nil {
			body["clients"] = s.control.ClientCount()
		}
		c.JSON(status, body)
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/cache", s.guard, func(c *gin.Context) {
		cache := s.worker.Dispatcher().Cache()
		c.JSON(http.StatusOK, gin.H{
			"size":  cache.Len(),
			"keys":  cache.Keys(),
			"stats": cache.Stats(),
		})
	})

	s.router.GET("/executions", s.guard, func(c *gin.Context) {
		limit := 20
		if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}
		history := s.worker.Dispatcher().History()
		c.JSON(http.StatusOK, gin.H{
			"total":      history.Len(),
			"executions": history.Recent(limit),
		})
	})
}

// Serve runs the router on addr until ctx is done.
func (s *Status) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              strings.TrimSpace(addr),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logs.Zerolog().Info().Str("addr", srv.Addr).Msg("worker.Status listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}

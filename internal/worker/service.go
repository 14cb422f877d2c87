package worker

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	logs "github.com/danmuck/smplog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/provectl/internal/engine"
	"github.com/danmuck/provectl/internal/engine/groth"
	"github.com/danmuck/provectl/internal/keycache"
	"github.com/danmuck/provectl/internal/network"
)

var (
	ErrInvalidHeartbeatInterval = errors.New("worker: invalid heartbeat interval")
	ErrWorkerIDRequired         = errors.New("worker: id required")
)

const DefaultHost = "https://vm.aleo.org/api"

// ServiceConfig configures the standalone worker process.
type ServiceConfig struct {
	ID                 string
	DefaultHost        string
	ListenAddr         string
	StatusAddr         string
	CORSOrigins        []string
	StatusToken        string
	Heartbeat          time.Duration
	QueueDepth         int
	ProveLocal         bool
	CacheSize          int
	HistorySize        int
	EngineThreads      int
	NetworkTimeout     time.Duration
	NetworkMaxAttempts int
}

func DefaultServiceConfig() ServiceConfig {
	netCfg := network.DefaultHTTPConfig()
	return ServiceConfig{
		ID:                 "provectl.local",
		DefaultHost:        DefaultHost,
		ListenAddr:         "127.0.0.1:7040",
		StatusAddr:         "127.0.0.1:7041",
		CORSOrigins:        []string{"http://localhost:3000"},
		Heartbeat:          30 * time.Second,
		QueueDepth:         DefaultQueueDepth,
		ProveLocal:         true,
		CacheSize:          keycache.DefaultCapacity,
		HistorySize:        DefaultHistorySize,
		EngineThreads:      0,
		NetworkTimeout:     netCfg.Timeout,
		NetworkMaxAttempts: netCfg.MaxAttempts,
	}
}

// Validate rejects configs the service cannot start with.
func (c ServiceConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrWorkerIDRequired
	}
	if c.Heartbeat <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if strings.TrimSpace(c.DefaultHost) == "" {
		return fmt.Errorf("worker: default_host required")
	}
	if c.EngineThreads < 0 {
		return fmt.Errorf("worker: engine_threads must be >= 0, got %d", c.EngineThreads)
	}
	return nil
}

// NetworkConfig derives the HTTP collaborator config.
func (c ServiceConfig) NetworkConfig() network.HTTPConfig {
	cfg := network.DefaultHTTPConfig()
	if c.NetworkTimeout > 0 {
		cfg.Timeout = c.NetworkTimeout
	}
	if c.NetworkMaxAttempts > 0 {
		cfg.MaxAttempts = c.NetworkMaxAttempts
	}
	return cfg
}

// Service owns one worker plus its control and status listeners.
type Service struct {
	cfg     ServiceConfig
	worker  *Worker
	control *Control
	status  *Status
}

// NewService wires the gnark engine and the HTTP network collaborator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewServiceWith(cfg, groth.New(nil), network.NewHTTP(cfg.NetworkConfig()))
}

// NewServiceWith wires explicit collaborators.
func NewServiceWith(cfg ServiceConfig, eng engine.Engine, net network.Client) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := NewDispatcher(eng, net, DispatcherConfig{
		WorkerID:    cfg.ID,
		DefaultHost: cfg.DefaultHost,
		ProveLocal:  cfg.ProveLocal,
		CacheSize:   cfg.CacheSize,
		HistorySize: cfg.HistorySize,
	})
	if err != nil {
		return nil, err
	}
	w := NewWorker(cfg.ID, d, cfg.QueueDepth)
	control := NewControl(w)
	return &Service{
		cfg:     cfg,
		worker:  w,
		control: control,
		status:  NewStatus(w, control, StatusConfig{CORSOrigins: cfg.CORSOrigins, Token: cfg.StatusToken}),
	}, nil
}

func (s *Service) Worker() *Worker   { return s.worker }
func (s *Service) Control() *Control { return s.control }
func (s *Service) Status() *Status   { return s.status }

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext blocks until ctx is done or a listener fails.
func (s *Service) RunContext(ctx context.Context) error {
	if s.cfg.EngineThreads > 0 {
		prev := runtime.GOMAXPROCS(s.cfg.EngineThreads)
		logs.Zerolog().Info().Int("engine_threads", s.cfg.EngineThreads).Int("previous", prev).Msg("worker.Service engine threads set")
	}
	logs.Zerolog().Info().
		Str("worker_id", s.cfg.ID).
		Str("default_host", s.cfg.DefaultHost).
		Str("listen_addr", s.cfg.ListenAddr).
		Str("status_addr", s.cfg.StatusAddr).
		Bool("prove_local", s.cfg.ProveLocal).
		Msg("worker.Service.RunContext starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.worker.Run(ctx) })
	if strings.TrimSpace(s.cfg.ListenAddr) != "" {
		g.Go(func() error { return s.control.ListenAndServe(ctx, s.cfg.ListenAddr) })
	}
	if strings.TrimSpace(s.cfg.StatusAddr) != "" {
		g.Go(func() error { return s.status.Serve(ctx, s.cfg.StatusAddr) })
	}
	g.Go(func() error { return s.heartbeat(ctx) })

	err := g.Wait()
	logs.Zerolog().Info().Err(err).Msg("worker.Service.RunContext shutdown")
	return err
}

func (s *Service) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := s.worker.Dispatcher().Cache().Stats()
			logs.Zerolog().Info().
				Str("worker_id", s.cfg.ID).
				Bool("ready", s.worker.IsReady()).
				Uint64("processed", s.worker.Processed()).
				Int("queued", s.worker.QueueLen()).
				Int64("clients", s.control.ClientCount()).
				Int("cached_keys", stats.Entries).
				Uint64("syntheses", stats.Syntheses).
				Msg("worker.Service.heartbeat")
		}
	}
}

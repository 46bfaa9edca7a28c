package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/graphps/internal/cluster"
	"github.com/dreamware/graphps/internal/config"
	"github.com/dreamware/graphps/internal/logging"
	"github.com/dreamware/graphps/internal/metrics"
	"github.com/dreamware/graphps/internal/service"
	"github.com/dreamware/graphps/internal/storage"
	"github.com/dreamware/graphps/internal/table"
)

const (
	registerAttempts = 10
	registerDelay    = 400 * time.Millisecond
	membershipPoll   = 500 * time.Millisecond
)

// registrar is the part of the coordinator client used at startup.
type registrar interface {
	Register(ctx context.Context, node cluster.NodeInfo) (int, error)
}

// instance is one running graph server.
type instance struct {
	cfg        config.ServerConfig
	logger     *logging.Logger
	membership cluster.Membership
	registrar  registrar // nil with a static server list
	svc        *service.Service
	srv        *service.Server
}

func newInstance(cfg config.ServerConfig, logger *logging.Logger, reg *prometheus.Registry) (*instance, error) {
	if cfg.ID == "" {
		cfg.ID = "graph-" + uuid.NewString()[:8]
	}
	in := &instance{cfg: cfg, logger: &logging.Logger{Logger: logging.OrNoop(logger).With("server", cfg.ID)}}

	if cfg.Coordinator != "" {
		cm := &cluster.CoordinatorMembership{Addr: strings.TrimRight(cfg.Coordinator, "/")}
		in.membership, in.registrar = cm, cm
	} else {
		sm, err := cluster.ParseStaticMembership(cfg.Servers)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", service.ErrStartup, err)
		}
		in.membership = sm
	}

	s3, err := storage.NewS3Client(cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("%w: object store: %v", service.ErrStartup, err)
	}
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	tables := make([]table.Table, 0, len(cfg.Tables))
	for _, id := range cfg.Tables {
		t, err := table.New(id, table.Options{
			ShardNum:       cfg.ShardNum,
			BucketLowBound: cfg.BucketLowBound,
			PoolSize:       cfg.PoolSize,
			Seed:           cfg.Seed,
			TrainerCount:   cfg.TrainerCount,
			Opener:         &storage.Opener{S3: s3},
			Logger:         in.logger,
			Metrics:        m,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", service.ErrStartup, err)
		}
		tables = append(tables, t)
	}

	in.svc, err = service.New(tables, service.Options{
		Membership: in.membership,
		ProfileDir: cfg.ProfileDir,
		Logger:     in.logger,
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}
	var gatherer prometheus.Gatherer
	if reg != nil {
		gatherer = reg
	}
	in.srv = service.NewServer(in.svc, gatherer)
	return in, nil
}

// start initializes the service and begins accepting connections. Serve
// errors are delivered on the returned channel.
func (in *instance) start() (<-chan error, error) {
	if err := in.svc.Initialize(); err != nil {
		return nil, err
	}
	if err := in.srv.Listen(in.cfg.Listen); err != nil {
		return nil, err
	}
	errCh := make(chan error, 1)
	go func() {
		in.logger.Info("graph server listening", "addr", in.srv.Addr().String())
		errCh <- in.srv.Serve()
	}()
	return errCh, nil
}

// join obtains this server's rank, waits for the cluster to fill and
// assigns shard ranges.
func (in *instance) join(ctx context.Context) error {
	rank := in.cfg.Rank
	want := 1
	if in.registrar != nil {
		r, err := register(ctx, in.registrar, cluster.NodeInfo{ID: in.cfg.ID, Addr: in.cfg.Addr}, registerAttempts, registerDelay)
		if err != nil {
			return err
		}
		rank, want = r, in.cfg.ExpectedServers
		in.logger.Info("registered with coordinator", "coordinator", in.cfg.Coordinator, "rank", rank)
	}
	nodes, err := cluster.WaitForServers(ctx, in.membership, want, membershipPoll)
	if err != nil {
		return fmt.Errorf("waiting for %d servers: %w", want, err)
	}
	// Every server and client sizes the shard layout from the same list, so
	// a coordinator holding more servers than expected is a deployment error.
	if in.registrar != nil && len(nodes) > want {
		return fmt.Errorf("%w: coordinator lists %d servers, expected %d", service.ErrStartup, len(nodes), want)
	}
	return in.svc.InitializeShardInfo(ctx, rank)
}

func (in *instance) shutdown(ctx context.Context) error {
	err := in.srv.Shutdown(ctx)
	return errors.Join(err, in.svc.Stop())
}

// register announces node, retrying on any failure.
func register(ctx context.Context, r registrar, node cluster.NodeInfo, attempts int, delay time.Duration) (int, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		rank, err := r.Register(ctx, node)
		if err == nil {
			return rank, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
	return 0, fmt.Errorf("register with coordinator after %d attempts: %w", attempts, lastErr)
}

func run(ctx context.Context, cfg config.ServerConfig) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level, cfg.Log.Format)

	in, err := newInstance(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveErr, err := in.start()
	if err != nil {
		return err
	}
	stop := func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := in.shutdown(shutdownCtx); err != nil {
			in.logger.Warn("shutdown", "error", err)
		}
	}

	if err := in.join(ctx); err != nil {
		stop()
		return err
	}

	select {
	case <-ctx.Done():
		in.logger.Info("signal received, stopping")
	case <-in.svc.Done():
		in.logger.Info("stop requested, stopping")
	case err := <-serveErr:
		if err != nil {
			stop()
			return fmt.Errorf("serve: %w", err)
		}
	}
	stop()
	in.logger.Info("graph server stopped")
	return nil
}

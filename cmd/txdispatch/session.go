package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/gateway-fm/txdispatch/internal/audit"
	"github.com/gateway-fm/txdispatch/internal/chain"
	"github.com/gateway-fm/txdispatch/internal/config"
	"github.com/gateway-fm/txdispatch/internal/dispatch"
	"github.com/gateway-fm/txdispatch/internal/metrics"
	"github.com/gateway-fm/txdispatch/internal/monitor"
	"github.com/gateway-fm/txdispatch/internal/storage"
	"github.com/gateway-fm/txdispatch/internal/transport"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

const shutdownTimeout = 5 * time.Second

// session owns what outlives a single run: run history, the live monitor
// and the optional status server.
type session struct {
	*app
	out     io.Writer
	monitor *monitor.Monitor
	store   storage.Storage

	status *transport.Server
	srv    *http.Server
}

// runRequest describes one scheduler run.
type runRequest struct {
	Kind    types.RunKind
	Node    config.Node
	Gateway chain.Gateway
	Config  dispatch.Config
	Job     dispatch.Job
	// AuditLog is a file name under AuditDir that records are appended to.
	AuditLog string
	// Labels are merged into the stored run config.
	Labels map[string]any
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openSession opens run history and starts the status server when they
// are configured. nodes get one readiness check each.
func (a *app) openSession(out io.Writer, nodes []config.Node) (*session, error) {
	s := &session{app: a, out: out}

	if a.cfg.DatabasePath != "" {
		store, err := storage.NewSQLiteStorage(a.cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		s.store = store
		a.logger.Info("initialized storage", slog.String("path", a.cfg.DatabasePath))
	}
	s.monitor = monitor.New(s.store, a.prom)

	if a.cfg.ListenAddr != "" {
		checks := make([]transport.HealthCheck, 0, len(nodes))
		for _, n := range nodes {
			gw := a.gateway(n)
			checks = append(checks, transport.HealthCheck{
				Name: n.Name,
				Check: func(ctx context.Context) error {
					_, err := gw.ChainID(ctx)
					return err
				},
			})
		}
		s.status = transport.NewServer(s.monitor, checks, a.logger, a.cfg.CORSAllowedOrigins)
		s.srv = &http.Server{
			Addr:              a.cfg.ListenAddr,
			Handler:           s.status.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Info("starting HTTP server", slog.String("addr", a.cfg.ListenAddr))
			if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("HTTP server failed", slog.String("err", err.Error()))
			}
		}()
	}
	return s, nil
}

// Close stops the status server and closes run history.
func (s *session) Close() {
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP server shutdown", slog.String("err", err.Error()))
		}
		cancel()
		s.status.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing storage", slog.String("err", err.Error()))
		}
	}
}

// dispatch runs req under a fresh run id. The run is recorded in history,
// its records go to the audit log and the stored tx log, and its stats are
// printed and written to StatsOut.
func (s *session) dispatch(ctx context.Context, req runRequest) (*metrics.RunStats, error) {
	id := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", id), slog.String("kind", string(req.Kind)))

	summary := req.Config.Summary()
	summary["node"] = req.Node.Name
	maps.Copy(summary, req.Labels)

	agg := metrics.NewAggregator(metrics.AggregatorConfig{
		Kind:       string(req.Kind),
		Prometheus: s.prom,
		Config:     summary,
	})
	s.monitor.Begin(id, req.Kind, req.Config.Count, agg)
	if s.prom != nil {
		s.prom.SetTargetTPS(req.Config.TargetRate)
	}

	var sinks audit.Multi
	var fileLog *audit.FileLog
	if req.AuditLog != "" {
		fl, err := audit.OpenFileLog(filepath.Join(s.cfg.AuditDir, req.AuditLog))
		if err != nil {
			s.monitor.End(err)
			return nil, err
		}
		fileLog = fl
		sinks = append(sinks, fl)
	}

	var txLog *storage.TxLogSink
	if s.store != nil {
		run := storage.NewRun(id, req.Kind, req.Node.ChainID, req.Config.Count, summary)
		if err := s.store.CreateRun(ctx, run); err != nil {
			logger.Warn("run not recorded in history", slog.String("err", err.Error()))
		} else {
			txLog = storage.NewTxLogSink(s.store, id, storage.DefaultFlushSize)
			sinks = append(sinks, txLog)
		}
	}

	cfg := req.Config
	cfg.Logger = logger
	job := req.Job
	job.Audit = sinks
	job.Stats = agg
	job.Observer = s.monitor

	logger.Info("run starting", slog.String("node", req.Node.Name), slog.Int("count", cfg.Count))
	stats, runErr := dispatch.New(req.Gateway, nil, cfg).Run(ctx, job)

	if fileLog != nil {
		if err := fileLog.Close(); err != nil {
			logger.Warn("closing audit log", slog.String("err", err.Error()))
		}
	}
	if txLog != nil {
		if err := txLog.Close(); err != nil {
			logger.Warn("flushing tx log", slog.String("err", err.Error()))
		}
		fin := storage.Finish{State: types.StateCompleted, Stats: stats, Err: runErr}
		if runErr != nil {
			fin.State = types.StateError
		}
		if err := s.store.FinishRun(context.WithoutCancel(ctx), id, fin); err != nil {
			logger.Warn("recording run result", slog.String("err", err.Error()))
		}
	}
	s.monitor.End(runErr)

	if stats != nil {
		metrics.LogSummary(logger, stats)
		metrics.PrintSummary(s.out, stats)
		if s.cfg.StatsOut != "" {
			if err := metrics.WriteReport(s.cfg.StatsOut, stats); err != nil {
				logger.Warn("writing stats report", slog.String("err", err.Error()))
			}
		}
	}
	if runErr != nil {
		return stats, fmt.Errorf("%s run on %s: %w", req.Kind, req.Node.Name, runErr)
	}
	return stats, nil
}

// Package app implements the supervisor bounded context: the top-level run
// loop owner. It ticks the market maker's Pass, drives the
// arb monitor's scan loop, watches every venue's WsFeed for silent
// disconnects, and periodically flushes the mm-metrics.json /
// cross-platform-metrics.json / cross-platform-state.json snapshots.
// None of the business logic lives here: it only schedules calls into
// maker/arb/marketdata and owns the process's graceful-shutdown
// discipline: loops drain within five seconds of cancellation.
package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	arbapp "github.com/predikt/arb-agent/business/arb/app"
	makerapp "github.com/predikt/arb-agent/business/maker/app"
	marketdataapp "github.com/predikt/arb-agent/business/marketdata/app"
	"github.com/predikt/arb-agent/internal/logger"
)

// MakerRunner is the subset of MarketMakerService the supervisor drives.
type MakerRunner interface {
	Pass(ctx context.Context) error
	MetricsSnapshot() makerapp.Snapshot
}

// MonitorRunner is the subset of ArbMonitor the supervisor drives.
type MonitorRunner interface {
	Run(ctx context.Context) error
	MetricsSnapshot() arbapp.MetricsSnapshot
	StateSnapshot() arbapp.StateSnapshot
}

// Config carries every clock and file path the supervisor owns.
type Config struct {
	MakerInterval        time.Duration
	WatchdogInterval     time.Duration
	WsStaleMaxAge        time.Duration
	MetricsFlushInterval time.Duration
	MakerMetricsPath     string
	CrossMetricsPath     string
	CrossStatePath       string
	ShutdownGrace        time.Duration
}

func (c Config) withDefaults() Config {
	if c.MakerInterval <= 0 {
		c.MakerInterval = time.Second
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = 10 * time.Second
	}
	if c.WsStaleMaxAge <= 0 {
		c.WsStaleMaxAge = 30 * time.Second
	}
	if c.MetricsFlushInterval <= 0 {
		c.MetricsFlushInterval = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	return c
}

// Supervisor owns the process's background loops. Either maker or monitor
// may be nil: predikt-mm only sets maker, predikt-arb only sets monitor.
type Supervisor struct {
	maker   MakerRunner
	monitor MonitorRunner
	feeds   map[string]marketdataapp.WsFeed
	cfg     Config
	log     logger.LoggerInterface
}

// New builds a Supervisor. feeds is keyed by venue name for watchdog
// logging; a nil or disabled feed is simply skipped.
func New(maker MakerRunner, monitor MonitorRunner, feeds map[string]marketdataapp.WsFeed, cfg Config, log logger.LoggerInterface) *Supervisor {
	return &Supervisor{
		maker:   maker,
		monitor: monitor,
		feeds:   feeds,
		cfg:     cfg.withDefaults(),
		log:     log,
	}
}

// Run starts every owned loop and blocks until ctx is cancelled, then drains
// within cfg.ShutdownGrace before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if s.maker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runMaker(ctx)
		}()
	}

	if s.monitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.monitor.Run(ctx); err != nil && s.log != nil && ctx.Err() == nil {
				s.log.Error(ctx, "supervisor: monitor run exited with error", "err", err)
			}
		}()
	}

	if len(s.feeds) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWatchdog(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runMetricsFlush(ctx)
	}()

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		if s.log != nil {
			s.log.Warn(ctx, "supervisor: shutdown grace period elapsed with loops still draining")
		}
	}

	s.flushMetrics(context.Background())
	return nil
}

func (s *Supervisor) runMaker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MakerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.maker.Pass(ctx); err != nil && s.log != nil {
				s.log.Warn(ctx, "supervisor: maker pass failed", "err", err)
			}
		}
	}
}

func (s *Supervisor) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkFeeds(ctx)
		}
	}
}

// checkFeeds logs a warning per venue whose feed has gone silent or
// disconnected. WsFeed owns its own reconnect/backoff; the
// watchdog only observes and reports, it never restarts a feed directly.
func (s *Supervisor) checkFeeds(ctx context.Context) {
	now := time.Now()
	for venue, feed := range s.feeds {
		if feed == nil {
			continue
		}
		st := feed.Status()
		if !st.Connected {
			if s.log != nil {
				s.log.Warn(ctx, "supervisor: ws feed disconnected", "venue", venue, "subscribed", st.Subscribed)
			}
			continue
		}
		if st.LastMessageAt.IsZero() {
			continue
		}
		if now.Sub(st.LastMessageAt) > s.cfg.WsStaleMaxAge {
			if s.log != nil {
				s.log.Warn(ctx, "supervisor: ws feed stale", "venue", venue, "age", now.Sub(st.LastMessageAt))
			}
		}
	}
}

func (s *Supervisor) runMetricsFlush(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MetricsFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushMetrics(ctx)
		}
	}
}

func (s *Supervisor) flushMetrics(ctx context.Context) {
	now := time.Now().Unix()

	if s.maker != nil && s.cfg.MakerMetricsPath != "" {
		snap := s.maker.MetricsSnapshot()
		snap.Ts = now
		if err := writeAtomicJSON(s.cfg.MakerMetricsPath, snap); err != nil && s.log != nil {
			s.log.Warn(ctx, "supervisor: mm-metrics flush failed", "err", err)
		}
	}

	if s.monitor != nil {
		if s.cfg.CrossMetricsPath != "" {
			snap := s.monitor.MetricsSnapshot()
			snap.Ts = now
			if err := writeAtomicJSON(s.cfg.CrossMetricsPath, snap); err != nil && s.log != nil {
				s.log.Warn(ctx, "supervisor: cross-platform-metrics flush failed", "err", err)
			}
		}
		if s.cfg.CrossStatePath != "" {
			state := s.monitor.StateSnapshot()
			state.Ts = now
			if err := writeAtomicJSON(s.cfg.CrossStatePath, state); err != nil && s.log != nil {
				s.log.Warn(ctx, "supervisor: cross-platform-state flush failed", "err", err)
			}
		}
	}
}

// writeAtomicJSON marshals v and writes it to path via a temp file plus
// rename, matching the mapping file store's crash-safe write discipline.
func writeAtomicJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

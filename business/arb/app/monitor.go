package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	arbdomain "github.com/predikt/arb-agent/business/arb/domain"
	detectdomain "github.com/predikt/arb-agent/business/detect/domain"
	mdomain "github.com/predikt/arb-agent/business/marketdata/domain"
	"github.com/predikt/arb-agent/internal/logger"
)

// ScannerSource is the subset of detect/app.Scanner the monitor drives.
// ScanSubset takes venue-qualified token keys ("venue:tokenID") and scans
// only the market groups those tokens belong to.
type ScannerSource interface {
	Scan(ctx context.Context) ([]detectdomain.Opportunity, error)
	ScanSubset(ctx context.Context, dirtyKeys map[string]struct{}) ([]detectdomain.Opportunity, error)
}

// MonitorConfig carries the periodic-clock and auto-execution gating knobs.
type MonitorConfig struct {
	ScanInterval      time.Duration
	ExecuteTopN       int
	ExecutionCooldown time.Duration
	StabilityMinCount int
	StabilityWindow   time.Duration
	AlertMinInterval  time.Duration

	// RequireWs refuses to scan at all when no venue feed is running, so a
	// misconfigured deployment can't trade off REST snapshots alone.
	RequireWs       bool
	RequireWsHealth bool
	WsMaxAge        time.Duration

	AutoExecute          bool
	AutoExecuteValue     bool
	CrossPlatformExecute bool

	// EdgeThreshold mirrors the detector's own edge floor: preflight re-runs the scan and rejects unless the
	// refreshed opportunity still clears it, not merely edge > 0.
	EdgeThreshold float64

	MaxErrors    int
	ErrorWindow  time.Duration
	PauseOnError time.Duration

	WsRealtime         bool
	WsRealtimeInterval time.Duration
	WsRealtimeMaxBatch int
}

// ArbMonitor runs the periodic scan loop, dedups/alerts/stabilizes
// opportunities against their KeyState, gates auto-execution behind the
// error-window circuit breaker and WS-health check, and hands eligible
// opportunities to Executor.
type ArbMonitor struct {
	scanner  ScannerSource
	executor *Executor
	notifier Notifier
	wsHealth []WsHealthSource
	cfg      MonitorConfig
	log      logger.LoggerInterface
	metrics  *monitorMetrics

	mu     sync.Mutex
	states map[string]*arbdomain.KeyState
	errors *arbdomain.ErrorWindow

	dirtyMu sync.Mutex
	dirty   map[string]struct{}

	// Snapshot counters, mirroring the OTEL instruments above so
	// cross-platform-metrics.json can be written without a metrics
	// reader.
	scansRun        atomic.Int64
	opportunities   atomic.Int64
	alertsSent      atomic.Int64
	autoExecutions  atomic.Int64
	executionErrors atomic.Int64

	lastMu   sync.Mutex
	lastOpps []detectdomain.Opportunity
}

// MetricsSnapshot is the periodic file-export shape for
// cross-platform-metrics.json.
type MetricsSnapshot struct {
	Version         int   `json:"version"`
	Ts              int64 `json:"ts"`
	ScansRun        int64 `json:"scansRun"`
	Opportunities   int64 `json:"opportunitiesFound"`
	AlertsSent      int64 `json:"alertsSent"`
	AutoExecutions  int64 `json:"autoExecutions"`
	ExecutionErrors int64 `json:"executionErrors"`
	BreakerClosed   bool  `json:"breakerClosed"`
}

// MetricsSnapshot returns a JSON-ready view of this monitor's counters.
func (m *ArbMonitor) MetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Version:         1,
		ScansRun:        m.scansRun.Load(),
		Opportunities:   m.opportunities.Load(),
		AlertsSent:      m.alertsSent.Load(),
		AutoExecutions:  m.autoExecutions.Load(),
		ExecutionErrors: m.executionErrors.Load(),
		BreakerClosed:   m.errors.Closed(time.Now()),
	}
}

// StateSnapshot is the periodic file-export shape for
// cross-platform-state.json: the opportunities surfaced by the most
// recent completed scan.
type StateSnapshot struct {
	Version       int                        `json:"version"`
	Ts            int64                      `json:"ts"`
	Opportunities []detectdomain.Opportunity `json:"opportunities"`
}

// StateSnapshot returns the opportunities found on the last completed Pass.
func (m *ArbMonitor) StateSnapshot() StateSnapshot {
	m.lastMu.Lock()
	defer m.lastMu.Unlock()
	return StateSnapshot{Version: 1, Opportunities: m.lastOpps}
}

// NewArbMonitor builds an ArbMonitor. wsHealth may be empty when
// cfg.RequireWsHealth is false.
func NewArbMonitor(scanner ScannerSource, executor *Executor, notifier Notifier, wsHealth []WsHealthSource, cfg MonitorConfig, log logger.LoggerInterface) *ArbMonitor {
	return &ArbMonitor{
		scanner:  scanner,
		executor: executor,
		notifier: notifier,
		wsHealth: wsHealth,
		cfg:      cfg,
		log:      log,
		metrics:  newMonitorMetrics(log),
		states:   make(map[string]*arbdomain.KeyState),
		errors:   arbdomain.NewErrorWindow(cfg.MaxErrors, cfg.ErrorWindow, cfg.PauseOnError),
		dirty:    make(map[string]struct{}),
	}
}

// MarkDirty records a token whose book just changed, for the realtime
// clock to pick up on its next flush. The arb Module's Startup feeds it
// from the BookStore change channel.
func (m *ArbMonitor) MarkDirty(venue mdomain.Venue, tokenID string) {
	m.dirtyMu.Lock()
	defer m.dirtyMu.Unlock()
	m.dirty[string(venue)+":"+tokenID] = struct{}{}
}

// Run drives the periodic clock until ctx is cancelled, and the realtime
// clock alongside it when WsRealtime is enabled. It returns once both
// loops have drained.
func (m *ArbMonitor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.runPeriodic(ctx)
	}()

	if m.cfg.WsRealtime {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runRealtime(ctx)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func (m *ArbMonitor) runPeriodic(ctx context.Context) {
	interval := m.cfg.ScanInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Pass(ctx)
		}
	}
}

func (m *ArbMonitor) runRealtime(ctx context.Context) {
	interval := m.cfg.WsRealtimeInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch := m.flushDirty()
			if len(batch) == 0 {
				continue
			}
			opps, err := m.scanner.ScanSubset(ctx, batch)
			if err != nil {
				if m.log != nil {
					m.log.Warn(ctx, "arb monitor: realtime scan failed", "err", err)
				}
				continue
			}
			m.process(ctx, opps, false)
		}
	}
}

// flushDirty drains up to WsRealtimeMaxBatch venue-qualified token keys
// from the dirty set; remaining entries carry over to the next tick.
func (m *ArbMonitor) flushDirty() map[string]struct{} {
	m.dirtyMu.Lock()
	defer m.dirtyMu.Unlock()
	if len(m.dirty) == 0 {
		return nil
	}
	max := m.cfg.WsRealtimeMaxBatch
	if max <= 0 {
		max = len(m.dirty)
	}
	batch := make(map[string]struct{}, max)
	for k := range m.dirty {
		delete(m.dirty, k)
		batch[k] = struct{}{}
		if len(batch) >= max {
			break
		}
	}
	return batch
}

// Pass runs one scan, updates every surfaced opportunity's KeyState, alerts
// on new or repeat sightings past AlertMinInterval, and auto-executes the
// top ExecuteTopN eligible opportunities.
func (m *ArbMonitor) Pass(ctx context.Context) {
	if m.cfg.RequireWs && len(m.wsHealth) == 0 {
		if m.log != nil {
			m.log.Warn(ctx, "arb monitor: scanning requires a live ws feed and none is enabled")
		}
		return
	}
	start := time.Now()
	opps, err := m.scanner.Scan(ctx)
	if err != nil {
		if m.log != nil {
			m.log.Error(ctx, "arb monitor: scan failed", "err", err)
		}
		return
	}
	if m.metrics != nil && m.metrics.scanLatency != nil {
		m.metrics.scanLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	m.process(ctx, opps, true)
}

// process runs the dedup/alert/stability/execute pipeline over one scan's
// opportunities. fullScan distinguishes the periodic clock from a realtime
// subset flush: only a full scan replaces the state snapshot's view.
func (m *ArbMonitor) process(ctx context.Context, opps []detectdomain.Opportunity, fullScan bool) {
	m.scansRun.Add(1)
	if fullScan {
		m.lastMu.Lock()
		m.lastOpps = opps
		m.lastMu.Unlock()
	}

	now := time.Now()
	for i, opp := range opps {
		m.opportunities.Add(1)
		if m.metrics != nil && m.metrics.opportunitiesFound != nil {
			m.metrics.opportunitiesFound.Add(ctx, 1)
		}
		if m.metrics != nil && m.metrics.opportunityEdgeBps != nil {
			m.metrics.opportunityEdgeBps.Record(ctx, opp.Edge*10000)
		}

		state := m.stateFor(opp.Key)
		state.RecordSighting(now, m.cfg.StabilityWindow)

		if state.ShouldAlert(now, m.cfg.AlertMinInterval) && m.notifier != nil {
			if err := m.notifier.Notify(ctx, opp); err != nil {
				if m.log != nil {
					m.log.Warn(ctx, "arb monitor: alert failed", "key", opp.Key, "err", err)
				}
			} else {
				state.RecordAlert(now)
				m.alertsSent.Add(1)
				if m.metrics != nil && m.metrics.alertsSent != nil {
					m.metrics.alertsSent.Add(ctx, 1)
				}
			}
		}

		if m.cfg.ExecuteTopN > 0 && i >= m.cfg.ExecuteTopN {
			continue
		}
		m.maybeExecute(ctx, opp, state, now)
	}
}

func (m *ArbMonitor) maybeExecute(ctx context.Context, opp detectdomain.Opportunity, state *arbdomain.KeyState, now time.Time) {
	if !m.autoExecuteEligible(opp) {
		return
	}
	if state.CooldownActive(now, m.cfg.ExecutionCooldown) {
		return
	}
	if !state.Stable(m.cfg.StabilityMinCount) {
		return
	}
	if !m.errors.Closed(now) {
		return
	}
	if m.cfg.RequireWsHealth && !m.wsHealthy(now) {
		return
	}

	fresh, ok := m.preflight(ctx, opp)
	if !ok {
		return
	}

	result := m.executor.Execute(ctx, fresh)
	state.RecordExecution(now)
	if result.Status == arbdomain.StatusExecuted {
		m.autoExecutions.Add(1)
		if m.metrics != nil && m.metrics.autoExecutions != nil {
			m.metrics.autoExecutions.Add(ctx, 1)
		}
		return
	}
	m.errors.RecordError(now)
	m.executionErrors.Add(1)
	if m.metrics != nil && m.metrics.executionErrors != nil {
		m.metrics.executionErrors.Add(ctx, 1)
	}
	if m.log != nil {
		m.log.Error(ctx, "arb monitor: execution failed", "key", opp.Key, "err", result.Err)
	}
}

// autoExecuteEligible applies the per-kind auto-execute gate: the general
// switch must be on, plus a kind-specific switch for the riskier kinds.
func (m *ArbMonitor) autoExecuteEligible(opp detectdomain.Opportunity) bool {
	if !m.cfg.AutoExecute {
		return false
	}
	switch opp.Kind {
	case detectdomain.KindValueMismatch:
		return m.cfg.AutoExecuteValue
	case detectdomain.KindCrossVenue:
		return m.cfg.CrossPlatformExecute
	default:
		return true
	}
}

// preflight re-scans just the market groups the opportunity depends on and
// looks up the same key, rejecting execution if the opportunity vanished or
// its edge has fallen back to (or below) the detector's own threshold since
// the pass that found it.
func (m *ArbMonitor) preflight(ctx context.Context, opp detectdomain.Opportunity) (detectdomain.Opportunity, bool) {
	keys := opportunityTokenKeys(opp)
	var (
		fresh []detectdomain.Opportunity
		err   error
	)
	if len(keys) > 0 {
		fresh, err = m.scanner.ScanSubset(ctx, keys)
	} else {
		fresh, err = m.scanner.Scan(ctx)
	}
	if err != nil {
		return detectdomain.Opportunity{}, false
	}
	for _, f := range fresh {
		if f.Key == opp.Key && f.Edge > m.cfg.EdgeThreshold {
			return f, true
		}
	}
	return detectdomain.Opportunity{}, false
}

// opportunityTokenKeys collects the token identities an opportunity's edge
// was computed from, venue-qualified where the opportunity records a venue
// and bare otherwise.
func opportunityTokenKeys(opp detectdomain.Opportunity) map[string]struct{} {
	keys := make(map[string]struct{})
	add := func(venue, token string) {
		if token == "" {
			return
		}
		if venue != "" {
			keys[venue+":"+token] = struct{}{}
		} else {
			keys[token] = struct{}{}
		}
	}
	add("", opp.TokenID)
	add("", opp.YesToken)
	add("", opp.NoToken)
	add(opp.LegA.Venue, opp.LegA.TokenID)
	add(opp.LegB.Venue, opp.LegB.TokenID)
	for _, l := range opp.Legs {
		add(l.Venue, l.TokenID)
	}
	return keys
}

func (m *ArbMonitor) wsHealthy(now time.Time) bool {
	if len(m.wsHealth) == 0 {
		return false
	}
	for _, h := range m.wsHealth {
		if !h.Connected() {
			return false
		}
		t, ok := h.LastMessageAt()
		if !ok {
			return false
		}
		if now.Sub(time.Unix(t, 0)) > m.cfg.WsMaxAge {
			return false
		}
	}
	return true
}

func (m *ArbMonitor) stateFor(key string) *arbdomain.KeyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[key]
	if !ok {
		s = &arbdomain.KeyState{}
		m.states[key] = s
	}
	return s
}

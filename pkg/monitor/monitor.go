package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwisp/wisp/pkg/events"
	"github.com/cloudwisp/wisp/pkg/log"
	"github.com/cloudwisp/wisp/pkg/metrics"
	"github.com/cloudwisp/wisp/pkg/storage"
	"github.com/cloudwisp/wisp/pkg/types"
	"github.com/rs/zerolog"
)

// Config holds monitor timing configuration
type Config struct {
	// Interval is the time between probes of one site
	Interval time.Duration

	// Timeout bounds a single probe; a failure is declared only once
	// it elapses, and the next tick is the retry
	Timeout time.Duration

	// SyncInterval is how often the monitor reconciles its probe loops
	// against the registry (new and removed sites)
	SyncInterval time.Duration
}

// DefaultConfig returns monitor timings for production use
func DefaultConfig() Config {
	return Config{
		Interval:     time.Minute,
		Timeout:      5 * time.Second,
		SyncInterval: 10 * time.Second,
	}
}

// Monitor runs one independent probe loop per registered site and keeps
// the registry's status field current. Probe errors are absorbed into
// status transitions and logs; they never propagate to a caller, since
// transient unreachability is the monitor's normal weather.
type Monitor struct {
	store  storage.Store
	prober Prober
	broker *events.Broker
	config Config
	logger zerolog.Logger

	mu     sync.Mutex
	loops  map[string]context.CancelFunc
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewMonitor creates a connectivity monitor
func NewMonitor(store storage.Store, prober Prober, broker *events.Broker, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultConfig().SyncInterval
	}
	return &Monitor{
		store:  store,
		prober: prober,
		broker: broker,
		config: cfg,
		logger: log.WithComponent("monitor"),
		loops:  make(map[string]context.CancelFunc),
		stopCh: make(chan struct{}),
	}
}

// Start begins monitoring all registered sites
func (m *Monitor) Start() {
	m.syncLoops()
	m.wg.Add(1)
	go m.run()
}

// Stop cancels every probe loop and waits for them to exit
func (m *Monitor) Stop() {
	close(m.stopCh)

	m.mu.Lock()
	for _, cancel := range m.loops {
		cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.syncLoops()
		case <-m.stopCh:
			return
		}
	}
}

// syncLoops reconciles probe loops with the registry: new sites get a
// loop, deregistered sites lose theirs.
func (m *Monitor) syncLoops() {
	sites, err := m.store.ListSites()
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to list sites")
		return
	}

	current := make(map[string]*types.Site, len(sites))
	for _, site := range sites {
		if site.Active {
			current[site.ID] = site
		}
	}
	m.updateFleetGauges(sites)

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.stopCh:
		return
	default:
	}

	for id, cancel := range m.loops {
		if _, exists := current[id]; !exists {
			cancel()
			delete(m.loops, id)
		}
	}

	for id, site := range current {
		if _, exists := m.loops[id]; exists {
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.loops[id] = cancel
		m.wg.Add(1)
		go m.probeLoop(ctx, site)
	}
}

// updateFleetGauges recomputes the fleet-level gauges from the
// registry snapshot the loop reconciliation already paid for
func (m *Monitor) updateFleetGauges(sites []*types.Site) {
	metrics.SitesTotal.Reset()
	for _, site := range sites {
		metrics.SitesTotal.WithLabelValues(string(site.Kind), string(site.Status)).Inc()
		if users, err := m.store.ListMirror(site.ID); err == nil {
			metrics.MirrorUsersTotal.WithLabelValues(site.ID).Set(float64(len(users)))
		}
	}
}

// probeLoop probes one site at a fixed interval. Each site's loop is
// its own goroutine: a hung or slow site delays nobody else, and its
// own probe is bounded by the configured timeout.
func (m *Monitor) probeLoop(ctx context.Context, site *types.Site) {
	defer m.wg.Done()

	logger := m.logger.With().Str("site_id", site.ID).Logger()
	status := site.Status
	if status == "" {
		status = types.SiteStatusUnknown
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
		err := m.prober.Probe(probeCtx, site)
		cancel()

		if ctx.Err() != nil {
			return
		}

		next := types.SiteStatusOnline
		if err != nil {
			next = types.SiteStatusOffline
			logger.Debug().Err(err).Msg("probe failed")
		}
		metrics.RecordProbe(site.ID, err == nil)

		now := time.Now()
		if uerr := m.store.UpdateSiteStatus(site.ID, next, now); uerr != nil {
			logger.Error().Err(uerr).Msg("failed to update site status")
			continue
		}

		if next != status {
			logger.Info().
				Str("old_status", string(status)).
				Str("new_status", string(next)).
				Msg("site status changed")
			metrics.StatusTransitionsTotal.WithLabelValues(string(next)).Inc()
			m.publishTransition(site.ID, status, next, now)
			status = next
		}
	}
}

func (m *Monitor) publishTransition(siteID string, old, next types.SiteStatus, ts time.Time) {
	if m.broker == nil {
		return
	}

	eventType := events.EventSiteOffline
	if next == types.SiteStatusOnline {
		eventType = events.EventSiteOnline
	}
	m.broker.Publish(&events.Event{
		Type:   eventType,
		SiteID: siteID,
		Change: &types.StatusChange{
			SiteID:    siteID,
			OldStatus: old,
			NewStatus: next,
			Timestamp: ts,
		},
	})
}

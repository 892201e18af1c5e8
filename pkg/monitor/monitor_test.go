package monitor

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cloudwisp/wisp/pkg/events"
	"github.com/cloudwisp/wisp/pkg/log"
	"github.com/cloudwisp/wisp/pkg/storage"
	"github.com/cloudwisp/wisp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

var errProbeFailed = errors.New("probe failed")

// scriptedProber answers each site's probes from a fixed script,
// repeating the last entry once the script is exhausted.
type scriptedProber struct {
	mu      sync.Mutex
	scripts map[string][]error
	calls   map[string]int
}

func newScriptedProber() *scriptedProber {
	return &scriptedProber{
		scripts: make(map[string][]error),
		calls:   make(map[string]int),
	}
}

func (p *scriptedProber) script(siteID string, errs ...error) {
	p.mu.Lock()
	p.scripts[siteID] = errs
	p.mu.Unlock()
}

func (p *scriptedProber) Probe(_ context.Context, site *types.Site) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	script := p.scripts[site.ID]
	i := p.calls[site.ID]
	p.calls[site.ID]++
	if i >= len(script) {
		i = len(script) - 1
	}
	if i < 0 {
		return nil
	}
	return script[i]
}

func (p *scriptedProber) callCount(siteID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[siteID]
}

func registerSite(t *testing.T, store storage.Store, id string, kind types.SiteKind) *types.Site {
	t.Helper()
	site := &types.Site{
		ID:        id,
		Name:      id,
		Kind:      kind,
		Endpoint:  types.Endpoint{Host: id + ".test", Port: 80},
		Status:    types.SiteStatusUnknown,
		CreatedAt: time.Now(),
		Active:    true,
	}
	require.NoError(t, store.RegisterSite(site))
	return site
}

func collectChanges(t *testing.T, sub events.Subscriber, siteID string, n int, timeout time.Duration) []types.StatusChange {
	t.Helper()
	var changes []types.StatusChange
	deadline := time.After(timeout)
	for len(changes) < n {
		select {
		case event := <-sub:
			if event.Change != nil && event.Change.SiteID == siteID {
				changes = append(changes, *event.Change)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %d status changes of %s, got %d", n, siteID, len(changes))
		}
	}
	return changes
}

func TestStatusHistoryAlternatingAvailability(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	prober := newScriptedProber()
	prober.script("s1", nil, errProbeFailed, nil, errProbeFailed)
	registerSite(t, store, "s1", types.SiteKindRemote)

	mon := NewMonitor(store, prober, broker, Config{
		Interval:     20 * time.Millisecond,
		Timeout:      10 * time.Millisecond,
		SyncInterval: 10 * time.Millisecond,
	})
	mon.Start()
	defer mon.Stop()

	// Unknown → Online → Offline → Online, one event per transition
	changes := collectChanges(t, sub, "s1", 3, 3*time.Second)

	assert.Equal(t, types.SiteStatusUnknown, changes[0].OldStatus)
	assert.Equal(t, types.SiteStatusOnline, changes[0].NewStatus)
	assert.Equal(t, types.SiteStatusOnline, changes[1].OldStatus)
	assert.Equal(t, types.SiteStatusOffline, changes[1].NewStatus)
	assert.Equal(t, types.SiteStatusOffline, changes[2].OldStatus)
	assert.Equal(t, types.SiteStatusOnline, changes[2].NewStatus)

	got, err := store.GetSite("s1")
	require.NoError(t, err)
	assert.NotZero(t, got.LastHeartbeat)
}

func TestSteadyStateEmitsNoEvents(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	prober := newScriptedProber()
	prober.script("s1", nil) // always reachable
	registerSite(t, store, "s1", types.SiteKindRemote)

	mon := NewMonitor(store, prober, broker, Config{
		Interval:     10 * time.Millisecond,
		Timeout:      5 * time.Millisecond,
		SyncInterval: 10 * time.Millisecond,
	})
	mon.Start()
	defer mon.Stop()

	// First probe flips Unknown → Online
	collectChanges(t, sub, "s1", 1, 2*time.Second)

	// Let many further probes run; none may produce an event
	time.Sleep(100 * time.Millisecond)
	select {
	case event := <-sub:
		if event.Change != nil {
			t.Fatalf("unexpected extra transition: %+v", event.Change)
		}
	default:
	}
	assert.GreaterOrEqual(t, prober.callCount("s1"), 3, "probing should have continued")
}

// hangingProber blocks until the probe context is cancelled
type hangingProber struct {
	inner Prober
}

func (p *hangingProber) Probe(ctx context.Context, site *types.Site) error {
	if site.ID == "hung" {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.inner.Probe(ctx, site)
}

func TestHungSiteDoesNotDelayOthers(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	prober := newScriptedProber()
	prober.script("healthy", nil)
	registerSite(t, store, "hung", types.SiteKindRemote)
	registerSite(t, store, "healthy", types.SiteKindRemote)

	mon := NewMonitor(store, &hangingProber{inner: prober}, broker, Config{
		Interval:     20 * time.Millisecond,
		Timeout:      200 * time.Millisecond,
		SyncInterval: 10 * time.Millisecond,
	})
	mon.Start()
	defer mon.Stop()

	// The healthy site's transition must land while the hung site's
	// probe is still parked inside its timeout.
	start := time.Now()
	changes := collectChanges(t, sub, "healthy", 1, 2*time.Second)
	assert.Equal(t, types.SiteStatusOnline, changes[0].NewStatus)
	assert.Less(t, time.Since(start), 200*time.Millisecond,
		"healthy site's probe must not wait on the hung site")

	// And the hung site goes Offline only once its own timeout elapses
	hungChanges := collectChanges(t, sub, "hung", 1, 2*time.Second)
	assert.Equal(t, types.SiteStatusOffline, hungChanges[0].NewStatus)
}

func TestDeregisteredSiteStopsBeingProbed(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	prober := newScriptedProber()
	prober.script("s1", nil)
	registerSite(t, store, "s1", types.SiteKindRemote)

	mon := NewMonitor(store, prober, broker, Config{
		Interval:     10 * time.Millisecond,
		Timeout:      5 * time.Millisecond,
		SyncInterval: 10 * time.Millisecond,
	})
	mon.Start()
	defer mon.Stop()

	require.Eventually(t, func() bool {
		return prober.callCount("s1") > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, store.DeleteSite("s1"))

	// After the next loop sync the probe count must stop moving
	require.Eventually(t, func() bool {
		before := prober.callCount("s1")
		time.Sleep(50 * time.Millisecond)
		return prober.callCount("s1") == before
	}, 2*time.Second, 10*time.Millisecond)
}

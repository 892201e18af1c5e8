package manager

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cloudwisp/wisp/pkg/device"
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

// fakeDevice is a scriptable device.Client double with call counting
type fakeDevice struct {
	mu         sync.Mutex
	calls      int
	err        error // returned by every call when set
	delay      time.Duration
	users      map[string]device.HotspotUser
	lastPolicy types.BandwidthPolicy
	nextID     int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{users: make(map[string]device.HotspotUser), nextID: 1}
}

func (f *fakeDevice) begin(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	err := f.err
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", types.ErrNotReachable, ctx.Err())
		}
	}
	return err
}

func (f *fakeDevice) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDevice) CreateUser(ctx context.Context, spec types.UserSpec) (*device.HotspotUser, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[spec.Username]; exists {
		return nil, fmt.Errorf("%w: user %q", types.ErrConflict, spec.Username)
	}
	u := device.HotspotUser{ID: fmt.Sprintf("*%d", f.nextID), Name: spec.Username, Password: spec.Password}
	f.nextID++
	f.users[spec.Username] = u
	f.lastPolicy = spec.Policy
	return &u, nil
}

func (f *fakeDevice) UpdateUser(ctx context.Context, username string, patch types.UserPatch) (*device.HotspotUser, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, exists := f.users[username]
	if !exists {
		return nil, fmt.Errorf("%w: user %q", types.ErrNotFound, username)
	}
	if patch.Password != "" {
		u.Password = patch.Password
	}
	f.users[username] = u
	if !patch.Policy.IsZero() {
		f.lastPolicy = patch.Policy
	}
	return &u, nil
}

func (f *fakeDevice) DeleteUser(ctx context.Context, username string) error {
	if err := f.begin(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, username) // absent user is still success
	return nil
}

func (f *fakeDevice) SetBandwidthPolicy(ctx context.Context, username string, policy types.BandwidthPolicy) error {
	if err := f.begin(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPolicy = policy
	return nil
}

func (f *fakeDevice) GetBandwidthPolicy(ctx context.Context, username string) (*types.BandwidthPolicy, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	policy := f.lastPolicy
	return &policy, nil
}

func (f *fakeDevice) ListUsers(ctx context.Context) ([]device.HotspotUser, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]device.HotspotUser, 0, len(f.users))
	for _, u := range f.users {
		users = append(users, u)
	}
	return users, nil
}

func (f *fakeDevice) ListInterfaces(ctx context.Context) ([]device.WirelessInterface, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeDevice) ListClients(ctx context.Context, _ string) ([]device.WirelessClient, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeDevice) GetIdentity(ctx context.Context) (*device.Identity, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	return &device.Identity{Name: "fake"}, nil
}

func (f *fakeDevice) GetResources(ctx context.Context) (*device.SystemResources, error) {
	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	return &device.SystemResources{}, nil
}

// testFleet wires a manager over a real bbolt store and fake devices
type testFleet struct {
	mgr   *Manager
	store storage.Store
	fakes map[string]*fakeDevice
}

func newTestFleet(t *testing.T, siteIDs ...string) *testFleet {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fakes := make(map[string]*fakeDevice)
	for i, id := range siteIDs {
		fakes[id] = newFakeDevice()
		require.NoError(t, store.RegisterSite(&types.Site{
			ID:        id,
			Name:      id,
			Kind:      types.SiteKindRemote,
			Endpoint:  types.Endpoint{Host: "203.0.113.30", Port: 8000 + i},
			Status:    types.SiteStatusUnknown,
			CreatedAt: time.Now(),
			Active:    true,
		}))
	}

	dialer := func(site *types.Site) device.Client {
		return fakes[site.ID]
	}
	mgr := NewManager(Config{Store: store, Dialer: dialer})
	return &testFleet{mgr: mgr, store: store, fakes: fakes}
}

func TestFanoutMixedOutcomes(t *testing.T) {
	fleet := newTestFleet(t, "A", "B", "C")

	// B times out, C already has the user
	fleet.fakes["B"].err = fmt.Errorf("%w: connect timed out", types.ErrNotReachable)
	fleet.fakes["C"].err = fmt.Errorf("%w: user exists", types.ErrConflict)

	spec := types.UserSpec{Username: "alice", Password: "pw",
		Policy: types.BandwidthPolicy{Download: "10M", Upload: "2M"}}
	result := fleet.mgr.CreateUser(context.Background(), spec, []string{"A", "B", "C"})

	require.Len(t, result.Outcomes, 3)
	bylSite := map[string]types.SiteOutcome{}
	for _, o := range result.Outcomes {
		bylSite[o.SiteID] = o
	}

	assert.True(t, bylSite["A"].Success)
	assert.False(t, bylSite["B"].Success)
	assert.Equal(t, types.KindNotReachable, bylSite["B"].Error)
	assert.False(t, bylSite["C"].Success)
	assert.Equal(t, types.KindConflict, bylSite["C"].Error)

	// Mirror holds alice only where the controller confirmed
	_, err := fleet.store.GetMirror("A", "alice")
	require.NoError(t, err)
	_, err = fleet.store.GetMirror("B", "alice")
	assert.Error(t, err)
	_, err = fleet.store.GetMirror("C", "alice")
	assert.Error(t, err)
}

func TestFanoutCardinalityPreserved(t *testing.T) {
	fleet := newTestFleet(t, "A")

	// An unregistered id and a duplicate id each keep their own slot
	result := fleet.mgr.DeleteUser(context.Background(), "alice",
		[]string{"A", "ghost", "A"})

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, "A", result.Outcomes[0].SiteID)
	assert.True(t, result.Outcomes[0].Success)
	assert.Equal(t, "ghost", result.Outcomes[1].SiteID)
	assert.Equal(t, types.KindSiteNotFound, result.Outcomes[1].Error)
	assert.Equal(t, "A", result.Outcomes[2].SiteID)
	assert.True(t, result.Outcomes[2].Success)
}

func TestFanoutUnknownSiteMakesNoCall(t *testing.T) {
	fleet := newTestFleet(t, "A")

	result := fleet.mgr.CreateUser(context.Background(),
		types.UserSpec{Username: "alice"}, []string{"ghost"})

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, types.KindSiteNotFound, result.Outcomes[0].Error)
	assert.Equal(t, 0, fleet.fakes["A"].callCount())
}

func TestSlowSiteDoesNotBlockOthers(t *testing.T) {
	fleet := newTestFleet(t, "fast", "slow")
	fleet.fakes["slow"].delay = 300 * time.Millisecond

	done := make(chan *types.FanoutResult, 1)
	go func() {
		done <- fleet.mgr.CreateUser(context.Background(),
			types.UserSpec{Username: "alice"}, []string{"fast", "slow"})
	}()

	result := <-done
	require.Len(t, result.Outcomes, 2)
	for _, o := range result.Outcomes {
		assert.True(t, o.Success, "site %s", o.SiteID)
	}
	// The whole fan-out took about as long as the slow branch alone:
	// branches ran concurrently, not sequentially.
	assert.Less(t, result.Duration, 600*time.Millisecond)
}

func TestSyncUserSkipsOfflineWithExplicitOutcome(t *testing.T) {
	fleet := newTestFleet(t, "A", "B", "C")
	require.NoError(t, fleet.store.UpdateSiteStatus("B", types.SiteStatusOffline, time.Now()))
	// Unknown status is still targeted
	require.NoError(t, fleet.store.UpdateSiteStatus("C", types.SiteStatusOnline, time.Now()))

	result, err := fleet.mgr.SyncUser(context.Background(),
		types.UserSpec{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 3)
	bySite := map[string]types.SiteOutcome{}
	for _, o := range result.Outcomes {
		bySite[o.SiteID] = o
	}

	assert.True(t, bySite["A"].Success)
	assert.True(t, bySite["C"].Success)
	assert.False(t, bySite["B"].Success)
	assert.Equal(t, types.KindSiteOffline, bySite["B"].Error)

	// The offline site was excluded before any network call
	assert.Equal(t, 0, fleet.fakes["B"].callCount())
}

func TestSyncUserConvergesExistingUser(t *testing.T) {
	fleet := newTestFleet(t, "A")

	// alice already exists on A; sync falls back to update
	_, err := fleet.fakes["A"].CreateUser(context.Background(),
		types.UserSpec{Username: "alice", Password: "old"})
	require.NoError(t, err)

	result, err := fleet.mgr.SyncUser(context.Background(),
		types.UserSpec{Username: "alice", Password: "new"})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Success)

	fleet.fakes["A"].mu.Lock()
	assert.Equal(t, "new", fleet.fakes["A"].users["alice"].Password)
	fleet.fakes["A"].mu.Unlock()
}

func TestDeleteUserClearsMirrorAndIsRetryable(t *testing.T) {
	fleet := newTestFleet(t, "A")
	ctx := context.Background()

	fleet.mgr.CreateUser(ctx, types.UserSpec{Username: "alice", Password: "pw"}, []string{"A"})
	_, err := fleet.store.GetMirror("A", "alice")
	require.NoError(t, err)

	result := fleet.mgr.DeleteUser(ctx, "alice", []string{"A"})
	assert.True(t, result.Outcomes[0].Success)
	_, err = fleet.store.GetMirror("A", "alice")
	assert.Error(t, err)

	// Retrying the delete still succeeds
	result = fleet.mgr.DeleteUser(ctx, "alice", []string{"A"})
	assert.True(t, result.Outcomes[0].Success)
}

func TestSetBandwidthSequentialLastWriteWins(t *testing.T) {
	fleet := newTestFleet(t, "A")
	ctx := context.Background()

	fleet.mgr.CreateUser(ctx, types.UserSpec{Username: "alice", Password: "pw"}, []string{"A"})

	first := types.BandwidthPolicy{Download: "5M", Upload: "1M"}
	second := types.BandwidthPolicy{Download: "20M", Upload: "5M"}
	require.True(t, fleet.mgr.SetBandwidth(ctx, "alice", first, []string{"A"}).Outcomes[0].Success)
	require.True(t, fleet.mgr.SetBandwidth(ctx, "alice", second, []string{"A"}).Outcomes[0].Success)

	mirror, err := fleet.store.GetMirror("A", "alice")
	require.NoError(t, err)
	assert.Equal(t, second, mirror.Policy)
}

// TestMirrorNoLostUpdate drives overlapping bandwidth fan-outs at the
// same (site, username) key. Whatever the interleaving, the mirror must
// agree with the last policy the controller actually applied.
func TestMirrorNoLostUpdate(t *testing.T) {
	fleet := newTestFleet(t, "A")
	ctx := context.Background()
	fleet.mgr.CreateUser(ctx, types.UserSpec{Username: "alice", Password: "pw"}, []string{"A"})

	for i := 0; i < 25; i++ {
		p1 := types.BandwidthPolicy{Download: fmt.Sprintf("%dM", 10+i), Upload: "1M"}
		p2 := types.BandwidthPolicy{Download: fmt.Sprintf("%dM", 50+i), Upload: "2M"}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			fleet.mgr.SetBandwidth(ctx, "alice", p1, []string{"A"})
		}()
		go func() {
			defer wg.Done()
			fleet.mgr.SetBandwidth(ctx, "alice", p2, []string{"A"})
		}()
		wg.Wait()

		fleet.fakes["A"].mu.Lock()
		applied := fleet.fakes["A"].lastPolicy
		fleet.fakes["A"].mu.Unlock()

		mirror, err := fleet.store.GetMirror("A", "alice")
		require.NoError(t, err)
		assert.Equal(t, applied, mirror.Policy,
			"mirror must reflect the controller's last applied policy")
	}
}

package events

import (
	"testing"
	"time"

	"github.com/cloudwisp/wisp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()
	assert.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(&Event{
		Type:   EventSiteOffline,
		SiteID: "s1",
		Change: &types.StatusChange{
			SiteID:    "s1",
			OldStatus: types.SiteStatusOnline,
			NewStatus: types.SiteStatusOffline,
		},
	})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case event := <-sub:
			assert.Equal(t, EventSiteOffline, event.Type)
			require.NotNil(t, event.Change)
			assert.Equal(t, types.SiteStatusOffline, event.Change.NewStatus)
			assert.False(t, event.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlockBroker(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	stuck := broker.Subscribe() // never drained
	healthy := broker.Subscribe()

	// Overflow the stuck subscriber's buffer; delivery to the healthy
	// one must keep working
	for i := 0; i < cap(stuck)+10; i++ {
		broker.Publish(&Event{Type: EventSiteOnline, SiteID: "s1"})
	}

	received := 0
	deadline := time.After(2 * time.Second)
	for received < cap(stuck) {
		select {
		case <-healthy:
			received++
		case <-deadline:
			t.Fatalf("healthy subscriber starved after %d events", received)
		}
	}
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

func TestEventHubFanOut(t *testing.T) {
	hub := NewEventHub(4, nil)
	first, cancelFirst := hub.Subscribe("s1")
	second, cancelSecond := hub.Subscribe("s1")
	other, cancelOther := hub.Subscribe("s2")
	defer cancelSecond()
	defer cancelOther()

	assert.Equal(t, 2, hub.Subscribers("s1"))

	hub.Publish("s1", models.EventRecordUpdated, "payload")
	for _, ch := range []<-chan models.SessionEvent{first, second} {
		evt := <-ch
		assert.Equal(t, models.EventRecordUpdated, evt.Type)
		assert.Equal(t, "s1", evt.SessionID)
		assert.Equal(t, "payload", evt.Data)
	}
	assert.Len(t, other, 0)

	cancelFirst()
	cancelFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers("s1"))
}

func TestEventHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewEventHub(1, nil)
	ch, cancel := hub.Subscribe("s1")
	defer cancel()

	hub.Publish("s1", models.EventBulkApplied, 1)
	hub.Publish("s1", models.EventBulkApplied, 2)

	require.Len(t, ch, 1)
	assert.Equal(t, 1, (<-ch).Data)
}

func TestEventHubCloseSession(t *testing.T) {
	hub := NewEventHub(0, nil)
	ch, cancel := hub.Subscribe("s1")

	hub.CloseSession("s1")
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("s1"))
	assert.NotPanics(t, cancel)

	var nilHub *EventHub
	assert.NotPanics(t, func() {
		nilHub.Publish("s1", models.EventSessionClosed, nil)
		nilHub.CloseSession("s1")
	})
}

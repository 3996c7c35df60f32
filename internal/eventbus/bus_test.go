package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: ScheduleCreated, Data: ScheduleInfo{ID: "s1"}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			require.Equal(t, ScheduleCreated, e.Type)
			require.False(t, e.Time.IsZero())
			require.Equal(t, "s1", e.Data.(ScheduleInfo).ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: BroadcastSent})
	b.Publish(Event{Type: BroadcastSent})
	b.Publish(Event{Type: BroadcastSent})

	require.Equal(t, uint64(2), b.(Dropper).Dropped())
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	_, ok := <-ch
	require.False(t, ok)
	b.Publish(Event{Type: ConfigReloaded})
}

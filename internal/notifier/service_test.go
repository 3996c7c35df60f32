package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"castbot/internal/eventbus"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"

	"github.com/stretchr/testify/require"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	sent     []string
	calls    int
}

func (f *flakySender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *flakySender) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), f.calls
}

func fastConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		QueueSize:     8,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
	}
}

func TestNotifyRetriesThenDelivers(t *testing.T) {
	t.Parallel()
	sender := &flakySender{failures: 2}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := New(fastConfig(), sender, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	require.NoError(t, s.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 5}, Text: "sent 2/3", Priority: 7}))

	require.Eventually(t, func() bool {
		sent, _ := sender.snapshot()
		return len(sent) == 1
	}, 2*time.Second, 5*time.Millisecond)

	sent, calls := sender.snapshot()
	require.Equal(t, "⚠️ sent 2/3", sent[0])
	require.Equal(t, 3, calls)
	require.Len(t, s.History(), 1)

	select {
	case ev := <-events:
		require.Equal(t, EventSent, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no sent event")
	}
}

func TestNotifyGivesUp(t *testing.T) {
	t.Parallel()
	sender := &flakySender{failures: 10}
	s := New(fastConfig(), sender, logx.Nop(), nil)
	s.Start(context.Background())

	require.NoError(t, s.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 5}, Text: "x"}))
	s.Stop(context.Background())

	sent, calls := sender.snapshot()
	require.Empty(t, sent)
	require.Equal(t, 3, calls)
}

func TestNotifyDisabledAndStopped(t *testing.T) {
	t.Parallel()
	cfg := fastConfig()
	cfg.Enabled = false
	s := New(cfg, &flakySender{}, logx.Nop(), nil)
	s.Start(context.Background())
	require.ErrorIs(t, s.Notify(context.Background(), kit.Notification{Text: "x"}), ErrDisabled)

	s2 := New(fastConfig(), &flakySender{}, logx.Nop(), nil)
	require.ErrorIs(t, s2.Notify(context.Background(), kit.Notification{Text: "x"}), ErrStopped)
	s2.Start(context.Background())
	s2.Stop(context.Background())
	require.ErrorIs(t, s2.Notify(context.Background(), kit.Notification{Text: "x"}), ErrStopped)
}

func TestRetryDelayIsCapped(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, cfg.RetryMaxDelay)
	}
}

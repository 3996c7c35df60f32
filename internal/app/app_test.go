package app

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"castbot/internal/config"
	"castbot/internal/eventbus"
	kit "castbot/internal/transport"

	"github.com/stretchr/testify/require"
)

const (
	adminID  int64 = 42
	viewerID int64 = 1001
)

type fakeAdapter struct {
	mu     sync.Mutex
	texts  map[int64][]string
	copies map[int64]int
	menu   []kit.BotCommand
	nextID int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{texts: map[int64][]string{}, copies: map[int64]int{}}
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts[to.ChatID] = append(f.texts[to.ChatID], text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	f.texts[ref.ChatID] = append(f.texts[ref.ChatID], text)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeAdapter) SendMedia(_ context.Context, to kit.ChatTarget, _ kit.Media, _ string, _ []kit.Entity) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) CopyMessage(_ context.Context, to kit.ChatTarget, _ kit.MessageRef) (kit.MessageRef, error) {
	f.mu.Lock()
	f.copies[to.ChatID]++
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) sent(chat int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts[chat]...)
}

func (f *fakeAdapter) copiesTo(chat int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copies[chat]
}

func (f *fakeAdapter) contains(chat int64, sub string) bool {
	for _, s := range f.sent(chat) {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) (*config.ConfigManager, *config.Config) {
	t.Helper()
	t.Setenv(config.EnvToken, "")
	dir := t.TempDir()
	body := `{
  "telegram": {"token": "test", "admin_user_ids": [42], "workers": 2},
  "logging": {"level": "error"},
  "broadcast": {"timezone": "UTC", "tick_interval": "1h"},
  "directory": {"driver": "memory"},
  "storage": {"driver": "file", "path": "` + filepath.ToSlash(filepath.Join(dir, "audit")) + `"}
}`
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load(context.Background())
	require.NoError(t, err)
	return cfgm, cfg
}

func startApp(t *testing.T) (*App, *fakeAdapter) {
	t.Helper()
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	cfgm, cfg := testConfig(t)
	ad := newFakeAdapter()
	a, err := build(cfgm, cfg, ad)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, a.Stop(ctx, StopAppStop))
	})
	return a, ad
}

func msg(from int64, id int, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: id, ChatID: from, FromID: from, Text: text, Kind: "text",
	}}
}

func press(from int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", ChatID: from, FromID: from, MessageID: 99, Data: data,
	}}
}

func TestBroadcastEndToEnd(t *testing.T) {
	a, ad := startApp(t)
	wait := func(cond func() bool) {
		t.Helper()
		require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
	}

	a.updates <- msg(viewerID, 1, "/start")
	wait(func() bool { return ad.contains(viewerID, "Subscribed") })

	a.updates <- msg(adminID, 2, "/broadcast")
	a.updates <- msg(adminID, 3, "hello everyone")
	wait(func() bool { return ad.contains(adminID, "How should it be delivered?") })

	a.updates <- press(adminID, "bc:now")
	wait(func() bool { return ad.copiesTo(viewerID) == 1 })

	wait(func() bool {
		entries, err := a.store.ListAudit(context.Background(), 0, 10)
		if err != nil {
			return false
		}
		for _, e := range entries {
			if e.Action == eventbus.BroadcastSent && e.OK == 1 {
				return true
			}
		}
		return false
	})

	a.updates <- msg(adminID, 4, "/history")
	wait(func() bool { return ad.contains(adminID, "Recent activity") })
	require.True(t, ad.contains(adminID, "sent · text: hello everyone · 1/1"))
}

func TestNonAdminCommands(t *testing.T) {
	a, ad := startApp(t)

	a.updates <- msg(viewerID, 1, "/broadcast")
	require.Eventually(t, func() bool { return ad.contains(viewerID, "Only administrators") }, 3*time.Second, 10*time.Millisecond)

	a.updates <- msg(viewerID, 2, "/schedules")
	a.updates <- msg(viewerID, 3, "/cancel")
	require.Never(t, func() bool { return len(ad.sent(viewerID)) > 1 }, 300*time.Millisecond, 20*time.Millisecond)
	require.False(t, ad.contains(viewerID, "Admins only"))

	a.updates <- msg(adminID, 4, "/status")
	require.Eventually(t, func() bool { return ad.contains(adminID, "Status") }, 3*time.Second, 10*time.Millisecond)
	require.True(t, ad.contains(adminID, "@every 1h0m0s"))
}

func TestApplyConfig(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	cfgm, cfg := testConfig(t)
	a, err := build(cfgm, cfg, newFakeAdapter())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.logs.Close() })

	events, unsub := a.bus.Subscribe(4)
	defer unsub()

	next := *cfg
	next.Telegram.AdminUserIDs = []int64{42, 77}
	next.Broadcast.TickInterval = "30s"
	next.Broadcast.Timezone = "Europe/Berlin"
	next.Notifier = &config.NotifierConfig{Enabled: false}
	next.Ops = &config.OpsConfig{Enabled: true, Addr: "127.0.0.1:0"}

	require.False(t, a.engine.IsAdmin(77))
	a.applyConfig(context.Background(), cfg, &next)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.ops.Stop(ctx)
	})

	require.True(t, a.engine.IsAdmin(77))
	require.Equal(t, "@every 30s", a.sched.Spec())
	require.Equal(t, "UTC", a.engine.Zone().Name())
	require.False(t, a.notif.Enabled())

	require.Eventually(t, func() bool { return a.ops.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + a.ops.Addr() + "/status")
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	_ = resp.Body.Close()
	require.Equal(t, "UTC", snap.Timezone)
	require.Equal(t, "@every 30s", snap.Tick)
	require.Zero(t, snap.Recipients)
	require.True(t, snap.Audit)

	select {
	case ev := <-events:
		require.Equal(t, eventbus.ConfigReloaded, ev.Type)
		require.Equal(t, []string{"broadcast", "notifier", "ops", "telegram"}, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("no config.reloaded event")
	}
}

func TestMapping(t *testing.T) {
	cfg := &config.Config{}
	_, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	require.False(t, enabled)

	cfg.Storage = &config.StorageConfig{Driver: "sqlite", Path: "a.db"}
	sc, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	require.True(t, enabled)
	require.Equal(t, time.Second, sc.BusyTimeout)

	cfg.Storage = &config.StorageConfig{Driver: "mongo"}
	_, _, err = mapStorageConfig(cfg)
	require.Error(t, err)

	nc, err := mapNotifierConfig(&config.Config{})
	require.NoError(t, err)
	require.True(t, nc.Enabled)
	require.Equal(t, 2, nc.Workers)
	require.Equal(t, 500*time.Millisecond, nc.RetryBase)

	cfg.Telegram.GroupLog = " -100123 "
	require.Equal(t, int64(-100123), groupLogChat(cfg))
	cfg.Telegram.GroupLog = "ops"
	require.Zero(t, groupLogChat(cfg))

	cfg.Directory = config.DirectoryConfig{Driver: "Redis", Redis: config.RedisConfig{Addr: " r:6379 ", DB: 3}}
	dc, err := mapDirectoryConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "redis", dc.Driver)
	require.Equal(t, "r:6379", dc.RedisAddr)
	require.Equal(t, 3, dc.RedisDB)

	oc, err := mapOpsConfig(&config.Config{Ops: &config.OpsConfig{Enabled: true}})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6060", oc.Addr)
	require.Equal(t, 5*time.Second, oc.ReadTimeout)
	oc, err = mapOpsConfig(&config.Config{})
	require.NoError(t, err)
	require.False(t, oc.Enabled)
}

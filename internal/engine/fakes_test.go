package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"castbot/internal/civiltime"
	"castbot/internal/directory"
	"castbot/internal/eventbus"
	kit "castbot/internal/transport"

	"github.com/stretchr/testify/require"
)

const (
	admin    int64 = 42
	outsider int64 = 7
)

var errSend = errors.New("forbidden: bot was blocked by the user")

type sent struct {
	kind string // text, media, copy, edit
	chat int64
	text string
}

type fakeMessenger struct {
	mu    sync.Mutex
	calls []sent

	failChats map[int64]bool
	failCopy  bool
	failText  string

	// gate, when set, blocks every delivery to a non-admin chat until closed.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{failChats: map[int64]bool{}}
}

func (f *fakeMessenger) wait(ctx context.Context, chat int64) {
	if f.gate == nil || chat == admin {
		return
	}
	select {
	case f.entered <- struct{}{}:
	default:
	}
	select {
	case <-f.gate:
	case <-ctx.Done():
	}
}

func (f *fakeMessenger) record(kind string, chat int64, text string) {
	f.mu.Lock()
	f.calls = append(f.calls, sent{kind: kind, chat: chat, text: text})
	f.mu.Unlock()
}

func (f *fakeMessenger) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.wait(ctx, to.ChatID)
	if f.failChats[to.ChatID] || (f.failText != "" && text == f.failText) {
		return kit.MessageRef{}, errSend
	}
	f.record("text", to.ChatID, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeMessenger) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, caption string, _ []kit.Entity) (kit.MessageRef, error) {
	f.wait(ctx, to.ChatID)
	if f.failChats[to.ChatID] {
		return kit.MessageRef{}, errSend
	}
	f.record("media", to.ChatID, string(m.Kind)+":"+caption)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeMessenger) CopyMessage(ctx context.Context, to kit.ChatTarget, from kit.MessageRef) (kit.MessageRef, error) {
	f.wait(ctx, to.ChatID)
	if f.failCopy || f.failChats[to.ChatID] {
		return kit.MessageRef{}, errSend
	}
	f.record("copy", to.ChatID, "")
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeMessenger) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.record("edit", ref.ChatID, text)
	return nil
}

func (f *fakeMessenger) AnswerCallback(context.Context, string, string) error { return nil }

// texts returns what was sent or edited into chat, oldest first.
func (f *fakeMessenger) texts(chat int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.chat == chat && (c.kind == "text" || c.kind == "edit") {
			out = append(out, c.text)
		}
	}
	return out
}

func (f *fakeMessenger) last(chat int64) string {
	ts := f.texts(chat)
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1]
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []kit.Notification
	err error
}

func (n *fakeNotifier) Notify(_ context.Context, no kit.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.got = append(n.got, no)
	return nil
}

func (n *fakeNotifier) fail(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *fakeNotifier) all() []kit.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]kit.Notification(nil), n.got...)
}

// brokenDir fails every call.
type brokenDir struct{}

func (brokenDir) List(context.Context) ([]int64, error) {
	return nil, errors.Join(directory.ErrUnavailable, errors.New("connection refused"))
}
func (brokenDir) Add(context.Context, int64) (bool, error) { return false, directory.ErrUnavailable }
func (brokenDir) Remove(context.Context, int64) error      { return directory.ErrUnavailable }
func (brokenDir) Close() error                             { return nil }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type harness struct {
	e     *Engine
	msg   *fakeMessenger
	notes *fakeNotifier
	clock *clock
	zone  civiltime.Zone
	bus   eventbus.Bus
}

func jakarta(t *testing.T) civiltime.Zone {
	t.Helper()
	z, err := civiltime.Load("Asia/Jakarta")
	require.NoError(t, err)
	return z
}

// at returns the Jakarta wall-clock instant.
func (h *harness) at(y int, mo time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, mo, d, hh, mm, ss, 0, h.zone.Location())
}

func newHarness(t *testing.T, dir directory.Directory) *harness {
	t.Helper()
	z := jakarta(t)
	h := &harness{
		msg:   newFakeMessenger(),
		notes: &fakeNotifier{},
		clock: &clock{t: time.Date(2025, 3, 10, 8, 0, 0, 0, z.Location())},
		zone:  z,
		bus:   eventbus.New(),
	}
	if dir == nil {
		dir = directory.NewMemory(1001, 1002, 1003)
	}
	e, err := New(Config{Zone: z, Admins: []int64{admin, admin + 1}}, Deps{
		Messenger: h.msg,
		Directory: dir,
		Notifier:  h.notes,
		Bus:       h.bus,
		Now:       h.clock.Now,
	})
	require.NoError(t, err)
	h.e = e
	return h
}

func (h *harness) chat() kit.ChatTarget { return kit.ChatTarget{ChatID: admin} }

func (h *harness) message(from int64, text string) *kit.Message {
	return &kit.Message{ID: 500, ChatID: from, FromID: from, Text: text, Kind: "text"}
}

func (h *harness) press(from int64, action, arg string) {
	h.e.HandleAction(context.Background(), &kit.Callback{ID: "cb", FromID: from, ChatID: from, MessageID: 77}, action, arg)
}

// draft walks admin through composing text and picking action.
func (h *harness) draft(t *testing.T, text, action string) {
	t.Helper()
	ctx := context.Background()
	h.e.StartCompose(ctx, admin, h.chat())
	require.True(t, h.e.HandleMessage(ctx, h.message(admin, text)))
	h.press(admin, action, "")
}

func (h *harness) say(t *testing.T, text string) {
	t.Helper()
	require.True(t, h.e.HandleMessage(context.Background(), h.message(admin, text)))
}

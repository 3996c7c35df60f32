package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"castbot/internal/conversation"
	"castbot/internal/eventbus"
	"castbot/internal/schedule"
	kit "castbot/internal/transport"

	"github.com/stretchr/testify/require"
)

func only(t *testing.T, e *Engine, owner int64) schedule.Schedule {
	t.Helper()
	items := e.Schedules().ListActive(owner)
	require.Len(t, items, 1)
	return items[0]
}

func TestOnceRejectsPastThenAcceptsFuture(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.draft(t, "hello", ActionOnce)
	require.Equal(t, conversation.StepWaitingForOnceAt, h.e.Step(admin))

	h.say(t, "2025-03-09 10:00")
	require.Contains(t, h.msg.last(admin), "not in the future")
	require.Equal(t, conversation.StepWaitingForOnceAt, h.e.Step(admin))
	require.Zero(t, h.e.Schedules().Len())

	h.say(t, "tomorrow at ten")
	require.Contains(t, h.msg.last(admin), "Wrong format")
	require.Equal(t, conversation.StepWaitingForOnceAt, h.e.Step(admin))

	h.say(t, "2025-03-10 10:00")
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))
	s := only(t, h.e, admin)
	require.Equal(t, schedule.ModeOnce, s.Mode)
	require.True(t, s.NextRunAt.Equal(h.at(2025, 3, 10, 10, 0, 0)))
	require.Equal(t, "text: hello", s.Payload.Summary())
	require.Contains(t, h.msg.last(admin), "2025-03-10 10:00 Asia/Jakarta")
}

func TestSendNowCountsPartialDelivery(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.msg.failChats[1002] = true

	h.draft(t, "hello", ActionNow)
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))
	require.Equal(t, "✅ Broadcast delivered to 2/3 recipients.", h.msg.last(admin))
	require.Zero(t, h.e.Schedules().Len())
}

func TestSendNowReportsDirectoryFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, brokenDir{})
	h.draft(t, "hello", ActionNow)
	require.True(t, strings.HasPrefix(h.msg.last(admin), "❌ Broadcast failed"))
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))
}

func TestDailyRunMovesToNextDay(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.draft(t, "hello", ActionDaily)
	h.say(t, "9:00")
	s := only(t, h.e, admin)
	require.True(t, s.NextRunAt.Equal(h.at(2025, 3, 10, 9, 0, 0)))

	h.clock.Set(h.at(2025, 3, 10, 9, 0, 5))
	require.Equal(t, 1, h.e.Tick(context.Background()))

	got, ok := h.e.Schedules().Get(s.ID)
	require.True(t, ok)
	require.Equal(t, schedule.StatusActive, got.Status)
	require.True(t, got.NextRunAt.Equal(h.at(2025, 3, 11, 9, 0, 0)), got.NextRunAt)
	require.Equal(t, 1, got.Runs)
	require.Equal(t, 3, got.LastSent)
	require.Equal(t, 3, got.LastTotal)

	notes := h.notes.all()
	require.Len(t, notes, 1)
	require.Equal(t, admin, notes[0].Target.ChatID)
	require.Equal(t, 5, notes[0].Priority)
	require.Contains(t, notes[0].Text, "3/3")

	// Same pass again finds nothing due.
	require.Zero(t, h.e.Tick(context.Background()))
}

func TestOutcomeRepliesWhenNotifierRefuses(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.notes.fail(errors.New("notifier: disabled"))
	h.draft(t, "hello", ActionDaily)
	h.say(t, "9:00")

	h.clock.Set(h.at(2025, 3, 10, 9, 0, 5))
	require.Equal(t, 1, h.e.Tick(context.Background()))
	require.Empty(t, h.notes.all())
	require.Contains(t, h.msg.last(admin), "3/3")
}

func TestEditDuringRunKeepsNewTime(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.draft(t, "hello", ActionDaily)
	h.say(t, "09:00")
	s := only(t, h.e, admin)

	h.msg.gate = make(chan struct{})
	h.msg.entered = make(chan struct{}, 1)
	h.clock.Set(h.at(2025, 3, 10, 9, 0, 5))

	done := make(chan int, 1)
	go func() { done <- h.e.Tick(context.Background()) }()
	select {
	case <-h.msg.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("run never reached delivery")
	}

	h.press(admin, ActionEdit, s.ID)
	h.say(t, "18:30")
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))

	close(h.msg.gate)
	select {
	case n := <-done:
		require.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("run never finished")
	}

	got, _ := h.e.Schedules().Get(s.ID)
	require.Equal(t, schedule.StatusActive, got.Status)
	require.Equal(t, "18:30", got.Daily.String())
	require.True(t, got.NextRunAt.Equal(h.at(2025, 3, 10, 18, 30, 0)), got.NextRunAt)
	require.Equal(t, 1, got.Runs)
}

func TestOnceRunCompletes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.draft(t, "hello", ActionOnce)
	h.say(t, "2025-03-10 10:00")
	s := only(t, h.e, admin)

	h.clock.Set(h.at(2025, 3, 10, 9, 59, 59))
	require.Zero(t, h.e.Tick(context.Background()))

	h.clock.Set(h.at(2025, 3, 10, 10, 0, 0))
	require.Equal(t, 1, h.e.Tick(context.Background()))
	got, _ := h.e.Schedules().Get(s.ID)
	require.Equal(t, schedule.StatusCompleted, got.Status)
	require.Empty(t, h.e.Schedules().ListActive(admin))

	h.clock.Set(h.at(2025, 3, 10, 11, 0, 0))
	require.Zero(t, h.e.Tick(context.Background()))
	require.Len(t, h.notes.all(), 1)
}

func TestOnceRunFailsWhenDirectoryIsDown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, brokenDir{})
	h.draft(t, "hello", ActionOnce)
	h.say(t, "2025-03-10 10:00")
	s := only(t, h.e, admin)

	h.clock.Set(h.at(2025, 3, 10, 10, 0, 30))
	require.Equal(t, 1, h.e.Tick(context.Background()))

	got, _ := h.e.Schedules().Get(s.ID)
	require.Equal(t, schedule.StatusFailed, got.Status)
	require.Contains(t, got.LastError, "directory unavailable")

	notes := h.notes.all()
	require.Len(t, notes, 1)
	require.Equal(t, 9, notes[0].Priority)
	require.Contains(t, notes[0].Text, "list recipients")
	require.Zero(t, h.e.InFlight())
}

func TestDailyFailureStaysActive(t *testing.T) {
	t.Parallel()
	h := newHarness(t, brokenDir{})
	h.draft(t, "hello", ActionDaily)
	h.say(t, "09:00")
	s := only(t, h.e, admin)

	h.clock.Set(h.at(2025, 3, 10, 9, 0, 0))
	require.Equal(t, 1, h.e.Tick(context.Background()))

	got, _ := h.e.Schedules().Get(s.ID)
	require.Equal(t, schedule.StatusActive, got.Status)
	require.True(t, got.NextRunAt.Equal(h.at(2025, 3, 11, 9, 0, 0)))
	require.NotEmpty(t, got.LastError)
	require.Contains(t, h.notes.all()[0].Text, "It stays active")
}

func TestTickSkipsWhileBusy(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.draft(t, "hello", ActionOnce)
	h.say(t, "2025-03-10 10:00")
	s := only(t, h.e, admin)

	h.msg.gate = make(chan struct{})
	h.msg.entered = make(chan struct{}, 1)
	h.clock.Set(h.at(2025, 3, 10, 10, 0, 0))
	require.Zero(t, h.e.InFlight())

	done := make(chan int, 1)
	go func() { done <- h.e.Tick(context.Background()) }()

	select {
	case <-h.msg.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never reached delivery")
	}
	require.Equal(t, 1, h.e.InFlight())
	require.Zero(t, h.e.Tick(context.Background()))

	close(h.msg.gate)
	select {
	case n := <-done:
		require.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never finished")
	}
	require.Zero(t, h.e.InFlight())
	got, _ := h.e.Schedules().Get(s.ID)
	require.Equal(t, schedule.StatusCompleted, got.Status)
	require.Len(t, h.notes.all(), 1)
}

func TestPreviewFailureDiscardsDraft(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.msg.failCopy = true
	h.msg.failText = "hello"

	h.e.StartCompose(context.Background(), admin, h.chat())
	h.say(t, "hello")
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))
	require.Equal(t, textPreviewFailed, h.msg.last(admin))
}

func TestUnsupportedMessageReprompts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.e.StartCompose(context.Background(), admin, h.chat())

	sticker := &kit.Message{ID: 9, ChatID: admin, FromID: admin, Kind: "sticker"}
	require.True(t, h.e.HandleMessage(context.Background(), sticker))
	require.Equal(t, textUnsupported, h.msg.last(admin))
	require.Equal(t, conversation.StepWaitingForMessage, h.e.Step(admin))
}

func TestTextWhileChoosingAsksForButtons(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.e.StartCompose(context.Background(), admin, h.chat())
	h.say(t, "hello")
	require.Equal(t, conversation.StepChoosingDelivery, h.e.Step(admin))
	require.Contains(t, h.msg.last(admin), "How should it be delivered?")

	h.say(t, "now please")
	require.Equal(t, textUseButtons, h.msg.last(admin))
	require.Equal(t, conversation.StepChoosingDelivery, h.e.Step(admin))
}

func TestStaleDeliveryButton(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.press(admin, ActionOnce, "")
	require.Equal(t, textDraftExpired, h.msg.last(admin))
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))
}

func TestOldDraftButtonsLeaveEditAlone(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.draft(t, "hello", ActionDaily)
	h.say(t, "09:00")
	s := only(t, h.e, admin)

	h.press(admin, ActionEdit, s.ID)
	require.Equal(t, conversation.StepWaitingForEditTime, h.e.Step(admin))
	before := len(h.msg.texts(admin))

	h.press(admin, ActionNow, "")
	h.press(admin, ActionDaily, "")
	h.press(admin, ActionAbort, "")
	require.Equal(t, conversation.StepWaitingForEditTime, h.e.Step(admin))
	require.Len(t, h.msg.texts(admin), before)

	h.say(t, "18:30")
	require.Equal(t, "18:30", only(t, h.e, admin).Daily.String())
}

func TestAbortAndCancelClearSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	h.e.StartCompose(ctx, admin, h.chat())
	h.say(t, "hello")
	h.press(admin, ActionAbort, "")
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))

	h.e.StartCompose(ctx, admin, h.chat())
	h.e.CancelSession(ctx, admin, h.chat())
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))
	require.Equal(t, "Cancelled.", h.msg.last(admin))

	require.False(t, h.e.HandleMessage(ctx, h.message(admin, "just chatting")))
}

func TestEditTimeOnGoneSchedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.draft(t, "hello", ActionOnce)
	h.say(t, "2025-03-10 10:00")
	s := only(t, h.e, admin)

	h.press(admin, ActionEdit, s.ID)
	require.Equal(t, conversation.StepWaitingForEditTime, h.e.Step(admin))

	h.press(admin, ActionStop, s.ID)
	got, _ := h.e.Schedules().Get(s.ID)
	require.Equal(t, schedule.StatusCancelled, got.Status)

	h.say(t, "2025-03-11 10:00")
	require.Equal(t, textGone, h.msg.last(admin))
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))

	h.press(admin, ActionReplace, s.ID)
	require.Equal(t, textGone, h.msg.last(admin))
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))
}

func TestEditDailyTime(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.draft(t, "hello", ActionDaily)
	h.say(t, "09:00")
	s := only(t, h.e, admin)

	h.press(admin, ActionEdit, s.ID)
	h.say(t, "25:00")
	require.True(t, strings.HasPrefix(h.msg.last(admin), "⚠️"))
	require.Equal(t, conversation.StepWaitingForEditTime, h.e.Step(admin))

	h.say(t, "18:30")
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))
	got := only(t, h.e, admin)
	require.Equal(t, "18:30", got.Daily.String())
	require.True(t, got.NextRunAt.Equal(h.at(2025, 3, 10, 18, 30, 0)))
}

func TestReplaceMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	events, stop := h.bus.Subscribe(16)
	defer stop()

	h.draft(t, "hello", ActionOnce)
	h.say(t, "2025-03-10 10:00")
	s := only(t, h.e, admin)

	h.press(admin, ActionReplace, s.ID)
	require.Equal(t, conversation.StepWaitingForReplaceMsg, h.e.Step(admin))
	h.say(t, "goodbye")
	require.Equal(t, conversation.StepIdle, h.e.Step(admin))
	require.Equal(t, "text: goodbye", only(t, h.e, admin).Payload.Summary())

	var types []string
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("events so far: %v", types)
		}
	}
	require.Equal(t, []string{eventbus.ScheduleCreated, eventbus.ScheduleReplaced}, types)
}

func TestOtherAdminCannotTouchSchedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.draft(t, "hello", ActionOnce)
	h.say(t, "2025-03-10 10:00")
	s := only(t, h.e, admin)

	other := admin + 1
	h.press(other, ActionStop, s.ID)
	require.Contains(t, h.msg.texts(other), textGone)
	require.Equal(t, schedule.StatusActive, only(t, h.e, admin).Status)

	h.press(other, ActionOpen, s.ID)
	require.Contains(t, h.msg.last(other), "Active schedules (0)")
}

func TestListSchedules(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	h.e.ListSchedules(ctx, admin, h.chat())
	require.Contains(t, h.msg.last(admin), "Nothing scheduled")

	h.draft(t, "first", ActionOnce)
	h.say(t, "2025-03-10 10:00")
	h.draft(t, "second", ActionDaily)
	h.say(t, "09:00")

	h.e.ListSchedules(ctx, admin, h.chat())
	out := h.msg.last(admin)
	require.Contains(t, out, "Active schedules (2)")
	require.Less(t, strings.Index(out, "second"), strings.Index(out, "first"))

	s := h.e.Schedules().ListActive(admin)[0]
	h.press(admin, ActionOpen, s.ID)
	require.Contains(t, h.msg.last(admin), "daily at 09:00")
}

func TestNonAdminIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	require.False(t, h.e.HandleMessage(ctx, h.message(outsider, "hello")))
	h.press(outsider, ActionList, "")
	h.e.ListSchedules(ctx, outsider, kit.ChatTarget{ChatID: outsider})
	h.e.CancelSession(ctx, outsider, kit.ChatTarget{ChatID: outsider})
	require.Zero(t, h.msg.count())

	h.e.StartCompose(ctx, outsider, kit.ChatTarget{ChatID: outsider})
	require.Equal(t, []string{textDenied}, h.msg.texts(outsider))
	require.Equal(t, conversation.StepIdle, h.e.Step(outsider))
}

func TestSetAdminsSwapsAllowList(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	require.True(t, h.e.IsAdmin(admin))
	h.e.SetAdmins([]int64{outsider})
	require.False(t, h.e.IsAdmin(admin))
	require.True(t, h.e.IsAdmin(outsider))
}

func TestJoinAndLeave(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	user := &kit.Message{ID: 1, ChatID: 2000, FromID: 2000, FromName: "Rina", Text: "/start"}

	h.e.Join(ctx, user)
	n, err := h.e.Recipients(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Contains(t, h.msg.last(2000), "Subscribed")

	h.e.Join(ctx, user)
	require.Contains(t, h.msg.last(2000), "already subscribed")

	h.e.Leave(ctx, user)
	n, _ = h.e.Recipients(ctx)
	require.Equal(t, 3, n)
}

package engine

import (
	"context"
	"fmt"

	"castbot/internal/eventbus"
	"castbot/internal/payload"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

// Result counts one fan-out. Sent <= Total.
type Result struct {
	Sent  int
	Total int
}

// Broadcast delivers p to every recipient in turn. A recipient that cannot
// be reached only lowers Sent; the error return is reserved for failures
// before fan-out starts (directory unavailable).
func (e *Engine) Broadcast(ctx context.Context, p payload.Payload) (Result, error) {
	ids, err := e.dir.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list recipients: %w", err)
	}
	res := Result{Total: len(ids)}
	for _, id := range ids {
		if err := payload.Deliver(ctx, e.msg, kit.ChatTarget{ChatID: id}, p); err != nil {
			e.log.Debug("recipient delivery failed", logx.Int64("chat_id", id), logx.Err(err))
			continue
		}
		res.Sent++
	}
	return res, nil
}

func (e *Engine) sendNow(ctx context.Context, admin int64, chat kit.ChatTarget, p payload.Payload) {
	res, err := e.Broadcast(ctx, p)
	if err != nil {
		e.log.Warn("broadcast failed", logx.Int64("admin", admin), logx.Err(err))
		e.reply(ctx, chat, "❌ Broadcast failed: "+err.Error())
		return
	}
	e.log.Info("broadcast sent", logx.Int64("admin", admin), logx.Int("sent", res.Sent), logx.Int("total", res.Total))
	e.publish(eventbus.BroadcastSent, eventbus.BroadcastInfo{Admin: admin, Summary: p.Summary(), Sent: res.Sent, Total: res.Total})
	e.reply(ctx, chat, fmt.Sprintf("✅ Broadcast delivered to %d/%d recipients.", res.Sent, res.Total))
}

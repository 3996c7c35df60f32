package engine

import (
	"context"

	"castbot/internal/eventbus"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

// Join registers the sender's chat as a broadcast recipient.
func (e *Engine) Join(ctx context.Context, msg *kit.Message) {
	if msg == nil || msg.ChatID == 0 {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	added, err := e.dir.Add(ctx, msg.ChatID)
	if err != nil {
		e.log.Warn("register recipient failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		e.reply(ctx, chat, "❌ Could not subscribe right now, try again later.")
		return
	}
	if !added {
		e.reply(ctx, chat, "You are already subscribed. /stop to leave.")
		return
	}
	e.log.Info("recipient joined", logx.Int64("chat_id", msg.ChatID))
	e.publish(eventbus.RecipientJoined, eventbus.RecipientInfo{ChatID: msg.ChatID, Name: msg.FromName})
	e.reply(ctx, chat, "👋 Subscribed. You will receive broadcasts here. /stop to leave.")
}

// Leave removes the sender's chat from the recipients.
func (e *Engine) Leave(ctx context.Context, msg *kit.Message) {
	if msg == nil || msg.ChatID == 0 {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if err := e.dir.Remove(ctx, msg.ChatID); err != nil {
		e.log.Warn("remove recipient failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		e.reply(ctx, chat, "❌ Could not unsubscribe right now, try again later.")
		return
	}
	e.log.Info("recipient left", logx.Int64("chat_id", msg.ChatID))
	e.publish(eventbus.RecipientLeft, eventbus.RecipientInfo{ChatID: msg.ChatID, Name: msg.FromName})
	e.reply(ctx, chat, "Unsubscribed. /start to join again.")
}

// Recipients is the number of registered chats.
func (e *Engine) Recipients(ctx context.Context) (int, error) {
	ids, err := e.dir.List(ctx)
	return len(ids), err
}

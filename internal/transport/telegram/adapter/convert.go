package adapter

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "castbot/internal/transport"
)

const telegramTextLimit = 4000

// toMessage flattens a telebot message. Media is set only for kinds the
// bot can re-send by file id.
func toMessage(m *tele.Message) *kit.Message {
	out := &kit.Message{
		ID:              m.ID,
		ChatID:          m.Chat.ID,
		ThreadID:        m.ThreadID,
		Text:            m.Text,
		IsGroup:         m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		Entities:        fromTeleEntities(m.Entities),
		Caption:         m.Caption,
		CaptionEntities: fromTeleEntities(m.CaptionEntities),
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
		out.FromName = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	}

	switch {
	// Animations also carry a Document; check them first.
	case m.Animation != nil:
		out.Kind = "animation"
	case m.Photo != nil:
		out.Kind = string(kit.MediaPhoto)
		out.Media = &kit.Media{Kind: kit.MediaPhoto, FileID: m.Photo.FileID}
	case m.Video != nil:
		out.Kind = string(kit.MediaVideo)
		out.Media = &kit.Media{Kind: kit.MediaVideo, FileID: m.Video.FileID}
	case m.VideoNote != nil:
		out.Kind = string(kit.MediaVideoNote)
		out.Media = &kit.Media{Kind: kit.MediaVideoNote, FileID: m.VideoNote.FileID}
	case m.Document != nil:
		out.Kind = string(kit.MediaDocument)
		out.Media = &kit.Media{Kind: kit.MediaDocument, FileID: m.Document.FileID}
	case m.Audio != nil:
		out.Kind = string(kit.MediaAudio)
		out.Media = &kit.Media{Kind: kit.MediaAudio, FileID: m.Audio.FileID}
	case m.Sticker != nil:
		out.Kind = "sticker"
	case m.Voice != nil:
		out.Kind = "voice"
	case m.Location != nil:
		out.Kind = "location"
	case m.Contact != nil:
		out.Kind = "contact"
	case m.Poll != nil:
		out.Kind = "poll"
	case m.Dice != nil:
		out.Kind = "dice"
	case m.Text != "":
		out.Kind = "text"
	default:
		out.Kind = "other"
	}
	return out
}

func senderID(u *tele.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// mediaSendable builds the telebot value that re-sends m. Video notes take
// no caption.
func mediaSendable(m kit.Media, caption string) (tele.Sendable, error) {
	if m.FileID == "" {
		return nil, fmt.Errorf("media %s: empty file id", m.Kind)
	}
	f := tele.File{FileID: m.FileID}
	switch m.Kind {
	case kit.MediaPhoto:
		return &tele.Photo{File: f, Caption: caption}, nil
	case kit.MediaVideo:
		return &tele.Video{File: f, Caption: caption}, nil
	case kit.MediaVideoNote:
		return &tele.VideoNote{File: f}, nil
	case kit.MediaDocument:
		return &tele.Document{File: f, Caption: caption}, nil
	case kit.MediaAudio:
		return &tele.Audio{File: f, Caption: caption}, nil
	default:
		return nil, fmt.Errorf("unsupported media kind %q", m.Kind)
	}
}

func fromTeleEntities(in tele.Entities) []kit.Entity {
	if len(in) == 0 {
		return nil
	}
	out := make([]kit.Entity, 0, len(in))
	for _, e := range in {
		ke := kit.Entity{
			Type:          string(e.Type),
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
		if e.User != nil {
			ke.UserID = e.User.ID
		}
		out = append(out, ke)
	}
	return out
}

func toTeleEntities(in []kit.Entity) tele.Entities {
	if len(in) == 0 {
		return nil
	}
	out := make(tele.Entities, 0, len(in))
	for _, e := range in {
		te := tele.MessageEntity{
			Type:          tele.EntityType(e.Type),
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
		if e.UserID != 0 {
			te.User = &tele.User{ID: e.UserID}
		}
		out = append(out, te)
	}
	return out
}

// splitTelegramText splits long messages into chunks Telegram accepts. It
// prefers newline boundaries and, in HTML mode, avoids cutting inside a tag.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// avoid tiny chunks
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// Package payload captures an admin-authored message and replays it to
// other chats.
package payload

import (
	"errors"
	"fmt"
	"unicode/utf8"

	kit "castbot/internal/transport"
)

var ErrUnsupported = errors.New("payload: unsupported content")

// Ref points at the original message so it can be copied cheaply.
type Ref struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// Payload is the replayable content of one message. At most one media
// reference is carried.
type Payload struct {
	Source          *Ref         `json:"source,omitempty"`
	Text            string       `json:"text,omitempty"`
	TextEntities    []kit.Entity `json:"text_entities,omitempty"`
	Caption         string       `json:"caption,omitempty"`
	CaptionEntities []kit.Entity `json:"caption_entities,omitempty"`
	Media           *kit.Media   `json:"media,omitempty"`
}

// Supported reports whether there is anything to deliver.
func (p Payload) Supported() bool {
	return p.Text != "" || p.Caption != "" || (p.Media != nil && p.Media.FileID != "")
}

// Clone returns a deep copy so callers never share entity slices.
func (p Payload) Clone() Payload {
	cp := p
	if p.Source != nil {
		s := *p.Source
		cp.Source = &s
	}
	if p.Media != nil {
		m := *p.Media
		cp.Media = &m
	}
	cp.TextEntities = append([]kit.Entity(nil), p.TextEntities...)
	cp.CaptionEntities = append([]kit.Entity(nil), p.CaptionEntities...)
	return cp
}

// Summary is a short human label used in schedule listings.
func (p Payload) Summary() string {
	label := "text"
	body := p.Text
	if p.Media != nil && p.Media.FileID != "" {
		label = string(p.Media.Kind)
		body = p.Caption
	} else if body == "" {
		body = p.Caption
	}
	if body == "" {
		return label
	}
	return fmt.Sprintf("%s: %s", label, truncRunes(body, 40))
}

// Capture builds a Payload from an inbound message. Messages with no text,
// caption or re-sendable media yield ErrUnsupported.
func Capture(msg *kit.Message) (Payload, error) {
	if msg == nil {
		return Payload{}, ErrUnsupported
	}
	p := Payload{
		Text:            msg.Text,
		TextEntities:    append([]kit.Entity(nil), msg.Entities...),
		Caption:         msg.Caption,
		CaptionEntities: append([]kit.Entity(nil), msg.CaptionEntities...),
	}
	if msg.Media != nil && msg.Media.FileID != "" {
		m := *msg.Media
		p.Media = &m
	}
	if !p.Supported() {
		return Payload{}, fmt.Errorf("%w: %s", ErrUnsupported, kindOr(msg.Kind))
	}
	if msg.ID != 0 && msg.ChatID != 0 {
		p.Source = &Ref{ChatID: msg.ChatID, MessageID: msg.ID}
	}
	return p, nil
}

func kindOr(k string) string {
	if k == "" {
		return "unknown"
	}
	return k
}

func truncRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n-1]) + "…"
}

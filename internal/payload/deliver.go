package payload

import (
	"context"
	"errors"
	"fmt"

	kit "castbot/internal/transport"
)

// Sender is the part of the transport adapter that delivery needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, caption string, entities []kit.Entity) (kit.MessageRef, error)
	CopyMessage(ctx context.Context, to kit.ChatTarget, from kit.MessageRef) (kit.MessageRef, error)
}

// mediaOrder is the reconstruction priority after text.
var mediaOrder = []kit.MediaKind{
	kit.MediaPhoto,
	kit.MediaVideo,
	kit.MediaVideoNote,
	kit.MediaDocument,
	kit.MediaAudio,
}

// Deliver sends p to one chat. A copy of the source message is tried first;
// on failure the message is rebuilt from its typed fields.
func Deliver(ctx context.Context, s Sender, to kit.ChatTarget, p Payload) error {
	var copyErr error
	if p.Source != nil {
		_, copyErr = s.CopyMessage(ctx, to, kit.MessageRef{ChatID: p.Source.ChatID, MessageID: p.Source.MessageID})
		if copyErr == nil {
			return nil
		}
	}
	if err := rebuild(ctx, s, to, p); err != nil {
		if copyErr != nil {
			return errors.Join(fmt.Errorf("copy: %w", copyErr), err)
		}
		return err
	}
	return nil
}

func rebuild(ctx context.Context, s Sender, to kit.ChatTarget, p Payload) error {
	if p.Text != "" {
		_, err := s.SendText(ctx, to, p.Text, &kit.SendOptions{Entities: p.TextEntities})
		return err
	}
	if p.Media != nil && p.Media.FileID != "" {
		for _, k := range mediaOrder {
			if p.Media.Kind != k {
				continue
			}
			_, err := s.SendMedia(ctx, to, *p.Media, p.Caption, p.CaptionEntities)
			return err
		}
		return fmt.Errorf("%w: media kind %q", ErrUnsupported, p.Media.Kind)
	}
	if p.Caption != "" {
		// A caption without its media still carries the author's words.
		_, err := s.SendText(ctx, to, p.Caption, &kit.SendOptions{Entities: p.CaptionEntities})
		return err
	}
	return ErrUnsupported
}

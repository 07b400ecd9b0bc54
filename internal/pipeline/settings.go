package pipeline

import (
	"context"

	"PrivateLine/server/internal/models"
	apperrors "PrivateLine/server/pkg/errors"
)

// Directory flag operations. All are asymmetric (owner's direction only)
// except SetColor.

func (p *Pipeline) Archive(ctx context.Context, callerID, peerID int64, archived bool) error {
	return p.setFlag(ctx, callerID, peerID, "archive", archived)
}

func (p *Pipeline) PinChat(ctx context.Context, callerID, peerID int64, pinned bool) error {
	return p.setFlag(ctx, callerID, peerID, "pin", pinned)
}

// Mute controls the two notification switches independently: message
// notifications ("notify") and call alerts ("call_chat").
func (p *Pipeline) Mute(ctx context.Context, callerID, peerID int64, field string, enabled bool) error {
	if field != "notify" && field != "call_chat" {
		return apperrors.InvalidArg("mute field must be notify or call_chat")
	}
	return p.setFlag(ctx, callerID, peerID, field, enabled)
}

func (p *Pipeline) setFlag(ctx context.Context, callerID, peerID int64, column string, value bool) error {
	if peerID == 0 {
		return apperrors.ErrChatMissing
	}
	if err := p.directory.SetFlag(ctx, callerID, peerID, column, value); err != nil {
		p.logger.Error("directory flag update failed", "column", column, "err", err)
		return apperrors.Wrap(apperrors.CodeInternal, "could not update conversation", err)
	}
	return nil
}

// SetColor writes the accent color to both directions; last write wins when
// both users race, which is acceptable for a cosmetic field.
func (p *Pipeline) SetColor(ctx context.Context, callerID, peerID int64, color string) error {
	if peerID == 0 {
		return apperrors.ErrChatMissing
	}
	if color == "" {
		return apperrors.InvalidArg("color is required")
	}
	if err := p.directory.SetColor(ctx, callerID, peerID, color); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "could not update color", err)
	}
	return nil
}

// ConversationSettings returns the caller's directory entry, with defaults
// when no row exists yet.
func (p *Pipeline) ConversationSettings(ctx context.Context, callerID, peerID int64) (*models.ConversationEntry, error) {
	if peerID == 0 {
		return nil, apperrors.ErrChatMissing
	}
	e, err := p.directory.Get(ctx, callerID, peerID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not load conversation", err)
	}
	return e, nil
}

// TypingEvent is relayed as-is; typing state is never persisted.
type TypingEvent struct {
	FromID int64 `json:"from_id"`
}

// Typing relays a typing indicator to the peer's live sessions.
func (p *Pipeline) Typing(ctx context.Context, callerID, peerID int64, done bool) error {
	if peerID == 0 {
		return apperrors.ErrRecipientMissing
	}
	event := EventTyping
	if done {
		event = EventTypingDone
	}
	p.publisher.Publish(peerID, event, TypingEvent{FromID: callerID})
	return nil
}

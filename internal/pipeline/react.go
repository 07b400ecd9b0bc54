package pipeline

import (
	"context"

	"PrivateLine/server/internal/models"
	apperrors "PrivateLine/server/pkg/errors"
)

// ReactionEvent is the message_reaction payload; Action tells clients what
// actually happened so they can patch state instead of refetching.
type ReactionEvent struct {
	MessageID int64                 `json:"message_id"`
	UserID    int64                 `json:"user_id"`
	Reaction  string                `json:"reaction"`
	Action    models.ReactionAction `json:"action"`
	Self      bool                  `json:"self"`
}

// React applies toggle semantics: a new token sets, a different token
// replaces, the same token removes. One reaction per (user, message).
func (p *Pipeline) React(ctx context.Context, callerID, messageID int64, reaction string) (models.ReactionAction, error) {
	if reaction == "" {
		return "", apperrors.InvalidArg("reaction is required")
	}

	m, err := p.messages.FindByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	if callerID != m.FromID && callerID != m.ToID {
		return "", apperrors.ErrMessageNotFound
	}

	existing, err := p.reactions.Get(ctx, callerID, messageID)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "could not read reaction", err)
	}

	var action models.ReactionAction
	switch {
	case existing == nil:
		action = models.ReactionAdded
		err = p.reactions.Upsert(ctx, callerID, messageID, reaction)
	case existing.Reaction == reaction:
		action = models.ReactionRemoved
		err = p.reactions.Delete(ctx, callerID, messageID)
	default:
		action = models.ReactionUpdated
		err = p.reactions.Upsert(ctx, callerID, messageID, reaction)
	}
	if err != nil {
		p.logger.Error("react failed", "message_id", messageID, "err", err)
		return "", apperrors.Wrap(apperrors.CodeInternal, "could not store reaction", err)
	}

	peerID := m.FromID
	if callerID == m.FromID {
		peerID = m.ToID
	}
	event := ReactionEvent{MessageID: messageID, UserID: callerID, Reaction: reaction, Action: action}
	p.publisher.Publish(peerID, EventReaction, event)
	event.Self = true
	p.publisher.Publish(callerID, EventReaction, event)

	return action, nil
}

// PinnedEvent is the message_pinned payload.
type PinnedEvent struct {
	MessageID int64 `json:"message_id"`
	ChatID    int64 `json:"chat_id"`
	UserID    int64 `json:"user_id"`
	Pinned    bool  `json:"pinned"`
	Self      bool  `json:"self"`
}

// PinMessage sets or clears the caller's pin on a message within a
// conversation. Pins are per-caller; the counterpart is notified but their
// own pin set is untouched.
func (p *Pipeline) PinMessage(ctx context.Context, callerID, chatID, messageID int64, pinned bool) error {
	if chatID == 0 {
		return apperrors.ErrChatMissing
	}
	if messageID == 0 {
		return apperrors.InvalidArg("message id is required")
	}

	m, err := p.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if callerID != m.FromID && callerID != m.ToID {
		return apperrors.ErrMessageNotFound
	}

	if err := p.extras.SetPinned(ctx, callerID, chatID, messageID, pinned); err != nil {
		p.logger.Error("pin failed", "message_id", messageID, "err", err)
		return apperrors.Wrap(apperrors.CodeInternal, "could not pin message", err)
	}

	peerID := m.FromID
	if callerID == m.FromID {
		peerID = m.ToID
	}
	event := PinnedEvent{MessageID: messageID, ChatID: chatID, UserID: callerID, Pinned: pinned}
	p.publisher.Publish(peerID, EventPinned, event)
	event.Self = true
	p.publisher.Publish(callerID, EventPinned, event)
	return nil
}

// Favorite toggles the caller's favorite mark on a message and reports the
// resulting state. Favorites are private: nothing is emitted to the peer.
func (p *Pipeline) Favorite(ctx context.Context, callerID, messageID int64) (bool, error) {
	if messageID == 0 {
		return false, apperrors.InvalidArg("message id is required")
	}

	m, err := p.messages.FindByID(ctx, messageID)
	if err != nil {
		return false, err
	}
	if callerID != m.FromID && callerID != m.ToID {
		return false, apperrors.ErrMessageNotFound
	}

	fav, err := p.extras.ToggleFavorite(ctx, callerID, messageID)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "could not toggle favorite", err)
	}
	return fav, nil
}

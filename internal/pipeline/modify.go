package pipeline

import (
	"context"

	"PrivateLine/server/internal/models"
	apperrors "PrivateLine/server/pkg/errors"
)

// Edit re-encrypts the message body under the message's ORIGINAL timestamp.
// Using the edit time instead would silently re-key the row and break every
// client deriving the key from `time`.
func (p *Pipeline) Edit(ctx context.Context, callerID, messageID int64, newText string) (*models.WireMessage, error) {
	if newText == "" {
		return nil, apperrors.ErrEmptyText
	}

	m, err := p.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	// A row already soft-deleted on the caller's side is terminal.
	if !m.VisibleTo(callerID) {
		return nil, apperrors.ErrMessageNotFound
	}
	if m.FromID != callerID {
		return nil, apperrors.ErrNotSender
	}

	env, err := p.codec.EncryptForStorage(newText, m.Time)
	if err != nil {
		return nil, err
	}
	if err := p.messages.UpdateCiphertext(ctx, m.ID, callerID, env.Text, env.IV, env.Tag, env.TextECB, env.Preview); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		p.logger.Error("edit failed", "message_id", m.ID, "err", err)
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not edit message", err)
	}

	m.Text = env.Text
	m.IV = env.IV
	m.Tag = env.Tag
	m.CipherVersion = env.CipherVersion
	m.TextECB = env.TextECB
	m.TextPreview = env.Preview
	m.Edited = true

	senderView := p.toWire(ctx, m, m.FromID)
	recipientView := p.toWire(ctx, m, m.ToID)
	p.emitBoth(m.FromID, m.ToID, EventMessageEdited, senderView, recipientView)
	return senderView, nil
}

const (
	DeleteJustMe   = "just_me"
	DeleteEveryone = "everyone"
)

// DeletedEvent is the message_deleted payload.
type DeletedEvent struct {
	MessageID  int64  `json:"message_id"`
	DeleteType string `json:"delete_type"`
	Self       bool   `json:"self"`
}

// Delete soft-deletes: flags hide the row per side, the row itself stays so
// replies and reactions keep a valid target. There is no un-delete.
func (p *Pipeline) Delete(ctx context.Context, callerID, messageID int64, deleteType string) error {
	if deleteType != DeleteJustMe && deleteType != DeleteEveryone {
		return apperrors.ErrDeleteType
	}

	m, err := p.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if callerID != m.FromID && callerID != m.ToID {
		return apperrors.ErrMessageNotFound
	}

	if deleteType == DeleteEveryone {
		if m.FromID != callerID {
			return apperrors.ErrNotSender
		}
		if err := p.messages.SetDeleted(ctx, m.ID, true, true); err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, "could not delete message", err)
		}
		peerID := m.ToID
		p.publisher.Publish(peerID, EventMessageDeleted, DeletedEvent{MessageID: m.ID, DeleteType: deleteType})
		p.publisher.Publish(callerID, EventMessageDeleted, DeletedEvent{MessageID: m.ID, DeleteType: deleteType, Self: true})
		return nil
	}

	// just_me touches only the caller's flag; the other side keeps seeing
	// the row, so only the caller's other sessions are notified.
	if err := p.messages.SetDeleted(ctx, m.ID, callerID == m.FromID, callerID == m.ToID); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "could not delete message", err)
	}
	p.publisher.Publish(callerID, EventMessageDeleted, DeletedEvent{MessageID: m.ID, DeleteType: deleteType, Self: true})
	return nil
}

// LastSeenEvent is the read-receipt payload sent to the counterpart.
type LastSeenEvent struct {
	ReaderID   int64   `json:"reader_id"`
	MessageIDs []int64 `json:"message_ids"`
	SeenAt     int64   `json:"seen_at"`
}

// Seen stamps every unseen message from peer to caller. Idempotent: a
// second call finds nothing and emits nothing.
func (p *Pipeline) Seen(ctx context.Context, callerID, peerID int64) error {
	if peerID == 0 {
		return apperrors.ErrRecipientMissing
	}

	seenAt := p.now().Unix()
	ids, err := p.messages.MarkSeen(ctx, callerID, peerID, seenAt)
	if err != nil {
		p.logger.Error("mark seen failed", "caller", callerID, "peer", peerID, "err", err)
		return apperrors.Wrap(apperrors.CodeInternal, "could not mark messages seen", err)
	}
	if len(ids) == 0 {
		return nil
	}

	p.publisher.Publish(peerID, EventLastSeen, LastSeenEvent{
		ReaderID:   callerID,
		MessageIDs: ids,
		SeenAt:     seenAt,
	})
	return nil
}

// ReadAll is the conversation-scoped bulk form of Seen.
func (p *Pipeline) ReadAll(ctx context.Context, callerID, peerID int64) error {
	return p.Seen(ctx, callerID, peerID)
}

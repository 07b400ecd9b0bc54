package pipeline

import (
	"context"

	"PrivateLine/server/internal/crypto"
	"PrivateLine/server/internal/models"
)

// toWire shapes a stored row for one viewer: ciphertext and decryption
// material pass through untouched, display fields are derived here. The
// preview column never leaves the server as content.
func (p *Pipeline) toWire(ctx context.Context, m *models.Message, viewerID int64) *models.WireMessage {
	w := &models.WireMessage{
		ID:            m.ID,
		FromID:        m.FromID,
		ToID:          m.ToID,
		Text:          m.Text,
		IV:            m.IV,
		Tag:           m.Tag,
		CipherVersion: m.CipherVersion,
		Media:         m.Media,
		MediaFileName: m.MediaFileName,
		Stickers:      m.Stickers,
		Lat:           m.Lat,
		Lng:           m.Lng,
		TypeTwo:       m.TypeTwo,
		StoryID:       m.StoryID,
		ProductID:     m.ProductID,
		Seen:          m.Seen,
		Forward:       m.Forward,
		Edited:        m.Edited,
		Time:          m.Time,
		Position:      m.PositionFor(viewerID),
		Type:          m.CompositeType(),
		ReplyID:       m.ReplyID,
	}

	if sender, err := p.users.GetProfile(ctx, m.FromID); err == nil {
		w.Sender = sender
	}

	if m.ReplyID != nil {
		w.ReplyPreview = p.replyPreview(ctx, *m.ReplyID)
	}
	return w
}

// replyPreview resolves and decrypts the replied-to message server-side so
// clients can render the quote without a second fetch. Missing or
// undecryptable targets degrade to an empty preview.
func (p *Pipeline) replyPreview(ctx context.Context, replyID int64) string {
	src, err := p.messages.FindByID(ctx, replyID)
	if err != nil {
		return ""
	}
	plain, err := p.decryptStored(src)
	if err != nil {
		p.logger.Warn("reply preview decrypt failed", "message_id", replyID, "err", err)
		return ""
	}
	return crypto.Preview(plain)
}

// decryptStored opens whichever cipher format the row carries.
func (p *Pipeline) decryptStored(m *models.Message) (string, error) {
	switch m.CipherVersion {
	case models.CipherVersionGCM:
		return p.codec.Decrypt(&crypto.Envelope{Text: m.Text, IV: m.IV, Tag: m.Tag}, m.Time)
	case models.CipherVersionLegacy:
		return p.codec.DecryptLegacy(m.TextECB, m.Time)
	default:
		return "", nil
	}
}

// toWireBatch shapes a page of rows, resolving sender profiles and
// reactions in bulk.
func (p *Pipeline) toWireBatch(ctx context.Context, msgs []*models.Message, viewerID int64) []*models.WireMessage {
	if len(msgs) == 0 {
		return []*models.WireMessage{}
	}

	senderIDs := make([]int64, 0, 2)
	msgIDs := make([]int64, 0, len(msgs))
	seen := map[int64]bool{}
	for _, m := range msgs {
		msgIDs = append(msgIDs, m.ID)
		if !seen[m.FromID] {
			seen[m.FromID] = true
			senderIDs = append(senderIDs, m.FromID)
		}
	}

	profiles, err := p.users.GetProfiles(ctx, senderIDs)
	if err != nil {
		p.logger.Warn("resolving sender profiles failed", "err", err)
		profiles = map[int64]*models.UserProfile{}
	}
	reactions, err := p.reactions.ListForMessages(ctx, msgIDs)
	if err != nil {
		p.logger.Warn("resolving reactions failed", "err", err)
		reactions = map[int64][]models.Reaction{}
	}

	out := make([]*models.WireMessage, 0, len(msgs))
	for _, m := range msgs {
		w := &models.WireMessage{
			ID:            m.ID,
			FromID:        m.FromID,
			ToID:          m.ToID,
			Text:          m.Text,
			IV:            m.IV,
			Tag:           m.Tag,
			CipherVersion: m.CipherVersion,
			Media:         m.Media,
			MediaFileName: m.MediaFileName,
			Stickers:      m.Stickers,
			Lat:           m.Lat,
			Lng:           m.Lng,
			TypeTwo:       m.TypeTwo,
			StoryID:       m.StoryID,
			ProductID:     m.ProductID,
			Seen:          m.Seen,
			Forward:       m.Forward,
			Edited:        m.Edited,
			Time:          m.Time,
			Position:      m.PositionFor(viewerID),
			Type:          m.CompositeType(),
			ReplyID:       m.ReplyID,
			Sender:        profiles[m.FromID],
			Reactions:     reactions[m.ID],
		}
		if m.ReplyID != nil {
			w.ReplyPreview = p.replyPreview(ctx, *m.ReplyID)
		}
		out = append(out, w)
	}
	return out
}

// reverse flips a DESC page into chronological order for display.
func reverse(msgs []*models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

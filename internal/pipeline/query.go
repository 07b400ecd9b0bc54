package pipeline

import (
	"context"

	"PrivateLine/server/internal/models"
	"PrivateLine/server/internal/store"
	apperrors "PrivateLine/server/pkg/errors"
)

type GetRequest struct {
	CallerID int64
	PeerID   int64
	ExactID  int64
	AfterID  int64
	BeforeID int64
	Limit    uint64
}

// Get returns a page of the conversation visible to the caller, in
// chronological order. Ciphertext passes through; clients decrypt.
func (p *Pipeline) Get(ctx context.Context, req GetRequest) ([]*models.WireMessage, error) {
	if req.PeerID == 0 {
		return nil, apperrors.ErrRecipientMissing
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultGetLimit
	}
	if limit > MaxGetLimit {
		limit = MaxGetLimit
	}

	msgs, err := p.messages.FindBetween(ctx, req.CallerID, req.PeerID, store.Cursor{
		ExactID:  req.ExactID,
		AfterID:  req.AfterID,
		BeforeID: req.BeforeID,
	}, limit)
	if err != nil {
		p.logger.Error("get messages failed", "caller", req.CallerID, "peer", req.PeerID, "err", err)
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not load messages", err)
	}

	reverse(msgs)
	return p.toWireBatch(ctx, msgs, req.CallerID), nil
}

// LoadMore is the pagination variant of Get: before-cursor only, smaller
// default page.
func (p *Pipeline) LoadMore(ctx context.Context, callerID, peerID, beforeID int64, limit uint64) ([]*models.WireMessage, error) {
	if limit == 0 {
		limit = DefaultLoadMoreLimit
	}
	return p.Get(ctx, GetRequest{
		CallerID: callerID,
		PeerID:   peerID,
		BeforeID: beforeID,
		Limit:    limit,
	})
}

type SearchRequest struct {
	CallerID int64
	PeerID   int64
	Query    string
	Limit    uint64
	Offset   uint64
}

// Search matches the bounded plaintext preview column only. Ciphertext is
// not searchable; that limitation is deliberate.
func (p *Pipeline) Search(ctx context.Context, req SearchRequest) ([]*models.WireMessage, error) {
	if req.PeerID == 0 {
		return nil, apperrors.ErrRecipientMissing
	}
	if len([]rune(req.Query)) < MinSearchQueryLen {
		return nil, apperrors.ErrQueryTooShort
	}
	limit := req.Limit
	if limit == 0 || limit > MaxGetLimit {
		limit = DefaultGetLimit
	}

	msgs, err := p.messages.SearchPreview(ctx, req.CallerID, req.PeerID, req.Query, limit, req.Offset)
	if err != nil {
		p.logger.Error("search failed", "caller", req.CallerID, "peer", req.PeerID, "err", err)
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not search messages", err)
	}
	return p.toWireBatch(ctx, msgs, req.CallerID), nil
}

// UnreadCount reports unseen messages from peer to caller.
func (p *Pipeline) UnreadCount(ctx context.Context, callerID, peerID int64) (int, error) {
	if peerID == 0 {
		return 0, apperrors.ErrRecipientMissing
	}
	n, err := p.messages.CountUnseen(ctx, callerID, peerID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "could not count unread", err)
	}
	return n, nil
}

// Conversations lists the caller's directory ordered by last activity,
// with counterpart profiles and unread counts resolved.
func (p *Pipeline) Conversations(ctx context.Context, callerID int64, archived bool, limit, offset uint64) ([]*models.ConversationSummary, error) {
	if limit == 0 || limit > MaxGetLimit {
		limit = DefaultGetLimit
	}

	entries, err := p.directory.ListForOwner(ctx, callerID, archived, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not list conversations", err)
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.CounterpartID)
	}
	profiles, err := p.users.GetProfiles(ctx, ids)
	if err != nil {
		p.logger.Warn("resolving counterpart profiles failed", "err", err)
		profiles = map[int64]*models.UserProfile{}
	}
	unseen, err := p.messages.CountUnseenBulk(ctx, callerID, ids)
	if err != nil {
		p.logger.Warn("resolving unread counts failed", "err", err)
		unseen = map[int64]int{}
	}

	out := make([]*models.ConversationSummary, 0, len(entries))
	for _, e := range entries {
		s := &models.ConversationSummary{ConversationEntry: *e}
		if prof := profiles[e.CounterpartID]; prof != nil {
			s.Counterpart = *prof
		}
		s.UnreadCount = unseen[e.CounterpartID]
		out = append(out, s)
	}
	return out, nil
}

// FavoriteList returns the caller's favorited messages that are still
// visible to them.
func (p *Pipeline) FavoriteList(ctx context.Context, callerID int64, limit, offset uint64) ([]*models.WireMessage, error) {
	if limit == 0 || limit > MaxGetLimit {
		limit = DefaultGetLimit
	}

	ids, err := p.extras.ListFavorites(ctx, callerID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not list favorites", err)
	}

	msgs := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		m, err := p.messages.FindByID(ctx, id)
		if err != nil {
			continue // favorite referencing a vanished row is skipped, not an error
		}
		if m.VisibleTo(callerID) {
			msgs = append(msgs, m)
		}
	}
	return p.toWireBatch(ctx, msgs, callerID), nil
}

// PinnedList returns the caller's pinned messages within one conversation.
func (p *Pipeline) PinnedList(ctx context.Context, callerID, chatID int64) ([]*models.WireMessage, error) {
	if chatID == 0 {
		return nil, apperrors.ErrChatMissing
	}

	ids, err := p.extras.ListPinned(ctx, callerID, chatID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not list pinned messages", err)
	}

	msgs := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		m, err := p.messages.FindByID(ctx, id)
		if err != nil {
			continue
		}
		if m.VisibleTo(callerID) {
			msgs = append(msgs, m)
		}
	}
	return p.toWireBatch(ctx, msgs, callerID), nil
}

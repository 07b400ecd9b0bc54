package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"PrivateLine/server/internal/models"
	apperrors "PrivateLine/server/pkg/errors"
)

type SendRequest struct {
	FromID        int64  `json:"-"`
	ToID          int64  `json:"to_id"`
	Text          string `json:"text"`
	Media         string `json:"media"`
	MediaFileName string `json:"media_file_name"`
	Stickers      string `json:"stickers"`
	TypeTwo       string `json:"type_two"`
	Lat           string `json:"lat"`
	Lng           string `json:"lng"`
	ReplyID       *int64 `json:"reply_id"`
	StoryID       int64  `json:"story_id"`
	ProductID     int64  `json:"product_id"`
}

func (r *SendRequest) hasContent() bool {
	return r.Text != "" || r.Media != "" || r.Stickers != "" ||
		(r.Lat != "" && r.Lng != "") || r.TypeTwo == "contact" || r.ProductID != 0
}

// Send validates, encrypts, persists and fans out one private message. The
// row insert and both directory touches share one transaction; the emits
// happen only after it commits.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (*models.WireMessage, error) {
	if req.ToID == 0 {
		return nil, apperrors.ErrRecipientMissing
	}
	if !req.hasContent() {
		return nil, apperrors.ErrEmptyMessage
	}

	ts := p.now().Unix()
	m := &models.Message{
		FromID:        req.FromID,
		ToID:          req.ToID,
		PageID:        models.PageNone,
		Media:         req.Media,
		MediaFileName: req.MediaFileName,
		Stickers:      req.Stickers,
		TypeTwo:       req.TypeTwo,
		Lat:           req.Lat,
		Lng:           req.Lng,
		ReplyID:       req.ReplyID,
		StoryID:       req.StoryID,
		ProductID:     req.ProductID,
		Time:          ts,
	}

	if req.Text != "" {
		env, err := p.codec.EncryptForStorage(req.Text, ts)
		if err != nil {
			return nil, err
		}
		m.Text = env.Text
		m.IV = env.IV
		m.Tag = env.Tag
		m.CipherVersion = env.CipherVersion
		m.TextECB = env.TextECB
		m.TextPreview = env.Preview
	}

	err := p.tx.WithinTx(ctx, func(msgs MessageStore, dir DirectoryStore) error {
		if err := msgs.Create(ctx, m); err != nil {
			return err
		}
		if err := dir.Touch(ctx, m.FromID, m.ToID, ts); err != nil {
			return err
		}
		return dir.Touch(ctx, m.ToID, m.FromID, ts)
	})
	if err != nil {
		p.logger.Error("send failed", "from", m.FromID, "to", m.ToID, "err", err)
		return nil, apperrors.Wrap(apperrors.CodeInternal, "could not send message", err)
	}

	senderView := p.toWire(ctx, m, m.FromID)
	recipientView := p.toWire(ctx, m, m.ToID)

	// Compatibility artifact: both event names carry the same payload.
	p.emitBoth(m.FromID, m.ToID, EventNewMessage, senderView, recipientView)
	p.emitBoth(m.FromID, m.ToID, EventPrivateMessage, senderView, recipientView)

	return senderView, nil
}

type ForwardRequest struct {
	CallerID     int64   `json:"-"`
	MessageID    int64   `json:"message_id"`
	RecipientIDs []int64 `json:"recipient_ids"`
}

// ForwardDelivery is the per-recipient outcome of a forward. Each delivery
// commits in its own transaction; one recipient failing does not roll back
// the ones that already landed, so the caller retries only the recipients
// reported undelivered.
type ForwardDelivery struct {
	RecipientID int64               `json:"recipient_id"`
	Delivered   bool                `json:"delivered"`
	Message     *models.WireMessage `json:"message,omitempty"`
}

// Forward decrypts the source once and re-encrypts per recipient under each
// new message's own timestamp. Recipients are independent units of work and
// run concurrently; failures surface per recipient, not as one opaque error.
func (p *Pipeline) Forward(ctx context.Context, req ForwardRequest) ([]ForwardDelivery, error) {
	if len(req.RecipientIDs) == 0 {
		return nil, apperrors.ErrNoRecipients
	}

	src, err := p.messages.FindByID(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if !src.VisibleTo(req.CallerID) || (req.CallerID != src.FromID && req.CallerID != src.ToID) {
		return nil, apperrors.ErrMessageNotFound
	}

	var plain string
	if src.CipherVersion != 0 {
		plain, err = p.decryptStored(src)
		if err != nil {
			return nil, err
		}
	}

	out := make([]ForwardDelivery, len(req.RecipientIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, recipientID := range req.RecipientIDs {
		i, recipientID := i, recipientID
		g.Go(func() error {
			w, err := p.forwardOne(gctx, src, plain, req.CallerID, recipientID)
			if err != nil {
				p.logger.Error("forward delivery failed",
					"message_id", req.MessageID, "recipient", recipientID, "err", err)
				out[i] = ForwardDelivery{RecipientID: recipientID}
				return nil
			}
			out[i] = ForwardDelivery{RecipientID: recipientID, Delivered: true, Message: w}
			return nil
		})
	}
	// The goroutines never return errors; outcomes land in out.
	_ = g.Wait()

	delivered := false
	for _, d := range out {
		delivered = delivered || d.Delivered
	}
	if delivered {
		if err := p.messages.IncrementForward(ctx, src.ID); err != nil {
			p.logger.Warn("forward counter not bumped", "message_id", src.ID, "err", err)
		}
	}
	return out, nil
}

func (p *Pipeline) forwardOne(ctx context.Context, src *models.Message, plain string, callerID, recipientID int64) (*models.WireMessage, error) {
	ts := p.now().Unix()
	m := &models.Message{
		FromID:        callerID,
		ToID:          recipientID,
		PageID:        models.PageNone,
		Media:         src.Media,
		MediaFileName: src.MediaFileName,
		Stickers:      src.Stickers,
		TypeTwo:       src.TypeTwo,
		Lat:           src.Lat,
		Lng:           src.Lng,
		StoryID:       src.StoryID,
		ProductID:     src.ProductID,
		Forward:       1,
		Time:          ts,
	}

	// Ciphertext is never copied across messages: the key is bound to the
	// new row's own timestamp.
	if plain != "" {
		env, err := p.codec.EncryptForStorage(plain, ts)
		if err != nil {
			return nil, err
		}
		m.Text = env.Text
		m.IV = env.IV
		m.Tag = env.Tag
		m.CipherVersion = env.CipherVersion
		m.TextECB = env.TextECB
		m.TextPreview = env.Preview
	}

	err := p.tx.WithinTx(ctx, func(msgs MessageStore, dir DirectoryStore) error {
		if err := msgs.Create(ctx, m); err != nil {
			return err
		}
		if err := dir.Touch(ctx, m.FromID, m.ToID, ts); err != nil {
			return err
		}
		return dir.Touch(ctx, m.ToID, m.FromID, ts)
	})
	if err != nil {
		return nil, err
	}

	senderView := p.toWire(ctx, m, callerID)
	recipientView := p.toWire(ctx, m, recipientID)
	p.emitBoth(callerID, recipientID, EventNewMessage, senderView, recipientView)
	p.emitBoth(callerID, recipientID, EventPrivateMessage, senderView, recipientView)
	return senderView, nil
}

package pipeline

import (
	"context"
	"time"

	"PrivateLine/server/internal/crypto"
	"PrivateLine/server/internal/models"
	"PrivateLine/server/internal/realtime"
	"PrivateLine/server/internal/store"
	"PrivateLine/server/pkg/logger"
)

// Event names on the realtime channel. new_message and private_message are
// both emitted for a send with the same payload; older clients listen on
// the second name.
const (
	EventNewMessage     = "new_message"
	EventPrivateMessage = "private_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventReaction       = "message_reaction"
	EventPinned         = "message_pinned"
	EventLastSeen       = "lastseen"
	EventTyping         = "typing"
	EventTypingDone     = "typing_done"
)

const (
	DefaultGetLimit      = 50
	MaxGetLimit          = 100
	DefaultLoadMoreLimit = 20
	MinSearchQueryLen    = 2
)

type MessageStore interface {
	Create(ctx context.Context, m *models.Message) error
	FindByID(ctx context.Context, id int64) (*models.Message, error)
	FindBetween(ctx context.Context, callerID, peerID int64, cursor store.Cursor, limit uint64) ([]*models.Message, error)
	SearchPreview(ctx context.Context, callerID, peerID int64, substr string, limit, offset uint64) ([]*models.Message, error)
	MarkSeen(ctx context.Context, callerID, peerID, seenAt int64) ([]int64, error)
	CountUnseen(ctx context.Context, callerID, peerID int64) (int, error)
	CountUnseenBulk(ctx context.Context, callerID int64, peerIDs []int64) (map[int64]int, error)
	UpdateCiphertext(ctx context.Context, id, senderID int64, text, iv, tag, textECB, preview string) error
	SetDeleted(ctx context.Context, id int64, senderSide, recipientSide bool) error
	IncrementForward(ctx context.Context, id int64) error
}

type DirectoryStore interface {
	Get(ctx context.Context, owner, counterpart int64) (*models.ConversationEntry, error)
	Touch(ctx context.Context, owner, counterpart, ts int64) error
	SetFlag(ctx context.Context, owner, counterpart int64, column string, value bool) error
	SetColor(ctx context.Context, owner, counterpart int64, color string) error
	ListForOwner(ctx context.Context, owner int64, archived bool, limit, offset uint64) ([]*models.ConversationEntry, error)
}

type ReactionStore interface {
	Get(ctx context.Context, userID, messageID int64) (*models.Reaction, error)
	Upsert(ctx context.Context, userID, messageID int64, reaction string) error
	Delete(ctx context.Context, userID, messageID int64) error
	ListForMessages(ctx context.Context, messageIDs []int64) (map[int64][]models.Reaction, error)
}

type ExtrasStore interface {
	SetPinned(ctx context.Context, userID, chatID, messageID int64, pinned bool) error
	ToggleFavorite(ctx context.Context, userID, messageID int64) (bool, error)
	ListFavorites(ctx context.Context, userID int64, limit, offset uint64) ([]int64, error)
	ListPinned(ctx context.Context, userID, chatID int64) ([]int64, error)
}

type UserStore interface {
	GetProfile(ctx context.Context, id int64) (*models.UserProfile, error)
	GetProfiles(ctx context.Context, ids []int64) (map[int64]*models.UserProfile, error)
}

// Transactor runs fn with message and directory stores bound to one
// transaction, so a send's row insert and both directory touches commit or
// roll back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(msgs MessageStore, dir DirectoryStore) error) error
}

type Pipeline struct {
	messages  MessageStore
	directory DirectoryStore
	reactions ReactionStore
	extras    ExtrasStore
	users     UserStore
	tx        Transactor
	codec     *crypto.Codec
	publisher realtime.Publisher
	logger    *logger.Logger
	now       func() time.Time
}

type Deps struct {
	Messages  MessageStore
	Directory DirectoryStore
	Reactions ReactionStore
	Extras    ExtrasStore
	Users     UserStore
	Tx        Transactor
	Codec     *crypto.Codec
	Publisher realtime.Publisher
	Logger    *logger.Logger
	Now       func() time.Time
}

func New(d Deps) *Pipeline {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Pipeline{
		messages:  d.Messages,
		directory: d.Directory,
		reactions: d.Reactions,
		extras:    d.Extras,
		users:     d.Users,
		tx:        d.Tx,
		codec:     d.Codec,
		publisher: d.Publisher,
		logger:    d.Logger,
		now:       d.Now,
	}
}

// MessageEvent is the payload of every message-level realtime event. Self
// marks the echo to the acting user's own other sessions.
type MessageEvent struct {
	Message *models.WireMessage `json:"message"`
	Self    bool                `json:"self"`
}

// emitBoth publishes the event to the counterpart and echoes it to the
// actor's own sessions with the self flag, each side seeing its own
// position/decoration.
func (p *Pipeline) emitBoth(actorID, peerID int64, event string, actorView, peerView *models.WireMessage) {
	p.publisher.Publish(peerID, event, MessageEvent{Message: peerView})
	p.publisher.Publish(actorID, event, MessageEvent{Message: actorView, Self: true})
}

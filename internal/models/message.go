package models

// PageNone is the sentinel for "not a page": page/business-account
// messaging is handled elsewhere, every row written here carries it.
const PageNone = 0

const (
	CipherVersionLegacy = 1
	CipherVersionGCM    = 2
)

type Message struct {
	ID            int64  `json:"id" db:"id"`
	FromID        int64  `json:"from_id" db:"from_id"`
	ToID          int64  `json:"to_id" db:"to_id"`
	PageID        int64  `json:"page_id" db:"page_id"`
	Text          string `json:"text" db:"text"`
	IV            string `json:"iv" db:"iv"`
	Tag           string `json:"tag" db:"tag"`
	CipherVersion int16  `json:"cipher_version" db:"cipher_version"`
	TextECB       string `json:"-" db:"text_ecb"`
	TextPreview   string `json:"-" db:"text_preview"`
	Media         string `json:"media,omitempty" db:"media"`
	MediaFileName string `json:"media_file_name,omitempty" db:"media_file_name"`
	Stickers      string `json:"stickers,omitempty" db:"stickers"`
	TypeTwo       string `json:"type_two,omitempty" db:"type_two"`
	Lat           string `json:"lat,omitempty" db:"lat"`
	Lng           string `json:"lng,omitempty" db:"lng"`
	ReplyID       *int64 `json:"reply_id,omitempty" db:"reply_id"`
	StoryID       int64  `json:"story_id,omitempty" db:"story_id"`
	ProductID     int64  `json:"product_id,omitempty" db:"product_id"`
	Seen          int64  `json:"seen" db:"seen"`
	DeletedOne    bool   `json:"-" db:"deleted_one"`
	DeletedTwo    bool   `json:"-" db:"deleted_two"`
	Forward       int    `json:"forward" db:"forward"`
	Edited        bool   `json:"edited" db:"edited"`
	Time          int64  `json:"time" db:"time"`
}

// VisibleTo reports whether userID's side of the pair still sees the row.
func (m *Message) VisibleTo(userID int64) bool {
	if userID == m.FromID {
		return !m.DeletedOne
	}
	return !m.DeletedTwo
}

type Reaction struct {
	UserID    int64  `json:"user_id" db:"user_id"`
	MessageID int64  `json:"message_id" db:"message_id"`
	Reaction  string `json:"reaction" db:"reaction"`
}

// ReactionAction is what a react call ended up doing, carried on the
// message_reaction event so clients can reconcile without refetching.
type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionUpdated ReactionAction = "updated"
	ReactionRemoved ReactionAction = "removed"
)

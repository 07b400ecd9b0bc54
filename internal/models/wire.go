package models

// Position of a message relative to the requesting user.
const (
	PositionLeft  = "left"
	PositionRight = "right"
)

// Composite type tags derived from the stored fields.
const (
	TypeText     = "text"
	TypeMedia    = "media"
	TypeSticker  = "sticker"
	TypeLocation = "location"
	TypeContact  = "contact"
	TypeProduct  = "product"
	TypeStory    = "story"
)

// WireMessage is the message as returned to clients: ciphertext plus the
// material needed to decrypt it (iv, tag, cipher_version, time) and the
// derived display fields. The plaintext preview column is never included.
type WireMessage struct {
	ID            int64        `json:"id"`
	FromID        int64        `json:"from_id"`
	ToID          int64        `json:"to_id"`
	Text          string       `json:"text"`
	IV            string       `json:"iv"`
	Tag           string       `json:"tag"`
	CipherVersion int16        `json:"cipher_version"`
	Media         string       `json:"media,omitempty"`
	MediaFileName string       `json:"media_file_name,omitempty"`
	Stickers      string       `json:"stickers,omitempty"`
	Lat           string       `json:"lat,omitempty"`
	Lng           string       `json:"lng,omitempty"`
	TypeTwo       string       `json:"type_two,omitempty"`
	StoryID       int64        `json:"story_id,omitempty"`
	ProductID     int64        `json:"product_id,omitempty"`
	Seen          int64        `json:"seen"`
	Forward       int          `json:"forward"`
	Edited        bool         `json:"edited"`
	Time          int64        `json:"time"`
	Position      string       `json:"position"`
	Type          string       `json:"type"`
	ReplyID       *int64       `json:"reply_id,omitempty"`
	ReplyPreview  string       `json:"reply_preview,omitempty"`
	Sender        *UserProfile `json:"sender,omitempty"`
	Reactions     []Reaction   `json:"reactions,omitempty"`
}

// CompositeType derives the display type tag from what the row carries.
func (m *Message) CompositeType() string {
	switch {
	case m.TypeTwo == "contact":
		return TypeContact
	case m.TypeTwo == "map" || (m.Lat != "" && m.Lng != ""):
		return TypeLocation
	case m.TypeTwo == "product" || m.ProductID != 0:
		return TypeProduct
	case m.StoryID != 0:
		return TypeStory
	case m.Stickers != "":
		return TypeSticker
	case m.Media != "":
		return TypeMedia
	default:
		return TypeText
	}
}

// PositionFor returns which side of the screen the message renders on for
// the given viewer.
func (m *Message) PositionFor(viewerID int64) string {
	if m.FromID == viewerID {
		return PositionRight
	}
	return PositionLeft
}

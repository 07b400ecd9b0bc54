package models

// ConversationEntry is one direction of a conversation's metadata:
// (owner, counterpart) and (counterpart, owner) are independent rows
// except for Color, which is written symmetrically.
type ConversationEntry struct {
	OwnerID       int64  `json:"owner_id" db:"owner_id"`
	CounterpartID int64  `json:"counterpart_id" db:"counterpart_id"`
	Time          int64  `json:"time" db:"time"`
	Color         string `json:"color" db:"color"`
	Notify        bool   `json:"notify" db:"notify"`
	CallChat      bool   `json:"call_chat" db:"call_chat"`
	Archive       bool   `json:"archive" db:"archive"`
	Pin           bool   `json:"pin" db:"pin"`
}

// DefaultConversationEntry is what a read returns when no row exists yet:
// notifications and calls on, nothing archived or pinned.
func DefaultConversationEntry(owner, counterpart int64) *ConversationEntry {
	return &ConversationEntry{
		OwnerID:       owner,
		CounterpartID: counterpart,
		Notify:        true,
		CallChat:      true,
	}
}

// ConversationSummary is one row of the conversation list: the directory
// entry plus the counterpart's profile and the unread count.
type ConversationSummary struct {
	ConversationEntry
	Counterpart UserProfile `json:"counterpart"`
	UnreadCount int         `json:"unread_count"`
}

package models

// UserProfile is the sender card attached to every wire message. Identity
// itself is resolved by the external auth layer; this is display data only.
type UserProfile struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Avatar   string `json:"avatar" db:"avatar"`
	Status   string `json:"status" db:"status"`
	LastSeen int64  `json:"last_seen" db:"last_seen"`
}

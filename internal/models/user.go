package models

// UserProfile carries the display fields of a marketplace account used to
// enrich conversation and message responses. Accounts themselves are owned
// by the marketplace core, not by this service.
type UserProfile struct {
	ID        int64  `db:"id" json:"id"`
	Username  string `db:"username" json:"username"`
	AvatarURL string `db:"avatar_url" json:"avatar_url,omitempty"`
}

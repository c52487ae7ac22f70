package domain

// Permission is the level of the token held at the external ban authority.
type Permission string

const (
	PermissionUser  Permission = "User"
	PermissionAdmin Permission = "Admin"
	PermissionRoot  Permission = "Root"
)

// CanWrite reports whether the token may add or delete bans.
func (p Permission) CanWrite() bool {
	return p == PermissionAdmin || p == PermissionRoot
}

// AuthorityBan is one entry pushed to the external ban authority.
type AuthorityBan struct {
	ID      int64  `json:"id"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
	Admin   int64  `json:"admin,omitempty"`
}

// BanEvent is published whenever the registry changes through a global ban.
type BanEvent struct {
	EventID string `json:"event_id"`
	UserID  int64  `json:"user_id"`
	Reason  string `json:"reason,omitempty"`
	Action  string `json:"action"` // added, removed
}

package domain

// EventKind selects how the subject of an event is found.
type EventKind string

const (
	KindMembership EventKind = "membership"
	KindMessage    EventKind = "message"
)

// MembershipAction is the service action attached to a membership event.
type MembershipAction string

const (
	ActionAdded        MembershipAction = "added"
	ActionJoinedByLink MembershipAction = "joined_by_link"
	ActionLeft         MembershipAction = "left"
	ActionKicked       MembershipAction = "kicked"
)

// ChatAuthority describes what the bot account itself may do in the chat.
type ChatAuthority struct {
	Creator     bool `json:"creator"`
	Admin       bool `json:"admin"`
	CanBanUsers bool `json:"can_ban_users"`
}

// CanBan reports whether a ban in this chat can succeed at all.
func (a ChatAuthority) CanBan() bool {
	return a.Creator || (a.Admin && a.CanBanUsers)
}

// Event is one inbound platform event as published by the chat transport.
type Event struct {
	Kind    EventKind        `json:"kind"`
	ChatID  int64            `json:"chat_id"`
	Private bool             `json:"private,omitempty"`
	Action  MembershipAction `json:"action,omitempty"`
	// UserID is the user who joined or was added.
	UserID *int64 `json:"user_id,omitempty"`
	// SenderID is the author of a message.
	SenderID  *int64        `json:"sender_id,omitempty"`
	UserName  string        `json:"user_name,omitempty"`
	MessageID int64         `json:"message_id,omitempty"`
	Authority ChatAuthority `json:"authority"`
	// IsBot is set when the subject is a bot account.
	IsBot bool `json:"is_bot,omitempty"`

	// Message content, checked against the denylists.
	Text     string `json:"text,omitempty"`
	ViaBotID *int64 `json:"via_bot_id,omitempty"`
	// URLs holds plain URLs, text link targets and URL button targets.
	URLs     []string    `json:"urls,omitempty"`
	Mentions []string    `json:"mentions,omitempty"`
	Document *Attachment `json:"document,omitempty"`
	Photo    []byte      `json:"photo,omitempty"`
	// LinkedPhotos are the profile photos of chats the message links to.
	LinkedPhotos [][]byte `json:"linked_photos,omitempty"`

	// Profile of a joining user.
	Bio          string `json:"bio,omitempty"`
	ProfilePhoto []byte `json:"profile_photo,omitempty"`
}

// Attachment is a document sent with a message. Data may be omitted by the
// transport for large files; Size is always the real size.
type Attachment struct {
	Size int64  `json:"size"`
	Data []byte `json:"data,omitempty"`
}

// Outcome is the terminal state of one engine run.
type Outcome string

const (
	OutcomeIgnored     Outcome = "ignored"
	OutcomeNotBanned   Outcome = "not-banned"
	OutcomeAdminExempt Outcome = "admin-exempt"
	OutcomeBanFailed   Outcome = "ban-failed"
	OutcomeBanned      Outcome = "banned"
	// OutcomeError means a registry or platform read failed before a decision.
	OutcomeError Outcome = "error"
)

// Result records where the run ended and, for ignored events, why.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
	UserID  int64   `json:"user_id,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

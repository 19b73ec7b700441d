package types

import "time"

// Activity log action kinds.
const (
	ActionLogin       = "LOGIN"
	ActionLoginFailed = "LOGIN_FAILED"
	ActionLogout      = "LOGOUT"
	ActionRefresh     = "REFRESH"
	ActionRegister    = "REGISTER"
	ActionSyncPull    = "SYNC_PULL"
)

// RequestMeta carries request-scoped metadata attached to activity entries.
type RequestMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ActivityLogEntry is one immutable row of the auth audit trail.
type ActivityLogEntry struct {
	// ID is the unique identifier of the entry.
	ID int `json:"id" db:"id"`

	// UserID identifies the acting user. Zero for failed logins where no
	// account matched the identifier.
	UserID int `json:"user_id" db:"user_id"`

	// Action is the event kind (LOGIN, LOGOUT, ...).
	Action string `json:"action" db:"action"`

	// Details is a free-form description of the event.
	Details string `json:"details,omitempty" db:"details"`

	// IP is the remote address the request originated from.
	IP string `json:"ip,omitempty" db:"ip"`

	// UserAgent is the client's User-Agent header.
	UserAgent string `json:"user_agent,omitempty" db:"user_agent"`

	// CreatedAt is the timestamp the entry was appended. Entries are never
	// updated after this point.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

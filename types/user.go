package types

import "time"

// Role values recognised by the authorization layer.
const (
	RoleAdmin       = "ADMIN"
	RoleCoordinator = "COORDINATOR"
	RoleModerator   = "MODERATOR"
	RoleUser        = "USER"
)

// User represents an account in the system.
// It contains identity, credential, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address and primary login identifier.
	Email string `json:"email" db:"email"`

	// Phone is an optional phone number usable as a login identifier.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Role indicates the user's authorization level within the system
	// (one of ADMIN, COORDINATOR, MODERATOR, USER).
	Role string `json:"role" db:"role"`

	// IsActive reports whether the account may authenticate.
	// Deactivated users fail login with the same response as bad credentials.
	IsActive bool `json:"is_active" db:"is_active"`

	// LoginCount is the number of successful logins recorded for the account.
	LoginCount int `json:"login_count" db:"login_count"`

	// LastLoginAt is the timestamp of the most recent successful login,
	// nil when the user has never logged in.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CanManage reports whether the role is allowed to mutate site records
// (projects, tasks, deliveries, equipment).
func CanManage(role string) bool {
	return role == RoleAdmin || role == RoleCoordinator
}

// SeesEverything reports whether the role bypasses ownership scoping when
// reading site records, including during sync pulls.
func SeesEverything(role string) bool {
	return role == RoleAdmin || role == RoleCoordinator || role == RoleModerator
}

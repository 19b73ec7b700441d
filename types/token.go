package types

import "time"

// TokenPair is the credential set handed to a client after login or refresh.
type TokenPair struct {
	// AccessToken is a short-lived signed JWT presented on every API call.
	AccessToken string `json:"access_token"`

	// RefreshToken is a long-lived signed JWT, tracked server-side so it
	// can be revoked independently of its expiry.
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// RefreshToken is the persisted record backing an issued refresh token.
// Only a hash of the signed token string is stored.
type RefreshToken struct {
	// ID is the unique identifier of the record.
	ID int `json:"id" db:"id"`

	// UserID identifies the owning user.
	UserID int `json:"user_id" db:"user_id"`

	// TokenHash is the SHA-256 hex digest of the signed token string.
	TokenHash string `json:"-" db:"token_hash"`

	// DeviceID identifies the client device the token was issued to.
	// Empty for clients that do not report a device.
	DeviceID string `json:"device_id,omitempty" db:"device_id"`

	// ExpiresAt is the instant after which the token no longer validates
	// even if the record still exists.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// CreatedAt is the timestamp when the token was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SessionIdentity is the canonical authenticated-identity shape produced by
// the session adapter from either a cookie session or a bearer token.
// Handlers depend on this and never on the proof mechanism.
type SessionIdentity struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ClientType classifies the calling client for logging and metrics.
// It is never an input to trust decisions.
type ClientType string

const (
	ClientWeb    ClientType = "web"
	ClientMobile ClientType = "mobile"
)

// Proof names the credential mechanism that established an identity.
type Proof string

const (
	ProofCookie Proof = "cookie"
	ProofBearer Proof = "bearer"
	ProofNone   Proof = ""
)

// AuthResult is the outcome of authenticating a request. A missing or
// invalid proof is a normal outcome, not an error: Authenticated is false
// and User is nil.
type AuthResult struct {
	Authenticated bool             `json:"authenticated"`
	User          *SessionIdentity `json:"user,omitempty"`
	Proof         Proof            `json:"-"`
}

// WebSession is a server-side session row referenced by a browser cookie.
type WebSession struct {
	Token     string    `db:"token"`
	UserID    int       `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

package types

import (
	"encoding/json"
	"time"
)

// Sync queue item statuses.
const (
	SyncPending   = "PENDING"
	SyncCompleted = "COMPLETED"
	SyncFailed    = "FAILED"
)

// SyncQueueItem is one queued change produced by a mutation path, consumed
// by the sync worker and aggregated by the status endpoint.
type SyncQueueItem struct {
	// ID is the unique identifier of the item.
	ID int `json:"id" db:"id"`

	// UserID identifies the user whose mutation produced the item.
	UserID int `json:"user_id" db:"user_id"`

	// Entity is the entity type the payload belongs to ("projects", ...).
	Entity string `json:"entity" db:"entity"`

	// Payload is the serialized record snapshot at mutation time.
	Payload json.RawMessage `json:"payload" db:"payload"`

	// Status is PENDING until the worker processes the item, then
	// COMPLETED or FAILED.
	Status string `json:"status" db:"status"`

	// SyncedAt is the timestamp the worker finished the item, nil while
	// PENDING.
	SyncedAt *time.Time `json:"synced_at,omitempty" db:"synced_at"`

	// CreatedAt is the timestamp the item was enqueued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SyncRecord is the reconciler-facing view of one site record: the payload
// a client receives plus the timestamps used to bucket and order it.
type SyncRecord struct {
	// Payload is the full record as it should reach the client.
	Payload json.RawMessage `json:"payload"`

	// CreatedAt, UpdatedAt and DeletedAt drive the created/updated/deleted
	// partition relative to the client's checkpoint. DeletedAt is nil for
	// live records.
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
	DeletedAt *time.Time `json:"-"`
}

// PullRequest is the body of a mobile pull-sync call.
type PullRequest struct {
	// LastSyncAt is the client's checkpoint. Nil requests a full resync.
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`

	// Entities lists the entity types the client wants changes for.
	Entities []string `json:"entities"`

	// DeviceID identifies the requesting device, recorded for audit only.
	DeviceID string `json:"deviceId,omitempty"`
}

// ChangeSet groups changed records per entity into the three sync buckets.
// Within each bucket records are ordered by ascending update timestamp so a
// client persisting partial progress resumes deterministically.
type ChangeSet struct {
	Created map[string][]json.RawMessage `json:"created"`
	Updated map[string][]json.RawMessage `json:"updated"`
	Deleted map[string][]json.RawMessage `json:"deleted"`
}

// PullResult is the response of a pull-sync call. Errors maps entity types
// that failed to resolve to an error message; the remaining entities still
// carry complete buckets.
type PullResult struct {
	Changes  ChangeSet         `json:"changes"`
	Errors   map[string]string `json:"errors,omitempty"`
	SyncedAt time.Time         `json:"syncedAt"`
}

// SyncStatus is the cheap poll-safe aggregate over a user's sync queue.
type SyncStatus struct {
	HasPendingChanges bool       `json:"hasPendingChanges"`
	PendingCount      int        `json:"pendingCount"`
	FailedCount       int        `json:"failedCount"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
}

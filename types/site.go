package types

import "time"

// Project statuses.
const (
	ProjectPlanned   = "PLANNED"
	ProjectActive    = "ACTIVE"
	ProjectOnHold    = "ON_HOLD"
	ProjectCompleted = "COMPLETED"
)

// Task statuses.
const (
	TaskOpen       = "OPEN"
	TaskInProgress = "IN_PROGRESS"
	TaskDone       = "DONE"
)

// Delivery statuses.
const (
	DeliveryScheduled = "SCHEDULED"
	DeliveryInTransit = "IN_TRANSIT"
	DeliveryReceived  = "RECEIVED"
	DeliveryRejected  = "REJECTED"
)

// Equipment statuses.
const (
	EquipmentAvailable   = "AVAILABLE"
	EquipmentInUse       = "IN_USE"
	EquipmentMaintenance = "MAINTENANCE"
)

// Project is a construction site project. Rows are soft-deleted so removal
// can be propagated to offline clients.
type Project struct {
	ID        int        `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Address   string     `json:"address,omitempty" db:"address"`
	Status    string     `json:"status" db:"status"`
	ManagerID int        `json:"manager_id" db:"manager_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Task is a unit of work inside a project, optionally assigned to a user.
type Task struct {
	ID         int        `json:"id" db:"id"`
	ProjectID  int        `json:"project_id" db:"project_id"`
	Title      string     `json:"title" db:"title"`
	Status     string     `json:"status" db:"status"`
	AssigneeID int        `json:"assignee_id,omitempty" db:"assignee_id"`
	DueDate    *time.Time `json:"due_date,omitempty" db:"due_date"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Delivery is a scheduled or received material delivery for a project.
// PhotoKey references a proof-of-delivery photo in object storage.
type Delivery struct {
	ID        int        `json:"id" db:"id"`
	ProjectID int        `json:"project_id" db:"project_id"`
	Supplier  string     `json:"supplier" db:"supplier"`
	Material  string     `json:"material,omitempty" db:"material"`
	Status    string     `json:"status" db:"status"`
	PhotoKey  string     `json:"photo_key,omitempty" db:"photo_key"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Equipment is a fleet item (vehicle, machine, tool) optionally allocated
// to a project.
type Equipment struct {
	ID        int        `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Kind      string     `json:"kind" db:"kind"`
	Status    string     `json:"status" db:"status"`
	ProjectID int        `json:"project_id,omitempty" db:"project_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

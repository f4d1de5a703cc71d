package models

// UserRole is stored as a plain string; "admin" unlocks management endpoints.
const (
	UserRoleAdmin = "admin"
	UserRoleUser  = "user"
)

// ProjectStatus values cover the whole project lifecycle.
type ProjectStatus string

const (
	ProjectStatusNotStarted ProjectStatus = "not_started"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusNotStarted, ProjectStatusInProgress, ProjectStatusCompleted:
		return true
	}
	return false
}

// Project audit event types.
const (
	ProjectEventDatesChanged  = "dates_changed"
	ProjectEventStatusChanged = "status_changed"
)

// Sync run entity classes. A single run covers every entity type within
// its class; the watermark is tracked per class, not per entity type.
const (
	EntityClassCustomers    = "customers"
	EntityClassTransactions = "transactions"
)

// Sync trigger sources.
const (
	SyncTriggeredManual = "manual"
	SyncTriggeredSystem = "system"
)

package models

import "time"

// Project is the operational layer on top of a synced QBO customer that is
// flagged as a project. Created lazily by the first assignment save.
type Project struct {
	ID            int           `gorm:"primary_key" json:"id"`
	QboCustomerId int           `gorm:"not null;unique" json:"qbo_customer_id"`
	StartDate     *time.Time    `gorm:"type:date" json:"start_date"`
	EndDate       *time.Time    `gorm:"type:date" json:"end_date"`
	Status        ProjectStatus `gorm:"size:20;not null;default:not_started" json:"status"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProjectManagerAssignment links a PM to a project. Links are never hard
// deleted; UnassignedAt marks the link closed and history stays intact.
// Among open links of one project at most one row has IsPrimary set.
type ProjectManagerAssignment struct {
	ID                 int        `gorm:"primary_key" json:"id"`
	ProjectId          int        `gorm:"not null;index" json:"project_id"`
	ProjectManagerId   int        `gorm:"not null;index" json:"project_manager_id"`
	IsPrimary          bool       `gorm:"not null;default:false" json:"is_primary"`
	AssignedAt         time.Time  `gorm:"autoCreateTime" json:"assigned_at"`
	AssignedByUserId   int        `gorm:"not null" json:"assigned_by_user_id"`
	UnassignedAt       *time.Time `json:"unassigned_at"`
	UnassignedByUserId *int       `json:"unassigned_by_user_id"`
}

func (ProjectManagerAssignment) TableName() string {
	return "project_project_managers"
}

// WorkCrewAssignment mirrors ProjectManagerAssignment for crews.
type WorkCrewAssignment struct {
	ID                 int        `gorm:"primary_key" json:"id"`
	ProjectId          int        `gorm:"not null;index" json:"project_id"`
	WorkCrewId         int        `gorm:"not null;index" json:"work_crew_id"`
	IsPrimary          bool       `gorm:"not null;default:false" json:"is_primary"`
	AssignedAt         time.Time  `gorm:"autoCreateTime" json:"assigned_at"`
	AssignedByUserId   int        `gorm:"not null" json:"assigned_by_user_id"`
	UnassignedAt       *time.Time `json:"unassigned_at"`
	UnassignedByUserId *int       `json:"unassigned_by_user_id"`
}

func (WorkCrewAssignment) TableName() string {
	return "project_work_crews"
}

// ProjectEvent is the append-only audit trail of project field changes.
// Rows are written by the assignment reconciler only and never mutated.
type ProjectEvent struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ProjectId   int       `gorm:"not null;index" json:"project_id"`
	EventType   string    `gorm:"size:30;not null" json:"event_type"`
	ActorUserId int       `gorm:"not null" json:"actor_user_id"`
	OldValue    []byte    `gorm:"type:json" json:"old_value"`
	NewValue    []byte    `gorm:"type:json" json:"new_value"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ProjectEvent) TableName() string {
	return "project_events"
}

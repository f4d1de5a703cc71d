package projects

import (
	"errors"
	"time"

	"bitbucket.org/onpointdev/ops_backend/models"
)

var (
	ErrCustomerNotFound = errors.New("qbo customer not found")
	ErrNotProject       = errors.New("customer is not flagged as a project")
	ErrInvalidStatus    = errors.New("invalid project status")
	ErrInvalidDate      = errors.New("dates must be YYYY-MM-DD")
	ErrEndBeforeStart   = errors.New("end date is before start date")
	ErrPrimaryNotInSet  = errors.New("primary id must be part of the assigned set")
	ErrUnknownManager   = errors.New("unknown or inactive project manager id")
	ErrUnknownCrew      = errors.New("unknown or inactive work crew id")
)

// SaveAssignmentInput is one full desired state for a project. Nil
// pointer fields are left unchanged; an empty date string clears the
// date. The id slices are authoritative: links not listed are closed.
type SaveAssignmentInput struct {
	QboCustomerId     int     `json:"qbo_customer_id"`
	StartDate         *string `json:"start_date"`
	EndDate           *string `json:"end_date"`
	Status            *string `json:"status"`
	ProjectManagerIds []int   `json:"project_manager_ids"`
	PrimaryManagerId  *int    `json:"primary_manager_id"`
	WorkCrewIds       []int   `json:"work_crew_ids"`
	PrimaryCrewId     *int    `json:"primary_crew_id"`
}

// AssignableProject is one row of the assignable-project listing: the
// synced customer plus whatever local project state exists for it.
type AssignableProject struct {
	QboCustomerId int             `json:"qbo_customer_id"`
	QboId         string          `json:"qbo_id"`
	DisplayName   *string         `json:"display_name"`
	Active        *bool           `json:"active"`
	Balance       *string         `json:"balance"`
	Project       *models.Project `json:"project"`
	ManagerCount  int             `json:"manager_count"`
	CrewCount     int             `json:"crew_count"`
}

// ManagerAssignment is an open PM link joined with its manager row.
type ManagerAssignment struct {
	models.ProjectManagerAssignment
	Manager models.ProjectManager `json:"manager"`
}

// CrewAssignment is an open crew link joined with its crew row.
type CrewAssignment struct {
	models.WorkCrewAssignment
	Crew models.WorkCrew `json:"crew"`
}

// AssignmentBundle is the full editing state for one project: the synced
// customer, the local project row when one exists, and all open links.
type AssignmentBundle struct {
	Customer models.QboCustomer  `json:"customer"`
	Project  *models.Project     `json:"project"`
	Managers []ManagerAssignment `json:"managers"`
	Crews    []CrewAssignment    `json:"crews"`
}

type dateEventPayload struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

type statusEventPayload struct {
	Status models.ProjectStatus `json:"status"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

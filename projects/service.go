package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/onpointdev/ops_backend/config"
	"bitbucket.org/onpointdev/ops_backend/models"
)

// Service owns the reconciliation of project assignment state: it turns
// a full desired state from the client into link closes, link adds,
// primary moves and audit events inside one transaction.
type Service struct {
	db  *gorm.DB
	log *logrus.Logger
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, log: config.GetLogger(), now: time.Now}
}

// ListAssignableProjects returns every synced customer flagged as a
// project, each joined with its local project row and open link counts.
func (s *Service) ListAssignableProjects(ctx context.Context, search string, activeOnly bool) ([]AssignableProject, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&models.QboCustomer{}).Where("is_project = ?", true)
	if activeOnly {
		q = q.Where("active IS NULL OR active = ?", true)
	}
	if search != "" {
		q = q.Where("display_name LIKE ?", "%"+search+"%")
	}
	var customers []models.QboCustomer
	if err := q.Order("display_name, id").Find(&customers).Error; err != nil {
		return nil, err
	}

	out := make([]AssignableProject, 0, len(customers))
	for _, cust := range customers {
		row := AssignableProject{
			QboCustomerId: cust.ID,
			QboId:         cust.QboId,
			DisplayName:   cust.DisplayName,
			Active:        cust.Active,
		}
		if cust.Balance != nil {
			b := cust.Balance.String()
			row.Balance = &b
		}
		var project models.Project
		err := db.Where("qbo_customer_id = ?", cust.ID).Take(&project).Error
		if err == nil {
			row.Project = &project
			var pmCount, crewCount int64
			if err := db.Model(&models.ProjectManagerAssignment{}).
				Where("project_id = ? AND unassigned_at IS NULL", project.ID).
				Count(&pmCount).Error; err != nil {
				return nil, err
			}
			if err := db.Model(&models.WorkCrewAssignment{}).
				Where("project_id = ? AND unassigned_at IS NULL", project.ID).
				Count(&crewCount).Error; err != nil {
				return nil, err
			}
			row.ManagerCount = int(pmCount)
			row.CrewCount = int(crewCount)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// GetAssignmentBundle loads everything the assignment editor needs for
// one customer. The project pointer is nil until the first save.
func (s *Service) GetAssignmentBundle(ctx context.Context, qboCustomerId int) (*AssignmentBundle, error) {
	db := s.db.WithContext(ctx)
	var customer models.QboCustomer
	if err := db.Take(&customer, qboCustomerId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	bundle := &AssignmentBundle{
		Customer: customer,
		Managers: []ManagerAssignment{},
		Crews:    []CrewAssignment{},
	}
	var project models.Project
	err := db.Where("qbo_customer_id = ?", customer.ID).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bundle, nil
	}
	if err != nil {
		return nil, err
	}
	bundle.Project = &project

	var pmLinks []models.ProjectManagerAssignment
	if err := db.Where("project_id = ? AND unassigned_at IS NULL", project.ID).
		Order("is_primary DESC, assigned_at, id").Find(&pmLinks).Error; err != nil {
		return nil, err
	}
	for _, link := range pmLinks {
		var pm models.ProjectManager
		if err := db.Take(&pm, link.ProjectManagerId).Error; err != nil {
			return nil, err
		}
		bundle.Managers = append(bundle.Managers, ManagerAssignment{ProjectManagerAssignment: link, Manager: pm})
	}

	var crewLinks []models.WorkCrewAssignment
	if err := db.Where("project_id = ? AND unassigned_at IS NULL", project.ID).
		Order("is_primary DESC, assigned_at, id").Find(&crewLinks).Error; err != nil {
		return nil, err
	}
	for _, link := range crewLinks {
		var crew models.WorkCrew
		if err := db.Take(&crew, link.WorkCrewId).Error; err != nil {
			return nil, err
		}
		bundle.Crews = append(bundle.Crews, CrewAssignment{WorkCrewAssignment: link, Crew: crew})
	}
	return bundle, nil
}

// ListProjectEvents returns the audit trail for one customer's project,
// newest first. A customer with no project yet has an empty trail.
func (s *Service) ListProjectEvents(ctx context.Context, qboCustomerId int) ([]models.ProjectEvent, error) {
	db := s.db.WithContext(ctx)
	var project models.Project
	err := db.Where("qbo_customer_id = ?", qboCustomerId).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.ProjectEvent{}, nil
	}
	if err != nil {
		return nil, err
	}
	var events []models.ProjectEvent
	if err := db.Where("project_id = ?", project.ID).
		Order("created_at DESC, id DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// SaveAssignment applies one full desired state atomically: project
// fields are updated with audit events written first, removed links are
// closed (never deleted), new links are added unprimary, and the primary
// flag is cleared before it is set so at most one open link per project
// carries it.
func (s *Service) SaveAssignment(ctx context.Context, input SaveAssignmentInput, actorUserId int) (*AssignmentBundle, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	startDate, endDate, err := parseInputDates(input)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer models.QboCustomer
		if err := tx.Take(&customer, input.QboCustomerId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCustomerNotFound
			}
			return err
		}
		if !customer.IsProject {
			return ErrNotProject
		}
		if err := s.validateReferences(tx, input); err != nil {
			return err
		}

		project, err := findOrCreateProject(tx, customer.ID)
		if err != nil {
			return err
		}
		if err := s.applyProjectFields(tx, project, input, startDate, endDate, actorUserId); err != nil {
			return err
		}
		managerOps := managerLinkOps{tx: tx, projectId: project.ID, actorUserId: actorUserId}
		if err := s.reconcileLinks(managerOps, input.ProjectManagerIds, input.PrimaryManagerId); err != nil {
			return err
		}
		crewOps := crewLinkOps{tx: tx, projectId: project.ID, actorUserId: actorUserId}
		if err := s.reconcileLinks(crewOps, input.WorkCrewIds, input.PrimaryCrewId); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetAssignmentBundle(ctx, input.QboCustomerId)
}

func validateInput(input SaveAssignmentInput) error {
	if input.Status != nil && !models.ProjectStatus(*input.Status).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *input.Status)
	}
	if input.PrimaryManagerId != nil && !contains(input.ProjectManagerIds, *input.PrimaryManagerId) {
		return ErrPrimaryNotInSet
	}
	if input.PrimaryCrewId != nil && !contains(input.WorkCrewIds, *input.PrimaryCrewId) {
		return ErrPrimaryNotInSet
	}
	return nil
}

// parseInputDates maps nil to unchanged and "" to cleared; reported back
// as (value, clear) through a double pointer.
func parseInputDates(input SaveAssignmentInput) (start **time.Time, end **time.Time, err error) {
	start, err = parseDateField(input.StartDate)
	if err != nil {
		return nil, nil, err
	}
	end, err = parseDateField(input.EndDate)
	if err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && *start != nil && *end != nil && (*end).Before(**start) {
		return nil, nil, ErrEndBeforeStart
	}
	return start, end, nil
}

func parseDateField(s *string) (**time.Time, error) {
	if s == nil {
		return nil, nil
	}
	if *s == "" {
		var cleared *time.Time
		return &cleared, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, *s)
	}
	p := &t
	return &p, nil
}

func (s *Service) validateReferences(tx *gorm.DB, input SaveAssignmentInput) error {
	if len(input.ProjectManagerIds) > 0 {
		var count int64
		err := tx.Model(&models.ProjectManager{}).
			Where("id IN ? AND is_active = ?", input.ProjectManagerIds, true).
			Count(&count).Error
		if err != nil {
			return err
		}
		if int(count) != len(uniqueIds(input.ProjectManagerIds)) {
			return ErrUnknownManager
		}
	}
	if len(input.WorkCrewIds) > 0 {
		var count int64
		err := tx.Model(&models.WorkCrew{}).
			Where("id IN ? AND is_active = ?", input.WorkCrewIds, true).
			Count(&count).Error
		if err != nil {
			return err
		}
		if int(count) != len(uniqueIds(input.WorkCrewIds)) {
			return ErrUnknownCrew
		}
	}
	return nil
}

func findOrCreateProject(tx *gorm.DB, qboCustomerId int) (*models.Project, error) {
	var project models.Project
	err := tx.Where("qbo_customer_id = ?", qboCustomerId).Take(&project).Error
	if err == nil {
		return &project, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	project = models.Project{
		QboCustomerId: qboCustomerId,
		Status:        models.ProjectStatusNotStarted,
	}
	if err := tx.Create(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// projectFieldPlan is the resolved outcome of one save against the
// project's current fields: the audit events to write and the column
// updates they describe. An unchanged save plans nothing.
type projectFieldPlan struct {
	events  []models.ProjectEvent
	updates map[string]interface{}
}

func planProjectFieldChanges(project *models.Project, input SaveAssignmentInput, start **time.Time, end **time.Time) (*projectFieldPlan, error) {
	plan := &projectFieldPlan{updates: map[string]interface{}{}}

	newStart := project.StartDate
	if start != nil {
		newStart = *start
	}
	newEnd := project.EndDate
	if end != nil {
		newEnd = *end
	}
	if !sameDate(newStart, project.StartDate) || !sameDate(newEnd, project.EndDate) {
		oldPayload, err := json.Marshal(dateEventPayload{StartDate: formatDate(project.StartDate), EndDate: formatDate(project.EndDate)})
		if err != nil {
			return nil, err
		}
		newPayload, err := json.Marshal(dateEventPayload{StartDate: formatDate(newStart), EndDate: formatDate(newEnd)})
		if err != nil {
			return nil, err
		}
		plan.events = append(plan.events, models.ProjectEvent{
			ProjectId: project.ID,
			EventType: models.ProjectEventDatesChanged,
			OldValue:  oldPayload,
			NewValue:  newPayload,
		})
		plan.updates["start_date"] = newStart
		plan.updates["end_date"] = newEnd
	}

	if input.Status != nil {
		newStatus := models.ProjectStatus(*input.Status)
		if newStatus != project.Status {
			oldPayload, err := json.Marshal(statusEventPayload{Status: project.Status})
			if err != nil {
				return nil, err
			}
			newPayload, err := json.Marshal(statusEventPayload{Status: newStatus})
			if err != nil {
				return nil, err
			}
			plan.events = append(plan.events, models.ProjectEvent{
				ProjectId: project.ID,
				EventType: models.ProjectEventStatusChanged,
				OldValue:  oldPayload,
				NewValue:  newPayload,
			})
			plan.updates["status"] = newStatus
		}
	}
	return plan, nil
}

// applyProjectFields writes the audit events first, then the new field
// values, so a failed update never leaves an event describing a change
// that was not applied outside this transaction.
func (s *Service) applyProjectFields(tx *gorm.DB, project *models.Project, input SaveAssignmentInput, start **time.Time, end **time.Time, actorUserId int) error {
	plan, err := planProjectFieldChanges(project, input, start, end)
	if err != nil {
		return err
	}
	for i := range plan.events {
		plan.events[i].ActorUserId = actorUserId
		if err := tx.Create(&plan.events[i]).Error; err != nil {
			return err
		}
	}
	if len(plan.updates) == 0 {
		return nil
	}
	return tx.Model(project).Updates(plan.updates).Error
}

// assignmentOps abstracts one link table so manager and crew links run
// through the same reconcile pass.
type assignmentOps interface {
	openIds() ([]int, error)
	closeLinks(ids []int, at time.Time) error
	addLink(id int) error
	clearPrimary() error
	markPrimary(id int) error
}

// reconcileLinks converges the open links of one table onto the desired
// set: removed links are closed (never deleted), new ones are added
// unprimary, and the primary flag is cleared before it is set so at most
// one open link carries it even when the primary moves between two
// surviving links.
func (s *Service) reconcileLinks(ops assignmentOps, desired []int, primary *int) error {
	current, err := ops.openIds()
	if err != nil {
		return err
	}
	d := diffAssignments(current, desired)

	if len(d.toRemove) > 0 {
		if err := ops.closeLinks(d.toRemove, s.now()); err != nil {
			return err
		}
	}
	for _, id := range d.toAdd {
		if err := ops.addLink(id); err != nil {
			return err
		}
	}
	if err := ops.clearPrimary(); err != nil {
		return err
	}
	if primary != nil {
		if err := ops.markPrimary(*primary); err != nil {
			return err
		}
	}
	return nil
}

type managerLinkOps struct {
	tx          *gorm.DB
	projectId   int
	actorUserId int
}

func (o managerLinkOps) openIds() ([]int, error) {
	var open []models.ProjectManagerAssignment
	if err := o.tx.Where("project_id = ? AND unassigned_at IS NULL", o.projectId).Find(&open).Error; err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(open))
	for _, link := range open {
		ids = append(ids, link.ProjectManagerId)
	}
	return ids, nil
}

func (o managerLinkOps) closeLinks(ids []int, at time.Time) error {
	return o.tx.Model(&models.ProjectManagerAssignment{}).
		Where("project_id = ? AND unassigned_at IS NULL AND project_manager_id IN ?", o.projectId, ids).
		Updates(map[string]interface{}{
			"unassigned_at":         at,
			"unassigned_by_user_id": o.actorUserId,
			"is_primary":            false,
		}).Error
}

func (o managerLinkOps) addLink(id int) error {
	link := models.ProjectManagerAssignment{
		ProjectId:        o.projectId,
		ProjectManagerId: id,
		AssignedByUserId: o.actorUserId,
	}
	return o.tx.Create(&link).Error
}

func (o managerLinkOps) clearPrimary() error {
	return o.tx.Model(&models.ProjectManagerAssignment{}).
		Where("project_id = ? AND unassigned_at IS NULL", o.projectId).
		Update("is_primary", false).Error
}

func (o managerLinkOps) markPrimary(id int) error {
	return o.tx.Model(&models.ProjectManagerAssignment{}).
		Where("project_id = ? AND unassigned_at IS NULL AND project_manager_id = ?", o.projectId, id).
		Update("is_primary", true).Error
}

type crewLinkOps struct {
	tx          *gorm.DB
	projectId   int
	actorUserId int
}

func (o crewLinkOps) openIds() ([]int, error) {
	var open []models.WorkCrewAssignment
	if err := o.tx.Where("project_id = ? AND unassigned_at IS NULL", o.projectId).Find(&open).Error; err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(open))
	for _, link := range open {
		ids = append(ids, link.WorkCrewId)
	}
	return ids, nil
}

func (o crewLinkOps) closeLinks(ids []int, at time.Time) error {
	return o.tx.Model(&models.WorkCrewAssignment{}).
		Where("project_id = ? AND unassigned_at IS NULL AND work_crew_id IN ?", o.projectId, ids).
		Updates(map[string]interface{}{
			"unassigned_at":         at,
			"unassigned_by_user_id": o.actorUserId,
			"is_primary":            false,
		}).Error
}

func (o crewLinkOps) addLink(id int) error {
	link := models.WorkCrewAssignment{
		ProjectId:        o.projectId,
		WorkCrewId:       id,
		AssignedByUserId: o.actorUserId,
	}
	return o.tx.Create(&link).Error
}

func (o crewLinkOps) clearPrimary() error {
	return o.tx.Model(&models.WorkCrewAssignment{}).
		Where("project_id = ? AND unassigned_at IS NULL", o.projectId).
		Update("is_primary", false).Error
}

func (o crewLinkOps) markPrimary(id int) error {
	return o.tx.Model(&models.WorkCrewAssignment{}).
		Where("project_id = ? AND unassigned_at IS NULL AND work_crew_id = ?", o.projectId, id).
		Update("is_primary", true).Error
}

func sameDate(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func uniqueIds(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/onpointdev/ops_backend/config"
	"bitbucket.org/onpointdev/ops_backend/utils"
)

// WorkCrew supports one level of nesting via ParentId (sub-crews).
type WorkCrew struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Code      *string   `gorm:"size:30;unique" json:"code"`
	ParentId  *int      `gorm:"index" json:"parent_id"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWorkCrew struct {
	Name        *string `json:"name"`
	Code        *string `json:"code"`
	ParentId    *int    `json:"parent_id"`
	ClearParent bool    `json:"clear_parent"`
	IsActive    *bool   `json:"is_active"`
	SortOrder   *int    `json:"sort_order"`
}

var (
	ErrParentCrewNotFound = errors.New("parent crew not found")
	ErrCrewOwnParent      = errors.New("crew cannot be its own parent")
	ErrCrewHasActiveSubs  = errors.New("cannot disable: crew has active sub crews")
)

func CreateWorkCrew(ctx context.Context, input *NewWorkCrew) (*WorkCrew, error) {
	db := config.GetDB()

	name := ""
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
	}
	if name == "" {
		return nil, errors.New("name is required")
	}

	if input.ParentId != nil {
		if err := validateCrewExists(ctx, *input.ParentId); err != nil {
			return nil, err
		}
	}

	isActive := utils.NewTrue()
	if input.IsActive != nil {
		isActive = input.IsActive
	}
	sortOrder := 0
	if input.SortOrder != nil {
		sortOrder = *input.SortOrder
	}

	crew := WorkCrew{
		Name:      name,
		Code:      trimPtr(input.Code),
		ParentId:  input.ParentId,
		IsActive:  isActive,
		SortOrder: sortOrder,
	}
	if err := db.WithContext(ctx).Create(&crew).Error; err != nil {
		return nil, err
	}
	return &crew, nil
}

func UpdateWorkCrew(ctx context.Context, id int, input *NewWorkCrew) (*WorkCrew, error) {
	db := config.GetDB()

	var crew WorkCrew
	if err := db.WithContext(ctx).First(&crew, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errors.New("name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Code != nil {
		updates["code"] = trimPtr(input.Code)
	}
	if input.SortOrder != nil {
		updates["sort_order"] = *input.SortOrder
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.ClearParent {
		updates["parent_id"] = nil
	} else if input.ParentId != nil {
		if *input.ParentId == id {
			return nil, ErrCrewOwnParent
		}
		if err := validateCrewExists(ctx, *input.ParentId); err != nil {
			return nil, err
		}
		updates["parent_id"] = *input.ParentId
	}

	if len(updates) == 0 {
		return &crew, nil
	}
	if err := db.WithContext(ctx).Model(&crew).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &crew, nil
}

// DeactivateWorkCrew refuses to disable a crew that still has active sub-crews.
func DeactivateWorkCrew(ctx context.Context, id int) error {
	db := config.GetDB()

	var count int64
	if err := db.WithContext(ctx).Model(&WorkCrew{}).
		Where("parent_id = ? AND is_active = ?", id, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrCrewHasActiveSubs
	}

	result := db.WithContext(ctx).Model(&WorkCrew{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// GetWorkCrews lists crews grouped with their parents first (sub-crews follow
// their parent), then by sort order.
func GetWorkCrews(ctx context.Context, activeOnly bool) ([]*WorkCrew, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if activeOnly {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}
	var crews []*WorkCrew
	err := dbCtx.Order("COALESCE(parent_id, id), parent_id IS NOT NULL, sort_order, id").
		Find(&crews).Error
	if err != nil {
		return nil, err
	}
	return crews, nil
}

func validateCrewExists(ctx context.Context, id int) error {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&WorkCrew{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return ErrParentCrewNotFound
	}
	return nil
}

package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/onpointdev/ops_backend/config"
	"bitbucket.org/onpointdev/ops_backend/utils"
)

var ErrInvalidEmail = errors.New("invalid email address")

type ProjectManager struct {
	ID        int       `gorm:"primary_key" json:"id"`
	FirstName *string   `gorm:"size:100" json:"first_name"`
	LastName  *string   `gorm:"size:100" json:"last_name"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Phone     *string   `gorm:"size:30" json:"phone"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProjectManager struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	IsActive  *bool   `json:"is_active"`
}

func CreateProjectManager(ctx context.Context, input *NewProjectManager) (*ProjectManager, error) {
	db := config.GetDB()

	if err := validatePmContact(input.Email, input.Phone); err != nil {
		return nil, err
	}

	isActive := utils.NewTrue()
	if input.IsActive != nil {
		isActive = input.IsActive
	}

	pm := ProjectManager{
		FirstName: trimPtr(input.FirstName),
		LastName:  trimPtr(input.LastName),
		Email:     normalizeEmailPtr(input.Email),
		Phone:     trimPtr(input.Phone),
		IsActive:  isActive,
	}
	if err := db.WithContext(ctx).Create(&pm).Error; err != nil {
		return nil, err
	}
	return &pm, nil
}

func UpdateProjectManager(ctx context.Context, id int, input *NewProjectManager) (*ProjectManager, error) {
	db := config.GetDB()

	var pm ProjectManager
	if err := db.WithContext(ctx).First(&pm, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	if err := validatePmContact(input.Email, input.Phone); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.FirstName != nil {
		updates["first_name"] = trimPtr(input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = trimPtr(input.LastName)
	}
	if input.Email != nil {
		updates["email"] = normalizeEmailPtr(input.Email)
	}
	if input.Phone != nil {
		updates["phone"] = trimPtr(input.Phone)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return &pm, nil
	}
	if err := db.WithContext(ctx).Model(&pm).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &pm, nil
}

func DeactivateProjectManager(ctx context.Context, id int) error {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&ProjectManager{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func GetProjectManagers(ctx context.Context, activeOnly bool) ([]*ProjectManager, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if activeOnly {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}
	var pms []*ProjectManager
	if err := dbCtx.Order("last_name, first_name, id").Find(&pms).Error; err != nil {
		return nil, err
	}
	return pms, nil
}

func validatePmContact(email *string, phone *string) error {
	if email != nil && strings.TrimSpace(*email) != "" {
		if !utils.IsValidEmail(strings.TrimSpace(*email)) {
			return ErrInvalidEmail
		}
	}
	if phone != nil && strings.TrimSpace(*phone) != "" {
		if err := utils.ValidatePhoneNumber(strings.TrimSpace(*phone)); err != nil {
			return err
		}
	}
	return nil
}

func normalizeEmailPtr(email *string) *string {
	if email == nil {
		return nil
	}
	v := utils.NormalizeEmail(*email)
	if v == "" {
		return nil
	}
	return &v
}

package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/onpointdev/ops_backend/config"
	"bitbucket.org/onpointdev/ops_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           int        `gorm:"primary_key" json:"id"`
	Uuid         string     `gorm:"size:36;not null;unique" json:"uuid"`
	Email        string     `gorm:"size:100;not null;unique" json:"email"`
	FirstName    *string    `gorm:"size:100" json:"first_name"`
	LastName     *string    `gorm:"size:100" json:"last_name"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	Role         string     `gorm:"size:20;not null;default:user" json:"role"`
	IsActive     *bool      `gorm:"not null" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      string  `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

type UpdateUserInput struct {
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

var ErrInvalidRole = errors.New("invalid role")

func normalizeRole(role string) (string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return UserRoleUser, nil
	}
	if role != UserRoleAdmin && role != UserRoleUser {
		return "", ErrInvalidRole
	}
	return role, nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	db := config.GetDB()

	role, err := normalizeRole(input.Role)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, errors.New("password is required")
	}
	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	isActive := utils.NewTrue()
	if input.IsActive != nil {
		isActive = input.IsActive
	}

	user := User{
		Uuid:         uuid.NewString(),
		Email:        utils.NormalizeEmail(input.Email),
		FirstName:    trimPtr(input.FirstName),
		LastName:     trimPtr(input.LastName),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     isActive,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func UpdateUser(ctx context.Context, id int, input *UpdateUserInput) (*User, error) {
	db := config.GetDB()

	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	updates := map[string]interface{}{}
	if input.Email != nil {
		email := utils.NormalizeEmail(*input.Email)
		if email == "" {
			return nil, errors.New("email cannot be empty")
		}
		updates["email"] = email
	}
	if input.FirstName != nil {
		updates["first_name"] = trimPtr(input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = trimPtr(input.LastName)
	}
	if input.Role != nil {
		role, err := normalizeRole(*input.Role)
		if err != nil {
			return nil, err
		}
		updates["role"] = role
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.Password != nil && strings.TrimSpace(*input.Password) != "" {
		hash, err := utils.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		updates["password_hash"] = string(hash)
	}

	if len(updates) == 0 {
		return &user, nil
	}
	if err := db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// DeactivateUser disables the account instead of deleting the row.
func DeactivateUser(ctx context.Context, id int) error {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func GetUsers(ctx context.Context) ([]*User, error) {
	db := config.GetDB()
	var users []*User
	if err := db.WithContext(ctx).Order("id DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}

func GetUserByEmail(ctx context.Context, email string) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("email = ?", utils.NormalizeEmail(email)).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials and stamps last_login_at. The error is the same
// whether the email is unknown, inactive or the password is wrong, so the
// response never leaks which emails exist.
func Login(ctx context.Context, email string, password string) (*User, string, error) {
	invalid := errors.New("invalid credentials")

	user, err := GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", invalid
	}
	if user.IsActive == nil || !*user.IsActive {
		return nil, "", invalid
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", invalid
	}

	db := config.GetDB()
	now := time.Now()
	if err := db.WithContext(ctx).Model(user).Update("last_login_at", now).Error; err != nil {
		return nil, "", err
	}

	token, err := utils.JwtGenerate(user.ID, user.Role)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// seed-admin creates or reactivates the bootstrap admin user so a fresh
// deployment has someone who can log in and create everyone else.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	SEED_ADMIN_EMAIL=admin@example.com SEED_ADMIN_PASSWORD=... go run ./cmd/seed-admin
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gorm.io/gorm"

	"bitbucket.org/onpointdev/ops_backend/config"
	"bitbucket.org/onpointdev/ops_backend/models"
	"bitbucket.org/onpointdev/ops_backend/utils"
)

func main() {
	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	var existing models.User
	err := db.WithContext(ctx).Where("email = ?", utils.NormalizeEmail(email)).Take(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err := models.CreateUser(ctx, &models.NewUser{
			Email:    email,
			Password: password,
			Role:     models.UserRoleAdmin,
			IsActive: utils.NewTrue(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created admin user %s (id %d)\n", user.Email, user.ID)
		return
	}

	role := models.UserRoleAdmin
	if _, err := models.UpdateUser(ctx, existing.ID, &models.UpdateUserInput{
		Password: &password,
		Role:     &role,
		IsActive: utils.NewTrue(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("updated admin user %s (id %d)\n", existing.Email, existing.ID)
}

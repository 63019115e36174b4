package services

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/landvest/landvest_backend/models"
	"github.com/landvest/landvest_backend/repositories"
	"github.com/landvest/landvest_backend/utils"
)

// AdminDirectory is the slice of the member directory the admin
// bootstrap needs.
type AdminDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// EnsureAdminAccount creates the admin named by ADMIN_EMAIL and
// ADMIN_PASSWORD when no such account exists yet. The admin doubles as
// the tree root: the first member registers with the admin's referral
// code. Without the env vars the bootstrap is skipped, which leaves the
// admin routes unreachable until an operator seeds one.
func EnsureAdminAccount(ctx context.Context, directory AdminDirectory) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin bootstrap")
		return nil
	}

	_, err := directory.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrUserNotFound) {
		return err
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	code, err := utils.GenerateReferralCode()
	if err != nil {
		return err
	}

	admin := &models.User{
		Email:        email,
		Password:     hashed,
		FullName:     "Administrator",
		UserType:     "admin",
		IsActive:     true,
		ReferralCode: code,
	}
	if err := directory.Create(ctx, admin); err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			// Another instance seeded it first.
			return nil
		}
		return err
	}

	log.Printf("Admin account %s created", email)
	return nil
}

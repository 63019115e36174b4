// controllers/auth_controller.go
package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/landvest/landvest_backend/models"
	"github.com/landvest/landvest_backend/repositories"
	"github.com/landvest/landvest_backend/services"
	"github.com/landvest/landvest_backend/utils"
)

// AuthController handles registration and login. Registration is where
// tree placement happens: the new member lands on the first open slot
// below their sponsor, spilling over breadth-first.
type AuthController struct {
	DB        *mongo.Client
	users     *repositories.UserRepository
	placement *services.PlacementService
}

func NewAuthController(db *mongo.Client) *AuthController {
	users := repositories.NewUserRepository(db)
	return &AuthController{
		DB:        db,
		users:     users,
		placement: services.NewPlacementService(users),
	}
}

// Register creates a member. The first member ever registered becomes the
// tree root and needs no sponsor code; everyone after must name a sponsor.
func (ac *AuthController) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := ac.users.FindByEmail(ctx, req.Email); err == nil {
		return c.JSON(http.StatusConflict, models.Response{
			Status:  http.StatusConflict,
			Message: "Email already registered",
		})
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to process password",
		})
	}

	user := models.User{
		Email:    req.Email,
		Password: hashedPassword,
		FullName: req.FullName,
		Phone:    req.Phone,
		UserType: "user",
		IsActive: true,
	}

	if req.SponsorCode == "" {
		count, err := ac.users.CountMembers(ctx)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to check member directory",
			})
		}
		if count > 0 {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Sponsor code is required",
			})
		}
	}

	if err := ac.registerWithPlacement(ctx, &user, req.SponsorCode); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSponsor):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Sponsor code not recognized",
			})
		case errors.Is(err, repositories.ErrEmailTaken):
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "Email already registered",
			})
		default:
			log.Printf("Registration failed for %s: %v", req.Email, err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Registration failed",
			})
		}
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate token",
		})
	}

	user.Password = ""
	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Registration successful",
		Data:    models.LoginResponse{Token: token, User: user},
	})
}

// registerWithPlacement resolves the sponsor, finds an open slot and
// inserts the member. Losing the slot to a concurrent registration
// re-resolves placement; the freed slot search restarts from the sponsor
// so the retry still lands on the closest open slot.
func (ac *AuthController) registerWithPlacement(ctx context.Context, user *models.User, sponsorCode string) error {
	for attempt := 0; attempt < 5; attempt++ {
		if sponsorCode != "" {
			sponsor, err := ac.users.FindByReferralCode(ctx, sponsorCode)
			if err != nil {
				if err == repositories.ErrUserNotFound {
					return services.ErrInvalidSponsor
				}
				return err
			}

			slot, err := ac.placement.FindSlot(ctx, sponsor.ID)
			if err != nil {
				return err
			}
			user.SponsorID = &slot.SponsorID
			user.Position = slot.Position
		}

		code, err := utils.GenerateReferralCode()
		if err != nil {
			return err
		}
		user.ReferralCode = code

		err = ac.users.Create(ctx, user)
		if err == nil {
			return nil
		}
		if errors.Is(err, repositories.ErrEmailTaken) {
			// Lost a race on the email index; retrying cannot help.
			return err
		}
		if !repositories.IsDuplicateKeyError(err) {
			return err
		}
		// Slot or referral code taken in the meantime, try again.
	}
	return services.ErrTreeFull
}

// Login authenticates a member and returns a JWT.
func (ac *AuthController) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := ac.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid email or password",
		})
	}
	if !user.IsActive {
		return c.JSON(http.StatusForbidden, models.Response{
			Status:  http.StatusForbidden,
			Message: "Account is deactivated",
		})
	}
	if !utils.CheckPassword(user.Password, req.Password) {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid email or password",
		})
	}

	token, err := utils.GenerateToken(*user)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate token",
		})
	}

	user.Password = ""
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Login successful",
		Data:    models.LoginResponse{Token: token, User: *user},
	})
}

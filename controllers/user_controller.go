// controllers/user_controller.go
package controllers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/landvest/landvest_backend/models"
	"github.com/landvest/landvest_backend/repositories"
	"github.com/landvest/landvest_backend/utils"
)

// UserController serves member profile and referral endpoints.
type UserController struct {
	DB    *mongo.Client
	users *repositories.UserRepository
}

func NewUserController(db *mongo.Client) *UserController {
	return &UserController{
		DB:    db,
		users: repositories.NewUserRepository(db),
	}
}

func currentUserID(c echo.Context) (primitive.ObjectID, error) {
	userIDStr, _ := c.Get("userId").(string)
	return primitive.ObjectIDFromHex(userIDStr)
}

// GetProfile returns the authenticated member's profile.
func (uc *UserController) GetProfile(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := uc.users.FindByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "User not found",
		})
	}

	user.Password = ""
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Profile retrieved",
		Data:    user,
	})
}

// GetDirectTeam lists the members placed directly under the caller.
func (uc *UserController) GetDirectTeam(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	team, err := uc.users.DirectTeam(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load team",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Direct team retrieved",
		Data:    team,
	})
}

func referralLink(code string) string {
	baseURL := os.Getenv("APP_BASE_URL")
	if baseURL == "" {
		baseURL = "https://app.landvest.in"
	}
	return baseURL + "/register?ref=" + code
}

// GetReferralInfo returns the member's referral code and signup link.
func (uc *UserController) GetReferralInfo(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := uc.users.FindByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "User not found",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Referral info retrieved",
		Data: map[string]string{
			"referralCode": user.ReferralCode,
			"referralLink": referralLink(user.ReferralCode),
		},
	})
}

// GetReferralQR renders the member's referral link as a PNG QR code.
func (uc *UserController) GetReferralQR(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := uc.users.FindByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "User not found",
		})
	}

	qrPNG, err := utils.ReferralQRCode(referralLink(user.ReferralCode))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate QR code",
		})
	}

	return c.Blob(http.StatusOK, "image/png", qrPNG)
}

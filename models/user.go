// models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Leg positions in the binary tree
const (
	PositionLeft  = "left"
	PositionRight = "right"
)

// User model. Members form a strict binary tree: SponsorID points at the
// member they were placed under and Position is the slot they occupy there.
// Both are assigned once at registration and never mutated afterwards.
type User struct {
	ID           primitive.ObjectID  `json:"id,omitempty" bson:"_id,omitempty"`
	Email        string              `json:"email" bson:"email"`
	Password     string              `json:"password,omitempty" bson:"password"`
	FullName     string              `json:"fullName" bson:"fullName"`
	UserType     string              `json:"userType" bson:"userType"` // "user" or "admin"
	IsActive     bool                `json:"isActive" bson:"isActive"`
	Phone        string              `json:"phone,omitempty" bson:"phone,omitempty"`
	SponsorID    *primitive.ObjectID `json:"sponsorId,omitempty" bson:"sponsorId,omitempty"`
	Position     string              `json:"position,omitempty" bson:"position,omitempty"` // "left" or "right", empty for root
	ReferralCode string              `json:"referralCode,omitempty" bson:"referralCode,omitempty"`
	CreatedAt    time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// RegisterRequest is the signup payload. SponsorCode is the referral code of
// the requested sponsor; placement may spill over below them.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	FullName    string `json:"fullName" validate:"required"`
	Phone       string `json:"phone,omitempty"`
	SponsorCode string `json:"sponsorCode,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// PlacementResult is the slot assigned to a new member after spillover.
type PlacementResult struct {
	SponsorID primitive.ObjectID `json:"sponsorId"`
	Position  string             `json:"position"`
}

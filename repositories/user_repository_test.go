package repositories

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func duplicateKeyError(message string) error {
	return mongo.WriteException{
		WriteErrors: mongo.WriteErrors{
			{Code: 11000, Message: message},
		},
	}
}

func TestIsEmailConflictDistinguishesIndexes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			"email index",
			duplicateKeyError(`E11000 duplicate key error collection: landvest.users index: email_1 dup key: { email: "a@b.c" }`),
			true,
		},
		{
			"slot index",
			duplicateKeyError(`E11000 duplicate key error collection: landvest.users index: sponsorId_1_position_1 dup key`),
			false,
		},
		{
			"referral code index",
			duplicateKeyError(`E11000 duplicate key error collection: landvest.users index: referralCode_1 dup key`),
			false,
		},
		{"not a duplicate key", errors.New("connection reset"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		if got := isEmailConflict(tt.err); got != tt.want {
			t.Errorf("%s: isEmailConflict = %v, want %v", tt.name, got, tt.want)
		}
	}
}

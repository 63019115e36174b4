package controllers

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/landvest/landvest_backend/models"
)

func TestRejectBookingUpdateKeepsAuditTrail(t *testing.T) {
	adminID := primitive.NewObjectID()
	now := time.Now()

	update := rejectBookingUpdate(adminID, now)

	if _, ok := update["$unset"]; ok {
		t.Fatal("rejection must not discard the booking details")
	}
	set, ok := update["$set"].(bson.M)
	if !ok {
		t.Fatal("update has no $set document")
	}
	if set["status"] != models.PlotStatusAvailable {
		t.Errorf("plot status = %v, want %s", set["status"], models.PlotStatusAvailable)
	}
	if set["bookingDetails.status"] != models.BookingStatusRejected {
		t.Errorf("booking status = %v, want %s", set["bookingDetails.status"], models.BookingStatusRejected)
	}
	if set["bookingDetails.rejectedBy"] != adminID {
		t.Errorf("rejectedBy = %v, want the acting admin", set["bookingDetails.rejectedBy"])
	}
	if set["bookingDetails.rejectedAt"] != now {
		t.Errorf("rejectedAt = %v, want the rejection time", set["bookingDetails.rejectedAt"])
	}
}

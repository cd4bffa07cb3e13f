package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Request statuses
const (
	RequestPending   = "pending"
	RequestAccepted  = "accepted"
	RequestPickedUp  = "picked_up"
	RequestDelivered = "delivered"
	RequestCancelled = "cancelled"
)

type VolunteerLocation struct {
	Lat       float64   `bson:"lat" json:"lat"`
	Lng       float64   `bson:"lng" json:"lng"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Request is a volunteer's claim on one donation. Each of the timestamp
// pointers is set exactly once, by the transition that owns it.
type Request struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DonationID        primitive.ObjectID `bson:"donation_id" json:"donation_id"`
	VolunteerID       primitive.ObjectID `bson:"volunteer_id" json:"volunteer_id"`
	DonorID           primitive.ObjectID `bson:"donor_id" json:"donor_id"`
	Status            string             `bson:"status" json:"status"` // pending, accepted, picked_up, delivered, cancelled
	RequestTime       time.Time          `bson:"request_time" json:"request_time"`
	AcceptedTime      *time.Time         `bson:"accepted_time,omitempty" json:"accepted_time,omitempty"`
	PickupTime        *time.Time         `bson:"pickup_time,omitempty" json:"pickup_time,omitempty"`
	CompletionTime    *time.Time         `bson:"completion_time,omitempty" json:"completion_time,omitempty"`
	CancelReason      string             `bson:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	VolunteerLocation *VolunteerLocation `bson:"volunteer_location,omitempty" json:"volunteer_location,omitempty"`
	Rating            int                `bson:"rating,omitempty" json:"rating,omitempty"` // 1-5, set once after delivery
	Feedback          string             `bson:"feedback,omitempty" json:"feedback,omitempty"`
	Notes             string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`

	// Enriched fields
	Donation  *Donation      `json:"donation,omitempty" bson:"-"`
	Donor     *PublicProfile `json:"donor,omitempty" bson:"-"`
	Volunteer *PublicProfile `json:"volunteer,omitempty" bson:"-"`
}

// ActiveRequestStatuses are the non-terminal request states. A volunteer may
// hold at most one request in any of these at a time.
var ActiveRequestStatuses = []string{RequestPending, RequestAccepted, RequestPickedUp}

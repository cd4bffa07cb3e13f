package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification types
const (
	NotifyDonationCreated   = "donation_created"
	NotifyDonationAccepted  = "donation_accepted"
	NotifyPickupConfirmed   = "pickup_confirmed"
	NotifyDeliveryCompleted = "delivery_completed"
	NotifyDonationExpired   = "donation_expired"
	NotifySystem            = "system"
)

type Notification struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID `bson:"user_id" json:"user_id"`
	Type              string             `bson:"type" json:"type"`
	Title             string             `bson:"title" json:"title"`
	Message           string             `bson:"message" json:"message"`
	RelatedDonationID primitive.ObjectID `bson:"related_donation_id,omitempty" json:"related_donation_id,omitempty"`
	RelatedRequestID  primitive.ObjectID `bson:"related_request_id,omitempty" json:"related_request_id,omitempty"`
	IsRead            bool               `bson:"is_read" json:"is_read"`
	SmsSent           bool               `bson:"sms_sent" json:"sms_sent"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
}

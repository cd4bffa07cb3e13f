package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Donation statuses
const (
	DonationAvailable = "available"
	DonationAccepted  = "accepted"
	DonationPickedUp  = "picked_up"
	DonationDelivered = "delivered"
	DonationCancelled = "cancelled"
	DonationExpired   = "expired"
)

// FoodTypes are the accepted values for Donation.FoodType.
var FoodTypes = []string{"cooked", "packaged", "fresh_produce", "bakery", "dairy", "other"}

// QuantityUnits are the accepted values for Donation.QuantityUnit.
var QuantityUnits = []string{"meals", "kg", "items", "servings", "boxes"}

type PickupLocation struct {
	Address string  `bson:"address" json:"address"`
	Lat     float64 `bson:"lat" json:"lat"`
	Lng     float64 `bson:"lng" json:"lng"`
}

type Donation struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DonorID             primitive.ObjectID `bson:"donor_id" json:"donor_id"`
	FoodType            string             `bson:"food_type" json:"food_type"` // cooked, packaged, fresh_produce, bakery, dairy, other
	FoodName            string             `bson:"food_name" json:"food_name"`
	Description         string             `bson:"description,omitempty" json:"description,omitempty"`
	Quantity            int                `bson:"quantity" json:"quantity"`
	QuantityUnit        string             `bson:"quantity_unit" json:"quantity_unit"` // meals, kg, items, servings, boxes
	ExpiryTime          time.Time          `bson:"expiry_time" json:"expiry_time"`
	PickupLocation      PickupLocation     `bson:"pickup_location" json:"pickup_location"`
	PickupStartTime     time.Time          `bson:"pickup_start_time" json:"pickup_start_time"`
	PickupEndTime       time.Time          `bson:"pickup_end_time" json:"pickup_end_time"`
	ImageURL            string             `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Status              string             `bson:"status" json:"status"` // available, accepted, picked_up, delivered, cancelled, expired
	SpecialInstructions string             `bson:"special_instructions,omitempty" json:"special_instructions,omitempty"`
	Allergens           []string           `bson:"allergens" json:"allergens"`
	IsVegetarian        bool               `bson:"is_vegetarian" json:"is_vegetarian"`
	IsVegan             bool               `bson:"is_vegan" json:"is_vegan"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`

	// Enriched fields
	Donor *PublicProfile `json:"donor,omitempty" bson:"-"`
}

func ValidFoodType(v string) bool {
	for _, t := range FoodTypes {
		if t == v {
			return true
		}
	}
	return false
}

func ValidQuantityUnit(v string) bool {
	for _, u := range QuantityUnits {
		if u == v {
			return true
		}
	}
	return false
}

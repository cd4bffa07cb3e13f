package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Address with optional coordinates for nearby-donation lookups
type Address struct {
	Street      string       `bson:"street,omitempty" json:"street,omitempty"`
	City        string       `bson:"city,omitempty" json:"city,omitempty"`
	State       string       `bson:"state,omitempty" json:"state,omitempty"`
	ZipCode     string       `bson:"zip_code,omitempty" json:"zip_code,omitempty"`
	Coordinates *Coordinates `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
}

type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name"`
	Email            string             `bson:"email" json:"email"`
	Phone            string             `bson:"phone" json:"phone"`
	PasswordHash     string             `bson:"password_hash" json:"-"`
	Role             string             `bson:"role" json:"role"` // donor, volunteer, admin
	IsVerified       bool               `bson:"is_verified" json:"is_verified"`
	IsBlocked        bool               `bson:"is_blocked" json:"is_blocked"`
	ProfileImage     string             `bson:"profile_image,omitempty" json:"profile_image,omitempty"`
	Address          *Address           `bson:"address,omitempty" json:"address,omitempty"`
	OrganizationName string             `bson:"organization_name,omitempty" json:"organization_name,omitempty"`
	OrganizationType string             `bson:"organization_type,omitempty" json:"organization_type,omitempty"` // restaurant, event, individual, ngo, other
	TotalDonations   int                `bson:"total_donations" json:"total_donations"`
	TotalPickups     int                `bson:"total_pickups" json:"total_pickups"`
	Rating           float64            `bson:"rating" json:"rating"` // running average, 0-5
	RatingCount      int                `bson:"rating_count" json:"rating_count"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// PublicProfile trims a user down to the fields other parties may see.
type PublicProfile struct {
	ID               primitive.ObjectID `json:"id"`
	Name             string             `json:"name"`
	Phone            string             `json:"phone,omitempty"`
	ProfileImage     string             `json:"profile_image,omitempty"`
	OrganizationName string             `json:"organization_name,omitempty"`
	Rating           float64            `json:"rating"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:               u.ID,
		Name:             u.Name,
		Phone:            u.Phone,
		ProfileImage:     u.ProfileImage,
		OrganizationName: u.OrganizationName,
		Rating:           u.Rating,
	}
}

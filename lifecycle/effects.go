package lifecycle

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/karanja/foodbridge-go/models"
)

// Counter field names on the user document.
const (
	CounterTotalDonations = "total_donations"
	CounterTotalPickups   = "total_pickups"
)

// Effect is a consequence of a committed transition: a counter change, a
// rating merge, or a notification. Effects are derived only after the state
// write succeeds and are applied best-effort by an EffectApplier.
type Effect interface {
	isEffect()
}

// CounterDelta increments (or decrements) an aggregate counter on a user.
type CounterDelta struct {
	UserID primitive.ObjectID
	Field  string
	Delta  int
}

// RatingMerge folds one new rating into a volunteer's running average:
// new = (old*count + rating) / (count+1).
type RatingMerge struct {
	UserID primitive.ObjectID
	Rating int
}

// Notify records an in-app notification for a user and optionally pushes an
// SMS to the given phone number.
type Notify struct {
	UserID     primitive.ObjectID
	Type       string
	Title      string
	Message    string
	DonationID primitive.ObjectID
	RequestID  primitive.ObjectID
	SMS        bool
	Phone      string
}

func (CounterDelta) isEffect() {}
func (RatingMerge) isEffect()  {}
func (Notify) isEffect()       {}

// EffectApplier applies effects after a transition commits. Failures must not
// surface to the caller of the transition; implementations log and move on.
type EffectApplier interface {
	Apply(ctx context.Context, effects []Effect)
}

// NopApplier discards all effects. Useful in tests and tools.
type NopApplier struct{}

func (NopApplier) Apply(context.Context, []Effect) {}

func acceptedEffects(d *models.Donation, req *models.Request, volunteer, donor *models.User) []Effect {
	return []Effect{
		Notify{
			UserID:     donor.ID,
			Type:       models.NotifyDonationAccepted,
			Title:      "Donation Accepted!",
			Message:    fmt.Sprintf("%s has accepted your %s donation and will pick it up soon.", volunteer.Name, d.FoodName),
			DonationID: d.ID,
			RequestID:  req.ID,
			SMS:        true,
			Phone:      donor.Phone,
		},
	}
}

func pickedUpEffects(d *models.Donation, req *models.Request, volunteer, donor *models.User) []Effect {
	return []Effect{
		Notify{
			UserID:     donor.ID,
			Type:       models.NotifyPickupConfirmed,
			Title:      "Pickup Confirmed",
			Message:    fmt.Sprintf("%s has picked up the %s donation. Thank you for your contribution!", volunteer.Name, d.FoodName),
			DonationID: d.ID,
			RequestID:  req.ID,
			SMS:        true,
			Phone:      donor.Phone,
		},
	}
}

func deliveredEffects(d *models.Donation, req *models.Request, volunteer, donor *models.User) []Effect {
	return []Effect{
		Notify{
			UserID:     donor.ID,
			Type:       models.NotifyDeliveryCompleted,
			Title:      "Delivery Completed",
			Message:    fmt.Sprintf("The %s donation has been successfully delivered by %s.", d.FoodName, volunteer.Name),
			DonationID: d.ID,
			RequestID:  req.ID,
			SMS:        true,
			Phone:      donor.Phone,
		},
		Notify{
			UserID:     volunteer.ID,
			Type:       models.NotifyDeliveryCompleted,
			Title:      "Delivery Completed",
			Message:    fmt.Sprintf("You have successfully delivered the %s donation. Thank you!", d.FoodName),
			DonationID: d.ID,
			RequestID:  req.ID,
		},
		CounterDelta{UserID: volunteer.ID, Field: CounterTotalPickups, Delta: 1},
	}
}

// DonationCreatedEffects is the effect list for a freshly listed donation.
// Donation create/delete themselves live outside the engine, but their
// counter math goes through the same applier.
func DonationCreatedEffects(donorID primitive.ObjectID) []Effect {
	return []Effect{CounterDelta{UserID: donorID, Field: CounterTotalDonations, Delta: 1}}
}

// DonationDeletedEffects reverses the listing counter when a donation is
// removed.
func DonationDeletedEffects(donorID primitive.ObjectID) []Effect {
	return []Effect{CounterDelta{UserID: donorID, Field: CounterTotalDonations, Delta: -1}}
}

func expiredEffects(d *models.Donation) []Effect {
	return []Effect{
		Notify{
			UserID:     d.DonorID,
			Type:       models.NotifyDonationExpired,
			Title:      "Donation Expired",
			Message:    fmt.Sprintf("Your %s donation expired before it was picked up.", d.FoodName),
			DonationID: d.ID,
		},
	}
}

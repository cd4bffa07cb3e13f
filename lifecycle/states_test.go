package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	models "github.com/karanja/foodbridge-go/models"
)

func TestCanAdvanceRequest(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{models.RequestAccepted, models.RequestPickedUp, true},
		{models.RequestAccepted, models.RequestCancelled, true},
		{models.RequestAccepted, models.RequestDelivered, false},
		{models.RequestPickedUp, models.RequestDelivered, true},
		{models.RequestPickedUp, models.RequestCancelled, true},
		{models.RequestPickedUp, models.RequestAccepted, false},
		{models.RequestDelivered, models.RequestCancelled, false},
		{models.RequestDelivered, models.RequestPickedUp, false},
		{models.RequestCancelled, models.RequestAccepted, false},
		{models.RequestPending, models.RequestPickedUp, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanAdvanceRequest(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestDonationStatusFollowsRequest(t *testing.T) {
	assert.Equal(t, models.DonationAccepted, donationStatusFor(models.RequestAccepted))
	assert.Equal(t, models.DonationPickedUp, donationStatusFor(models.RequestPickedUp))
	assert.Equal(t, models.DonationDelivered, donationStatusFor(models.RequestDelivered))
	// Cancellation reopens the listing rather than closing it.
	assert.Equal(t, models.DonationAvailable, donationStatusFor(models.RequestCancelled))
}

func TestInvalidTransitionErrorReportsBothStatuses(t *testing.T) {
	err := &InvalidTransitionError{Entity: "request", Attempted: "delivered", Current: "accepted"}
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "delivered")
	assert.Contains(t, err.Error(), "accepted")
}

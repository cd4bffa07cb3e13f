package lifecycle

import (
	models "github.com/karanja/foodbridge-go/models"
)

// requestTransitions lists the legal next statuses for an active request. A
// volunteer drives these; pending never occurs here because accept creates
// requests directly in accepted.
var requestTransitions = map[string][]string{
	models.RequestAccepted: {models.RequestPickedUp, models.RequestCancelled},
	models.RequestPickedUp: {models.RequestDelivered, models.RequestCancelled},
}

// CanAdvanceRequest reports whether a request may move from one status to
// another.
func CanAdvanceRequest(from, to string) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// donationStatusFor maps a request status onto the donation status that must
// accompany it. Cancellation reopens the donation for other volunteers.
func donationStatusFor(requestStatus string) string {
	switch requestStatus {
	case models.RequestAccepted:
		return models.DonationAccepted
	case models.RequestPickedUp:
		return models.DonationPickedUp
	case models.RequestDelivered:
		return models.DonationDelivered
	case models.RequestCancelled:
		return models.DonationAvailable
	}
	return ""
}

package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/karanja/foodbridge-go/models"
)

// DonationStore is the donation persistence contract the engine requires.
// UpdateStatus must be a conditional write: it succeeds only when the stored
// status still equals expected, and returns ErrConflict otherwise. That CAS is
// what guarantees at-most-one acceptance under concurrent volunteers.
type DonationStore interface {
	Get(ctx context.Context, id primitive.ObjectID) (*models.Donation, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, expected, next string) error
}

// RequestPatch carries the fields a status transition may set alongside the
// new status. Timestamps are write-once; a patch never includes one that is
// already set on the document.
type RequestPatch struct {
	PickupTime        *time.Time
	CompletionTime    *time.Time
	CancelReason      string
	VolunteerLocation *models.VolunteerLocation
}

// RequestStore is the request persistence contract. UpdateStatus follows the
// same CAS discipline as DonationStore. SetRating must only succeed while the
// stored rating is unset.
type RequestStore interface {
	Get(ctx context.Context, id primitive.ObjectID) (*models.Request, error)
	Insert(ctx context.Context, req *models.Request) error
	FindActiveByVolunteer(ctx context.Context, volunteerID primitive.ObjectID) (*models.Request, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, expected, next string, patch RequestPatch) error
	SetRating(ctx context.Context, id primitive.ObjectID, rating int, feedback string) error
}

// UserStore gives the engine read access to user records for authorization
// context and notification text. Counter and rating writes never go through
// here; they are emitted as effects.
type UserStore interface {
	Get(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Actor identifies who is attempting a transition.
type Actor struct {
	ID   primitive.ObjectID
	Role string // donor, volunteer, admin
}

func (a Actor) isAdmin() bool { return a.Role == "admin" }

// Engine validates and applies donation/request lifecycle transitions. State
// writes go through the CAS store contracts; side effects are derived after a
// successful commit and handed to the applier, whose failures never surface.
type Engine struct {
	donations DonationStore
	requests  RequestStore
	users     UserStore
	effects   EffectApplier
	log       zerolog.Logger
	now       func() time.Time
}

func New(donations DonationStore, requests RequestStore, users UserStore, effects EffectApplier, log zerolog.Logger) *Engine {
	return &Engine{
		donations: donations,
		requests:  requests,
		users:     users,
		effects:   effects,
		log:       log,
		now:       time.Now,
	}
}

// Accept claims an available donation for a volunteer. The donation is the
// gating resource: its available→accepted CAS closes the claim window before
// the request document exists, so two racing volunteers cannot both win.
func (e *Engine) Accept(ctx context.Context, actor Actor, donationID primitive.ObjectID, notes string) (*models.Request, error) {
	if actor.Role != "volunteer" && !actor.isAdmin() {
		return nil, fmt.Errorf("%w: volunteer role required", ErrNotAuthorized)
	}

	donation, err := e.donations.Get(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation.Status != models.DonationAvailable {
		return nil, &InvalidTransitionError{Entity: "donation", Attempted: models.DonationAccepted, Current: donation.Status}
	}

	active, err := e.requests.FindActiveByVolunteer(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: you already have an active request, complete it before accepting another", ErrPreconditionFailed)
	}

	if err := e.donations.UpdateStatus(ctx, donationID, models.DonationAvailable, models.DonationAccepted); err != nil {
		return nil, err
	}

	now := e.now()
	req := &models.Request{
		ID:           primitive.NewObjectID(),
		DonationID:   donationID,
		VolunteerID:  actor.ID,
		DonorID:      donation.DonorID,
		Status:       models.RequestAccepted,
		RequestTime:  now,
		AcceptedTime: &now,
		Notes:        notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.requests.Insert(ctx, req); err != nil {
		// Compensate: reopen the donation so the failed claim does not strand it.
		if rbErr := e.donations.UpdateStatus(ctx, donationID, models.DonationAccepted, models.DonationAvailable); rbErr != nil {
			e.log.Error().Err(rbErr).Str("donation_id", donationID.Hex()).Msg("failed to reopen donation after request insert failure")
		}
		return nil, err
	}

	e.applyWithUsers(ctx, donation, req, acceptedEffects)
	return req, nil
}

// Advance moves a request (and its donation in lockstep) to picked_up,
// delivered, or cancelled.
func (e *Engine) Advance(ctx context.Context, actor Actor, requestID primitive.ObjectID, next, cancelReason string, loc *models.VolunteerLocation) (*models.Request, error) {
	if next != models.RequestPickedUp && next != models.RequestDelivered && next != models.RequestCancelled {
		return nil, fmt.Errorf("%w: status must be one of picked_up, delivered, cancelled", ErrValidation)
	}
	if actor.Role != "volunteer" && !actor.isAdmin() {
		return nil, fmt.Errorf("%w: volunteer role required", ErrNotAuthorized)
	}

	req, err := e.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.VolunteerID != actor.ID && !actor.isAdmin() {
		return nil, fmt.Errorf("%w: not your request", ErrNotAuthorized)
	}
	if !CanAdvanceRequest(req.Status, next) {
		return nil, &InvalidTransitionError{Entity: "request", Attempted: next, Current: req.Status}
	}

	now := e.now()
	patch := RequestPatch{VolunteerLocation: loc}
	switch next {
	case models.RequestPickedUp:
		patch.PickupTime = &now
	case models.RequestDelivered:
		patch.CompletionTime = &now
	case models.RequestCancelled:
		if cancelReason == "" {
			cancelReason = "Cancelled by volunteer"
		}
		patch.CancelReason = cancelReason
	}

	prev := req.Status
	if err := e.requests.UpdateStatus(ctx, requestID, prev, next, patch); err != nil {
		return nil, err
	}

	// The donation mirrors the request: its expected status is the request's
	// previous one. A miss here means an out-of-band donation change; the
	// request transition stands and the mismatch is logged for audit.
	if err := e.donations.UpdateStatus(ctx, req.DonationID, donationStatusFor(prev), donationStatusFor(next)); err != nil {
		e.log.Warn().Err(err).
			Str("donation_id", req.DonationID.Hex()).
			Str("request_id", requestID.Hex()).
			Msg("donation status did not follow request transition")
	}

	req.Status = next
	req.PickupTime = firstSet(req.PickupTime, patch.PickupTime)
	req.CompletionTime = firstSet(req.CompletionTime, patch.CompletionTime)
	if patch.CancelReason != "" {
		req.CancelReason = patch.CancelReason
	}
	if loc != nil {
		req.VolunteerLocation = loc
	}
	req.UpdatedAt = now

	switch next {
	case models.RequestPickedUp:
		e.applyWithUsers(ctx, nil, req, pickedUpEffects)
	case models.RequestDelivered:
		e.applyWithUsers(ctx, nil, req, deliveredEffects)
	}
	return req, nil
}

// Rate records the donor's one-time rating of a delivered request and emits
// the rating merge for the volunteer's running average.
func (e *Engine) Rate(ctx context.Context, actor Actor, requestID primitive.ObjectID, rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	if actor.Role != "donor" {
		return fmt.Errorf("%w: donor role required", ErrNotAuthorized)
	}

	req, err := e.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.DonorID != actor.ID {
		return fmt.Errorf("%w: not your request", ErrNotAuthorized)
	}
	if req.Status != models.RequestDelivered {
		return &InvalidTransitionError{Entity: "request", Attempted: "rate", Current: req.Status}
	}
	if req.Rating != 0 {
		return fmt.Errorf("%w: already rated", ErrPreconditionFailed)
	}

	if err := e.requests.SetRating(ctx, requestID, rating, feedback); err != nil {
		return err
	}

	e.effects.Apply(ctx, []Effect{RatingMerge{UserID: req.VolunteerID, Rating: rating}})
	return nil
}

// Expire moves an available donation past its expiry time to expired. Callers
// (the sweep job) pick the candidates; the CAS here keeps a concurrent accept
// from being clobbered.
func (e *Engine) Expire(ctx context.Context, donationID primitive.ObjectID) error {
	donation, err := e.donations.Get(ctx, donationID)
	if err != nil {
		return err
	}
	if donation.Status != models.DonationAvailable {
		return &InvalidTransitionError{Entity: "donation", Attempted: models.DonationExpired, Current: donation.Status}
	}
	if err := e.donations.UpdateStatus(ctx, donationID, models.DonationAvailable, models.DonationExpired); err != nil {
		return err
	}
	e.effects.Apply(ctx, expiredEffects(donation))
	return nil
}

// applyWithUsers loads donor and volunteer, derives the effect list for a
// committed transition, and hands it to the applier. Any lookup failure only
// costs the effects, never the transition.
func (e *Engine) applyWithUsers(ctx context.Context, donation *models.Donation, req *models.Request, derive func(*models.Donation, *models.Request, *models.User, *models.User) []Effect) {
	var err error
	if donation == nil {
		if donation, err = e.donations.Get(ctx, req.DonationID); err != nil {
			e.log.Error().Err(err).Str("request_id", req.ID.Hex()).Msg("skipping effects: donation lookup failed")
			return
		}
	}
	volunteer, err := e.users.Get(ctx, req.VolunteerID)
	if err != nil {
		e.log.Error().Err(err).Str("request_id", req.ID.Hex()).Msg("skipping effects: volunteer lookup failed")
		return
	}
	donor, err := e.users.Get(ctx, req.DonorID)
	if err != nil {
		e.log.Error().Err(err).Str("request_id", req.ID.Hex()).Msg("skipping effects: donor lookup failed")
		return
	}
	e.effects.Apply(ctx, derive(donation, req, volunteer, donor))
}

func firstSet(existing, incoming *time.Time) *time.Time {
	if existing != nil {
		return existing
	}
	return incoming
}

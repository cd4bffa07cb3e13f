package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/karanja/foodbridge-go/models"
)

// In-memory stores honouring the same CAS contract as the Mongo ones: status
// writes are conditional on the expected prior value under a lock.

type fakeDonations struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]*models.Donation
}

func newFakeDonations() *fakeDonations {
	return &fakeDonations{docs: map[primitive.ObjectID]*models.Donation{}}
}

func (f *fakeDonations) Get(_ context.Context, id primitive.ObjectID) (*models.Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: donation %s", ErrNotFound, id.Hex())
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDonations) UpdateStatus(_ context.Context, id primitive.ObjectID, expected, next string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("%w: donation %s", ErrNotFound, id.Hex())
	}
	if doc.Status != expected {
		return fmt.Errorf("%w: donation %s is no longer %s", ErrConflict, id.Hex(), expected)
	}
	doc.Status = next
	doc.UpdatedAt = time.Now()
	return nil
}

type fakeRequests struct {
	mu        sync.Mutex
	docs      map[primitive.ObjectID]*models.Request
	insertErr error
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{docs: map[primitive.ObjectID]*models.Request{}}
}

func (f *fakeRequests) Get(_ context.Context, id primitive.ObjectID) (*models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %s", ErrNotFound, id.Hex())
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeRequests) Insert(_ context.Context, req *models.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *req
	f.docs[req.ID] = &cp
	return nil
}

func (f *fakeRequests) FindActiveByVolunteer(_ context.Context, volunteerID primitive.ObjectID) (*models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.VolunteerID != volunteerID {
			continue
		}
		for _, s := range models.ActiveRequestStatuses {
			if doc.Status == s {
				cp := *doc
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeRequests) UpdateStatus(_ context.Context, id primitive.ObjectID, expected, next string, patch RequestPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("%w: request %s", ErrNotFound, id.Hex())
	}
	if doc.Status != expected {
		return fmt.Errorf("%w: request %s is no longer %s", ErrConflict, id.Hex(), expected)
	}
	doc.Status = next
	if patch.PickupTime != nil && doc.PickupTime == nil {
		doc.PickupTime = patch.PickupTime
	}
	if patch.CompletionTime != nil && doc.CompletionTime == nil {
		doc.CompletionTime = patch.CompletionTime
	}
	if patch.CancelReason != "" {
		doc.CancelReason = patch.CancelReason
	}
	if patch.VolunteerLocation != nil {
		doc.VolunteerLocation = patch.VolunteerLocation
	}
	doc.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRequests) SetRating(_ context.Context, id primitive.ObjectID, rating int, feedback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("%w: request %s", ErrNotFound, id.Hex())
	}
	if doc.Status != models.RequestDelivered || doc.Rating != 0 {
		return fmt.Errorf("%w: request %s already rated or not delivered", ErrPreconditionFailed, id.Hex())
	}
	doc.Rating = rating
	doc.Feedback = feedback
	return nil
}

type fakeUsers struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{docs: map[primitive.ObjectID]*models.User{}}
}

func (f *fakeUsers) Get(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id.Hex())
	}
	cp := *doc
	return &cp, nil
}

// memApplier applies counter and rating effects to the fake user set and
// records notifications, mirroring the Mongo applier's behavior.
type memApplier struct {
	mu            sync.Mutex
	users         *fakeUsers
	notifications []Notify
}

func (a *memApplier) Apply(_ context.Context, effects []Effect) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, effect := range effects {
		switch ef := effect.(type) {
		case CounterDelta:
			a.users.mu.Lock()
			if u, ok := a.users.docs[ef.UserID]; ok {
				switch ef.Field {
				case CounterTotalDonations:
					u.TotalDonations += ef.Delta
				case CounterTotalPickups:
					u.TotalPickups += ef.Delta
				}
			}
			a.users.mu.Unlock()
		case RatingMerge:
			a.users.mu.Lock()
			if u, ok := a.users.docs[ef.UserID]; ok {
				newCount := u.RatingCount + 1
				u.Rating = (u.Rating*float64(u.RatingCount) + float64(ef.Rating)) / float64(newCount)
				u.RatingCount = newCount
			}
			a.users.mu.Unlock()
		case Notify:
			a.notifications = append(a.notifications, ef)
		}
	}
}

func (a *memApplier) notificationsOf(userID primitive.ObjectID, kind string) []Notify {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Notify
	for _, n := range a.notifications {
		if n.UserID == userID && n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	engine    *Engine
	donations *fakeDonations
	requests  *fakeRequests
	users     *fakeUsers
	applier   *memApplier
	donor     *models.User
	volunteer *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	donations := newFakeDonations()
	requests := newFakeRequests()
	users := newFakeUsers()
	applier := &memApplier{users: users}

	donor := &models.User{ID: primitive.NewObjectID(), Name: "Mario's Kitchen", Phone: "+15550001", Role: "donor"}
	volunteer := &models.User{ID: primitive.NewObjectID(), Name: "Asha", Phone: "+15550002", Role: "volunteer"}
	users.docs[donor.ID] = donor
	users.docs[volunteer.ID] = volunteer

	return &fixture{
		engine:    New(donations, requests, users, applier, zerolog.Nop()),
		donations: donations,
		requests:  requests,
		users:     users,
		applier:   applier,
		donor:     donor,
		volunteer: volunteer,
	}
}

func (f *fixture) addVolunteer(name string) *models.User {
	u := &models.User{ID: primitive.NewObjectID(), Name: name, Role: "volunteer"}
	f.users.mu.Lock()
	f.users.docs[u.ID] = u
	f.users.mu.Unlock()
	return u
}

func (f *fixture) addDonation(status string) *models.Donation {
	now := time.Now()
	d := &models.Donation{
		ID:              primitive.NewObjectID(),
		DonorID:         f.donor.ID,
		FoodType:        "cooked",
		FoodName:        "Vegetable Biryani",
		Quantity:        10,
		QuantityUnit:    "meals",
		ExpiryTime:      now.Add(6 * time.Hour),
		PickupStartTime: now,
		PickupEndTime:   now.Add(3 * time.Hour),
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.donations.mu.Lock()
	f.donations.docs[d.ID] = d
	f.donations.mu.Unlock()
	return d
}

func actorOf(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

func TestAcceptClaimsAvailableDonation(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)
	ctx := context.Background()

	req, err := f.engine.Accept(ctx, actorOf(f.volunteer), donation.ID, "will bring cooler bags")
	require.NoError(t, err)

	assert.Equal(t, models.RequestAccepted, req.Status)
	assert.Equal(t, f.volunteer.ID, req.VolunteerID)
	assert.Equal(t, f.donor.ID, req.DonorID)
	require.NotNil(t, req.AcceptedTime)
	assert.Equal(t, "will bring cooler bags", req.Notes)

	stored, err := f.donations.Get(ctx, donation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationAccepted, stored.Status)

	notifs := f.applier.notificationsOf(f.donor.ID, models.NotifyDonationAccepted)
	require.Len(t, notifs, 1)
	assert.True(t, notifs[0].SMS)
	assert.Equal(t, f.donor.Phone, notifs[0].Phone)
	assert.Contains(t, notifs[0].Message, "Vegetable Biryani")
	assert.Contains(t, notifs[0].Message, "Asha")
}

func TestAcceptRejectsNonVolunteer(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)

	_, err := f.engine.Accept(context.Background(), actorOf(f.donor), donation.ID, "")
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAcceptRejectsNonAvailableDonation(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAccepted)

	_, err := f.engine.Accept(context.Background(), actorOf(f.volunteer), donation.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.DonationAccepted, transition.Current)
}

func TestAcceptEnforcesActiveRequestLimit(t *testing.T) {
	f := newFixture(t)
	first := f.addDonation(models.DonationAvailable)
	second := f.addDonation(models.DonationAvailable)
	ctx := context.Background()

	_, err := f.engine.Accept(ctx, actorOf(f.volunteer), first.ID, "")
	require.NoError(t, err)

	_, err = f.engine.Accept(ctx, actorOf(f.volunteer), second.ID, "")
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	// The second donation is untouched.
	stored, err := f.donations.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationAvailable, stored.Status)
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)
	ctx := context.Background()

	const n = 8
	volunteers := make([]*models.User, n)
	for i := range volunteers {
		volunteers[i] = f.addVolunteer(fmt.Sprintf("volunteer-%d", i))
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Accept(ctx, actorOf(volunteers[i]), donation.ID, "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errorIsAny(err, ErrConflict, ErrInvalidTransition),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	accepted := 0
	f.requests.mu.Lock()
	for _, req := range f.requests.docs {
		if req.DonationID == donation.ID && req.Status == models.RequestAccepted {
			accepted++
		}
	}
	f.requests.mu.Unlock()
	assert.Equal(t, 1, accepted)
}

func errorIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func TestAcceptCompensatesWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)
	f.requests.insertErr = fmt.Errorf("write concern failed")
	ctx := context.Background()

	_, err := f.engine.Accept(ctx, actorOf(f.volunteer), donation.ID, "")
	require.Error(t, err)

	stored, err := f.donations.Get(ctx, donation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationAvailable, stored.Status)
}

func TestAdvanceThroughDelivery(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)
	ctx := context.Background()

	req, err := f.engine.Accept(ctx, actorOf(f.volunteer), donation.ID, "")
	require.NoError(t, err)

	req, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestPickedUp, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPickedUp, req.Status)
	require.NotNil(t, req.PickupTime)

	stored, _ := f.donations.Get(ctx, donation.ID)
	assert.Equal(t, models.DonationPickedUp, stored.Status)
	require.Len(t, f.applier.notificationsOf(f.donor.ID, models.NotifyPickupConfirmed), 1)

	req, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestDelivered, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.RequestDelivered, req.Status)
	require.NotNil(t, req.CompletionTime)

	stored, _ = f.donations.Get(ctx, donation.ID)
	assert.Equal(t, models.DonationDelivered, stored.Status)

	// Both parties notified, volunteer's pickup counter bumped.
	require.Len(t, f.applier.notificationsOf(f.donor.ID, models.NotifyDeliveryCompleted), 1)
	require.Len(t, f.applier.notificationsOf(f.volunteer.ID, models.NotifyDeliveryCompleted), 1)
	vol, _ := f.users.Get(ctx, f.volunteer.ID)
	assert.Equal(t, 1, vol.TotalPickups)

	// Timestamps are monotonic.
	assert.False(t, req.PickupTime.Before(*req.AcceptedTime))
	assert.False(t, req.CompletionTime.Before(*req.PickupTime))
}

func TestAdvanceRejectsIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)
	ctx := context.Background()

	req, err := f.engine.Accept(ctx, actorOf(f.volunteer), donation.ID, "")
	require.NoError(t, err)

	// accepted -> delivered skips pickup
	_, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestDelivered, "", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// bogus target status
	_, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, "accepted", "", nil)
	assert.ErrorIs(t, err, ErrValidation)

	// someone else's request
	other := f.addVolunteer("other")
	_, err = f.engine.Advance(ctx, actorOf(other), req.ID, models.RequestPickedUp, "", nil)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// admin may act on any request
	admin := &models.User{ID: primitive.NewObjectID(), Name: "root", Role: "admin"}
	f.users.docs[admin.ID] = admin
	_, err = f.engine.Advance(ctx, actorOf(admin), req.ID, models.RequestPickedUp, "", nil)
	assert.NoError(t, err)
}

func TestCancelReopensDonation(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)
	ctx := context.Background()

	req, err := f.engine.Accept(ctx, actorOf(f.volunteer), donation.ID, "")
	require.NoError(t, err)

	req, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestCancelled, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, req.Status)
	assert.Equal(t, "Cancelled by volunteer", req.CancelReason)

	stored, _ := f.donations.Get(ctx, donation.ID)
	assert.Equal(t, models.DonationAvailable, stored.Status)

	// A different volunteer can now claim it; the cancelled request remains
	// as the audit trail.
	second := f.addVolunteer("second")
	req2, err := f.engine.Accept(ctx, actorOf(second), donation.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, req2.ID)

	history, err := f.requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, history.Status)
}

func TestCancelFromPickedUp(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)
	ctx := context.Background()

	req, err := f.engine.Accept(ctx, actorOf(f.volunteer), donation.ID, "")
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestPickedUp, "", nil)
	require.NoError(t, err)

	req, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestCancelled, "food spoiled in transit", nil)
	require.NoError(t, err)
	assert.Equal(t, "food spoiled in transit", req.CancelReason)

	stored, _ := f.donations.Get(ctx, donation.ID)
	assert.Equal(t, models.DonationAvailable, stored.Status)
}

func TestRateMergesVolunteerAverage(t *testing.T) {
	f := newFixture(t)
	f.volunteer.Rating = 4.0
	f.volunteer.RatingCount = 3
	donation := f.addDonation(models.DonationAvailable)
	ctx := context.Background()

	req, err := f.engine.Accept(ctx, actorOf(f.volunteer), donation.ID, "")
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestPickedUp, "", nil)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestDelivered, "", nil)
	require.NoError(t, err)

	require.NoError(t, f.engine.Rate(ctx, actorOf(f.donor), req.ID, 2, "late pickup"))

	vol, _ := f.users.Get(ctx, f.volunteer.ID)
	assert.InDelta(t, (4.0*3+2)/4, vol.Rating, 1e-9)
	assert.Equal(t, 4, vol.RatingCount)

	// Second attempt is rejected and the average is untouched.
	err = f.engine.Rate(ctx, actorOf(f.donor), req.ID, 5, "")
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	vol, _ = f.users.Get(ctx, f.volunteer.ID)
	assert.Equal(t, 4, vol.RatingCount)
}

func TestRateGuards(t *testing.T) {
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)
	ctx := context.Background()

	req, err := f.engine.Accept(ctx, actorOf(f.volunteer), donation.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.Rate(ctx, actorOf(f.donor), req.ID, 0, ""), ErrValidation)
	assert.ErrorIs(t, f.engine.Rate(ctx, actorOf(f.donor), req.ID, 6, ""), ErrValidation)
	assert.ErrorIs(t, f.engine.Rate(ctx, actorOf(f.volunteer), req.ID, 4, ""), ErrNotAuthorized)

	// Not yet delivered.
	assert.ErrorIs(t, f.engine.Rate(ctx, actorOf(f.donor), req.ID, 4, ""), ErrInvalidTransition)

	// A different donor cannot rate either.
	stranger := &models.User{ID: primitive.NewObjectID(), Name: "stranger", Role: "donor"}
	f.users.docs[stranger.ID] = stranger
	assert.ErrorIs(t, f.engine.Rate(ctx, actorOf(stranger), req.ID, 4, ""), ErrNotAuthorized)
}

func TestExpireOnlyAvailableDonations(t *testing.T) {
	f := newFixture(t)
	available := f.addDonation(models.DonationAvailable)
	accepted := f.addDonation(models.DonationAccepted)
	ctx := context.Background()

	require.NoError(t, f.engine.Expire(ctx, available.ID))
	stored, _ := f.donations.Get(ctx, available.ID)
	assert.Equal(t, models.DonationExpired, stored.Status)
	require.Len(t, f.applier.notificationsOf(f.donor.ID, models.NotifyDonationExpired), 1)

	err := f.engine.Expire(ctx, accepted.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFullScenario(t *testing.T) {
	// Donation posted, A claims it, B loses, A carries it through delivery,
	// donor rates once and only once.
	f := newFixture(t)
	donation := f.addDonation(models.DonationAvailable)
	volunteerB := f.addVolunteer("B")
	ctx := context.Background()

	req, err := f.engine.Accept(ctx, actorOf(f.volunteer), donation.ID, "")
	require.NoError(t, err)

	_, err = f.engine.Accept(ctx, actorOf(volunteerB), donation.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	req, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestPickedUp, "", nil)
	require.NoError(t, err)
	require.NotNil(t, req.PickupTime)

	req, err = f.engine.Advance(ctx, actorOf(f.volunteer), req.ID, models.RequestDelivered, "", nil)
	require.NoError(t, err)
	require.NotNil(t, req.CompletionTime)

	vol, _ := f.users.Get(ctx, f.volunteer.ID)
	assert.Equal(t, 1, vol.TotalPickups)

	require.NoError(t, f.engine.Rate(ctx, actorOf(f.donor), req.ID, 4, "great"))
	vol, _ = f.users.Get(ctx, f.volunteer.ID)
	assert.Equal(t, 4.0, vol.Rating)
	assert.Equal(t, 1, vol.RatingCount)

	assert.ErrorIs(t, f.engine.Rate(ctx, actorOf(f.donor), req.ID, 5, ""), ErrPreconditionFailed)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/karanja/foodbridge-go/lifecycle"
	models "github.com/karanja/foodbridge-go/models"
)

// Collection names
const (
	ColUsers         = "users"
	ColDonations     = "donations"
	ColRequests      = "requests"
	ColNotifications = "notifications"
)

// Donations implements lifecycle.DonationStore over MongoDB. The status
// update is conditional on the expected prior status; a matched count of zero
// distinguishes a lost race from a missing document.
type Donations struct {
	col *mongo.Collection
}

func NewDonations(db *mongo.Database) *Donations {
	return &Donations{col: db.Collection(ColDonations)}
}

func (s *Donations) Get(ctx context.Context, id primitive.ObjectID) (*models.Donation, error) {
	var donation models.Donation
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&donation)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: donation %s", lifecycle.ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &donation, nil
}

func (s *Donations) UpdateStatus(ctx context.Context, id primitive.ObjectID, expected, next string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": expected},
		bson.M{"$set": bson.M{"status": next, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Either the document vanished or someone else transitioned first.
		if err := s.col.FindOne(ctx, bson.M{"_id": id}).Err(); errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: donation %s", lifecycle.ErrNotFound, id.Hex())
		}
		return fmt.Errorf("%w: donation %s is no longer %s", lifecycle.ErrConflict, id.Hex(), expected)
	}
	return nil
}

// FindExpiredIDs returns available donations whose expiry time has passed.
// Used by the expiry sweep; the actual transition still goes through the
// engine's CAS path.
func (s *Donations) FindExpiredIDs(ctx context.Context, now time.Time, limit int64) ([]primitive.ObjectID, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetLimit(limit)
	cursor, err := s.col.Find(ctx, bson.M{
		"status":      models.DonationAvailable,
		"expiry_time": bson.M{"$lte": now},
	}, opts)
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// Requests implements lifecycle.RequestStore over MongoDB.
type Requests struct {
	col *mongo.Collection
}

func NewRequests(db *mongo.Database) *Requests {
	return &Requests{col: db.Collection(ColRequests)}
}

func (s *Requests) Get(ctx context.Context, id primitive.ObjectID) (*models.Request, error) {
	var req models.Request
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: request %s", lifecycle.ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Requests) Insert(ctx context.Context, req *models.Request) error {
	_, err := s.col.InsertOne(ctx, req)
	return err
}

func (s *Requests) FindActiveByVolunteer(ctx context.Context, volunteerID primitive.ObjectID) (*models.Request, error) {
	var req models.Request
	err := s.col.FindOne(ctx, bson.M{
		"volunteer_id": volunteerID,
		"status":       bson.M{"$in": models.ActiveRequestStatuses},
	}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Requests) UpdateStatus(ctx context.Context, id primitive.ObjectID, expected, next string, patch lifecycle.RequestPatch) error {
	set := bson.M{"status": next, "updated_at": time.Now()}
	if patch.PickupTime != nil {
		set["pickup_time"] = *patch.PickupTime
	}
	if patch.CompletionTime != nil {
		set["completion_time"] = *patch.CompletionTime
	}
	if patch.CancelReason != "" {
		set["cancel_reason"] = patch.CancelReason
	}
	if patch.VolunteerLocation != nil {
		set["volunteer_location"] = patch.VolunteerLocation
	}

	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "status": expected}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if err := s.col.FindOne(ctx, bson.M{"_id": id}).Err(); errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: request %s", lifecycle.ErrNotFound, id.Hex())
		}
		return fmt.Errorf("%w: request %s is no longer %s", lifecycle.ErrConflict, id.Hex(), expected)
	}
	return nil
}

func (s *Requests) SetRating(ctx context.Context, id primitive.ObjectID, rating int, feedback string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{
			"_id":    id,
			"status": models.RequestDelivered,
			"rating": bson.M{"$exists": false},
		},
		bson.M{"$set": bson.M{"rating": rating, "feedback": feedback, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: request %s already rated or not delivered", lifecycle.ErrPreconditionFailed, id.Hex())
	}
	return nil
}

// SetVolunteerLocation updates the live tracking position on a request.
func (s *Requests) SetVolunteerLocation(ctx context.Context, id primitive.ObjectID, loc models.VolunteerLocation) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"volunteer_location": loc, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: request %s", lifecycle.ErrNotFound, id.Hex())
	}
	return nil
}

// Users implements lifecycle.UserStore over MongoDB.
type Users struct {
	col *mongo.Collection
}

func NewUsers(db *mongo.Database) *Users {
	return &Users{col: db.Collection(ColUsers)}
}

func (s *Users) Get(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: user %s", lifecycle.ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

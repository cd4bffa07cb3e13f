package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/karanja/foodbridge-go/lifecycle"
	models "github.com/karanja/foodbridge-go/models"
)

// SMSSender pushes one text message. Implemented by utils.TwilioSender; nil
// disables SMS entirely.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// Applier applies lifecycle effects against MongoDB: counter increments,
// rating merges, and notification documents. SMS delivery happens off the
// critical path; its outcome is recorded on the notification afterwards.
// Effect failures are logged and swallowed — they must never fail the
// transition that produced them.
type Applier struct {
	db  *mongo.Database
	sms SMSSender
	log zerolog.Logger
}

func NewApplier(db *mongo.Database, sms SMSSender, log zerolog.Logger) *Applier {
	return &Applier{db: db, sms: sms, log: log}
}

func (a *Applier) Apply(ctx context.Context, effects []lifecycle.Effect) {
	for _, effect := range effects {
		switch ef := effect.(type) {
		case lifecycle.CounterDelta:
			a.applyCounter(ctx, ef)
		case lifecycle.RatingMerge:
			a.applyRating(ctx, ef)
		case lifecycle.Notify:
			a.applyNotify(ctx, ef)
		}
	}
}

func (a *Applier) applyCounter(ctx context.Context, ef lifecycle.CounterDelta) {
	_, err := a.db.Collection(ColUsers).UpdateOne(ctx,
		bson.M{"_id": ef.UserID},
		bson.M{"$inc": bson.M{ef.Field: ef.Delta}},
	)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", ef.UserID.Hex()).Str("field", ef.Field).Msg("counter update failed")
	}
}

func (a *Applier) applyRating(ctx context.Context, ef lifecycle.RatingMerge) {
	col := a.db.Collection(ColUsers)

	var user models.User
	if err := col.FindOne(ctx, bson.M{"_id": ef.UserID}).Decode(&user); err != nil {
		a.log.Error().Err(err).Str("user_id", ef.UserID.Hex()).Msg("rating merge: user lookup failed")
		return
	}

	newCount := user.RatingCount + 1
	newRating := (user.Rating*float64(user.RatingCount) + float64(ef.Rating)) / float64(newCount)

	_, err := col.UpdateOne(ctx,
		bson.M{"_id": ef.UserID},
		bson.M{"$set": bson.M{"rating": newRating, "rating_count": newCount, "updated_at": time.Now()}},
	)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", ef.UserID.Hex()).Msg("rating merge failed")
	}
}

func (a *Applier) applyNotify(ctx context.Context, ef lifecycle.Notify) {
	notification := models.Notification{
		UserID:            ef.UserID,
		Type:              ef.Type,
		Title:             ef.Title,
		Message:           ef.Message,
		RelatedDonationID: ef.DonationID,
		RelatedRequestID:  ef.RequestID,
		CreatedAt:         time.Now(),
	}

	res, err := a.db.Collection(ColNotifications).InsertOne(ctx, notification)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", ef.UserID.Hex()).Str("type", ef.Type).Msg("notification insert failed")
		return
	}

	if !ef.SMS || ef.Phone == "" || a.sms == nil {
		return
	}

	// Fire and forget: SMS delivery never blocks the transition response. The
	// sms_sent flag is flipped once the provider accepts the message.
	notificationID := res.InsertedID
	body := ef.Title + ": " + ef.Message
	go func() {
		smsCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := a.sms.Send(smsCtx, ef.Phone, body); err != nil {
			a.log.Warn().Err(err).Str("user_id", ef.UserID.Hex()).Msg("sms delivery failed")
			return
		}
		_, err := a.db.Collection(ColNotifications).UpdateOne(smsCtx,
			bson.M{"_id": notificationID},
			bson.M{"$set": bson.M{"sms_sent": true}},
		)
		if err != nil {
			a.log.Warn().Err(err).Msg("could not record sms delivery")
		}
	}()
}

package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	config "github.com/karanja/foodbridge-go/config"
	"github.com/karanja/foodbridge-go/lifecycle"
	middleware "github.com/karanja/foodbridge-go/middleware"
	models "github.com/karanja/foodbridge-go/models"
	"github.com/karanja/foodbridge-go/store"
)

func actorFrom(c *gin.Context) (lifecycle.Actor, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return lifecycle.Actor{}, false
	}
	return lifecycle.Actor{ID: user.ID, Role: user.Role}, true
}

// ---------------- ACCEPT ----------------
func AcceptRequest(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var input struct {
			DonationID string `json:"donation_id" binding:"required"`
			Notes      string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		donationID, err := primitive.ObjectIDFromHex(input.DonationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donation id"})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		request, err := newEngine(cfg).Accept(ctx, actor, donationID, input.Notes)
		if err != nil {
			respondError(c, err)
			return
		}

		enrichRequest(ctx, cfg, request)
		c.JSON(http.StatusCreated, gin.H{
			"message": "donation request accepted successfully",
			"request": request,
		})
	}
}

// ---------------- UPDATE STATUS ----------------
func UpdateRequestStatus(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var input struct {
			RequestID         string                    `json:"request_id" binding:"required"`
			Status            string                    `json:"status" binding:"required"`
			CancelReason      string                    `json:"cancel_reason"`
			VolunteerLocation *models.VolunteerLocation `json:"volunteer_location"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		requestID, err := primitive.ObjectIDFromHex(input.RequestID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
			return
		}
		if input.VolunteerLocation != nil {
			input.VolunteerLocation.UpdatedAt = time.Now()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		request, err := newEngine(cfg).Advance(ctx, actor, requestID, input.Status, input.CancelReason, input.VolunteerLocation)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "request status updated to " + input.Status,
			"request": request,
		})
	}
}

// ---------------- RATE ----------------
func RateRequest(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		requestID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
			return
		}

		var input struct {
			Rating   int    `json:"rating" binding:"required"`
			Feedback string `json:"feedback"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := newEngine(cfg).Rate(ctx, actor, requestID, input.Rating, input.Feedback); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "rating submitted successfully"})
	}
}

// ---------------- UPDATE LOCATION ----------------
func UpdateRequestLocation(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		requestID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
			return
		}

		var input struct {
			Lat float64 `json:"lat" binding:"required"`
			Lng float64 `json:"lng" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		requests := store.NewRequests(cfg.MongoClient.Database(cfg.DBName))
		request, err := requests.Get(ctx, requestID)
		if err != nil {
			respondError(c, err)
			return
		}
		if request.VolunteerID != actor.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
			return
		}

		loc := models.VolunteerLocation{Lat: input.Lat, Lng: input.Lng, UpdatedAt: time.Now()}
		if err := requests.SetVolunteerLocation(ctx, requestID, loc); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "location updated"})
	}
}

// ---------------- MY REQUESTS ----------------
func MyRequests(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("requests")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		filter := bson.M{"volunteer_id": actor.ID}
		if status := c.Query("status"); status != "" && status != "all" {
			filter["status"] = status
		}

		page, limit := paging(c)
		opts := options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetSkip((page - 1) * limit).
			SetLimit(limit)

		total, err := col.CountDocuments(ctx, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch requests"})
			return
		}

		cursor, err := col.Find(ctx, filter, opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch requests"})
			return
		}

		requests := []models.Request{}
		if err := cursor.All(ctx, &requests); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode requests"})
			return
		}

		for i := range requests {
			enrichRequest(ctx, cfg, &requests[i])
		}

		c.JSON(http.StatusOK, gin.H{
			"count":        len(requests),
			"total":        total,
			"total_pages":  totalPages(total, limit),
			"current_page": page,
			"requests":     requests,
		})
	}
}

// ---------------- REQUESTS FOR A DONATION ----------------
func RequestsForDonation(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		donationID, err := primitive.ObjectIDFromHex(c.Param("donationId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donation id"})
			return
		}

		db := cfg.MongoClient.Database(cfg.DBName)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var donation models.Donation
		if err := db.Collection("donations").FindOne(ctx, bson.M{"_id": donationID}).Decode(&donation); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "donation not found"})
			return
		}
		if donation.DonorID != actor.ID && actor.Role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
			return
		}

		opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
		cursor, err := db.Collection("requests").Find(ctx, bson.M{"donation_id": donationID}, opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch requests"})
			return
		}

		requests := []models.Request{}
		if err := cursor.All(ctx, &requests); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode requests"})
			return
		}

		for i := range requests {
			enrichRequest(ctx, cfg, &requests[i])
		}

		c.JSON(http.StatusOK, gin.H{"requests": requests})
	}
}

// ---------------- GET ----------------
func GetRequest(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		requestID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		request, err := store.NewRequests(cfg.MongoClient.Database(cfg.DBName)).Get(ctx, requestID)
		if err != nil {
			respondError(c, err)
			return
		}

		authorized := request.VolunteerID == actor.ID ||
			request.DonorID == actor.ID ||
			actor.Role == "admin"
		if !authorized {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
			return
		}

		enrichRequest(ctx, cfg, request)
		c.JSON(http.StatusOK, gin.H{"request": request})
	}
}

// enrichRequest attaches the donation and the public donor/volunteer profiles
// for client rendering. Lookup failures leave the field empty.
func enrichRequest(ctx context.Context, cfg *config.Config, request *models.Request) {
	db := cfg.MongoClient.Database(cfg.DBName)

	var donation models.Donation
	if err := db.Collection("donations").FindOne(ctx, bson.M{"_id": request.DonationID}).Decode(&donation); err == nil {
		request.Donation = &donation
	}

	var donor models.User
	if err := db.Collection("users").FindOne(ctx, bson.M{"_id": request.DonorID}).Decode(&donor); err == nil {
		profile := donor.Public()
		request.Donor = &profile
	}

	var volunteer models.User
	if err := db.Collection("users").FindOne(ctx, bson.M{"_id": request.VolunteerID}).Decode(&volunteer); err == nil {
		profile := volunteer.Public()
		request.Volunteer = &profile
	}
}

package controllers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	config "github.com/karanja/foodbridge-go/config"
	"github.com/karanja/foodbridge-go/lifecycle"
	models "github.com/karanja/foodbridge-go/models"
	utils "github.com/karanja/foodbridge-go/utils"
)

// ---------------- CREATE ----------------
func CreateDonation(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("user_id")
		donorID, err := primitive.ObjectIDFromHex(uid)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		var input struct {
			FoodType            string                `json:"food_type" binding:"required"`
			FoodName            string                `json:"food_name" binding:"required"`
			Description         string                `json:"description"`
			Quantity            int                   `json:"quantity" binding:"required,min=1"`
			QuantityUnit        string                `json:"quantity_unit"`
			ExpiryTime          time.Time             `json:"expiry_time" binding:"required"`
			PickupLocation      models.PickupLocation `json:"pickup_location" binding:"required"`
			PickupStartTime     time.Time             `json:"pickup_start_time" binding:"required"`
			PickupEndTime       time.Time             `json:"pickup_end_time" binding:"required"`
			ImageURL            string                `json:"image_url"`
			SpecialInstructions string                `json:"special_instructions"`
			Allergens           []string              `json:"allergens"`
			IsVegetarian        bool                  `json:"is_vegetarian"`
			IsVegan             bool                  `json:"is_vegan"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !models.ValidFoodType(input.FoodType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid food type"})
			return
		}
		if input.QuantityUnit == "" {
			input.QuantityUnit = "meals"
		}
		if !models.ValidQuantityUnit(input.QuantityUnit) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity unit"})
			return
		}
		if input.PickupLocation.Address == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pickup location must include address, lat, and lng"})
			return
		}
		if !input.PickupEndTime.After(input.PickupStartTime) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pickup end time must be after start time"})
			return
		}
		if input.ExpiryTime.Before(input.PickupStartTime) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expiry time cannot precede the pickup window"})
			return
		}

		now := time.Now()
		donation := models.Donation{
			ID:                  primitive.NewObjectID(),
			DonorID:             donorID,
			FoodType:            input.FoodType,
			FoodName:            input.FoodName,
			Description:         input.Description,
			Quantity:            input.Quantity,
			QuantityUnit:        input.QuantityUnit,
			ExpiryTime:          input.ExpiryTime,
			PickupLocation:      input.PickupLocation,
			PickupStartTime:     input.PickupStartTime,
			PickupEndTime:       input.PickupEndTime,
			ImageURL:            input.ImageURL,
			Status:              models.DonationAvailable,
			SpecialInstructions: input.SpecialInstructions,
			Allergens:           input.Allergens,
			IsVegetarian:        input.IsVegetarian,
			IsVegan:             input.IsVegan,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if donation.Allergens == nil {
			donation.Allergens = []string{}
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("donations")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := col.InsertOne(ctx, donation); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create donation"})
			return
		}

		newApplier(cfg).Apply(ctx, lifecycle.DonationCreatedEffects(donorID))

		c.JSON(http.StatusCreated, gin.H{
			"message":  "donation created successfully",
			"donation": donation,
		})
	}
}

// ---------------- LIST ----------------
func ListDonations(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		col := cfg.MongoClient.Database(cfg.DBName).Collection("donations")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		filter := bson.M{}
		if status := c.Query("status"); status != "" && status != "all" {
			filter["status"] = status
		} else {
			filter["status"] = models.DonationAvailable
		}
		if foodType := c.Query("food_type"); foodType != "" && foodType != "all" {
			filter["food_type"] = foodType
		}
		if search := c.Query("search"); search != "" {
			filter["food_name"] = bson.M{"$regex": search, "$options": "i"}
		}

		// Expired listings are hidden at read time regardless of status.
		filter["expiry_time"] = bson.M{"$gt": time.Now()}

		// Bounding-box filter around lat/lng, radius in km.
		if lat, lng, radius := c.Query("lat"), c.Query("lng"), c.Query("radius"); lat != "" && lng != "" && radius != "" {
			latNum, errLat := strconv.ParseFloat(lat, 64)
			lngNum, errLng := strconv.ParseFloat(lng, 64)
			radiusKm, errRad := strconv.ParseFloat(radius, 64)
			if errLat == nil && errLng == nil && errRad == nil {
				latDelta := radiusKm / 111 // ~111km per degree latitude
				lngDelta := radiusKm / (111 * math.Cos(latNum*math.Pi/180))
				filter["pickup_location.lat"] = bson.M{"$gte": latNum - latDelta, "$lte": latNum + latDelta}
				filter["pickup_location.lng"] = bson.M{"$gte": lngNum - lngDelta, "$lte": lngNum + lngDelta}
			}
		}

		page, limit := paging(c)
		opts := options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetSkip((page - 1) * limit).
			SetLimit(limit)

		total, err := col.CountDocuments(ctx, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch donations"})
			return
		}

		cursor, err := col.Find(ctx, filter, opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch donations"})
			return
		}

		donations := []models.Donation{}
		if err := cursor.All(ctx, &donations); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode donations"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"count":        len(donations),
			"total":        total,
			"total_pages":  totalPages(total, limit),
			"current_page": page,
			"donations":    donations,
		})
	}
}

// ---------------- MY DONATIONS ----------------
func MyDonations(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("user_id")
		donorID, err := primitive.ObjectIDFromHex(uid)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("donations")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		filter := bson.M{"donor_id": donorID}
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
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch donations"})
			return
		}

		cursor, err := col.Find(ctx, filter, opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch donations"})
			return
		}

		donations := []models.Donation{}
		if err := cursor.All(ctx, &donations); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode donations"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"count":        len(donations),
			"total":        total,
			"total_pages":  totalPages(total, limit),
			"current_page": page,
			"donations":    donations,
		})
	}
}

// ---------------- GET ----------------
func GetDonation(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donation id"})
			return
		}

		db := cfg.MongoClient.Database(cfg.DBName)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var donation models.Donation
		if err := db.Collection("donations").FindOne(ctx, bson.M{"_id": oid}).Decode(&donation); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "donation not found"})
			return
		}

		var donor models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": donation.DonorID}).Decode(&donor); err == nil {
			profile := donor.Public()
			donation.Donor = &profile
		}

		etag := utils.GenerateETag(donation.ID, donation.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, gin.H{"donation": donation})
	}
}

// ---------------- UPDATE ----------------
func UpdateDonation(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		requesterID := c.GetString("user_id")
		if requesterID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donation id"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("donations")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var existing models.Donation
		if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&existing); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "donation not found"})
			return
		}

		if role != "admin" && existing.DonorID.Hex() != requesterID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to update this donation"})
			return
		}
		if existing.Status != models.DonationAvailable {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot update donation that is already in progress"})
			return
		}

		var input struct {
			FoodType            *string                `json:"food_type"`
			FoodName            *string                `json:"food_name"`
			Description         *string                `json:"description"`
			Quantity            *int                   `json:"quantity"`
			QuantityUnit        *string                `json:"quantity_unit"`
			ExpiryTime          *time.Time             `json:"expiry_time"`
			PickupLocation      *models.PickupLocation `json:"pickup_location"`
			PickupStartTime     *time.Time             `json:"pickup_start_time"`
			PickupEndTime       *time.Time             `json:"pickup_end_time"`
			ImageURL            *string                `json:"image_url"`
			SpecialInstructions *string                `json:"special_instructions"`
			Allergens           []string               `json:"allergens"`
			IsVegetarian        *bool                  `json:"is_vegetarian"`
			IsVegan             *bool                  `json:"is_vegan"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		update := bson.M{"updated_at": time.Now()}
		if input.FoodType != nil {
			if !models.ValidFoodType(*input.FoodType) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid food type"})
				return
			}
			update["food_type"] = *input.FoodType
		}
		if input.FoodName != nil {
			update["food_name"] = *input.FoodName
		}
		if input.Description != nil {
			update["description"] = *input.Description
		}
		if input.Quantity != nil {
			if *input.Quantity < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be at least 1"})
				return
			}
			update["quantity"] = *input.Quantity
		}
		if input.QuantityUnit != nil {
			if !models.ValidQuantityUnit(*input.QuantityUnit) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity unit"})
				return
			}
			update["quantity_unit"] = *input.QuantityUnit
		}
		if input.PickupLocation != nil {
			update["pickup_location"] = *input.PickupLocation
		}
		if input.ImageURL != nil {
			update["image_url"] = *input.ImageURL
		}
		if input.SpecialInstructions != nil {
			update["special_instructions"] = *input.SpecialInstructions
		}
		if input.Allergens != nil {
			update["allergens"] = input.Allergens
		}
		if input.IsVegetarian != nil {
			update["is_vegetarian"] = *input.IsVegetarian
		}
		if input.IsVegan != nil {
			update["is_vegan"] = *input.IsVegan
		}

		// Temporal fields keep their ordering invariants across partial updates.
		expiry, start, end := existing.ExpiryTime, existing.PickupStartTime, existing.PickupEndTime
		if input.ExpiryTime != nil {
			expiry = *input.ExpiryTime
			update["expiry_time"] = expiry
		}
		if input.PickupStartTime != nil {
			start = *input.PickupStartTime
			update["pickup_start_time"] = start
		}
		if input.PickupEndTime != nil {
			end = *input.PickupEndTime
			update["pickup_end_time"] = end
		}
		if !end.After(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pickup end time must be after start time"})
			return
		}
		if expiry.Before(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expiry time cannot precede the pickup window"})
			return
		}

		if len(update) == 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}

		// Conditional on status so a concurrent accept cannot interleave with
		// a field edit.
		res, err := col.UpdateOne(ctx,
			bson.M{"_id": oid, "status": models.DonationAvailable},
			bson.M{"$set": update},
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update donation"})
			return
		}
		if res.MatchedCount == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "donation is no longer available"})
			return
		}

		var updated models.Donation
		if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&updated); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve updated donation"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "donation updated successfully",
			"donation": updated,
		})
	}
}

// ---------------- DELETE ----------------
func DeleteDonation(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		requesterID := c.GetString("user_id")
		if requesterID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donation id"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("donations")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var existing models.Donation
		if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&existing); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "donation not found"})
			return
		}

		if role != "admin" && existing.DonorID.Hex() != requesterID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to delete this donation"})
			return
		}

		// An in-flight pickup pins the listing.
		res, err := col.DeleteOne(ctx, bson.M{
			"_id":    oid,
			"status": bson.M{"$nin": []string{models.DonationAccepted, models.DonationPickedUp}},
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete donation"})
			return
		}
		if res.DeletedCount == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete donation that is in progress"})
			return
		}

		newApplier(cfg).Apply(ctx, lifecycle.DonationDeletedEffects(existing.DonorID))

		if existing.ImageURL != "" {
			// Best effort; a failure only orphans the image.
			_ = utils.DeleteFromCloudinary(existing.ImageURL)
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "donation deleted successfully",
			"id":      oid.Hex(),
		})
	}
}

// ---------------- UPLOAD IMAGE ----------------
func UploadDonationImage(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		requesterID := c.GetString("user_id")

		oid, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donation id"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("donations")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var existing models.Donation
		if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&existing); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "donation not found"})
			return
		}
		if role != "admin" && existing.DonorID.Hex() != requesterID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized to update this donation"})
			return
		}

		fileHeader, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
			return
		}
		defer file.Close()

		url, err := utils.UploadDonationImage(file, fileHeader)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "image upload failed", "details": err.Error()})
			return
		}

		if _, err := col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"image_url": url, "updated_at": time.Now()}}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save image url"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"image_url": url})
	}
}

func paging(c *gin.Context) (page, limit int64) {
	page, _ = strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	limit, _ = strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func totalPages(total, limit int64) int64 {
	if limit == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	config "github.com/karanja/foodbridge-go/config"
	"github.com/karanja/foodbridge-go/lifecycle"
	"github.com/karanja/foodbridge-go/logger"
	"github.com/karanja/foodbridge-go/store"
	utils "github.com/karanja/foodbridge-go/utils"
)

// newEngine wires the lifecycle engine over the shared Mongo client. Cheap to
// construct per request: the stores hold collection handles only.
func newEngine(cfg *config.Config) *lifecycle.Engine {
	db := cfg.MongoClient.Database(cfg.DBName)
	return lifecycle.New(
		store.NewDonations(db),
		store.NewRequests(db),
		store.NewUsers(db),
		newApplier(cfg),
		logger.WithComponent("lifecycle"),
	)
}

// newApplier builds the effect applier used both by the engine and by the
// donation create/delete paths for their counter effects.
func newApplier(cfg *config.Config) *store.Applier {
	var sms store.SMSSender
	if sender := utils.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber); sender.Configured() {
		sms = sender
	}
	return store.NewApplier(cfg.MongoClient.Database(cfg.DBName), sms, logger.WithComponent("effects"))
}

// respondError maps the lifecycle error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is an infrastructure failure and stays opaque.
func respondError(c *gin.Context, err error) {
	var transition *lifecycle.InvalidTransitionError
	switch {
	case errors.As(err, &transition):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":            transition.Error(),
			"attempted_status": transition.Attempted,
			"current_status":   transition.Current,
		})
	case errors.Is(err, lifecycle.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrPreconditionFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log := logger.WithComponent("api")
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

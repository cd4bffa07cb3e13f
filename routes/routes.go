package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	config "github.com/karanja/foodbridge-go/config"
	controllers "github.com/karanja/foodbridge-go/controllers"
	middleware "github.com/karanja/foodbridge-go/middleware"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	api := r.Group("/api")

	auth := middleware.AuthMiddleware(cfg)
	optional := middleware.OptionalAuth(cfg)

	// public
	api.POST("/auth/register", controllers.Register(cfg))
	api.POST("/auth/login", controllers.Login(cfg))
	api.GET("/auth/me", auth, controllers.Me(cfg))

	donations := api.Group("/donations")
	{
		donations.GET("", optional, controllers.ListDonations(cfg))
		donations.GET("/my", auth, middleware.RequireRole("donor", "admin"), controllers.MyDonations(cfg))
		donations.GET("/:id", optional, controllers.GetDonation(cfg))
		donations.POST("", auth, middleware.RequireRole("donor", "admin"), controllers.CreateDonation(cfg))
		donations.PUT("/:id", auth, controllers.UpdateDonation(cfg))
		donations.DELETE("/:id", auth, controllers.DeleteDonation(cfg))
		donations.POST("/:id/image", auth, controllers.UploadDonationImage(cfg))
	}

	requests := api.Group("/requests")
	requests.Use(auth)
	{
		requests.POST("/accept", middleware.RequireRole("volunteer", "admin"), controllers.AcceptRequest(cfg))
		requests.PUT("/status", middleware.RequireRole("volunteer", "admin"), controllers.UpdateRequestStatus(cfg))
		requests.GET("/my", middleware.RequireRole("volunteer", "admin"), controllers.MyRequests(cfg))
		requests.GET("/donation/:donationId", controllers.RequestsForDonation(cfg))
		requests.GET("/:id", controllers.GetRequest(cfg))
		requests.POST("/:id/rate", middleware.RequireRole("donor"), controllers.RateRequest(cfg))
		requests.PUT("/:id/location", middleware.RequireRole("volunteer"), controllers.UpdateRequestLocation(cfg))
	}

	notifs := api.Group("/notifications")
	notifs.Use(auth)
	{
		notifs.GET("", controllers.ListNotifications(cfg))
		notifs.PATCH("/:id/read", controllers.MarkNotificationRead(cfg))
		notifs.PATCH("/read-all", controllers.MarkAllNotificationsRead(cfg))
	}
}

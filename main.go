package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	config "github.com/karanja/foodbridge-go/config"
	"github.com/karanja/foodbridge-go/jobs"
	"github.com/karanja/foodbridge-go/lifecycle"
	"github.com/karanja/foodbridge-go/logger"
	routes "github.com/karanja/foodbridge-go/routes"
	"github.com/karanja/foodbridge-go/store"
	utils "github.com/karanja/foodbridge-go/utils"
)

func main() {
	_ = godotenv.Load()
	logger.Configure(nil)
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		_ = cfg.MongoClient.Disconnect(context.Background())
	}()
	log.Info().Str("db", cfg.DBName).Msg("mongodb connected")

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	routes.SetupRoutes(r, cfg)

	if cfg.ExpirySweepInterval > 0 {
		db := cfg.MongoClient.Database(cfg.DBName)

		var sms store.SMSSender
		if sender := utils.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber); sender.Configured() {
			sms = sender
		}
		engine := lifecycle.New(
			store.NewDonations(db),
			store.NewRequests(db),
			store.NewUsers(db),
			store.NewApplier(db, sms, logger.WithComponent("effects")),
			logger.WithComponent("lifecycle"),
		)
		sweeper := jobs.NewExpirySweeper(store.NewDonations(db), engine, cfg.ExpirySweepInterval, logger.WithComponent("expiry-sweep"))
		go sweeper.Run(ctx)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

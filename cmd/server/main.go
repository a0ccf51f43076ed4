package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/medlab/diagnosis-backend/internal/config"
	"github.com/medlab/diagnosis-backend/internal/db"
	"github.com/medlab/diagnosis-backend/internal/es"
	"github.com/medlab/diagnosis-backend/internal/events"
	"github.com/medlab/diagnosis-backend/internal/handlers"
	"github.com/medlab/diagnosis-backend/internal/logging"
	authmw "github.com/medlab/diagnosis-backend/internal/middleware/auth"
	loggingmw "github.com/medlab/diagnosis-backend/internal/middleware/logging"
	"github.com/medlab/diagnosis-backend/internal/repo"
	"github.com/medlab/diagnosis-backend/internal/tokens"
	httpserver "github.com/medlab/diagnosis-backend/internal/transport/http"
)

const patientIndex = "patients"

func sameSiteFromString(v string) http.SameSite {
	switch v {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	config.MustNonEmpty(cfg.DBHost, "DB_HOST")

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)
	ctx := logging.IntoContext(context.Background(), logger)

	gormDB, err := db.Open(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := db.Migrate(ctx, gormDB); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	if err := db.SeedAdmin(ctx, gormDB, config.EnvDefault("ADMIN_USERNAME", "admin"), config.EnvDefault("ADMIN_PASSWORD", "admin123")); err != nil {
		log.Fatalf("admin seed: %v", err)
	}

	producer := events.NewProducer([]string{cfg.KafkaAddress})

	codec := &tokens.Codec{
		Secret:        cfg.JWTSecret,
		AccessExpire:  cfg.AccessTokenExpire,
		RefreshExpire: cfg.RefreshTokenExpire,
	}
	users := &repo.UserRepo{DB: gormDB}
	resolver := &authmw.Resolver{Users: users, Codec: codec}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), middleware.CORS())
	e.Use(loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		Resolver: resolver,
		AuthHandler: &handlers.AuthHandler{
			Users:          users,
			Codec:          codec,
			Producer:       producer,
			CookieSecure:   cfg.CookieSecure,
			CookieSameSite: sameSiteFromString(cfg.CookieSameSite),
		},
		UserHandler:       &handlers.UserHandler{Users: users},
		ConsultantHandler: &handlers.ConsultantHandler{DB: gormDB},
		LabTestHandler:    &handlers.LabTestHandler{DB: gormDB},
		OrderHandler:      &handlers.OrderHandler{DB: gormDB, Producer: producer},
		ReportHandler:     &handlers.ReportHandler{DB: gormDB},
		BillingHandler:    &handlers.BillingHandler{DB: gormDB},
	}

	patientHandler := &handlers.PatientHandler{DB: gormDB, Producer: producer, Index: patientIndex}
	searchHandler := &handlers.SearchHandler{Index: patientIndex}
	if cfg.ESURL != "" {
		client, err := es.NewClient(cfg)
		if err != nil {
			log.Fatalf("elasticsearch: %v", err)
		}
		patientHandler.ES = client
		searchHandler.ES = client
	}
	deps.PatientHandler = patientHandler
	deps.SearchHandler = searchHandler

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	logger.Info("server started", "port", cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	if err := producer.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}

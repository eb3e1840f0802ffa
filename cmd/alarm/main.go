package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alertaperu/community-alarm/internal/alerting"
	"github.com/alertaperu/community-alarm/internal/api"
	"github.com/alertaperu/community-alarm/internal/config"
	"github.com/alertaperu/community-alarm/internal/correlation"
	"github.com/alertaperu/community-alarm/internal/directory"
	"github.com/alertaperu/community-alarm/internal/dispatch"
	"github.com/alertaperu/community-alarm/internal/metrics"
	"github.com/alertaperu/community-alarm/internal/notifications"
	"github.com/alertaperu/community-alarm/internal/scheduler"
	"github.com/alertaperu/community-alarm/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting community alarm")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize community store: %v", err)
	}
	communities := directory.New(store)

	intents := correlation.NewTable(cfg.IntentTTL)

	telegram := notifications.NewTelegramClient(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.ChannelTimeout)

	var voice notifications.VoiceChannel
	if cfg.VoiceEnabled() {
		voice = notifications.NewTwilioClient(notifications.TwilioConfig{
			APIURL:     cfg.TwilioAPIURL,
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
			Language:   cfg.VoiceLanguage,
			Voice:      cfg.VoiceName,
			Timeout:    cfg.ChannelTimeout,
		})
	} else {
		logrus.Warn("Twilio is not configured, voice calls will be skipped")
	}

	var reporter notifications.ReportChannel
	if cfg.OperatorEmail != "" {
		reporter = notifications.NewEmailReporter(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			To:       cfg.OperatorEmail,
		})
	}

	engine := dispatch.New(telegram, voice,
		dispatch.WithWorkers(cfg.DispatchWorkers),
		dispatch.WithTimeout(cfg.ChannelTimeout),
	)

	alertService := alerting.NewService(cfg, communities, intents, engine, telegram, reporter, nil)
	defer alertService.Close()

	metrics.MustRegister()

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, alertService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	if cfg.TelegramMode == "polling" {
		go alertService.Poll(ctx, telegram)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.NewRouter(api.NewHandler(alertService, communities)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s (telegram mode: %s)", cfg.Port, cfg.TelegramMode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func newStore(ctx context.Context, cfg *config.Config) (storage.StorageInterface, error) {
	switch cfg.CommunityStore {
	case "azure":
		logrus.Infof("Loading communities from Azure container %s/%s", cfg.StorageAccount, cfg.StorageContainer)
		return storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	default:
		logrus.Infof("Loading communities from %s", cfg.CommunitiesDir)
		return storage.NewFileStorage(cfg.CommunitiesDir)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aieffects/videobot/internal/api"
	"github.com/aieffects/videobot/internal/config"
	"github.com/aieffects/videobot/internal/database"
	"github.com/aieffects/videobot/internal/kie"
	"github.com/aieffects/videobot/internal/notify"
	"github.com/aieffects/videobot/internal/ratelimit"
	"github.com/aieffects/videobot/internal/repository"
	"github.com/aieffects/videobot/internal/service"
	"github.com/aieffects/videobot/internal/storage"
	"github.com/aieffects/videobot/internal/telegram"
	"github.com/aieffects/videobot/internal/yookassa"
	"github.com/aieffects/videobot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	referralRepo := repository.NewReferralRepository(db)

	kieClient := kie.NewClient(cfg.KIEAPIKey, cfg.KIEBaseURL, cfg.RequestTimeout, logr)
	limiter := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow, logr)
	gateway := kie.NewGateway(kieClient, limiter)

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	notifier := notify.New(botAPI, logr)
	yooClient := yookassa.NewClient(cfg.YooKassaShopID, cfg.YooKassaSecretKey, logr)

	taskService := service.NewTaskService(userRepo, taskRepo, gateway, uploader, notifier, cfg.CallbackURL(), logr)
	callbackService := service.NewCallbackService(taskService, logr)
	paymentService := service.NewPaymentService(paymentRepo, userRepo, referralRepo, yooClient, notifier, logr)
	userService := service.NewUserService(userRepo, referralRepo, logr)
	expiryService := service.NewExpiryService(userRepo, notifier, logr)

	apiServer := api.NewServer(cfg.ListenAddr, logr, taskService, callbackService, paymentService, userService)
	go func() {
		if err := apiServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("api server stopped", "err", err)
		}
	}()

	go expiryService.Run(ctx)

	bot := telegram.NewBot(cfg, botAPI, logr, userService)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}

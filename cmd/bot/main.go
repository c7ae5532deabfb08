// Package main is the entry point for the loyalty bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"loyalty-bot/internal/bot"
	"loyalty-bot/internal/config"
	"loyalty-bot/internal/pkg/db"
	"loyalty-bot/internal/pkg/leaderlock"
	"loyalty-bot/internal/qr"
	"loyalty-bot/internal/referral"
	"loyalty-bot/internal/repository"
	"loyalty-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize Redis for fraud counters and the leader lock
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Telegram long polling allows a single consumer. The leader lock makes
	// extra replicas wait instead of fighting over updates.
	lock := leaderlock.New(rdb, "loyalty-bot:leader", 30*time.Second)
	log.Info().Msg("Acquiring leader lock...")
	if err := lock.Acquire(ctx, 5*time.Second); err != nil {
		log.Fatal().Err(err).Msg("Failed to acquire leader lock")
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to release leader lock")
		}
	}()
	go lock.KeepAlive(ctx, func() {
		log.Fatal().Msg("Leader lock lost, shutting down")
	})
	log.Info().Msg("Leader lock acquired")

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	placeRepo := repository.NewPlaceRepository(dbPool.Pool)
	cfgRepo := repository.NewLoyaltyConfigRepository(dbPool.Pool)
	qrRepo := repository.NewQRRepository(dbPool.Pool)
	purchaseRepo := repository.NewPurchaseRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)
	referralRepo := repository.NewReferralRepository(dbPool.Pool)

	// Referral policy comes from the app config; it is structural, unlike
	// the financial config which lives in the database.
	policy, err := referral.PolicyFromConfig(cfg.Referral)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid referral policy")
	}
	distributor := referral.NewDistributor(referralRepo, userRepo, ledgerRepo, policy)

	signer := qr.NewTokenSigner(cfg.QR.SigningSecret)
	scorer := qr.NewFraudScorer(rdb, cfg.Fraud)

	// Initialize services
	accountService := service.NewAccountService(dbPool.Pool, userRepo, referralRepo, ledgerRepo)
	redemptionService := service.NewRedemptionService(
		dbPool.Pool,
		userRepo, placeRepo, cfgRepo, qrRepo, purchaseRepo, ledgerRepo,
		distributor, signer, scorer,
	)
	issuanceService := service.NewIssuanceService(placeRepo, qrRepo, signer, cfg.QR.DefaultTTL)
	partnerService := service.NewPartnerService(placeRepo, purchaseRepo, cfgRepo, qrRepo)

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:            cfg,
		AccountService:    accountService,
		RedemptionService: redemptionService,
		IssuanceService:   issuanceService,
		PartnerService:    partnerService,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

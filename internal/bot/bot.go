package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"loyalty-bot/internal/config"
	"loyalty-bot/internal/handler"
	"loyalty-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	accountHandler *handler.AccountHandler
	redeemHandler  *handler.RedeemHandler
	partnerHandler *handler.PartnerHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config            *config.Config
	AccountService    *service.AccountService
	RedemptionService *service.RedemptionService
	IssuanceService   *service.IssuanceService
	PartnerService    *service.PartnerService
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	b.accountHandler = handler.NewAccountHandler(deps.AccountService, teleBot.Me.Username)
	b.redeemHandler = handler.NewRedeemHandler(deps.RedemptionService)
	b.partnerHandler = handler.NewPartnerHandler(deps.PartnerService, deps.IssuanceService)
	b.adminHandler = handler.NewAdminHandler(deps.AccountService, deps.PartnerService)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	// Member commands
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)
	b.bot.Handle("/referral", b.accountHandler.HandleReferral)
	b.bot.Handle("/redeem", b.redeemHandler.HandleRedeem)

	// Partner and admin commands
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/add_place", b.partnerHandler.HandleAddPlace)
	adminGroup.Handle("/places", b.partnerHandler.HandlePlaces)
	adminGroup.Handle("/issue_qr", b.partnerHandler.HandleIssueQR)
	adminGroup.Handle("/purchases", b.partnerHandler.HandlePurchases)
	adminGroup.Handle("/adjust", b.adminHandler.HandleAdjust)
	adminGroup.Handle("/set_loyalty", b.adminHandler.HandleSetLoyalty)
	adminGroup.Handle("/loyalty", b.adminHandler.HandleLoyalty)
	adminGroup.Handle("/fraud_flags", b.adminHandler.HandleFraudFlags)
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}

package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"loyalty-bot/internal/model"
	"loyalty-bot/internal/service"
)

// AdminHandler handles manual adjustments and program configuration.
type AdminHandler struct {
	accountService *service.AccountService
	partnerService *service.PartnerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accountService *service.AccountService, partnerService *service.PartnerService) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		partnerService: partnerService,
	}
}

// HandleAdjust handles /adjust <user_id> <delta>: a manual points
// correction, recorded on the ledger like any other movement.
func (h *AdminHandler) HandleAdjust(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("Usage: /adjust <user_id> <delta>")
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Invalid user id")
	}
	delta, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || delta == 0 {
		return c.Reply("❌ Invalid delta")
	}

	user, err := h.accountService.AdminAdjust(ctx, userID, delta)
	if err != nil {
		return c.Reply("❌ Adjustment failed: " + err.Error())
	}

	return c.Reply(fmt.Sprintf("✅ User %d adjusted by %+d, balance now %d", userID, delta, user.PointsBalance))
}

// HandleSetLoyalty handles /set_loyalty <redeem_rate> <rounding_rule> <max_accrual%>.
func (h *AdminHandler) HandleSetLoyalty(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) < 3 {
		return c.Reply("Usage: /set_loyalty <redeem_rate> <bankers|none> <max_accrual%>")
	}

	rate, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return c.Reply("❌ Invalid redeem rate")
	}
	maxAccrual, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return c.Reply("❌ Invalid accrual cap")
	}

	cfg := &model.LoyaltyConfig{
		RedeemRate:    rate,
		RoundingRule:  args[1],
		MaxAccrualPct: maxAccrual,
	}
	if err := h.partnerService.SetLoyaltyConfig(ctx, cfg); err != nil {
		return c.Reply("❌ Failed to update loyalty config: " + err.Error())
	}

	return c.Reply(fmt.Sprintf("✅ Loyalty config updated: rate %.0f, %s rounding, accrual cap %.1f%%",
		rate, args[1], maxAccrual))
}

// HandleLoyalty handles /loyalty: show the live configuration.
func (h *AdminHandler) HandleLoyalty(c tele.Context) error {
	cfg, err := h.partnerService.GetLoyaltyConfig(context.Background())
	if err != nil {
		return c.Reply("⚠️ Loyalty config is not set")
	}

	return c.Reply(fmt.Sprintf(
		"⚙️ Loyalty config\n"+
			"redeem rate: %.0f per point\n"+
			"rounding: %s\n"+
			"accrual cap: %.1f%%\n"+
			"updated: %s",
		cfg.RedeemRate, cfg.RoundingRule, cfg.MaxAccrualPct,
		cfg.UpdatedAt.Format(time.RFC3339),
	))
}

// HandleFraudFlags handles /fraud_flags: scans stopped in the last 24 hours.
func (h *AdminHandler) HandleFraudFlags(c tele.Context) error {
	flags, err := h.partnerService.ListFraudFlags(context.Background(), 24*time.Hour, 20)
	if err != nil {
		return c.Reply("❌ Failed to load fraud flags")
	}
	if len(flags) == 0 {
		return c.Reply("🛡 No fraud flags in the last 24h")
	}

	msg := "🛡 Fraud flags (24h)\n━━━━━━━━━━━━━━━\n"
	for _, f := range flags {
		msg += fmt.Sprintf("user %d, code %s, score %.0f (%s)\n", f.UserID, f.CodeID, f.Score, f.Details)
	}
	return c.Reply(msg)
}

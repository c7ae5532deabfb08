// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"loyalty-bot/internal/model"
	"loyalty-bot/internal/service"
)

// AccountHandler handles member account commands.
type AccountHandler struct {
	accountService *service.AccountService
	botUsername    string
}

// NewAccountHandler creates a new AccountHandler. botUsername is used to
// build referral deep links.
func NewAccountHandler(accountService *service.AccountService, botUsername string) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		botUsername:    botUsername,
	}
}

// displayName picks the username or falls back to the first name.
func displayName(sender *tele.User) string {
	if sender.Username != "" {
		return sender.Username
	}
	return sender.FirstName
}

// HandleStart handles the /start command. A numeric deep-link payload
// (t.me/<bot>?start=<referrer_id>) enrolls a new member under that referrer.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	var referrerID *int64
	if msg := c.Message(); msg != nil && msg.Payload != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(msg.Payload), 10, 64); err == nil && id > 0 {
			referrerID = &id
		}
	}

	user, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender), referrerID)
	if err != nil {
		return c.Reply("❌ Failed to set up your account, please try again later")
	}

	greeting := fmt.Sprintf(
		"🎉 Welcome, @%s!\n\n"+
			"Your points balance: %d\n\n"+
			"Commands:\n"+
			"/balance - show your points\n"+
			"/history - recent points activity\n"+
			"/referral - your referral link and earnings\n"+
			"/redeem <code> <amount> - redeem a QR code",
		displayName(sender), user.PointsBalance,
	)
	if user.ReferredBy != nil && referrerID != nil && *user.ReferredBy == *referrerID {
		greeting += "\n\n🤝 You joined through a referral link. Your referrer earns bonuses from your purchases."
	}

	return c.Reply(greeting)
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	balance, err := h.accountService.GetBalance(ctx, sender.ID)
	if err != nil {
		// First contact without /start: register on the fly
		user, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender), nil)
		if err != nil {
			return c.Reply("❌ Failed to load your balance, please try again later")
		}
		balance = user.PointsBalance
	}

	return c.Reply(fmt.Sprintf("💰 Points balance: %d", balance))
}

// HandleHistory handles the /history command: the last 10 ledger entries.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	entries, err := h.accountService.GetHistory(ctx, sender.ID, 10)
	if err != nil {
		return c.Reply("❌ Failed to load your history, please try again later")
	}
	if len(entries) == 0 {
		return c.Reply("📒 No points activity yet")
	}

	msg := "📒 Recent points activity\n"
	msg += "━━━━━━━━━━━━━━━\n"
	for _, e := range entries {
		sign := ""
		if e.Delta > 0 {
			sign = "+"
		}
		msg += fmt.Sprintf("%s%d  %s  %s\n", sign, e.Delta, reasonLabel(e.Reason), e.CreatedAt.Format("Jan 2 15:04"))
	}
	msg += "━━━━━━━━━━━━━━━"

	return c.Reply(msg)
}

// HandleReferral handles the /referral command: deep link plus earnings
// summary per level.
func (h *AccountHandler) HandleReferral(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	stats, err := h.accountService.GetReferralStats(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Failed to load referral stats, please try again later")
	}

	link := fmt.Sprintf("https://t.me/%s?start=%d", h.botUsername, sender.ID)

	return c.Reply(fmt.Sprintf(
		"🤝 Your referral link:\n%s\n\n"+
			"👥 Direct referrals: %d\n"+
			"💎 Earnings:\n"+
			"  level 1: %.0f\n"+
			"  level 2: %.0f\n"+
			"  level 3: %.0f",
		link, stats.TotalReferrals,
		stats.Level1Earnings, stats.Level2Earnings, stats.Level3Earnings,
	))
}

// reasonLabel maps ledger reasons to short user-facing labels.
func reasonLabel(reason string) string {
	switch reason {
	case model.ReasonPurchaseRedeem:
		return "spent on purchase"
	case model.ReasonPurchaseEarn:
		return "earned on purchase"
	case model.ReasonReferralBonus:
		return "referral bonus"
	case model.ReasonAdminAdjust:
		return "adjustment"
	default:
		return reason
	}
}

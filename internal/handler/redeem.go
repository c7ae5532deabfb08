package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"loyalty-bot/internal/loyalty"
	"loyalty-bot/internal/qr"
	"loyalty-bot/internal/service"
)

// RedeemHandler handles QR redemption at the point of sale.
type RedeemHandler struct {
	redemptionService *service.RedemptionService
}

// NewRedeemHandler creates a new RedeemHandler.
func NewRedeemHandler(redemptionService *service.RedemptionService) *RedeemHandler {
	return &RedeemHandler{redemptionService: redemptionService}
}

// HandleRedeem handles /redeem <code> <place_id> <amount> [points].
// The optional points argument caps how many points to spend; without it
// the engine spends as many as the bill allows.
func (h *RedeemHandler) HandleRedeem(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 3 {
		return c.Reply("Usage: /redeem <code> <place_id> <amount> [points]")
	}

	token := args[0]

	placeID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || placeID <= 0 {
		return c.Reply("❌ Invalid place id")
	}

	amount, err := strconv.ParseFloat(args[2], 64)
	if err != nil || amount <= 0 {
		return c.Reply("❌ Invalid purchase amount")
	}

	var pointsToSpend *int64
	if len(args) >= 4 {
		points, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil || points < 0 {
			return c.Reply("❌ Invalid points amount")
		}
		pointsToSpend = &points
	}

	var loc *service.ScanLocation
	if msg := c.Message(); msg != nil && msg.Location != nil {
		loc = &service.ScanLocation{
			Latitude:  float64(msg.Location.Lat),
			Longitude: float64(msg.Location.Lng),
		}
	}

	purchase, err := h.redemptionService.ProcessRedemption(ctx, token, sender.ID, placeID, amount, pointsToSpend, loc)
	if err != nil {
		return c.Reply(redemptionErrorMessage(err))
	}

	msg := "✅ Purchase redeemed!\n"
	msg += "━━━━━━━━━━━━━━━\n"
	msg += fmt.Sprintf("🧾 Bill: %.0f\n", purchase.AmountGross)
	msg += fmt.Sprintf("🏷 Base discount: %.1f%%\n", purchase.BaseDiscountPct)
	if purchase.PointsSpent > 0 {
		msg += fmt.Sprintf("💎 Points spent: %d (worth %.0f)\n", purchase.PointsSpent, purchase.ExtraValue)
	}
	msg += fmt.Sprintf("💳 You pay: %.0f\n", purchase.FinalUserPrice)
	if purchase.PointsEarned > 0 {
		msg += fmt.Sprintf("✨ Points earned: %d\n", purchase.PointsEarned)
	}
	msg += "━━━━━━━━━━━━━━━"

	return c.Reply(msg)
}

// redemptionErrorMessage maps the redemption error taxonomy to user-facing
// replies. Every rejection reason gets its own message so staff at the till
// can tell a stale code from a fraud stop.
func redemptionErrorMessage(err error) string {
	var rejected *qr.RejectedError
	if errors.As(err, &rejected) {
		switch rejected.Reason {
		case qr.ReasonExpired:
			return "⏰ This code has expired. Ask for a fresh one."
		case qr.ReasonAlreadyRedeemed:
			return "🔁 This code was already redeemed."
		case qr.ReasonScanLimit:
			return "🚫 This code has reached its scan limit."
		case qr.ReasonFraud:
			return "🛑 This scan was declined and flagged for review."
		default:
			return "❌ This code is not valid."
		}
	}

	switch {
	case errors.Is(err, loyalty.ErrInsufficientBalance):
		return "💸 Not enough points for that."
	case errors.Is(err, loyalty.ErrInvalidAmount):
		return "❌ Invalid purchase amount."
	case errors.Is(err, loyalty.ErrConfigUnavailable):
		return "⚠️ Loyalty program is temporarily unavailable, please try again later."
	case errors.Is(err, loyalty.ErrNotFound):
		return "❌ Unknown user or venue."
	default:
		return "❌ Redemption failed, please try again later."
	}
}

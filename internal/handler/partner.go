package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"loyalty-bot/internal/model"
	"loyalty-bot/internal/service"
)

// PartnerHandler handles venue management and QR issuance. All of its
// commands sit behind the admin middleware.
type PartnerHandler struct {
	partnerService  *service.PartnerService
	issuanceService *service.IssuanceService
}

// NewPartnerHandler creates a new PartnerHandler.
func NewPartnerHandler(partnerService *service.PartnerService, issuanceService *service.IssuanceService) *PartnerHandler {
	return &PartnerHandler{
		partnerService:  partnerService,
		issuanceService: issuanceService,
	}
}

// HandleAddPlace handles /add_place <partner_id> <base%> <accrual%> <cap%> <min_purchase> <name...>.
func (h *PartnerHandler) HandleAddPlace(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) < 6 {
		return c.Reply("Usage: /add_place <partner_id> <base%> <accrual%> <cap%> <min_purchase> <name>")
	}

	partnerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Invalid partner id")
	}

	var pcts [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(args[1+i], 64)
		if err != nil {
			return c.Reply("❌ Invalid number: " + args[1+i])
		}
		pcts[i] = v
	}

	place, err := h.partnerService.CreatePlace(ctx, &model.Place{
		PartnerID:       partnerID,
		Name:            strings.Join(args[5:], " "),
		BaseDiscountPct: pcts[0],
		AccrualPct:      pcts[1],
		MaxPctPerBill:   pcts[2],
		MinPurchase:     pcts[3],
	})
	if err != nil {
		return c.Reply("❌ Failed to register the venue: " + err.Error())
	}

	return c.Reply(fmt.Sprintf("✅ Venue #%d \"%s\" registered", place.ID, place.Name))
}

// HandlePlaces handles /places <partner_id>.
func (h *PartnerHandler) HandlePlaces(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("Usage: /places <partner_id>")
	}
	partnerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Invalid partner id")
	}

	places, err := h.partnerService.ListPlaces(ctx, partnerID)
	if err != nil {
		return c.Reply("❌ Failed to load venues")
	}
	if len(places) == 0 {
		return c.Reply("📍 No venues for this partner")
	}

	msg := "📍 Venues\n━━━━━━━━━━━━━━━\n"
	for _, p := range places {
		msg += fmt.Sprintf("#%d %s: base %.1f%%, accrual %.1f%%, cap %.1f%%\n",
			p.ID, p.Name, p.BaseDiscountPct, p.AccrualPct, p.MaxPctPerBill)
	}
	return c.Reply(msg)
}

// HandleIssueQR handles /issue_qr <place_id> [ttl_minutes] [max_scans] and
// replies with the rendered QR image.
func (h *PartnerHandler) HandleIssueQR(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("Usage: /issue_qr <place_id> [ttl_minutes] [max_scans]")
	}

	placeID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Invalid place id")
	}

	var ttl time.Duration
	if len(args) >= 2 {
		minutes, err := strconv.Atoi(args[1])
		if err != nil || minutes <= 0 {
			return c.Reply("❌ Invalid TTL")
		}
		ttl = time.Duration(minutes) * time.Minute
	}

	maxScans := 1
	if len(args) >= 3 {
		maxScans, err = strconv.Atoi(args[2])
		if err != nil || maxScans < 1 {
			return c.Reply("❌ Invalid scan limit")
		}
	}

	issued, err := h.issuanceService.IssueQRCode(ctx, placeID, ttl, maxScans)
	if err != nil {
		return c.Reply("❌ Failed to issue a code: " + err.Error())
	}

	png, err := base64.StdEncoding.DecodeString(issued.ImagePNG)
	if err != nil {
		return c.Reply("❌ Failed to render the code image")
	}

	photo := &tele.Photo{
		File: tele.FromReader(bytes.NewReader(png)),
		Caption: fmt.Sprintf("🎫 Code %s for venue #%d\nvalid until %s, %d scan(s)",
			issued.Code.CodeID, placeID,
			issued.Code.ExpiresAt.Format("Jan 2 15:04"), issued.Code.MaxScans),
	}
	return c.Reply(photo)
}

// HandlePurchases handles /purchases <place_id>: the last 10 redemptions
// with the partner settlement amounts.
func (h *PartnerHandler) HandlePurchases(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("Usage: /purchases <place_id>")
	}
	placeID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Invalid place id")
	}

	purchases, err := h.partnerService.ListPurchases(ctx, placeID, 10)
	if err != nil {
		return c.Reply("❌ Failed to load purchases")
	}
	if len(purchases) == 0 {
		return c.Reply("🧾 No redemptions at this venue yet")
	}

	var total float64
	msg := "🧾 Recent redemptions\n━━━━━━━━━━━━━━━\n"
	for _, p := range purchases {
		msg += fmt.Sprintf("#%d bill %.0f → due %.0f (%s)\n",
			p.ID, p.AmountGross, p.AmountPartnerDue, p.CreatedAt.Format("Jan 2 15:04"))
		total += p.AmountPartnerDue
	}
	msg += "━━━━━━━━━━━━━━━\n"
	msg += fmt.Sprintf("Σ due to partner: %.0f", total)

	return c.Reply(msg)
}

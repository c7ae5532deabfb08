package qr

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"loyalty-bot/internal/config"
)

// ScanContext carries the signals the fraud scorer works from.
type ScanContext struct {
	UserID     int64
	AccountAge time.Duration
	// DistanceKm is the distance between the scan location and the place's
	// registered location, when both are known.
	DistanceKm *float64
}

// FraudScorer computes a fraud score for a scan from scan velocity, account
// age and geolocation deviation. Velocity counters live in Redis with a
// sliding TTL window.
type FraudScorer struct {
	rdb *redis.Client
	cfg config.FraudConfig
}

// NewFraudScorer creates a FraudScorer.
func NewFraudScorer(rdb *redis.Client, cfg config.FraudConfig) *FraudScorer {
	return &FraudScorer{rdb: rdb, cfg: cfg}
}

// Threshold returns the configured rejection threshold.
func (s *FraudScorer) Threshold() float64 {
	return s.cfg.Threshold
}

// Score computes the fraud score for one scan. Each call counts as a scan
// for velocity purposes.
func (s *FraudScorer) Score(ctx context.Context, scan ScanContext) (float64, error) {
	key := fmt.Sprintf("fraud:velocity:%d", scan.UserID)

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump scan velocity: %w", err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, s.cfg.VelocityWindow).Err(); err != nil {
			return 0, fmt.Errorf("failed to set velocity window: %w", err)
		}
	}

	// The first scan in a window is free; every extra one adds weight.
	score := float64(n-1) * s.cfg.VelocityWeight

	if scan.AccountAge < s.cfg.MinAccountAge {
		score += s.cfg.AccountAgeWeight
	}

	if scan.DistanceKm != nil && *scan.DistanceKm > s.cfg.GeoRadiusKm {
		score += s.cfg.GeoWeight
	}

	return score, nil
}

const earthRadiusKm = 6371

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

package qr

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-bot/internal/config"
)

func fraudConfig() config.FraudConfig {
	return config.FraudConfig{
		Threshold:        100,
		VelocityWindow:   10 * time.Minute,
		VelocityWeight:   15,
		AccountAgeWeight: 40,
		MinAccountAge:    24 * time.Hour,
		GeoWeight:        60,
		GeoRadiusKm:      5,
	}
}

func TestFraudScore_FirstScanOldAccount(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	scorer := NewFraudScorer(rdb, fraudConfig())

	mock.ExpectIncr("fraud:velocity:42").SetVal(1)
	mock.ExpectExpire("fraud:velocity:42", 10*time.Minute).SetVal(true)

	score, err := scorer.Score(context.Background(), ScanContext{
		UserID:     42,
		AccountAge: 48 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(0), score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFraudScore_Velocity(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	scorer := NewFraudScorer(rdb, fraudConfig())

	// Fifth scan in the window: four extras at 15 points each.
	mock.ExpectIncr("fraud:velocity:42").SetVal(5)

	score, err := scorer.Score(context.Background(), ScanContext{
		UserID:     42,
		AccountAge: 48 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(60), score)
}

func TestFraudScore_YoungAccountAndGeo(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	scorer := NewFraudScorer(rdb, fraudConfig())

	mock.ExpectIncr("fraud:velocity:7").SetVal(1)
	mock.ExpectExpire("fraud:velocity:7", 10*time.Minute).SetVal(true)

	far := 12.5
	score, err := scorer.Score(context.Background(), ScanContext{
		UserID:     7,
		AccountAge: time.Hour,
		DistanceKm: &far,
	})
	require.NoError(t, err)
	// 40 for the young account + 60 for the geo deviation.
	assert.Equal(t, float64(100), score)
}

func TestFraudScore_GeoWithinRadius(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	scorer := NewFraudScorer(rdb, fraudConfig())

	mock.ExpectIncr("fraud:velocity:7").SetVal(1)
	mock.ExpectExpire("fraud:velocity:7", 10*time.Minute).SetVal(true)

	near := 1.2
	score, err := scorer.Score(context.Background(), ScanContext{
		UserID:     7,
		AccountAge: 48 * time.Hour,
		DistanceKm: &near,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(0), score)
}

func TestHaversineKm(t *testing.T) {
	// Same point.
	assert.InDelta(t, 0, HaversineKm(41.3, 69.2, 41.3, 69.2), 1e-9)

	// One degree of latitude is roughly 111 km.
	d := HaversineKm(41.0, 69.0, 42.0, 69.0)
	assert.InDelta(t, 111, d, 1)
}

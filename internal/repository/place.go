package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-bot/internal/model"
)

var (
	ErrPlaceNotFound = errors.New("place not found")
)

const placeColumns = "id, partner_id, name, base_discount_pct, loyalty_accrual_pct, max_percent_per_bill, min_purchase, latitude, longitude, created_at"

// PlaceRepository handles partner venue persistence. Places are created and
// edited by partner tooling; the engine only reads them.
type PlaceRepository struct {
	db Querier
}

// NewPlaceRepository creates a new PlaceRepository instance.
func NewPlaceRepository(pool *pgxpool.Pool) *PlaceRepository {
	return &PlaceRepository{db: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PlaceRepository) WithTx(tx pgx.Tx) *PlaceRepository {
	return &PlaceRepository{db: tx}
}

func scanPlace(row pgx.Row) (*model.Place, error) {
	var place model.Place
	err := row.Scan(
		&place.ID,
		&place.PartnerID,
		&place.Name,
		&place.BaseDiscountPct,
		&place.AccrualPct,
		&place.MaxPctPerBill,
		&place.MinPurchase,
		&place.Latitude,
		&place.Longitude,
		&place.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &place, nil
}

// Create inserts a new place.
func (r *PlaceRepository) Create(ctx context.Context, place *model.Place) (*model.Place, error) {
	const query = `
		INSERT INTO places (partner_id, name, base_discount_pct, loyalty_accrual_pct, max_percent_per_bill, min_purchase, latitude, longitude, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING ` + placeColumns

	created, err := scanPlace(r.db.QueryRow(ctx, query,
		place.PartnerID,
		place.Name,
		place.BaseDiscountPct,
		place.AccrualPct,
		place.MaxPctPerBill,
		place.MinPurchase,
		place.Latitude,
		place.Longitude,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create place: %w", err)
	}
	return created, nil
}

// GetByID retrieves a place by ID. Returns ErrPlaceNotFound if missing.
func (r *PlaceRepository) GetByID(ctx context.Context, id int64) (*model.Place, error) {
	const query = `SELECT ` + placeColumns + ` FROM places WHERE id = $1`

	place, err := scanPlace(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlaceNotFound
		}
		return nil, fmt.Errorf("failed to get place: %w", err)
	}
	return place, nil
}

// ListByPartner retrieves all places owned by a partner.
func (r *PlaceRepository) ListByPartner(ctx context.Context, partnerID int64) ([]*model.Place, error) {
	const query = `SELECT ` + placeColumns + ` FROM places WHERE partner_id = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list places: %w", err)
	}
	defer rows.Close()

	var places []*model.Place
	for rows.Next() {
		place, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		places = append(places, place)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating places: %w", err)
	}
	return places, nil
}

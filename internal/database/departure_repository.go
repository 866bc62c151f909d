package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// DepartureRepository is the Postgres seat ledger
type DepartureRepository struct {
	db DB
}

// NewDepartureRepository creates a new departure repository
func NewDepartureRepository(db DB) *DepartureRepository {
	return &DepartureRepository{db: db}
}

// GetDeparture loads a departure with its tour name and image
func (r *DepartureRepository) GetDeparture(ctx context.Context, tourID uuid.UUID, date string) (*models.Departure, error) {
	var d models.Departure
	query := `
		SELECT d.id, d.tour_id, t.name AS tour_name, t.image_url AS tour_image,
		       d.departure_date, d.price_adult, d.price_child,
		       d.seats_total, d.seats_left, d.status, d.created_at, d.updated_at
		FROM departures d
		JOIN tours t ON t.id = d.tour_id
		WHERE d.tour_id = $1 AND d.departure_date = $2::date`

	err := r.db.GetContext(ctx, &d, query, tourID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrDepartureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get departure: %w", err)
	}
	return &d, nil
}

// AdjustSeats applies a signed delta in one guarded statement. When the guard
// rejects the change the current counter is read back for error reporting.
func (r *DepartureRepository) AdjustSeats(ctx context.Context, tourID uuid.UUID, date string, delta int) (int, bool, error) {
	query := `
		UPDATE departures
		SET seats_left = seats_left + $3, updated_at = NOW()
		WHERE tour_id = $1 AND departure_date = $2::date
		  AND seats_left + $3 >= 0
		  AND seats_left + $3 <= seats_total
		RETURNING seats_left`

	var left int
	err := r.db.QueryRowxContext(ctx, query, tourID, date, delta).Scan(&left)
	if err == nil {
		return left, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to adjust seats: %w", err)
	}

	err = r.db.GetContext(ctx, &left,
		`SELECT seats_left FROM departures WHERE tour_id = $1 AND departure_date = $2::date`,
		tourID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, models.ErrDepartureNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read seats: %w", err)
	}
	return left, false, nil
}

// UpsertDeparture creates or updates a tour and one of its departures.
// seats_left is only set on insert; later calls never overwrite the counter.
func (r *DepartureRepository) UpsertDeparture(ctx context.Context, d *models.Departure) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tours (id, name, image_url) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, image_url = EXCLUDED.image_url`,
		d.TourID, d.TourName, d.TourImage)
	if err != nil {
		return fmt.Errorf("failed to upsert tour: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO departures (id, tour_id, departure_date, price_adult, price_child, seats_total, seats_left, status)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
		ON CONFLICT (tour_id, departure_date) DO UPDATE
		SET price_adult = EXCLUDED.price_adult, price_child = EXCLUDED.price_child,
		    status = EXCLUDED.status, updated_at = NOW()`,
		d.ID, d.TourID, d.DateKey(), d.PriceAdult, d.PriceChild, d.SeatsTotal, d.SeatsLeft, d.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert departure: %w", err)
	}
	return nil
}

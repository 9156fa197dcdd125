package store

import (
	"context"
	"fmt"

	"bus-booking-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Standard coach layout: 12 rows of 4 seats, A|B aisle C|D.
const (
	LayoutRows        = 12
	LayoutSeatsPerRow = 4
	LayoutTotalSeats  = LayoutRows * LayoutSeatsPerRow
)

// layoutPositions maps each position in a row to its seat type.
// A and D are window seats, B and C sit on the aisle.
var layoutPositions = []struct {
	Position string
	SeatType string
}{
	{models.PositionA, models.SeatTypeWindow},
	{models.PositionB, models.SeatTypeAisle},
	{models.PositionC, models.SeatTypeAisle},
	{models.PositionD, models.SeatTypeWindow},
}

// EnsureSeatsExist provisions the standard layout for a route that has
// no seats yet. Idempotent: existing seats are never touched, and the
// unique (route_id, seat_number) constraint backstops concurrent calls.
func (s *Store) EnsureSeatsExist(ctx context.Context, routeID uuid.UUID) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM seats WHERE route_id = $1", routeID); err != nil {
		return 0, fmt.Errorf("failed to count seats: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	created := 0
	for row := 1; row <= LayoutRows; row++ {
		for _, pos := range layoutPositions {
			result, err := tx.ExecContext(ctx,
				`INSERT INTO seats (id, route_id, seat_number, seat_type, row_number, position, is_available, price_modifier)
				 VALUES ($1, $2, $3, $4, $5, $6, true, 0)
				 ON CONFLICT (route_id, seat_number) DO NOTHING`,
				uuid.New(), routeID, fmt.Sprintf("%d%s", row, pos.Position),
				pos.SeatType, row, pos.Position)
			if err != nil {
				return 0, fmt.Errorf("failed to create seat %d%s: %w", row, pos.Position, err)
			}

			// ON CONFLICT skips rows a concurrent provisioner already
			// wrote; only count rows this call inserted.
			affected, err := result.RowsAffected()
			if err != nil {
				return 0, err
			}
			created += int(affected)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// GetSeatsByRoute retrieves all seats for a route ordered by row then position
func (s *Store) GetSeatsByRoute(ctx context.Context, routeID uuid.UUID) ([]models.Seat, error) {
	var seats []models.Seat
	err := s.db.SelectContext(ctx, &seats,
		`SELECT id, route_id, seat_number, seat_type, row_number, position, is_available, price_modifier, created_at, updated_at
		 FROM seats WHERE route_id = $1 ORDER BY row_number, position`, routeID)
	return seats, err
}

// GetAvailableSeats retrieves only available seats for a route
func (s *Store) GetAvailableSeats(ctx context.Context, routeID uuid.UUID) ([]models.Seat, error) {
	var seats []models.Seat
	err := s.db.SelectContext(ctx, &seats,
		`SELECT id, route_id, seat_number, seat_type, row_number, position, is_available, price_modifier, created_at, updated_at
		 FROM seats WHERE route_id = $1 AND is_available = true ORDER BY row_number, position`, routeID)
	return seats, err
}

// GetSeatsByIDs retrieves seats by id set
func (s *Store) GetSeatsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Seat, error) {
	if len(ids) == 0 {
		return []models.Seat{}, nil
	}

	query, args, err := sqlx.In(
		`SELECT id, route_id, seat_number, seat_type, row_number, position, is_available, price_modifier, created_at, updated_at
		 FROM seats WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var seats []models.Seat
	err = s.db.SelectContext(ctx, &seats, query, args...)
	return seats, err
}

// CheckSeatsAvailable reports whether every seat in the set is
// currently available. Unknown ids count as unavailable.
func (s *Store) CheckSeatsAvailable(ctx context.Context, ids []uuid.UUID) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}

	query, args, err := sqlx.In(
		"SELECT COUNT(*) FROM seats WHERE id IN (?) AND is_available = true", ids)
	if err != nil {
		return false, err
	}
	query = s.db.Rebind(query)

	var available int
	if err := s.db.GetContext(ctx, &available, query, args...); err != nil {
		return false, err
	}
	return available == len(ids), nil
}

// ReserveSeatsTx atomically reserves a seat set for a booking: a single
// conditional update flips availability only where it is still true, and
// the affected-row count decides the race. Booking-seat rows are created
// in the same transaction, so a lost race leaves no partial state.
func (s *Store) ReserveSeatsTx(ctx context.Context, bookingID uuid.UUID, seatIDs []uuid.UUID, passengers []models.PassengerInfo) error {
	if len(seatIDs) == 0 {
		return models.NewValidationError("seats", "no seats selected")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query, args, err := sqlx.In(
		"UPDATE seats SET is_available = false, updated_at = NOW() WHERE id IN (?) AND is_available = true", seatIDs)
	if err != nil {
		return fmt.Errorf("failed to build reserve query: %w", err)
	}
	query = tx.Rebind(query)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to reserve seats: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if int(affected) != len(seatIDs) {
		// Rollback via defer restores the seats we did flip.
		return models.ErrSeatUnavailable
	}

	for i, seatID := range seatIDs {
		var name, document *string
		if i < len(passengers) {
			if passengers[i].Name != "" {
				n := passengers[i].Name
				name = &n
			}
			if passengers[i].Document != "" {
				d := passengers[i].Document
				document = &d
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO booking_seats (id, booking_id, seat_id, passenger_name, passenger_document)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), bookingID, seatID, name, document)
		if err != nil {
			return fmt.Errorf("failed to create booking seat: %w", err)
		}
	}

	return tx.Commit()
}

// ReleaseSeatsByBooking deletes the booking's seat links and flips the
// seats back to available, in one transaction. Safe to retry: both
// statements are no-ops once the links are gone.
func (s *Store) ReleaseSeatsByBooking(ctx context.Context, bookingID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE seats SET is_available = true, updated_at = NOW()
		 WHERE id IN (SELECT seat_id FROM booking_seats WHERE booking_id = $1)`, bookingID)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM booking_seats WHERE booking_id = $1", bookingID)
	if err != nil {
		return fmt.Errorf("failed to delete booking seats: %w", err)
	}

	return tx.Commit()
}

// GetBookingSeats retrieves the seat links for a booking joined with
// the seat rows
func (s *Store) GetBookingSeats(ctx context.Context, bookingID uuid.UUID) ([]models.BookingSeat, error) {
	var seats []models.BookingSeat
	err := s.db.SelectContext(ctx, &seats,
		`SELECT id, booking_id, seat_id, passenger_name, passenger_document, created_at
		 FROM booking_seats WHERE booking_id = $1`, bookingID)
	return seats, err
}

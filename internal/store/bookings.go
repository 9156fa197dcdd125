package store

import (
	"context"
	"database/sql"
	"fmt"

	"bus-booking-service/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CreateBooking inserts a booking row with payment_status pending
func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (id, user_id, route_id, seat_numbers, total_price, payment_method, payment_status, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}

	return s.db.QueryRowxContext(ctx, query,
		booking.ID, booking.UserID, booking.RouteID, pq.Array([]string(booking.SeatNumbers)),
		booking.TotalPrice, booking.PaymentMethod, booking.PaymentStatus, booking.Status,
		booking.IdempotencyKey).
		Scan(&booking.CreatedAt, &booking.UpdatedAt)
}

// GetBookingByID retrieves a booking by ID
func (s *Store) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking,
		`SELECT id, user_id, route_id, seat_numbers, total_price, payment_method, payment_status, status, qr_code, idempotency_key, created_at, updated_at
		 FROM bookings WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingByIdempotencyKey retrieves a booking by idempotency key,
// or nil when none exists
func (s *Store) GetBookingByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking,
		`SELECT id, user_id, route_id, seat_numbers, total_price, payment_method, payment_status, status, qr_code, idempotency_key, created_at, updated_at
		 FROM bookings WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingsByUser retrieves a user's bookings joined with the route
// snapshot, newest first
func (s *Store) GetBookingsByUser(ctx context.Context, userID uuid.UUID) ([]models.BookingWithRoute, error) {
	var bookings []models.BookingWithRoute
	err := s.db.SelectContext(ctx, &bookings,
		`SELECT b.id, b.user_id, b.route_id, b.seat_numbers, b.total_price, b.payment_method, b.payment_status, b.status, b.qr_code, b.created_at, b.updated_at,
		        r.id AS "route.id", r.origin AS "route.origin", r.destination AS "route.destination",
		        r.price AS "route.price", r.bus_company AS "route.bus_company", r.bus_type AS "route.bus_type",
		        r.departure AS "route.departure", r.arrival AS "route.arrival"
		 FROM bookings b
		 JOIN routes r ON r.id = b.route_id
		 WHERE b.user_id = $1
		 ORDER BY b.created_at DESC`, userID)
	return bookings, err
}

// UpdateBookingStatus updates the booking lifecycle status
func (s *Store) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2",
		status, bookingID)
	return err
}

// UpdateBookingPayment sets the booking payment status and QR payload
func (s *Store) UpdateBookingPayment(ctx context.Context, bookingID uuid.UUID, paymentStatus string, qrCode *string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET payment_status = $1, qr_code = $2, updated_at = NOW() WHERE id = $3",
		paymentStatus, qrCode, bookingID)
	return err
}

// DeleteBooking removes a booking row. Used only by saga compensation;
// user-facing cancellation keeps the row and flips status.
func (s *Store) DeleteBooking(ctx context.Context, bookingID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM bookings WHERE id = $1", bookingID)
	return err
}

// GetBookingStats returns the aggregate booking rollup
func (s *Store) GetBookingStats(ctx context.Context) (*models.BookingStats, error) {
	var stats models.BookingStats
	err := s.db.GetContext(ctx, &stats,
		`SELECT COUNT(*) AS total_bookings,
		        COUNT(*) FILTER (WHERE payment_status = 'completed') AS completed_bookings,
		        COALESCE(SUM(total_price) FILTER (WHERE payment_status = 'completed'), 0) AS total_revenue
		 FROM bookings`)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// CreatePayment creates a payment-intent record for a booking
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (id, booking_id, amount, method, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	return s.db.QueryRowxContext(ctx, query,
		payment.ID, payment.BookingID, payment.Amount, payment.Method, payment.Status).
		Scan(&payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentByBooking retrieves the latest payment intent for a booking
func (s *Store) GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		`SELECT id, booking_id, amount, method, status, transaction_id, created_at, updated_at
		 FROM payments WHERE booking_id = $1 ORDER BY created_at DESC LIMIT 1`, bookingID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment not found for booking: %s", bookingID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatusByBooking updates the payment record status and
// transaction id for a booking
func (s *Store) UpdatePaymentStatusByBooking(ctx context.Context, bookingID uuid.UUID, status string, transactionID *string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, transaction_id = $2, updated_at = NOW() WHERE booking_id = $3",
		status, transactionID, bookingID)
	return err
}

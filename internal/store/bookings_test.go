package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"bus-booking-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_AssignsIDAndTimestamps(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	booking := &models.Booking{
		UserID:        uuid.New(),
		RouteID:       uuid.New(),
		SeatNumbers:   []string{"1A", "1B"},
		TotalPrice:    179.80,
		PaymentMethod: models.PaymentMethodPix,
		PaymentStatus: models.PaymentStatusPending,
		Status:        models.BookingStatusActive,
	}

	err := s.CreateBooking(context.Background(), booking)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, booking.ID)
	assert.Equal(t, now, booking.CreatedAt)
}

func TestGetBookingByID_NotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WillReturnError(sql.ErrNoRows)

	booking, err := s.GetBookingByID(context.Background(), uuid.New())
	assert.Nil(t, booking)
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestGetBookingByIdempotencyKey_MissReturnsNil(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE user_id").
		WillReturnError(sql.ErrNoRows)

	booking, err := s.GetBookingByIdempotencyKey(context.Background(), uuid.New(), "key-1")
	require.NoError(t, err)
	assert.Nil(t, booking)
}

func TestGetBookingStats(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"total_bookings", "completed_bookings", "total_revenue"}).
			AddRow(10, 7, 1253.40))

	stats, err := s.GetBookingStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalBookings)
	assert.Equal(t, 7, stats.CompletedBookings)
	assert.InDelta(t, 1253.40, stats.TotalRevenue, 0.001)
}

func TestUpdateBookingPayment(t *testing.T) {
	s, mock := newTestStore(t)

	bookingID := uuid.New()
	qr := "AG-TUR-" + bookingID.String() + "-1700000000000"

	mock.ExpectExec("UPDATE bookings SET payment_status").
		WithArgs(models.PaymentStatusCompleted, qr, bookingID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateBookingPayment(context.Background(), bookingID, models.PaymentStatusCompleted, &qr)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bus-booking-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookingSvc(t *testing.T, paymentsEnabled bool) (*BookingService, sqlmock.Sqlmock) {
	t.Helper()

	s, mock := newMockStore(t, paymentsEnabled)
	seats := NewSeatService(s, nil, 5*time.Minute)
	coupons := NewCouponService(s, false)
	payments := NewPaymentService(s, nil)
	return NewBookingService(s, seats, coupons, payments, nil, nil), mock
}

var seatColumns = []string{
	"id", "route_id", "seat_number", "seat_type", "row_number", "position",
	"is_available", "price_modifier", "created_at", "updated_at",
}

func seatRows(routeID uuid.UUID, seatIDs []uuid.UUID, numbers []string) *sqlmock.Rows {
	rows := sqlmock.NewRows(seatColumns)
	now := time.Now()
	for i, id := range seatIDs {
		rows.AddRow(id, routeID, numbers[i], models.SeatTypeWindow, i+1, models.PositionA,
			true, 0.0, now, now)
	}
	return rows
}

func expectRoute(mock sqlmock.Sqlmock, routeID uuid.UUID, price float64) {
	mock.ExpectQuery("SELECT id, origin, destination").
		WithArgs(routeID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "origin", "destination", "price", "bus_company", "bus_type", "departure", "arrival", "amenities",
		}).AddRow(routeID, "Sao Paulo", "Rio de Janeiro", price, "AG Turismo", "executivo",
			time.Now(), time.Now().Add(6*time.Hour), "{wifi,ac}"))
}

// expectLeg wires the full happy path for one leg: availability gate,
// seat lookup, booking insert, reservation transaction, payment intent.
func expectLeg(mock sqlmock.Sqlmock, routeID uuid.UUID, seatIDs []uuid.UUID, numbers []string, paymentsEnabled bool) {
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM seats`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(len(seatIDs)))
	mock.ExpectQuery("SELECT id, route_id, seat_number").
		WillReturnRows(seatRows(routeID, seatIDs, numbers))
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET is_available = false").
		WillReturnResult(sqlmock.NewResult(0, int64(len(seatIDs))))
	for range seatIDs {
		mock.ExpectExec("INSERT INTO booking_seats").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if paymentsEnabled {
		mock.ExpectQuery("INSERT INTO payments").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	}
}

func validRequest(routeID uuid.UUID, seatIDs []uuid.UUID) *CreateBookingRequest {
	passengers := make([]models.PassengerInfo, len(seatIDs))
	for i := range passengers {
		passengers[i] = models.PassengerInfo{Name: "Ana Souza", Document: "12345678900"}
	}
	return &CreateBookingRequest{
		RouteID:       routeID,
		SeatIDs:       seatIDs,
		TotalPrice:    179.80,
		PaymentMethod: models.PaymentMethodPix,
		Passengers:    passengers,
	}
}

func TestCreateBooking_Success(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	routeID := uuid.New()
	seatIDs := []uuid.UUID{uuid.New(), uuid.New()}
	expectLeg(mock, routeID, seatIDs, []string{"1A", "1B"}, true)

	booking, err := svc.CreateBooking(context.Background(), uuid.New(), validRequest(routeID, seatIDs))
	require.NoError(t, err)
	assert.Equal(t, []string{"1A", "1B"}, []string(booking.SeatNumbers))
	assert.Equal(t, models.BookingStatusActive, booking.Status)
	assert.Equal(t, models.PaymentStatusPending, booking.PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_RequiresAuth(t *testing.T) {
	svc, _ := newBookingSvc(t, true)

	_, err := svc.CreateBooking(context.Background(), uuid.Nil, validRequest(uuid.New(), []uuid.UUID{uuid.New()}))
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestCreateBooking_ValidationBeforeAnyWrite(t *testing.T) {
	svc, mock := newBookingSvc(t, true)
	routeID := uuid.New()
	seatIDs := []uuid.UUID{uuid.New(), uuid.New()}

	t.Run("passenger count mismatch", func(t *testing.T) {
		req := validRequest(routeID, seatIDs)
		req.Passengers = req.Passengers[:1]
		_, err := svc.CreateBooking(context.Background(), uuid.New(), req)
		assert.True(t, models.IsValidationError(err))
	})

	t.Run("missing passenger document", func(t *testing.T) {
		req := validRequest(routeID, seatIDs)
		req.Passengers[0].Document = ""
		_, err := svc.CreateBooking(context.Background(), uuid.New(), req)
		assert.True(t, models.IsValidationError(err))
	})

	t.Run("unknown payment method", func(t *testing.T) {
		req := validRequest(routeID, seatIDs)
		req.PaymentMethod = "barter"
		_, err := svc.CreateBooking(context.Background(), uuid.New(), req)
		assert.True(t, models.IsValidationError(err))
	})

	t.Run("non-positive total", func(t *testing.T) {
		req := validRequest(routeID, seatIDs)
		req.TotalPrice = 0
		_, err := svc.CreateBooking(context.Background(), uuid.New(), req)
		assert.True(t, models.IsValidationError(err))
	})

	// None of the rejected requests may have touched the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_AvailabilityGate(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	seatIDs := []uuid.UUID{uuid.New(), uuid.New()}
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM seats`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := svc.CreateBooking(context.Background(), uuid.New(), validRequest(uuid.New(), seatIDs))
	assert.ErrorIs(t, err, models.ErrSeatUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_LostReservationDeletesBooking(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	routeID := uuid.New()
	seatIDs := []uuid.UUID{uuid.New(), uuid.New()}
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM seats`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT id, route_id, seat_number").
		WillReturnRows(seatRows(routeID, seatIDs, []string{"1A", "1B"}))
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	// A concurrent booking wins one seat between the gate and the
	// conditional update.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET is_available = false").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	mock.ExpectExec("DELETE FROM bookings").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.CreateBooking(context.Background(), uuid.New(), validRequest(routeID, seatIDs))
	assert.ErrorIs(t, err, models.ErrSeatUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_PaymentIntentFailureReleasesThenDeletes(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	routeID := uuid.New()
	seatIDs := []uuid.UUID{uuid.New()}
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM seats`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, route_id, seat_number").
		WillReturnRows(seatRows(routeID, seatIDs, []string{"2C"}))
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET is_available = false").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO booking_seats").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("INSERT INTO payments").
		WillReturnError(errors.New("payments store down"))

	// Compensation order: seats back first, booking row second.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET is_available = true").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM booking_seats").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("DELETE FROM bookings").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.CreateBooking(context.Background(), uuid.New(), validRequest(routeID, seatIDs))

	var txErr *models.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "payment intent", txErr.Step)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_PaymentsTableMissing(t *testing.T) {
	svc, mock := newBookingSvc(t, false)

	routeID := uuid.New()
	seatIDs := []uuid.UUID{uuid.New()}
	expectLeg(mock, routeID, seatIDs, []string{"4B"}, false)

	booking, err := svc.CreateBooking(context.Background(), uuid.New(), validRequest(routeID, seatIDs))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, booking.PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_IdempotencyShortCircuit(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	userID := uuid.New()
	existingID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE user_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "route_id", "seat_numbers", "total_price", "payment_method",
			"payment_status", "status", "qr_code", "idempotency_key", "created_at", "updated_at",
		}).AddRow(existingID, userID, uuid.New(), "{1A}", 89.90, models.PaymentMethodPix,
			models.PaymentStatusPending, models.BookingStatusActive, nil, "req-42", now, now))

	req := validRequest(uuid.New(), []uuid.UUID{uuid.New()})
	req.IdempotencyKey = "req-42"

	booking, err := svc.CreateBooking(context.Background(), userID, req)
	require.NoError(t, err)
	assert.Equal(t, existingID, booking.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoundTrip_SplitsDiscountByFareShare(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	outRoute := uuid.New()
	retRoute := uuid.New()
	outSeats := []uuid.UUID{uuid.New()}
	retSeats := []uuid.UUID{uuid.New()}
	roundTrip := models.TripTypeRoundTrip

	expectRoute(mock, outRoute, 100)
	expectRoute(mock, retRoute, 60)

	// 20% of the 160 combined fare is 32, split 20/12 by fare share.
	mock.ExpectQuery("SELECT (.+) FROM coupons WHERE code").
		WithArgs("AG20").
		WillReturnRows(sqlmock.NewRows(couponColumns).
			AddRow(uuid.New(), "AG20", models.CouponTypePercent, 20.0, true,
				nil, nil, 0, nil, &roundTrip, time.Now()))

	expectLeg(mock, outRoute, outSeats, []string{"1A"}, true)
	expectLeg(mock, retRoute, retSeats, []string{"7D"}, true)

	mock.ExpectExec("INSERT INTO coupon_usages").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			160.0, 32.0, 128.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE coupons SET used_count").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.CreateRoundTrip(context.Background(), uuid.New(), &CreateRoundTripRequest{
		Outbound:      RoundTripLeg{RouteID: outRoute, SeatIDs: outSeats},
		Return:        RoundTripLeg{RouteID: retRoute, SeatIDs: retSeats},
		PaymentMethod: models.PaymentMethodPix,
		Passengers:    []models.PassengerInfo{{Name: "Ana Souza", Document: "12345678900"}},
		CouponCode:    "AG20",
	})
	require.NoError(t, err)
	assert.InDelta(t, 32.0, result.Discount, 0.001)
	assert.InDelta(t, 80.0, result.Outbound.TotalPrice, 0.001)
	assert.InDelta(t, 48.0, result.Return.TotalPrice, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoundTrip_ReplaySkipsCouponValidation(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	userID := uuid.New()
	outRoute := uuid.New()
	retRoute := uuid.New()
	outID := uuid.New()
	retID := uuid.New()
	now := time.Now()

	expectRoute(mock, outRoute, 100)
	expectRoute(mock, retRoute, 60)

	// A retry resolves from the stored legs before the coupon is
	// looked at, so a code that hit max_uses on the first call cannot
	// fail the replay. No coupon query is expected at all.
	bookingCols := []string{
		"id", "user_id", "route_id", "seat_numbers", "total_price", "payment_method",
		"payment_status", "status", "qr_code", "idempotency_key", "created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE user_id").
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow(outID, userID, outRoute, "{1A}", 80.0, models.PaymentMethodPix,
				models.PaymentStatusPending, models.BookingStatusActive, nil, "rt-7:outbound", now, now))
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE user_id").
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow(retID, userID, retRoute, "{7D}", 48.0, models.PaymentMethodPix,
				models.PaymentStatusPending, models.BookingStatusActive, nil, "rt-7:return", now, now))

	result, err := svc.CreateRoundTrip(context.Background(), userID, &CreateRoundTripRequest{
		Outbound:       RoundTripLeg{RouteID: outRoute, SeatIDs: []uuid.UUID{uuid.New()}},
		Return:         RoundTripLeg{RouteID: retRoute, SeatIDs: []uuid.UUID{uuid.New()}},
		PaymentMethod:  models.PaymentMethodPix,
		Passengers:     []models.PassengerInfo{{Name: "Ana Souza", Document: "12345678900"}},
		CouponCode:     "AG20",
		IdempotencyKey: "rt-7",
	})
	require.NoError(t, err)
	assert.Equal(t, outID, result.Outbound.ID)
	assert.Equal(t, retID, result.Return.ID)
	assert.InDelta(t, 32.0, result.Discount, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoundTrip_ReturnLegFailureCompensatesOutbound(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	outRoute := uuid.New()
	retRoute := uuid.New()
	outSeats := []uuid.UUID{uuid.New()}
	retSeats := []uuid.UUID{uuid.New()}

	expectRoute(mock, outRoute, 100)
	expectRoute(mock, retRoute, 60)

	expectLeg(mock, outRoute, outSeats, []string{"1A"}, true)

	// Return leg loses its seats at the gate.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM seats`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	// The committed outbound leg is rolled back: seats released, then
	// the booking row removed.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET is_available = true").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM booking_seats").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("DELETE FROM bookings").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.CreateRoundTrip(context.Background(), uuid.New(), &CreateRoundTripRequest{
		Outbound:      RoundTripLeg{RouteID: outRoute, SeatIDs: outSeats},
		Return:        RoundTripLeg{RouteID: retRoute, SeatIDs: retSeats},
		PaymentMethod: models.PaymentMethodPix,
		Passengers:    []models.PassengerInfo{{Name: "Ana Souza", Document: "12345678900"}},
	})

	var txErr *models.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "return leg", txErr.Step)
	assert.ErrorIs(t, err, models.ErrSeatUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelBooking_ReleasesSeatsBeforeStatusFlip(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	userID := uuid.New()
	bookingID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "route_id", "seat_numbers", "total_price", "payment_method",
			"payment_status", "status", "qr_code", "idempotency_key", "created_at", "updated_at",
		}).AddRow(bookingID, userID, uuid.New(), "{1A}", 89.90, models.PaymentMethodPix,
			models.PaymentStatusPending, models.BookingStatusActive, nil, nil, now, now))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET is_available = true").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM booking_seats").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(models.BookingStatusCancelled, bookingID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.CancelBooking(context.Background(), userID, bookingID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelBooking_AlreadyCancelled(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	userID := uuid.New()
	bookingID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "route_id", "seat_numbers", "total_price", "payment_method",
			"payment_status", "status", "qr_code", "idempotency_key", "created_at", "updated_at",
		}).AddRow(bookingID, userID, uuid.New(), "{1A}", 89.90, models.PaymentMethodPix,
			models.PaymentStatusPending, models.BookingStatusCancelled, nil, nil, now, now))

	err := svc.CancelBooking(context.Background(), userID, bookingID)
	assert.ErrorIs(t, err, models.ErrBookingCancelled)
}

func TestCancelBooking_OtherUsersBookingHidden(t *testing.T) {
	svc, mock := newBookingSvc(t, true)

	bookingID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "route_id", "seat_numbers", "total_price", "payment_method",
			"payment_status", "status", "qr_code", "idempotency_key", "created_at", "updated_at",
		}).AddRow(bookingID, uuid.New(), uuid.New(), "{1A}", 89.90, models.PaymentMethodPix,
			models.PaymentStatusPending, models.BookingStatusActive, nil, nil, now, now))

	err := svc.CancelBooking(context.Background(), uuid.New(), bookingID)
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

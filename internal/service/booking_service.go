package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bus-booking-service/internal/broker"
	"bus-booking-service/internal/models"
	"bus-booking-service/internal/redisclient"
	"bus-booking-service/internal/store"
	"bus-booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingService orchestrates the booking saga: seat validation,
// booking creation, seat reservation and payment-intent creation, with
// compensating actions on every failure path.
type BookingService struct {
	store          *store.Store
	seats          *SeatService
	coupons        *CouponService
	payments       *PaymentService
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	store *store.Store,
	seats *SeatService,
	coupons *CouponService,
	payments *PaymentService,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
) *BookingService {
	return &BookingService{
		store:          store,
		seats:          seats,
		coupons:        coupons,
		payments:       payments,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateBookingRequest is a single-leg booking request
type CreateBookingRequest struct {
	RouteID        uuid.UUID              `json:"route_id" binding:"required"`
	SeatIDs        []uuid.UUID            `json:"seat_ids" binding:"required,min=1"`
	TotalPrice     float64                `json:"total_price" binding:"required"`
	PaymentMethod  string                 `json:"payment_method" binding:"required"`
	Passengers     []models.PassengerInfo `json:"passengers"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

// RoundTripLeg is the seat selection for one leg of a round trip
type RoundTripLeg struct {
	RouteID uuid.UUID   `json:"route_id" binding:"required"`
	SeatIDs []uuid.UUID `json:"seat_ids" binding:"required,min=1"`
}

// CreateRoundTripRequest books an outbound and a return leg as one saga
type CreateRoundTripRequest struct {
	Outbound       RoundTripLeg           `json:"outbound" binding:"required"`
	Return         RoundTripLeg           `json:"return" binding:"required"`
	PaymentMethod  string                 `json:"payment_method" binding:"required"`
	Passengers     []models.PassengerInfo `json:"passengers"`
	CouponCode     string                 `json:"coupon_code,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

// RoundTripResult holds the two committed legs and the applied discount
type RoundTripResult struct {
	Outbound *models.Booking `json:"outbound"`
	Return   *models.Booking `json:"return"`
	Discount float64         `json:"discount"`
}

func validPaymentMethod(method string) bool {
	switch method {
	case models.PaymentMethodPix, models.PaymentMethodCredit, models.PaymentMethodDebit:
		return true
	}
	return false
}

// validateLeg surfaces malformed fields before any write happens
func validateLeg(routeID uuid.UUID, seatIDs []uuid.UUID, passengers []models.PassengerInfo, paymentMethod string) error {
	if routeID == uuid.Nil {
		return models.NewValidationError("route_id", "route is required")
	}
	if len(seatIDs) == 0 {
		return models.NewValidationError("seat_ids", "at least one seat is required")
	}
	if len(passengers) != len(seatIDs) {
		return models.NewValidationError("passengers",
			fmt.Sprintf("expected %d passengers for %d seats", len(seatIDs), len(seatIDs)))
	}
	for i, p := range passengers {
		if p.Name == "" {
			return models.NewValidationError("passengers", fmt.Sprintf("passenger %d is missing a name", i+1))
		}
		if p.Document == "" {
			return models.NewValidationError("passengers", fmt.Sprintf("passenger %d is missing a document", i+1))
		}
	}
	if !validPaymentMethod(paymentMethod) {
		return models.NewValidationError("payment_method", "must be one of pix, credit, debit")
	}
	return nil
}

// CreateBooking drives the single-leg saga:
//
//	SeatsValidated -> BookingCreated -> SeatsReserved -> PaymentIntentCreated -> Committed
//
// Failure at SeatsReserved deletes the booking row (seats were never
// flipped). A hard failure at PaymentIntentCreated releases the seats
// and then deletes the booking, in that order. The caller never sees a
// half-committed state.
func (s *BookingService) CreateBooking(ctx context.Context, userID uuid.UUID, req *CreateBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateBooking")
	defer span.End()

	if userID == uuid.Nil {
		return nil, models.ErrNotAuthenticated
	}
	if err := validateLeg(req.RouteID, req.SeatIDs, req.Passengers, req.PaymentMethod); err != nil {
		util.BookingsFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	if req.TotalPrice <= 0 {
		util.BookingsFailedTotal.WithLabelValues("validation").Inc()
		return nil, models.NewValidationError("total_price", "must be positive")
	}

	if req.IdempotencyKey != "" {
		if existing := s.replayFromCache(ctx, req.IdempotencyKey); existing != nil {
			return existing, nil
		}

		existing, err := s.store.GetBookingByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate booking request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("booking_id", existing.ID.String()))
			return existing, nil
		}
	}

	booking, err := s.createLeg(ctx, userID, req.RouteID, req.SeatIDs, req.TotalPrice, req.PaymentMethod, req.Passengers, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	util.BookingsCreatedTotal.Inc()
	return booking, nil
}

// replayFromCache resolves a replay through the redis idempotency
// cache, skipping the key lookup in the database. Any miss or error
// falls through to the authoritative database check.
func (s *BookingService) replayFromCache(ctx context.Context, key string) *models.Booking {
	if s.redis == nil {
		return nil
	}

	cached, err := s.redis.GetIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency cache unavailable", zap.Error(err))
		return nil
	}
	if cached == "" {
		return nil
	}

	bookingID, err := uuid.Parse(cached)
	if err != nil {
		return nil
	}
	booking, err := s.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil
	}

	s.logger.Info("Duplicate booking request resolved from cache",
		zap.String("idempotency_key", key),
		zap.String("booking_id", booking.ID.String()))
	return booking
}

// createLeg runs the saga for one leg. Compensation ordering is fixed:
// seats are released before the booking row is deleted, so seats are
// never left reserved against a missing booking.
func (s *BookingService) createLeg(
	ctx context.Context,
	userID, routeID uuid.UUID,
	seatIDs []uuid.UUID,
	totalPrice float64,
	paymentMethod string,
	passengers []models.PassengerInfo,
	idempotencyKey string,
) (*models.Booking, error) {
	unlock := s.lockRoute(ctx, routeID)
	defer unlock()

	// Pre-commit gate. The reservation transaction is the real guard;
	// this aborts cheaply before any write.
	available, err := s.seats.CheckAvailability(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check seat availability: %w", err)
	}
	if !available {
		util.BookingsFailedTotal.WithLabelValues("seats_unavailable").Inc()
		return nil, models.ErrSeatUnavailable
	}

	seatRows, err := s.store.GetSeatsByIDs(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load seats: %w", err)
	}
	if len(seatRows) != len(seatIDs) {
		return nil, models.NewValidationError("seat_ids", "one or more seats do not exist")
	}
	seatNumbers := make([]string, len(seatRows))
	for i, seat := range seatRows {
		if seat.RouteID != routeID {
			return nil, models.NewValidationError("seat_ids", "seat does not belong to the requested route")
		}
		seatNumbers[i] = seat.SeatNumber
	}

	booking := &models.Booking{
		UserID:        userID,
		RouteID:       routeID,
		SeatNumbers:   seatNumbers,
		TotalPrice:    totalPrice,
		PaymentMethod: paymentMethod,
		PaymentStatus: models.PaymentStatusPending,
		Status:        models.BookingStatusActive,
	}
	if idempotencyKey != "" {
		booking.IdempotencyKey = &idempotencyKey
	}

	if err := s.store.CreateBooking(ctx, booking); err != nil {
		util.BookingsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("route_id", routeID.String()),
		zap.Int("seats", len(seatIDs)))

	if err := s.seats.Reserve(ctx, booking.ID, seatIDs, passengers); err != nil {
		if delErr := s.store.DeleteBooking(ctx, booking.ID); delErr != nil {
			s.logger.Error("Failed to delete booking during compensation",
				zap.String("booking_id", booking.ID.String()),
				zap.Error(delErr))
		}
		if errors.Is(err, models.ErrSeatUnavailable) {
			util.BookingsFailedTotal.WithLabelValues("seats_unavailable").Inc()
			return nil, err
		}
		util.BookingsFailedTotal.WithLabelValues("reservation_failed").Inc()
		return nil, &models.TransactionError{Step: "seat reservation", Err: err}
	}

	if _, err := s.payments.CreateIntent(ctx, booking.ID, totalPrice, paymentMethod); err != nil {
		s.compensateLeg(ctx, booking.ID, "payment intent failed")
		util.BookingsFailedTotal.WithLabelValues("payment_intent_failed").Inc()
		return nil, &models.TransactionError{Step: "payment intent", Err: err}
	}

	s.publishBookingEvents(ctx, booking, seatIDs)

	if idempotencyKey != "" && s.redis != nil {
		if err := s.redis.SetIdempotencyKey(ctx, idempotencyKey, booking.ID.String(), 24*time.Hour); err != nil {
			s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
		}
	}

	return booking, nil
}

// compensateLeg undoes a committed leg: release seats first, then
// delete the booking row. Both steps are idempotent, so a crash
// mid-rollback is safe to retry.
func (s *BookingService) compensateLeg(ctx context.Context, bookingID uuid.UUID, reason string) {
	if err := s.seats.Release(ctx, bookingID); err != nil {
		s.logger.Error("Failed to release seats during compensation",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err))
	}
	if err := s.store.DeleteBooking(ctx, bookingID); err != nil {
		s.logger.Error("Failed to delete booking during compensation",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err))
	}

	s.logger.Warn("Booking compensated",
		zap.String("booking_id", bookingID.String()),
		zap.String("reason", reason))
}

// lockRoute serializes reservations per route when redis is up. A
// missing lock never blocks a booking; the reservation transaction
// still decides the race.
func (s *BookingService) lockRoute(ctx context.Context, routeID uuid.UUID) func() {
	if s.redis == nil {
		return func() {}
	}

	for attempt := 0; attempt < 5; attempt++ {
		ok, err := s.redis.AcquireRouteLock(ctx, routeID, 10*time.Second)
		if err != nil {
			s.logger.Warn("Route lock unavailable", zap.Error(err))
			return func() {}
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := s.redis.ReleaseRouteLock(releaseCtx, routeID); err != nil {
					s.logger.Warn("Failed to release route lock", zap.Error(err))
				}
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	s.logger.Warn("Proceeding without route lock", zap.String("route_id", routeID.String()))
	return func() {}
}

func (s *BookingService) publishBookingEvents(ctx context.Context, booking *models.Booking, seatIDs []uuid.UUID) {
	if s.eventPublisher == nil {
		return
	}

	created := &models.BookingCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeBookingCreated,
			Timestamp: time.Now(),
		},
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		RouteID:    booking.RouteID,
		TotalPrice: booking.TotalPrice,
		SeatIDs:    seatIDs,
	}
	if err := s.eventPublisher.PublishBookingCreated(ctx, created); err != nil {
		s.logger.Error("Failed to publish BookingCreated event", zap.Error(err))
	}

	reserved := &models.SeatsReservedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSeatsReserved,
			Timestamp: time.Now(),
		},
		BookingID: booking.ID,
		RouteID:   booking.RouteID,
		SeatIDs:   seatIDs,
	}
	if err := s.eventPublisher.PublishSeatsReserved(ctx, reserved); err != nil {
		s.logger.Error("Failed to publish SeatsReserved event", zap.Error(err))
	}
}

// CreateRoundTrip books both legs as one saga. The coupon discount is
// split by each leg's share of the combined fare, so each persisted
// total stays consistent with its own fare. A failure on the return leg
// compensates the already-committed outbound leg before returning.
func (s *BookingService) CreateRoundTrip(ctx context.Context, userID uuid.UUID, req *CreateRoundTripRequest) (*RoundTripResult, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateRoundTrip")
	defer span.End()

	if userID == uuid.Nil {
		return nil, models.ErrNotAuthenticated
	}
	if err := validateLeg(req.Outbound.RouteID, req.Outbound.SeatIDs, req.Passengers, req.PaymentMethod); err != nil {
		util.BookingsFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	if err := validateLeg(req.Return.RouteID, req.Return.SeatIDs, req.Passengers, req.PaymentMethod); err != nil {
		util.BookingsFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	passengerCount := float64(len(req.Passengers))

	outboundRoute, err := s.store.GetRouteByID(ctx, req.Outbound.RouteID)
	if err != nil {
		return nil, err
	}
	returnRoute, err := s.store.GetRouteByID(ctx, req.Return.RouteID)
	if err != nil {
		return nil, err
	}

	outboundFare := Round2(outboundRoute.Price * passengerCount)
	returnFare := Round2(returnRoute.Price * passengerCount)
	combinedFare := outboundFare + returnFare

	// The replay check runs before coupon validation: a coupon that hit
	// its usage cap on the first successful call must not fail a retry
	// of that same request.
	outboundKey := req.IdempotencyKey
	returnKey := ""
	if req.IdempotencyKey != "" {
		outboundKey = req.IdempotencyKey + ":outbound"
		returnKey = req.IdempotencyKey + ":return"

		existing, err := s.store.GetBookingByIdempotencyKey(ctx, userID, outboundKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			returnLeg, err := s.store.GetBookingByIdempotencyKey(ctx, userID, returnKey)
			if err != nil {
				return nil, fmt.Errorf("failed to check idempotency: %w", err)
			}
			replayed := &RoundTripResult{Outbound: existing, Return: returnLeg}
			if returnLeg != nil {
				replayed.Discount = clampNonNegative(
					Round2(combinedFare - existing.TotalPrice - returnLeg.TotalPrice))
			}
			return replayed, nil
		}
	}

	var discount float64
	var couponResult *ApplyCouponResult
	if req.CouponCode != "" {
		couponResult, err = s.coupons.Apply(ctx, req.CouponCode, combinedFare, models.TripTypeRoundTrip)
		if err != nil {
			return nil, err
		}
		if !couponResult.Valid {
			util.BookingsFailedTotal.WithLabelValues("coupon_rejected").Inc()
			return nil, models.NewValidationError("coupon_code", couponResult.Reason)
		}
		discount = couponResult.Discount
	}

	// Apportion the discount by each leg's share of the combined fare.
	// The return leg takes the remainder so the two shares always sum
	// to the full discount despite rounding.
	var outboundDiscount, returnDiscount float64
	if combinedFare > 0 && discount > 0 {
		outboundDiscount = Round2(discount * outboundFare / combinedFare)
		returnDiscount = Round2(discount - outboundDiscount)
	}
	outboundTotal := clampNonNegative(Round2(outboundFare - outboundDiscount))
	returnTotal := clampNonNegative(Round2(returnFare - returnDiscount))

	outboundBooking, err := s.createLeg(ctx, userID, req.Outbound.RouteID, req.Outbound.SeatIDs,
		outboundTotal, req.PaymentMethod, req.Passengers, outboundKey)
	if err != nil {
		return nil, err
	}

	returnBooking, err := s.createLeg(ctx, userID, req.Return.RouteID, req.Return.SeatIDs,
		returnTotal, req.PaymentMethod, req.Passengers, returnKey)
	if err != nil {
		// The outbound leg must not survive a failed return leg.
		s.compensateLeg(ctx, outboundBooking.ID, "return leg failed")
		s.publishCancelled(ctx, outboundBooking.ID, "return leg failed")
		return nil, &models.TransactionError{Step: "return leg", Err: err}
	}

	// Usage is recorded once against the combined amounts, not per leg.
	if couponResult != nil && couponResult.Coupon != nil {
		bookingID := outboundBooking.ID
		uid := userID
		s.coupons.RecordUsage(ctx, &models.CouponUsage{
			CouponID:       couponResult.Coupon.ID,
			BookingID:      &bookingID,
			UserID:         &uid,
			AmountBefore:   Round2(combinedFare),
			AmountDiscount: Round2(discount),
			AmountAfter:    Round2(combinedFare - discount),
		})
	}

	util.RoundTripsCreatedTotal.Inc()
	util.BookingsCreatedTotal.Add(2)

	s.logger.Info("Round trip booked",
		zap.String("outbound_id", outboundBooking.ID.String()),
		zap.String("return_id", returnBooking.ID.String()),
		zap.Float64("discount", discount))

	return &RoundTripResult{
		Outbound: outboundBooking,
		Return:   returnBooking,
		Discount: discount,
	}, nil
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// GetUserBookings returns the user's bookings joined with route
// snapshots, newest first
func (s *BookingService) GetUserBookings(ctx context.Context, userID uuid.UUID) ([]models.BookingWithRoute, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.GetUserBookings")
	defer span.End()

	if userID == uuid.Nil {
		return nil, models.ErrNotAuthenticated
	}
	return s.store.GetBookingsByUser(ctx, userID)
}

// GetBooking returns one booking with its seat links
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, []models.BookingSeat, error) {
	booking, err := s.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking.UserID != userID {
		return nil, nil, models.ErrBookingNotFound
	}

	seats, err := s.seats.BookingSeats(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	return booking, seats, nil
}

// CancelBooking releases the booking's seats and then flips its status
// to cancelled. The ordering is mandatory: flipping status first could
// strand seats locked against a cancelled booking if the release fails.
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "BookingService.CancelBooking")
	defer span.End()

	booking, err := s.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.UserID != userID {
		return models.ErrBookingNotFound
	}
	if booking.Status == models.BookingStatusCancelled {
		return models.ErrBookingCancelled
	}

	if err := s.seats.Release(ctx, bookingID); err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}

	if err := s.store.UpdateBookingStatus(ctx, bookingID, models.BookingStatusCancelled); err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}

	util.BookingsCancelledTotal.Inc()
	s.publishCancelled(ctx, bookingID, "cancelled by user")

	s.logger.Info("Booking cancelled", zap.String("booking_id", bookingID.String()))
	return nil
}

func (s *BookingService) publishCancelled(ctx context.Context, bookingID uuid.UUID, reason string) {
	if s.eventPublisher == nil {
		return
	}

	event := &models.BookingCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeBookingCancelled,
			Timestamp: time.Now(),
		},
		BookingID: bookingID,
		Reason:    reason,
	}
	if err := s.eventPublisher.PublishBookingCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish BookingCancelled event", zap.Error(err))
	}
}

// UpdateBookingPayment transitions the booking's payment status through
// the explicit confirmation/failure path
func (s *BookingService) UpdateBookingPayment(ctx context.Context, userID, bookingID uuid.UUID, status string) error {
	ctx, span := util.StartSpan(ctx, "BookingService.UpdateBookingPayment")
	defer span.End()

	booking, err := s.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.UserID != userID {
		return models.ErrBookingNotFound
	}

	return s.payments.Settle(ctx, bookingID, status)
}

// GetBookingStats returns the aggregate booking rollup
func (s *BookingService) GetBookingStats(ctx context.Context) (*models.BookingStats, error) {
	return s.store.GetBookingStats(ctx)
}

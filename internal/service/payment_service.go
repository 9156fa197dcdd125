package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bus-booking-service/internal/broker"
	"bus-booking-service/internal/models"
	"bus-booking-service/internal/store"
	"bus-booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService records payment intent and status for bookings. It
// does not talk to card networks or PIX rails; settlement arrives as
// events from the payment collaborator.
type PaymentService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store *store.Store, eventPublisher *broker.EventPublisher) *PaymentService {
	return &PaymentService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateIntent creates a pending payment record for a booking. When the
// payments table is not provisioned it returns (nil, nil): the booking
// proceeds without an intent record. Any write error is a hard failure
// the caller must compensate for.
func (ps *PaymentService) CreateIntent(ctx context.Context, bookingID uuid.UUID, amount float64, method string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateIntent")
	defer span.End()

	if !ps.store.PaymentsEnabled() {
		util.PaymentIntentsSkippedTotal.Inc()
		ps.logger.Warn("Payments table not provisioned, booking proceeds without payment intent",
			zap.String("booking_id", bookingID.String()))
		return nil, nil
	}

	payment := &models.Payment{
		BookingID: bookingID,
		Amount:    amount,
		Method:    method,
		Status:    models.PaymentStatusPending,
	}

	if err := ps.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	util.PaymentIntentsTotal.Inc()
	ps.logger.Info("Payment intent created",
		zap.String("booking_id", bookingID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.Float64("amount", amount))

	return payment, nil
}

// Settle transitions a booking's payment status. Completion stamps the
// QR payload onto the booking and marks it confirmed; failure leaves
// the booking active so payment can be retried.
func (ps *PaymentService) Settle(ctx context.Context, bookingID uuid.UUID, status string) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.Settle")
	defer span.End()

	if status != models.PaymentStatusCompleted && status != models.PaymentStatusFailed {
		return models.NewValidationError("status", "must be completed or failed")
	}

	booking, err := ps.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return err
	}

	// Cancellation is terminal. A late settlement must never confirm a
	// booking whose seats were already released.
	if booking.Status == models.BookingStatusCancelled {
		return models.ErrBookingCancelled
	}

	var qrCode *string
	if status == models.PaymentStatusCompleted {
		qr := fmt.Sprintf("AG-TUR-%s-%d", booking.ID, time.Now().UnixMilli())
		qrCode = &qr
	}

	if err := ps.store.UpdateBookingPayment(ctx, booking.ID, status, qrCode); err != nil {
		return fmt.Errorf("failed to update booking payment: %w", err)
	}

	if status == models.PaymentStatusCompleted {
		if err := ps.store.UpdateBookingStatus(ctx, booking.ID, models.BookingStatusConfirmed); err != nil {
			ps.logger.Error("Failed to confirm booking", zap.Error(err))
		}
		util.PaymentsCompletedTotal.Inc()
	} else {
		util.PaymentsFailedTotal.Inc()
	}

	if ps.store.PaymentsEnabled() {
		var txID *string
		if status == models.PaymentStatusCompleted {
			tx := fmt.Sprintf("TXN-%s", uuid.New().String()[:8])
			txID = &tx
		}
		if err := ps.store.UpdatePaymentStatusByBooking(ctx, booking.ID, status, txID); err != nil {
			return fmt.Errorf("failed to update payment record: %w", err)
		}
	}

	ps.logger.Info("Payment settled",
		zap.String("booking_id", booking.ID.String()),
		zap.String("status", status))
	return nil
}

// HandlePaymentSuccess consumes a PaymentSuccess event from the payment
// collaborator and confirms the booking. Idempotent via the
// processed-events table.
func (ps *PaymentService) HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentSuccess")
	defer span.End()

	processed, err := ps.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		ps.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := ps.Settle(ctx, event.BookingID, models.PaymentStatusCompleted); err != nil {
		if errors.Is(err, models.ErrBookingCancelled) {
			// Settlement arrived after cancellation; drop the event
			// instead of redelivering it forever.
			ps.logger.Warn("Ignoring payment settlement for cancelled booking",
				zap.String("booking_id", event.BookingID.String()))
			if err := ps.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
				ps.logger.Error("Failed to mark event processed", zap.Error(err))
			}
			return nil
		}
		return err
	}

	if ps.eventPublisher != nil {
		booking, err := ps.store.GetBookingByID(ctx, event.BookingID)
		if err == nil {
			confirmed := &models.BookingConfirmedEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeBookingConfirmed,
					Timestamp: time.Now(),
				},
				BookingID: booking.ID,
				UserID:    booking.UserID,
			}
			if err := ps.eventPublisher.PublishBookingConfirmed(ctx, confirmed); err != nil {
				ps.logger.Error("Failed to publish BookingConfirmed event", zap.Error(err))
			}
		}
	}

	if err := ps.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		ps.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	ps.logger.Info("Booking confirmed", zap.String("booking_id", event.BookingID.String()))
	return nil
}

// HandlePaymentFailed consumes a PaymentFailed event and marks the
// booking's payment failed. Seats stay reserved; the user may retry
// payment or cancel.
func (ps *PaymentService) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentFailed")
	defer span.End()

	processed, err := ps.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		ps.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	ps.logger.Warn("Payment failed for booking",
		zap.String("booking_id", event.BookingID.String()),
		zap.String("reason", event.Reason))

	if err := ps.Settle(ctx, event.BookingID, models.PaymentStatusFailed); err != nil {
		if errors.Is(err, models.ErrBookingCancelled) {
			ps.logger.Warn("Ignoring payment failure for cancelled booking",
				zap.String("booking_id", event.BookingID.String()))
			if err := ps.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
				ps.logger.Error("Failed to mark event processed", zap.Error(err))
			}
			return nil
		}
		return err
	}

	if err := ps.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		ps.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	return nil
}

// GetPayment retrieves the latest payment intent for a booking
func (ps *PaymentService) GetPayment(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	return ps.store.GetPaymentByBooking(ctx, bookingID)
}

package worker

import (
	"context"

	"bus-booking-service/internal/broker"
	"bus-booking-service/internal/service"
	"bus-booking-service/internal/util"

	"go.uber.org/zap"
)

// BookingWorker consumes payment outcome events and settles the
// matching bookings. Processing is idempotent; redelivered events are
// recognized and skipped.
type BookingWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewBookingWorker creates a new booking worker
func NewBookingWorker(
	consumer *broker.Consumer,
	payments *service.PaymentService,
) *BookingWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentSuccess(payments.HandlePaymentSuccess)
	eventHandler.OnPaymentFailed(payments.HandlePaymentFailed)

	return &BookingWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *BookingWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting booking worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *BookingWorker) Stop() error {
	w.logger.Info("Stopping booking worker")
	return w.consumer.Close()
}

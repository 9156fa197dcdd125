package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeBookingCreated   = "BOOKING_CREATED"
	EventTypeSeatsReserved    = "SEATS_RESERVED"
	EventTypeBookingConfirmed = "BOOKING_CONFIRMED"
	EventTypeBookingCancelled = "BOOKING_CANCELLED"
	EventTypePaymentSuccess   = "PAYMENT_SUCCESS"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent is published when a booking row is committed
type BookingCreatedEvent struct {
	BaseEvent
	BookingID  uuid.UUID   `json:"booking_id"`
	UserID     uuid.UUID   `json:"user_id"`
	RouteID    uuid.UUID   `json:"route_id"`
	TotalPrice float64     `json:"total_price"`
	SeatIDs    []uuid.UUID `json:"seat_ids"`
}

// SeatsReservedEvent is published after the seat reservation step commits
type SeatsReservedEvent struct {
	BaseEvent
	BookingID uuid.UUID   `json:"booking_id"`
	RouteID   uuid.UUID   `json:"route_id"`
	SeatIDs   []uuid.UUID `json:"seat_ids"`
}

// BookingConfirmedEvent is published when payment completes
type BookingConfirmedEvent struct {
	BaseEvent
	BookingID uuid.UUID `json:"booking_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// BookingCancelledEvent is published on cancellation or saga compensation
type BookingCancelledEvent struct {
	BaseEvent
	BookingID uuid.UUID `json:"booking_id"`
	Reason    string    `json:"reason"`
}

// PaymentSuccessEvent is published by the payment collaborator
type PaymentSuccessEvent struct {
	BaseEvent
	BookingID uuid.UUID `json:"booking_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Amount    float64   `json:"amount"`
	TxID      string    `json:"tx_id"`
}

// PaymentFailedEvent is published by the payment collaborator
type PaymentFailedEvent struct {
	BaseEvent
	BookingID uuid.UUID `json:"booking_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
}

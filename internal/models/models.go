package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Seat represents a single seat on a bus route
type Seat struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RouteID       uuid.UUID `db:"route_id" json:"route_id"`
	SeatNumber    string    `db:"seat_number" json:"seat_number"`
	SeatType      string    `db:"seat_type" json:"seat_type"`
	RowNumber     int       `db:"row_number" json:"row_number"`
	Position      string    `db:"position" json:"position"`
	IsAvailable   bool      `db:"is_available" json:"is_available"`
	PriceModifier float64   `db:"price_modifier" json:"price_modifier"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Seat types
const (
	SeatTypeStandard = "standard"
	SeatTypeWindow   = "window"
	SeatTypeAisle    = "aisle"
	SeatTypePremium  = "premium"
)

// Seat positions within a row. A and D are window side, B and C flank the aisle.
const (
	PositionA = "A"
	PositionB = "B"
	PositionC = "C"
	PositionD = "D"
)

// BookingSeat links a booking to a reserved seat and carries the
// passenger assigned to that seat
type BookingSeat struct {
	ID                uuid.UUID `db:"id" json:"id"`
	BookingID         uuid.UUID `db:"booking_id" json:"booking_id"`
	SeatID            uuid.UUID `db:"seat_id" json:"seat_id"`
	PassengerName     *string   `db:"passenger_name" json:"passenger_name,omitempty"`
	PassengerDocument *string   `db:"passenger_document" json:"passenger_document,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// PassengerInfo is the per-seat passenger data supplied at booking time
type PassengerInfo struct {
	Name     string `json:"name"`
	Document string `json:"document"`
}

// Booking represents a single-leg reservation
type Booking struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	UserID         uuid.UUID      `db:"user_id" json:"user_id"`
	RouteID        uuid.UUID      `db:"route_id" json:"route_id"`
	SeatNumbers    pq.StringArray `db:"seat_numbers" json:"seat_numbers"`
	TotalPrice     float64        `db:"total_price" json:"total_price"`
	PaymentMethod  string         `db:"payment_method" json:"payment_method"`
	PaymentStatus  string         `db:"payment_status" json:"payment_status"`
	Status         string         `db:"status" json:"status"`
	QRCode         *string        `db:"qr_code" json:"qr_code,omitempty"`
	IdempotencyKey *string        `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Booking lifecycle statuses. Cancellation is terminal.
const (
	BookingStatusActive    = "active"
	BookingStatusConfirmed = "confirmed"
	BookingStatusUsed      = "used"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment methods accepted at booking time
const (
	PaymentMethodPix    = "pix"
	PaymentMethodCredit = "credit"
	PaymentMethodDebit  = "debit"
)

// Payment is the payment-intent record for a booking. It records intent
// and status only; gateway integration lives elsewhere.
type Payment struct {
	ID            uuid.UUID `db:"id" json:"id"`
	BookingID     uuid.UUID `db:"booking_id" json:"booking_id"`
	Amount        float64   `db:"amount" json:"amount"`
	Method        string    `db:"method" json:"method"`
	Status        string    `db:"status" json:"status"`
	TransactionID *string   `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Coupon discount types
const (
	CouponTypePercent = "percent"
	CouponTypeAmount  = "amount"
)

// Trip types a coupon may be restricted to
const (
	TripTypeOneWay    = "one-way"
	TripTypeRoundTrip = "round-trip"
	TripTypeAny       = "any"
)

// Coupon is a discount code. Percent values above 1 are whole
// percentages (20 means 20%), values at or below 1 are fractions.
type Coupon struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Code      string     `db:"code" json:"code"`
	Type      string     `db:"type" json:"type"`
	Value     float64    `db:"value" json:"value"`
	Active    bool       `db:"active" json:"active"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	MaxUses   *int       `db:"max_uses" json:"max_uses,omitempty"`
	UsedCount int        `db:"used_count" json:"used_count"`
	MinTotal  *float64   `db:"min_total" json:"min_total,omitempty"`
	TripType  *string    `db:"trip_type" json:"trip_type,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// CouponUsage is an append-only audit record of a coupon application
type CouponUsage struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	CouponID       uuid.UUID  `db:"coupon_id" json:"coupon_id"`
	BookingID      *uuid.UUID `db:"booking_id" json:"booking_id,omitempty"`
	UserID         *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	AmountBefore   float64    `db:"amount_before" json:"amount_before"`
	AmountDiscount float64    `db:"amount_discount" json:"amount_discount"`
	AmountAfter    float64    `db:"amount_after" json:"amount_after"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Route is the read model consumed from the route/schedule collaborator
type Route struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	Origin      string         `db:"origin" json:"origin"`
	Destination string         `db:"destination" json:"destination"`
	Price       float64        `db:"price" json:"price"`
	BusCompany  string         `db:"bus_company" json:"bus_company"`
	BusType     string         `db:"bus_type" json:"bus_type"`
	Departure   time.Time      `db:"departure" json:"departure"`
	Arrival     time.Time      `db:"arrival" json:"arrival"`
	Amenities   pq.StringArray `db:"amenities" json:"amenities"`
}

// Bus is display-only vehicle metadata
type Bus struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Model string    `db:"model" json:"model"`
	Plate string    `db:"plate" json:"plate"`
	Type  string    `db:"type" json:"type"`
}

// BookingWithRoute is a booking joined with its route snapshot for the
// user-facing booking list
type BookingWithRoute struct {
	Booking
	Route Route `db:"route" json:"route"`
}

// BookingStats is an aggregate rollup over all bookings
type BookingStats struct {
	TotalBookings     int     `db:"total_bookings" json:"total_bookings"`
	CompletedBookings int     `db:"completed_bookings" json:"completed_bookings"`
	TotalRevenue      float64 `db:"total_revenue" json:"total_revenue"`
}

// ProcessedEvent records consumed event ids for idempotent handling
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

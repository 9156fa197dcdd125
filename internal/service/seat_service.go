package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"bus-booking-service/internal/models"
	"bus-booking-service/internal/redisclient"
	"bus-booking-service/internal/store"
	"bus-booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// positionOrder fixes the render order within a row. Slot 3 is the
// aisle gap between B and C.
var positionOrder = map[string]int{
	models.PositionA: 1,
	models.PositionB: 2,
	models.PositionC: 4,
	models.PositionD: 5,
}

// SeatService manages the seat inventory for routes: lazy layout
// provisioning, availability queries and atomic reservation.
type SeatService struct {
	store   *store.Store
	redis   *redisclient.Client
	logger  *zap.Logger
	holdTTL time.Duration
}

// NewSeatService creates a new seat service. redis may be nil; the
// fast-path hold is then skipped and the database guard stands alone.
func NewSeatService(store *store.Store, redis *redisclient.Client, holdTTL time.Duration) *SeatService {
	return &SeatService{
		store:   store,
		redis:   redis,
		logger:  util.GetLogger(),
		holdTTL: holdTTL,
	}
}

// EnsureSeatsExist provisions the standard 48-seat layout for a route
// that has none yet. Never touches existing seats.
func (ss *SeatService) EnsureSeatsExist(ctx context.Context, routeID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "SeatService.EnsureSeatsExist")
	defer span.End()

	created, err := ss.store.EnsureSeatsExist(ctx, routeID)
	if err != nil {
		return err
	}
	if created > 0 {
		util.SeatsProvisionedTotal.Add(float64(created))
		ss.logger.Info("Provisioned seat layout",
			zap.String("route_id", routeID.String()),
			zap.Int("seats", created))
	}
	return nil
}

// AllSeats returns the full seat map for a route, provisioning the
// layout on first access
func (ss *SeatService) AllSeats(ctx context.Context, routeID uuid.UUID) ([]models.Seat, error) {
	ctx, span := util.StartSpan(ctx, "SeatService.AllSeats")
	defer span.End()

	if err := ss.EnsureSeatsExist(ctx, routeID); err != nil {
		return nil, err
	}
	return ss.store.GetSeatsByRoute(ctx, routeID)
}

// AvailableSeats returns only the available seats, ordered by row then
// position
func (ss *SeatService) AvailableSeats(ctx context.Context, routeID uuid.UUID) ([]models.Seat, error) {
	ctx, span := util.StartSpan(ctx, "SeatService.AvailableSeats")
	defer span.End()

	return ss.store.GetAvailableSeats(ctx, routeID)
}

// SeatLayout returns the seat map grouped by row with a nil placeholder
// for the aisle between positions B and C. The placeholder is a
// presentation artifact only.
func (ss *SeatService) SeatLayout(ctx context.Context, routeID uuid.UUID) (map[int][]*models.Seat, error) {
	ctx, span := util.StartSpan(ctx, "SeatService.SeatLayout")
	defer span.End()

	seats, err := ss.AllSeats(ctx, routeID)
	if err != nil {
		return nil, err
	}
	return BuildSeatLayout(seats), nil
}

// BuildSeatLayout groups seats by row, orders each row A,B,aisle,C,D
// and inserts a nil aisle slot between B and C
func BuildSeatLayout(seats []models.Seat) map[int][]*models.Seat {
	layout := make(map[int][]*models.Seat)

	byRow := make(map[int][]models.Seat)
	for _, seat := range seats {
		byRow[seat.RowNumber] = append(byRow[seat.RowNumber], seat)
	}

	for row, rowSeats := range byRow {
		sort.Slice(rowSeats, func(i, j int) bool {
			return positionOrder[rowSeats[i].Position] < positionOrder[rowSeats[j].Position]
		})

		rendered := make([]*models.Seat, 0, len(rowSeats)+1)
		for i := range rowSeats {
			seat := rowSeats[i]
			if positionOrder[seat.Position] >= 4 && len(rendered) == 2 {
				rendered = append(rendered, nil)
			}
			rendered = append(rendered, &seat)
		}
		layout[row] = rendered
	}

	return layout
}

// CheckAvailability reports whether every seat in the set is currently
// available. Used as a pre-commit gate; the reservation transaction is
// the authoritative guard.
func (ss *SeatService) CheckAvailability(ctx context.Context, seatIDs []uuid.UUID) (bool, error) {
	ctx, span := util.StartSpan(ctx, "SeatService.CheckAvailability")
	defer span.End()

	return ss.store.CheckSeatsAvailable(ctx, seatIDs)
}

// Reserve re-checks availability and reserves the seat set for a
// booking as a single all-or-nothing step. Passenger info maps to
// seats by positional index. Returns models.ErrSeatUnavailable when
// the race was lost; no partial booking-seat rows survive a failure.
func (ss *SeatService) Reserve(ctx context.Context, bookingID uuid.UUID, seatIDs []uuid.UUID, passengers []models.PassengerInfo) error {
	ctx, span := util.StartSpan(ctx, "SeatService.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SeatReserveLatency.Observe(time.Since(start).Seconds())
	}()

	// Fast-path hold narrows the race window across instances. Redis
	// being down never blocks a reservation.
	held := false
	if ss.redis != nil {
		ok, err := ss.redis.HoldSeats(ctx, seatIDs, bookingID, ss.holdTTL)
		if err != nil {
			ss.logger.Warn("Seat hold fast path unavailable, relying on database guard",
				zap.Error(err))
		} else if !ok {
			util.SeatConflictsTotal.Inc()
			return models.ErrSeatUnavailable
		} else {
			held = true
		}
	}
	if held {
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ss.redis.ReleaseSeats(releaseCtx, seatIDs, bookingID); err != nil {
				ss.logger.Warn("Failed to release seat holds", zap.Error(err))
			}
		}()
	}

	if err := ss.store.ReserveSeatsTx(ctx, bookingID, seatIDs, passengers); err != nil {
		if errors.Is(err, models.ErrSeatUnavailable) {
			util.SeatConflictsTotal.Inc()
		}
		return err
	}

	util.SeatReservationsTotal.Add(float64(len(seatIDs)))
	return nil
}

// Release frees all seats held by a booking. Used for both explicit
// cancellation and saga rollback.
func (ss *SeatService) Release(ctx context.Context, bookingID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "SeatService.Release")
	defer span.End()

	return ss.store.ReleaseSeatsByBooking(ctx, bookingID)
}

// BookingSeats returns the seat links for a booking
func (ss *SeatService) BookingSeats(ctx context.Context, bookingID uuid.UUID) ([]models.BookingSeat, error) {
	return ss.store.GetBookingSeats(ctx, bookingID)
}

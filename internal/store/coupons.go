package store

import (
	"context"
	"database/sql"
	"fmt"

	"bus-booking-service/internal/models"

	"github.com/google/uuid"
)

// GetCouponByCode retrieves a coupon by its normalized code, or nil
// when no such coupon exists. Callers upper-case the code first.
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon,
		`SELECT id, code, type, value, active, expires_at, max_uses, used_count, min_total, trip_type, created_at
		 FROM coupons WHERE code = $1 LIMIT 1`, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// IncrementCouponUsage bumps the coupon's running usage counter
func (s *Store) IncrementCouponUsage(ctx context.Context, couponID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE coupons SET used_count = used_count + 1 WHERE id = $1", couponID)
	return err
}

// CreateCouponUsage appends an audit record of a coupon application
func (s *Store) CreateCouponUsage(ctx context.Context, usage *models.CouponUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coupon_usages (id, coupon_id, booking_id, user_id, amount_before, amount_discount, amount_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		usage.ID, usage.CouponID, usage.BookingID, usage.UserID,
		usage.AmountBefore, usage.AmountDiscount, usage.AmountAfter)
	if err != nil {
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}
	return nil
}

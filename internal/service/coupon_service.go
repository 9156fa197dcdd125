package service

import (
	"context"
	"math"
	"strings"
	"time"

	"bus-booking-service/internal/models"
	"bus-booking-service/internal/store"
	"bus-booking-service/internal/util"

	"go.uber.org/zap"
)

// fallbackCoupons is a small fixed table of percentage codes used only
// when the coupon store is unreachable and the fallback is enabled in
// config. The codes are documented, not secret, and the store remains
// the authoritative discount policy.
var fallbackCoupons = map[string]float64{
	"AG20":     0.20,
	"AG10":     0.10,
	"BEMVINDO": 0.15,
	"PROMO5":   0.05,
}

// ApplyCouponResult is the outcome of a coupon application
type ApplyCouponResult struct {
	Valid    bool           `json:"valid"`
	Discount float64        `json:"discount"`
	Coupon   *models.Coupon `json:"coupon,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// CouponService validates discount codes and computes discounts
type CouponService struct {
	store           *store.Store
	fallbackEnabled bool
	logger          *zap.Logger
}

// NewCouponService creates a new coupon service
func NewCouponService(store *store.Store, fallbackEnabled bool) *CouponService {
	return &CouponService{
		store:           store,
		fallbackEnabled: fallbackEnabled,
		logger:          util.GetLogger(),
	}
}

// Apply validates a coupon code against a base total and trip type and
// returns the monetary discount. Rejections carry a human-readable
// reason instead of an error.
func (cs *CouponService) Apply(ctx context.Context, code string, baseTotal float64, tripType string) (*ApplyCouponResult, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Apply")
	defer span.End()

	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return cs.rejected(nil, "coupon code is empty"), nil
	}

	coupon, err := cs.store.GetCouponByCode(ctx, normalized)
	if err != nil {
		// Store unreachable, not "coupon missing". Degrade to the
		// fixed table only when explicitly enabled.
		cs.logger.Warn("Coupon store unreachable", zap.Error(err))
		if cs.fallbackEnabled {
			return cs.applyFallback(normalized, baseTotal), nil
		}
		util.CouponsAppliedTotal.WithLabelValues("store_error").Inc()
		return cs.rejected(nil, "coupon could not be validated, try again later"), nil
	}

	if coupon == nil {
		return cs.rejected(nil, "coupon is invalid or does not exist"), nil
	}

	if !coupon.Active {
		return cs.rejected(coupon, "coupon is inactive"), nil
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(time.Now()) {
		return cs.rejected(coupon, "coupon has expired"), nil
	}
	if coupon.MinTotal != nil && baseTotal < *coupon.MinTotal {
		return cs.rejected(coupon, "order total is below the coupon minimum"), nil
	}
	if coupon.MaxUses != nil && coupon.UsedCount >= *coupon.MaxUses {
		return cs.rejected(coupon, "coupon usage limit reached"), nil
	}
	if coupon.TripType != nil && *coupon.TripType != models.TripTypeAny &&
		tripType != "" && *coupon.TripType != tripType {
		return cs.rejected(coupon, "coupon does not apply to this trip type"), nil
	}

	discount := ComputeDiscount(baseTotal, coupon)
	util.CouponsAppliedTotal.WithLabelValues("valid").Inc()

	return &ApplyCouponResult{Valid: true, Discount: discount, Coupon: coupon}, nil
}

func (cs *CouponService) rejected(coupon *models.Coupon, reason string) *ApplyCouponResult {
	util.CouponsAppliedTotal.WithLabelValues("rejected").Inc()
	return &ApplyCouponResult{Valid: false, Discount: 0, Coupon: coupon, Reason: reason}
}

func (cs *CouponService) applyFallback(code string, baseTotal float64) *ApplyCouponResult {
	pct, ok := fallbackCoupons[code]
	if !ok {
		util.CouponsAppliedTotal.WithLabelValues("rejected").Inc()
		return &ApplyCouponResult{Valid: false, Discount: 0, Reason: "coupon is invalid or does not exist"}
	}

	cs.logger.Warn("Applied fallback coupon while store unreachable",
		zap.String("code", code))
	util.CouponsAppliedTotal.WithLabelValues("fallback").Inc()

	return &ApplyCouponResult{
		Valid:    true,
		Discount: Round2(baseTotal * pct),
	}
}

// ComputeDiscount computes the monetary discount for a coupon. Percent
// values above 1 are whole percentages; amount discounts never exceed
// the base total.
func ComputeDiscount(baseTotal float64, coupon *models.Coupon) float64 {
	if coupon.Type == models.CouponTypePercent {
		return Round2(baseTotal * NormalizePercent(coupon.Value))
	}
	return math.Min(baseTotal, math.Max(0, Round2(coupon.Value)))
}

// NormalizePercent maps 20 to 0.20 and keeps 0.20 as-is, clamped to [0,1]
func NormalizePercent(value float64) float64 {
	if value > 1 {
		return math.Min(1, value/100)
	}
	return math.Max(0, value)
}

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RecordUsage appends a coupon-usage audit record and bumps the usage
// counter. Fire-and-forget: failures are logged and never propagated,
// and never block booking confirmation.
func (cs *CouponService) RecordUsage(ctx context.Context, usage *models.CouponUsage) {
	ctx, span := util.StartSpan(ctx, "CouponService.RecordUsage")
	defer span.End()

	if err := cs.store.CreateCouponUsage(ctx, usage); err != nil {
		cs.logger.Warn("Failed to record coupon usage",
			zap.String("coupon_id", usage.CouponID.String()),
			zap.Error(err))
		return
	}

	if err := cs.store.IncrementCouponUsage(ctx, usage.CouponID); err != nil {
		cs.logger.Warn("Failed to increment coupon usage counter",
			zap.String("coupon_id", usage.CouponID.String()),
			zap.Error(err))
	}
}

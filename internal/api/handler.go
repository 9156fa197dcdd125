package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bus-booking-service/internal/models"
	"bus-booking-service/internal/service"
	"bus-booking-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	bookings *service.BookingService
	seats    *service.SeatService
	coupons  *service.CouponService
	payments *service.PaymentService
	store    BusMetadataStore
	auth     *Authenticator
}

// BusMetadataStore serves the display-only vehicle lookup
type BusMetadataStore interface {
	GetBusByID(ctx context.Context, id uuid.UUID) (*models.Bus, error)
}

// NewHandler creates a new HTTP handler
func NewHandler(
	bookings *service.BookingService,
	seats *service.SeatService,
	coupons *service.CouponService,
	payments *service.PaymentService,
	store BusMetadataStore,
	auth *Authenticator,
) *Handler {
	return &Handler{
		bookings: bookings,
		seats:    seats,
		coupons:  coupons,
		payments: payments,
		store:    store,
		auth:     auth,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/routes/:id/seats", h.routeSeats)
		v1.GET("/routes/:id/seats/layout", h.seatLayout)
		v1.POST("/seats/check", h.checkSeats)
		v1.POST("/coupons/apply", h.applyCoupon)
		v1.GET("/buses/:id", h.getBus)
		v1.GET("/stats/bookings", h.bookingStats)

		authed := v1.Group("")
		authed.Use(h.auth.Middleware())
		{
			authed.POST("/bookings", h.createBooking)
			authed.POST("/bookings/roundtrip", h.createRoundTrip)
			authed.GET("/bookings", h.listBookings)
			authed.GET("/bookings/:id", h.getBooking)
			authed.POST("/bookings/:id/cancel", h.cancelBooking)
			authed.GET("/bookings/:id/payment", h.getPayment)
			authed.PATCH("/bookings/:id/payment", h.updatePayment)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// writeError maps domain errors to HTTP responses. Unknown errors get
// a generic retryable message so internals never leak to clients.
func writeError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.Is(err, models.ErrSeatUnavailable):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Selected seats are no longer available, please choose different seats",
		})
	case errors.Is(err, models.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
		})
	case errors.Is(err, models.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Booking not found",
		})
	case errors.Is(err, models.ErrRouteNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Route not found",
		})
	case errors.Is(err, models.ErrBookingCancelled):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Booking is already cancelled",
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Something went wrong, please try again",
		})
	}
}

// createBooking handles single-leg booking creation
func (h *Handler) createBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), UserID(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"booking": booking})
}

// createRoundTrip handles both legs of a round trip as one request
func (h *Handler) createRoundTrip(c *gin.Context) {
	var req service.CreateRoundTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.bookings.CreateRoundTrip(c.Request.Context(), UserID(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// listBookings returns the caller's bookings with route snapshots
func (h *Handler) listBookings(c *gin.Context) {
	bookings, err := h.bookings.GetUserBookings(c.Request.Context(), UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// getBooking returns one booking with its seat assignments
func (h *Handler) getBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	booking, seats, err := h.bookings.GetBooking(c.Request.Context(), UserID(c), bookingID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking": booking,
		"seats":   seats,
	})
}

// cancelBooking releases the booking's seats and marks it cancelled
func (h *Handler) cancelBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	if err := h.bookings.CancelBooking(c.Request.Context(), UserID(c), bookingID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.BookingStatusCancelled})
}

// getPayment returns the latest payment intent for a booking
func (h *Handler) getPayment(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	// Ownership check rides on the booking lookup.
	if _, _, err := h.bookings.GetBooking(c.Request.Context(), UserID(c), bookingID); err != nil {
		writeError(c, err)
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), bookingID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

type updatePaymentRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required"`
}

// updatePayment settles the booking's payment outcome
func (h *Handler) updatePayment(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	var req updatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.bookings.UpdateBookingPayment(c.Request.Context(), UserID(c), bookingID, req.PaymentStatus); err != nil {
		writeError(c, err)
		return
	}

	booking, seats, err := h.bookings.GetBooking(c.Request.Context(), UserID(c), bookingID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking": booking,
		"seats":   seats,
	})
}

// routeSeats returns a route's seats, provisioning the layout on first
// access. ?available=true filters to open seats only.
func (h *Handler) routeSeats(c *gin.Context) {
	routeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid route ID"})
		return
	}

	var seats []models.Seat
	if c.Query("available") == "true" {
		seats, err = h.seats.AvailableSeats(c.Request.Context(), routeID)
	} else {
		seats, err = h.seats.AllSeats(c.Request.Context(), routeID)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"seats": seats})
}

// seatLayout returns the seat map grouped by row with aisle gaps
func (h *Handler) seatLayout(c *gin.Context) {
	routeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid route ID"})
		return
	}

	layout, err := h.seats.SeatLayout(c.Request.Context(), routeID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"layout": layout})
}

type checkSeatsRequest struct {
	SeatIDs []uuid.UUID `json:"seat_ids" binding:"required,min=1"`
}

// checkSeats reports whether every requested seat is still open
func (h *Handler) checkSeats(c *gin.Context) {
	var req checkSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	available, err := h.seats.CheckAvailability(c.Request.Context(), req.SeatIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": available})
}

type applyCouponRequest struct {
	Code     string  `json:"code" binding:"required"`
	Total    float64 `json:"total" binding:"required"`
	TripType string  `json:"trip_type"`
}

// applyCoupon validates a code against a cart total without booking
func (h *Handler) applyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.TripType == "" {
		req.TripType = models.TripTypeOneWay
	}

	result, err := h.coupons.Apply(c.Request.Context(), req.Code, req.Total, req.TripType)
	if err != nil {
		writeError(c, err)
		return
	}

	if !result.Valid {
		c.JSON(http.StatusOK, gin.H{
			"valid":  false,
			"reason": result.Reason,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"discount": result.Discount,
		"total":    service.Round2(req.Total - result.Discount),
	})
}

// getBus returns display-only vehicle metadata
func (h *Handler) getBus(c *gin.Context) {
	busID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bus ID"})
		return
	}

	bus, err := h.store.GetBusByID(c.Request.Context(), busID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bus not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bus": bus})
}

// bookingStats returns the aggregate booking rollup
func (h *Handler) bookingStats(c *gin.Context) {
	stats, err := h.bookings.GetBookingStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings committed",
	})

	BookingsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_failed_total",
		Help: "Total number of failed booking transactions",
	}, []string{"reason"})

	BookingsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_cancelled_total",
		Help: "Total number of cancelled bookings",
	})

	RoundTripsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "round_trips_created_total",
		Help: "Total number of round-trip bookings committed",
	})

	SeatsProvisionedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seats_provisioned_total",
		Help: "Total number of seats created by lazy layout provisioning",
	})

	SeatReservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seat_reservations_total",
		Help: "Total number of seats reserved",
	})

	SeatConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seat_conflicts_total",
		Help: "Total number of reservations lost to a concurrent booking",
	})

	SeatReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "seat_reserve_latency_seconds",
		Help:    "Latency of seat reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	CouponsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupons_applied_total",
		Help: "Total number of coupon applications",
	}, []string{"outcome"})

	PaymentIntentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_total",
		Help: "Total number of payment-intent records created",
	})

	PaymentIntentsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_skipped_total",
		Help: "Payment intents skipped because the payments table is not provisioned",
	})

	PaymentsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Total number of completed payments",
	})

	PaymentsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of failed payments",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

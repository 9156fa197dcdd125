package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bus-booking-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB

	// paymentsEnabled is resolved once at startup. A missing payments
	// table is a provisioning gap, not a transient failure, and only
	// disables payment-intent writes.
	paymentsEnabled bool
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}

	var exists bool
	if err := db.Get(&exists, "SELECT to_regclass('public.payments') IS NOT NULL"); err != nil {
		return nil, fmt.Errorf("failed to probe payments table: %w", err)
	}
	s.paymentsEnabled = exists

	return s, nil
}

// NewStoreWithDB wraps an existing connection. Used by tests.
func NewStoreWithDB(db *sqlx.DB, paymentsEnabled bool) *Store {
	return &Store{db: db, paymentsEnabled: paymentsEnabled}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// PaymentsEnabled reports whether the payments table was provisioned
func (s *Store) PaymentsEnabled() bool {
	return s.paymentsEnabled
}

// GetRouteByID retrieves a route by ID
func (s *Store) GetRouteByID(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	var route models.Route
	err := s.db.GetContext(ctx, &route,
		`SELECT id, origin, destination, price, bus_company, bus_type, departure, arrival, amenities
		 FROM routes WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, models.ErrRouteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &route, nil
}

// GetBusByID retrieves vehicle metadata. Display-only; lookup failures
// are logged and swallowed by callers.
func (s *Store) GetBusByID(ctx context.Context, id uuid.UUID) (*models.Bus, error) {
	var bus models.Bus
	err := s.db.GetContext(ctx, &bus,
		"SELECT id, model, plate, type FROM buses WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bus not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &bus, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

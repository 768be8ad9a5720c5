package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS flights (
	id                  BIGSERIAL PRIMARY KEY,
	flight_number       TEXT NOT NULL,
	departure_date      DATE NOT NULL,
	airline_code        TEXT NOT NULL,
	airline_name        TEXT NOT NULL DEFAULT '',
	departure_airport   TEXT NOT NULL,
	arrival_airport     TEXT NOT NULL,
	scheduled_departure TIMESTAMPTZ NOT NULL,
	scheduled_arrival   TIMESTAMPTZ NOT NULL,
	arrival_estimated   BOOLEAN NOT NULL DEFAULT FALSE,
	status              TEXT NOT NULL,
	source              TEXT NOT NULL,
	terminal            TEXT NOT NULL DEFAULT '',
	gate                TEXT NOT NULL DEFAULT '',
	observed_at         TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (flight_number, departure_date)
);

CREATE INDEX IF NOT EXISTS idx_flights_route_date ON flights(departure_airport, arrival_airport, departure_date);

CREATE TABLE IF NOT EXISTS fares (
	flight_id       BIGINT NOT NULL REFERENCES flights(id) ON DELETE CASCADE,
	cabin_class     TEXT NOT NULL,
	amount          NUMERIC(12,2) NOT NULL,
	available_seats INTEGER NOT NULL DEFAULT 0,
	observed_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (flight_id, cabin_class)
);

CREATE TABLE IF NOT EXISTS airports (
	code        TEXT PRIMARY KEY,
	name_local  TEXT NOT NULL DEFAULT '',
	name_en     TEXT NOT NULL DEFAULT '',
	city        TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT '',
	is_domestic BOOLEAN NOT NULL DEFAULT FALSE,
	source      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS airlines (
	code        TEXT PRIMARY KEY,
	name_local  TEXT NOT NULL DEFAULT '',
	name_en     TEXT NOT NULL DEFAULT '',
	country     TEXT NOT NULL DEFAULT '',
	is_domestic BOOLEAN NOT NULL DEFAULT FALSE,
	source      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// CreateSchema creates the tables if they do not exist yet.
func CreateSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Store bundles the repositories behind the persistence layer.
type Store struct {
	FlightRepository
	ReferenceRepository
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		FlightRepository:    NewFlightRepository(db),
		ReferenceRepository: NewReferenceRepository(db),
	}
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FlightRepository interface {
	UpsertFlight(ctx context.Context, f domain.NormalizedFlight) (domain.UpsertOutcome, error)
	ListByRoute(ctx context.Context, route domain.Route, date time.Time) ([]domain.NormalizedFlight, error)
}

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

// The WHERE clause leaves identical rows untouched, so RETURNING yields nothing for them.
const upsertFlightSQL = `
INSERT INTO flights (flight_number, departure_date, airline_code, airline_name, departure_airport, arrival_airport,
	scheduled_departure, scheduled_arrival, arrival_estimated, status, source, terminal, gate, observed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (flight_number, departure_date) DO UPDATE SET
	airline_code = EXCLUDED.airline_code,
	airline_name = EXCLUDED.airline_name,
	departure_airport = EXCLUDED.departure_airport,
	arrival_airport = EXCLUDED.arrival_airport,
	scheduled_departure = EXCLUDED.scheduled_departure,
	scheduled_arrival = EXCLUDED.scheduled_arrival,
	arrival_estimated = EXCLUDED.arrival_estimated,
	status = EXCLUDED.status,
	source = EXCLUDED.source,
	terminal = EXCLUDED.terminal,
	gate = EXCLUDED.gate,
	observed_at = EXCLUDED.observed_at,
	updated_at = now()
WHERE (flights.airline_code, flights.airline_name, flights.departure_airport, flights.arrival_airport,
	flights.scheduled_departure, flights.scheduled_arrival, flights.arrival_estimated, flights.status,
	flights.source, flights.terminal, flights.gate)
	IS DISTINCT FROM
	(EXCLUDED.airline_code, EXCLUDED.airline_name, EXCLUDED.departure_airport, EXCLUDED.arrival_airport,
	EXCLUDED.scheduled_departure, EXCLUDED.scheduled_arrival, EXCLUDED.arrival_estimated, EXCLUDED.status,
	EXCLUDED.source, EXCLUDED.terminal, EXCLUDED.gate)
RETURNING id, (xmax = 0) AS inserted`

// UpsertFlight writes the flight and its fares in one transaction, matched by
// flight number and departure date. Fares are replaced only when the record carries any.
func (r *PGFlightRepository) UpsertFlight(ctx context.Context, f domain.NormalizedFlight) (domain.UpsertOutcome, error) {
	key := f.Key()
	depDate, err := time.Parse(domain.DateLayout, key.Date)
	if err != nil {
		return 0, fmt.Errorf("departure date: %w", err)
	}

	outcome := domain.OutcomeUnchanged
	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var (
			id       int64
			inserted bool
		)
		err := tx.QueryRow(ctx, upsertFlightSQL,
			key.FlightNumber, depDate, strings.ToUpper(f.AirlineCode), f.AirlineName,
			strings.ToUpper(f.DepartureAirportCode), strings.ToUpper(f.ArrivalAirportCode),
			f.ScheduledDeparture, f.ScheduledArrival, f.ArrivalEstimated,
			string(f.Status), string(f.Source), f.Terminal, f.Gate, f.ObservedAt,
		).Scan(&id, &inserted)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if err := tx.QueryRow(ctx, `SELECT id FROM flights WHERE flight_number=$1 AND departure_date=$2`, key.FlightNumber, depDate).Scan(&id); err != nil {
				return fmt.Errorf("lookup flight: %w", err)
			}
		case err != nil:
			return fmt.Errorf("upsert flight: %w", err)
		case inserted:
			outcome = domain.OutcomeInserted
		default:
			outcome = domain.OutcomeUpdated
		}

		if len(f.Fares) == 0 {
			return nil
		}
		changed, err := replaceFares(ctx, tx, id, f.Fares)
		if err != nil {
			return err
		}
		if changed && outcome == domain.OutcomeUnchanged {
			outcome = domain.OutcomeUpdated
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

func replaceFares(ctx context.Context, tx pgx.Tx, flightID int64, fares []domain.FareQuote) (bool, error) {
	current, err := loadFares(ctx, tx, []int64{flightID})
	if err != nil {
		return false, err
	}
	if faresEqual(current[flightID], fares) {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM fares WHERE flight_id=$1`, flightID); err != nil {
		return false, fmt.Errorf("delete fares: %w", err)
	}
	batch := &pgx.Batch{}
	for _, q := range fares {
		batch.Queue(`INSERT INTO fares (flight_id, cabin_class, amount, available_seats, observed_at) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (flight_id, cabin_class) DO UPDATE SET amount = EXCLUDED.amount, available_seats = EXCLUDED.available_seats, observed_at = EXCLUDED.observed_at`,
			flightID, strings.ToUpper(q.CabinClass), q.Amount, q.AvailableSeats, q.ObservedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("insert fares: %w", err)
	}
	return true, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadFares(ctx context.Context, q querier, ids []int64) (map[int64][]domain.FareQuote, error) {
	rows, err := q.Query(ctx, `SELECT flight_id, cabin_class, amount::float8, available_seats, observed_at FROM fares WHERE flight_id = ANY($1) ORDER BY cabin_class`, ids)
	if err != nil {
		return nil, fmt.Errorf("load fares: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]domain.FareQuote)
	for rows.Next() {
		var (
			id int64
			q  domain.FareQuote
		)
		if err := rows.Scan(&id, &q.CabinClass, &q.Amount, &q.AvailableSeats, &q.ObservedAt); err != nil {
			return nil, err
		}
		out[id] = append(out[id], q)
	}
	return out, rows.Err()
}

// faresEqual compares cabin, amount and seats, ignoring order and observation time.
func faresEqual(a, b []domain.FareQuote) bool {
	if len(a) != len(b) {
		return false
	}
	type fare struct {
		cabin  string
		amount float64
		seats  int
	}
	norm := func(qs []domain.FareQuote) []fare {
		out := make([]fare, len(qs))
		for i, q := range qs {
			out[i] = fare{strings.ToUpper(q.CabinClass), q.Amount, q.AvailableSeats}
		}
		slices.SortFunc(out, func(x, y fare) int { return strings.Compare(x.cabin, y.cabin) })
		return out
	}
	return slices.Equal(norm(a), norm(b))
}

func (r *PGFlightRepository) ListByRoute(ctx context.Context, route domain.Route, date time.Time) ([]domain.NormalizedFlight, error) {
	day, err := time.Parse(domain.DateLayout, date.Format(domain.DateLayout))
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, flight_number, airline_code, airline_name, departure_airport, arrival_airport,
		scheduled_departure, scheduled_arrival, arrival_estimated, status, source, terminal, gate, observed_at
		FROM flights WHERE departure_airport=$1 AND arrival_airport=$2 AND departure_date=$3
		ORDER BY scheduled_departure, flight_number`, route.Departure, route.Arrival, day)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer rows.Close()

	var (
		ids     []int64
		flights = make([]domain.NormalizedFlight, 0)
	)
	for rows.Next() {
		var (
			id             int64
			f              domain.NormalizedFlight
			status, source string
		)
		if err := rows.Scan(&id, &f.FlightNumber, &f.AirlineCode, &f.AirlineName, &f.DepartureAirportCode, &f.ArrivalAirportCode,
			&f.ScheduledDeparture, &f.ScheduledArrival, &f.ArrivalEstimated, &status, &source, &f.Terminal, &f.Gate, &f.ObservedAt); err != nil {
			return nil, err
		}
		f.Status = domain.FlightStatus(status)
		f.Source = domain.Source(source)
		ids = append(ids, id)
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return flights, nil
	}

	fares, err := loadFares(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		flights[i].Fares = fares[id]
	}
	return flights, nil
}

var _ FlightRepository = (*PGFlightRepository)(nil)

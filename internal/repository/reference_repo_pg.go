package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReferenceRepository interface {
	UpsertAirport(ctx context.Context, a domain.NormalizedAirport) (domain.UpsertOutcome, error)
	UpsertAirline(ctx context.Context, a domain.NormalizedAirline) (domain.UpsertOutcome, error)
	LoadTranslations(ctx context.Context) (airports, airlines map[string]string, err error)
}

type PGReferenceRepository struct {
	db *pgxpool.Pool
}

func NewReferenceRepository(db *pgxpool.Pool) ReferenceRepository {
	return &PGReferenceRepository{db: db}
}

// Existing localized names are kept when the incoming record has none.
const upsertAirportSQL = `
INSERT INTO airports (code, name_local, name_en, city, country, is_domestic, source)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (code) DO UPDATE SET
	name_local = COALESCE(NULLIF(EXCLUDED.name_local, ''), airports.name_local),
	name_en = COALESCE(NULLIF(EXCLUDED.name_en, ''), airports.name_en),
	city = COALESCE(NULLIF(EXCLUDED.city, ''), airports.city),
	country = COALESCE(NULLIF(EXCLUDED.country, ''), airports.country),
	is_domestic = EXCLUDED.is_domestic OR airports.is_domestic,
	source = EXCLUDED.source,
	updated_at = now()
WHERE (airports.name_local, airports.name_en, airports.city, airports.country, airports.is_domestic)
	IS DISTINCT FROM
	(COALESCE(NULLIF(EXCLUDED.name_local, ''), airports.name_local), COALESCE(NULLIF(EXCLUDED.name_en, ''), airports.name_en),
	COALESCE(NULLIF(EXCLUDED.city, ''), airports.city), COALESCE(NULLIF(EXCLUDED.country, ''), airports.country),
	EXCLUDED.is_domestic OR airports.is_domestic)
RETURNING (xmax = 0) AS inserted`

const upsertAirlineSQL = `
INSERT INTO airlines (code, name_local, name_en, country, is_domestic, source)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (code) DO UPDATE SET
	name_local = COALESCE(NULLIF(EXCLUDED.name_local, ''), airlines.name_local),
	name_en = COALESCE(NULLIF(EXCLUDED.name_en, ''), airlines.name_en),
	country = COALESCE(NULLIF(EXCLUDED.country, ''), airlines.country),
	is_domestic = EXCLUDED.is_domestic OR airlines.is_domestic,
	source = EXCLUDED.source,
	updated_at = now()
WHERE (airlines.name_local, airlines.name_en, airlines.country, airlines.is_domestic)
	IS DISTINCT FROM
	(COALESCE(NULLIF(EXCLUDED.name_local, ''), airlines.name_local), COALESCE(NULLIF(EXCLUDED.name_en, ''), airlines.name_en),
	COALESCE(NULLIF(EXCLUDED.country, ''), airlines.country), EXCLUDED.is_domestic OR airlines.is_domestic)
RETURNING (xmax = 0) AS inserted`

func scanOutcome(row pgx.Row) (domain.UpsertOutcome, error) {
	var inserted bool
	err := row.Scan(&inserted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.OutcomeUnchanged, nil
	case err != nil:
		return 0, err
	case inserted:
		return domain.OutcomeInserted, nil
	}
	return domain.OutcomeUpdated, nil
}

func (r *PGReferenceRepository) UpsertAirport(ctx context.Context, a domain.NormalizedAirport) (domain.UpsertOutcome, error) {
	outcome, err := scanOutcome(r.db.QueryRow(ctx, upsertAirportSQL,
		strings.ToUpper(a.Code), a.NameLocal, a.NameEN, a.City, a.Country, a.IsDomestic, string(a.Source)))
	if err != nil {
		return 0, fmt.Errorf("upsert airport %s: %w", a.Code, err)
	}
	return outcome, nil
}

func (r *PGReferenceRepository) UpsertAirline(ctx context.Context, a domain.NormalizedAirline) (domain.UpsertOutcome, error) {
	outcome, err := scanOutcome(r.db.QueryRow(ctx, upsertAirlineSQL,
		strings.ToUpper(a.Code), a.NameLocal, a.NameEN, a.Country, a.IsDomestic, string(a.Source)))
	if err != nil {
		return 0, fmt.Errorf("upsert airline %s: %w", a.Code, err)
	}
	return outcome, nil
}

// LoadTranslations returns code to display name maps, preferring the localized name.
func (r *PGReferenceRepository) LoadTranslations(ctx context.Context) (map[string]string, map[string]string, error) {
	airports, err := r.names(ctx, `SELECT code, COALESCE(NULLIF(name_local, ''), name_en) FROM airports`)
	if err != nil {
		return nil, nil, fmt.Errorf("load airport names: %w", err)
	}
	airlines, err := r.names(ctx, `SELECT code, COALESCE(NULLIF(name_local, ''), name_en) FROM airlines`)
	if err != nil {
		return nil, nil, fmt.Errorf("load airline names: %w", err)
	}
	return airports, airlines, nil
}

func (r *PGReferenceRepository) names(ctx context.Context, sql string) (map[string]string, error) {
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			return nil, err
		}
		if name != "" {
			out[code] = name
		}
	}
	return out, rows.Err()
}

var _ ReferenceRepository = (*PGReferenceRepository)(nil)

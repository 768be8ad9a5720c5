package repository

import (
	"testing"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewFlightRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewFlightRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewStore(t *testing.T) {
	s := NewStore(&pgxpool.Pool{})
	assert.NotNil(t, s.FlightRepository)
	assert.NotNil(t, s.ReferenceRepository)
}

func TestFaresEqual(t *testing.T) {
	now := time.Now()
	a := []domain.FareQuote{
		{CabinClass: "ECONOMY", Amount: 9000, AvailableSeats: 4, ObservedAt: now},
		{CabinClass: "BUSINESS", Amount: 30000, AvailableSeats: 1, ObservedAt: now},
	}
	b := []domain.FareQuote{
		{CabinClass: "business", Amount: 30000, AvailableSeats: 1, ObservedAt: now.Add(time.Hour)},
		{CabinClass: "economy", Amount: 9000, AvailableSeats: 4},
	}
	assert.True(t, faresEqual(a, b))

	b[1].Amount = 8800
	assert.False(t, faresEqual(a, b))
	assert.False(t, faresEqual(a, a[:1]))
	assert.True(t, faresEqual(nil, nil))
}

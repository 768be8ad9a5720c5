package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAdapter struct {
	mock.Mock
	source domain.Source
}

func (m *MockAdapter) Source() domain.Source { return m.source }

func (m *MockAdapter) FetchFlights(ctx context.Context, departure, arrival string, date time.Time) ([]domain.NormalizedFlight, error) {
	args := m.Called(ctx, departure, arrival, date)
	flights, _ := args.Get(0).([]domain.NormalizedFlight)
	return flights, args.Error(1)
}

func (m *MockAdapter) FetchAirports(ctx context.Context) ([]domain.NormalizedAirport, error) {
	args := m.Called(ctx)
	airports, _ := args.Get(0).([]domain.NormalizedAirport)
	return airports, args.Error(1)
}

func (m *MockAdapter) FetchAirlines(ctx context.Context) ([]domain.NormalizedAirline, error) {
	args := m.Called(ctx)
	airlines, _ := args.Get(0).([]domain.NormalizedAirline)
	return airlines, args.Error(1)
}

var (
	syncDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	observed = time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)
)

func flight(number, airline, dep, arr string, hour int, src domain.Source) domain.NormalizedFlight {
	d := time.Date(2025, 6, 1, hour, 0, 0, 0, time.UTC)
	return domain.NormalizedFlight{
		FlightNumber:         number,
		AirlineCode:          airline,
		DepartureAirportCode: dep,
		ArrivalAirportCode:   arr,
		ScheduledDeparture:   d,
		ScheduledArrival:     d.Add(3 * time.Hour),
		Status:               domain.FlightStatusScheduled,
		Source:               src,
		ObservedAt:           observed,
	}
}

func newEngine() (*Engine, *MockAdapter, *MockAdapter) {
	dom := &MockAdapter{source: domain.SourceDomestic}
	intl := &MockAdapter{source: domain.SourceInternational}
	e := NewEngine(dom, intl, Config{
		DomesticAirports: []string{"TPE", "TSA", "KHH", "MZG"},
		TargetAirlines:   []string{"AE", "B7", "BR", "CI", "JL"},
		MinResults:       3,
	}, nil)
	return e, dom, intl
}

func TestSyncRoute_InternationalScenario(t *testing.T) {
	e, dom, intl := newEngine()
	intl.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return([]domain.NormalizedFlight{
		flight("BR198", "BR", "TPE", "NRT", 8, domain.SourceInternational),
		flight("JL099", "JL", "TPE", "NRT", 15, domain.SourceInternational),
	}, nil)
	dom.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return([]domain.NormalizedFlight{}, nil)

	res, err := e.SyncRoute(context.Background(), domain.NewRoute("TPE", "NRT"), syncDate)
	require.NoError(t, err)
	require.Len(t, res.Flights, 2)
	assert.Equal(t, "BR198", res.Flights[0].FlightNumber)
	assert.Equal(t, "JL099", res.Flights[1].FlightNumber)
	assert.False(t, res.Partial)
	assert.Equal(t, []domain.Source{domain.SourceInternational, domain.SourceDomestic}, res.Sources)
	intl.AssertExpectations(t)
	dom.AssertExpectations(t)
}

func TestSyncRoute_InternationalEnoughResultsSkipsDomestic(t *testing.T) {
	e, dom, intl := newEngine()
	intl.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return([]domain.NormalizedFlight{
		flight("BR198", "BR", "TPE", "NRT", 8, domain.SourceInternational),
		flight("BR196", "BR", "TPE", "NRT", 9, domain.SourceInternational),
		flight("CI100", "CI", "TPE", "NRT", 10, domain.SourceInternational),
		flight("ZZ001", "ZZ", "TPE", "NRT", 11, domain.SourceInternational),
	}, nil)

	res, err := e.SyncRoute(context.Background(), domain.NewRoute("TPE", "NRT"), syncDate)
	require.NoError(t, err)
	assert.Len(t, res.Flights, 3)
	dom.AssertNotCalled(t, "FetchFlights", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncRoute_DomesticFallsBackToInternational(t *testing.T) {
	e, dom, intl := newEngine()
	dom.On("FetchFlights", mock.Anything, "TSA", "MZG", syncDate).Return([]domain.NormalizedFlight{}, nil)
	intl.On("FetchFlights", mock.Anything, "TSA", "MZG", syncDate).Return([]domain.NormalizedFlight{
		flight("AE7931", "AE", "TSA", "MZG", 7, domain.SourceInternational),
		flight("XX100", "XX", "TSA", "MZG", 8, domain.SourceInternational),
	}, nil)

	res, err := e.SyncRoute(context.Background(), domain.NewRoute("TSA", "MZG"), syncDate)
	require.NoError(t, err)
	require.Len(t, res.Flights, 1)
	assert.Equal(t, "AE7931", res.Flights[0].FlightNumber)
}

func TestSyncRoute_DomesticWithResultsDoesNotFallBack(t *testing.T) {
	e, dom, intl := newEngine()
	dom.On("FetchFlights", mock.Anything, "TSA", "MZG", syncDate).Return([]domain.NormalizedFlight{
		flight("AE7931", "AE", "TSA", "MZG", 7, domain.SourceDomestic),
	}, nil)

	res, err := e.SyncRoute(context.Background(), domain.NewRoute("tsa", "mzg"), syncDate)
	require.NoError(t, err)
	assert.Len(t, res.Flights, 1)
	intl.AssertNotCalled(t, "FetchFlights", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncRoute_DeduplicatesAcrossSources(t *testing.T) {
	e, dom, intl := newEngine()

	intlRec := flight("BR198", "BR", "TPE", "NRT", 8, domain.SourceInternational)
	intlRec.AirlineName = "EVA Air"
	intlRec.Fares = []domain.FareQuote{
		{CabinClass: "ECONOMY", Amount: 9000, ObservedAt: observed},
		{CabinClass: "BUSINESS", Amount: 30000, ObservedAt: observed},
	}

	domRec := flight("br198", "BR", "TPE", "NRT", 8, domain.SourceDomestic)
	domRec.Status = domain.FlightStatusDelayed
	domRec.Gate = "C5"
	domRec.ObservedAt = observed.Add(time.Hour)
	domRec.Fares = []domain.FareQuote{{CabinClass: "economy", Amount: 8500, ObservedAt: observed.Add(time.Hour)}}

	intl.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return([]domain.NormalizedFlight{intlRec}, nil)
	dom.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return([]domain.NormalizedFlight{domRec}, nil)

	res, err := e.SyncRoute(context.Background(), domain.NewRoute("TPE", "NRT"), syncDate)
	require.NoError(t, err)
	require.Len(t, res.Flights, 1)

	got := res.Flights[0]
	assert.Equal(t, "BR198", got.FlightNumber)
	assert.Equal(t, domain.FlightStatusDelayed, got.Status)
	assert.Equal(t, "C5", got.Gate)
	assert.Equal(t, "EVA Air", got.AirlineName)
	require.Len(t, got.Fares, 2)
	assert.Equal(t, 8500.0, got.Fares[0].Amount)
	assert.Equal(t, 30000.0, got.Fares[1].Amount)
}

func TestSyncRoute_UpstreamFailureYieldsPartialResult(t *testing.T) {
	e, dom, intl := newEngine()
	intl.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return(nil, &domain.UpstreamError{API: "international", Attempts: 4, Err: errors.New("503")})
	dom.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return([]domain.NormalizedFlight{
		flight("CI100", "CI", "TPE", "NRT", 10, domain.SourceDomestic),
	}, nil)

	res, err := e.SyncRoute(context.Background(), domain.NewRoute("TPE", "NRT"), syncDate)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Len(t, res.Flights, 1)
	assert.Equal(t, []domain.Source{domain.SourceDomestic}, res.Sources)
	assert.Contains(t, res.Message, "degraded")
}

func TestSyncRoute_SingleAuthFailureIsPartial(t *testing.T) {
	e, dom, intl := newEngine()
	dom.On("FetchFlights", mock.Anything, "TSA", "KHH", syncDate).Return(nil, &domain.AuthError{API: "domestic", Err: errors.New("invalid_client")})
	intl.On("FetchFlights", mock.Anything, "TSA", "KHH", syncDate).Return([]domain.NormalizedFlight{
		flight("B78701", "B7", "TSA", "KHH", 9, domain.SourceInternational),
	}, nil)

	res, err := e.SyncRoute(context.Background(), domain.NewRoute("TSA", "KHH"), syncDate)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Len(t, res.Flights, 1)
}

func TestSyncRoute_BothAuthFailuresAbort(t *testing.T) {
	e, dom, intl := newEngine()
	dom.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return(nil, &domain.AuthError{API: "domestic", Err: errors.New("denied")})
	intl.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return(nil, &domain.AuthError{API: "international", Err: errors.New("denied")})

	_, err := e.SyncRoute(context.Background(), domain.NewRoute("TPE", "NRT"), syncDate)
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
}

func TestSyncRoute_BothUpstreamFailuresArePartialNotFatal(t *testing.T) {
	e, dom, intl := newEngine()
	dom.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return(nil, &domain.UpstreamError{API: "domestic"})
	intl.On("FetchFlights", mock.Anything, "TPE", "NRT", syncDate).Return(nil, &domain.AuthError{API: "international"})

	res, err := e.SyncRoute(context.Background(), domain.NewRoute("TPE", "NRT"), syncDate)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Empty(t, res.Flights)
}

func TestMerge_PassesThroughInvalidRecords(t *testing.T) {
	valid := flight("BR198", "BR", "TPE", "NRT", 8, domain.SourceInternational)
	invalid := flight("", "BR", "TPE", "NRT", 9, domain.SourceInternational)

	out := Merge([]domain.NormalizedFlight{valid, invalid}, []domain.NormalizedFlight{valid})
	assert.Len(t, out, 2)
}

func TestMergeStatus(t *testing.T) {
	assert.Equal(t, domain.FlightStatusCancelled, mergeStatus(domain.FlightStatusCancelled, domain.FlightStatusDelayed))
	assert.Equal(t, domain.FlightStatusDelayed, mergeStatus(domain.FlightStatusScheduled, domain.FlightStatusDelayed))
	assert.Equal(t, domain.FlightStatusScheduled, mergeStatus("", domain.FlightStatusScheduled))
}

func TestReference_MergesSourcesByCode(t *testing.T) {
	e, dom, intl := newEngine()
	dom.On("FetchAirports", mock.Anything).Return([]domain.NormalizedAirport{
		{Code: "TPE", NameLocal: "臺灣桃園國際機場", NameEN: "Taoyuan", IsDomestic: true, Source: domain.SourceDomestic},
	}, nil)
	intl.On("FetchAirports", mock.Anything).Return([]domain.NormalizedAirport{
		{Code: "TPE", NameEN: "Taiwan Taoyuan International Airport", City: "Taipei", Country: "TW", Source: domain.SourceInternational},
		{Code: "NRT", NameEN: "Narita", Country: "JP", Source: domain.SourceInternational},
	}, nil)
	dom.On("FetchAirlines", mock.Anything).Return(nil, &domain.UpstreamError{API: "domestic"})
	intl.On("FetchAirlines", mock.Anything).Return([]domain.NormalizedAirline{{Code: "JL", NameEN: "JAL"}}, nil)

	res, err := e.Reference(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Partial)
	require.Len(t, res.Airports, 2)
	assert.Equal(t, "臺灣桃園國際機場", res.Airports[0].NameLocal)
	assert.Equal(t, "Taoyuan", res.Airports[0].NameEN)
	assert.Equal(t, "Taipei", res.Airports[0].City)
	assert.Equal(t, "TW", res.Airports[0].Country)
	assert.Len(t, res.Airlines, 1)
}

func TestIsDomesticRoute(t *testing.T) {
	e, _, _ := newEngine()
	assert.True(t, e.IsDomesticRoute(domain.NewRoute("TSA", "KHH")))
	assert.False(t, e.IsDomesticRoute(domain.NewRoute("TPE", "NRT")))
	assert.True(t, e.IsTargetAirline("br"))
	assert.False(t, e.IsTargetAirline("NH"))
}

package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const fidsPayload = `{
  "UpdateTime": "2025-06-01T07:00:00+08:00",
  "FIDSAirport": [
    {"FlightNumber": "AE7931", "AirlineID": "AE", "DepartureAirportID": "TSA", "ArrivalAirportID": "MZG",
     "ScheduleDepartureTime": "2025-06-01T07:30", "ScheduleArrivalTime": "2025-06-01T08:20",
     "DepartureRemark": "已出發", "Terminal": "1", "Gate": "5", "UpdateTime": "2025-06-01T07:40:00+08:00"},
    {"FlightNumber": "8701", "AirlineID": "B7", "DepartureAirportID": "TSA", "ArrivalAirportID": "MZG",
     "ScheduleDepartureTime": "2025-06-01T09:10:00", "DepartureRemark": "Delayed"},
    {"FlightNumber": "AE1271", "AirlineID": "AE", "DepartureAirportID": "TSA", "ArrivalAirportID": "KNH",
     "ScheduleDepartureTime": "2025-06-01T10:00"}
  ]
}`

func TestDomestic_FetchFlights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/Air/FIDS/Airport/Departure/TSA", r.URL.Path)
		assert.Equal(t, "date(ScheduleDepartureTime) eq 2025-06-01", r.URL.Query().Get("$filter"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(fidsPayload))
	}))
	defer srv.Close()

	tokens := new(MockTokenSource)
	tokens.On("Get", mock.Anything, APIDomestic).Return(domain.Token{Value: "tok"}, nil)

	d := NewDomestic(newClient(APIDomestic), tokens, srv.URL, testDomestic, nil)
	flights, err := d.FetchFlights(context.Background(), "tsa", "mzg", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, flights, 2)

	first := flights[0]
	assert.Equal(t, "AE7931", first.FlightNumber)
	assert.Equal(t, "AE", first.AirlineCode)
	assert.Equal(t, domain.FlightStatusDeparted, first.Status)
	assert.Equal(t, domain.SourceDomestic, first.Source)
	assert.Equal(t, "5", first.Gate)
	assert.False(t, first.ArrivalEstimated)
	assert.Equal(t, 7, first.ObservedAt.Hour())

	second := flights[1]
	assert.Equal(t, "B78701", second.FlightNumber)
	assert.Equal(t, domain.FlightStatusDelayed, second.Status)
	assert.True(t, second.ArrivalEstimated)
	assert.Equal(t, time.Hour, second.ScheduledArrival.Sub(second.ScheduledDeparture))
	assert.Equal(t, "2025-06-01", second.Key().Date)
	tokens.AssertExpectations(t)
}

func TestDomestic_UnauthorizedInvalidatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := new(MockTokenSource)
	tokens.On("Get", mock.Anything, APIDomestic).Return(domain.Token{Value: "stale"}, nil)
	tokens.On("Invalidate", APIDomestic).Return()

	d := NewDomestic(newClient(APIDomestic), tokens, srv.URL, testDomestic, nil)
	_, err := d.FetchFlights(context.Background(), "TPE", "KHH", time.Now())
	assert.True(t, domain.IsAuthError(err))
	tokens.AssertCalled(t, "Invalidate", APIDomestic)
}

func TestDomestic_TokenFailure(t *testing.T) {
	tokens := new(MockTokenSource)
	tokens.On("Get", mock.Anything, APIDomestic).Return(domain.Token{}, &domain.AuthError{API: APIDomestic})

	d := NewDomestic(newClient(APIDomestic), tokens, "http://127.0.0.1:0", testDomestic, nil)
	_, err := d.FetchAirports(context.Background())
	assert.True(t, domain.IsAuthError(err))
}

func TestDomestic_FetchReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/Air/Airport":
			w.Write([]byte(`[
			  {"AirportID":"TSA","AirportIATA":"TSA","AirportName":{"Zh_tw":"臺北松山機場","En":"Taipei Songshan Airport"},"AirportCityName":{"Zh_tw":"臺北市"}},
			  {"AirportID":"RCSS","AirportName":{"Zh_tw":"??"}}
			]`))
		case "/v2/Air/Airline":
			w.Write([]byte(`{"Airlines":[
			  {"AirlineID":"AE","AirlineName":{"Zh_tw":"華信航空","En":"Mandarin Airlines"},"AirlineNationality":"TW"},
			  {"AirlineID":"JL","AirlineName":{"Zh_tw":"日本航空","En":"Japan Airlines"},"AirlineNationality":"JP"}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tokens := new(MockTokenSource)
	tokens.On("Get", mock.Anything, APIDomestic).Return(domain.Token{Value: "tok"}, nil)
	d := NewDomestic(newClient(APIDomestic), tokens, srv.URL, testDomestic, nil)

	airports, err := d.FetchAirports(context.Background())
	require.NoError(t, err)
	require.Len(t, airports, 1)
	assert.Equal(t, "TSA", airports[0].Code)
	assert.Equal(t, "臺北松山機場", airports[0].NameLocal)
	assert.Equal(t, "臺北市", airports[0].City)
	assert.Equal(t, "TW", airports[0].Country)
	assert.True(t, airports[0].IsDomestic)

	airlines, err := d.FetchAirlines(context.Background())
	require.NoError(t, err)
	require.Len(t, airlines, 2)
	assert.True(t, airlines[0].IsDomestic)
	assert.False(t, airlines[1].IsDomestic)
	assert.Equal(t, "Japan Airlines", airlines[1].NameEN)
}

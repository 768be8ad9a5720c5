package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/upstream"
	"go.uber.org/zap"
)

// International reads the flight-status API. Credentials are an app id plus
// the key held by the token source, both sent as query parameters.
type International struct {
	client   *upstream.Client
	tokens   TokenSource
	baseURL  string
	appID    string
	domestic domain.CodeSet
	loc      *time.Location
	now      func() time.Time
	log      *zap.Logger
}

func NewInternational(client *upstream.Client, tokens TokenSource, baseURL, appID string, domestic domain.CodeSet, log *zap.Logger) *International {
	if log == nil {
		log = zap.NewNop()
	}
	return &International{
		client:   client,
		tokens:   tokens,
		baseURL:  strings.TrimRight(baseURL, "/"),
		appID:    appID,
		domestic: domestic,
		loc:      taipei(),
		now:      time.Now,
		log:      log.With(zap.String("adapter", APIInternational)),
	}
}

func (a *International) Source() domain.Source { return domain.SourceInternational }

type fsScheduledFlight struct {
	CarrierFsCode          string `json:"carrierFsCode"`
	FlightNumber           string `json:"flightNumber"`
	DepartureAirportFsCode string `json:"departureAirportFsCode"`
	ArrivalAirportFsCode   string `json:"arrivalAirportFsCode"`
	DepartureTime          string `json:"departureTime"`
	ArrivalTime            string `json:"arrivalTime"`
	DepartureTerminal      string `json:"departureTerminal"`
	IsCodeshare            bool   `json:"isCodeshare"`
}

type fsAirline struct {
	Fs     string `json:"fs"`
	Iata   string `json:"iata"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type fsAirport struct {
	Fs          string `json:"fs"`
	Iata        string `json:"iata"`
	Name        string `json:"name"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
	Active      bool   `json:"active"`
}

type fsSchedulesResponse struct {
	ScheduledFlights []fsScheduledFlight `json:"scheduledFlights"`
	Appendix         struct {
		Airlines []fsAirline `json:"airlines"`
		Airports []fsAirport `json:"airports"`
	} `json:"appendix"`
}

type fsDelayRating struct {
	DepartureAirportFsCode string  `json:"departureAirportFsCode"`
	ArrivalAirportFsCode   string  `json:"arrivalAirportFsCode"`
	Observations           int     `json:"observations"`
	Ontime                 int     `json:"ontime"`
	Late15                 int     `json:"late15"`
	Late30                 int     `json:"late30"`
	Late45                 int     `json:"late45"`
	Cancelled              int     `json:"cancelled"`
	DelayMean              float64 `json:"delayMean"`
}

func (a *International) get(ctx context.Context, path string, query url.Values) (*upstream.Response, error) {
	tok, err := a.tokens.Get(ctx, APIInternational)
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("appId", a.appID)
	query.Set("appKey", tok.Value)
	resp, err := a.client.Get(ctx, a.baseURL+path, query, nil)
	if err != nil {
		return nil, authFailure(err, APIInternational, a.tokens)
	}
	return resp, nil
}

// FetchFlights returns scheduled flights for the route departing on date.
// Codeshare duplicates are dropped so that each operating flight appears once.
func (a *International) FetchFlights(ctx context.Context, departure, arrival string, date time.Time) ([]domain.NormalizedFlight, error) {
	route := domain.NewRoute(departure, arrival)
	path := fmt.Sprintf("/schedules/rest/v1/json/from/%s/to/%s/departing/%d/%d/%d",
		url.PathEscape(route.Departure), url.PathEscape(route.Arrival), date.Year(), int(date.Month()), date.Day())

	resp, err := a.get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch international schedules %s: %w", route, err)
	}
	var body fsSchedulesResponse
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}

	airlines := make(map[string]fsAirline, len(body.Appendix.Airlines))
	for _, al := range body.Appendix.Airlines {
		airlines[strings.ToUpper(al.Fs)] = al
	}
	airports := make(map[string]fsAirport, len(body.Appendix.Airports))
	for _, ap := range body.Appendix.Airports {
		airports[strings.ToUpper(ap.Fs)] = ap
	}

	domesticRoute := a.domestic.IsDomesticRoute(route)
	observed := a.now()
	flights := make([]domain.NormalizedFlight, 0, len(body.ScheduledFlights))
	for _, s := range body.ScheduledFlights {
		if s.IsCodeshare {
			continue
		}
		carrier := strings.ToUpper(strings.TrimSpace(s.CarrierFsCode))
		al := airlines[carrier]
		if al.Iata != "" {
			carrier = strings.ToUpper(al.Iata)
		}
		dep := iataOf(airports, s.DepartureAirportFsCode)
		arr := iataOf(airports, s.ArrivalAirportFsCode)

		f := domain.NormalizedFlight{
			FlightNumber:         flightNumber(carrier, s.FlightNumber),
			AirlineCode:          carrier,
			AirlineName:          al.Name,
			DepartureAirportCode: dep,
			DepartureAirportName: airports[strings.ToUpper(s.DepartureAirportFsCode)].Name,
			ArrivalAirportCode:   arr,
			ArrivalAirportName:   airports[strings.ToUpper(s.ArrivalAirportFsCode)].Name,
			Status:               domain.FlightStatusScheduled,
			Source:               domain.SourceInternational,
			Terminal:             s.DepartureTerminal,
			ObservedAt:           observed,
		}
		if t, ok := parseTime(s.DepartureTime, a.loc); ok {
			f.ScheduledDeparture = t
		}
		if t, ok := parseTime(s.ArrivalTime, a.loc); ok {
			f.ScheduledArrival = t
		} else if !f.ScheduledDeparture.IsZero() {
			f.ScheduledArrival = EstimateArrival(f.ScheduledDeparture, domesticRoute)
			f.ArrivalEstimated = true
		}
		flights = append(flights, f)
	}

	a.log.Debug("fetched international flights", zap.String("route", route.String()), zap.Int("count", len(flights)))
	return flights, nil
}

func iataOf(airports map[string]fsAirport, fs string) string {
	fs = strings.ToUpper(strings.TrimSpace(fs))
	if ap, ok := airports[fs]; ok && ap.Iata != "" {
		return strings.ToUpper(ap.Iata)
	}
	return fs
}

func (a *International) FetchAirports(ctx context.Context) ([]domain.NormalizedAirport, error) {
	resp, err := a.get(ctx, "/airports/rest/v1/json/active", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch international airports: %w", err)
	}
	raw, err := decodeList[fsAirport](resp.Body, "airports")
	if err != nil {
		return nil, err
	}

	out := make([]domain.NormalizedAirport, 0, len(raw))
	for _, ap := range raw {
		code := strings.ToUpper(strings.TrimSpace(ap.Iata))
		if len(code) != 3 {
			continue
		}
		out = append(out, domain.NormalizedAirport{
			Code:       code,
			NameEN:     ap.Name,
			City:       ap.City,
			Country:    strings.ToUpper(ap.CountryCode),
			IsDomestic: a.domestic.Contains(code),
			Source:     domain.SourceInternational,
		})
	}
	return out, nil
}

func (a *International) FetchAirlines(ctx context.Context) ([]domain.NormalizedAirline, error) {
	resp, err := a.get(ctx, "/airlines/rest/v1/json/active", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch international airlines: %w", err)
	}
	raw, err := decodeList[fsAirline](resp.Body, "airlines")
	if err != nil {
		return nil, err
	}

	out := make([]domain.NormalizedAirline, 0, len(raw))
	for _, al := range raw {
		code := strings.ToUpper(strings.TrimSpace(al.Iata))
		if code == "" {
			continue
		}
		out = append(out, domain.NormalizedAirline{
			Code:   code,
			NameEN: al.Name,
			Source: domain.SourceInternational,
		})
	}
	return out, nil
}

// FetchDelayStats returns the historical delay profile of carrier+number for a month.
func (a *International) FetchDelayStats(ctx context.Context, carrier, number string, year int, month time.Month) (domain.DelayStats, error) {
	carrier = strings.ToUpper(strings.TrimSpace(carrier))
	number = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(number)), carrier)
	path := fmt.Sprintf("/flightstats/rest/v1/json/historical/flight/%s/%s/delays", url.PathEscape(carrier), url.PathEscape(number))
	query := url.Values{}
	query.Set("year", strconv.Itoa(year))
	query.Set("month", strconv.Itoa(int(month)))

	stats := domain.DelayStats{FlightNumber: carrier + number}
	resp, err := a.get(ctx, path, query)
	if err != nil {
		return stats, fmt.Errorf("fetch delay stats %s: %w", stats.FlightNumber, err)
	}
	ratings, err := decodeList[fsDelayRating](resp.Body, "ratings")
	if err != nil {
		return stats, err
	}
	if len(ratings) == 0 || ratings[0].Observations == 0 {
		return stats, nil
	}

	r := ratings[0]
	obs := float64(r.Observations)
	stats.DepartureAirport = r.DepartureAirportFsCode
	stats.ArrivalAirport = r.ArrivalAirportFsCode
	stats.Observations = r.Observations
	stats.OnTimePercent = percent(float64(r.Ontime), obs)
	stats.DelayedPercent = percent(float64(r.Late15+r.Late30+r.Late45), obs)
	stats.CancelledPercent = percent(float64(r.Cancelled), obs)
	stats.AverageDelayMinutes = r.DelayMean
	return stats, nil
}

func percent(n, total float64) float64 {
	return float64(int(n/total*10000+0.5)) / 100
}

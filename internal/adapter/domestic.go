package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/upstream"
	"go.uber.org/zap"
)

// Domestic reads the transport-data API: FIDS departures per airport plus
// airport and airline reference lists.
type Domestic struct {
	client   *upstream.Client
	tokens   TokenSource
	baseURL  string
	domestic domain.CodeSet
	loc      *time.Location
	now      func() time.Time
	log      *zap.Logger
}

func NewDomestic(client *upstream.Client, tokens TokenSource, baseURL string, domestic domain.CodeSet, log *zap.Logger) *Domestic {
	if log == nil {
		log = zap.NewNop()
	}
	return &Domestic{
		client:   client,
		tokens:   tokens,
		baseURL:  strings.TrimRight(baseURL, "/"),
		domestic: domestic,
		loc:      taipei(),
		now:      time.Now,
		log:      log.With(zap.String("adapter", APIDomestic)),
	}
}

func (d *Domestic) Source() domain.Source { return domain.SourceDomestic }

type localizedName struct {
	ZhTw string `json:"Zh_tw"`
	En   string `json:"En"`
}

type fidsFlight struct {
	FlightNumber          string `json:"FlightNumber"`
	AirlineID             string `json:"AirlineID"`
	DepartureAirportID    string `json:"DepartureAirportID"`
	ArrivalAirportID      string `json:"ArrivalAirportID"`
	ScheduleDepartureTime string `json:"ScheduleDepartureTime"`
	ActualDepartureTime   string `json:"ActualDepartureTime"`
	ScheduleArrivalTime   string `json:"ScheduleArrivalTime"`
	DepartureRemark       string `json:"DepartureRemark"`
	Terminal              string `json:"Terminal"`
	Gate                  string `json:"Gate"`
	UpdateTime            string `json:"UpdateTime"`
}

type tdxAirport struct {
	AirportID       string        `json:"AirportID"`
	AirportIATA     string        `json:"AirportIATA"`
	AirportName     localizedName `json:"AirportName"`
	AirportCityName localizedName `json:"AirportCityName"`
	AirportNation   string        `json:"AirportNationality"`
}

type tdxAirline struct {
	AirlineID          string        `json:"AirlineID"`
	AirlineIATA        string        `json:"AirlineIATA"`
	AirlineName        localizedName `json:"AirlineName"`
	AirlineNationality string        `json:"AirlineNationality"`
}

func (d *Domestic) get(ctx context.Context, path string, query url.Values) (*upstream.Response, error) {
	tok, err := d.tokens.Get(ctx, APIDomestic)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok.Value)
	resp, err := d.client.Get(ctx, d.baseURL+path, query, header)
	if err != nil {
		return nil, authFailure(err, APIDomestic, d.tokens)
	}
	return resp, nil
}

// FetchFlights returns departures from departure to arrival on the local date.
func (d *Domestic) FetchFlights(ctx context.Context, departure, arrival string, date time.Time) ([]domain.NormalizedFlight, error) {
	route := domain.NewRoute(departure, arrival)
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("date(ScheduleDepartureTime) eq %s", date.Format(domain.DateLayout)))
	query.Set("$format", "JSON")

	resp, err := d.get(ctx, "/v2/Air/FIDS/Airport/Departure/"+url.PathEscape(route.Departure), query)
	if err != nil {
		return nil, fmt.Errorf("fetch domestic departures %s: %w", route, err)
	}
	raw, err := decodeList[fidsFlight](resp.Body, "FIDSAirport")
	if err != nil {
		return nil, err
	}

	domesticRoute := d.domestic.IsDomesticRoute(route)
	observed := d.now()
	flights := make([]domain.NormalizedFlight, 0, len(raw))
	for _, r := range raw {
		if !strings.EqualFold(strings.TrimSpace(r.ArrivalAirportID), route.Arrival) {
			continue
		}
		f := domain.NormalizedFlight{
			FlightNumber:         flightNumber(r.AirlineID, r.FlightNumber),
			AirlineCode:          strings.ToUpper(strings.TrimSpace(r.AirlineID)),
			DepartureAirportCode: route.Departure,
			ArrivalAirportCode:   route.Arrival,
			Status:               statusFromRemark(r.DepartureRemark),
			Source:               domain.SourceDomestic,
			Terminal:             strings.TrimSpace(r.Terminal),
			Gate:                 strings.TrimSpace(r.Gate),
			ObservedAt:           observed,
		}
		if t, ok := parseTime(r.UpdateTime, d.loc); ok {
			f.ObservedAt = t
		}
		if t, ok := parseTime(r.ScheduleDepartureTime, d.loc); ok {
			f.ScheduledDeparture = t
		}
		if t, ok := parseTime(r.ScheduleArrivalTime, d.loc); ok {
			f.ScheduledArrival = t
		} else if !f.ScheduledDeparture.IsZero() {
			f.ScheduledArrival = EstimateArrival(f.ScheduledDeparture, domesticRoute)
			f.ArrivalEstimated = true
		}
		if f.Status == domain.FlightStatusScheduled && strings.TrimSpace(r.ActualDepartureTime) != "" {
			f.Status = domain.FlightStatusDeparted
		}
		flights = append(flights, f)
	}

	d.log.Debug("fetched domestic flights", zap.String("route", route.String()), zap.Int("raw", len(raw)), zap.Int("matched", len(flights)))
	return flights, nil
}

func (d *Domestic) FetchAirports(ctx context.Context) ([]domain.NormalizedAirport, error) {
	resp, err := d.get(ctx, "/v2/Air/Airport", url.Values{"$format": {"JSON"}})
	if err != nil {
		return nil, fmt.Errorf("fetch domestic airports: %w", err)
	}
	raw, err := decodeList[tdxAirport](resp.Body, "Airports")
	if err != nil {
		return nil, err
	}

	out := make([]domain.NormalizedAirport, 0, len(raw))
	for _, a := range raw {
		code := strings.ToUpper(strings.TrimSpace(a.AirportIATA))
		if code == "" {
			code = strings.ToUpper(strings.TrimSpace(a.AirportID))
		}
		if len(code) != 3 {
			continue
		}
		isDomestic := d.domestic.Contains(code)
		country := strings.ToUpper(a.AirportNation)
		if country == "" && isDomestic {
			country = "TW"
		}
		out = append(out, domain.NormalizedAirport{
			Code:       code,
			NameLocal:  a.AirportName.ZhTw,
			NameEN:     a.AirportName.En,
			City:       firstNonEmpty(a.AirportCityName.ZhTw, a.AirportCityName.En),
			Country:    country,
			IsDomestic: isDomestic,
			Source:     domain.SourceDomestic,
		})
	}
	return out, nil
}

func (d *Domestic) FetchAirlines(ctx context.Context) ([]domain.NormalizedAirline, error) {
	resp, err := d.get(ctx, "/v2/Air/Airline", url.Values{"$format": {"JSON"}})
	if err != nil {
		return nil, fmt.Errorf("fetch domestic airlines: %w", err)
	}
	raw, err := decodeList[tdxAirline](resp.Body, "Airlines")
	if err != nil {
		return nil, err
	}

	out := make([]domain.NormalizedAirline, 0, len(raw))
	for _, a := range raw {
		code := strings.ToUpper(strings.TrimSpace(firstNonEmpty(a.AirlineIATA, a.AirlineID)))
		if code == "" {
			continue
		}
		country := strings.ToUpper(strings.TrimSpace(a.AirlineNationality))
		out = append(out, domain.NormalizedAirline{
			Code:       code,
			NameLocal:  a.AirlineName.ZhTw,
			NameEN:     a.AirlineName.En,
			Country:    country,
			IsDomestic: country == "TW" || country == "TWN" || country == "TAIWAN",
			Source:     domain.SourceDomestic,
		})
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

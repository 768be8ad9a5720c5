package domain

import (
	"strings"
	"time"
)

type FlightStatus string

const (
	FlightStatusScheduled FlightStatus = "SCHEDULED"
	FlightStatusDelayed   FlightStatus = "DELAYED"
	FlightStatusDeparted  FlightStatus = "DEPARTED"
	FlightStatusArrived   FlightStatus = "ARRIVED"
	FlightStatusCancelled FlightStatus = "CANCELLED"
)

// IsDefault reports whether the status carries no information beyond the timetable.
func (s FlightStatus) IsDefault() bool {
	return s == "" || s == FlightStatusScheduled
}

type Source string

const (
	SourceDomestic      Source = "DOMESTIC"
	SourceInternational Source = "INTERNATIONAL"
)

type FareQuote struct {
	CabinClass     string    `json:"cabin_class"`
	Amount         float64   `json:"amount"`
	AvailableSeats int       `json:"available_seats"`
	ObservedAt     time.Time `json:"observed_at"`
}

type NormalizedFlight struct {
	FlightNumber         string       `json:"flight_number"`
	AirlineCode          string       `json:"airline_code"`
	AirlineName          string       `json:"airline_name,omitempty"`
	DepartureAirportCode string       `json:"departure_airport_code"`
	DepartureAirportName string       `json:"departure_airport_name,omitempty"`
	ArrivalAirportCode   string       `json:"arrival_airport_code"`
	ArrivalAirportName   string       `json:"arrival_airport_name,omitempty"`
	ScheduledDeparture   time.Time    `json:"scheduled_departure"`
	ScheduledArrival     time.Time    `json:"scheduled_arrival"`
	ArrivalEstimated     bool         `json:"arrival_estimated,omitempty"`
	Status               FlightStatus `json:"status"`
	Source               Source       `json:"source"`
	Terminal             string       `json:"terminal,omitempty"`
	Gate                 string       `json:"gate,omitempty"`
	ObservedAt           time.Time    `json:"observed_at"`
	Fares                []FareQuote  `json:"fares,omitempty"`
}

// FlightKey is the natural key of a flight: carrier+number on a calendar day.
type FlightKey struct {
	FlightNumber string
	Date         string
}

func (k FlightKey) String() string {
	return k.FlightNumber + "@" + k.Date
}

func (f NormalizedFlight) Key() FlightKey {
	return FlightKey{
		FlightNumber: strings.ToUpper(f.FlightNumber),
		Date:         f.ScheduledDeparture.Format(DateLayout),
	}
}

// MissingFields lists the required fields that are empty.
func (f NormalizedFlight) MissingFields() []string {
	var missing []string
	if f.FlightNumber == "" {
		missing = append(missing, "flight_number")
	}
	if f.AirlineCode == "" {
		missing = append(missing, "airline_code")
	}
	if f.DepartureAirportCode == "" {
		missing = append(missing, "departure_airport_code")
	}
	if f.ArrivalAirportCode == "" {
		missing = append(missing, "arrival_airport_code")
	}
	if f.ScheduledDeparture.IsZero() {
		missing = append(missing, "scheduled_departure")
	}
	if f.ScheduledArrival.IsZero() {
		missing = append(missing, "scheduled_arrival")
	}
	return missing
}

const DateLayout = "2006-01-02"

type Route struct {
	Departure string `json:"departure" yaml:"departure"`
	Arrival   string `json:"arrival" yaml:"arrival"`
}

func NewRoute(departure, arrival string) Route {
	return Route{
		Departure: strings.ToUpper(strings.TrimSpace(departure)),
		Arrival:   strings.ToUpper(strings.TrimSpace(arrival)),
	}
}

func (r Route) String() string {
	return r.Departure + "-" + r.Arrival
}

type SearchFilters struct {
	AirlineCode string  `json:"airline_code,omitempty"`
	CabinClass  string  `json:"cabin_class,omitempty"`
	MaxPrice    float64 `json:"max_price,omitempty"`
}

// Apply returns the flights matching the filters. Empty filters match everything.
func (sf SearchFilters) Apply(flights []NormalizedFlight) []NormalizedFlight {
	out := make([]NormalizedFlight, 0, len(flights))
	for _, f := range flights {
		if sf.AirlineCode != "" && !strings.EqualFold(f.AirlineCode, sf.AirlineCode) {
			continue
		}
		if sf.CabinClass != "" || sf.MaxPrice > 0 {
			if !sf.matchesFare(f.Fares) {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

func (sf SearchFilters) matchesFare(fares []FareQuote) bool {
	for _, q := range fares {
		if sf.CabinClass != "" && !strings.EqualFold(q.CabinClass, sf.CabinClass) {
			continue
		}
		if sf.MaxPrice > 0 && q.Amount > sf.MaxPrice {
			continue
		}
		return true
	}
	return false
}

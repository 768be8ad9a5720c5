package domain

import "time"

type NormalizedAirport struct {
	Code       string `json:"code"`
	NameLocal  string `json:"name_local"`
	NameEN     string `json:"name_en"`
	City       string `json:"city"`
	Country    string `json:"country"`
	IsDomestic bool   `json:"is_domestic"`
	Source     Source `json:"source"`
}

type NormalizedAirline struct {
	Code       string `json:"code"`
	NameLocal  string `json:"name_local"`
	NameEN     string `json:"name_en"`
	Country    string `json:"country"`
	IsDomestic bool   `json:"is_domestic"`
	Source     Source `json:"source"`
}

// DelayStats is the historical on-time profile of a single flight number.
type DelayStats struct {
	FlightNumber        string  `json:"flight_number"`
	DepartureAirport    string  `json:"departure_airport"`
	ArrivalAirport      string  `json:"arrival_airport"`
	Observations        int     `json:"observations"`
	OnTimePercent       float64 `json:"on_time_percent"`
	DelayedPercent      float64 `json:"delayed_percent"`
	CancelledPercent    float64 `json:"cancelled_percent"`
	AverageDelayMinutes float64 `json:"average_delay_minutes"`
}

type Token struct {
	APIName   string
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ValidAt reports whether the token can still be used at now, keeping margin in reserve.
func (t *Token) ValidAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.Value == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-margin))
}

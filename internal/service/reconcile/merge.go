package reconcile

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Domenick1991/flightsync/internal/domain"
)

// Merge collapses flights sharing a natural key into one record. Records that
// cannot be keyed are passed through untouched so that persistence can count them.
func Merge(batches ...[]domain.NormalizedFlight) []domain.NormalizedFlight {
	index := make(map[domain.FlightKey]int)
	var out []domain.NormalizedFlight

	for _, batch := range batches {
		for _, f := range batch {
			if len(f.MissingFields()) > 0 {
				out = append(out, f)
				continue
			}
			key := f.Key()
			if i, ok := index[key]; ok {
				out[i] = mergeFlight(out[i], f)
				continue
			}
			index[key] = len(out)
			out = append(out, f)
		}
	}

	slices.SortStableFunc(out, func(a, b domain.NormalizedFlight) int {
		if c := a.ScheduledDeparture.Compare(b.ScheduledDeparture); c != 0 {
			return c
		}
		return cmp.Compare(a.FlightNumber, b.FlightNumber)
	})
	return out
}

// mergeFlight combines two reports of the same flight. The later observation is
// the base; gaps in it are filled from the other report.
func mergeFlight(a, b domain.NormalizedFlight) domain.NormalizedFlight {
	newer, older := b, a
	if a.ObservedAt.After(b.ObservedAt) {
		newer, older = a, b
	}

	m := newer
	m.FlightNumber = strings.ToUpper(m.FlightNumber)
	m.Status = mergeStatus(newer.Status, older.Status)
	if m.ArrivalEstimated && !older.ArrivalEstimated && !older.ScheduledArrival.IsZero() {
		m.ScheduledArrival = older.ScheduledArrival
		m.ArrivalEstimated = false
	}
	m.AirlineName = cmp.Or(m.AirlineName, older.AirlineName)
	m.DepartureAirportName = cmp.Or(m.DepartureAirportName, older.DepartureAirportName)
	m.ArrivalAirportName = cmp.Or(m.ArrivalAirportName, older.ArrivalAirportName)
	m.Terminal = cmp.Or(m.Terminal, older.Terminal)
	m.Gate = cmp.Or(m.Gate, older.Gate)
	m.Fares = mergeFares(older.Fares, newer.Fares)
	return m
}

// mergeStatus prefers a non-default status, newer first.
func mergeStatus(newer, older domain.FlightStatus) domain.FlightStatus {
	if !newer.IsDefault() {
		return newer
	}
	if !older.IsDefault() {
		return older
	}
	return domain.FlightStatusScheduled
}

// mergeFares keeps one quote per cabin class, the last observed one.
func mergeFares(older, newer []domain.FareQuote) []domain.FareQuote {
	if len(older) == 0 {
		return newer
	}
	if len(newer) == 0 {
		return older
	}

	byCabin := make(map[string]int)
	var out []domain.FareQuote
	for _, q := range slices.Concat(older, newer) {
		cabin := strings.ToUpper(q.CabinClass)
		if i, ok := byCabin[cabin]; ok {
			if !q.ObservedAt.Before(out[i].ObservedAt) {
				out[i] = q
			}
			continue
		}
		byCabin[cabin] = len(out)
		out = append(out, q)
	}
	return out
}

// FilterAirlines drops flights whose carrier is not in the allowlist.
// An empty allowlist keeps everything.
func FilterAirlines(flights []domain.NormalizedFlight, allow domain.CodeSet) []domain.NormalizedFlight {
	if len(allow) == 0 {
		return flights
	}
	out := make([]domain.NormalizedFlight, 0, len(flights))
	for _, f := range flights {
		if allow.Contains(f.AirlineCode) {
			out = append(out, f)
		}
	}
	return out
}

// MergeAirports combines reference lists by code. Fields from the domestic
// list win because it carries localized names.
func MergeAirports(domestic, international []domain.NormalizedAirport) []domain.NormalizedAirport {
	index := make(map[string]int)
	var out []domain.NormalizedAirport
	for _, a := range domestic {
		a.Code = strings.ToUpper(a.Code)
		if _, ok := index[a.Code]; ok {
			continue
		}
		index[a.Code] = len(out)
		out = append(out, a)
	}
	for _, a := range international {
		a.Code = strings.ToUpper(a.Code)
		i, ok := index[a.Code]
		if !ok {
			index[a.Code] = len(out)
			out = append(out, a)
			continue
		}
		d := &out[i]
		d.NameLocal = cmp.Or(d.NameLocal, a.NameLocal)
		d.NameEN = cmp.Or(d.NameEN, a.NameEN)
		d.City = cmp.Or(d.City, a.City)
		d.Country = cmp.Or(d.Country, a.Country)
		d.IsDomestic = d.IsDomestic || a.IsDomestic
	}
	return out
}

func MergeAirlines(domestic, international []domain.NormalizedAirline) []domain.NormalizedAirline {
	index := make(map[string]int)
	var out []domain.NormalizedAirline
	for _, a := range domestic {
		a.Code = strings.ToUpper(a.Code)
		if _, ok := index[a.Code]; ok {
			continue
		}
		index[a.Code] = len(out)
		out = append(out, a)
	}
	for _, a := range international {
		a.Code = strings.ToUpper(a.Code)
		i, ok := index[a.Code]
		if !ok {
			index[a.Code] = len(out)
			out = append(out, a)
			continue
		}
		d := &out[i]
		d.NameLocal = cmp.Or(d.NameLocal, a.NameLocal)
		d.NameEN = cmp.Or(d.NameEN, a.NameEN)
		d.Country = cmp.Or(d.Country, a.Country)
		d.IsDomestic = d.IsDomestic || a.IsDomestic
	}
	return out
}

// Package adapter translates upstream payloads into normalized flights,
// airports and airlines. Retries and rate limiting belong to upstream.Client.
package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/goccy/go-json"
)

const (
	APIDomestic      = "domestic"
	APIInternational = "international"
)

// TokenSource hands out upstream credentials.
type TokenSource interface {
	Get(ctx context.Context, apiName string) (domain.Token, error)
	Invalidate(apiName string)
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseTime accepts the layouts both upstreams use. Values without an offset
// are read in loc.
func parseTime(v string, loc *time.Location) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

const (
	domesticFlightDuration      = time.Hour
	internationalFlightDuration = 3 * time.Hour
)

// EstimateArrival is used when an upstream omits the arrival time.
func EstimateArrival(departure time.Time, domesticRoute bool) time.Time {
	if domesticRoute {
		return departure.Add(domesticFlightDuration)
	}
	return departure.Add(internationalFlightDuration)
}

// statusFromRemark maps a free-text FIDS remark onto a flight status.
func statusFromRemark(remark string) domain.FlightStatus {
	r := strings.ToLower(remark)
	switch {
	case r == "":
		return domain.FlightStatusScheduled
	case strings.Contains(r, "cancel"), strings.Contains(r, "取消"):
		return domain.FlightStatusCancelled
	case strings.Contains(r, "delay"), strings.Contains(r, "延誤"), strings.Contains(r, "延遲"):
		return domain.FlightStatusDelayed
	case strings.Contains(r, "arriv"), strings.Contains(r, "抵達"), strings.Contains(r, "已到"):
		return domain.FlightStatusArrived
	case strings.Contains(r, "depart"), strings.Contains(r, "出發"), strings.Contains(r, "已飛"):
		return domain.FlightStatusDeparted
	}
	return domain.FlightStatusScheduled
}

// flightNumber joins carrier and number unless the number already carries the carrier.
func flightNumber(carrier, number string) string {
	carrier = strings.ToUpper(strings.TrimSpace(carrier))
	number = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(number), " ", ""))
	if number == "" {
		return ""
	}
	if carrier != "" && !strings.HasPrefix(number, carrier) {
		return carrier + number
	}
	return number
}

// decodeList decodes either a bare JSON array or an object holding the array under key.
func decodeList[T any](body []byte, key string) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	var out []T
	if body[0] == '[' {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode %s list: %w", key, err)
		}
		return out, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s wrapper: %w", key, err)
	}
	raw, ok := wrapped[key]
	if !ok {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// authFailure turns a rejected credential into an AuthError and drops the cached token.
func authFailure(err error, api string, tokens TokenSource) error {
	var ce *domain.ClientError
	if errors.As(err, &ce) && (ce.StatusCode == http.StatusUnauthorized || ce.StatusCode == http.StatusForbidden) {
		tokens.Invalidate(api)
		return &domain.AuthError{API: api, Err: err}
	}
	return err
}

func taipei() *time.Location {
	if loc, err := time.LoadLocation("Asia/Taipei"); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*60*60)
}

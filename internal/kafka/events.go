package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/goccy/go-json"
)

const (
	EventSyncCompleted = "flight_sync_completed"

	RequestKindRoute     = "route"
	RequestKindReference = "reference"
)

// SyncRequest asks a worker to sync one route for Days consecutive days from Date.
type SyncRequest struct {
	Kind      string `json:"kind"`
	Departure string `json:"departure,omitempty"`
	Arrival   string `json:"arrival,omitempty"`
	Date      string `json:"date,omitempty"`
	Days      int    `json:"days,omitempty"`
}

func (r SyncRequest) Route() domain.Route {
	return domain.NewRoute(r.Departure, r.Arrival)
}

func (r SyncRequest) StartDate() (time.Time, error) {
	return time.Parse(domain.DateLayout, r.Date)
}

func (r SyncRequest) Validate() error {
	switch r.Kind {
	case RequestKindReference:
		return nil
	case RequestKindRoute, "":
	default:
		return fmt.Errorf("unknown sync kind %q", r.Kind)
	}
	route := r.Route()
	if len(route.Departure) != 3 || len(route.Arrival) != 3 {
		return fmt.Errorf("invalid route %q-%q", r.Departure, r.Arrival)
	}
	if _, err := r.StartDate(); err != nil {
		return fmt.Errorf("invalid date %q: %w", r.Date, err)
	}
	if r.Days < 0 {
		return fmt.Errorf("invalid days %d", r.Days)
	}
	return nil
}

func DecodeSyncRequest(data []byte) (SyncRequest, error) {
	var req SyncRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode sync request: %w", err)
	}
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	if req.Kind == "" {
		req.Kind = RequestKindRoute
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

type SyncEvent struct {
	Type       string            `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Result     domain.SyncResult `json:"result"`
}

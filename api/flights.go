package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/scheduler"
	"github.com/Domenick1991/flightsync/internal/service/flights"
	"github.com/gin-gonic/gin"
)

const maxRangeDays = 31

type RangeSyncer interface {
	SyncRange(ctx context.Context, route domain.Route, from time.Time, days int) []scheduler.Outcome
}

type BypassSwitch interface {
	SetBypass(ctx context.Context, on bool) error
	Bypassed(ctx context.Context) bool
}

type DelayReader interface {
	FetchDelayStats(ctx context.Context, carrier, number string, year int, month time.Month) (domain.DelayStats, error)
}

type FlightHandler struct {
	service flights.FlightUseCase
	ranges  RangeSyncer
	bypass  BypassSwitch
	delays  DelayReader
	now     func() time.Time
}

func NewFlightHandler(service flights.FlightUseCase, ranges RangeSyncer, bypass BypassSwitch) *FlightHandler {
	return &FlightHandler{service: service, ranges: ranges, bypass: bypass, now: time.Now}
}

// WithDelays enables the historical delay endpoint.
func (h *FlightHandler) WithDelays(d DelayReader) *FlightHandler {
	h.delays = d
	return h
}

func (h *FlightHandler) Register(router *gin.RouterGroup) {
	router.GET("/flights", h.search)
	if h.delays != nil {
		router.GET("/flights/:carrier/:number/delays", h.delayStats)
	}

	admin := router.Group("/admin")
	admin.POST("/sync", h.syncRoute)
	admin.POST("/sync/range", h.syncRange)
	admin.POST("/sync/reference", h.syncReference)
	admin.GET("/cache/bypass", h.getBypass)
	admin.PUT("/cache/bypass", h.setBypass)
}

type syncRequest struct {
	Departure string `json:"departure" binding:"required"`
	Arrival   string `json:"arrival" binding:"required"`
	Date      string `json:"date" binding:"required"`
	Days      int    `json:"days"`
}

type rangeResponse struct {
	Results []domain.SyncResult `json:"results"`
	Failed  int                 `json:"failed"`
	Errors  []string            `json:"errors,omitempty"`
}

func parseRoute(dep, arr string) (domain.Route, bool) {
	r := domain.NewRoute(dep, arr)
	return r, len(r.Departure) == 3 && len(r.Arrival) == 3 && r.Departure != r.Arrival
}

func (h *FlightHandler) search(c *gin.Context) {
	route, ok := parseRoute(c.Query("departure"), c.Query("arrival"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid route"})
		return
	}
	date, err := time.Parse(domain.DateLayout, c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
		return
	}
	filters := domain.SearchFilters{
		AirlineCode: c.Query("airline"),
		CabinClass:  c.Query("cabin"),
	}
	if v := c.Query("max_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_price"})
			return
		}
		filters.MaxPrice = p
	}

	result, err := h.service.Search(c.Request.Context(), route, date, filters)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// delayStats defaults to the previous calendar month.
func (h *FlightHandler) delayStats(c *gin.Context) {
	now := h.now()
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	year, month := prev.Year(), int(prev.Month())
	if v := c.Query("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 2000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		year = y
	}
	if v := c.Query("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month"})
			return
		}
		month = m
	}

	stats, err := h.delays.FetchDelayStats(c.Request.Context(), c.Param("carrier"), c.Param("number"), year, time.Month(month))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *FlightHandler) syncRoute(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	route, ok := parseRoute(req.Departure, req.Arrival)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid route"})
		return
	}
	date, err := time.Parse(domain.DateLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
		return
	}

	res, err := h.service.SyncRoute(c.Request.Context(), route, date)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *FlightHandler) syncRange(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	route, ok := parseRoute(req.Departure, req.Arrival)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid route"})
		return
	}
	from, err := time.Parse(domain.DateLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
		return
	}
	if req.Days < 1 || req.Days > maxRangeDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 31"})
		return
	}

	outcomes := h.ranges.SyncRange(c.Request.Context(), route, from, req.Days)
	resp := rangeResponse{}
	resp.Results, resp.Failed = scheduler.Results(outcomes)
	for _, o := range outcomes {
		if o.Err != nil {
			resp.Errors = append(resp.Errors, o.Job.String()+": "+o.Err.Error())
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FlightHandler) syncReference(c *gin.Context) {
	res, err := h.service.SyncReference(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *FlightHandler) getBypass(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.bypass.Bypassed(c.Request.Context())})
}

func (h *FlightHandler) setBypass(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.bypass.SetBypass(c.Request.Context(), *req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

func statusFor(err error) int {
	switch {
	case domain.IsAuthError(err), domain.IsUpstreamError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

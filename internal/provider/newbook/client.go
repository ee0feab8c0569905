// Package newbook is the client for the Newbook property-management REST
// API. Every call is a POST with the credentials folded into the JSON
// body; responses arrive wrapped in a success/data envelope.
package newbook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"roomheat/internal/logger"
	"roomheat/internal/models"
)

const periodFormat = "2006-01-02 15:04:05"

var (
	// ErrUnavailable marks transport failures and provider-side outages.
	// Callers keep serving the previous snapshot when they see it.
	ErrUnavailable = errors.New("newbook: provider unavailable")

	// ErrAuth marks rejected credentials; retrying will not help.
	ErrAuth = errors.New("newbook: authentication failed")
)

// APIError is a request the provider accepted but refused.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "newbook: " + e.Message
}

// Options configures the API client.
type Options struct {
	BaseURL  string
	APIKey   string
	Region   string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to one Newbook instance.
type Client struct {
	opts  Options
	httpc *http.Client
	log   *logger.Logger
	nowFn func() time.Time
}

// NewClient builds a client. The timeout bounds each request end to end.
func NewClient(opts Options, log *logger.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		opts:  opts,
		httpc: &http.Client{Timeout: timeout},
		log:   log,
		nowFn: time.Now,
	}
}

// envelope is the provider's response wrapper. The success flag arrives
// as the string "true" or a bare boolean depending on endpoint.
type envelope struct {
	Success      any             `json:"success"`
	Data         json.RawMessage `json:"data"`
	Message      string          `json:"message"`
	Error        any             `json:"error"`
	ErrorMessage string          `json:"error_message"`
}

func (e *envelope) succeeded() bool {
	switch v := e.Success.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func (c *Client) request(ctx context.Context, endpoint string, params map[string]any) (json.RawMessage, error) {
	body := make(map[string]any, len(params)+3)
	for k, v := range params {
		body[k] = v
	}
	body["api_key"] = c.opts.APIKey
	body["region"] = c.opts.Region
	body["_t"] = c.nowFn().UnixMilli() // cache buster

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("newbook: encoding %s request: %w", endpoint, err)
	}

	url := strings.TrimRight(c.opts.BaseURL, "/") + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("newbook: building %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.SetBasicAuth(c.opts.Username, c.opts.Password)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s returned %d", ErrAuth, endpoint, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnavailable, endpoint, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decoding %s response: %v", ErrUnavailable, endpoint, err)
	}
	if env.Error != nil {
		msg := env.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &APIError{Message: msg}
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: %s response missing data", ErrUnavailable, endpoint)
	}
	if !env.succeeded() {
		msg := env.Message
		if msg == "" {
			msg = endpoint + " request failed"
		}
		return nil, &APIError{Message: msg}
	}
	return env.Data, nil
}

type siteRow struct {
	SiteID       json.Number `json:"site_id"`
	SiteName     string      `json:"site_name"`
	CategoryName string      `json:"site_category_name"`
	Status       string      `json:"site_status"`
}

// Sites fetches the room catalog.
func (c *Client) Sites(ctx context.Context) ([]models.Site, error) {
	data, err := c.request(ctx, "sites_list", nil)
	if err != nil {
		return nil, err
	}

	var rows []siteRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: decoding sites_list data: %v", ErrUnavailable, err)
	}

	sites := make([]models.Site, 0, len(rows))
	for _, row := range rows {
		id := row.SiteID.String()
		if id == "" {
			continue
		}
		name := row.SiteName
		if name == "" {
			name = "Room " + id
		}
		sites = append(sites, models.Site{
			ID:       models.RoomID(id),
			Name:     name,
			Category: row.CategoryName,
			Status:   row.Status,
		})
	}
	return sites, nil
}

type guestRow struct {
	Firstname     string `json:"firstname"`
	Lastname      string `json:"lastname"`
	PrimaryClient string `json:"primary_client"`
}

type bookingRow struct {
	BookingID   json.Number `json:"booking_id"`
	ReferenceID json.Number `json:"booking_reference_id"`
	SiteID      json.Number `json:"site_id"`
	Status      string      `json:"booking_status"`
	Arrival     string      `json:"booking_arrival"`
	Departure   string      `json:"booking_departure"`
	Adults      json.Number `json:"booking_adults"`
	Children    json.Number `json:"booking_children"`
	Infants     json.Number `json:"booking_infants"`
	Guests      []guestRow  `json:"guests"`
}

// Bookings fetches staying bookings whose stay intersects [from, to].
func (c *Client) Bookings(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	data, err := c.request(ctx, "bookings_list", map[string]any{
		"period_from": from.Format(periodFormat),
		"period_to":   to.Format(periodFormat),
		"list_type":   "staying",
	})
	if err != nil {
		return nil, err
	}

	var rows []bookingRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: decoding bookings_list data: %v", ErrUnavailable, err)
	}

	bookings := make([]models.Booking, 0, len(rows))
	for _, row := range rows {
		b, err := row.toBooking()
		if err != nil {
			c.log.Warnw("skipping malformed booking", "booking_id", row.BookingID.String(), "err", err)
			continue
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func (r bookingRow) toBooking() (models.Booking, error) {
	siteID := r.SiteID.String()
	if siteID == "" {
		return models.Booking{}, errors.New("missing site_id")
	}

	arrival, arrivalDate, err := parseStayTime(r.Arrival)
	if err != nil {
		return models.Booking{}, fmt.Errorf("booking_arrival: %w", err)
	}
	departure, departureDate, err := parseStayTime(r.Departure)
	if err != nil {
		return models.Booking{}, fmt.Errorf("booking_departure: %w", err)
	}

	ref := r.ReferenceID.String()
	if ref == "" {
		ref = r.BookingID.String()
	}

	return models.Booking{
		Reference:     ref,
		RoomID:        models.RoomID(siteID),
		Status:        models.NormalizeStatus(r.Status),
		Arrival:       arrival,
		Departure:     departure,
		ArrivalDate:   arrivalDate,
		DepartureDate: departureDate,
		GuestName:     primaryGuestName(r.Guests),
		Adults:        asInt(r.Adults),
		Children:      asInt(r.Children) + asInt(r.Infants),
	}, nil
}

// parseStayTime accepts the provider's two datetime renderings: a full
// "2006-01-02 15:04:05" stamp (an explicit time) or a bare date.
func parseStayTime(s string) (*time.Time, time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, time.Time{}, errors.New("missing")
	}
	if t, err := time.ParseInLocation(periodFormat, s, time.Local); err == nil {
		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return &t, date, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("unparseable datetime %q", s)
	}
	return nil, t, nil
}

func primaryGuestName(guests []guestRow) string {
	if len(guests) == 0 {
		return ""
	}
	primary := guests[0]
	for _, g := range guests {
		if g.PrimaryClient == "1" {
			primary = g
			break
		}
	}
	return strings.TrimSpace(primary.Firstname + " " + primary.Lastname)
}

func asInt(n json.Number) int {
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return int(v)
}

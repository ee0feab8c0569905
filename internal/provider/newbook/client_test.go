package newbook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomheat/internal/logger"
	"roomheat/internal/models"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		BaseURL:  srv.URL,
		APIKey:   "key-123",
		Region:   "eu",
		Username: "api-user",
		Password: "api-pass",
		Timeout:  5 * time.Second,
	}, logger.Get(logger.ErrorLevel))
}

func TestBookingsRequestShape(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	var gotAuthOK bool

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		user, pass, ok := r.BasicAuth()
		gotAuthOK = ok && user == "api-user" && pass == "api-pass"
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		_, _ = w.Write([]byte(`{"success": "true", "data": []}`))
	})

	from := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.Local)
	to := time.Date(2026, time.March, 10, 23, 59, 59, 0, time.Local)
	if _, err := client.Bookings(context.Background(), from, to); err != nil {
		t.Fatalf("Bookings() error: %v", err)
	}

	if gotPath != "/bookings_list" {
		t.Errorf("path = %q, want /bookings_list", gotPath)
	}
	if !gotAuthOK {
		t.Error("basic auth credentials not sent")
	}
	if gotBody["api_key"] != "key-123" || gotBody["region"] != "eu" {
		t.Errorf("credentials not folded into body: %v", gotBody)
	}
	if gotBody["list_type"] != "staying" {
		t.Errorf("list_type = %v, want staying", gotBody["list_type"])
	}
	if gotBody["period_from"] != "2026-03-02 00:00:00" {
		t.Errorf("period_from = %v", gotBody["period_from"])
	}
	if gotBody["period_to"] != "2026-03-10 23:59:59" {
		t.Errorf("period_to = %v", gotBody["period_to"])
	}
}

func TestBookingsMapping(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": true, "data": [
			{
				"booking_id": 9001,
				"booking_reference_id": "REF-42",
				"site_id": "7",
				"booking_status": "Confirmed",
				"booking_arrival": "2026-03-03 18:30:00",
				"booking_departure": "2026-03-05",
				"booking_adults": "2",
				"booking_children": 1,
				"booking_infants": "1",
				"guests": [
					{"firstname": "Ada", "lastname": "Lovelace", "primary_client": "0"},
					{"firstname": "Grace", "lastname": "Hopper", "primary_client": "1"}
				]
			},
			{
				"booking_id": 9002,
				"site_id": "",
				"booking_status": "confirmed",
				"booking_arrival": "2026-03-03",
				"booking_departure": "2026-03-04"
			}
		]}`))
	})

	bookings, err := client.Bookings(context.Background(), time.Now(), time.Now())
	if err != nil {
		t.Fatalf("Bookings() error: %v", err)
	}
	if len(bookings) != 1 {
		t.Fatalf("got %d bookings, want 1 (row without site_id skipped)", len(bookings))
	}

	b := bookings[0]
	if b.Reference != "REF-42" {
		t.Errorf("Reference = %q, want REF-42", b.Reference)
	}
	if b.RoomID != models.RoomID("7") {
		t.Errorf("RoomID = %q, want 7", b.RoomID)
	}
	if b.Status != models.StatusConfirmed {
		t.Errorf("Status = %q, want confirmed", b.Status)
	}
	if b.Arrival == nil {
		t.Fatal("explicit arrival time dropped")
	}
	if b.Arrival.Hour() != 18 || b.Arrival.Minute() != 30 {
		t.Errorf("Arrival = %v, want 18:30", b.Arrival)
	}
	if b.Departure != nil {
		t.Errorf("date-only departure should have no explicit time, got %v", b.Departure)
	}
	if b.DepartureDate.Day() != 5 {
		t.Errorf("DepartureDate = %v, want the 5th", b.DepartureDate)
	}
	if b.GuestName != "Grace Hopper" {
		t.Errorf("GuestName = %q, want primary guest", b.GuestName)
	}
	if b.Adults != 2 || b.Children != 2 {
		t.Errorf("pax = %d adults %d children, want 2 and 2", b.Adults, b.Children)
	}
}

func TestSitesMapping(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sites_list" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success": "true", "data": [
			{"site_id": 7, "site_name": "Garden Room", "site_category_name": "Double"},
			{"site_id": "12", "site_name": ""}
		]}`))
	})

	sites, err := client.Sites(context.Background())
	if err != nil {
		t.Fatalf("Sites() error: %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("got %d sites, want 2", len(sites))
	}
	if sites[0].ID != "7" || sites[0].Name != "Garden Room" || sites[0].Category != "Double" {
		t.Errorf("site[0] = %+v", sites[0])
	}
	if sites[1].Name != "Room 12" {
		t.Errorf("site[1].Name = %q, want fallback name", sites[1].Name)
	}
}

func TestRequestErrors(t *testing.T) {
	t.Run("envelope failure", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success": "false", "data": [], "message": "invalid instance"}`))
		})
		_, err := client.Sites(context.Background())
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("want APIError, got %v", err)
		}
		if apiErr.Message != "invalid instance" {
			t.Errorf("message = %q", apiErr.Message)
		}
	})

	t.Run("error payload", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error": true, "error_message": "api key revoked"}`))
		})
		_, err := client.Sites(context.Background())
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("want APIError, got %v", err)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := client.Sites(context.Background())
		if !errors.Is(err, ErrAuth) {
			t.Fatalf("want ErrAuth, got %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.Sites(context.Background())
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("want ErrUnavailable, got %v", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		client := NewClient(Options{BaseURL: url, Timeout: time.Second}, logger.Get(logger.ErrorLevel))
		_, err := client.Sites(context.Background())
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("want ErrUnavailable, got %v", err)
		}
	})
}

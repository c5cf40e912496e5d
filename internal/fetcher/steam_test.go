package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestSteam(url string) *Steam {
	return NewSteam(SteamOptions{BaseURL: url, CountryCode: "us", Timeout: time.Second}, zerolog.Nop())
}

func TestSteamFetchFormattedPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/appdetails" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("appids"); got != "1245620" {
			t.Fatalf("unexpected appids %q", got)
		}
		if got := r.URL.Query().Get("cc"); got != "us" {
			t.Fatalf("unexpected cc %q", got)
		}
		_, _ = w.Write([]byte(`{"1245620":{"success":true,"data":{"name":"ELDEN RING","is_free":false,"price_overview":{"currency":"USD","initial":5999,"final":3599,"discount_percent":40,"final_formatted":"$35.99"}}}}`))
	}))
	defer srv.Close()

	raw, err := newTestSteam(srv.URL).FetchPrice(context.Background(), "1245620")
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if raw.Value != "$35.99" {
		t.Fatalf("expected $35.99, got %q", raw.Value)
	}
	if raw.Name != "ELDEN RING" {
		t.Fatalf("expected name from payload, got %q", raw.Name)
	}
}

func TestSteamFetchFreeGame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"570":{"success":true,"data":{"name":"Dota 2","is_free":true}}}`))
	}))
	defer srv.Close()

	raw, err := newTestSteam(srv.URL).FetchPrice(context.Background(), "570")
	if err != nil {
		t.Fatalf("free game should succeed: %v", err)
	}
	if raw.Value != "0" {
		t.Fatalf("free game should report 0, got %q", raw.Value)
	}
}

func TestSteamFetchErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "unknown app", status: http.StatusOK, body: `{"42":{"success":false}}`, wantErr: ErrItemUnknown},
		{name: "no price", status: http.StatusOK, body: `{"42":{"success":true,"data":{"is_free":false}}}`, wantErr: ErrPriceUnavailable},
		{name: "http error", status: http.StatusTooManyRequests, body: `null`},
		{name: "bad json", status: http.StatusOK, body: `{"42":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestSteam(srv.URL).FetchPrice(context.Background(), "42")
			if err == nil {
				t.Fatal("expected an error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSteamFetchHonoursContext(t *testing.T) {
	s := NewSteam(SteamOptions{BaseURL: "http://127.0.0.1:1", MinInterval: time.Hour}, zerolog.Nop())
	// drain the single burst token
	s.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.FetchPrice(ctx, "42"); err == nil {
		t.Fatal("expected rate limiter wait to fail")
	}
}

const appListBody = `{"applist":{"apps":[
	{"appid":1245620,"name":"ELDEN RING"},
	{"appid":2778580,"name":"ELDEN RING Shadow of the Erdtree"},
	{"appid":570,"name":"Dota 2"}
]}}`

func TestSteamSearchApp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ISteamApps/GetAppList/v2/" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(appListBody))
	}))
	defer srv.Close()

	s := NewSteam(SteamOptions{APIBaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())

	cases := map[string]App{
		"elden ring": {ID: "1245620", Name: "ELDEN RING"},
		"erdtree":    {ID: "2778580", Name: "ELDEN RING Shadow of the Erdtree"},
		" DOTA ":     {ID: "570", Name: "Dota 2"},
	}
	for query, want := range cases {
		got, err := s.SearchApp(context.Background(), query)
		if err != nil {
			t.Fatalf("search %q should succeed: %v", query, err)
		}
		if got != want {
			t.Fatalf("search %q: expected %+v, got %+v", query, want, got)
		}
	}

	if _, err := s.SearchApp(context.Background(), "half-life 3"); !errors.Is(err, ErrAppNotFound) {
		t.Fatalf("expected ErrAppNotFound, got %v", err)
	}
}

func TestSteamSearchAppErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusServiceUnavailable, body: `null`},
		{name: "bad json", status: http.StatusOK, body: `{"applist":`},
		{name: "no app list", status: http.StatusOK, body: `{"response":{}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			s := NewSteam(SteamOptions{APIBaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
			_, err := s.SearchApp(context.Background(), "dota")
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, ErrAppNotFound) {
				t.Fatalf("transport failure should not read as a missing app: %v", err)
			}
		})
	}

	if _, err := newTestSteam("http://127.0.0.1:1").SearchApp(context.Background(), "  "); err == nil {
		t.Fatal("blank name should be rejected")
	}
}

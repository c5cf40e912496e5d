package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	appDetailsPath = "/api/appdetails"
	appListPath    = "/ISteamApps/GetAppList/v2/"
)

// SteamOptions parameterise the Steam store fetcher.
type SteamOptions struct {
	BaseURL     string
	APIBaseURL  string
	CountryCode string
	Language    string
	Timeout     time.Duration
	MinInterval time.Duration
	UserAgent   string
}

// Steam reads prices from the Steam store appdetails endpoint.
type Steam struct {
	opts       SteamOptions
	logger     zerolog.Logger
	client     *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiBaseURL string
}

// NewSteam constructs a Steam fetcher.
func NewSteam(opts SteamOptions, logger zerolog.Logger) *Steam {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://store.steampowered.com"
	}

	apiBaseURL := strings.TrimRight(opts.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = "https://api.steampowered.com"
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &Steam{
		opts:       opts,
		logger:     logger.With().Str("component", "steam_fetcher").Logger(),
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		baseURL:    baseURL,
		apiBaseURL: apiBaseURL,
	}
}

// FetchPrice returns the formatted final price of a Steam app. When the app
// has no price, the error wraps ErrPriceUnavailable and the name is still set.
func (s *Steam) FetchPrice(ctx context.Context, itemID string) (RawPrice, error) {
	if strings.TrimSpace(itemID) == "" {
		return RawPrice{}, fmt.Errorf("steam: empty app id")
	}

	query := url.Values{}
	query.Set("appids", itemID)
	query.Set("l", valueOr(s.opts.Language, "english"))
	if s.opts.CountryCode != "" {
		query.Set("cc", s.opts.CountryCode)
	}

	body, err := s.get(ctx, s.baseURL+appDetailsPath+"?"+query.Encode())
	if err != nil {
		return RawPrice{}, err
	}
	return parseAppDetails(itemID, body)
}

// SearchApp resolves an app name against the public Steam app list. An exact
// case-insensitive match wins; otherwise the first app whose name contains
// name is returned.
func (s *Steam) SearchApp(ctx context.Context, name string) (App, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return App{}, fmt.Errorf("steam: empty app name")
	}

	body, err := s.get(ctx, s.apiBaseURL+appListPath)
	if err != nil {
		return App{}, err
	}

	app, ok, err := matchAppList(body, name)
	if err != nil {
		return App{}, err
	}
	if !ok {
		return App{}, fmt.Errorf("steam app %q: %w", name, ErrAppNotFound)
	}
	s.logger.Debug().Str("query", name).Str("app_id", app.ID).Str("name", app.Name).Msg("resolved app name")
	return app, nil
}

func (s *Steam) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("steam rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", valueOr(strings.TrimSpace(s.opts.UserAgent), "pricewatch/1.0"))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("steam request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read steam response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("steam api error (%d)", resp.StatusCode)
	}
	return body, nil
}

func matchAppList(body []byte, name string) (App, bool, error) {
	if !gjson.ValidBytes(body) {
		return App{}, false, fmt.Errorf("steam: invalid json payload")
	}
	apps := gjson.GetBytes(body, "applist.apps")
	if !apps.IsArray() {
		return App{}, false, fmt.Errorf("steam: app list missing")
	}

	needle := strings.ToLower(name)
	var exact, partial App
	apps.ForEach(func(_, entry gjson.Result) bool {
		appName := entry.Get("name").String()
		lower := strings.ToLower(appName)
		if !strings.Contains(lower, needle) {
			return true
		}
		app := App{ID: entry.Get("appid").String(), Name: appName}
		if lower == needle {
			exact = app
			return false
		}
		if partial.ID == "" {
			partial = app
		}
		return true
	})

	if exact.ID != "" {
		return exact, true, nil
	}
	return partial, partial.ID != "", nil
}

func parseAppDetails(itemID string, body []byte) (RawPrice, error) {
	if !gjson.ValidBytes(body) {
		return RawPrice{}, fmt.Errorf("steam: invalid json payload")
	}

	app := gjson.GetBytes(body, gjson.Escape(itemID))
	if !app.Exists() || !app.Get("success").Bool() {
		return RawPrice{}, fmt.Errorf("steam app %s: %w", itemID, ErrItemUnknown)
	}

	data := app.Get("data")
	raw := RawPrice{ItemID: itemID, Name: data.Get("name").String()}

	if formatted := data.Get("price_overview.final_formatted"); formatted.Exists() && formatted.String() != "" {
		raw.Value = formatted.String()
		return raw, nil
	}
	if data.Get("is_free").Bool() {
		raw.Value = "0"
		return raw, nil
	}
	return raw, fmt.Errorf("steam app %s: %w", itemID, ErrPriceUnavailable)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

var _ PriceFetcher = (*Steam)(nil)

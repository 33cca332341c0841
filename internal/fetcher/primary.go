package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fx-converter/internal/rates"
)

const (
	defaultPrimaryBaseURL = "https://api.exchangerate-api.com/v4"
	defaultUserAgent      = "fxconv/1.0"
	defaultTimeout        = 5 * time.Second
)

// PrimaryOptions parameterise the ExchangeRate-API fetcher.
type PrimaryOptions struct {
	BaseURL   string
	Reference string
	Timeout   time.Duration
	UserAgent string
}

// Primary fetches the full rate table from ExchangeRate-API.
type Primary struct {
	opts    PrimaryOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewPrimary constructs a primary fetcher.
func NewPrimary(opts PrimaryOptions, logger zerolog.Logger) *Primary {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultPrimaryBaseURL
	}
	if opts.Reference == "" {
		opts.Reference = rates.DefaultReference
	}

	return &Primary{
		opts:    opts,
		logger:  logger.With().Str("component", "primary_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPrimary retrieves the latest table for the configured reference.
func (p *Primary) FetchPrimary(ctx context.Context) (map[string]float64, error) {
	endpoint := p.baseURL + "/latest/" + strings.ToUpper(p.opts.Reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent(p.opts.UserAgent))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError("exchangerate-api", resp.StatusCode, payload)
	}

	var latest latestResponse
	if err := json.Unmarshal(payload, &latest); err != nil {
		return nil, fmt.Errorf("decode latest rates: %w", err)
	}
	if latest.Base != "" && !strings.EqualFold(latest.Base, p.opts.Reference) {
		return nil, fmt.Errorf("unexpected base currency %q", latest.Base)
	}

	values := make(map[string]float64, len(latest.Rates))
	for code, value := range latest.Rates {
		code = strings.ToUpper(code)
		if !rates.ValidCode(code) || !(value > 0) {
			p.logger.Debug().Str("currency", code).Float64("value", value).Msg("skipping malformed rate entry")
			continue
		}
		values[code] = value
	}
	if len(values) == 0 {
		return nil, errors.New("exchangerate-api returned no rates")
	}

	p.logger.Debug().Int("currencies", len(values)).Str("date", latest.Date).Msg("primary rates fetched")
	return values, nil
}

type latestResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

type errorResponse struct {
	Result    string `json:"result"`
	ErrorType string `json:"error-type"`
	Message   string `json:"message"`
}

func parseHTTPError(provider string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("%s error (%d): %s", provider, status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("%s error (%d): %s", provider, status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s error (%d): %s", provider, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s error (%d)", provider, status)
}

func userAgent(ua string) string {
	if ua = strings.TrimSpace(ua); ua != "" {
		return ua
	}
	return defaultUserAgent
}

var _ PrimaryRateFetcher = (*Primary)(nil)

package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fx-converter/internal/rates"
)

const (
	defaultPTAXBaseURL = "https://olinda.bcb.gov.br/olinda/servico/PTAX/versao/v1/odata"
	ptaxDateLayout     = "01-02-2006"
)

// OverrideOptions parameterise the Banco Central do Brasil PTAX fetcher.
type OverrideOptions struct {
	BaseURL   string
	Reference string
	Timeout   time.Duration
	UserAgent string
}

// PTAX provides the official BRL quote published by Banco Central do Brasil.
type PTAX struct {
	opts    OverrideOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewPTAX builds a new override fetcher.
func NewPTAX(opts OverrideOptions, logger zerolog.Logger) *PTAX {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultPTAXBaseURL
	}
	if opts.Reference == "" {
		opts.Reference = rates.DefaultReference
	}

	return &PTAX{
		opts:    opts,
		logger:  logger.With().Str("component", "override_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchOverride returns BRL per one USD for date, using the buying quote.
// The date is formatted as-is; no timezone conversion is applied.
func (p *PTAX) FetchOverride(ctx context.Context, code string, date time.Time) (float64, error) {
	if !strings.EqualFold(code, "BRL") || !strings.EqualFold(p.opts.Reference, "USD") {
		return 0, fmt.Errorf("%w: %s against %s", ErrUnsupportedOverride, code, p.opts.Reference)
	}

	endpoint := fmt.Sprintf("%s/CotacaoDolarDia(dataCotacao=@dataCotacao)?@dataCotacao=%%27%s%%27&$format=json",
		p.baseURL, date.Format(ptaxDateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent(p.opts.UserAgent))

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, parseHTTPError("ptax", resp.StatusCode, payload)
	}

	var quote ptaxResponse
	if err := json.Unmarshal(payload, &quote); err != nil {
		return 0, fmt.Errorf("decode ptax quote: %w", err)
	}
	if len(quote.Value) == 0 {
		return 0, fmt.Errorf("ptax %s: %w", date.Format(ptaxDateLayout), ErrNoQuote)
	}

	latest := quote.Value[len(quote.Value)-1]
	if !(latest.CotacaoCompra > 0) {
		return 0, fmt.Errorf("ptax returned non-positive quote %v", latest.CotacaoCompra)
	}

	p.logger.Debug().Float64("brl_per_usd", latest.CotacaoCompra).Str("quoted_at", latest.DataHoraCotacao).Msg("ptax quote fetched")
	return latest.CotacaoCompra, nil
}

type ptaxResponse struct {
	Value []struct {
		CotacaoCompra   float64 `json:"cotacaoCompra"`
		CotacaoVenda    float64 `json:"cotacaoVenda"`
		DataHoraCotacao string  `json:"dataHoraCotacao"`
	} `json:"value"`
}

var _ OverrideRateFetcher = (*PTAX)(nil)

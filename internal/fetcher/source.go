package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fx-converter/internal/rates"
)

// SourceOptions configure how primary and override providers are combined.
type SourceOptions struct {
	Reference          string
	OverrideCurrencies []string
	Now                func() time.Time
}

// Source builds a rate table from the primary provider and then patches the
// configured currencies with the override provider. Primary failure fails the
// fetch; override failure keeps the primary value.
type Source struct {
	primary  PrimaryRateFetcher
	override OverrideRateFetcher
	opts     SourceOptions
	logger   zerolog.Logger
}

// NewSource wires providers together. override may be nil.
func NewSource(primary PrimaryRateFetcher, override OverrideRateFetcher, opts SourceOptions, logger zerolog.Logger) *Source {
	if opts.Reference == "" {
		opts.Reference = rates.DefaultReference
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Source{
		primary:  primary,
		override: override,
		opts:     opts,
		logger:   logger.With().Str("component", "rate_source").Logger(),
	}
}

// Fetch implements rates.Source.
func (s *Source) Fetch(ctx context.Context) (rates.Table, error) {
	values, err := s.primary.FetchPrimary(ctx)
	if err != nil {
		return rates.Table{}, fmt.Errorf("fetch primary rates: %w", err)
	}

	table, err := rates.NewTable(s.opts.Reference, values)
	if err != nil {
		return rates.Table{}, fmt.Errorf("build primary table: %w", err)
	}

	if s.override == nil {
		return table, nil
	}

	date := s.opts.Now()
	for _, code := range s.opts.OverrideCurrencies {
		code = strings.ToUpper(strings.TrimSpace(code))

		value, err := s.override.FetchOverride(ctx, code, date)
		if err != nil {
			s.logger.Warn().Err(err).Str("currency", code).Msg("override fetch failed; keeping primary value")
			continue
		}

		patched, err := table.WithOverride(code, value)
		if err != nil {
			s.logger.Warn().Err(err).Str("currency", code).Msg("override rejected; keeping primary value")
			continue
		}

		primary, _ := table.Get(code)
		s.logger.Info().Str("currency", code).Float64("primary", primary).Float64("override", value).Msg("override applied")
		table = patched
	}

	return table, nil
}

var _ rates.Source = (*Source)(nil)

package service

import (
	"context"

	"github.com/rs/zerolog"

	"fx-converter/internal/conversion"
	"fx-converter/internal/rates"
)

// RateProvider hands out the current rate snapshot.
type RateProvider interface {
	Rates(ctx context.Context) (rates.Entry, error)
}

// Service answers conversion requests from the current rate snapshot.
type Service struct {
	rates  RateProvider
	logger zerolog.Logger
}

// New constructs the conversion service.
func New(provider RateProvider, logger zerolog.Logger) *Service {
	return &Service{
		rates:  provider,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Convert looks up the snapshot and runs the conversion against it.
func (s *Service) Convert(ctx context.Context, req conversion.Request) (conversion.Result, error) {
	entry, err := s.rates.Rates(ctx)
	if err != nil {
		return conversion.Result{}, err
	}

	amount, rate, err := conversion.Convert(req.From, req.To, req.Amount, entry.Table)
	if err != nil {
		return conversion.Result{}, err
	}

	s.logger.Debug().
		Str("from", req.From).
		Str("to", req.To).
		Float64("amount", req.Amount).
		Float64("rate", rate).
		Bool("fallback", entry.Fallback).
		Msg("conversion computed")

	return conversion.Result{
		Amount:    amount,
		Rate:      rate,
		UpdatedAt: entry.FetchedAt,
		Source:    classifySource(entry.Table, req),
	}, nil
}

func classifySource(table rates.Table, req conversion.Request) conversion.SourceLabel {
	if table.Overridden(req.From) || table.Overridden(req.To) {
		return conversion.SourcePrimaryWithOverride
	}
	return conversion.SourcePrimary
}

package app

import (
	"time"

	"github.com/rs/zerolog"

	"fx-converter/internal/alerting"
	"fx-converter/internal/config"
	"fx-converter/internal/fetcher"
	"fx-converter/internal/metrics"
	"fx-converter/internal/rates"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger}
}

func (a *App) newSource() *fetcher.Source {
	rc := a.Config.Rates

	primary := fetcher.NewPrimary(fetcher.PrimaryOptions{
		BaseURL:   rc.Primary.BaseURL,
		Reference: rc.Reference,
		Timeout:   rc.Primary.Timeout,
		UserAgent: rc.Primary.UserAgent,
	}, a.Logger)

	var override fetcher.OverrideRateFetcher
	if rc.Override.Enabled && len(rc.Override.Currencies) > 0 {
		override = fetcher.NewPTAX(fetcher.OverrideOptions{
			BaseURL:   rc.Override.BaseURL,
			Reference: rc.Reference,
			Timeout:   rc.Override.Timeout,
			UserAgent: rc.Primary.UserAgent,
		}, a.Logger)
	} else {
		a.Logger.Debug().Msg("rate override disabled")
	}

	return fetcher.NewSource(primary, override, fetcher.SourceOptions{
		Reference:          rc.Reference,
		OverrideCurrencies: rc.Override.Currencies,
	}, a.Logger)
}

func (a *App) newCache(m *metrics.Metrics, watcher *alerting.Watcher) *rates.Cache {
	return rates.NewCache(a.newSource(), rates.CacheOptions{
		TTL:            a.Config.Rates.TTL,
		RefreshTimeout: a.Config.Rates.RefreshTimeout,
		OnRefresh:      refreshHook(m, watcher),
	}, a.Logger)
}

// refreshHook records every published entry and reports source state changes.
func refreshHook(m *metrics.Metrics, watcher *alerting.Watcher) func(rates.Entry, error) {
	return func(entry rates.Entry, err error) {
		m.RecordRefresh(entry.Fallback, entry.Table.Len())
		m.SetRateAge(0)

		if watcher == nil {
			return
		}
		note := alerting.Notification{
			Kind:       alerting.KindRecovered,
			At:         entry.FetchedAt,
			Reference:  entry.Table.Reference(),
			Currencies: entry.Table.Len(),
			Overrides:  overriddenCodes(entry.Table),
		}
		if entry.Fallback {
			note.Kind = alerting.KindFallback
			if err != nil {
				note.Cause = err.Error()
			}
		}
		watcher.Observe(note)
	}
}

func (a *App) newWatcher() *alerting.Watcher {
	ac := a.Config.Alerting
	if !ac.Enabled {
		return nil
	}

	var notifier alerting.Notifier
	if ac.Telegram.Enabled {
		notifier = alerting.NewTelegramNotifier(ac.Telegram.BotToken, ac.Telegram.ChatID, ac.Telegram.APIBase, 10*time.Second, a.Logger)
	} else {
		a.Logger.Warn().Msg("alerting enabled without telegram; notifications go to the log")
		notifier = alerting.NewLogNotifier(a.Logger)
	}
	return alerting.NewWatcher(notifier, alerting.WatcherOptions{Cooldown: ac.Cooldown}, a.Logger)
}

func overriddenCodes(table rates.Table) []string {
	var codes []string
	for _, code := range table.Codes() {
		if table.Overridden(code) {
			codes = append(codes, code)
		}
	}
	return codes
}

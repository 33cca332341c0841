package app

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-converter/internal/alerting"
	"fx-converter/internal/config"
	"fx-converter/internal/metrics"
	"fx-converter/internal/protocol"
	"fx-converter/internal/rates"
	"fx-converter/internal/server"
	"fx-converter/internal/service"
)

type staticRates struct {
	entry rates.Entry
}

func (s staticRates) Rates(context.Context) (rates.Entry, error) {
	return s.entry, nil
}

func testEntry(t *testing.T) rates.Entry {
	t.Helper()
	table, err := rates.NewTable("USD", map[string]float64{"BRL": 5.0, "EUR": 0.92})
	require.NoError(t, err)
	table, err = table.WithOverride("BRL", 5.12)
	require.NoError(t, err)
	return rates.Entry{Table: table, FetchedAt: time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local), TTL: time.Hour}
}

func startServer(t *testing.T, codec protocol.Codec) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	svc := service.New(staticRates{entry: testEntry(t)}, zerolog.Nop())
	srv := server.New(server.Options{Mode: server.ModeSingle, IdleTimeout: time.Second}, codec, svc, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func TestConvertText(t *testing.T) {
	addr := startServer(t, protocol.TextCodec{})
	a := NewApp(&config.Config{}, zerolog.Nop())

	var out bytes.Buffer
	err := a.Convert(context.Background(), ConvertOptions{
		Addr: addr, Protocol: "text", Timeout: time.Second,
		From: "usd", To: "brl", Amount: 100, Out: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "100.00 USD = 512.00 BRL (rate 5.120000, updated 2025-03-04 05:06:07, source PRIMARY_WITH_OVERRIDE)\n", out.String())
}

func TestConvertBinary(t *testing.T) {
	addr := startServer(t, protocol.BinaryCodec{})
	a := NewApp(&config.Config{}, zerolog.Nop())

	var out bytes.Buffer
	err := a.Convert(context.Background(), ConvertOptions{
		Addr: addr, Protocol: "binary", Timeout: time.Second,
		From: "EUR", To: "USD", Amount: 10, Out: &out,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "10.00 EUR = 10.87 USD (rate 1.08"), out.String())

	err = a.Convert(context.Background(), ConvertOptions{
		Addr: addr, Protocol: "binary", Timeout: time.Second,
		From: "USD", To: "XYZ", Amount: 1, Out: &out,
	})
	assert.EqualError(t, err, "server error: currency XYZ not supported")
}

func TestConvertUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	a := NewApp(&config.Config{}, zerolog.Nop())
	err = a.Convert(context.Background(), ConvertOptions{Addr: addr, Protocol: "text", Timeout: time.Second, From: "USD", To: "BRL", Amount: 1, Out: &bytes.Buffer{}})
	assert.ErrorContains(t, err, "connect")
}

func ratesConfig(primaryURL string) *config.Config {
	return &config.Config{
		Rates: config.RatesConfig{
			Reference:      "USD",
			TTL:            time.Hour,
			RefreshTimeout: time.Second,
			Primary:        config.PrimaryConfig{BaseURL: primaryURL, Timeout: time.Second},
		},
	}
}

func TestShowRates(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/USD", r.URL.Path)
		_, _ = w.Write([]byte(`{"base":"USD","date":"2025-03-04","rates":{"USD":1,"BRL":5.1,"EUR":0.92}}`))
	}))
	defer upstream.Close()

	a := NewApp(ratesConfig(upstream.URL), zerolog.Nop())
	var out bytes.Buffer
	require.NoError(t, a.ShowRates(context.Background(), ShowOptions{Codes: []string{"brl"}, Out: &out}))

	text := out.String()
	assert.Contains(t, text, "reference USD")
	assert.Contains(t, text, "(live)")
	assert.Contains(t, text, "5.100000")
	assert.NotContains(t, text, "EUR")

	err := a.ShowRates(context.Background(), ShowOptions{Codes: []string{"XYZ"}, Out: &out})
	assert.ErrorContains(t, err, "XYZ")
}

func TestShowRatesFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	a := NewApp(ratesConfig(upstream.URL), zerolog.Nop())
	var out bytes.Buffer
	require.NoError(t, a.ShowRates(context.Background(), ShowOptions{Out: &out}))
	assert.Contains(t, out.String(), "(fallback)")
	assert.Contains(t, out.String(), "5.120000")
	assert.Contains(t, out.String(), "CLP")
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

func TestRefreshHook(t *testing.T) {
	m := metrics.New()
	rec := &recordingNotifier{}
	watcher := alerting.NewWatcher(rec, alerting.WatcherOptions{Cooldown: time.Hour}, zerolog.Nop())
	hook := refreshHook(m, watcher)

	live := testEntry(t)
	fallback := rates.Entry{Table: rates.FallbackTable(), FetchedAt: time.Now(), TTL: time.Hour, Fallback: true}

	hook(live, nil)
	hook(fallback, errors.New("HTTP 503"))
	hook(live, nil)
	watcher.Wait()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateRefreshTotal.WithLabelValues("primary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateRefreshTotal.WithLabelValues("fallback")))
	assert.Equal(t, float64(live.Table.Len()), testutil.ToFloat64(m.RateTableCurrencies))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.notes, 2)
	kinds := []alerting.Kind{rec.notes[0].Kind, rec.notes[1].Kind}
	assert.ElementsMatch(t, []alerting.Kind{alerting.KindFallback, alerting.KindRecovered}, kinds)
	for _, note := range rec.notes {
		if note.Kind == alerting.KindFallback {
			assert.Equal(t, "HTTP 503", note.Cause)
		} else {
			assert.Equal(t, []string{"BRL"}, note.Overrides)
		}
	}
}

type fixedStats struct{}

func (fixedStats) ActiveConnections() int64 { return 3 }
func (fixedStats) Served() uint64          { return 42 }

type fixedPeek struct{ entry rates.Entry }

func (f fixedPeek) Peek() (rates.Entry, bool) { return f.entry, true }

func TestStatsTick(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	m := metrics.New()

	entry := testEntry(t)
	tick := statsTick(fixedStats{}, fixedPeek{entry: entry}, m, logger)
	require.NoError(t, tick(context.Background(), entry.FetchedAt.Add(90*time.Second)))

	assert.Contains(t, buf.String(), `"active":3`)
	assert.Contains(t, buf.String(), `"served":42`)
	assert.Contains(t, buf.String(), `"component":"stats"`)
	assert.Equal(t, 90.0, testutil.ToFloat64(m.RateTableAge))
}

package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Watcher turns rate refresh outcomes into notifications. It only notifies
// on a change of state, and repeated fallbacks are held back for Cooldown.
type Watcher struct {
	notifier Notifier
	cooldown time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu           sync.Mutex
	inFallback   bool
	lastFallback time.Time
	wg           sync.WaitGroup
}

// WatcherOptions tune a Watcher.
type WatcherOptions struct {
	Cooldown time.Duration
	Timeout  time.Duration
	Now      func() time.Time
}

func NewWatcher(notifier Notifier, opts WatcherOptions, logger zerolog.Logger) *Watcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watcher{
		notifier: notifier,
		cooldown: opts.Cooldown,
		timeout:  opts.Timeout,
		now:      opts.Now,
		logger:   logger.With().Str("component", "alert_watcher").Logger(),
	}
}

// Observe records one refresh outcome. Delivery happens in the background so
// the caller, usually the rate cache, is never held up by the notifier.
func (w *Watcher) Observe(note Notification) {
	if !w.admit(note) {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.notifier.Notify(ctx, note); err != nil {
			w.logger.Error().Err(err).Str("kind", string(note.Kind)).Msg("notification failed")
		}
	}()
}

func (w *Watcher) admit(note Notification) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch note.Kind {
	case KindFallback:
		now := w.now()
		if w.inFallback && now.Sub(w.lastFallback) < w.cooldown {
			w.logger.Debug().Msg("fallback notification suppressed by cooldown")
			return false
		}
		w.inFallback = true
		w.lastFallback = now
		return true
	case KindRecovered:
		if !w.inFallback {
			return false
		}
		w.inFallback = false
		return true
	default:
		return true
	}
}

// Wait blocks until in-flight notifications finish.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

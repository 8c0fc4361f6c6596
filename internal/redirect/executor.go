package redirect

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Clock abstracts time so the fallback heuristic can be tested.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Visibility reports whether the launching page is still in the foreground.
// An app that handles a deep link backgrounds the page.
type Visibility interface {
	Visible() bool
}

// VisibilityFunc adapts a function to Visibility.
type VisibilityFunc func() bool

func (f VisibilityFunc) Visible() bool { return f() }

// Navigator performs a navigation to url.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// VisibilityRace is the deep-link confirmation heuristic: after Delay, if
// less than MaxElapsed has passed and the page is still visible, the link is
// presumed unhandled and the fallback fires. MaxElapsed guards against a
// timer that fires late after the device slept. Both false positives and
// false negatives are possible.
type VisibilityRace struct {
	Delay      time.Duration
	MaxElapsed time.Duration
}

// DefaultVisibilityRace returns the standard 2.5s / 3s window.
func DefaultVisibilityRace() VisibilityRace {
	return VisibilityRace{Delay: 2500 * time.Millisecond, MaxElapsed: 3000 * time.Millisecond}
}

// Outcome describes what the executor did.
type Outcome struct {
	Navigated []string `json:"navigated"`
	FellBack  bool     `json:"fell_back"`
}

// Executor carries out a Decision.
type Executor struct {
	nav      Navigator
	clock    Clock
	visible  Visibility
	strategy VisibilityRace
	logger   *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(nav Navigator, clock Clock, visible Visibility, strategy VisibilityRace, logger *slog.Logger) *Executor {
	return &Executor{
		nav:      nav,
		clock:    clock,
		visible:  visible,
		strategy: strategy,
		logger:   logger.With("component", "redirect"),
	}
}

// Execute navigates according to d, driving m from Deciding to a terminal
// state. Manual decisions end without navigation.
func (e *Executor) Execute(ctx context.Context, m *Machine, d Decision) (Outcome, error) {
	var out Outcome

	if !d.Auto {
		return out, m.Transition(StateDone)
	}

	if err := m.Transition(StateNavigating); err != nil {
		return out, err
	}

	start := e.clock.Now()
	if err := e.nav.Navigate(ctx, d.Primary); err != nil {
		_ = m.Transition(StateDone)
		return out, fmt.Errorf("navigate to primary: %w", err)
	}
	out.Navigated = append(out.Navigated, d.Primary)

	if !d.DeepLink() || d.Fallback == "" {
		return out, m.Transition(StateDone)
	}

	if err := m.Transition(StateAwaitingConfirmation); err != nil {
		return out, err
	}

	select {
	case <-ctx.Done():
		return out, m.Transition(StateDone)
	case <-e.clock.After(e.strategy.Delay):
	}

	elapsed := e.clock.Now().Sub(start)
	if elapsed >= e.strategy.MaxElapsed || !e.visible.Visible() {
		e.logger.Debug("deep link presumed handled", "elapsed_ms", elapsed.Milliseconds())
		return out, m.Transition(StateDone)
	}

	if err := m.Transition(StateFallbackNavigating); err != nil {
		return out, err
	}
	e.logger.Info("deep link unconfirmed, opening store listing", "fallback", d.Fallback)
	out.FellBack = true
	if err := e.nav.Navigate(ctx, d.Fallback); err != nil {
		return out, fmt.Errorf("navigate to fallback: %w", err)
	}
	out.Navigated = append(out.Navigated, d.Fallback)
	return out, nil
}

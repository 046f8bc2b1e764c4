package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Ticker rotates through frames on every completed refresh.
// Stops rotating if refreshes stop arriving.
type Ticker struct {
	frames   []string
	index    int
	lastTick time.Time
}

func NewTicker() Ticker {
	return Ticker{
		frames: []string{"⟲", "⟳"},
	}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
	t.lastTick = time.Now()
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

func (t Ticker) LastTick() time.Time {
	return t.lastTick
}

// newSpinner shows while a refresh is in flight.
func newSpinner(theme Theme) spinner.Model {
	return spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Highlight),
	)
}

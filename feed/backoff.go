package feed

import "time"

// Backoff doubles the reconnect delay from Min up to Max
type Backoff struct {
	Min, Max time.Duration
	current  time.Duration
}

// NewBackoff creates a backoff; zero values default to 1s and 60s
func NewBackoff(lo, hi time.Duration) *Backoff {
	if lo <= 0 {
		lo = time.Second
	}
	if hi < lo {
		hi = 60 * time.Second
		if hi < lo {
			hi = lo
		}
	}
	return &Backoff{Min: lo, Max: hi}
}

// Next returns the delay to wait before the next attempt
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Min
		return b.current
	}
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Reset returns the backoff to Min after a successful connect
func (b *Backoff) Reset() {
	b.current = 0
}

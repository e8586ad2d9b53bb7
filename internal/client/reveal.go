package client

import (
	"context"
	"sync"
	"time"
)

// DefaultTypingDelay is the pause between revealed characters.
const DefaultTypingDelay = 75 * time.Millisecond

// Reveal exposes an answer one character at a time. It is presentation only.
type Reveal struct {
	mu        sync.Mutex
	runes     []rune
	shown     int
	delay     time.Duration
	cancelled bool
}

// NewReveal starts with nothing shown, or everything when delay is zero.
func NewReveal(text string, delay time.Duration) *Reveal {
	r := &Reveal{runes: []rune(text), delay: delay}
	if delay <= 0 {
		r.shown = len(r.runes)
	}
	return r
}

func (r *Reveal) Delay() time.Duration {
	return r.delay
}

// Step shows one more character and reports whether more remain.
func (r *Reveal) Step() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return false
	}
	if r.shown < len(r.runes) {
		r.shown++
	}
	return r.shown < len(r.runes)
}

func (r *Reveal) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.runes[:r.shown])
}

func (r *Reveal) Full() string {
	return string(r.runes)
}

func (r *Reveal) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.cancelled && r.shown == len(r.runes)
}

func (r *Reveal) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

func (r *Reveal) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Run steps the reveal on its delay, calling emit with each new prefix, until
// it finishes, is cancelled or ctx ends.
func (r *Reveal) Run(ctx context.Context, emit func(string)) error {
	if r.Done() {
		emit(r.Text())
		return nil
	}

	ticker := time.NewTicker(r.delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		case <-ticker.C:
			more := r.Step()
			if r.Cancelled() {
				return context.Canceled
			}
			emit(r.Text())
			if !more {
				return nil
			}
		}
	}
}

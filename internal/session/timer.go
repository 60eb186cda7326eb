package session

import (
	"sync"
	"time"
)

// Timer is the session's single logical clock. It is created once per
// session and is never restarted or replaced by answer or navigation
// activity. The only things that stop it are session termination and
// session teardown — a Timer left ticking after its session is gone is
// a goroutine leak, so every exit path must call Stop.
type Timer struct {
	interval time.Duration
	limit    time.Duration // zero = count-up mode, never expires
	onTick   func(elapsed, remaining time.Duration)
	onExpire func()

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newTimer(limit, interval time.Duration, onTick func(elapsed, remaining time.Duration), onExpire func()) *Timer {
	return &Timer{
		interval: interval,
		limit:    limit,
		onTick:   onTick,
		onExpire: onExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (t *Timer) start() {
	go t.run()
}

func (t *Timer) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	var elapsed time.Duration
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			elapsed += t.interval

			var remaining time.Duration
			if t.limit > 0 {
				remaining = t.limit - elapsed
				if remaining < 0 {
					remaining = 0
				}
			}

			if t.onTick != nil {
				t.onTick(elapsed, remaining)
			}

			// Countdown exhausted: fire expiry exactly once and stop.
			// Count-up timers (limit 0) tick until stopped.
			if t.limit > 0 && elapsed >= t.limit {
				if t.onExpire != nil {
					t.onExpire()
				}
				return
			}
		}
	}
}

// Stop halts the tick loop. Safe to call multiple times and from any
// goroutine; it does not block on the loop exiting.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed once the tick loop has fully exited.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

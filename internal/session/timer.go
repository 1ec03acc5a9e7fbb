package session

import (
	"sync"
	"time"
)

// Countdown tracks the remaining seconds of a timed attempt. It is not
// safe for concurrent use; the Session serializes access.
type Countdown struct {
	total     int
	remaining int
	running   bool
	expired   bool
}

func NewCountdown(totalSeconds int) *Countdown {
	return &Countdown{total: totalSeconds, remaining: totalSeconds}
}

func (c *Countdown) Start() {
	if !c.expired {
		c.running = true
	}
}

// Tick decrements one second and reports true exactly once, on the tick
// that reaches zero. Ticks on a stopped or expired countdown are ignored.
func (c *Countdown) Tick() bool {
	if !c.running || c.expired {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.expired = true
		c.running = false
		return true
	}
	return false
}

// Stop is idempotent.
func (c *Countdown) Stop() { c.running = false }

func (c *Countdown) Reset() {
	c.remaining = c.total
	c.running = false
	c.expired = false
}

func (c *Countdown) Total() int     { return c.total }
func (c *Countdown) Remaining() int { return c.remaining }
func (c *Countdown) Elapsed() int   { return c.total - c.remaining }
func (c *Countdown) Running() bool  { return c.running }

// Ticker drives a Countdown. Start begins calling fn once per period and
// returns a stop function; stop must be safe to call more than once.
type Ticker interface {
	Start(fn func()) (stop func())
}

// WallTicker fires on a real time.Ticker.
type WallTicker struct {
	Period time.Duration
}

func (w WallTicker) Start(fn func()) func() {
	period := w.Period
	if period <= 0 {
		period = time.Second
	}
	t := time.NewTicker(period)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-t.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
		})
	}
}

// ManualTicker fires only when Fire is called. Tests use it to simulate
// seconds passing without sleeping.
type ManualTicker struct {
	mu     sync.Mutex
	fn     func()
	last   func()
	starts int
}

func (m *ManualTicker) Start(fn func()) func() {
	m.mu.Lock()
	m.fn = fn
	m.last = fn
	m.starts++
	gen := m.starts
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.starts == gen {
			m.fn = nil
		}
	}
}

// Fire delivers n ticks synchronously. It returns how many were delivered
// to a live callback.
func (m *ManualTicker) Fire(n int) int {
	delivered := 0
	for i := 0; i < n; i++ {
		m.mu.Lock()
		fn := m.fn
		m.mu.Unlock()
		if fn == nil {
			break
		}
		fn()
		delivered++
	}
	return delivered
}

// FireStale invokes the most recently started callback even after it was
// stopped, simulating a tick already in flight when the ticker stopped.
func (m *ManualTicker) FireStale() {
	m.mu.Lock()
	fn := m.last
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *ManualTicker) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fn != nil
}

func (m *ManualTicker) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

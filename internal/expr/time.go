package expr

import (
	"sync"
	"time"
)

// TimeGateway supplies the clock read by FloatTime expressions and notifies
// subscribers whenever the observable time changes.
type TimeGateway interface {
	Now() time.Time
	Subscribe(fn func()) (unsubscribe func())
}

// TickerTimeGateway ticks on the wall clock. The ticker goroutine runs only
// while at least one subscriber is registered.
type TickerTimeGateway struct {
	interval time.Duration

	mu        sync.Mutex
	listeners listenerSet[struct{}]
	stop      chan struct{}
}

// NewTickerTimeGateway creates a gateway ticking every interval
// (one second if interval <= 0).
func NewTickerTimeGateway(interval time.Duration) *TickerTimeGateway {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickerTimeGateway{interval: interval}
}

// Now returns the wall-clock time.
func (g *TickerTimeGateway) Now() time.Time {
	return time.Now()
}

// Subscribe registers fn for ticks.
func (g *TickerTimeGateway) Subscribe(fn func()) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.listeners.add(func(struct{}) { fn() })
	if g.stop == nil {
		g.stop = make(chan struct{})
		go g.run(g.stop)
	}
	return once(func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.listeners.remove(id)
		if g.listeners.len() == 0 && g.stop != nil {
			close(g.stop)
			g.stop = nil
		}
	})
}

func (g *TickerTimeGateway) run(stop <-chan struct{}) {
	t := time.NewTicker(g.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			g.mu.Lock()
			fns := g.listeners.snapshot()
			g.mu.Unlock()
			for _, fn := range fns {
				fn(struct{}{})
			}
		}
	}
}

// ManualTimeGateway is a gateway whose time only moves when told to.
// Used by tests and the scenario harness.
type ManualTimeGateway struct {
	mu        sync.Mutex
	now       time.Time
	listeners listenerSet[struct{}]
}

// NewManualTimeGateway creates a gateway frozen at start.
func NewManualTimeGateway(start time.Time) *ManualTimeGateway {
	return &ManualTimeGateway{now: start}
}

// Now returns the current manual time.
func (g *ManualTimeGateway) Now() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now
}

// Subscribe registers fn for time changes.
func (g *ManualTimeGateway) Subscribe(fn func()) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.listeners.add(func(struct{}) { fn() })
	return once(func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.listeners.remove(id)
	})
}

// Advance moves the clock forward by d and notifies subscribers.
func (g *ManualTimeGateway) Advance(d time.Duration) {
	g.Set(g.Now().Add(d))
}

// Set moves the clock to t and notifies subscribers.
func (g *ManualTimeGateway) Set(t time.Time) {
	g.mu.Lock()
	g.now = t
	fns := g.listeners.snapshot()
	g.mu.Unlock()
	for _, fn := range fns {
		fn(struct{}{})
	}
}

// timeField extracts f from t as a float.
func timeField(t time.Time, f string) (float32, bool) {
	switch f {
	case "second":
		return float32(t.Second()), true
	case "minute":
		return float32(t.Minute()), true
	case "hour":
		return float32(t.Hour()), true
	}
	return 0, false
}

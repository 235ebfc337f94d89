package expr

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/dyneval/internal/ir"
)

// SensorGateway delivers readings for platform keys such as
// ir.PlatformHeartRateBPM.
type SensorGateway interface {
	// Subscribe registers fn for readings of key. Returns an error if the
	// gateway has no sensor for key.
	Subscribe(key string, fn func(float32)) (unsubscribe func(), err error)
}

// PlatformDataProvider supplies a single platform key to the evaluator.
type PlatformDataProvider interface {
	Subscribe(fn func(float32)) (unsubscribe func(), err error)
}

// sensorProvider adapts one key of a SensorGateway to PlatformDataProvider.
type sensorProvider struct {
	gateway SensorGateway
	key     string
}

// NewSensorProvider exposes key of gw as a PlatformDataProvider.
func NewSensorProvider(gw SensorGateway, key string) PlatformDataProvider {
	return &sensorProvider{gateway: gw, key: key}
}

func (p *sensorProvider) Subscribe(fn func(float32)) (func(), error) {
	return p.gateway.Subscribe(p.key, fn)
}

// SensorProviders returns providers for every well-known platform key
// backed by gw, keyed by platform key.
func SensorProviders(gw SensorGateway) map[string]PlatformDataProvider {
	out := make(map[string]PlatformDataProvider, len(ir.PlatformKeys))
	for _, key := range ir.PlatformKeys {
		out[key] = NewSensorProvider(gw, key)
	}
	return out
}

// FakeSensorGateway is an in-memory SensorGateway. New subscribers receive
// the latest reading immediately, like a sticky sensor event.
type FakeSensorGateway struct {
	mu        sync.Mutex
	supported []string
	latest    map[string]float32
	listeners map[string]*listenerSet[float32]
}

// NewFakeSensorGateway creates a gateway supporting keys (all well-known
// platform keys if none are given).
func NewFakeSensorGateway(keys ...string) *FakeSensorGateway {
	if len(keys) == 0 {
		keys = ir.PlatformKeys
	}
	return &FakeSensorGateway{
		supported: slices.Clone(keys),
		latest:    make(map[string]float32),
		listeners: make(map[string]*listenerSet[float32]),
	}
}

// Subscribe implements SensorGateway.
func (g *FakeSensorGateway) Subscribe(key string, fn func(float32)) (func(), error) {
	g.mu.Lock()
	if !slices.Contains(g.supported, key) {
		g.mu.Unlock()
		return nil, fmt.Errorf("sensor %q not supported", key)
	}
	l := g.listeners[key]
	if l == nil {
		l = &listenerSet[float32]{}
		g.listeners[key] = l
	}
	id := l.add(fn)
	v, has := g.latest[key]
	g.mu.Unlock()

	if has {
		fn(v)
	}
	return once(func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		l.remove(id)
	}), nil
}

// Emit publishes a reading for key.
func (g *FakeSensorGateway) Emit(key string, v float32) {
	g.mu.Lock()
	g.latest[key] = v
	var fns []func(float32)
	if l := g.listeners[key]; l != nil {
		fns = l.snapshot()
	}
	g.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// SubscriberCount returns the number of subscribers for key.
func (g *FakeSensorGateway) SubscriberCount(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l := g.listeners[key]; l != nil {
		return l.len()
	}
	return 0
}

package engine

import (
	"github.com/roach88/dyneval/internal/expr"
)

// BoundDynamicType is a bound expression handle.
type BoundDynamicType = expr.BoundDynamicType

// Binder binds expressions for one session. It must deliver at most one
// callback per logical update and stop delivering after Close returns,
// apart from callbacks already in flight.
type Binder interface {
	BindFloat(req expr.FloatBindingRequest) (BoundDynamicType, error)
	BindString(req expr.StringBindingRequest) (BoundDynamicType, error)
}

// BinderConfig carries the optional data sources forwarded to the binder.
// The engine never reads them itself.
type BinderConfig struct {
	StateStore    *expr.StateStore
	TimeGateway   expr.TimeGateway
	SensorGateway expr.SensorGateway
}

// BinderFactory builds a Binder for a new session.
type BinderFactory func(cfg BinderConfig) (Binder, error)

// DefaultBinderFactory builds an expr.Evaluator. Platform providers for heart
// rate and daily steps are registered only when a sensor gateway is set.
func DefaultBinderFactory(cfg BinderConfig) (Binder, error) {
	c := expr.Config{
		StateStore:  cfg.StateStore,
		TimeGateway: cfg.TimeGateway,
	}
	if cfg.SensorGateway != nil {
		c.Providers = expr.SensorProviders(cfg.SensorGateway)
	}
	ev, err := expr.New(c)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

package reclaim

// Reclaimable is a rebuildable in-process cache that can be evicted when the
// process has been idle. Reclaim must be idempotent: evicting an already
// clean cache is a no-op.
type Reclaimable interface {
	Name() string
	Reclaim() error
}

// Tier orders reclamation: light targets are cheap to rebuild, deep targets
// include loaded module handles and mirrors that rehydrate from persistence.
type Tier int

const (
	TierLight Tier = iota + 1
	TierDeep
)

// Registry tracks reclaimables per tier.
type Registry struct {
	light []Reclaimable
	deep  []Reclaimable
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a reclaimable under the given tier.
func (r *Registry) Register(tier Tier, target Reclaimable) {
	if target == nil {
		return
	}
	switch tier {
	case TierDeep:
		r.deep = append(r.deep, target)
	default:
		r.light = append(r.light, target)
	}
}

// Light returns the tier-1 targets in registration order.
func (r *Registry) Light() []Reclaimable {
	out := make([]Reclaimable, len(r.light))
	copy(out, r.light)
	return out
}

// Deep returns the tier-2 targets in registration order.
func (r *Registry) Deep() []Reclaimable {
	out := make([]Reclaimable, len(r.deep))
	copy(out, r.deep)
	return out
}

// Func adapts a plain function to the Reclaimable interface.
type Func struct {
	name string
	fn   func() error
}

// NewFunc wraps fn as a named reclaimable.
func NewFunc(name string, fn func() error) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Reclaim() error {
	if f.fn == nil {
		return nil
	}
	return f.fn()
}

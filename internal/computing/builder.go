package computing

import "fmt"

// Tier is the capacity profile of a computing class.
type Tier struct {
	Class  Class
	Cpu    float64
	Memory float64
}

// Builder creates ledgers from configured capacity tiers.
type Builder struct {
	tiers map[Class]Tier
}

// NewBuilder validates the tiers. Each class may be configured once.
func NewBuilder(tiers ...Tier) (*Builder, error) {
	b := &Builder{tiers: make(map[Class]Tier, len(tiers))}
	for _, t := range tiers {
		if t.Class == ClassNone {
			return nil, fmt.Errorf("tier class must be edge or cloud")
		}
		if t.Cpu < 0 || t.Memory < 0 {
			return nil, fmt.Errorf("tier %s has negative capacity", t.Class)
		}
		if _, dup := b.tiers[t.Class]; dup {
			return nil, fmt.Errorf("tier %s configured twice", t.Class)
		}
		b.tiers[t.Class] = t
	}
	return b, nil
}

// Build returns a fresh ledger for class, or an empty one when the class
// has no tier.
func (b *Builder) Build(class Class) *Computing {
	t, ok := b.tiers[class]
	if !ok {
		return None()
	}
	return New(t.Class, t.Cpu, t.Memory)
}

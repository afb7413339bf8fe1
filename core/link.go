package core

import (
	"fmt"
	"time"
)

// LinkID indexes a link in the Network edge list.
type LinkID int

// LinkKind is the physical class of a link.
type LinkKind int

const (
	// LinkISL is a laser/RF link between two satellites.
	LinkISL LinkKind = iota
	// LinkGround is an up/down link between a ground station and a satellite.
	LinkGround
)

func (k LinkKind) String() string {
	switch k {
	case LinkISL:
		return "isl"
	case LinkGround:
		return "ground"
	default:
		return fmt.Sprintf("LinkKind(%d)", int(k))
	}
}

// SpeedFactor is the fraction of the speed of light at which a signal
// travels over this class of link.
func (k LinkKind) SpeedFactor() float64 {
	if k == LinkGround {
		return 0.98
	}
	return 0.99
}

// Bandwidth of the link class in bits per second.
func (k LinkKind) Bandwidth() float64 {
	if k == LinkGround {
		return 500_000_000
	}
	return 200_000_000_000
}

// PropagationDelay converts a distance in metres into the signal delay
// over a link of kind k.
func PropagationDelay(distance float64, k LinkKind) time.Duration {
	seconds := distance / (SpeedOfLight * k.SpeedFactor())
	return time.Duration(seconds * float64(time.Second))
}

// MinPropagationDelay is the lowest possible delay over any link class for
// the given distance.
func MinPropagationDelay(distance float64) time.Duration {
	return PropagationDelay(distance, LinkISL)
}

// Link is an undirected edge between two nodes. Its geometric attributes are
// derived from the endpoint positions held by the Network; the established
// flag lives in the Network side table.
type Link struct {
	ID   LinkID
	A, B NodeID
	Kind LinkKind
}

// Touches reports whether id is one of the link's endpoints.
func (l Link) Touches(id NodeID) bool {
	return l.A == id || l.B == id
}

// Other returns the endpoint opposite to id. It returns InvalidNode when id
// is not an endpoint.
func (l Link) Other(id NodeID) NodeID {
	switch id {
	case l.A:
		return l.B
	case l.B:
		return l.A
	default:
		return InvalidNode
	}
}

func (l Link) String() string {
	return fmt.Sprintf("%s#%d(%d-%d)", l.Kind, l.ID, l.A, l.B)
}

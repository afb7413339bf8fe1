package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/constellation-testbed/internal/computing"
)

// NodeID indexes a node in the Network arena.
type NodeID int

// InvalidNode is returned where no node applies.
const InvalidNode NodeID = -1

// NodeKind distinguishes satellites from ground stations.
type NodeKind int

const (
	KindSatellite NodeKind = iota
	KindGroundStation
)

func (k NodeKind) String() string {
	switch k {
	case KindSatellite:
		return "satellite"
	case KindGroundStation:
		return "ground_station"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// Node is a satellite or ground station. Its position is rewritten every
// tick by UpdatePosition; everything else is fixed at creation.
type Node struct {
	ID   NodeID
	Name string
	Kind NodeKind

	mu        sync.RWMutex
	position  Vec3
	motion    MotionModel
	computing *computing.Computing
}

// Position returns the last propagated ECEF position.
func (n *Node) Position() Vec3 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.position
}

// SetPosition overrides the node position.
func (n *Node) SetPosition(p Vec3) {
	n.mu.Lock()
	n.position = p
	n.mu.Unlock()
}

// UpdatePosition propagates the node to simTime using its motion model.
func (n *Node) UpdatePosition(simTime time.Time) {
	if n.motion == nil {
		return
	}
	p := n.motion.Position(simTime)
	n.SetPosition(p)
}

// Computing returns the node's resource ledger.
func (n *Node) Computing() *computing.Computing {
	return n.computing
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %q (#%d)", n.Kind, n.Name, n.ID)
}

// Package computing tracks the CPU and memory ledger of a node and the
// services it hosts.
package computing

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Class is the capacity tier of a node.
type Class int

const (
	// ClassNone has no capacity. As a placement filter it matches any class.
	ClassNone Class = iota
	ClassEdge
	ClassCloud
)

// ClassAny is the placement filter that matches every class.
const ClassAny = ClassNone

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassEdge:
		return "edge"
	case ClassCloud:
		return "cloud"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// ParseClass maps "edge", "cloud", "any" and "none" to a Class.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "any":
		return ClassNone, nil
	case "edge":
		return ClassEdge, nil
	case "cloud":
		return ClassCloud, nil
	default:
		return ClassNone, fmt.Errorf("unknown computing class %q", s)
	}
}

// Matches reports whether a node of class c satisfies the filter.
func (c Class) Matches(filter Class) bool {
	return filter == ClassAny || c == filter
}

// Advertiser is notified after a service has been placed on the node.
type Advertiser interface {
	AdvertiseNewService(ctx context.Context, name string) error
}

// Computing is the resource ledger of a single node. Capacity is fixed at
// construction; usage and hosted services change under mu.
type Computing struct {
	class  Class
	cpu    float64
	memory float64

	mu         sync.Mutex
	cpuUsage   float64
	memUsage   float64
	services   []Service
	advertiser Advertiser
}

// New returns an empty ledger with the given capacity.
func New(class Class, cpu, memory float64) *Computing {
	return &Computing{class: class, cpu: cpu, memory: memory}
}

// None returns a ledger without capacity. Nothing can be placed on it.
func None() *Computing {
	return &Computing{class: ClassNone}
}

// SetAdvertiser wires the router notified by TryPlace.
func (c *Computing) SetAdvertiser(a Advertiser) {
	c.mu.Lock()
	c.advertiser = a
	c.mu.Unlock()
}

// Class returns the capacity tier.
func (c *Computing) Class() Class { return c.class }

// Cpu returns the CPU capacity.
func (c *Computing) Cpu() float64 { return c.cpu }

// Memory returns the memory capacity.
func (c *Computing) Memory() float64 { return c.memory }

// CpuUsage returns the CPU currently debited.
func (c *Computing) CpuUsage() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cpuUsage
}

// MemoryUsage returns the memory currently debited.
func (c *Computing) MemoryUsage() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memUsage
}

// CpuAvailable returns the unused CPU.
func (c *Computing) CpuAvailable() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cpu - c.cpuUsage
}

// MemoryAvailable returns the unused memory.
func (c *Computing) MemoryAvailable() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory - c.memUsage
}

// Services returns a copy of the hosted services.
func (c *Computing) Services() []Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}

// CanPlace reports whether svc fits in the remaining capacity and is not
// hosted yet.
func (c *Computing) CanPlace(svc Service) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canPlaceLocked(svc)
}

func (c *Computing) canPlaceLocked(svc Service) bool {
	if svc.Cpu > c.cpu-c.cpuUsage {
		return false
	}
	if svc.Memory > c.memory-c.memUsage {
		return false
	}
	return c.indexLocked(svc) < 0
}

func (c *Computing) indexLocked(svc Service) int {
	for i, s := range c.services {
		if s == svc {
			return i
		}
	}
	return -1
}

// TryPlace places svc when it still fits and reports whether it did. The
// router is told about the new service once the ledger lock is released; an
// advertisement failure is returned but does not undo the placement.
func (c *Computing) TryPlace(ctx context.Context, svc Service) (bool, error) {
	c.mu.Lock()
	if !c.canPlaceLocked(svc) {
		c.mu.Unlock()
		return false, nil
	}
	c.services = append(c.services, svc)
	c.cpuUsage += svc.Cpu
	c.memUsage += svc.Memory
	advertiser := c.advertiser
	c.mu.Unlock()

	if advertiser != nil {
		if err := advertiser.AdvertiseNewService(ctx, svc.Name); err != nil {
			return true, fmt.Errorf("advertise service %q: %w", svc.Name, err)
		}
	}
	return true, nil
}

// Remove releases svc and reports whether it was hosted.
func (c *Computing) Remove(svc Service) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(svc)
	if i < 0 {
		return false
	}
	c.services = append(c.services[:i], c.services[i+1:]...)
	c.cpuUsage -= svc.Cpu
	c.memUsage -= svc.Memory
	return true
}

// HostsService reports whether a service with the given name is placed here.
func (c *Computing) HostsService(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.services {
		if s.Name == name {
			return true
		}
	}
	return false
}

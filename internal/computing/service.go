package computing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidService is returned when a service definition is malformed.
var ErrInvalidService = errors.New("invalid service")

// Service is a deployable unit with fixed resource demands. Values are
// immutable once constructed.
type Service struct {
	Name   string  `json:"name" yaml:"name"`
	Cpu    float64 `json:"cpu" yaml:"cpu"`
	Memory float64 `json:"memory" yaml:"memory"`
}

// NewService validates and returns a service.
func NewService(name string, cpu, memory float64) (Service, error) {
	s := Service{Name: strings.TrimSpace(name), Cpu: cpu, Memory: memory}
	if err := s.Validate(); err != nil {
		return Service{}, err
	}
	return s, nil
}

// Validate checks that the name is set and that cpu and memory are positive.
func (s Service) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidService)
	}
	if s.Cpu <= 0 {
		return fmt.Errorf("%w: %q cpu must be positive, got %v", ErrInvalidService, s.Name, s.Cpu)
	}
	if s.Memory <= 0 {
		return fmt.Errorf("%w: %q memory must be positive, got %v", ErrInvalidService, s.Name, s.Memory)
	}
	return nil
}

// Package deployment places services on constellation nodes. A Manager
// dispatches each Specification to the Orchestrator registered for its kind.
package deployment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/computing"
)

var (
	ErrDuplicateOrchestrator = errors.New("duplicate orchestrator")
	ErrUnknownKind           = errors.New("unknown deployment kind")
	ErrInvalidSpec           = errors.New("invalid deployment specification")
	ErrNoCandidate           = errors.New("no node can host the service")
	ErrNoFeasibleNode        = errors.New("no candidate node satisfies the latency budget")
	ErrNotDeployed           = errors.New("deployment is not active")
	ErrAlreadyDeployed       = errors.New("deployment is already active")
)

// Kind tags a specification type.
type Kind string

const (
	KindDefault  Kind = "default"
	KindTask     Kind = "task"
	KindWorkflow Kind = "workflow"
)

// Specification describes something to deploy. ID is stable for the life
// of the specification and keys placement records.
type Specification interface {
	Kind() Kind
	ID() uuid.UUID
}

// DefaultSpec places Replicas copies of Service on random nodes of Class.
type DefaultSpec struct {
	id       uuid.UUID
	Service  computing.Service
	Replicas int
	Class    computing.Class
}

func NewDefaultSpec(svc computing.Service, replicas int, class computing.Class) (*DefaultSpec, error) {
	if err := svc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if replicas < 0 {
		return nil, fmt.Errorf("%w: negative replica count %d", ErrInvalidSpec, replicas)
	}
	return &DefaultSpec{id: uuid.New(), Service: svc, Replicas: replicas, Class: class}, nil
}

func (*DefaultSpec) Kind() Kind       { return KindDefault }
func (s *DefaultSpec) ID() uuid.UUID  { return s.id }
func (s *DefaultSpec) String() string { return fmt.Sprintf("default/%s(%s)", s.Service.Name, s.id) }

// TaskSpec places Service on one node whose route from the source stays
// within MaxLatency. The source is either a node or the name of a service
// that the candidate must reach.
type TaskSpec struct {
	id            uuid.UUID
	Service       computing.Service
	MaxLatency    time.Duration
	SourceNode    *core.Node
	SourceService string
}

// NewTaskSpec anchors the task to a node.
func NewTaskSpec(svc computing.Service, maxLatency time.Duration, source *core.Node) (*TaskSpec, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: task %q has no source node", ErrInvalidSpec, svc.Name)
	}
	return newTaskSpec(&TaskSpec{Service: svc, MaxLatency: maxLatency, SourceNode: source})
}

// NewServiceTaskSpec anchors the task to a service.
func NewServiceTaskSpec(svc computing.Service, maxLatency time.Duration, sourceService string) (*TaskSpec, error) {
	if sourceService == "" {
		return nil, fmt.Errorf("%w: task %q has no source service", ErrInvalidSpec, svc.Name)
	}
	return newTaskSpec(&TaskSpec{Service: svc, MaxLatency: maxLatency, SourceService: sourceService})
}

func newTaskSpec(s *TaskSpec) (*TaskSpec, error) {
	if err := s.Service.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if s.MaxLatency < 0 {
		return nil, fmt.Errorf("%w: negative latency budget %v", ErrInvalidSpec, s.MaxLatency)
	}
	s.id = uuid.New()
	return s, nil
}

func (*TaskSpec) Kind() Kind      { return KindTask }
func (s *TaskSpec) ID() uuid.UUID { return s.id }
func (s *TaskSpec) String() string {
	return fmt.Sprintf("task/%s(%s)", s.Service.Name, s.id)
}

// WorkflowSpec is a pipeline of tasks. Every stage after the first is
// anchored to the service of the stage before it.
type WorkflowSpec struct {
	id    uuid.UUID
	Name  string
	Tasks []*TaskSpec
}

// NewWorkflowSpec checks that tasks form a chain.
func NewWorkflowSpec(name string, tasks ...*TaskSpec) (*WorkflowSpec, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: workflow %q has no stages", ErrInvalidSpec, name)
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].SourceService != tasks[i-1].Service.Name {
			return nil, fmt.Errorf("%w: workflow %q stage %d is not anchored to %q",
				ErrInvalidSpec, name, i, tasks[i-1].Service.Name)
		}
	}
	return &WorkflowSpec{id: uuid.New(), Name: name, Tasks: tasks}, nil
}

// NewPipeline builds a workflow whose first stage is anchored to source and
// every later stage to the previous stage's service. All stages share one
// latency budget.
func NewPipeline(name string, source *core.Node, maxLatency time.Duration, services ...computing.Service) (*WorkflowSpec, error) {
	tasks := make([]*TaskSpec, 0, len(services))
	for i, svc := range services {
		var (
			task *TaskSpec
			err  error
		)
		if i == 0 {
			task, err = NewTaskSpec(svc, maxLatency, source)
		} else {
			task, err = NewServiceTaskSpec(svc, maxLatency, services[i-1].Name)
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return NewWorkflowSpec(name, tasks...)
}

func (*WorkflowSpec) Kind() Kind      { return KindWorkflow }
func (s *WorkflowSpec) ID() uuid.UUID { return s.id }
func (s *WorkflowSpec) String() string {
	return fmt.Sprintf("workflow/%s(%s)", s.Name, s.id)
}

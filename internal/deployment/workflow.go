package deployment

import (
	"context"
	"errors"
	"fmt"
)

// Workflow deploys each stage of a pipeline through a Task orchestrator.
// Stages are placed in order so later stages can route to earlier ones.
type Workflow struct {
	task *Task
}

func NewWorkflow(task *Task) *Workflow { return &Workflow{task: task} }

func (*Workflow) Kinds() []Kind { return []Kind{KindWorkflow} }

// Create places every stage. A failed stage rolls back the ones already
// placed.
func (w *Workflow) Create(ctx context.Context, spec Specification) error {
	s, ok := spec.(*WorkflowSpec)
	if !ok {
		return fmt.Errorf("%w: workflow orchestrator got %T", ErrInvalidSpec, spec)
	}
	for i, task := range s.Tasks {
		if err := w.task.Create(ctx, task); err != nil {
			var rollback []error
			for j := i - 1; j >= 0; j-- {
				rollback = append(rollback, w.task.Delete(ctx, s.Tasks[j]))
			}
			return errors.Join(fmt.Errorf("%s stage %d: %w", s, i, err), errors.Join(rollback...))
		}
	}
	return nil
}

func (w *Workflow) Delete(ctx context.Context, spec Specification) error {
	s, ok := spec.(*WorkflowSpec)
	if !ok {
		return fmt.Errorf("%w: workflow orchestrator got %T", ErrInvalidSpec, spec)
	}
	var errs []error
	for _, task := range s.Tasks {
		errs = append(errs, w.task.Delete(ctx, task))
	}
	return errors.Join(errs...)
}

// CheckReschedule re-checks stages front to back. A failing stage does not
// stop the checks of later stages.
func (w *Workflow) CheckReschedule(ctx context.Context, spec Specification) error {
	s, ok := spec.(*WorkflowSpec)
	if !ok {
		return fmt.Errorf("%w: workflow orchestrator got %T", ErrInvalidSpec, spec)
	}
	var errs []error
	for i, task := range s.Tasks {
		if err := w.task.CheckReschedule(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("%s stage %d: %w", s, i, err))
		}
	}
	return errors.Join(errs...)
}

package models

import (
	"sort"
	"time"
)

// Workflow is an authored automation definition: a trigger plus an ordered,
// optionally branching list of steps. Only Active workflows are evaluated
// for new enrollment.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"      validate:"required"`

	TriggerType   TriggerType    `json:"trigger_type" validate:"required"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`

	// AudienceFilters maps a lead field name to a predicate value: a scalar
	// means equality, a list means membership.
	AudienceFilters map[string]any `json:"audience_filters,omitempty"`

	AllowReEntry     bool `json:"allow_re_entry"`
	ExitOnConversion bool `json:"exit_on_conversion"`
	ContinueOnPause  bool `json:"continue_on_pause"`

	TotalEnrolled  int `json:"total_enrolled"`
	TotalCompleted int `json:"total_completed"`
	TotalConverted int `json:"total_converted"`

	Steps []*WorkflowStep `json:"steps"`

	Owner     string     `json:"owner,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// SortSteps orders the step list by order index. Repositories call this
// after loading so positional helpers below behave deterministically.
func (w *Workflow) SortSteps() {
	sort.SliceStable(w.Steps, func(i, j int) bool {
		return w.Steps[i].OrderIndex < w.Steps[j].OrderIndex
	})
}

// StepByID returns the step with the given id.
func (w *Workflow) StepByID(id string) (*WorkflowStep, bool) {
	for _, step := range w.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// FirstStep returns the active step with the lowest order index, or nil for
// an empty workflow.
func (w *Workflow) FirstStep() *WorkflowStep {
	var first *WorkflowStep

	for _, step := range w.Steps {
		if !step.Active {
			continue
		}

		if first == nil || step.OrderIndex < first.OrderIndex {
			first = step
		}
	}

	return first
}

// NextStep returns the active step that follows the given step in ordinal
// order, or nil when the given step is the last one.
func (w *Workflow) NextStep(afterID string) *WorkflowStep {
	current, found := w.StepByID(afterID)
	if !found {
		return nil
	}

	var next *WorkflowStep

	for _, step := range w.Steps {
		if !step.Active || step.OrderIndex <= current.OrderIndex {
			continue
		}

		if next == nil || step.OrderIndex < next.OrderIndex {
			next = step
		}
	}

	return next
}

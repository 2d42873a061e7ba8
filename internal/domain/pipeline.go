package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// StateType classifies a state within a pipeline.
type StateType string

const (
	StateTypeInitial  StateType = "initial"
	StateTypeNormal   StateType = "normal"
	StateTypeTerminal StateType = "terminal"
)

func (t StateType) Valid() bool {
	switch t {
	case StateTypeInitial, StateTypeNormal, StateTypeTerminal:
		return true
	}
	return false
}

// FailurePolicy controls what happens to a transition when one of its
// configured actions fails.
type FailurePolicy string

const (
	FailureAbort    FailurePolicy = "abort"
	FailureContinue FailurePolicy = "continue"
	FailureRetry    FailurePolicy = "retry"
)

func (p FailurePolicy) Valid() bool {
	switch p {
	case FailureAbort, FailureContinue, FailureRetry:
		return true
	}
	return false
}

// Pipeline is a workflow definition bound to an entity type. Configuration is
// read-mostly at runtime; once executed history references a pipeline, edits
// are additive (new version), never destructive.
type Pipeline struct {
	ID         string
	Name       string
	Code       string
	EntityType string
	Version    int64
	IsActive   bool
	Conditions []Condition
	Metadata   Metadata
	CreatedAt  time.Time
	CreatedBy  string
}

func (p Pipeline) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("pipeline id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("pipeline name is required")
	}
	if strings.TrimSpace(p.Code) == "" {
		return errors.New("pipeline code is required")
	}
	if strings.TrimSpace(p.EntityType) == "" {
		return errors.New("pipeline entity type is required")
	}
	if p.Version < 1 {
		return errors.New("pipeline version must be >= 1")
	}
	if strings.TrimSpace(p.CreatedBy) == "" {
		return errors.New("pipeline created_by is required")
	}
	return nil
}

// State is a node in a pipeline that an entity instance can occupy.
type State struct {
	ID         string
	PipelineID string
	Code       string
	Name       string
	Type       StateType
	Color      string
	Icon       string
	SortOrder  int
}

func (s State) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("state id is required")
	}
	if strings.TrimSpace(s.PipelineID) == "" {
		return errors.New("state pipeline id is required")
	}
	if strings.TrimSpace(s.Code) == "" {
		return errors.New("state code is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("state name is required")
	}
	if !s.Type.Valid() {
		return fmt.Errorf("state type %q is not valid", s.Type)
	}
	return nil
}

// InitialState selects the entry state for newly assigned entities: the state
// typed initial, falling back to the lowest sort order. Each pipeline must
// have exactly one usable entry state.
func InitialState(states []State) (State, error) {
	if len(states) == 0 {
		return State{}, errors.New("pipeline has no states")
	}
	var initials []State
	for _, s := range states {
		if s.Type == StateTypeInitial {
			initials = append(initials, s)
		}
	}
	switch len(initials) {
	case 1:
		return initials[0], nil
	case 0:
		ordered := make([]State, len(states))
		copy(ordered, states)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SortOrder < ordered[j].SortOrder })
		return ordered[0], nil
	default:
		return State{}, fmt.Errorf("pipeline has %d initial states, want exactly one", len(initials))
	}
}

// GuardSpec names a guard implementation and supplies its parameters. Guards
// are evaluated in the order configured on the transition.
type GuardSpec struct {
	Kind   string         `json:"kind" yaml:"kind"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Transition is a configured, directed edge between two states of the same
// pipeline. Every legal edge is explicit: no self-loops or wildcard sources
// exist unless configured.
type Transition struct {
	ID                   string
	PipelineID           string
	FromStateID          string
	ToStateID            string
	Code                 string
	Name                 string
	RequiredPermission   string
	Guards               []GuardSpec
	RequiresComment      bool
	RequiresConfirmation bool
	RequiresApproval     bool
	IsActive             bool
	SortOrder            int
}

func (t Transition) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("transition id is required")
	}
	if strings.TrimSpace(t.PipelineID) == "" {
		return errors.New("transition pipeline id is required")
	}
	if strings.TrimSpace(t.FromStateID) == "" {
		return errors.New("transition from state is required")
	}
	if strings.TrimSpace(t.ToStateID) == "" {
		return errors.New("transition to state is required")
	}
	if strings.TrimSpace(t.Code) == "" {
		return errors.New("transition code is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("transition name is required")
	}
	for i, g := range t.Guards {
		if strings.TrimSpace(g.Kind) == "" {
			return fmt.Errorf("transition guard[%d] kind is required", i)
		}
	}
	return nil
}

// TransitionAction is a configured side effect executed as part of performing
// a transition.
type TransitionAction struct {
	ID             string
	TransitionID   string
	ActionType     string
	Config         Metadata
	ExecutionOrder int
	IsAsync        bool
	OnFailure      FailurePolicy
	IsActive       bool
}

func (a TransitionAction) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("action id is required")
	}
	if strings.TrimSpace(a.TransitionID) == "" {
		return errors.New("action transition id is required")
	}
	if strings.TrimSpace(a.ActionType) == "" {
		return errors.New("action type is required")
	}
	if !a.OnFailure.Valid() {
		return fmt.Errorf("action on_failure %q is not valid", a.OnFailure)
	}
	return nil
}

package pipelinespec

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
)

// Definition is a fully materialized pipeline ready for persistence.
type Definition struct {
	Pipeline    domain.Pipeline
	States      []domain.State
	Transitions []domain.Transition
	Actions     []domain.TransitionAction
}

// BuildOptions control id minting and versioning on import. Zero values use
// uuid ids, version 1 and the current time.
type BuildOptions struct {
	Version   int64
	CreatedBy string
	Now       func() time.Time
	NewID     func() string
}

// Build mints ids for a validated spec and resolves code references into a
// persistable Definition. Importing an existing code again is expected to be
// called with the next version number; prior versions stay untouched.
func Build(spec Spec, opts BuildOptions) (Definition, error) {
	if err := spec.Validate(); err != nil {
		return Definition{}, err
	}
	if opts.Version < 1 {
		opts.Version = 1
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	pipeline := domain.Pipeline{
		ID:         opts.NewID(),
		Name:       strings.TrimSpace(spec.Pipeline.Name),
		Code:       strings.TrimSpace(spec.Pipeline.Code),
		EntityType: strings.TrimSpace(spec.Pipeline.EntityType),
		Version:    opts.Version,
		IsActive:   true,
		Conditions: spec.Pipeline.Conditions,
		Metadata:   domain.Metadata(spec.Pipeline.Metadata),
		CreatedAt:  opts.Now(),
		CreatedBy:  strings.TrimSpace(opts.CreatedBy),
	}

	stateIDs := make(map[string]string, len(spec.States))
	states := make([]domain.State, 0, len(spec.States))
	for i, def := range spec.States {
		stateType := domain.StateType(strings.ToLower(strings.TrimSpace(def.Type)))
		if stateType == "" {
			stateType = domain.StateTypeNormal
		}
		sortOrder := def.SortOrder
		if sortOrder == 0 {
			sortOrder = i + 1
		}
		st := domain.State{
			ID:         opts.NewID(),
			PipelineID: pipeline.ID,
			Code:       strings.TrimSpace(def.Code),
			Name:       strings.TrimSpace(def.Name),
			Type:       stateType,
			Color:      strings.TrimSpace(def.Color),
			Icon:       strings.TrimSpace(def.Icon),
			SortOrder:  sortOrder,
		}
		stateIDs[st.Code] = st.ID
		states = append(states, st)
	}

	var transitions []domain.Transition
	var actions []domain.TransitionAction
	for i, def := range spec.Transitions {
		sortOrder := def.SortOrder
		if sortOrder == 0 {
			sortOrder = i + 1
		}
		tr := domain.Transition{
			ID:                   opts.NewID(),
			PipelineID:           pipeline.ID,
			FromStateID:          stateIDs[strings.TrimSpace(def.From)],
			ToStateID:            stateIDs[strings.TrimSpace(def.To)],
			Code:                 strings.TrimSpace(def.Code),
			Name:                 strings.TrimSpace(def.Name),
			RequiredPermission:   strings.TrimSpace(def.Permission),
			Guards:               def.Guards,
			RequiresComment:      def.RequiresComment,
			RequiresConfirmation: def.RequiresConfirmation,
			RequiresApproval:     def.RequiresApproval,
			IsActive:             true,
			SortOrder:            sortOrder,
		}
		transitions = append(transitions, tr)

		for j, actionDef := range def.Actions {
			onFailure := domain.FailurePolicy(strings.ToLower(strings.TrimSpace(actionDef.OnFailure)))
			if onFailure == "" {
				onFailure = domain.FailureAbort
			}
			executionOrder := actionDef.ExecutionOrder
			if executionOrder == 0 {
				executionOrder = j + 1
			}
			actions = append(actions, domain.TransitionAction{
				ID:             opts.NewID(),
				TransitionID:   tr.ID,
				ActionType:     strings.TrimSpace(actionDef.Type),
				Config:         domain.Metadata(actionDef.Config),
				ExecutionOrder: executionOrder,
				IsAsync:        actionDef.IsAsync,
				OnFailure:      onFailure,
				IsActive:       true,
			})
		}
	}

	return Definition{
		Pipeline:    pipeline,
		States:      states,
		Transitions: transitions,
		Actions:     actions,
	}, nil
}

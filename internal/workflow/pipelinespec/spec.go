package pipelinespec

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
)

const SpecSchemaV1 = "ledgerline.pipeline.v1"

// Spec is the portable YAML form of a full pipeline definition. States and
// transitions reference each other by code; database ids are minted on
// import.
type Spec struct {
	Schema      string          `yaml:"schema"`
	Pipeline    PipelineDef     `yaml:"pipeline"`
	States      []StateDef      `yaml:"states"`
	Transitions []TransitionDef `yaml:"transitions"`
}

type PipelineDef struct {
	Name       string             `yaml:"name"`
	Code       string             `yaml:"code"`
	EntityType string             `yaml:"entity_type"`
	Conditions []domain.Condition `yaml:"conditions,omitempty"`
	Metadata   map[string]any     `yaml:"metadata,omitempty"`
}

type StateDef struct {
	Code      string `yaml:"code"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type,omitempty"`
	Color     string `yaml:"color,omitempty"`
	Icon      string `yaml:"icon,omitempty"`
	SortOrder int    `yaml:"sort_order,omitempty"`
}

type TransitionDef struct {
	Code                 string             `yaml:"code"`
	Name                 string             `yaml:"name"`
	From                 string             `yaml:"from"`
	To                   string             `yaml:"to"`
	Permission           string             `yaml:"permission,omitempty"`
	Guards               []domain.GuardSpec `yaml:"guards,omitempty"`
	RequiresComment      bool               `yaml:"requires_comment,omitempty"`
	RequiresConfirmation bool               `yaml:"requires_confirmation,omitempty"`
	RequiresApproval     bool               `yaml:"requires_approval,omitempty"`
	SortOrder            int                `yaml:"sort_order,omitempty"`
	Actions              []ActionDef        `yaml:"actions,omitempty"`
}

type ActionDef struct {
	Type           string         `yaml:"type"`
	Config         map[string]any `yaml:"config,omitempty"`
	ExecutionOrder int            `yaml:"execution_order,omitempty"`
	IsAsync        bool           `yaml:"is_async,omitempty"`
	OnFailure      string         `yaml:"on_failure,omitempty"`
}

func ParseSpec(input []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(input, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Schema) != SpecSchemaV1 {
		return fmt.Errorf("spec.schema must be %q", SpecSchemaV1)
	}
	if strings.TrimSpace(s.Pipeline.Name) == "" {
		return errors.New("spec.pipeline.name is required")
	}
	if strings.TrimSpace(s.Pipeline.Code) == "" {
		return errors.New("spec.pipeline.code is required")
	}
	if strings.TrimSpace(s.Pipeline.EntityType) == "" {
		return errors.New("spec.pipeline.entity_type is required")
	}
	if len(s.States) == 0 {
		return errors.New("spec.states must be non-empty")
	}

	stateCodes := make(map[string]struct{}, len(s.States))
	initials := 0
	for i, st := range s.States {
		code := strings.TrimSpace(st.Code)
		if code == "" {
			return fmt.Errorf("spec.states[%d].code is required", i)
		}
		if _, ok := stateCodes[code]; ok {
			return fmt.Errorf("spec.states[%d].code must be unique (duplicate %q)", i, code)
		}
		stateCodes[code] = struct{}{}
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("spec.states[%d].name is required", i)
		}
		switch strings.ToLower(strings.TrimSpace(st.Type)) {
		case "", string(domain.StateTypeNormal), string(domain.StateTypeTerminal):
		case string(domain.StateTypeInitial):
			initials++
		default:
			return fmt.Errorf("spec.states[%d].type unsupported: %q", i, st.Type)
		}
	}
	if initials > 1 {
		return fmt.Errorf("spec.states declares %d initial states, want at most one", initials)
	}

	transitionCodes := make(map[string]struct{}, len(s.Transitions))
	for i, tr := range s.Transitions {
		code := strings.TrimSpace(tr.Code)
		if code == "" {
			return fmt.Errorf("spec.transitions[%d].code is required", i)
		}
		if _, ok := transitionCodes[code]; ok {
			return fmt.Errorf("spec.transitions[%d].code must be unique (duplicate %q)", i, code)
		}
		transitionCodes[code] = struct{}{}
		if strings.TrimSpace(tr.Name) == "" {
			return fmt.Errorf("spec.transitions[%d].name is required", i)
		}
		if _, ok := stateCodes[strings.TrimSpace(tr.From)]; !ok {
			return fmt.Errorf("spec.transitions[%d].from references unknown state %q", i, tr.From)
		}
		if _, ok := stateCodes[strings.TrimSpace(tr.To)]; !ok {
			return fmt.Errorf("spec.transitions[%d].to references unknown state %q", i, tr.To)
		}
		for j, g := range tr.Guards {
			if strings.TrimSpace(g.Kind) == "" {
				return fmt.Errorf("spec.transitions[%d].guards[%d].kind is required", i, j)
			}
		}
		for j, a := range tr.Actions {
			if strings.TrimSpace(a.Type) == "" {
				return fmt.Errorf("spec.transitions[%d].actions[%d].type is required", i, j)
			}
			switch strings.ToLower(strings.TrimSpace(a.OnFailure)) {
			case "", string(domain.FailureAbort), string(domain.FailureContinue), string(domain.FailureRetry):
			default:
				return fmt.Errorf("spec.transitions[%d].actions[%d].on_failure unsupported: %q", i, j, a.OnFailure)
			}
		}
	}
	return nil
}

package pipelinespec

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
)

const assetSpecYAML = `
schema: ledgerline.pipeline.v1
pipeline:
  name: Asset Lifecycle
  code: asset_lifecycle
  entity_type: asset
  conditions:
    - field: category
      op: eq
      value: vehicle
states:
  - code: draft
    name: Draft
    type: initial
  - code: active
    name: Active
  - code: retired
    name: Retired
    type: terminal
transitions:
  - code: activate
    name: Activate
    from: draft
    to: active
    permission: asset.activate
    actions:
      - type: webhook
        config:
          url: https://hooks.example.com/assets
        on_failure: continue
  - code: retire
    name: Retire
    from: active
    to: retired
    permission: asset.retire
    requires_comment: true
    guards:
      - kind: field_compare
        params:
          field: book_value
          op: lte
          value: 0
          message: book value must be zero
`

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(assetSpecYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.Pipeline.Code != "asset_lifecycle" || spec.Pipeline.EntityType != "asset" {
		t.Fatalf("unexpected pipeline: %+v", spec.Pipeline)
	}
	if len(spec.States) != 3 || len(spec.Transitions) != 2 {
		t.Fatalf("unexpected shape: %d states, %d transitions", len(spec.States), len(spec.Transitions))
	}
	if len(spec.Pipeline.Conditions) != 1 || spec.Pipeline.Conditions[0].Op != "eq" {
		t.Fatalf("conditions not parsed: %+v", spec.Pipeline.Conditions)
	}
	if spec.Transitions[1].Guards[0].Params["message"] != "book value must be zero" {
		t.Fatalf("guard params not parsed: %+v", spec.Transitions[1].Guards)
	}
}

func TestParseSpecRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(string) string
	}{
		{"wrong schema", func(s string) string { return strings.Replace(s, "ledgerline.pipeline.v1", "other.v1", 1) }},
		{"unknown from state", func(s string) string { return strings.Replace(s, "from: draft", "from: limbo", 1) }},
		{"duplicate state code", func(s string) string { return strings.Replace(s, "code: retired", "code: draft", 1) }},
		{"bad on_failure", func(s string) string { return strings.Replace(s, "on_failure: continue", "on_failure: shrug", 1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSpec([]byte(tc.mutate(assetSpecYAML))); err == nil {
				t.Fatalf("expected parse error")
			}
		})
	}
}

func TestBuild(t *testing.T) {
	spec, err := ParseSpec([]byte(assetSpecYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	ids := 0
	def, err := Build(spec, BuildOptions{
		Version:   3,
		CreatedBy: "admin",
		Now:       func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := def.Pipeline.Validate(); err != nil {
		t.Fatalf("pipeline invalid: %v", err)
	}
	if def.Pipeline.Version != 3 || !def.Pipeline.IsActive || def.Pipeline.CreatedBy != "admin" {
		t.Fatalf("unexpected pipeline: %+v", def.Pipeline)
	}

	byCode := make(map[string]domain.State)
	for _, st := range def.States {
		if err := st.Validate(); err != nil {
			t.Fatalf("state invalid: %v", err)
		}
		if st.PipelineID != def.Pipeline.ID {
			t.Fatalf("state not bound to pipeline: %+v", st)
		}
		byCode[st.Code] = st
	}
	if byCode["draft"].Type != domain.StateTypeInitial {
		t.Fatalf("draft should be initial")
	}
	if byCode["active"].Type != domain.StateTypeNormal {
		t.Fatalf("untyped state should default to normal")
	}

	if len(def.Transitions) != 2 {
		t.Fatalf("expected 2 transitions")
	}
	activate := def.Transitions[0]
	if err := activate.Validate(); err != nil {
		t.Fatalf("transition invalid: %v", err)
	}
	if activate.FromStateID != byCode["draft"].ID || activate.ToStateID != byCode["active"].ID {
		t.Fatalf("state references not resolved: %+v", activate)
	}

	if len(def.Actions) != 1 {
		t.Fatalf("expected 1 action")
	}
	webhook := def.Actions[0]
	if err := webhook.Validate(); err != nil {
		t.Fatalf("action invalid: %v", err)
	}
	if webhook.TransitionID != activate.ID || webhook.OnFailure != domain.FailureContinue {
		t.Fatalf("unexpected action: %+v", webhook)
	}
	if webhook.Config["url"] != "https://hooks.example.com/assets" {
		t.Fatalf("action config lost: %+v", webhook.Config)
	}
}

func TestBuildDefaultsOnFailureToAbort(t *testing.T) {
	raw := strings.Replace(assetSpecYAML, "        on_failure: continue\n", "", 1)
	spec, err := ParseSpec([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def, err := Build(spec, BuildOptions{CreatedBy: "admin"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if def.Actions[0].OnFailure != domain.FailureAbort {
		t.Fatalf("missing on_failure should default to abort, got %s", def.Actions[0].OnFailure)
	}
}

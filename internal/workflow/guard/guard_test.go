package guard

import (
	"context"
	"testing"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/entity"
)

func assetInput(attrs map[string]any) Input {
	return Input{
		Entity: entity.Entity{Type: "asset", ID: "42", Attributes: attrs},
		EntityState: domain.EntityState{
			ID:       "es-1",
			Metadata: domain.Metadata{"approved": true, "batch": map[string]any{"id": "b-7"}},
		},
	}
}

func evaluateOne(t *testing.T, spec domain.GuardSpec, in Input) Result {
	t.Helper()
	return NewBuiltinRegistry().Evaluate(context.Background(), []domain.GuardSpec{spec}, in)
}

func TestFieldEquals(t *testing.T) {
	in := assetInput(map[string]any{"status": "draft"})

	got := evaluateOne(t, domain.GuardSpec{Kind: "field_equals", Params: map[string]any{"field": "status", "value": "draft"}}, in)
	if !got.Allowed {
		t.Fatalf("expected pass, reasons: %v", got.Reasons)
	}

	got = evaluateOne(t, domain.GuardSpec{Kind: "field_equals", Params: map[string]any{"field": "status", "value": "active"}}, in)
	if got.Allowed {
		t.Fatalf("expected failure")
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != `field "status" must equal "active"` {
		t.Fatalf("unexpected reasons: %v", got.Reasons)
	}
}

func TestFieldCompareNumeric(t *testing.T) {
	in := assetInput(map[string]any{"book_value": 120.5})

	got := evaluateOne(t, domain.GuardSpec{Kind: "field_compare", Params: map[string]any{"field": "book_value", "op": "gt", "value": 100}}, in)
	if !got.Allowed {
		t.Fatalf("expected 120.5 > 100 to pass, reasons: %v", got.Reasons)
	}

	got = evaluateOne(t, domain.GuardSpec{
		Kind:   "field_compare",
		Params: map[string]any{"field": "book_value", "op": "lte", "value": 0, "message": "book value must be zero"},
	}, in)
	if got.Allowed {
		t.Fatalf("expected failure")
	}
	if got.Reasons[0] != "book value must be zero" {
		t.Fatalf("custom message not used: %v", got.Reasons)
	}
}

func TestFieldCompareStringNumber(t *testing.T) {
	// SQL sources hand numeric columns over as strings.
	in := assetInput(map[string]any{"book_value": "0"})
	got := evaluateOne(t, domain.GuardSpec{Kind: "field_compare", Params: map[string]any{"field": "book_value", "op": "lte", "value": 0}}, in)
	if !got.Allowed {
		t.Fatalf("string numbers should coerce, reasons: %v", got.Reasons)
	}
}

func TestFieldInAndContains(t *testing.T) {
	in := assetInput(map[string]any{"category": "vehicle", "tags": []any{"leased", "insured"}})

	got := evaluateOne(t, domain.GuardSpec{Kind: "field_in", Params: map[string]any{"field": "category", "values": []any{"vehicle", "machine"}}}, in)
	if !got.Allowed {
		t.Fatalf("expected field_in pass, reasons: %v", got.Reasons)
	}

	got = evaluateOne(t, domain.GuardSpec{Kind: "field_contains", Params: map[string]any{"field": "tags", "value": "insured"}}, in)
	if !got.Allowed {
		t.Fatalf("expected field_contains pass, reasons: %v", got.Reasons)
	}

	got = evaluateOne(t, domain.GuardSpec{Kind: "field_in", Params: map[string]any{"field": "category", "values": []any{"building"}}}, in)
	if got.Allowed {
		t.Fatalf("expected field_in failure")
	}
}

func TestFieldMatchesAndPresent(t *testing.T) {
	in := assetInput(map[string]any{"serial": "LL-00427", "owner": "  "})

	got := evaluateOne(t, domain.GuardSpec{Kind: "field_matches", Params: map[string]any{"field": "serial", "pattern": `^LL-\d{5}$`}}, in)
	if !got.Allowed {
		t.Fatalf("expected pattern match, reasons: %v", got.Reasons)
	}

	got = evaluateOne(t, domain.GuardSpec{Kind: "field_present", Params: map[string]any{"field": "owner"}}, in)
	if got.Allowed {
		t.Fatalf("whitespace-only value should not count as present")
	}
}

func TestMetadataFlag(t *testing.T) {
	in := assetInput(nil)

	got := evaluateOne(t, domain.GuardSpec{Kind: "metadata_flag", Params: map[string]any{"key": "approved"}}, in)
	if !got.Allowed {
		t.Fatalf("expected approved flag to pass, reasons: %v", got.Reasons)
	}

	got = evaluateOne(t, domain.GuardSpec{Kind: "metadata_flag", Params: map[string]any{"key": "signed_off"}}, in)
	if got.Allowed {
		t.Fatalf("missing flag should fail")
	}
}

func TestUnknownKindFailsClosed(t *testing.T) {
	got := evaluateOne(t, domain.GuardSpec{Kind: "coin_flip"}, assetInput(nil))
	if got.Allowed {
		t.Fatalf("unknown guard kind must fail closed")
	}
	if len(got.Reasons) != 1 {
		t.Fatalf("expected one reason, got %v", got.Reasons)
	}
}

func TestEvaluateCollectsAllReasons(t *testing.T) {
	in := assetInput(map[string]any{"status": "draft", "book_value": 10})
	specs := []domain.GuardSpec{
		{Kind: "field_equals", Params: map[string]any{"field": "status", "value": "active"}},
		{Kind: "field_compare", Params: map[string]any{"field": "book_value", "op": "lte", "value": 0, "message": "book value must be zero"}},
	}
	got := NewBuiltinRegistry().Evaluate(context.Background(), specs, in)
	if got.Allowed {
		t.Fatalf("expected failure")
	}
	if len(got.Reasons) != 2 {
		t.Fatalf("expected both reasons collected, got %v", got.Reasons)
	}
}

func TestBadParamsRejectedAtBuild(t *testing.T) {
	got := evaluateOne(t, domain.GuardSpec{Kind: "field_matches", Params: map[string]any{"field": "serial", "pattern": "("}}, assetInput(nil))
	if got.Allowed {
		t.Fatalf("invalid pattern must fail closed")
	}
}

func TestMatchConditions(t *testing.T) {
	e := entity.Entity{Type: "asset", ID: "42", Attributes: map[string]any{
		"category":   "vehicle",
		"book_value": 250.0,
	}}

	matching := []domain.Condition{
		{Field: "category", Op: "eq", Value: "vehicle"},
		{Field: "book_value", Op: "gt", Value: "100"},
	}
	if !MatchConditions(matching, e) {
		t.Fatalf("expected conditions to match")
	}

	if MatchConditions([]domain.Condition{{Field: "category", Op: "eq", Value: "building"}}, e) {
		t.Fatalf("expected mismatch")
	}

	if !MatchConditions(nil, e) {
		t.Fatalf("empty condition list matches everything")
	}

	if !MatchConditions([]domain.Condition{{Field: "decommissioned", Op: "neq", Value: "true"}}, e) {
		t.Fatalf("neq holds vacuously for absent fields")
	}

	if MatchConditions([]domain.Condition{{Field: "category", Op: "teleports"}}, e) {
		t.Fatalf("unknown op matches nothing")
	}
}

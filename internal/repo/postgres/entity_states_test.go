package postgres

import (
	"strings"
	"testing"
)

func TestUpdateEntityStateQueryIsConditional(t *testing.T) {
	if !strings.Contains(updateEntityStateQuery, "current_state_id = $5") {
		t.Fatalf("expected expected-state predicate in update query")
	}
	if strings.Contains(strings.ToUpper(updateEntityStateQuery), "DELETE") {
		t.Fatalf("entity state update must never delete")
	}
}

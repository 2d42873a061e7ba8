package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/platform/auditlog"
	"github.com/ledgerline-labs/ledgerline-go/internal/workflow/entity"
)

// LogAction writes a structured line about the transition. Config:
// message (optional), level (debug|info|warn, default info).
type LogAction struct {
	Logger *slog.Logger
}

func (a *LogAction) Execute(ctx context.Context, inv Invocation, config domain.Metadata) error {
	if a.Logger == nil {
		return errors.New("log action has no logger")
	}
	message := configStringDefault(config, "message", "transition executed")
	fields := []any{
		"entity_type", inv.Entity.Type,
		"entity_id", inv.Entity.ID,
		"transition", inv.Transition.Code,
		"from_state_id", inv.FromStateID,
		"to_state_id", inv.ToStateID,
		"actor", inv.Actor,
		"request_id", inv.RequestID,
	}
	switch strings.ToLower(configStringDefault(config, "level", "info")) {
	case "debug":
		a.Logger.Debug(message, fields...)
	case "warn":
		a.Logger.Warn(message, fields...)
	default:
		a.Logger.Info(message, fields...)
	}
	return nil
}

// SetFieldAction writes one attribute back to the entity through its source.
// Config: field, value.
type SetFieldAction struct {
	Registry *entity.Registry
}

func (a *SetFieldAction) Execute(ctx context.Context, inv Invocation, config domain.Metadata) error {
	if a.Registry == nil {
		return errors.New("set_field action has no entity registry")
	}
	field, err := configString(config, "field")
	if err != nil {
		return err
	}
	value, ok := config["value"]
	if !ok {
		return errors.New(`action config "value" is required`)
	}
	updater, err := a.Registry.Updater(inv.Entity.Type)
	if err != nil {
		return err
	}
	if err := updater.SetAttribute(ctx, inv.Entity.ID, field, value); err != nil {
		return fmt.Errorf("set_field %s: %w", field, err)
	}
	return nil
}

// RecordEventAction appends a business event to the audit trail. Config:
// event (action name recorded in audit_events).
type RecordEventAction struct {
	DB auditlog.QueryRower
}

func (a *RecordEventAction) Execute(ctx context.Context, inv Invocation, config domain.Metadata) error {
	if a.DB == nil {
		return errors.New("record_event action has no database")
	}
	eventName, err := configString(config, "event")
	if err != nil {
		return err
	}
	_, err = auditlog.Insert(ctx, a.DB, auditlog.Event{
		OccurredAt:   inv.OccurredAt,
		Actor:        inv.Actor,
		Action:       eventName,
		ResourceType: inv.Entity.Type,
		ResourceID:   inv.Entity.ID,
		RequestID:    inv.RequestID,
		Payload: map[string]any{
			"transition_id":   inv.Transition.ID,
			"transition_code": inv.Transition.Code,
			"from_state_id":   inv.FromStateID,
			"to_state_id":     inv.ToStateID,
			"comment":         inv.Comment,
		},
	})
	return err
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// StateLog is an immutable audit record of one executed transition. Rows are
// written only by the transition executor, in the same transaction as the
// state pointer update, and are never updated or deleted.
type StateLog struct {
	ID              string
	EntityStateID   string
	PipelineID      string
	EntityType      string
	EntityID        string
	TransitionID    string
	FromStateID     string
	ToStateID       string
	Actor           string
	Comment         string
	Metadata        Metadata
	RequestID       string
	IP              net.IP
	UserAgent       string
	OccurredAt      time.Time
	IntegritySHA256 string
}

func (l StateLog) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return errors.New("state log id is required")
	}
	if strings.TrimSpace(l.EntityStateID) == "" {
		return errors.New("entity state id is required")
	}
	if strings.TrimSpace(l.PipelineID) == "" {
		return errors.New("pipeline id is required")
	}
	if strings.TrimSpace(l.EntityType) == "" {
		return errors.New("entity type is required")
	}
	if strings.TrimSpace(l.EntityID) == "" {
		return errors.New("entity id is required")
	}
	if strings.TrimSpace(l.TransitionID) == "" {
		return errors.New("transition id is required")
	}
	if strings.TrimSpace(l.FromStateID) == "" {
		return errors.New("from state id is required")
	}
	if strings.TrimSpace(l.ToStateID) == "" {
		return errors.New("to state id is required")
	}
	if strings.TrimSpace(l.Actor) == "" {
		return errors.New("actor is required")
	}
	if l.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	return nil
}

// ComputeIntegritySHA256 derives the tamper-evidence hash over the canonical
// JSON form of the log row, excluding the hash field itself.
func (l StateLog) ComputeIntegritySHA256() (string, error) {
	type integrityInput struct {
		ID            string          `json:"id"`
		EntityStateID string          `json:"entity_state_id"`
		PipelineID    string          `json:"pipeline_id"`
		EntityType    string          `json:"entity_type"`
		EntityID      string          `json:"entity_id"`
		TransitionID  string          `json:"transition_id"`
		FromStateID   string          `json:"from_state_id"`
		ToStateID     string          `json:"to_state_id"`
		Actor         string          `json:"actor"`
		Comment       string          `json:"comment,omitempty"`
		Metadata      json.RawMessage `json:"metadata"`
		RequestID     string          `json:"request_id,omitempty"`
		IP            string          `json:"ip,omitempty"`
		UserAgent     string          `json:"user_agent,omitempty"`
		OccurredAt    time.Time       `json:"occurred_at"`
	}

	meta := l.Metadata
	if meta == nil {
		meta = Metadata{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	ipStr := strings.TrimSpace(l.IP.String())
	if ipStr == "<nil>" {
		ipStr = ""
	}

	input := integrityInput{
		ID:            strings.TrimSpace(l.ID),
		EntityStateID: strings.TrimSpace(l.EntityStateID),
		PipelineID:    strings.TrimSpace(l.PipelineID),
		EntityType:    strings.TrimSpace(l.EntityType),
		EntityID:      strings.TrimSpace(l.EntityID),
		TransitionID:  strings.TrimSpace(l.TransitionID),
		FromStateID:   strings.TrimSpace(l.FromStateID),
		ToStateID:     strings.TrimSpace(l.ToStateID),
		Actor:         strings.TrimSpace(l.Actor),
		Comment:       l.Comment,
		Metadata:      metaJSON,
		RequestID:     strings.TrimSpace(l.RequestID),
		IP:            ipStr,
		UserAgent:     strings.TrimSpace(l.UserAgent),
		OccurredAt:    l.OccurredAt.UTC(),
	}
	canonical, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal integrity input: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

package engine

import (
	"context"
	"fmt"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
)

// TimelineEntry is one audit record with its references resolved for
// display.
type TimelineEntry struct {
	Log        domain.StateLog
	FromState  domain.State
	ToState    domain.State
	Transition domain.Transition
}

type TimelinePage struct {
	Entries []TimelineEntry
	Total   int64
	Limit   int
	Offset  int
}

// Timeline returns the entity's transition history newest first. The trail
// is append-only; this is the only read shape offered.
func (e *Engine) Timeline(ctx context.Context, entityType, entityID string, page repo.Page) (TimelinePage, error) {
	if _, err := e.entities.Source(entityType); err != nil {
		return TimelinePage{}, err
	}

	logs, err := e.store.ListStateLogs(ctx, entityType, entityID, page)
	if err != nil {
		return TimelinePage{}, fmt.Errorf("list state logs: %w", err)
	}
	total, err := e.store.CountStateLogs(ctx, entityType, entityID)
	if err != nil {
		return TimelinePage{}, fmt.Errorf("count state logs: %w", err)
	}

	states := make(map[string]domain.State)
	transitions := make(map[string]domain.Transition)
	entries := make([]TimelineEntry, 0, len(logs))
	for _, log := range logs {
		from, err := e.cachedState(ctx, states, log.FromStateID)
		if err != nil {
			return TimelinePage{}, err
		}
		to, err := e.cachedState(ctx, states, log.ToStateID)
		if err != nil {
			return TimelinePage{}, err
		}
		tr, err := e.cachedTransition(ctx, transitions, log.TransitionID)
		if err != nil {
			return TimelinePage{}, err
		}
		entries = append(entries, TimelineEntry{Log: log, FromState: from, ToState: to, Transition: tr})
	}

	return TimelinePage{Entries: entries, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (e *Engine) cachedState(ctx context.Context, cache map[string]domain.State, id string) (domain.State, error) {
	if s, ok := cache[id]; ok {
		return s, nil
	}
	s, err := e.store.GetState(ctx, id)
	if err != nil {
		return domain.State{}, fmt.Errorf("load state %s: %w", id, err)
	}
	cache[id] = s
	return s, nil
}

func (e *Engine) cachedTransition(ctx context.Context, cache map[string]domain.Transition, id string) (domain.Transition, error) {
	if t, ok := cache[id]; ok {
		return t, nil
	}
	t, err := e.store.GetTransition(ctx, id)
	if err != nil {
		return domain.Transition{}, fmt.Errorf("load transition %s: %w", id, err)
	}
	cache[id] = t
	return t, nil
}

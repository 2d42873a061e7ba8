package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
)

type StateLogStore struct {
	db DB
}

func NewStateLogStore(db DB) *StateLogStore {
	if db == nil {
		return nil
	}
	return &StateLogStore{db: db}
}

func (s *StateLogStore) AppendStateLog(ctx context.Context, log domain.StateLog) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("state log store not initialized")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	integrity := strings.TrimSpace(log.IntegritySHA256)
	if integrity == "" {
		computed, err := log.ComputeIntegritySHA256()
		if err != nil {
			return err
		}
		integrity = computed
	}
	metadataJSON, err := encodeMetadata(log.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	ipStr := strings.TrimSpace(log.IP.String())
	var ip sql.NullString
	if ipStr != "" && ipStr != "<nil>" {
		ip = sql.NullString{String: ipStr, Valid: true}
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_state_logs (
			log_id,
			entity_state_id,
			pipeline_id,
			entity_type,
			entity_id,
			transition_id,
			from_state_id,
			to_state_id,
			actor,
			comment,
			metadata,
			request_id,
			ip,
			user_agent,
			occurred_at,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		strings.TrimSpace(log.ID),
		strings.TrimSpace(log.EntityStateID),
		strings.TrimSpace(log.PipelineID),
		strings.TrimSpace(log.EntityType),
		strings.TrimSpace(log.EntityID),
		strings.TrimSpace(log.TransitionID),
		strings.TrimSpace(log.FromStateID),
		strings.TrimSpace(log.ToStateID),
		strings.TrimSpace(log.Actor),
		nullIfEmpty(log.Comment),
		metadataJSON,
		nullIfEmpty(log.RequestID),
		ip,
		nullIfEmpty(log.UserAgent),
		log.OccurredAt.UTC(),
		integrity,
	)
	if err != nil {
		return fmt.Errorf("insert state log: %w", handleDuplicate(err))
	}
	return nil
}

func (s *StateLogStore) ListStateLogs(ctx context.Context, entityType, entityID string, page repo.Page) ([]domain.StateLog, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("state log store not initialized")
	}
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("entity type and id are required")
	}
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT log_id, entity_state_id, pipeline_id, entity_type, entity_id, transition_id,
			from_state_id, to_state_id, actor, comment, metadata, request_id, ip, user_agent,
			occurred_at, integrity_sha256
		 FROM workflow_state_logs
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY occurred_at DESC, log_id DESC
		 LIMIT $3 OFFSET $4`,
		entityType,
		entityID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list state logs: %w", err)
	}
	defer rows.Close()

	logs := make([]domain.StateLog, 0)
	for rows.Next() {
		var log domain.StateLog
		var comment sql.NullString
		var metadataJSON []byte
		var requestID sql.NullString
		var ip sql.NullString
		var userAgent sql.NullString
		if err := rows.Scan(
			&log.ID,
			&log.EntityStateID,
			&log.PipelineID,
			&log.EntityType,
			&log.EntityID,
			&log.TransitionID,
			&log.FromStateID,
			&log.ToStateID,
			&log.Actor,
			&comment,
			&metadataJSON,
			&requestID,
			&ip,
			&userAgent,
			&log.OccurredAt,
			&log.IntegritySHA256,
		); err != nil {
			return nil, fmt.Errorf("scan state log: %w", err)
		}
		if comment.Valid {
			log.Comment = comment.String
		}
		if requestID.Valid {
			log.RequestID = requestID.String
		}
		if ip.Valid {
			log.IP = net.ParseIP(ip.String)
		}
		if userAgent.Valid {
			log.UserAgent = userAgent.String
		}
		meta, err := decodeMetadata(metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		log.Metadata = meta
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list state logs: %w", err)
	}
	return logs, nil
}

func (s *StateLogStore) CountStateLogs(ctx context.Context, entityType, entityID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("state log store not initialized")
	}
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return 0, fmt.Errorf("entity type and id are required")
	}
	var count int64
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM workflow_state_logs WHERE entity_type = $1 AND entity_id = $2`,
		entityType,
		entityID,
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count state logs: %w", err)
	}
	return count, nil
}

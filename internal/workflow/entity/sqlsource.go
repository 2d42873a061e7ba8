package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SQLSourceConfig describes how one entity type maps onto an existing table.
// Identifiers come from trusted deployment config but are still validated
// before being interpolated into queries.
type SQLSourceConfig struct {
	Table            string   `yaml:"table"`
	IDColumn         string   `yaml:"id_column"`
	ExternalIDColumn string   `yaml:"external_id_column"`
	Columns          []string `yaml:"columns"`
	Updatable        []string `yaml:"updatable"`
}

func (c SQLSourceConfig) Validate() error {
	if !identifierPattern.MatchString(c.Table) {
		return fmt.Errorf("invalid table name %q", c.Table)
	}
	if !identifierPattern.MatchString(c.IDColumn) {
		return fmt.Errorf("invalid id column %q", c.IDColumn)
	}
	if c.ExternalIDColumn != "" && !identifierPattern.MatchString(c.ExternalIDColumn) {
		return fmt.Errorf("invalid external id column %q", c.ExternalIDColumn)
	}
	if len(c.Columns) == 0 {
		return errors.New("at least one attribute column is required")
	}
	for _, col := range c.Columns {
		if !identifierPattern.MatchString(col) {
			return fmt.Errorf("invalid column name %q", col)
		}
	}
	for _, col := range c.Updatable {
		if !identifierPattern.MatchString(col) {
			return fmt.Errorf("invalid updatable column %q", col)
		}
		if !containsString(c.Columns, col) {
			return fmt.Errorf("updatable column %q is not in columns", col)
		}
	}
	return nil
}

// SQLSource loads entity attributes from a configured table. When an
// external id column is configured, lookups fall back to it after a miss on
// the surrogate key.
type SQLSource struct {
	db  *sql.DB
	cfg SQLSourceConfig

	selectByID       string
	selectByExternal string
}

func NewSQLSource(db *sql.DB, cfg SQLSourceConfig) (*SQLSource, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	columnList := strings.Join(cfg.Columns, ", ")
	s := &SQLSource{
		db:  db,
		cfg: cfg,
		selectByID: fmt.Sprintf(
			"SELECT %s::text, %s FROM %s WHERE %s::text = $1",
			cfg.IDColumn, columnList, cfg.Table, cfg.IDColumn,
		),
	}
	if cfg.ExternalIDColumn != "" {
		s.selectByExternal = fmt.Sprintf(
			"SELECT %s::text, %s FROM %s WHERE %s::text = $1",
			cfg.IDColumn, columnList, cfg.Table, cfg.ExternalIDColumn,
		)
	}
	return s, nil
}

func (s *SQLSource) Load(ctx context.Context, id string) (Entity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Entity{}, fmt.Errorf("%w: empty id", ErrEntityNotFound)
	}

	loaded, err := s.loadOne(ctx, s.selectByID, id)
	if err == nil {
		return loaded, nil
	}
	if !errors.Is(err, ErrEntityNotFound) || s.selectByExternal == "" {
		return Entity{}, err
	}
	return s.loadOne(ctx, s.selectByExternal, id)
}

func (s *SQLSource) loadOne(ctx context.Context, query string, id string) (Entity, error) {
	dest := make([]any, len(s.cfg.Columns)+1)
	var surrogate string
	dest[0] = &surrogate
	values := make([]any, len(s.cfg.Columns))
	for i := range values {
		dest[i+1] = &values[i]
	}

	err := s.db.QueryRowContext(ctx, query, id).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if err != nil {
		return Entity{}, fmt.Errorf("load entity: %w", err)
	}

	attrs := make(map[string]any, len(s.cfg.Columns))
	for i, col := range s.cfg.Columns {
		attrs[col] = normalizeValue(values[i])
	}
	return Entity{ID: surrogate, Attributes: attrs}, nil
}

func (s *SQLSource) SetAttribute(ctx context.Context, id string, field string, value any) error {
	field = strings.TrimSpace(field)
	if !containsString(s.cfg.Updatable, field) {
		return fmt.Errorf("column %q is not updatable", field)
	}
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s::text = $2", s.cfg.Table, field, s.cfg.IDColumn)
	res, err := s.db.ExecContext(ctx, query, value, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("update entity attribute: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, strings.TrimSpace(id))
	}
	return nil
}

// normalizeValue converts driver byte slices to strings so guards can compare
// attribute values uniformly.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

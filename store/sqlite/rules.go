package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// RULE STORE
// =============================================================================

// RuleRecord is a stored rule with its JSON config.
type RuleRecord struct {
	ID          string
	Name        string
	PenaltyType string
	Priority    int
	Active      bool
	ConfigJSON  string
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SaveRule encodes a rule and stores it, bumping the version on update.
func (s *Store) SaveRule(ctx context.Context, rule deduction.Rule) error {
	config, err := s.rules.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}
	return s.SaveRuleRecord(ctx, RuleRecord{
		ID:          string(rule.ID),
		Name:        rule.Name,
		PenaltyType: rule.PenaltyType,
		Priority:    rule.Priority,
		Active:      rule.Active,
		ConfigJSON:  config,
	})
}

// SaveRuleRecord stores a rule record as-is. The config is not validated;
// LoadRules reports undecodable configs as failures.
func (s *Store) SaveRuleRecord(ctx context.Context, r RuleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO deduction_rules (id, name, penalty_type, priority, active, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			penalty_type = excluded.penalty_type,
			priority = excluded.priority,
			active = excluded.active,
			config_json = excluded.config_json,
			version = deduction_rules.version + 1,
			updated_at = excluded.updated_at
	`

	ts := now()
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Name, r.PenaltyType, r.Priority, r.Active, r.ConfigJSON, ts, ts,
	)
	return err
}

// GetRule retrieves a rule record by ID.
func (s *Store) GetRule(ctx context.Context, id string) (*RuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, penalty_type, priority, active, config_json, version, created_at, updated_at
		FROM deduction_rules WHERE id = ?`,
		id,
	)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRules returns all rule records ordered by priority, then ID.
func (s *Store) ListRules(ctx context.Context) ([]RuleRecord, error) {
	return s.queryRules(ctx, `
		SELECT id, name, penalty_type, priority, active, config_json, version, created_at, updated_at
		FROM deduction_rules ORDER BY priority, id`)
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM deduction_rules WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrRuleNotFound, id)
	}
	return nil
}

// LoadRules decodes every active rule. Rows whose config does not decode
// come back as failures instead of failing the load.
func (s *Store) LoadRules(ctx context.Context) ([]deduction.Rule, []deduction.RuleFailure, error) {
	records, err := s.queryRules(ctx, `
		SELECT id, name, penalty_type, priority, active, config_json, version, created_at, updated_at
		FROM deduction_rules WHERE active = TRUE ORDER BY priority, id`)
	if err != nil {
		return nil, nil, err
	}

	rules := make([]deduction.Rule, 0, len(records))
	var failures []deduction.RuleFailure
	for _, rec := range records {
		rule, failure := s.rules.Decode(generic.RuleID(rec.ID), rec.Name, rec.ConfigJSON)
		if failure != nil {
			failures = append(failures, *failure)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, failures, nil
}

// DecodeRule decodes a stored record into a rule.
func (s *Store) DecodeRule(rec RuleRecord) (deduction.Rule, error) {
	rule, failure := s.rules.Decode(generic.RuleID(rec.ID), rec.Name, rec.ConfigJSON)
	if failure != nil {
		return deduction.Rule{}, failure
	}
	return rule, nil
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]RuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []RuleRecord{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRule(row scanner) (RuleRecord, error) {
	var r RuleRecord
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.Name, &r.PenaltyType, &r.Priority, &r.Active,
		&r.ConfigJSON, &r.Version, &createdAt, &updatedAt)
	if err != nil {
		return RuleRecord{}, err
	}
	r.CreatedAt = parseTimestamp(createdAt)
	r.UpdatedAt = parseTimestamp(updatedAt)
	return r, nil
}

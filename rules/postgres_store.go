package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore on the irrigation_rules table.
// Each store is scoped to one rule set (e.g. "risk", "label").
type PostgresRuleStore struct {
	db      *sql.DB
	ruleSet string
}

// NewPostgresRuleStore creates a store for the named rule set
func NewPostgresRuleStore(db *sql.DB, ruleSet string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:      db,
		ruleSet: ruleSet,
	}
}

const ruleColumns = `id, name, expression, verdict, priority, active, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*Rule, error) {
	var r Rule
	if err := row.Scan(&r.ID, &r.Name, &r.Expression, &r.Verdict, &r.Priority,
		&r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// Add inserts a new rule
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM irrigation_rules WHERE id = $1 AND rule_set = $2)
	`, rule.ID, s.ruleSet).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleExists)
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO irrigation_rules (id, rule_set, name, expression, verdict, priority, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rule.ID, s.ruleSet, rule.Name, rule.Expression, rule.Verdict, rule.Priority,
		rule.Active, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	rule, err := scanRule(s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM irrigation_rules
		WHERE id = $1 AND rule_set = $2
	`, id, s.ruleSet))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// List returns every rule of the set in evaluation order
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	return s.query(`
		SELECT `+ruleColumns+`
		FROM irrigation_rules
		WHERE rule_set = $1
		ORDER BY priority ASC, id ASC
	`)
}

// ListActive returns active rules in evaluation order
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	return s.query(`
		SELECT `+ruleColumns+`
		FROM irrigation_rules
		WHERE rule_set = $1 AND active = true
		ORDER BY priority ASC, id ASC
	`)
}

func (s *PostgresRuleStore) query(q string) ([]*Rule, error) {
	rows, err := s.db.Query(q, s.ruleSet)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return out, nil
}

// Update modifies an existing rule, preserving created_at
func (s *PostgresRuleStore) Update(rule *Rule) error {
	rule.UpdatedAt = time.Now().UTC()

	err := s.db.QueryRow(`
		UPDATE irrigation_rules
		SET name = $1, expression = $2, verdict = $3, priority = $4, active = $5, updated_at = $6
		WHERE id = $7 AND rule_set = $8
		RETURNING created_at
	`, rule.Name, rule.Expression, rule.Verdict, rule.Priority, rule.Active, rule.UpdatedAt,
		rule.ID, s.ruleSet).Scan(&rule.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return nil
}

// Delete removes a rule
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM irrigation_rules
		WHERE id = $1 AND rule_set = $2
	`, id, s.ruleSet)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}

	return nil
}

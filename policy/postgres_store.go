package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const policyColumns = `id, policy_code, name, category, loan_type, status, priority, version, rules, created_at, updated_at`

// PostgresPolicyStore implements PolicyStore backed by PostgreSQL.
// Rules are stored as a JSONB document on the policy row.
type PostgresPolicyStore struct {
	db *sql.DB
}

// NewPostgresPolicyStore creates a PostgreSQL-backed PolicyStore.
func NewPostgresPolicyStore(db *sql.DB) *PostgresPolicyStore {
	return &PostgresPolicyStore{db: db}
}

// FindActivePoliciesForLoanType returns active global and type-specific policies.
func (s *PostgresPolicyStore) FindActivePoliciesForLoanType(ctx context.Context, lt LoanType) ([]*Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE status = $1 AND (loan_type IS NULL OR loan_type = $2)
		ORDER BY priority ASC, policy_code ASC
	`, string(StatusActive), string(lt))
	if err != nil {
		return nil, fmt.Errorf("failed to query active policies: %w", err)
	}
	return scanPolicies(rows)
}

// ExistsByNameIgnoreCase reports whether a policy with the given name exists.
func (s *PostgresPolicyStore) ExistsByNameIgnoreCase(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM policies WHERE lower(name) = lower(trim($1)))
	`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check policy name: %w", err)
	}
	return exists, nil
}

// Save upserts a policy row.
func (s *PostgresPolicyStore) Save(ctx context.Context, p *Policy) error {
	if p.ID == "" {
		return fmt.Errorf("%w: policy ID is required", ErrInvalidPolicy)
	}

	rulesJSON, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	var loanType sql.NullString
	if p.LoanType != nil {
		loanType = sql.NullString{String: string(*p.LoanType), Valid: true}
	}

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			policy_code = EXCLUDED.policy_code,
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			loan_type = EXCLUDED.loan_type,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			version = EXCLUDED.version,
			rules = EXCLUDED.rules,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`, p.ID, p.PolicyCode, p.Name, string(p.Category), loanType, string(p.Status),
		p.Priority, p.Version, rulesJSON, p.CreatedAt, p.UpdatedAt).Scan(&p.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrPolicyExists, pqErr.Detail)
	}
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// Get retrieves a policy by ID.
func (s *PostgresPolicyStore) Get(ctx context.Context, id string) (*Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE id = $1
	`, id)

	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return p, nil
}

// List returns all policies ordered by priority.
func (s *PostgresPolicyStore) List(ctx context.Context) ([]*Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		ORDER BY priority ASC, policy_code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return scanPolicies(rows)
}

// Delete removes a policy row.
func (s *PostgresPolicyStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*Policy, error) {
	var (
		p         Policy
		loanType  sql.NullString
		category  string
		status    string
		rulesJSON []byte
	)
	if err := row.Scan(&p.ID, &p.PolicyCode, &p.Name, &category, &loanType, &status,
		&p.Priority, &p.Version, &rulesJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.Category = Category(category)
	p.Status = Status(status)
	if loanType.Valid {
		lt := LoanType(loanType.String)
		p.LoanType = &lt
	}
	if err := json.Unmarshal(rulesJSON, &p.Rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules for policy %s: %w", p.PolicyCode, err)
	}
	return &p, nil
}

func scanPolicies(rows *sql.Rows) ([]*Policy, error) {
	defer rows.Close()

	var policies []*Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policies: %w", err)
	}
	return policies, nil
}

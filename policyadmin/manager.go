package policyadmin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/liamcoop/loanpolicy/policy"
)

// ErrInvalidTransition is returned when a lifecycle change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Manager administers policy definitions. Every mutation invalidates the
// policy cache so evaluations pick up the change.
type Manager struct {
	store  policy.PolicyStore
	cache  policy.PolicyCache
	logger *slog.Logger
	mu     sync.Mutex // serializes mutations so name checks and saves are atomic
}

// NewManager creates a policy manager. cache may be nil.
func NewManager(store policy.PolicyStore, cache policy.PolicyCache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// CreatePolicy validates and stores a new policy. Names must be unique
// ignoring case. The policy gets a fresh ID, version 1 and DRAFT status
// unless a status is given.
func (m *Manager) CreatePolicy(ctx context.Context, p *policy.Policy) (*policy.Policy, error) {
	if p != nil && p.Status == "" {
		p.Status = policy.StatusDraft
	}
	if err := ValidatePolicy(p); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	exists, err := m.store.ExistsByNameIgnoreCase(ctx, p.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check policy name: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: name %q is already used", policy.ErrPolicyExists, p.Name)
	}

	p.ID = uuid.NewString()
	p.Version = 1
	if err := m.store.Save(ctx, p); err != nil {
		return nil, err
	}

	m.invalidate(ctx)
	m.logger.Info("policy created", "policy_id", p.ID, "policy_code", p.PolicyCode, "status", p.Status)
	return p, nil
}

// UpdatePolicy replaces the definition of an existing policy and bumps its version.
func (m *Manager) UpdatePolicy(ctx context.Context, id string, p *policy.Policy) (*policy.Policy, error) {
	if p != nil && p.Status == "" {
		p.Status = policy.StatusDraft
	}
	if err := ValidatePolicy(p); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(strings.TrimSpace(existing.Name), strings.TrimSpace(p.Name)) {
		exists, err := m.store.ExistsByNameIgnoreCase(ctx, p.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to check policy name: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: name %q is already used", policy.ErrPolicyExists, p.Name)
		}
	}

	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	p.Version = existing.Version + 1
	if err := m.store.Save(ctx, p); err != nil {
		return nil, err
	}

	m.invalidate(ctx)
	m.logger.Info("policy updated", "policy_id", p.ID, "policy_code", p.PolicyCode, "version", p.Version)
	return p, nil
}

// ActivatePolicy moves a DRAFT policy to ACTIVE.
func (m *Manager) ActivatePolicy(ctx context.Context, id string) (*policy.Policy, error) {
	return m.transition(ctx, id, policy.StatusDraft, policy.StatusActive)
}

// RetirePolicy moves an ACTIVE policy to RETIRED.
func (m *Manager) RetirePolicy(ctx context.Context, id string) (*policy.Policy, error) {
	return m.transition(ctx, id, policy.StatusActive, policy.StatusRetired)
}

func (m *Manager) transition(ctx context.Context, id string, from, to policy.Status) (*policy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != from {
		return nil, fmt.Errorf("%w: policy %s is %s, expected %s", ErrInvalidTransition, p.PolicyCode, p.Status, from)
	}

	p.Status = to
	if err := m.store.Save(ctx, p); err != nil {
		return nil, err
	}

	m.invalidate(ctx)
	m.logger.Info("policy status changed", "policy_id", p.ID, "policy_code", p.PolicyCode, "from", from, "to", to)
	return p, nil
}

// GetPolicy retrieves a policy by ID.
func (m *Manager) GetPolicy(ctx context.Context, id string) (*policy.Policy, error) {
	return m.store.Get(ctx, id)
}

// ListPolicies returns every policy.
func (m *Manager) ListPolicies(ctx context.Context) ([]*policy.Policy, error) {
	return m.store.List(ctx)
}

// DeletePolicy removes a policy.
func (m *Manager) DeletePolicy(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.invalidate(ctx)
	return nil
}

// SyncResult summarizes a Sync call.
type SyncResult struct {
	Created int
	Updated int
	Deleted int
}

// Sync makes the store hold exactly the given policies, matched by policy
// code. Used to load policy definition files. All policies are validated
// before anything is written. Incoming policies are saved before absent ones
// are deleted; if a save fails, the policies already written are restored to
// their previous state.
func (m *Manager) Sync(ctx context.Context, policies []*policy.Policy) (SyncResult, error) {
	var res SyncResult

	incoming := make(map[string]*policy.Policy, len(policies))
	names := make(map[string]string, len(policies))
	for _, p := range policies {
		if err := ValidatePolicy(p); err != nil {
			return res, err
		}
		if _, dup := incoming[p.PolicyCode]; dup {
			return res, fmt.Errorf("%w: duplicate policy code %s", policy.ErrInvalidPolicy, p.PolicyCode)
		}
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if other, dup := names[name]; dup {
			return res, fmt.Errorf("%w: policies %s and %s share the name %q", policy.ErrInvalidPolicy, other, p.PolicyCode, p.Name)
		}
		incoming[p.PolicyCode] = p
		names[name] = p.PolicyCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.List(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list policies: %w", err)
	}
	byCode := make(map[string]*policy.Policy, len(existing))
	for _, p := range existing {
		byCode[p.PolicyCode] = p
	}

	var (
		created  []string
		replaced []*policy.Policy
	)
	for _, p := range policies {
		old, ok := byCode[p.PolicyCode]
		if ok {
			p.ID = old.ID
			p.CreatedAt = old.CreatedAt
			p.Version = old.Version + 1
		} else {
			p.ID = uuid.NewString()
			p.Version = 1
		}
		if err := m.store.Save(ctx, p); err != nil {
			m.restore(ctx, created, replaced)
			return SyncResult{}, fmt.Errorf("failed to save policy %s: %w", p.PolicyCode, err)
		}
		if ok {
			replaced = append(replaced, old)
			res.Updated++
		} else {
			created = append(created, p.ID)
			res.Created++
		}
	}

	for _, p := range existing {
		if _, keep := incoming[p.PolicyCode]; keep {
			continue
		}
		if err := m.store.Delete(ctx, p.ID); err != nil {
			m.invalidate(ctx)
			return res, fmt.Errorf("failed to delete policy %s: %w", p.PolicyCode, err)
		}
		res.Deleted++
	}

	m.invalidate(ctx)
	m.logger.Info("policies synced", "created", res.Created, "updated", res.Updated, "deleted", res.Deleted)
	return res, nil
}

// restore undoes the writes of a failed Sync. Failures are logged; the
// store may then need another Sync.
func (m *Manager) restore(ctx context.Context, created []string, replaced []*policy.Policy) {
	for _, id := range created {
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Error("sync rollback: failed to delete created policy", "policy_id", id, "error", err)
		}
	}
	for _, old := range replaced {
		if err := m.store.Save(ctx, old); err != nil {
			m.logger.Error("sync rollback: failed to restore policy", "policy_code", old.PolicyCode, "error", err)
		}
	}
	m.invalidate(ctx)
}

// invalidate drops cached policy sets. Failure is logged; cached entries
// still expire by TTL.
func (m *Manager) invalidate(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx); err != nil {
		m.logger.Warn("policy cache invalidation failed", "error", err)
	}
}

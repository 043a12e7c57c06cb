package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// PolicyStore manages policy persistence and retrieval.
// The evaluation engine only reads from it.
type PolicyStore interface {
	// FindActivePoliciesForLoanType returns ACTIVE policies that apply to lt,
	// including global policies, ordered by priority.
	FindActivePoliciesForLoanType(ctx context.Context, lt LoanType) ([]*Policy, error)

	// ExistsByNameIgnoreCase reports whether a policy with the given name exists.
	ExistsByNameIgnoreCase(ctx context.Context, name string) (bool, error)

	// Save inserts or updates a policy keyed by its ID.
	Save(ctx context.Context, p *Policy) error

	// Get retrieves a policy by ID.
	Get(ctx context.Context, id string) (*Policy, error)

	// List returns every policy regardless of status.
	List(ctx context.Context) ([]*Policy, error)

	// Delete removes a policy.
	Delete(ctx context.Context, id string) error
}

// InMemoryPolicyStore implements PolicyStore using an in-memory map.
// Safe for concurrent use.
type InMemoryPolicyStore struct {
	policies map[string]*Policy
	mu       sync.RWMutex
}

// NewInMemoryPolicyStore creates an empty in-memory policy store.
func NewInMemoryPolicyStore() *InMemoryPolicyStore {
	return &InMemoryPolicyStore{
		policies: make(map[string]*Policy),
	}
}

// FindActivePoliciesForLoanType returns copies of the matching active policies.
func (s *InMemoryPolicyStore) FindActivePoliciesForLoanType(_ context.Context, lt LoanType) ([]*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Policy
	for _, p := range s.policies {
		if p.Status == StatusActive && p.AppliesTo(lt) {
			active = append(active, p.Clone())
		}
	}
	sortPolicies(active)
	return active, nil
}

// ExistsByNameIgnoreCase reports whether any stored policy has the given name.
func (s *InMemoryPolicyStore) ExistsByNameIgnoreCase(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.policies {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return true, nil
		}
	}
	return false, nil
}

// Save stores a copy of p. On update the original CreatedAt is preserved.
func (s *InMemoryPolicyStore) Save(_ context.Context, p *Policy) error {
	if p.ID == "" {
		return fmt.Errorf("%w: policy ID is required", ErrInvalidPolicy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.policies {
		if id != p.ID && other.PolicyCode == p.PolicyCode {
			return fmt.Errorf("%w: policy code %s is used by %s", ErrPolicyExists, p.PolicyCode, id)
		}
	}

	now := time.Now()
	if existing, ok := s.policies[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.policies[p.ID] = p.Clone()
	return nil
}

// Get retrieves a copy of the policy with the given ID.
func (s *InMemoryPolicyStore) Get(_ context.Context, id string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	return p.Clone(), nil
}

// List returns copies of all policies ordered by priority.
func (s *InMemoryPolicyStore) List(_ context.Context) ([]*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Policy, 0, len(s.policies))
	for _, p := range s.policies {
		all = append(all, p.Clone())
	}
	sortPolicies(all)
	return all, nil
}

// Delete removes a policy from the store.
func (s *InMemoryPolicyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	delete(s.policies, id)
	return nil
}

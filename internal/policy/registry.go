package policy

import (
	"fmt"
	"sort"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
)

// Registry holds all rule profiles.
// This is the in-memory rule store.
type Registry struct {
	profiles map[string]RuleProfile
}

// NewRegistry creates a registry with the built-in profile.
func NewRegistry(selfNames ...string) *Registry {
	r := &Registry{
		profiles: make(map[string]RuleProfile),
	}

	r.Register(NewStudyProfile(selfNames...))

	return r
}

// NewRegistryWithProfiles creates a registry with custom profiles (for testing).
func NewRegistryWithProfiles(profiles ...RuleProfile) *Registry {
	r := &Registry{
		profiles: make(map[string]RuleProfile),
	}
	for _, p := range profiles {
		r.Register(p)
	}
	return r
}

// Register adds a profile to the registry, replacing one with the same ID.
func (r *Registry) Register(p RuleProfile) {
	r.profiles[p.ID()] = p
}

// Get returns a profile by ID.
func (r *Registry) Get(id string) (RuleProfile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

// GetAll returns all registered profiles sorted by ID.
func (r *Registry) GetAll() []RuleProfile {
	result := make([]RuleProfile, 0, len(r.profiles))
	for _, id := range r.List() {
		result = append(result, r.profiles[id])
	}
	return result
}

// List returns all profile IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RegistryRuleStore adapts Registry to implement domain.RuleStore interface.
type RegistryRuleStore struct {
	registry *Registry
}

// NewRuleStore creates a RuleStore backed by the given Registry.
func NewRuleStore(registry *Registry) domain.RuleStore {
	return &RegistryRuleStore{registry: registry}
}

func (s *RegistryRuleStore) Get(id string) (*domain.ClassificationRules, error) {
	p, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("rule profile not found: %s", id)
	}
	rules := ToRules(p)
	return &rules, nil
}

func (s *RegistryRuleStore) List() []string {
	return s.registry.List()
}

// Ensure RegistryRuleStore implements domain.RuleStore.
var _ domain.RuleStore = (*RegistryRuleStore)(nil)

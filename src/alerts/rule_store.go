package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jiaming2012/tick-analytics/src/models"
)

type RuleStore interface {
	CreateRule(ctx context.Context, rule *models.AlertRule) error
	GetRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error)
	ListRules(ctx context.Context) ([]*models.AlertRule, error)
	UpdateRule(ctx context.Context, rule *models.AlertRule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// MemoryRuleStore keeps rules in process. Callers always receive copies.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]models.AlertRule
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		rules: make(map[uuid.UUID]models.AlertRule),
	}
}

func (s *MemoryRuleStore) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; ok {
		return fmt.Errorf("MemoryRuleStore.CreateRule: rule %s already exists", rule.ID)
	}

	s.rules[rule.ID] = *rule
	return nil
}

func (s *MemoryRuleStore) GetRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("MemoryRuleStore.GetRule: %s: %w", id, models.RuleNotFoundErr)
	}

	return &rule, nil
}

func (s *MemoryRuleStore) ListRules(ctx context.Context) ([]*models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		rule := r
		out = append(out, &rule)
	}

	sortRules(out)
	return out, nil
}

func (s *MemoryRuleStore) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; !ok {
		return fmt.Errorf("MemoryRuleStore.UpdateRule: %s: %w", rule.ID, models.RuleNotFoundErr)
	}

	s.rules[rule.ID] = *rule
	return nil
}

func (s *MemoryRuleStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("MemoryRuleStore.DeleteRule: %s: %w", id, models.RuleNotFoundErr)
	}

	delete(s.rules, id)
	return nil
}

func sortRules(rules []*models.AlertRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID.String() < rules[j].ID.String()
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}

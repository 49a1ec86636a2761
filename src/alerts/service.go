package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/models"
)

// Service applies rule mutations to the store and reloads the evaluator so that the
// change is visible from the next snapshot on.
type Service struct {
	store     RuleStore
	evaluator *Evaluator
	now       func() time.Time
}

func NewService(store RuleStore, evaluator *Evaluator) *Service {
	return &Service{
		store:     store,
		evaluator: evaluator,
		now:       time.Now,
	}
}

func (s *Service) CreateRule(ctx context.Context, req *models.AlertRuleRequest) (*models.AlertRule, error) {
	rule, err := req.NewObject(uuid.New(), s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("alerts.CreateRule: %w", err)
	}

	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("alerts.CreateRule: %w", err)
	}

	s.reload(ctx)

	log.WithField("rule", rule.ID).Infof("created alert rule: %s", rule)
	return rule, nil
}

// UpdateRule replaces every field of the rule except its id and creation time.
func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, req *models.AlertRuleRequest) (*models.AlertRule, error) {
	existing, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("alerts.UpdateRule: %w", err)
	}

	rule, err := req.NewObject(id, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("alerts.UpdateRule: %w", err)
	}
	rule.CreatedAt = existing.CreatedAt

	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("alerts.UpdateRule: %w", err)
	}

	s.reload(ctx)
	return rule, nil
}

func (s *Service) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.AlertRule, error) {
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("alerts.SetEnabled: %w", err)
	}

	rule.Enabled = enabled
	rule.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("alerts.SetEnabled: %w", err)
	}

	s.reload(ctx)
	return rule, nil
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("alerts.DeleteRule: %w", err)
	}

	s.reload(ctx)
	return nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*models.AlertRuleView, error) {
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("alerts.GetRule: %w", err)
	}

	return &models.AlertRuleView{AlertRule: rule, TriggeredCount: s.evaluator.TriggeredCount(rule.ID)}, nil
}

func (s *Service) ListRules(ctx context.Context) ([]models.AlertRuleView, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("alerts.ListRules: %w", err)
	}

	out := make([]models.AlertRuleView, 0, len(rules))
	for _, r := range rules {
		out = append(out, models.AlertRuleView{AlertRule: r, TriggeredCount: s.evaluator.TriggeredCount(r.ID)})
	}

	return out, nil
}

func (s *Service) History(limit int) models.AlertHistory {
	return s.evaluator.History(limit)
}

func (s *Service) reload(ctx context.Context) {
	if err := s.evaluator.Refresh(ctx); err != nil {
		log.Errorf("alerts: failed to reload rules: %v", err)
	}
}

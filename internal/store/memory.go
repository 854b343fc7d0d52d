package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"geo_gate/internal/dataType"
)

type shopEntry struct {
	plan     dataType.PlanKind
	settings *dataType.Settings
	rules    []dataType.Rule
}

// MemoryRuleStore keeps shops in process memory, seeded from shops.yml.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	shops map[string]*shopEntry
}

func NewMemoryRuleStore(shops []dataType.Shop) *MemoryRuleStore {
	s := &MemoryRuleStore{shops: make(map[string]*shopEntry, len(shops))}
	for _, shop := range shops {
		_ = s.SaveShop(context.Background(), shop)
	}
	return s
}

func normDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

func (s *MemoryRuleStore) InstallShop(_ context.Context, domain string, plan dataType.PlanKind) error {
	domain = normDomain(domain)
	if domain == "" {
		return fmt.Errorf("install shop: empty domain")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.shops[domain]; ok {
		entry.plan = plan
		return nil
	}
	s.shops[domain] = &shopEntry{plan: plan}
	return nil
}

// SaveShop replaces the plan, settings and rules of a shop.
func (s *MemoryRuleStore) SaveShop(_ context.Context, shop dataType.Shop) error {
	domain := normDomain(shop.Domain)
	if domain == "" {
		return fmt.Errorf("save shop: empty domain")
	}
	settings := cloneSettings(shop.Settings)
	settings.Shop = domain
	rules := make([]dataType.Rule, 0, len(shop.Rules))
	for _, rule := range shop.Rules {
		rule = cloneRule(rule)
		rule.Shop = domain
		rules = append(rules, rule)
	}
	dataType.SortRules(rules)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[domain] = &shopEntry{plan: shop.Plan, settings: &settings, rules: rules}
	return nil
}

func (s *MemoryRuleStore) GetPlan(_ context.Context, domain string) (dataType.PlanKind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.shops[normDomain(domain)]
	if !ok {
		return "", ErrShopNotFound
	}
	return entry.plan, nil
}

func (s *MemoryRuleStore) GetSettings(_ context.Context, domain string) (dataType.Settings, error) {
	domain = normDomain(domain)
	s.mu.RLock()
	entry, ok := s.shops[domain]
	if ok && entry.settings != nil {
		settings := cloneSettings(*entry.settings)
		s.mu.RUnlock()
		return settings, nil
	}
	s.mu.RUnlock()
	if !ok {
		return dataType.Settings{}, ErrShopNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok = s.shops[domain]
	if !ok {
		return dataType.Settings{}, ErrShopNotFound
	}
	if entry.settings == nil {
		defaults := dataType.DefaultSettings(domain)
		entry.settings = &defaults
	}
	return cloneSettings(*entry.settings), nil
}

func (s *MemoryRuleStore) GetRules(_ context.Context, domain string) ([]dataType.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.shops[normDomain(domain)]
	if !ok {
		return nil, ErrShopNotFound
	}
	rules := make([]dataType.Rule, len(entry.rules))
	for i, rule := range entry.rules {
		rules[i] = cloneRule(rule)
	}
	return rules, nil
}

func (s *MemoryRuleStore) UpsertSettings(_ context.Context, settings dataType.Settings) error {
	domain := normDomain(settings.Shop)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.shops[domain]
	if !ok {
		return ErrShopNotFound
	}
	if err := dataType.ValidateSettings(settings); err != nil {
		return err
	}
	settings = cloneSettings(settings)
	settings.Shop = domain
	entry.settings = &settings
	return nil
}

// UpsertRule replaces the rule with the same id in place or appends it.
func (s *MemoryRuleStore) UpsertRule(_ context.Context, rule dataType.Rule) error {
	domain := normDomain(rule.Shop)
	if rule.ID == "" {
		return fmt.Errorf("upsert rule: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.shops[domain]
	if !ok {
		return ErrShopNotFound
	}
	if err := dataType.ValidateRule(rule); err != nil {
		return err
	}
	rule = cloneRule(rule)
	rule.Shop = domain
	replaced := false
	for i := range entry.rules {
		if entry.rules[i].ID == rule.ID {
			entry.rules[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		entry.rules = append(entry.rules, rule)
	}
	dataType.SortRules(entry.rules)
	return nil
}

func (s *MemoryRuleStore) DeleteRule(_ context.Context, domain, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.shops[normDomain(domain)]
	if !ok {
		return ErrShopNotFound
	}
	for i := range entry.rules {
		if entry.rules[i].ID == id {
			entry.rules = append(entry.rules[:i], entry.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

// DeleteShop drops the shop together with its settings and rules.
func (s *MemoryRuleStore) DeleteShop(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shops, normDomain(domain))
	return nil
}

func (s *MemoryRuleStore) Close() error {
	return nil
}

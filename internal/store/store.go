package store

import (
	"context"
	"errors"

	"geo_gate/internal/dataType"
)

var ErrShopNotFound = errors.New("shop not found")

// RuleStore owns shops, their settings and their rules. GetRules returns the
// rules of a shop ordered by priority, highest first, ties in stored order.
// GetSettings creates the default settings of a known shop on first access.
type RuleStore interface {
	InstallShop(ctx context.Context, domain string, plan dataType.PlanKind) error
	SaveShop(ctx context.Context, shop dataType.Shop) error
	GetPlan(ctx context.Context, domain string) (dataType.PlanKind, error)
	GetSettings(ctx context.Context, domain string) (dataType.Settings, error)
	GetRules(ctx context.Context, domain string) ([]dataType.Rule, error)
	UpsertSettings(ctx context.Context, settings dataType.Settings) error
	UpsertRule(ctx context.Context, rule dataType.Rule) error
	DeleteRule(ctx context.Context, domain, id string) error
	DeleteShop(ctx context.Context, domain string) error
	Close() error
}

// UsageStore owns the monthly usage counters. ClaimOverage computes the
// unbilled visitors above limit and marks them charged in one atomic step.
type UsageStore interface {
	Increment(ctx context.Context, shop, month string, field dataType.UsageField) (dataType.UsageCounter, error)
	Snapshot(ctx context.Context, shop, month string) (dataType.UsageCounter, error)
	ClaimOverage(ctx context.Context, shop, month string, limit int64) (int64, error)
	ReleaseOverage(ctx context.Context, shop, month string, units int64) error
	DeleteShop(ctx context.Context, shop string) error
	GC(ctx context.Context, oldestMonth string) (int, error)
	Close() error
}

func cloneRule(r dataType.Rule) dataType.Rule {
	r.CountryCodes = append([]string(nil), r.CountryCodes...)
	r.IPAddresses = append([]string(nil), r.IPAddresses...)
	r.DaysOfWeek = append([]int(nil), r.DaysOfWeek...)
	return r
}

func cloneSettings(s dataType.Settings) dataType.Settings {
	s.ExcludedIPs = append([]string(nil), s.ExcludedIPs...)
	return s
}

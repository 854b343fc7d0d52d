package action

import (
	"fmt"
	"strings"
	"time"

	"geo_gate/internal/check"
	"geo_gate/internal/dataType"
)

// ResolveContext is everything the engine needs besides the rules.
type ResolveContext struct {
	VisitorIP   string
	CountryCode string
	IsBot       bool
	Now         time.Time
	Settings    dataType.Settings
	Gate        check.GateResult
}

// Resolve picks at most one rule for the visitor and maps it to a decision.
// Priority: settings gates > IP rules > country rules; within a category the
// highest priority wins and ties keep the first rule in stored order.
// Resolve never fails: broken rules do not match and are reported in Issues.
func Resolve(rules []dataType.Rule, ctx ResolveContext) (d Decision) {
	d = *NewDecision()
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Action: Allow, Reason: ReasonNoMatch, Issues: append(d.Issues, fmt.Sprintf("resolve panic: %v", r))}
		}
	}()

	switch ctx.Settings.Mode {
	case dataType.ModeDisabled:
		d.Set(Allow, ReasonDisabled)
		return d
	case dataType.ModePopup, dataType.ModeAutoRedirect:
	default:
		d.Set(Allow, ReasonUnknownMode)
		d.addIssue(fmt.Errorf("%w: %q", dataType.ErrUnknownMode, ctx.Settings.Mode))
		return d
	}

	if ctx.Gate.Suspended {
		d.Set(Allow, ReasonSuspended)
		return d
	}
	if ctx.IsBot && ctx.Settings.ExcludeBots {
		d.Set(Allow, ReasonBot)
		return d
	}
	if IsIPExcluded(ctx.VisitorIP, ctx.Settings) {
		d.Set(Allow, ReasonIPExcluded)
		return d
	}

	var ipRules, countryRules []dataType.Rule
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		switch rule.MatchType {
		case dataType.MatchIP:
			ipRules = append(ipRules, rule)
		case dataType.MatchCountry:
			countryRules = append(countryRules, rule)
		default:
			d.addIssue(fmt.Errorf("rule %s: %w: %q", rule.ID, dataType.ErrUnknownMatchType, rule.MatchType))
		}
	}

	if winner, ok := pickRule(ipRules, ctx, &d, matchIPRule); ok {
		switch winner.RuleType {
		case dataType.RuleBlock:
			d.setRule(Block, ReasonIPRule, winner)
		case dataType.RuleRedirect:
			d.setRule(Redirect, ReasonIPRule, winner)
		}
		return d
	}

	if winner, ok := pickRule(countryRules, ctx, &d, matchCountryRule); ok {
		switch winner.RuleType {
		case dataType.RuleBlock:
			d.setRule(Block, ReasonCountryRule, winner)
		case dataType.RuleRedirect:
			if ctx.Settings.Mode == dataType.ModePopup {
				d.setRule(ShowPopup, ReasonCountryRule, winner)
			} else {
				d.setRule(Redirect, ReasonCountryRule, winner)
			}
		}
		return d
	}

	return d
}

func (d *Decision) setRule(a Action, reason Reason, rule dataType.Rule) {
	d.Set(a, reason)
	d.RuleID = rule.ID
	d.RuleName = rule.Name
	if a != Block {
		d.TargetURL = rule.TargetURL
	}
}

type ruleMatcher func(rule dataType.Rule, ctx ResolveContext, d *Decision) bool

// pickRule returns the highest priority rule that matches and is in window.
func pickRule(rules []dataType.Rule, ctx ResolveContext, d *Decision, match ruleMatcher) (dataType.Rule, bool) {
	var best dataType.Rule
	found := false
	for _, rule := range rules {
		if !firable(rule, d) {
			continue
		}
		if !match(rule, ctx, d) {
			continue
		}
		inWindow, err := check.IsInWindow(rule, ctx.Now)
		d.addIssue(err)
		if !inWindow {
			continue
		}
		if !found || rule.Priority > best.Priority {
			best = rule
			found = true
		}
	}
	return best, found
}

// firable rejects rules whose action cannot be carried out.
func firable(rule dataType.Rule, d *Decision) bool {
	switch rule.RuleType {
	case dataType.RuleBlock:
		return true
	case dataType.RuleRedirect:
		if strings.TrimSpace(rule.TargetURL) == "" {
			d.addIssue(fmt.Errorf("rule %s: redirect without target url", rule.ID))
			return false
		}
		return true
	default:
		d.addIssue(fmt.Errorf("rule %s: %w: %q", rule.ID, dataType.ErrUnknownRuleType, rule.RuleType))
		return false
	}
}

func matchIPRule(rule dataType.Rule, ctx ResolveContext, d *Decision) bool {
	set, skipped := check.CompileIPPatterns(rule.IPAddresses)
	for _, err := range skipped {
		d.addIssue(fmt.Errorf("rule %s: %w", rule.ID, err))
	}
	return set.Match(ctx.VisitorIP)
}

func matchCountryRule(rule dataType.Rule, ctx ResolveContext, _ *Decision) bool {
	return MatchCountry(ctx.CountryCode, rule.CountryCodes)
}

// MatchCountry compares ISO alpha-2 codes case-insensitively; an unknown
// country never matches.
func MatchCountry(country string, codes []string) bool {
	country = strings.TrimSpace(country)
	if country == "" {
		return false
	}
	for _, code := range codes {
		if strings.EqualFold(strings.TrimSpace(code), country) {
			return true
		}
	}
	return false
}

// IsIPExcluded reports whether the visitor is exempt from every rule.
func IsIPExcluded(ip string, settings dataType.Settings) bool {
	if len(settings.ExcludedIPs) == 0 {
		return false
	}
	return check.MatchIP(ip, settings.ExcludedIPs)
}

// ActiveRules returns the rules of one match type that are active and in
// window at now, highest priority first with stored order kept on ties.
// Rules Resolve could never pick are left out.
func ActiveRules(rules []dataType.Rule, matchType dataType.MatchType, now time.Time) []dataType.Rule {
	out := make([]dataType.Rule, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsActive || rule.MatchType != matchType || !listable(rule) {
			continue
		}
		if inWindow, _ := check.IsInWindow(rule, now); !inWindow {
			continue
		}
		out = append(out, rule)
	}
	dataType.SortRules(out)
	return out
}

// listable reports whether a rule can fire at all: its action is carried out
// and its match list has at least one usable entry.
func listable(rule dataType.Rule) bool {
	if !firable(rule, nil) {
		return false
	}
	switch rule.MatchType {
	case dataType.MatchIP:
		set, _ := check.CompileIPPatterns(rule.IPAddresses)
		return !set.Empty()
	case dataType.MatchCountry:
		for _, code := range rule.CountryCodes {
			if strings.TrimSpace(code) != "" {
				return true
			}
		}
	}
	return false
}

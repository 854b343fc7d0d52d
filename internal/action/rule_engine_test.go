package action

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"geo_gate/internal/check"
	"geo_gate/internal/dataType"
)

var wednesdayNoon = time.Date(2025, time.March, 12, 12, 0, 0, 0, time.UTC)

func baseContext() ResolveContext {
	settings := dataType.DefaultSettings("demo.myshopify.com")
	return ResolveContext{
		VisitorIP:   "203.0.113.7",
		CountryCode: "DE",
		Now:         wednesdayNoon,
		Settings:    settings,
	}
}

func countryRule(id string, priority int, ruleType dataType.RuleType, codes ...string) dataType.Rule {
	return dataType.Rule{
		ID:           id,
		Name:         "rule " + id,
		MatchType:    dataType.MatchCountry,
		CountryCodes: codes,
		TargetURL:    "https://eu.example.com",
		RuleType:     ruleType,
		IsActive:     true,
		Priority:     priority,
	}
}

func ipRule(id string, priority int, ruleType dataType.RuleType, patterns ...string) dataType.Rule {
	return dataType.Rule{
		ID:          id,
		Name:        "rule " + id,
		MatchType:   dataType.MatchIP,
		IPAddresses: patterns,
		TargetURL:   "https://office.example.com",
		RuleType:    ruleType,
		IsActive:    true,
		Priority:    priority,
	}
}

func TestResolve_IPRuleBeatsCountryRule(t *testing.T) {
	rules := []dataType.Rule{
		countryRule("c1", 100, dataType.RuleRedirect, "DE"),
		ipRule("i1", 1, dataType.RuleBlock, "203.0.113.0/24"),
	}
	d := Resolve(rules, baseContext())
	if d.Action != Block || d.RuleID != "i1" {
		t.Errorf("Expected Block from i1, got %v from %q", d.Action, d.RuleID)
	}
	if d.Reason != ReasonIPRule {
		t.Errorf("Expected reason %q, got %q", ReasonIPRule, d.Reason)
	}
}

func TestResolve_CountryPriority(t *testing.T) {
	rules := []dataType.Rule{
		countryRule("low", 5, dataType.RuleRedirect, "DE"),
		countryRule("high", 10, dataType.RuleRedirect, "de"),
	}
	d := Resolve(rules, baseContext())
	if d.RuleID != "high" {
		t.Errorf("Expected priority 10 rule, got %q", d.RuleID)
	}
	if d.Action != ShowPopup {
		t.Errorf("Expected ShowPopup in popup mode, got %v", d.Action)
	}
	if d.TargetURL != "https://eu.example.com" {
		t.Errorf("Unexpected target %q", d.TargetURL)
	}
}

func TestResolve_TieKeepsFirstSeen(t *testing.T) {
	rules := []dataType.Rule{
		countryRule("first", 7, dataType.RuleBlock, "DE"),
		countryRule("second", 7, dataType.RuleRedirect, "DE"),
	}
	d := Resolve(rules, baseContext())
	if d.RuleID != "first" || d.Action != Block {
		t.Errorf("Expected first rule to win the tie, got %q (%v)", d.RuleID, d.Action)
	}

	ips := []dataType.Rule{
		ipRule("a", 3, dataType.RuleRedirect, "203.0.113.7"),
		ipRule("b", 3, dataType.RuleBlock, "203.0.113.0/24"),
	}
	d = Resolve(ips, baseContext())
	if d.RuleID != "a" || d.Action != Redirect {
		t.Errorf("Expected IP rule a to win the tie, got %q (%v)", d.RuleID, d.Action)
	}
}

func TestResolve_AutoRedirectMode(t *testing.T) {
	ctx := baseContext()
	ctx.Settings.Mode = dataType.ModeAutoRedirect
	d := Resolve([]dataType.Rule{countryRule("c", 1, dataType.RuleRedirect, "DE")}, ctx)
	if d.Action != Redirect {
		t.Errorf("Expected Redirect in auto_redirect mode, got %v", d.Action)
	}
}

func TestResolve_IPRedirectIsNeverPopup(t *testing.T) {
	d := Resolve([]dataType.Rule{ipRule("i", 1, dataType.RuleRedirect, "203.0.113.7")}, baseContext())
	if d.Action != Redirect {
		t.Errorf("Expected Redirect for IP rule in popup mode, got %v", d.Action)
	}
}

func TestResolve_Gates(t *testing.T) {
	rules := []dataType.Rule{
		ipRule("i", 1, dataType.RuleBlock, "203.0.113.7"),
		countryRule("c", 1, dataType.RuleBlock, "DE"),
	}

	tests := []struct {
		name   string
		mutate func(*ResolveContext)
		want   Reason
	}{
		{"disabled", func(c *ResolveContext) { c.Settings.Mode = dataType.ModeDisabled }, ReasonDisabled},
		{"unknown mode", func(c *ResolveContext) { c.Settings.Mode = "sometimes" }, ReasonUnknownMode},
		{"suspended", func(c *ResolveContext) { c.Gate = check.GateResult{Suspended: true} }, ReasonSuspended},
		{"bot", func(c *ResolveContext) { c.IsBot = true }, ReasonBot},
		{"excluded ip", func(c *ResolveContext) { c.Settings.ExcludedIPs = []string{" 203.0.113.7 "} }, ReasonIPExcluded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := baseContext()
			tt.mutate(&ctx)
			d := Resolve(rules, ctx)
			if d.Action != Allow {
				t.Errorf("Expected Allow, got %v", d.Action)
			}
			if d.Reason != tt.want {
				t.Errorf("Expected reason %q, got %q", tt.want, d.Reason)
			}
		})
	}
}

func TestResolve_BotNotExcluded(t *testing.T) {
	ctx := baseContext()
	ctx.IsBot = true
	ctx.Settings.ExcludeBots = false
	d := Resolve([]dataType.Rule{countryRule("c", 1, dataType.RuleBlock, "DE")}, ctx)
	if d.Action != Block {
		t.Errorf("Expected bots to be handled like visitors, got %v", d.Action)
	}
}

func TestResolve_UnknownCountry(t *testing.T) {
	ctx := baseContext()
	ctx.CountryCode = ""
	rules := []dataType.Rule{
		countryRule("c", 1, dataType.RuleBlock, "DE"),
		ipRule("i", 1, dataType.RuleBlock, "203.0.113.7"),
	}
	d := Resolve(rules, ctx)
	if d.RuleID != "i" {
		t.Errorf("Expected IP rule to still apply without country, got %q", d.RuleID)
	}

	d = Resolve(rules[:1], ctx)
	if d.Action != Allow || d.Reason != ReasonNoMatch {
		t.Errorf("Expected Allow/no_match, got %v/%q", d.Action, d.Reason)
	}
}

func TestResolve_MalformedRulesNeverMatch(t *testing.T) {
	empty := countryRule("empty", 50, dataType.RuleBlock)
	noTarget := countryRule("notarget", 40, dataType.RuleRedirect, "DE")
	noTarget.TargetURL = ""
	badType := countryRule("badtype", 30, "teleport", "DE")
	badMatch := countryRule("badmatch", 30, dataType.RuleBlock, "DE")
	badMatch.MatchType = "asn"
	badIP := ipRule("badip", 30, dataType.RuleBlock, "not-an-ip", "300.1.1.0/24")
	inactive := countryRule("inactive", 99, dataType.RuleBlock, "DE")
	inactive.IsActive = false
	fallback := countryRule("ok", 1, dataType.RuleRedirect, "DE")

	d := Resolve([]dataType.Rule{empty, noTarget, badType, badMatch, badIP, inactive, fallback}, baseContext())
	if d.RuleID != "ok" {
		t.Errorf("Expected only the valid rule to fire, got %q", d.RuleID)
	}
	if len(d.Issues) == 0 {
		t.Errorf("Expected configuration issues to be reported")
	}
}

func TestResolve_Schedule(t *testing.T) {
	scheduled := countryRule("night", 10, dataType.RuleBlock, "DE")
	scheduled.ScheduleEnabled = true
	scheduled.StartTime = "22:00"
	scheduled.EndTime = "06:00"
	always := countryRule("always", 1, dataType.RuleRedirect, "DE")

	ctx := baseContext()
	d := Resolve([]dataType.Rule{scheduled, always}, ctx)
	if d.RuleID != "always" {
		t.Errorf("Expected out-of-window rule to be skipped at noon, got %q", d.RuleID)
	}

	ctx.Now = time.Date(2025, time.March, 12, 23, 30, 0, 0, time.UTC)
	d = Resolve([]dataType.Rule{scheduled, always}, ctx)
	if d.RuleID != "night" {
		t.Errorf("Expected night rule at 23:30, got %q", d.RuleID)
	}

	scheduled.Timezone = "Mars/Olympus_Mons"
	ctx.Now = wednesdayNoon
	d = Resolve([]dataType.Rule{scheduled, always}, ctx)
	if d.RuleID != "night" {
		t.Errorf("Expected invalid timezone to fail open, got %q", d.RuleID)
	}
	if len(d.Issues) == 0 {
		t.Errorf("Expected the timezone problem to be reported")
	}
}

func TestActiveRules(t *testing.T) {
	off := countryRule("off", 9, dataType.RuleBlock, "FR")
	off.IsActive = false
	later := countryRule("later", 8, dataType.RuleBlock, "FR")
	later.ScheduleEnabled = true
	later.StartTime = "20:00"
	later.EndTime = "21:00"
	rules := []dataType.Rule{
		countryRule("a", 1, dataType.RuleRedirect, "FR"),
		off,
		countryRule("b", 5, dataType.RuleBlock, "FR"),
		later,
		ipRule("ip", 10, dataType.RuleBlock, "1.1.1.1"),
		countryRule("c", 5, dataType.RuleRedirect, "FR"),
	}
	got := ActiveRules(rules, dataType.MatchCountry, wednesdayNoon)
	want := []string{"b", "c", "a"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d rules, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %q, got %q", i, id, got[i].ID)
		}
	}
}

func TestActiveRules_SkipsRulesThatCannotFire(t *testing.T) {
	noTarget := countryRule("no-target", 7, dataType.RuleRedirect, "DE")
	noTarget.TargetURL = "  "
	unknownType := countryRule("unknown-type", 6, dataType.RuleType("throttle"), "DE")
	rules := []dataType.Rule{
		noTarget,
		unknownType,
		countryRule("no-codes", 5, dataType.RuleBlock, "", " "),
		countryRule("de", 4, dataType.RuleRedirect, "DE"),
		countryRule("fr", 3, dataType.RuleBlock, "fr"),
		ipRule("bad-ip", 9, dataType.RuleBlock, "garbage", "10.0.0.0/40"),
		ipRule("office", 2, dataType.RuleRedirect, "bad", "198.51.100.0/24"),
		ipRule("single", 1, dataType.RuleBlock, "192.0.2.1"),
	}

	country := ActiveRules(rules, dataType.MatchCountry, wednesdayNoon)
	ip := ActiveRules(rules, dataType.MatchIP, wednesdayNoon)
	if len(country) != 2 || country[0].ID != "de" || country[1].ID != "fr" {
		t.Errorf("unexpected country rules %+v", country)
	}
	if len(ip) != 2 || ip[0].ID != "office" || ip[1].ID != "single" {
		t.Errorf("unexpected ip rules %+v", ip)
	}

	// every listed rule wins Resolve when it is the only rule and the visitor matches it
	for _, rule := range append(country, ip...) {
		ctx := baseContext()
		ctx.Settings.Mode = dataType.ModeAutoRedirect
		ctx.CountryCode = ""
		ctx.VisitorIP = "0.0.0.0"
		if rule.MatchType == dataType.MatchCountry {
			ctx.CountryCode = rule.CountryCodes[0]
		} else {
			ctx.VisitorIP = visitorIn(t, rule.IPAddresses)
		}
		d := Resolve([]dataType.Rule{rule}, ctx)
		if d.RuleID != rule.ID || d.Action == Allow {
			t.Errorf("listed rule %s does not win Resolve: %+v", rule.ID, d)
		}
	}
}

// visitorIn returns an address matched by the first usable pattern.
func visitorIn(t *testing.T, patterns []string) string {
	t.Helper()
	for _, p := range patterns {
		if prefix, err := netip.ParsePrefix(p); err == nil {
			return prefix.Addr().String()
		}
		if addr, err := netip.ParseAddr(p); err == nil {
			return addr.String()
		}
	}
	t.Fatalf("no usable pattern in %v", patterns)
	return ""
}

func TestResolve_Concurrency(t *testing.T) {
	rules := []dataType.Rule{
		ipRule("i", 1, dataType.RuleBlock, "10.0.0.0/8"),
		countryRule("c", 1, dataType.RuleRedirect, "DE"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := baseContext()
			if i%2 == 0 {
				ctx.VisitorIP = "10.1.2.3"
			}
			for j := 0; j < 100; j++ {
				d := Resolve(rules, ctx)
				if i%2 == 0 && d.Action != Block {
					t.Errorf("Expected Block, got %v", d.Action)
					return
				}
				if i%2 == 1 && d.Action != ShowPopup {
					t.Errorf("Expected ShowPopup, got %v", d.Action)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"geo_gate/internal/dataType"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoadMainConfig(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "config", "geo_gate.yml"), `
port: "8081"
web_path: /apps/geo
rule_path: /tmp/rules
log_path: /tmp/log
connecting_ip_headers: ["X-Test-IP"]
geoip_reload: 30m
plans:
  premium: 750
`)

	cfg, err := LoadMainConfig(base)
	if err != nil {
		t.Fatalf("LoadMainConfig: %v", err)
	}
	if cfg.Port != "8081" || cfg.ConnectingIPHeaders[0] != "X-Test-IP" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.GeoIPReload != 30*time.Minute {
		t.Errorf("expected 30m reload, got %v", cfg.GeoIPReload)
	}
	if p := cfg.Plan(dataType.PlanPremium); p.VisitorLimit != 750 {
		t.Errorf("expected premium limit 750, got %d", p.VisitorLimit)
	}
	// keys absent from the file keep their defaults
	if p := cfg.Plan(dataType.PlanFree); p.VisitorLimit != 100 {
		t.Errorf("expected default free limit 100, got %d", p.VisitorLimit)
	}
	if p := cfg.Plan("enterprise"); p.Kind != dataType.PlanFree {
		t.Errorf("unknown plan must fall back to free, got %v", p.Kind)
	}
}

func TestLoadMainConfig_Missing(t *testing.T) {
	cfg, err := LoadMainConfig(t.TempDir())
	if err == nil {
		t.Errorf("expected error for missing config file")
	}
	if cfg == nil || cfg.Port != DefaultMainConfig().Port {
		t.Errorf("expected defaults on missing file, got %+v", cfg)
	}
}

func TestLoadMainConfig_Invalid(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "config", "geo_gate.yml"), `
port: "http"
web_path: apps
`)
	if _, err := LoadMainConfig(base); err == nil {
		t.Errorf("expected validation error")
	}
}

func TestLoadMainConfig_Env(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "config", "geo_gate.yml"), `port: "8081"`)
	t.Setenv("GEO_GATE_REDIS_ADDR", "cache:6379")
	t.Setenv("GEO_GATE_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadMainConfig(base)
	if err != nil {
		t.Fatalf("LoadMainConfig: %v", err)
	}
	if cfg.RedisAddr != "cache:6379" {
		t.Errorf("expected env redis addr, got %q", cfg.RedisAddr)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

const shopsYAML = `
shops:
  - domain: Demo.myshopify.com
    plan: premium
    settings:
      mode: auto_redirect
      exclude_bots: false
      excluded_ips: ["10.0.0.1, 10.0.0.2"]
      popup:
        title: Hallo
    rules:
      - name: office
        match_type: ip
        ip_addresses: ["1.1.1.1,2.2.2.0/24"]
        rule_type: block
        is_active: true
        priority: 1
      - id: eu
        name: europe
        match_type: country
        country_codes: [de, fr]
        rule_type: redirect
        target_url: https://eu.example.com
        is_active: true
        priority: 10
        schedule_enabled: true
        start_time: "22:00"
        end_time: "06:00"
        days_of_week: [1, 2, 3]
        timezone: Europe/Berlin
  - domain: bare.myshopify.com
`

func TestParseShops(t *testing.T) {
	shops, err := ParseShops([]byte(shopsYAML))
	if err != nil {
		t.Fatalf("ParseShops: %v", err)
	}
	if len(shops) != 2 {
		t.Fatalf("expected 2 shops, got %d", len(shops))
	}

	demo := shops[0]
	if demo.Domain != "demo.myshopify.com" || demo.Plan != dataType.PlanPremium {
		t.Errorf("unexpected shop %q/%q", demo.Domain, demo.Plan)
	}
	if demo.Settings.Mode != dataType.ModeAutoRedirect || demo.Settings.ExcludeBots {
		t.Errorf("unexpected settings %+v", demo.Settings)
	}
	if demo.Settings.Popup.Title != "Hallo" || demo.Settings.Popup.ConfirmText == "" {
		t.Errorf("expected popup defaults merged with overrides, got %+v", demo.Settings.Popup)
	}
	if len(demo.Settings.ExcludedIPs) != 2 {
		t.Errorf("expected comma separated excluded IPs to be split, got %v", demo.Settings.ExcludedIPs)
	}

	if demo.Rules[0].ID != "eu" {
		t.Errorf("expected rules sorted by priority, got %q first", demo.Rules[0].ID)
	}
	if demo.Rules[0].CountryCodes[0] != "DE" {
		t.Errorf("expected upper-cased country codes, got %v", demo.Rules[0].CountryCodes)
	}
	office := demo.Rules[1]
	if office.ID == "" || office.Shop != "demo.myshopify.com" {
		t.Errorf("expected generated id and owner, got %+v", office)
	}
	if len(office.IPAddresses) != 2 || office.IPAddresses[0] != "1.1.1.1" || office.IPAddresses[1] != "2.2.2.0/24" {
		t.Errorf("expected both IP patterns preserved, got %v", office.IPAddresses)
	}

	bare := shops[1]
	if bare.Plan != dataType.PlanFree || bare.Settings.Mode != dataType.ModePopup || !bare.Settings.ExcludeBots {
		t.Errorf("expected defaults for bare shop, got %+v", bare)
	}
}

func TestParseShops_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad mode": `
shops:
  - domain: a.myshopify.com
    settings: {mode: sometimes}`,
		"redirect without target": `
shops:
  - domain: a.myshopify.com
    rules:
      - {match_type: country, country_codes: [DE], rule_type: redirect}`,
		"bad country": `
shops:
  - domain: a.myshopify.com
    rules:
      - {match_type: country, country_codes: [GER], rule_type: block}`,
		"bad day": `
shops:
  - domain: a.myshopify.com
    rules:
      - {match_type: ip, ip_addresses: [1.1.1.1], rule_type: block, days_of_week: [7]}`,
		"duplicate": `
shops:
  - domain: a.myshopify.com
  - domain: A.myshopify.com`,
	}
	for name, doc := range tests {
		if _, err := ParseShops([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseShops_UnknownEnums(t *testing.T) {
	_, err := ParseShops([]byte("shops:\n  - domain: a.myshopify.com\n    settings: {mode: sometimes}\n"))
	if !errors.Is(err, dataType.ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}
	_, err = ParseShops([]byte("shops:\n  - domain: a.myshopify.com\n    plan: gold\n"))
	if !errors.Is(err, dataType.ErrUnknownPlanKind) {
		t.Errorf("expected ErrUnknownPlanKind, got %v", err)
	}
}

func TestLoadShops_Missing(t *testing.T) {
	if _, err := LoadShops(t.TempDir()); err == nil {
		t.Errorf("expected error for missing shops file")
	}
}

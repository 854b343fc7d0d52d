package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"geo_gate/internal/dataType"
)

// shopsWrapper is the layout of shops.yml
type shopsWrapper struct {
	Shops []shopWrapper `yaml:"shops"`
}

type shopWrapper struct {
	Domain   string           `yaml:"domain"`
	Plan     string           `yaml:"plan"`
	Settings *settingsWrapper `yaml:"settings"`
	Rules    []dataType.Rule  `yaml:"rules"`
}

// settingsWrapper keeps pointers so omitted keys fall back to the defaults
type settingsWrapper struct {
	Mode           string                 `yaml:"mode"`
	ExcludedIPs    []string               `yaml:"excluded_ips"`
	ExcludeBots    *bool                  `yaml:"exclude_bots"`
	CookieDuration *int                   `yaml:"cookie_duration"`
	Popup          dataType.PopupTemplate `yaml:"popup"`
	Blocked        dataType.BlockedPage   `yaml:"blocked"`
}

// LoadShops Load every shop, its settings and rules from rulePath/shops.yml
func LoadShops(rulePath string) ([]dataType.Shop, error) {
	YAMLFile := filepath.Join(rulePath, "shops.yml")
	yamlData, err := os.ReadFile(YAMLFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("[ERROR] shops file %s does not exist: %w", YAMLFile, err)
		}
		return nil, fmt.Errorf("[ERROR] failed to read shops file %s: %w", YAMLFile, err)
	}
	return ParseShops(yamlData)
}

// ParseShops decodes and validates a shops document.
func ParseShops(yamlData []byte) ([]dataType.Shop, error) {
	var wrapper shopsWrapper
	if err := yaml.Unmarshal(yamlData, &wrapper); err != nil {
		return nil, fmt.Errorf("[ERROR] failed to parse shops: %w", err)
	}

	shops := make([]dataType.Shop, 0, len(wrapper.Shops))
	seen := make(map[string]bool, len(wrapper.Shops))
	now := time.Now()
	for i, sw := range wrapper.Shops {
		domain := strings.ToLower(strings.TrimSpace(sw.Domain))
		if seen[domain] {
			return nil, fmt.Errorf("[ERROR] shop #%d: duplicate domain %q", i, domain)
		}
		seen[domain] = true

		plan := dataType.PlanFree
		if strings.TrimSpace(sw.Plan) != "" {
			kind, err := dataType.ParsePlanKind(sw.Plan)
			if err != nil {
				return nil, fmt.Errorf("[ERROR] shop %q: %w", domain, err)
			}
			plan = kind
		}
		settings, err := buildSettings(domain, sw.Settings)
		if err != nil {
			return nil, fmt.Errorf("[ERROR] shop %q: %w", domain, err)
		}

		shop := dataType.Shop{
			Domain:   domain,
			Plan:     plan,
			Settings: settings,
			Rules:    make([]dataType.Rule, 0, len(sw.Rules)),
		}
		for _, rule := range sw.Rules {
			shop.Rules = append(shop.Rules, NormalizeRule(domain, rule, now))
		}
		dataType.SortRules(shop.Rules)

		if err := validate.Struct(shop); err != nil {
			return nil, fmt.Errorf("[ERROR] shop %q: %w", domain, err)
		}
		shops = append(shops, shop)
	}
	return shops, nil
}

// buildSettings overlays the keys present in the file on the defaults.
func buildSettings(domain string, sw *settingsWrapper) (dataType.Settings, error) {
	s := dataType.DefaultSettings(domain)
	if sw == nil {
		return s, nil
	}
	if strings.TrimSpace(sw.Mode) != "" {
		mode, err := dataType.ParseMode(sw.Mode)
		if err != nil {
			return s, err
		}
		s.Mode = mode
	}
	s.ExcludedIPs = flatten(sw.ExcludedIPs)
	if sw.ExcludeBots != nil {
		s.ExcludeBots = *sw.ExcludeBots
	}
	if sw.CookieDuration != nil {
		s.CookieDuration = *sw.CookieDuration
	}
	mergeString(&s.Popup.Title, sw.Popup.Title)
	mergeString(&s.Popup.Message, sw.Popup.Message)
	mergeString(&s.Popup.ConfirmText, sw.Popup.ConfirmText)
	mergeString(&s.Popup.CancelText, sw.Popup.CancelText)
	mergeString(&s.Popup.BgColor, sw.Popup.BgColor)
	mergeString(&s.Popup.TextColor, sw.Popup.TextColor)
	mergeString(&s.Popup.ButtonColor, sw.Popup.ButtonColor)
	mergeString(&s.Popup.ButtonTextColor, sw.Popup.ButtonTextColor)
	mergeString(&s.Blocked.Title, sw.Blocked.Title)
	mergeString(&s.Blocked.Message, sw.Blocked.Message)
	mergeString(&s.Blocked.BgColor, sw.Blocked.BgColor)
	mergeString(&s.Blocked.TextColor, sw.Blocked.TextColor)
	return s, nil
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// NormalizeRule fills the id, owner and creation time and flattens list
// entries that were written as comma separated strings.
func NormalizeRule(shop string, rule dataType.Rule, now time.Time) dataType.Rule {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.Shop = shop
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.CountryCodes = flatten(rule.CountryCodes)
	for i, code := range rule.CountryCodes {
		rule.CountryCodes[i] = strings.ToUpper(code)
	}
	rule.IPAddresses = flatten(rule.IPAddresses)
	return rule
}

func flatten(items []string) []string {
	return dataType.ParseList(dataType.JoinList(items))
}

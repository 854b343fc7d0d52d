package dataType

import (
	"errors"
	"testing"
)

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		ok   bool
	}{
		{"country redirect", Rule{ID: "a", MatchType: MatchCountry, CountryCodes: []string{"DE"}, RuleType: RuleRedirect, TargetURL: "https://de.example.com"}, true},
		{"ip block without target", Rule{ID: "b", MatchType: MatchIP, IPAddresses: []string{"1.1.1.1"}, RuleType: RuleBlock}, true},
		{"redirect without target", Rule{ID: "c", MatchType: MatchCountry, CountryCodes: []string{"DE"}, RuleType: RuleRedirect}, false},
		{"unknown match type", Rule{ID: "d", MatchType: "asn", RuleType: RuleBlock}, false},
		{"three letter code", Rule{ID: "e", MatchType: MatchCountry, CountryCodes: []string{"GER"}, RuleType: RuleBlock}, false},
		{"day out of range", Rule{ID: "f", MatchType: MatchIP, RuleType: RuleBlock, DaysOfWeek: []int{7}}, false},
	}
	for _, tt := range tests {
		err := ValidateRule(tt.rule)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidRule) {
			t.Errorf("%s: expected ErrInvalidRule, got %v", tt.name, err)
		}
	}
}

func TestValidateSettings(t *testing.T) {
	s := DefaultSettings("a.myshopify.com")
	if err := ValidateSettings(s); err != nil {
		t.Errorf("defaults must be valid: %v", err)
	}
	s.CookieDuration = 400
	if err := ValidateSettings(s); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("expected ErrInvalidSettings, got %v", err)
	}
}

package dataType

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const GeoGateVersion = "1.3.0"

var (
	ErrUnknownMode      = errors.New("unknown mode")
	ErrUnknownRuleType  = errors.New("unknown rule type")
	ErrUnknownMatchType = errors.New("unknown match type")
	ErrUnknownPlanKind  = errors.New("unknown plan kind")
)

// Mode is the shop-wide switch for how matched redirect rules are presented.
type Mode string

const (
	ModePopup        Mode = "popup"
	ModeAutoRedirect Mode = "auto_redirect"
	ModeDisabled     Mode = "disabled"
)

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.TrimSpace(s))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

func (m Mode) Valid() bool {
	switch m {
	case ModePopup, ModeAutoRedirect, ModeDisabled:
		return true
	}
	return false
}

// RuleType is what happens to a visitor matched by a rule.
type RuleType string

const (
	RuleRedirect RuleType = "redirect"
	RuleBlock    RuleType = "block"
)

func ParseRuleType(s string) (RuleType, error) {
	t := RuleType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRuleType, s)
	}
	return t, nil
}

func (t RuleType) Valid() bool {
	return t == RuleRedirect || t == RuleBlock
}

// MatchType selects the matcher a rule is evaluated with.
type MatchType string

const (
	MatchCountry MatchType = "country"
	MatchIP      MatchType = "ip"
)

func ParseMatchType(s string) (MatchType, error) {
	t := MatchType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMatchType, s)
	}
	return t, nil
}

func (t MatchType) Valid() bool {
	return t == MatchCountry || t == MatchIP
}

type PlanKind string

const (
	PlanFree    PlanKind = "free"
	PlanPremium PlanKind = "premium"
	PlanPlus    PlanKind = "plus"
)

func ParsePlanKind(s string) (PlanKind, error) {
	k := PlanKind(strings.TrimSpace(s))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlanKind, s)
	}
	return k, nil
}

func (k PlanKind) Valid() bool {
	switch k {
	case PlanFree, PlanPremium, PlanPlus:
		return true
	}
	return false
}

// Paid reports whether overage is billed instead of suspending features.
func (k PlanKind) Paid() bool {
	return k == PlanPremium || k == PlanPlus
}

// Rule is one targeting rule owned by a shop.
type Rule struct {
	ID              string    `yaml:"id" json:"id"`
	Shop            string    `yaml:"-" json:"-"`
	Name            string    `yaml:"name" json:"name"`
	MatchType       MatchType `yaml:"match_type" json:"matchType" validate:"required,oneof=country ip"`
	CountryCodes    []string  `yaml:"country_codes" json:"countryCodes,omitempty" validate:"dive,len=2,alpha"`
	IPAddresses     []string  `yaml:"ip_addresses" json:"ipAddresses,omitempty"`
	TargetURL       string    `yaml:"target_url" json:"targetUrl,omitempty" validate:"required_if=RuleType redirect"`
	RuleType        RuleType  `yaml:"rule_type" json:"ruleType" validate:"required,oneof=redirect block"`
	IsActive        bool      `yaml:"is_active" json:"isActive"`
	Priority        int       `yaml:"priority" json:"priority"`
	ScheduleEnabled bool      `yaml:"schedule_enabled" json:"scheduleEnabled"`
	StartTime       string    `yaml:"start_time" json:"startTime,omitempty"`
	EndTime         string    `yaml:"end_time" json:"endTime,omitempty"`
	DaysOfWeek      []int     `yaml:"days_of_week" json:"daysOfWeek,omitempty" validate:"dive,min=0,max=6"`
	Timezone        string    `yaml:"timezone" json:"timezone,omitempty"`
	CreatedAt       time.Time `yaml:"-" json:"-"`
}

// PopupTemplate holds the display fields of the storefront popup.
type PopupTemplate struct {
	Title           string `yaml:"title" json:"title"`
	Message         string `yaml:"message" json:"message"`
	ConfirmText     string `yaml:"confirm_text" json:"confirmText"`
	CancelText      string `yaml:"cancel_text" json:"cancelText"`
	BgColor         string `yaml:"bg_color" json:"bgColor"`
	TextColor       string `yaml:"text_color" json:"textColor"`
	ButtonColor     string `yaml:"button_color" json:"buttonColor"`
	ButtonTextColor string `yaml:"button_text_color" json:"buttonTextColor"`
}

// BlockedPage holds the display fields of the page shown to blocked visitors.
type BlockedPage struct {
	Title     string `yaml:"title" json:"title"`
	Message   string `yaml:"message" json:"message"`
	BgColor   string `yaml:"bg_color" json:"bgColor"`
	TextColor string `yaml:"text_color" json:"textColor"`
}

type Settings struct {
	Shop           string        `yaml:"-" json:"-"`
	Mode           Mode          `yaml:"mode" json:"mode" validate:"required,oneof=popup auto_redirect disabled"`
	ExcludedIPs    []string      `yaml:"excluded_ips" json:"excludedIPs,omitempty"`
	ExcludeBots    bool          `yaml:"exclude_bots" json:"excludeBots"`
	CookieDuration int           `yaml:"cookie_duration" json:"cookieDuration" validate:"min=0,max=365"`
	Popup          PopupTemplate `yaml:"popup" json:"popup"`
	Blocked        BlockedPage   `yaml:"blocked" json:"blocked"`
}

// DefaultSettings is what a shop gets the first time its settings are read.
func DefaultSettings(shop string) Settings {
	return Settings{
		Shop:           shop,
		Mode:           ModePopup,
		ExcludeBots:    true,
		CookieDuration: 7,
		Popup: PopupTemplate{
			Title:           "Looks like you're in {country}",
			Message:         "We have a store for your region. Would you like to visit it?",
			ConfirmText:     "Take me there",
			CancelText:      "No, stay here",
			BgColor:         "#ffffff",
			TextColor:       "#222222",
			ButtonColor:     "#008060",
			ButtonTextColor: "#ffffff",
		},
		Blocked: BlockedPage{
			Title:     "Access denied",
			Message:   "Sorry, this store is not available in your region.",
			BgColor:   "#ffffff",
			TextColor: "#222222",
		},
	}
}

// Plan is the subscription fact reported by the billing side.
type Plan struct {
	Kind         PlanKind `yaml:"kind" json:"kind"`
	VisitorLimit int64    `yaml:"visitor_limit" json:"visitorLimit"`
}

// Shop bundles everything loaded for one storefront.
type Shop struct {
	Domain   string   `yaml:"domain" validate:"required,hostname_rfc1123"`
	Plan     PlanKind `yaml:"plan" validate:"required,oneof=free premium plus"`
	Settings Settings `yaml:"settings"`
	Rules    []Rule   `yaml:"rules" validate:"dive"`
}

type UsageCounter struct {
	Shop            string `json:"shop"`
	Month           string `json:"month"`
	TotalVisitors   int64  `json:"totalVisitors"`
	Redirected      int64  `json:"redirected"`
	Blocked         int64  `json:"blocked"`
	ChargedVisitors int64  `json:"chargedVisitors"`
}

// UsageField names a running count of a UsageCounter.
type UsageField string

const (
	FieldTotalVisitors UsageField = "total_visitors"
	FieldRedirected    UsageField = "redirected"
	FieldBlocked       UsageField = "blocked"
)

// MonthKey formats the usage partition of t, always in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// VisitorRequest is the per-request data extracted from a storefront call.
type VisitorRequest struct {
	Shop      string
	RemoteIP  string
	Country   string
	UserAgent string
	Uri       string
}

// EventType is one of the fixed analytics event kinds.
type EventType string

const (
	EventVisit          EventType = "visit"
	EventPopupShown     EventType = "popup_shown"
	EventRedirected     EventType = "redirected"
	EventAutoRedirected EventType = "auto_redirected"
	EventBlocked        EventType = "blocked"
	EventIPRedirected   EventType = "ip_redirected"
	EventIPBlocked      EventType = "ip_blocked"
	EventClickedNo      EventType = "clicked_no"
	EventDismissed      EventType = "dismissed"
)

func (e EventType) Valid() bool {
	switch e {
	case EventVisit, EventPopupShown, EventRedirected, EventAutoRedirected, EventBlocked,
		EventIPRedirected, EventIPBlocked, EventClickedNo, EventDismissed:
		return true
	}
	return false
}

// UsageField returns the counter the event increments, if any.
func (e EventType) UsageField() (UsageField, bool) {
	switch e {
	case EventVisit:
		return FieldTotalVisitors, true
	case EventRedirected, EventAutoRedirected, EventIPRedirected:
		return FieldRedirected, true
	case EventBlocked, EventIPBlocked:
		return FieldBlocked, true
	}
	return "", false
}

type AnalyticsEvent struct {
	ID          string    `json:"id"`
	Shop        string    `json:"shop"`
	Type        EventType `json:"type"`
	CountryCode string    `json:"countryCode,omitempty"`
	RuleID      string    `json:"ruleId,omitempty"`
	RuleName    string    `json:"ruleName,omitempty"`
	VisitorIP   string    `json:"visitorIP,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

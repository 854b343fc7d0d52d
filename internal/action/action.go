package action

import "encoding/json"

type Action int

const (
	Allow     Action = iota // 0：no geolocation action
	Block                   // 1：deny the storefront
	Redirect                // 2：send the visitor to the rule target
	ShowPopup               // 3：offer the rule target in a popup
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Block:
		return "block"
	case Redirect:
		return "redirect"
	case ShowPopup:
		return "popup"
	}
	return "unknown"
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// Reason explains which step of resolution produced the decision.
type Reason string

const (
	ReasonNoMatch     Reason = "no_match"
	ReasonDisabled    Reason = "disabled"
	ReasonSuspended   Reason = "usage_suspended"
	ReasonBot         Reason = "bot_excluded"
	ReasonIPExcluded  Reason = "ip_excluded"
	ReasonUnknownMode Reason = "unknown_mode"
	ReasonIPRule      Reason = "ip_rule"
	ReasonCountryRule Reason = "country_rule"
)

// Decision saves the result of the decision
type Decision struct {
	Action    Action   `json:"action"`
	Reason    Reason   `json:"reason"`
	RuleID    string   `json:"ruleId,omitempty"`
	RuleName  string   `json:"ruleName,omitempty"`
	TargetURL string   `json:"targetUrl,omitempty"`
	Issues    []string `json:"-"`
}

func NewDecision() *Decision {
	return &Decision{Action: Allow, Reason: ReasonNoMatch}
}

func (d *Decision) Set(new Action, reason Reason) {
	d.Action = new
	d.Reason = reason
}

// addIssue is a no-op on a nil decision.
func (d *Decision) addIssue(err error) {
	if d != nil && err != nil {
		d.Issues = append(d.Issues, err.Error())
	}
}

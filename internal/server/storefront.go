package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"geo_gate/internal/action"
	"geo_gate/internal/check"
	"geo_gate/internal/dataType"
	"geo_gate/internal/store"
)

// configResponse is the document the storefront script renders from.
type configResponse struct {
	Enabled         bool                    `json:"enabled"`
	Mode            dataType.Mode           `json:"mode,omitempty"`
	VisitorIP       string                  `json:"visitorIP"`
	DetectedCountry string                  `json:"detectedCountry"`
	IsIPExcluded    bool                    `json:"isIPExcluded"`
	CookieDuration  int                     `json:"cookieDuration"`
	Popup           *dataType.PopupTemplate `json:"popup,omitempty"`
	Blocked         *dataType.BlockedPage   `json:"blocked,omitempty"`
	Rules           []dataType.Rule         `json:"rules"`
	IPRules         []dataType.Rule         `json:"ipRules"`
	Decision        *action.Decision        `json:"decision,omitempty"`
}

// shopState is everything loaded from the stores for one storefront request.
type shopState struct {
	settings dataType.Settings
	plan     dataType.Plan
	rules    []dataType.Rule
	usage    dataType.UsageCounter
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	start := s.Now()
	shop := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("shop")))
	if shop == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing shop"})
		return
	}

	reqData := dataType.VisitorRequest{
		Shop:      shop,
		RemoteIP:  ClientIP(r, s.cfg.ConnectingIPHeaders),
		UserAgent: r.UserAgent(),
		Uri:       r.URL.Path,
	}
	resp := configResponse{
		VisitorIP: reqData.RemoteIP,
		Rules:     []dataType.Rule{},
		IPRules:   []dataType.Rule{},
	}

	state, err := s.loadShop(r.Context(), shop, start)
	if err != nil {
		// the storefront keeps working without geolocation
		if !errors.Is(err, store.ErrShopNotFound) {
			s.Logger.Error("failed to load shop", zap.String("shop", shop), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	country, err := s.Geo.Country(r.Context(), reqData.RemoteIP)
	if err != nil {
		s.Metrics.RecordGeoFailure()
		s.logError(reqData, "geo lookup failed", err.Error())
		country = ""
	}
	reqData.Country = country

	gate := check.CheckUsage(check.SnapshotOf(state.usage), state.plan)
	decision := action.Resolve(state.rules, action.ResolveContext{
		VisitorIP:   reqData.RemoteIP,
		CountryCode: country,
		IsBot:       s.Bots.IsBot(reqData.UserAgent),
		Now:         start,
		Settings:    state.settings,
		Gate:        gate,
	})
	for _, issue := range decision.Issues {
		s.logError(reqData, "rule configuration", issue)
	}

	resp.Enabled = state.settings.Mode != dataType.ModeDisabled && !gate.Suspended
	resp.Mode = state.settings.Mode
	resp.DetectedCountry = country
	resp.IsIPExcluded = action.IsIPExcluded(reqData.RemoteIP, state.settings)
	resp.CookieDuration = state.settings.CookieDuration
	resp.Popup = &state.settings.Popup
	resp.Blocked = &state.settings.Blocked
	if resp.Enabled {
		resp.Rules = append(resp.Rules, action.ActiveRules(state.rules, dataType.MatchCountry, start)...)
		resp.IPRules = append(resp.IPRules, action.ActiveRules(state.rules, dataType.MatchIP, start)...)
	}
	resp.Decision = &decision

	s.Metrics.RecordDecision(decision.Action.String(), string(decision.Reason), s.Now().Sub(start).Seconds())
	if decision.Action != action.Allow {
		s.logInfo(reqData, decision.Action.String(), string(decision.Reason)+" "+decision.RuleID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// loadShop reads settings, plan, rules and the current month's usage. A
// failed usage read counts as no usage so the shop is not suspended.
func (s *Server) loadShop(ctx context.Context, shop string, now time.Time) (shopState, error) {
	var state shopState
	settings, err := s.Rules.GetSettings(ctx, shop)
	if err != nil {
		s.recordStoreError(err, "get_settings")
		return state, err
	}
	kind, err := s.Rules.GetPlan(ctx, shop)
	if err != nil {
		s.recordStoreError(err, "get_plan")
		return state, err
	}
	rules, err := s.Rules.GetRules(ctx, shop)
	if err != nil {
		s.recordStoreError(err, "get_rules")
		return state, err
	}
	usage, err := s.Usage.Snapshot(ctx, shop, dataType.MonthKey(now))
	if err != nil {
		s.recordStoreError(err, "usage_snapshot")
		s.Logger.Error("failed to read usage", zap.String("shop", shop), zap.Error(err))
		usage = dataType.UsageCounter{Shop: shop, Month: dataType.MonthKey(now)}
	}

	state.settings = settings
	state.plan = s.cfg.Plan(kind)
	state.rules = rules
	state.usage = usage
	return state, nil
}

func (s *Server) recordStoreError(err error, op string) {
	if errors.Is(err, store.ErrShopNotFound) {
		return
	}
	s.Metrics.RecordStoreError(op)
}

func (s *Server) logInfo(reqData dataType.VisitorRequest, msg, msg2 string) {
	if s.Logx != nil {
		s.Logx.LogInfo(reqData, msg, msg2)
	}
}

func (s *Server) logError(reqData dataType.VisitorRequest, msg, msg2 string) {
	if s.Logx != nil {
		s.Logx.LogError(reqData, msg, msg2)
		return
	}
	s.Logger.Warn(msg, zap.String("shop", reqData.Shop), zap.String("detail", msg2))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

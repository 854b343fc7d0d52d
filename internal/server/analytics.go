package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"geo_gate/internal/dataType"
	"geo_gate/internal/store"
)

const maxAnalyticsBody = 16 << 10

type analyticsRequest struct {
	Shop        string `json:"shop"`
	Type        string `json:"type"`
	CountryCode string `json:"countryCode"`
	RuleID      string `json:"ruleId"`
	RuleName    string `json:"ruleName"`
	VisitorIP   string `json:"visitorIP"`
}

// handleAnalytics ingests one storefront event: it bumps the usage counter
// the event maps to, bills overage on visits and queues the event.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	var body analyticsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalyticsBody))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	eventType := dataType.EventType(strings.TrimSpace(body.Type))
	if !eventType.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event type"})
		return
	}

	shop := strings.ToLower(strings.TrimSpace(body.Shop))
	ctx := r.Context()
	kind, err := s.Rules.GetPlan(ctx, shop)
	if errors.Is(err, store.ErrShopNotFound) || shop == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown shop"})
		return
	}
	if err != nil {
		s.Metrics.RecordStoreError("get_plan")
		s.Logger.Error("failed to read plan", zap.String("shop", shop), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}

	now := s.Now()
	month := dataType.MonthKey(now)
	visitorIP := strings.TrimSpace(body.VisitorIP)
	if visitorIP == "" {
		visitorIP = ClientIP(r, s.cfg.ConnectingIPHeaders)
	}

	if field, ok := eventType.UsageField(); ok {
		if _, err := s.Usage.Increment(ctx, shop, month, field); err != nil {
			s.Metrics.RecordStoreError("usage_increment")
			s.Logger.Error("failed to count event", zap.String("shop", shop), zap.String("type", string(eventType)), zap.Error(err))
		}
	}

	if eventType == dataType.EventVisit && s.Charger != nil {
		plan := s.cfg.Plan(kind)
		units, err := s.Charger.ChargeOverage(ctx, shop, month, plan)
		if err != nil {
			s.Metrics.RecordBillingError()
			s.Logger.Error("overage charge failed", zap.String("shop", shop), zap.Error(err))
		} else if units > 0 {
			s.Metrics.RecordOverage(string(plan.Kind), units)
		}
	}

	event := dataType.AnalyticsEvent{
		ID:          uuid.NewString(),
		Shop:        shop,
		Type:        eventType,
		CountryCode: strings.ToUpper(strings.TrimSpace(body.CountryCode)),
		RuleID:      body.RuleID,
		RuleName:    body.RuleName,
		VisitorIP:   visitorIP,
		Timestamp:   now.UnixMilli(),
	}
	if s.Events != nil && !s.Events.Add(event) {
		s.Logger.Debug("analytics event dropped", zap.String("shop", shop))
	}
	s.Metrics.RecordEvent(string(eventType))

	w.WriteHeader(http.StatusNoContent)
}

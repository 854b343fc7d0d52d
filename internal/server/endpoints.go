package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"geo_gate/internal/dataType"
)

const maxWebhookBody = 1 << 20

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	now := s.Now()

	var builder strings.Builder
	builder.WriteString("ok\n")
	builder.WriteString("version=")
	builder.WriteString(dataType.GeoGateVersion)
	builder.WriteString("\n")
	builder.WriteString("time=")
	builder.WriteString(now.Format(time.RFC3339))
	builder.WriteString("\n")
	builder.WriteString("ts=")
	builder.WriteString(strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', 3, 64))
	builder.WriteString("\n")
	if s.LastCleanup != nil {
		if last := s.LastCleanup(); !last.IsZero() {
			builder.WriteString("last_cleanup=")
			builder.WriteString(last.UTC().Format(time.RFC3339))
			builder.WriteString("\n")
		}
	}
	builder.WriteString("sliver=")
	builder.WriteString(s.cfg.NodeName)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(builder.String())); err != nil {
		s.Logger.Error("Error writing response", zap.String("handler", "handleHealthCheck"), zap.Error(err))
	}
}

// handleAppUninstalled drops every rule, setting and usage counter of the
// shop named by a signed app/uninstalled webhook.
func (s *Server) handleAppUninstalled(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !VerifyWebhook(body, r.Header.Get("X-Shopify-Hmac-Sha256"), s.cfg.WebhookSecret) {
		s.Logger.Info("HMAC verification failed for webhook", zap.String("shop", r.Header.Get("X-Shopify-Shop-Domain")))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	shop := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Shopify-Shop-Domain")))
	if shop == "" {
		http.Error(w, "missing shop", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := s.Rules.DeleteShop(ctx, shop); err != nil {
		s.Metrics.RecordStoreError("delete_shop")
		s.Logger.Error("failed to delete shop rules", zap.String("shop", shop), zap.Error(err))
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.Usage.DeleteShop(ctx, shop); err != nil {
		s.Metrics.RecordStoreError("usage_delete_shop")
		s.Logger.Error("failed to delete shop usage", zap.String("shop", shop), zap.Error(err))
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	s.Logger.Info("shop uninstalled", zap.String("shop", shop))
	w.WriteHeader(http.StatusOK)
}

// VerifyWebhook checks the base64 HMAC-SHA256 of body against signature.
// An empty secret rejects everything.
func VerifyWebhook(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

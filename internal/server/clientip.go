package server

import (
	"net/http"
	"net/netip"
	"strings"
)

const fallbackIP = "0.0.0.0"

// ClientIP picks the visitor address from the trusted headers in order, then
// the first X-Forwarded-For entry, then 0.0.0.0. Header values that are not
// IP addresses are skipped.
func ClientIP(r *http.Request, headers []string) string {
	for _, headerName := range headers {
		if ip, ok := firstIP(r.Header.Get(headerName)); ok {
			return ip
		}
	}
	if ip, ok := firstIP(r.Header.Get("X-Forwarded-For")); ok {
		return ip
	}
	return fallbackIP
}

func firstIP(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[:idx]
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}

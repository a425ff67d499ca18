// Package http holds request middleware shared by the HTTP and stream edges.
package http

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

type contextKey string

const clientIPContextKey contextKey = "client_ip"

// ExtractClientIP returns the normalised address of the caller, or "" when
// none can be parsed. Results feed the login rate limiter and the INET column
// of sessions, so anything that is not an IP address is discarded.
//
// X-Forwarded-For (first hop) and X-Real-IP are only consulted when
// trustForwarded is set, that is when a proxy that overwrites them sits in
// front of the server. Otherwise a client could pick its own rate limit key.
func ExtractClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := parseIP(first); ok {
				return ip
			}
		}

		if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}

	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return normalise(ap.Addr())
	}
	if ip, ok := parseIP(r.RemoteAddr); ok {
		return ip
	}
	return ""
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return normalise(addr), true
}

// normalise drops IPv6 zones and unmaps IPv4-mapped addresses so one client
// has one key.
func normalise(addr netip.Addr) string {
	return addr.WithZone("").Unmap().String()
}

// ClientIPFromContext returns the address stored by ClientIPMiddleware.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// ClientIPMiddleware resolves the caller address once per request and stores
// it in the context for login sessions and audit logging.
func ClientIPMiddleware(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ExtractClientIP(r, trustForwarded)
			ctx := context.WithValue(r.Context(), clientIPContextKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Package security holds the request-level protections shared by every
// route: client IP resolution behind proxies, per-IP rate limiting, and
// response security headers.
package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the real client IP address from the request.
// Supports X-Forwarded-For and X-Real-IP headers when behind a proxy.
//
// Only enable trustProxy when behind a trusted reverse proxy;
// trustedProxyCount specifies how many proxies to trust from the right of
// X-Forwarded-For, which prevents spoofing in multi-proxy setups.
func ClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := ipFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := validIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return ipFromRemoteAddr(r.RemoteAddr)
}

// ipFromForwardedFor picks the client IP out of the X-Forwarded-For list.
// Format is "client, proxy1, proxy2, ..."; the rightmost entries are the
// proxies we control, so the client sits trustedProxyCount+1 from the end.
func ipFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}
	idx := len(ips) - proxyCount - 1
	if idx < 0 {
		idx = 0
	}
	return validIP(strings.TrimSpace(ips[idx]))
}

func validIP(s string) string {
	if s != "" && net.ParseIP(s) != nil {
		return s
	}
	return ""
}

// ipFromRemoteAddr handles direct connections, where RemoteAddr is the
// peer address (possibly an untrusted proxy).
func ipFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPExtractor returns the client IP of a request.
type IPExtractor interface {
	ExtractIP(r *http.Request) (string, error)
}

// RemoteAddrExtractor uses the TCP peer address. It cannot be spoofed by
// the client and is the default.
type RemoteAddrExtractor struct{}

// ExtractIP strips the port from r.RemoteAddr.
func (RemoteAddrExtractor) ExtractIP(r *http.Request) (string, error) {
	return extractIPFromAddr(r.RemoteAddr)
}

// TrustedProxyExtractor reads X-Forwarded-For, then X-Real-IP, but only
// when the peer is one of the trusted proxies. Other peers are identified
// by RemoteAddr so clients cannot rotate their apparent address.
type TrustedProxyExtractor struct {
	proxies []netip.Prefix
}

// NewTrustedProxyExtractor parses proxies as IPs or CIDR ranges.
func NewTrustedProxyExtractor(proxies []string) (*TrustedProxyExtractor, error) {
	e := &TrustedProxyExtractor{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			addr, ipErr := netip.ParseAddr(p)
			if ipErr != nil {
				return nil, fmt.Errorf("invalid IP or CIDR %q", p)
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		e.proxies = append(e.proxies, prefix)
	}
	if len(e.proxies) == 0 {
		return nil, fmt.Errorf("at least one trusted proxy is required")
	}
	return e, nil
}

// ExtractIP implements IPExtractor.
func (e *TrustedProxyExtractor) ExtractIP(r *http.Request) (string, error) {
	if !e.trusted(r.RemoteAddr) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			slog.Warn("untrusted peer sent X-Forwarded-For",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("x_forwarded_for", xff))
		}
		return extractIPFromAddr(r.RemoteAddr)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String(), nil
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String(), nil
	}
	return extractIPFromAddr(r.RemoteAddr)
}

func (e *TrustedProxyExtractor) trusted(remoteAddr string) bool {
	ip, err := extractIPFromAddr(remoteAddr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range e.proxies {
		if prefix.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// extractIPFromAddr accepts "host:port", "[v6]:port" or a bare IP.
func extractIPFromAddr(addr string) (string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		if ip := net.ParseIP(strings.Trim(addr, "[]")); ip != nil {
			return ip.String(), nil
		}
		return "", fmt.Errorf("invalid address format: %s", addr)
	}
	return host, nil
}

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/phrazzld/goalq/internal/api/shared"
)

// IPAllowList admits only clients whose address falls in one of its prefixes.
type IPAllowList struct {
	prefixes []netip.Prefix
}

// NewIPAllowList parses addresses and CIDR ranges. An empty list allows everyone.
func NewIPAllowList(entries []string) (*IPAllowList, error) {
	l := &IPAllowList{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allowed ip range %q: %w", entry, err)
			}
			l.prefixes = append(l.prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed ip %q: %w", entry, err)
		}
		addr = addr.Unmap()
		l.prefixes = append(l.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return l, nil
}

// Allows reports whether remoteAddr ("host:port" or a bare host) is admitted.
func (l *IPAllowList) Allows(remoteAddr string) bool {
	if len(l.prefixes) == 0 {
		return true
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware responds 403 to clients outside the allow-list.
func (l *IPAllowList) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allows(r.RemoteAddr) {
			shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Client address not allowed",
				fmt.Errorf("client %s not in allow-list", r.RemoteAddr), shared.WithElevatedLogLevel())
			return
		}
		next.ServeHTTP(w, r)
	})
}

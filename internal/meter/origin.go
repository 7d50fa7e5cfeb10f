package meter

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// originChecker admits same-origin, loopback and private-network pages plus
// any origin listed in allowed.
type originChecker struct {
	allowed map[string]struct{}
	logger  *slog.Logger
}

func newOriginChecker(allowed []string, logger *slog.Logger) originChecker {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
		if origin != "" {
			set[origin] = struct{}{}
		}
	}
	return originChecker{allowed: set, logger: logger}
}

func (c originChecker) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	if _, ok := c.allowed[strings.TrimRight(strings.ToLower(origin), "/")]; ok {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		c.logger.Warn("rejected level stream: invalid origin URL", "origin", origin)
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	c.logger.Warn("rejected level stream", "origin", origin, "host", host)
	return false
}

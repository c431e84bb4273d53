package valclient

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// proxySchemes maps the accepted proxy URL schemes to the one tls-client dials.
var proxySchemes = map[string]string{
	"http":   "http",
	"https":  "http",
	"socks5": "socks5",
}

// parseProxy normalizes ip:port, ip:port:user:pass or a proxy URL into the
// URL the transports are configured with.
func parseProxy(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)

	if !strings.Contains(raw, "://") {
		fields := strings.Split(raw, ":")
		if len(fields) != 2 && len(fields) != 4 {
			return nil, fmt.Errorf("want ip:port or ip:port:user:pass")
		}
		if fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("missing host or port")
		}
		u := &url.URL{Scheme: "http", Host: net.JoinHostPort(fields[0], fields[1])}
		if len(fields) == 4 {
			u.User = url.UserPassword(fields[2], fields[3])
		}
		return u, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	scheme, ok := proxySchemes[parsed.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return &url.URL{Scheme: scheme, User: parsed.User, Host: parsed.Host}, nil
}

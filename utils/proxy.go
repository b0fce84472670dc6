package utils

import (
	"fmt"
	"net/url"
	"strings"

	tls_client "github.com/bogdanfinn/tls-client"
	xproxy "golang.org/x/net/proxy"
)

// ProxyStrategy is the parsed connection strategy handed to the
// challenge client. A zero strategy means direct connection.
type ProxyStrategy struct {
	url *url.URL
	raw string
}

// Direct is the no-proxy strategy.
var Direct = ProxyStrategy{}

func (s ProxyStrategy) IsDirect() bool { return s.url == nil }

// String returns the canonical proxy URL, empty for direct.
func (s ProxyStrategy) String() string { return s.raw }

// ClientOptions yields the tls-client options the strategy implies.
func (s ProxyStrategy) ClientOptions() []tls_client.HttpClientOption {
	if s.IsDirect() {
		return nil
	}
	return []tls_client.HttpClientOption{tls_client.WithProxyUrl(s.raw)}
}

// ParseProxy validates an optional proxy specification. Accepted forms
// are http://[user:pass@]host:port and socks5://host:port. An empty
// string means direct connection.
func ParseProxy(raw string) (ProxyStrategy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Direct, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Direct, fmt.Errorf("invalid proxy format %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "socks5":
	default:
		return Direct, fmt.Errorf("invalid proxy format %q: unsupported scheme %q", raw, u.Scheme)
	}

	if u.Hostname() == "" {
		return Direct, fmt.Errorf("invalid proxy format %q: missing host", raw)
	}
	if u.Port() == "" {
		return Direct, fmt.Errorf("invalid proxy format %q: missing port", raw)
	}
	if u.Path != "" && u.Path != "/" {
		return Direct, fmt.Errorf("invalid proxy format %q: unexpected path", raw)
	}

	if u.Scheme == "socks5" {
		// Confirm a SOCKS5 dialer can actually be built from this URL
		// before the transport layer ever touches it.
		if _, err := xproxy.FromURL(u, xproxy.Direct); err != nil {
			return Direct, fmt.Errorf("invalid proxy format %q: %w", raw, err)
		}
	}

	return ProxyStrategy{url: u, raw: u.String()}, nil
}

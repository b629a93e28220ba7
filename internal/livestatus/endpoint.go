package livestatus

import (
	"fmt"
	"net/url"
)

// FeedPath is the host-relative path of the status feed.
const FeedPath = "/dashws"

// EndpointFromOrigin maps a page origin such as https://host:8888 to the
// status feed URL wss://host:8888/dashws.
func EndpointFromOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid origin %q: missing host", origin)
	}

	var scheme string
	switch u.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("invalid origin %q: unsupported scheme %q", origin, u.Scheme)
	}

	return (&url.URL{Scheme: scheme, Host: u.Host, Path: FeedPath}).String(), nil
}

// Package remotetool implements the remote tool invoker:
// SSRF-guarded outbound HTTP with templated bodies, auth, and query
// construction for operator-configured AssistantTool.Remote configs.
package remotetool

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/mindatlas/backend/internal/model"
)

// blockedCIDRs is the hard-coded SSRF blocklist: loopback, RFC1918,
// link-local, unique-local, and their IPv6 equivalents. Deliberately not
// configurable.
var blockedCIDRs = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("remotetool: invalid hard-coded CIDR %q: %v", c, err))
		}
		out = append(out, n)
	}
	return out
}

var blockedHostnames = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
}

// Resolver abstracts DNS lookup so tests can inject a fake resolver without
// touching the real network.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

var defaultResolver Resolver = net.DefaultResolver

// ValidateURL enforces the SSRF guard against a
// candidate endpoint, both at config-write time and at invoke time. DNS
// resolution failure is NOT an error here ("external hosts may be flaky");
// only a successful resolution into a blocked range is rejected.
func ValidateURL(ctx context.Context, rawURL string, resolver Resolver) error {
	if resolver == nil {
		resolver = defaultResolver
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.NewValidationError("endpoint_url", "not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return model.NewValidationError("endpoint_url", "scheme must be http or https")
	}
	host := u.Hostname()
	if host == "" {
		return model.NewValidationError("endpoint_url", "missing host")
	}
	if blockedHostnames[strings.ToLower(host)] {
		return model.NewSSRFError(host, "hostname is blocked")
	}

	if ip := net.ParseIP(host); ip != nil {
		if blocked, reason := isBlockedIP(ip); blocked {
			return model.NewSSRFError(host, reason)
		}
		return nil
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		// DNS failure is allowed through; the subsequent HTTP call will
		// fail on its own if the host is truly unreachable.
		return nil
	}
	for _, a := range addrs {
		if blocked, reason := isBlockedIP(a.IP); blocked {
			return model.NewSSRFError(host, reason)
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) (bool, string) {
	for _, cidr := range blockedCIDRs {
		if cidr.Contains(ip) {
			return true, fmt.Sprintf("address %s falls in blocked range %s", ip, cidr)
		}
	}
	return false, ""
}

package security

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Hostnames that must never be dialed from the server regardless of what
// they resolve to.
var deniedHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.google":          true,
}

// ValidateEndpointURL decides whether a caller-supplied URL is safe to
// deliver to from this server. Webhook subscriptions go through this check
// so a tenant cannot point deliveries at loopback, RFC 1918 ranges,
// link-local addresses, or cloud metadata services. Hostnames are resolved
// and every resolved address must pass.
func ValidateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("URL scheme must be http or https")
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a host")
	}
	if deniedHosts[strings.ToLower(host)] {
		return fmt.Errorf("URL host %q is not allowed", host)
	}

	// An IP literal needs no resolution.
	if addr, err := netip.ParseAddr(host); err == nil {
		if err := denyInternalAddr(addr); err != nil {
			return err
		}
		return nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(context.Background(), "ip", host)
	if err != nil {
		return fmt.Errorf("cannot resolve URL host: %s", host)
	}
	for _, addr := range addrs {
		if err := denyInternalAddr(addr); err != nil {
			return fmt.Errorf("URL host %q resolves to blocked address: %v", host, err)
		}
	}
	return nil
}

// denyInternalAddr rejects addresses that stay inside the network
// perimeter. IPv4-mapped IPv6 addresses are unmapped first so ::ffff:
// prefixes cannot smuggle a private IPv4 address through.
func denyInternalAddr(addr netip.Addr) error {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback():
		return fmt.Errorf("loopback addresses are not allowed")
	case addr.IsPrivate():
		return fmt.Errorf("private addresses are not allowed")
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return fmt.Errorf("link-local addresses are not allowed")
	case addr.IsUnspecified():
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}

package pilot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrUnsafeScheme is returned by Navigate for anything but http and https.
var ErrUnsafeScheme = errors.New("pilot: only http and https URLs can be loaded")

// ErrPrivateHost is returned by Navigate for loopback, link-local and
// private addresses unless Config.AllowPrivateHosts is set.
var ErrPrivateHost = errors.New("pilot: URL targets a private or loopback address")

// checkNavigation vets a URL an agent asked the browser to load. Hostnames
// are resolved so internal names pointing at private ranges are caught too;
// resolution failures are let through and fail at load time instead.
func checkNavigation(ctx context.Context, raw string, allowPrivate bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("pilot: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: %q", ErrUnsafeScheme, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("pilot: URL %q has no host", raw)
	}
	if allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrPrivateHost, host)
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: %s", ErrPrivateHost, host)
	}
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateHost, host, a)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

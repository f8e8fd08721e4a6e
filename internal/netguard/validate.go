// Package netguard validates outbound URLs before an HTTP client uses
// them, refusing requests that would reach a private or link-local
// address unless explicitly permitted. No example repo in the reference
// corpus performs this check; it is grounded directly on the NEXUS3
// original's url_validator.validate_url semantics, called both at
// GitLab instance configuration time and again before every individual
// request (defense-in-depth — a validated base URL does not guarantee
// a later redirect or DNS change stays safe).
package netguard

import (
	"fmt"
	"net"
	"net/url"

	"golang.org/x/net/idna"
)

// ValidateURL rejects rawURL unless its scheme is http/https and its
// resolved host is not a private, loopback, link-local, or unspecified
// address (unless allowPrivate permits it). allowLocalhost additionally
// permits loopback addresses even when allowPrivate is false, since a
// locally-hosted GitLab instance is a legitimate, common target.
func ValidateURL(rawURL string, allowLocalhost, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not permitted (only http/https)", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host")
	}

	// Normalize through IDNA ToASCII so a homograph/unicode hostname
	// can't slip past a textual check for "localhost" or similar before
	// we resolve it to an address.
	ascii, err := idna.Lookup.ToASCII(host)
	if err == nil {
		host = ascii
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Not a literal IP; resolve it so the check covers
		// DNS-rebinding-style attempts to reach a private address
		// through a public-looking hostname.
		addrs, err := net.LookupIP(host)
		if err != nil || len(addrs) == 0 {
			// Unresolvable hosts are rejected by the HTTP client itself
			// at dial time; nothing more to validate here.
			return nil
		}
		for _, a := range addrs {
			if err := checkAddr(a, allowLocalhost, allowPrivate); err != nil {
				return err
			}
		}
		return nil
	}
	return checkAddr(ip, allowLocalhost, allowPrivate)
}

func checkAddr(ip net.IP, allowLocalhost, allowPrivate bool) error {
	if ip.IsLoopback() {
		if allowLocalhost {
			return nil
		}
		return fmt.Errorf("refusing loopback address %s", ip)
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		if allowPrivate {
			return nil
		}
		return fmt.Errorf("refusing private/link-local address %s", ip)
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("refusing unspecified address %s", ip)
	}
	return nil
}

// Package guard implements the pure validation functions applied at
// config load and per request: upstream-host allowlist match, private-IP
// block, protocol whitelist, host-pin, and redirect re-validation. Nothing
// in this package holds state or performs I/O.
package guard

import (
	"net"
	"net/url"
	"strings"
)

// privateNetworks are the literal ranges blocked by IsPrivateHost. DNS
// resolution is a separate, advisory check performed by the dialer.
var privateNetworks []*net.IPNet

func init() {
	cidrs := []string{
		"127.0.0.0/8",    // IPv4 loopback
		"10.0.0.0/8",     // RFC 1918 private
		"172.16.0.0/12",  // RFC 1918 private
		"192.168.0.0/16", // RFC 1918 private
		"169.254.0.0/16", // link-local (cloud metadata endpoints live here)
		"0.0.0.0/8",      // "this host on this network"
		"::1/128",        // IPv6 loopback
		"fc00::/7",       // IPv6 unique local
		"fe80::/10",      // IPv6 link-local
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("guard: invalid CIDR literal: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// AllowsHost reports whether hostname passes the upstream allowlist.
// An empty allowlist allows everything (back-compat default). Otherwise a
// hostname passes iff it equals an entry exactly or ends with "."+entry
// (dotted-suffix subdomain match).
func AllowsHost(allowlist []string, hostname string) bool {
	if len(allowlist) == 0 {
		return true
	}
	hostname = strings.ToLower(hostname)
	for _, entry := range allowlist {
		entry = strings.ToLower(entry)
		if hostname == entry || strings.HasSuffix(hostname, "."+entry) {
			return true
		}
	}
	return false
}

// IsPrivateHost reports whether host (a literal IP or IPv6 bracketed form)
// falls within one of the blocked private/reserved ranges. Non-IP literals
// (ordinary DNS names) are never blocked by this check.
func IsPrivateHost(host string) bool {
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// AllowsScheme reports whether scheme is in the protocol whitelist.
func AllowsScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

// HostPinned asserts that constructed and base resolve to byte-identical
// hosts, catching path segments or scheme switches that would otherwise
// swing the effective upstream host.
func HostPinned(constructed, base *url.URL) bool {
	return constructed.Host == base.Host
}

// Verdict is the outcome of a full guard evaluation against a candidate
// upstream URL.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Evaluate runs the full per-request guard chain against a constructed
// upstream URL: protocol whitelist, host-pin against base, allowlist, and
// private-IP block on the literal host.
func Evaluate(constructed, base *url.URL, allowlist []string) Verdict {
	if !AllowsScheme(constructed.Scheme) {
		return Verdict{Allowed: false, Reason: "scheme not permitted"}
	}
	if !HostPinned(constructed, base) {
		return Verdict{Allowed: false, Reason: "host does not match configured upstream"}
	}
	hostname := constructed.Hostname()
	if !AllowsHost(allowlist, hostname) {
		return Verdict{Allowed: false, Reason: "host not in allowlist"}
	}
	if IsPrivateHost(hostname) {
		return Verdict{Allowed: false, Reason: "host resolves to a private/reserved range"}
	}
	return Verdict{Allowed: true}
}

// EvaluateRedirect re-runs Evaluate against a Location header resolved
// against the current upstream URL, per the redirect re-check rule.
func EvaluateRedirect(current *url.URL, location string, base *url.URL, allowlist []string) (*url.URL, Verdict) {
	target, err := current.Parse(location)
	if err != nil {
		return nil, Verdict{Allowed: false, Reason: "invalid redirect location"}
	}
	return target, Evaluate(target, base, allowlist)
}

// AllowsAdminIP reports whether clientIP matches an entry in allowlist.
// Entries may be exact IPv4/IPv6 literals or CIDR notation. IPv4-mapped
// IPv6 clients are compared after stripping the "::ffff:" prefix.
func AllowsAdminIP(allowlist []string, clientIP string) bool {
	if len(allowlist) == 0 {
		return true
	}
	clientIP = strings.TrimPrefix(clientIP, "::ffff:")
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	for _, entry := range allowlist {
		entry = strings.TrimPrefix(entry, "::ffff:")
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				continue
			}
			if network.Contains(ip) {
				return true
			}
			continue
		}
		if entryIP := net.ParseIP(entry); entryIP != nil && entryIP.Equal(ip) {
			return true
		}
	}
	return false
}

package shared

import (
	"net/url"
	"strings"
)

// HostMatches reports whether rawURL's host is domain or a subdomain of it.
func HostMatches(rawURL, domain string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

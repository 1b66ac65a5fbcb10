package dmarc

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// OrganizationalDomain returns the organizational domain for the given
// domain: the domain directly under the public suffix. For example,
// sub.example.co.uk -> example.co.uk.
//
// This uses the Public Suffix List, as RFC 7489 requires for DMARC policy
// discovery.
func OrganizationalDomain(domain string) string {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if domain == "" {
		return ""
	}

	etld1, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		// Cases like "localhost" or a bare public suffix.
		return domain
	}
	return etld1
}

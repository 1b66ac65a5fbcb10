package osprey

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	mdns "github.com/miekg/dns"

	"github.com/synqronlabs/osprey/dns"
)

// DNSKEY is one published DNSKEY record, summarized.
type DNSKEY struct {
	// Flags is the DNSKEY flags field. 257 marks a key-signing key.
	Flags uint16

	// Algorithm is the DNSSEC algorithm number.
	Algorithm uint8

	// AlgorithmName is the mnemonic for Algorithm, such as "ECDSAP256SHA256".
	AlgorithmName string
}

// KeySigning reports whether the key has both the zone and SEP flags set.
func (k DNSKEY) KeySigning() bool {
	return k.Flags&mdns.ZONE != 0 && k.Flags&mdns.SEP != 0
}

// DNSSECResult is the outcome of the DNSSEC posture check for one domain.
type DNSSECResult struct {
	// Domain is the domain that was evaluated.
	Domain string

	// Enabled is true when the domain publishes DNSKEY records.
	Enabled bool

	// Authenticated is true when the resolver set the AD flag, meaning the
	// response passed DNSSEC validation upstream.
	Authenticated bool

	// Keys summarizes the published DNSKEY records.
	Keys []DNSKEY

	// Validation messages, in the order they were produced.
	Passes   []string
	Warnings []string
	Failures []string
}

func (r *DNSSECResult) pass(format string, args ...any) {
	r.Passes = append(r.Passes, fmt.Sprintf(format, args...))
}

func (r *DNSSECResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *DNSSECResult) fail(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// EvaluateDNSSEC checks whether a domain publishes DNSKEY records and whether
// the resolver authenticated them.
//
// It always returns a fully populated DNSSECResult; resolution problems are
// reported through the Failures list, never as an error.
func EvaluateDNSSEC(ctx context.Context, resolver dns.Resolver, domain string) *DNSSECResult {
	res := &DNSSECResult{Domain: domain}

	result, err := resolver.Resolve(ctx, domain, dns.TypeDNSKEY)
	if err != nil {
		res.fail("could not resolve DNSKEY records for %s: %v", domain, err)
		return res
	}
	if result == nil || result.Status != dns.StatusNoError {
		res.fail("%s does not publish DNSKEY records; DNSSEC is not enabled", domain)
		return res
	}

	for _, a := range result.Answers {
		if a.Type != dns.TypeDNSKEY {
			continue
		}
		key, ok := parseDNSKEY(a.Data)
		if !ok {
			res.warn("could not parse DNSKEY record %q for %s", a.Data, domain)
			continue
		}
		res.Keys = append(res.Keys, key)
	}

	if len(res.Keys) == 0 {
		res.fail("%s does not publish DNSKEY records; DNSSEC is not enabled", domain)
		return res
	}
	res.Enabled = true
	res.Authenticated = result.AuthenticData

	if res.Authenticated {
		res.pass("DNSSEC is enabled and validated for %s", domain)
	} else {
		res.warn("%s publishes DNSKEY records but the resolver did not authenticate them", domain)
	}
	return res
}

// parseDNSKEY splits DNSKEY RDATA of the form
// "<flags> <protocol> <algorithm> <public key>".
func parseDNSKEY(data string) (DNSKEY, bool) {
	fields := strings.Fields(data)
	if len(fields) < 4 {
		return DNSKEY{}, false
	}

	flags, err := strconv.ParseUint(fields[0], 10, 16)
	if err != nil {
		return DNSKEY{}, false
	}
	algorithm, err := strconv.ParseUint(fields[2], 10, 8)
	if err != nil {
		return DNSKEY{}, false
	}

	return DNSKEY{
		Flags:         uint16(flags),
		Algorithm:     uint8(algorithm),
		AlgorithmName: mdns.AlgorithmToString[uint8(algorithm)],
	}, true
}

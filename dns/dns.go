// Package dns provides DNS resolution over DNS-over-HTTPS (DoH) JSON APIs.
//
// The package issues single queries against a public DoH endpoint (Google or
// Cloudflare, which share an identical request/response shape) and normalizes
// the response into a Result. It deliberately does not retry, cache, or
// recurse; failure is immediate and reported upward so evaluators can record
// it as data.
package dns

import (
	"context"
	"strconv"
	"strings"

	mdns "github.com/miekg/dns"
)

// Record type constants, re-exported from github.com/miekg/dns for callers
// that do not want to import it directly. TypeSPF is the obsolete SPF record
// type (retired by RFC 7208 Section 3.1 in favor of TXT); SPF evaluation
// queries TXT, but the type remains addressable for callers inspecting
// legacy zones.
const (
	TypeA      = mdns.TypeA
	TypeMX     = mdns.TypeMX
	TypeTXT    = mdns.TypeTXT
	TypePTR    = mdns.TypePTR
	TypeDNSKEY = mdns.TypeDNSKEY
	TypeSPF    = mdns.TypeSPF
)

// Status codes returned in Result.Status. These are standard DNS rcodes.
const (
	StatusNoError  = mdns.RcodeSuccess
	StatusNXDomain = mdns.RcodeNameError
	StatusServFail = mdns.RcodeServerFailure
)

// Answer is a single resource record from a DoH JSON response. Immutable
// once produced by the resolver.
type Answer struct {
	Name string `json:"name"`
	Type uint16 `json:"type"`
	TTL  uint32 `json:"TTL"`
	Data string `json:"data"`
}

// Result is a normalized DNS response. It is constructed per query and
// discarded after consumption by an evaluator.
type Result struct {
	// Status is the DNS response code. 0 means success, 3 (NXDOMAIN) means
	// the name does not exist. Other codes are resolver-specific failures.
	Status int

	// Answers holds the answer records in response order.
	Answers []Answer

	// AuthenticData reports whether the resolver validated the response
	// with DNSSEC (the AD bit).
	AuthenticData bool

	// Comment is an optional diagnostic string from the resolver.
	Comment string
}

// Resolver issues a single DNS query.
//
// A (nil, nil) return means the name resolved successfully but has no
// records of the requested type. A non-nil error means the query could not
// be completed at the transport level; callers must treat that differently
// from a populated Result with a non-zero Status.
type Resolver interface {
	Resolve(ctx context.Context, name string, qtype uint16) (*Result, error)
}

// TypeString returns the textual name for a record type, e.g. "TXT".
func TypeString(qtype uint16) string {
	if s, ok := mdns.TypeToString[qtype]; ok {
		return s
	}
	return "TYPE" + strconv.Itoa(int(qtype))
}

// RcodeString returns the textual name for a DNS response code.
func RcodeString(status int) string {
	if s, ok := mdns.RcodeToString[status]; ok {
		return s
	}
	return "RCODE" + strconv.Itoa(status)
}

// LookupTXT resolves TXT records for a name and returns the unquoted record
// strings in answer order. DoH endpoints return TXT data quoted and possibly
// split into multiple character strings; the segments are unquoted and
// joined, per RFC 7208 Section 3.3.
func LookupTXT(ctx context.Context, r Resolver, name string) ([]string, *Result, error) {
	result, err := r.Resolve(ctx, name, TypeTXT)
	if err != nil || result == nil {
		return nil, result, err
	}

	var records []string
	for _, a := range result.Answers {
		if a.Type != TypeTXT {
			continue
		}
		records = append(records, unquoteTXT(a.Data))
	}
	return records, result, nil
}

// MX is an MX record split into its priority and hostname components.
type MX struct {
	Priority int
	Hostname string
}

// LookupMX resolves MX records for a name. Each answer's data field has the
// form "<priority> <host>". Records are returned in answer order; callers
// that care about preference must sort.
func LookupMX(ctx context.Context, r Resolver, name string) ([]MX, *Result, error) {
	result, err := r.Resolve(ctx, name, TypeMX)
	if err != nil || result == nil {
		return nil, result, err
	}

	var records []MX
	for _, a := range result.Answers {
		if a.Type != TypeMX {
			continue
		}
		pref, host, ok := splitMX(a.Data)
		if !ok {
			continue
		}
		records = append(records, MX{Priority: pref, Hostname: host})
	}
	return records, result, nil
}

// LookupMXHosts is the simplified MX form: only the hostname component of
// each answer, in answer order.
func LookupMXHosts(ctx context.Context, r Resolver, name string) ([]string, *Result, error) {
	records, result, err := LookupMX(ctx, r, name)
	if err != nil || result == nil {
		return nil, result, err
	}

	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		hosts = append(hosts, mx.Hostname)
	}
	return hosts, result, nil
}

// splitMX splits "<priority> <host>" MX record data.
func splitMX(data string) (pref int, host string, ok bool) {
	fields := strings.Fields(data)
	if len(fields) != 2 {
		return 0, "", false
	}
	pref, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", false
	}
	return pref, strings.TrimSuffix(fields[1], "."), true
}

// unquoteTXT strips the quoting applied to TXT data by DoH endpoints and
// joins split character strings, e.g. `"v=spf1 " "-all"` -> "v=spf1 -all".
func unquoteTXT(data string) string {
	if !strings.HasPrefix(data, `"`) {
		return data
	}

	var b strings.Builder
	inQuote := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '\\' && inQuote && i+1 < len(data):
			i++
			b.WriteByte(data[i])
		case c == '"':
			inQuote = !inQuote
		case inQuote:
			b.WriteByte(c)
		}
	}
	return b.String()
}

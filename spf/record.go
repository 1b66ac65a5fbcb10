package spf

import (
	"fmt"
	"slices"
)

// Level identifies how a record entered the evaluation tree.
type Level int

const (
	// LevelParent is the top-level record of the evaluated domain.
	LevelParent Level = iota

	// LevelInclude is a record pulled in through an include mechanism.
	LevelInclude

	// LevelRedirect is a record pulled in through a redirect modifier.
	LevelRedirect
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelParent:
		return "parent"
	case LevelInclude:
		return "include"
	case LevelRedirect:
		return "redirect"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// TypeLookup is the stored result of a nested a, mx, or ptr mechanism
// resolution.
type TypeLookup struct {
	// Mechanism is "a", "mx", or "ptr".
	Mechanism string

	// Domain is the domain the mechanism was resolved against: the named
	// target when present, otherwise the record's own domain.
	Domain string

	// Records holds the answer data, empty when nothing resolved.
	Records []string
}

// Record is the evaluated SPF record for one domain. Included and redirected
// records form a tree owned exclusively by the top-level Record.
type Record struct {
	// Domain is the domain this record belongs to.
	Domain string

	// Raw is the TXT record text, empty when no SPF record was found.
	Raw string

	// Level is how this record entered the evaluation.
	Level Level

	// RecordCount is the number of TXT records matching the v=spf1 prefix.
	RecordCount int

	// LookupCount is this record's own countable mechanisms (a, mx, ptr,
	// exists, and each include/redirect traversal) plus the LookupCount of
	// every included record. The top-level total must not exceed 10.
	LookupCount int

	// HasAllMechanism reports whether an all mechanism was present. A
	// record with a redirect inherits this from the redirect target.
	HasAllMechanism bool

	// AllMechanism is the qualifier of the all mechanism: "+", "-", "~",
	// "?", or "" when unqualified.
	AllMechanism string

	// IPAddresses is the set of ip4/ip6 values published by this record
	// (qualifier absent or "+"), deduplicated, in record order.
	IPAddresses []string

	// TypeLookups holds nested a/mx/ptr resolution results.
	TypeLookups []TypeLookup

	// Included holds the records of include and redirect targets.
	Included []*Record

	// Redirected reports whether evaluation followed a redirect modifier.
	Redirected bool

	// PermanentError is the sticky PermError flag: malformed mechanism,
	// redirect combined with all, exceeded lookup budget, or an unresolvable
	// include/redirect branch. It propagates up through aggregation.
	PermanentError bool

	// Validation messages, in the order they were produced.
	Passes   []string
	Warnings []string
	Failures []string
}

func (r *Record) pass(format string, args ...any) {
	r.Passes = append(r.Passes, fmt.Sprintf(format, args...))
}

func (r *Record) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Record) fail(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// addIP records an ip4/ip6 value, deduplicating exact strings.
func (r *Record) addIP(ip string) {
	if !slices.Contains(r.IPAddresses, ip) {
		r.IPAddresses = append(r.IPAddresses, ip)
	}
}

// AllIPs returns every IP address published by this record and its entire
// include/redirect tree, deduplicated and sorted.
func (r *Record) AllIPs() []string {
	set := map[string]bool{}
	r.collectIPs(set)

	ips := make([]string, 0, len(set))
	for ip := range set {
		ips = append(ips, ip)
	}
	slices.Sort(ips)
	return ips
}

func (r *Record) collectIPs(set map[string]bool) {
	for _, ip := range r.IPAddresses {
		set[ip] = true
	}
	for _, inc := range r.Included {
		inc.collectIPs(set)
	}
}

// IncludeDomains returns the domains of every included or redirected record
// in the tree, in evaluation order.
func (r *Record) IncludeDomains() []string {
	var domains []string
	for _, inc := range r.Included {
		domains = append(domains, inc.Domain)
		domains = append(domains, inc.IncludeDomains()...)
	}
	return domains
}

package spf

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/synqronlabs/osprey/dns"
)

// Evaluation limits.
const (
	// maxLookups is the DNS lookup budget per RFC 7208 Section 4.6.4.
	maxLookups = 10

	// maxDepth bounds include/redirect recursion so that an adversarial
	// record set cannot force unbounded resolution. The budget check alone
	// does not help here: it runs after the full tree walk.
	maxDepth = 20
)

// Options are the parameters for SPF evaluation.
type Options struct {
	// ExpectedInclude is an include domain that the record tree is expected
	// to contain, typically inferred from the domain's mail provider. When
	// set and absent from the tree, the expected record is evaluated
	// independently and its IP set compared against the tree's aggregate.
	ExpectedInclude string

	// Logger receives debug output. If nil, nothing is logged.
	Logger *slog.Logger
}

// Evaluate resolves and validates the SPF record tree for a domain.
//
// It always returns a fully populated Record; resolution problems are
// reported through the Failures list, never as a panic or error.
func Evaluate(ctx context.Context, resolver dns.Resolver, domain string, opts Options) *Record {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	visited := map[string]bool{domain: true}
	rec := evaluate(ctx, resolver, domain, LevelParent, 0, visited, log)

	if rec.RecordCount > 0 {
		checkLookupBudget(rec)
	}

	if opts.ExpectedInclude != "" {
		checkExpectedInclude(ctx, resolver, rec, opts.ExpectedInclude, log)
	}

	if rec.RecordCount > 0 {
		checkAllMechanism(rec)
	}

	if len(rec.Failures) == 0 && !rec.PermanentError {
		rec.pass("No errors detected")
	}

	return rec
}

// evaluate resolves a single record and recurses into its includes and
// redirect. visited is the cycle guard shared across the whole tree walk.
func evaluate(ctx context.Context, resolver dns.Resolver, domain string, level Level, depth int, visited map[string]bool, log *slog.Logger) *Record {
	rec := &Record{Domain: domain, Level: level}

	if depth > maxDepth {
		rec.PermanentError = true
		rec.fail("SPF evaluation for %s exceeded the maximum include depth", domain)
		return rec
	}

	txts, _, err := dns.LookupTXT(ctx, resolver, domain)
	if err != nil {
		rec.fail("could not resolve TXT records for %s: %v", domain, err)
		if level != LevelParent {
			rec.PermanentError = true
		}
		return rec
	}

	var spfTxts []string
	for _, txt := range txts {
		if strings.HasPrefix(txt, "v=spf1") {
			spfTxts = append(spfTxts, txt)
		}
	}
	rec.RecordCount = len(spfTxts)

	if rec.RecordCount == 0 {
		rec.fail("%s does not resolve an SPF record", domain)
		if level != LevelParent {
			// An include or redirect target without a record makes the
			// whole branch unevaluable.
			rec.PermanentError = true
		}
		return rec
	}
	if rec.RecordCount > 1 {
		rec.fail("%s publishes %d SPF records, expected exactly one", domain, rec.RecordCount)
	}

	rec.Raw = spfTxts[0]
	log.Debug("evaluating spf record", "domain", domain, "level", level.String(), "record", rec.Raw)

	var (
		includes   []string
		redirect   string
		mechanisms int
	)

	for _, token := range strings.Fields(rec.Raw) {
		qualifier, body := splitQualifier(token)

		switch {
		case token == "v=spf1":
			// Version tag.

		case qualifier == "" && strings.HasPrefix(body, "redirect="):
			redirect = strings.TrimPrefix(body, "redirect=")
			if redirect == "" {
				rec.PermanentError = true
				rec.fail("redirect modifier without a domain in SPF record for %s", domain)
			}

		case strings.HasPrefix(body, "include:"):
			inc := strings.TrimPrefix(body, "include:")
			if inc == "" {
				rec.PermanentError = true
				rec.fail("include mechanism without a domain in SPF record for %s", domain)
				continue
			}
			// Exact-string deduplication only.
			if !slices.Contains(includes, inc) {
				includes = append(includes, inc)
			}

		case strings.HasPrefix(body, "exists:"):
			mechanisms++

		case strings.HasPrefix(body, "ip4:"), strings.HasPrefix(body, "ip6:"):
			if qualifier == "" || qualifier == "+" {
				rec.addIP(body[len("ip4:"):])
			}

		case body == "all":
			rec.HasAllMechanism = true
			rec.AllMechanism = qualifier

		case isTypeMechanism(body):
			mechanisms++
			evaluateTypeMechanism(ctx, resolver, rec, body)

		default:
			rec.PermanentError = true
			rec.fail("unknown mechanism %q in SPF record for %s", token, domain)
		}
	}

	if redirect != "" && rec.HasAllMechanism {
		// RFC 7208 Section 6.1: redirect is ignored when all is present.
		// Publishing both is a configuration error either way.
		rec.PermanentError = true
		rec.fail("SPF record for %s combines a redirect modifier with an all mechanism", domain)
		redirect = ""
	}

	for _, inc := range includes {
		mechanisms++
		if visited[inc] {
			// Cycle guard: this domain is already part of the tree.
			continue
		}
		visited[inc] = true

		child := evaluate(ctx, resolver, inc, LevelInclude, depth+1, visited, log)
		rec.Included = append(rec.Included, child)

		rec.Passes = append(rec.Passes, child.Passes...)
		rec.Warnings = append(rec.Warnings, child.Warnings...)
		rec.Failures = append(rec.Failures, child.Failures...)
		if child.PermanentError {
			rec.PermanentError = true
		}
	}

	if redirect != "" {
		mechanisms++
		rec.Redirected = true
		if !visited[redirect] {
			visited[redirect] = true

			child := evaluate(ctx, resolver, redirect, LevelRedirect, depth+1, visited, log)
			rec.Included = append(rec.Included, child)

			// The redirect target replaces this record's terminal policy.
			rec.HasAllMechanism = child.HasAllMechanism
			rec.AllMechanism = child.AllMechanism

			rec.Passes = append(rec.Passes, child.Passes...)
			rec.Warnings = append(rec.Warnings, child.Warnings...)
			rec.Failures = append(rec.Failures, child.Failures...)
			if child.PermanentError {
				rec.PermanentError = true
			}
		}
	}

	rec.LookupCount = mechanisms
	for _, child := range rec.Included {
		rec.LookupCount += child.LookupCount
	}

	return rec
}

// isTypeMechanism reports whether body is an a, mx, or ptr mechanism,
// optionally with a ":<domain>" target.
func isTypeMechanism(body string) bool {
	name, _, _ := strings.Cut(body, ":")
	switch name {
	case "a", "mx", "ptr":
		return true
	}
	return false
}

// evaluateTypeMechanism performs the nested resolution for an a, mx, or ptr
// mechanism and stores the result on the record.
func evaluateTypeMechanism(ctx context.Context, resolver dns.Resolver, rec *Record, body string) {
	name, target, _ := strings.Cut(body, ":")
	lookupDomain := target
	if lookupDomain == "" {
		lookupDomain = rec.Domain
	}

	var qtype uint16
	switch name {
	case "a":
		qtype = dns.TypeA
	case "mx":
		qtype = dns.TypeMX
	case "ptr":
		qtype = dns.TypePTR
	}

	lookup := TypeLookup{Mechanism: name, Domain: lookupDomain}

	result, err := resolver.Resolve(ctx, lookupDomain, qtype)
	if err != nil {
		rec.fail("could not resolve %s record for %s: %v", name, lookupDomain, err)
	} else if result != nil {
		for _, a := range result.Answers {
			lookup.Records = append(lookup.Records, a.Data)
		}
	}

	rec.TypeLookups = append(rec.TypeLookups, lookup)
}

// splitQualifier splits a leading SPF qualifier off a token.
func splitQualifier(token string) (qualifier, body string) {
	if token == "" {
		return "", ""
	}
	switch token[0] {
	case '+', '-', '~', '?':
		return string(token[0]), token[1:]
	}
	return "", token
}

// checkLookupBudget validates the aggregate lookup count after the full tree
// walk.
func checkLookupBudget(rec *Record) {
	switch {
	case rec.LookupCount > maxLookups:
		rec.PermanentError = true
		rec.fail("SPF record for %s exceeded 10 lookups, found %d", rec.Domain, rec.LookupCount)
	case rec.LookupCount == maxLookups-1:
		rec.warn("SPF record for %s uses %d DNS lookups and is approaching the limit of 10", rec.Domain, rec.LookupCount)
	}
}

// checkExpectedInclude verifies that the expected provider include is part
// of the tree, either directly or by IP coverage.
func checkExpectedInclude(ctx context.Context, resolver dns.Resolver, rec *Record, expected string, log *slog.Logger) {
	if slices.Contains(rec.IncludeDomains(), expected) {
		rec.pass("Expected SPF include %s was included", expected)
		return
	}

	// Not referenced directly: resolve the expected record independently and
	// require every one of its IPs to be covered by this tree.
	expRec := evaluate(ctx, resolver, expected, LevelInclude, 0, map[string]bool{expected: true}, log)
	if expRec.RecordCount == 0 {
		rec.fail("Expected SPF include %s is missing and does not resolve an SPF record", expected)
		return
	}

	expIPs := expRec.AllIPs()
	have := map[string]bool{}
	for _, ip := range rec.AllIPs() {
		have[ip] = true
	}

	matching := 0
	for _, ip := range expIPs {
		if have[ip] {
			matching++
		}
	}

	if matching == len(expIPs) {
		rec.pass("Expected SPF include %s was included", expected)
	} else {
		rec.fail("Expected SPF include %s is missing", expected)
	}
}

// checkAllMechanism applies the terminal policy checks.
func checkAllMechanism(rec *Record) {
	switch {
	case !rec.HasAllMechanism:
		rec.fail("SPF record for %s does not end in an all mechanism and defaults to +all", rec.Domain)
	case rec.AllMechanism == "-":
		rec.pass("SPF record ends in -all")
	default:
		rec.fail("SPF record for %s should end in -all", rec.Domain)
	}
}

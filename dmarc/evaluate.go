package dmarc

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/synqronlabs/osprey/dns"
)

// Evaluate resolves and validates the DMARC policy for a domain.
//
// It always returns a fully populated Record; resolution problems are
// reported through the Failures list, never as an error.
func Evaluate(ctx context.Context, resolver dns.Resolver, domain string) *Record {
	rec := &Record{
		Domain:       domain,
		PolicyDomain: domain,
		Percent:      100,
	}

	txts, err := lookupPolicy(ctx, resolver, domain)
	if err != nil {
		rec.fail("could not resolve DMARC record for %s: %v", domain, err)
		return rec
	}

	if len(txts) == 0 {
		// Policy discovery falls back to the organizational domain for
		// subdomains (RFC 7489 Section 6.6.3).
		org := OrganizationalDomain(domain)
		if org != "" && org != strings.TrimSuffix(strings.ToLower(domain), ".") {
			txts, err = lookupPolicy(ctx, resolver, org)
			if err != nil {
				rec.fail("could not resolve DMARC record for %s: %v", org, err)
				return rec
			}
			if len(txts) > 0 {
				rec.PolicyDomain = org
				rec.warn("%s has no DMARC record of its own; policy is inherited from %s", domain, org)
			}
		}
	}

	rec.RecordCount = len(txts)
	if rec.RecordCount == 0 {
		rec.fail("%s does not resolve a DMARC record", domain)
		return rec
	}
	if rec.RecordCount > 1 {
		rec.warn("%s publishes %d DMARC records, which may cause unexpected behavior", rec.PolicyDomain, rec.RecordCount)
	}

	rec.Raw = txts[0]
	externalDomains := evaluateTags(rec)
	checkExternalReporting(ctx, resolver, rec, externalDomains)

	return rec
}

// lookupPolicy fetches the DMARC-looking TXT records at _dmarc.<domain>.
func lookupPolicy(ctx context.Context, resolver dns.Resolver, domain string) ([]string, error) {
	txts, _, err := dns.LookupTXT(ctx, resolver, "_dmarc."+domain)
	if err != nil {
		return nil, err
	}

	// Loose match here; the version tag itself is validated during tag
	// evaluation so a bad value is reported rather than silently skipped.
	var records []string
	for _, txt := range txts {
		if strings.HasPrefix(txt, "v=DMARC") {
			records = append(records, txt)
		}
	}
	return records, nil
}

// evaluateTags parses and validates the record's tag-value pairs and returns
// the distinct external report-recipient domains for authorization checks.
func evaluateTags(rec *Record) []string {
	type tag struct{ name, value string }

	var tags []tag
	for _, segment := range strings.Split(rec.Raw, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		name, value, found := strings.Cut(segment, "=")
		if !found {
			continue
		}
		tags = append(tags, tag{strings.TrimSpace(name), strings.TrimSpace(value)})
	}

	if len(tags) == 0 || strings.ToLower(tags[0].name) != "v" || tags[0].value != "DMARC1" {
		rec.fail("v=DMARC1 must be the first tag in the DMARC record for %s", rec.PolicyDomain)
	}

	var (
		external     []string
		validRua     int
		sawSubPolicy bool
	)

	for _, t := range tags {
		switch strings.ToLower(t.name) {
		case "v":
			rec.Version = t.value

		case "p":
			rec.Policy = strings.ToLower(t.value)
			evaluatePolicy(rec, rec.Policy, "Policy")

		case "sp":
			sawSubPolicy = true
			rec.SubdomainPolicy = strings.ToLower(t.value)
			evaluatePolicy(rec, rec.SubdomainPolicy, "Subdomain policy")

		case "rua":
			valid, ext := parseReportAddresses(rec, t.value, "aggregate", &rec.ReportingEmails)
			validRua += valid
			external = append(external, ext...)

		case "ruf":
			_, ext := parseReportAddresses(rec, t.value, "forensic", &rec.ForensicEmails)
			external = append(external, ext...)

		case "fo":
			rec.FailureReportOptions = t.value

		case "pct":
			evaluatePercent(rec, t.value)

		case "adkim":
			rec.DKIMAlignment = t.value

		case "aspf":
			rec.SPFAlignment = t.value

		case "ri":
			rec.ReportInterval = t.value

		case "rf":
			rec.ReportFormat = t.value
			if !strings.EqualFold(t.value, "afrf") {
				rec.fail("Unsupported DMARC report format %q", t.value)
			}

		default:
			// Unknown tags are ignored.
		}
	}

	if rec.Policy == "" {
		rec.fail("DMARC record for %s is missing the required p tag", rec.PolicyDomain)
	}
	if !sawSubPolicy {
		rec.SubdomainPolicy = rec.Policy
	}

	if validRua > 0 {
		rec.pass("Aggregate reports are being sent")
	} else {
		rec.warn("Aggregate reports are not being collected for %s", rec.Domain)
	}

	if len(rec.ForensicEmails) > 0 {
		evaluateFailureOptions(rec)
	}

	// Deduplicate external recipients; sort for deterministic messages.
	slices.Sort(external)
	return slices.Compact(external)
}

// evaluatePolicy applies the three-way policy severity rules shared by the
// p and sp tags.
func evaluatePolicy(rec *Record, policy, label string) {
	switch policy {
	case PolicyReject:
		rec.pass("%s is sufficiently strict", label)
	case PolicyQuarantine:
		rec.warn("%s only quarantines mail that fails authentication", label)
	case PolicyNone:
		// Monitoring-only deployments offer no spoofing protection, so this
		// is reported at failure severity.
		rec.fail("%s is not enforced (%s)", label, policy)
	default:
		rec.fail("Invalid DMARC policy %q", policy)
	}
}

// parseReportAddresses parses a comma-separated rua/ruf value into dest and
// returns the count of valid addresses plus any external recipient domains.
func parseReportAddresses(rec *Record, value, kind string, dest *[]string) (valid int, external []string) {
	for _, addr := range strings.Split(value, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}

		if !strings.HasPrefix(addr, "mailto:") {
			rec.fail("DMARC %s report address %q must use the mailto scheme", kind, addr)
			continue
		}

		email := strings.TrimPrefix(addr, "mailto:")
		// Strip an RFC 7489 size limit suffix such as "!10m".
		email, _, _ = strings.Cut(email, "!")

		*dest = append(*dest, email)
		valid++

		if _, recipientDomain, ok := strings.Cut(email, "@"); ok {
			if !strings.EqualFold(recipientDomain, rec.PolicyDomain) {
				external = append(external, strings.ToLower(recipientDomain))
			}
		}
	}
	return valid, external
}

// evaluateFailureOptions validates the fo tag. Only meaningful when
// forensic report addresses exist.
func evaluateFailureOptions(rec *Record) {
	switch rec.FailureReportOptions {
	case "", "0":
		rec.warn("Forensic reports are only sent when all authentication mechanisms fail")
	case "1":
		rec.pass("Forensic reports are sent on any authentication failure")
	case "d":
		rec.warn("Forensic reports are only sent on DKIM failures")
	case "s":
		rec.warn("Forensic reports are only sent on SPF failures")
	default:
		rec.fail("Invalid DMARC fo value %q", rec.FailureReportOptions)
	}
}

// evaluatePercent validates the pct tag.
func evaluatePercent(rec *Record, value string) {
	pct, err := strconv.Atoi(value)
	if err != nil || pct < 1 || pct > 100 {
		rec.fail("Percentage must be between 1 and 100, got %q", value)
		return
	}

	rec.Percent = pct
	if pct < 100 {
		rec.warn("Not all emails will be processed by the DMARC policy (pct=%d)", pct)
	}
}

// checkExternalReporting verifies that each external report recipient domain
// has authorized receiving reports for the policy domain via a
// <policy-domain>._report._dmarc.<recipient> record (RFC 7489 Section 7.1).
func checkExternalReporting(ctx context.Context, resolver dns.Resolver, rec *Record, externalDomains []string) {
	if len(externalDomains) == 0 {
		return
	}

	var authorized []string
	for _, ext := range externalDomains {
		name := rec.PolicyDomain + "._report._dmarc." + ext

		txts, _, err := dns.LookupTXT(ctx, resolver, name)
		if err != nil {
			rec.warn("could not verify that %s accepts DMARC reports for %s: %v", ext, rec.PolicyDomain, err)
			continue
		}

		ok := false
		for _, txt := range txts {
			if strings.HasPrefix(txt, "v=DMARC1") {
				ok = true
				break
			}
		}

		if ok {
			authorized = append(authorized, ext)
		} else {
			rec.warn("%s has not authorized receiving DMARC reports for %s", ext, rec.PolicyDomain)
		}
	}

	if len(authorized) == len(externalDomains) {
		rec.pass("External reporting authorized by %s", strings.Join(authorized, ", "))
	}
}

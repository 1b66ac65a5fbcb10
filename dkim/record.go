package dkim

import "fmt"

// Record is the evaluated DKIM key record for one selector.
//
// Example record at selector1._domainkey.example.com:
//
//	v=DKIM1; k=rsa; p=MIGfMA0GCSqGSIb3...
type Record struct {
	// Selector is the selector label the record was resolved under.
	Selector string

	// Domain is the domain that was evaluated.
	Domain string

	// Raw is the TXT record text, empty when no record was found.
	Raw string

	// Version is the v tag value when present, normally "DKIM1".
	Version string

	// KeyType is the k tag value, defaulting to "rsa".
	KeyType string

	// PublicKey is the base64 key payload from the p tag. An empty p tag
	// means the key has been revoked.
	PublicKey string

	// PublicKeyPEM is the key payload wrapped in PEM armor, set whenever
	// the payload decodes as base64.
	PublicKeyPEM string

	// KeyInfo describes the decoded key. Nil when decoding failed.
	KeyInfo *KeyInfo

	// Flags is the t tag value, verbatim. A "y" flag marks testing mode.
	Flags string

	// Notes is the n tag value, verbatim.
	Notes string

	// HashAlgorithms is the h tag value, defaulting to "all".
	HashAlgorithms string

	// ServiceType and Granularity are the s/g tag values, verbatim.
	ServiceType string
	Granularity string

	// UnrecognizedTags lists tag names the evaluator does not know about.
	UnrecognizedTags []string

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

// Analysis aggregates the evaluated records for all checked selectors.
type Analysis struct {
	// Domain is the domain that was evaluated.
	Domain string

	// Provider names the mail provider the selectors were inferred from,
	// empty when the selectors were supplied by the caller.
	Provider string

	// Records holds one evaluated Record per selector, in selector order.
	Records []*Record

	// Failures lists problems that prevented any selector evaluation.
	Failures []string
}

func (a *Analysis) fail(format string, args ...any) {
	a.Failures = append(a.Failures, fmt.Sprintf(format, args...))
}

package dmarc

import "fmt"

// DMARC policy values for the p and sp tags.
const (
	PolicyNone       = "none"
	PolicyQuarantine = "quarantine"
	PolicyReject     = "reject"
)

// Record is the evaluated DMARC policy for one domain.
//
// Example record:
//
//	v=DMARC1; p=reject; rua=mailto:dmarc@example.com
type Record struct {
	// Domain is the domain that was evaluated.
	Domain string

	// PolicyDomain is the domain the record was found at. It differs from
	// Domain when the policy was inherited from the organizational domain.
	PolicyDomain string

	// Raw is the TXT record text, empty when no DMARC record was found.
	Raw string

	// RecordCount is the number of DMARC-looking TXT records at the
	// _dmarc name. More than one causes unexpected receiver behavior.
	RecordCount int

	// Version is the v tag value, normally "DMARC1".
	Version string

	// Policy is the p tag value. Required.
	Policy string

	// SubdomainPolicy is the sp tag value, defaulting to Policy when absent.
	SubdomainPolicy string

	// Percent is the pct tag value, 0-100, defaulting to 100.
	Percent int

	// DKIMAlignment and SPFAlignment are the adkim/aspf values, verbatim.
	DKIMAlignment string
	SPFAlignment  string

	// ReportFormat and ReportInterval are the rf/ri values, verbatim.
	ReportFormat   string
	ReportInterval string

	// ReportingEmails are the aggregate report (rua) mailto addresses.
	ReportingEmails []string

	// ForensicEmails are the failure report (ruf) mailto addresses.
	ForensicEmails []string

	// FailureReportOptions is the fo tag value, verbatim.
	FailureReportOptions string

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

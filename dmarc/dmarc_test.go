package dmarc

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/synqronlabs/osprey/dns"
)

func hasMessage(msgs []string, substr string) bool {
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func TestEvaluateStrictRecord(t *testing.T) {
	r := dns.MockResolver{
		Records: map[string][]string{
			"TXT _dmarc.example.com.": {`"v=DMARC1; p=reject; rua=mailto:dmarc@example.com; pct=100"`},
		},
	}

	rec := Evaluate(context.Background(), r, "example.com")

	if rec.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1", rec.RecordCount)
	}
	if rec.Policy != PolicyReject {
		t.Errorf("Policy = %q, want %q", rec.Policy, PolicyReject)
	}
	if rec.SubdomainPolicy != PolicyReject {
		t.Errorf("SubdomainPolicy = %q, want %q (inherited from p)", rec.SubdomainPolicy, PolicyReject)
	}
	if rec.Percent != 100 {
		t.Errorf("Percent = %d, want 100", rec.Percent)
	}
	if !hasMessage(rec.Passes, "Policy is sufficiently strict") {
		t.Errorf("Passes = %v, want policy pass", rec.Passes)
	}
	if !hasMessage(rec.Passes, "Aggregate reports are being sent") {
		t.Errorf("Passes = %v, want aggregate reporting pass", rec.Passes)
	}
	if len(rec.Failures) != 0 {
		t.Errorf("Failures = %v, want none", rec.Failures)
	}
	if want := []string{"dmarc@example.com"}; !reflect.DeepEqual(rec.ReportingEmails, want) {
		t.Errorf("ReportingEmails = %v, want %v", rec.ReportingEmails, want)
	}
}

func TestEvaluatePolicySeverity(t *testing.T) {
	tests := []struct {
		name   string
		record string
		check  func(t *testing.T, rec *Record)
	}{
		{
			name:   "none is a failure",
			record: `"v=DMARC1; p=none"`,
			check: func(t *testing.T, rec *Record) {
				if !hasMessage(rec.Failures, "Policy is not enforced") {
					t.Errorf("Failures = %v, want unenforced policy failure", rec.Failures)
				}
			},
		},
		{
			name:   "quarantine is a warning",
			record: `"v=DMARC1; p=quarantine"`,
			check: func(t *testing.T, rec *Record) {
				if !hasMessage(rec.Warnings, "only quarantines") {
					t.Errorf("Warnings = %v, want quarantine warning", rec.Warnings)
				}
				if hasMessage(rec.Failures, "Policy") {
					t.Errorf("Failures = %v, want no policy failure", rec.Failures)
				}
			},
		},
		{
			name:   "invalid policy is a failure",
			record: `"v=DMARC1; p=observe"`,
			check: func(t *testing.T, rec *Record) {
				if !hasMessage(rec.Failures, `Invalid DMARC policy "observe"`) {
					t.Errorf("Failures = %v, want invalid policy failure", rec.Failures)
				}
			},
		},
		{
			name:   "lax subdomain policy reported separately",
			record: `"v=DMARC1; p=reject; sp=none"`,
			check: func(t *testing.T, rec *Record) {
				if !hasMessage(rec.Passes, "Policy is sufficiently strict") {
					t.Errorf("Passes = %v, want policy pass", rec.Passes)
				}
				if !hasMessage(rec.Failures, "Subdomain policy is not enforced") {
					t.Errorf("Failures = %v, want subdomain policy failure", rec.Failures)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := dns.MockResolver{
				Records: map[string][]string{
					"TXT _dmarc.example.com.": {tt.record},
				},
			}
			tt.check(t, Evaluate(context.Background(), r, "example.com"))
		})
	}
}

func TestEvaluatePercent(t *testing.T) {
	tests := []struct {
		name    string
		record  string
		percent int
		warn    string
		fail    string
	}{
		{
			name:    "partial coverage warns",
			record:  `"v=DMARC1; p=reject; pct=50"`,
			percent: 50,
			warn:    "Not all emails will be processed",
		},
		{
			name:    "out of range fails",
			record:  `"v=DMARC1; p=reject; pct=150"`,
			percent: 100,
			fail:    `Percentage must be between 1 and 100, got "150"`,
		},
		{
			name:    "zero fails",
			record:  `"v=DMARC1; p=reject; pct=0"`,
			percent: 100,
			fail:    "Percentage must be between 1 and 100",
		},
		{
			name:    "non-numeric fails",
			record:  `"v=DMARC1; p=reject; pct=half"`,
			percent: 100,
			fail:    "Percentage must be between 1 and 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := dns.MockResolver{
				Records: map[string][]string{
					"TXT _dmarc.example.com.": {tt.record},
				},
			}

			rec := Evaluate(context.Background(), r, "example.com")

			if rec.Percent != tt.percent {
				t.Errorf("Percent = %d, want %d", rec.Percent, tt.percent)
			}
			if tt.warn != "" && !hasMessage(rec.Warnings, tt.warn) {
				t.Errorf("Warnings = %v, want %q", rec.Warnings, tt.warn)
			}
			if tt.fail != "" && !hasMessage(rec.Failures, tt.fail) {
				t.Errorf("Failures = %v, want %q", rec.Failures, tt.fail)
			}
		})
	}
}

func TestEvaluateNoRecord(t *testing.T) {
	r := dns.MockResolver{}

	rec := Evaluate(context.Background(), r, "example.com")

	if rec.RecordCount != 0 {
		t.Errorf("RecordCount = %d, want 0", rec.RecordCount)
	}
	if !hasMessage(rec.Failures, "does not resolve a DMARC record") {
		t.Errorf("Failures = %v, want missing record failure", rec.Failures)
	}
	if len(rec.Passes) != 0 {
		t.Errorf("Passes = %v, want none", rec.Passes)
	}
}

func TestEvaluateOrganizationalFallback(t *testing.T) {
	r := dns.MockResolver{
		Records: map[string][]string{
			"TXT _dmarc.example.com.": {`"v=DMARC1; p=reject"`},
		},
	}

	rec := Evaluate(context.Background(), r, "mail.corp.example.com")

	if rec.PolicyDomain != "example.com" {
		t.Errorf("PolicyDomain = %q, want example.com", rec.PolicyDomain)
	}
	if !hasMessage(rec.Warnings, "policy is inherited from example.com") {
		t.Errorf("Warnings = %v, want inheritance warning", rec.Warnings)
	}
	if rec.Policy != PolicyReject {
		t.Errorf("Policy = %q, want %q", rec.Policy, PolicyReject)
	}
}

func TestEvaluateMultipleRecords(t *testing.T) {
	r := dns.MockResolver{
		Records: map[string][]string{
			"TXT _dmarc.example.com.": {
				`"v=DMARC1; p=reject"`,
				`"v=DMARC1; p=none"`,
			},
		},
	}

	rec := Evaluate(context.Background(), r, "example.com")

	if rec.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", rec.RecordCount)
	}
	if !hasMessage(rec.Warnings, "may cause unexpected behavior") {
		t.Errorf("Warnings = %v, want multiple record warning", rec.Warnings)
	}
	// Only the first record is evaluated.
	if rec.Policy != PolicyReject {
		t.Errorf("Policy = %q, want %q", rec.Policy, PolicyReject)
	}
}

func TestEvaluateVersionTag(t *testing.T) {
	r := dns.MockResolver{
		Records: map[string][]string{
			"TXT _dmarc.example.com.": {`"v=DMARC2; p=reject"`},
		},
	}

	rec := Evaluate(context.Background(), r, "example.com")

	if !hasMessage(rec.Failures, "v=DMARC1 must be the first tag") {
		t.Errorf("Failures = %v, want version tag failure", rec.Failures)
	}
}

func TestEvaluateReportAddresses(t *testing.T) {
	t.Run("non-mailto address rejected", func(t *testing.T) {
		r := dns.MockResolver{
			Records: map[string][]string{
				"TXT _dmarc.example.com.": {`"v=DMARC1; p=reject; rua=https://example.com/dmarc"`},
			},
		}

		rec := Evaluate(context.Background(), r, "example.com")

		if !hasMessage(rec.Failures, "must use the mailto scheme") {
			t.Errorf("Failures = %v, want mailto scheme failure", rec.Failures)
		}
		if !hasMessage(rec.Warnings, "Aggregate reports are not being collected") {
			t.Errorf("Warnings = %v, want missing aggregate reporting warning", rec.Warnings)
		}
	})

	t.Run("size limit suffix stripped", func(t *testing.T) {
		r := dns.MockResolver{
			Records: map[string][]string{
				"TXT _dmarc.example.com.": {`"v=DMARC1; p=reject; rua=mailto:dmarc@example.com!10m"`},
			},
		}

		rec := Evaluate(context.Background(), r, "example.com")

		if want := []string{"dmarc@example.com"}; !reflect.DeepEqual(rec.ReportingEmails, want) {
			t.Errorf("ReportingEmails = %v, want %v", rec.ReportingEmails, want)
		}
	})
}

func TestEvaluateExternalReporting(t *testing.T) {
	t.Run("authorized", func(t *testing.T) {
		r := dns.MockResolver{
			Records: map[string][]string{
				"TXT _dmarc.example.com.":                           {`"v=DMARC1; p=reject; rua=mailto:reports@collector.example"`},
				"TXT example.com._report._dmarc.collector.example.": {`"v=DMARC1"`},
			},
		}

		rec := Evaluate(context.Background(), r, "example.com")

		if !hasMessage(rec.Passes, "External reporting authorized by collector.example") {
			t.Errorf("Passes = %v, want external authorization pass", rec.Passes)
		}
	})

	t.Run("not authorized", func(t *testing.T) {
		r := dns.MockResolver{
			Records: map[string][]string{
				"TXT _dmarc.example.com.": {`"v=DMARC1; p=reject; rua=mailto:reports@collector.example"`},
			},
		}

		rec := Evaluate(context.Background(), r, "example.com")

		if !hasMessage(rec.Warnings, "has not authorized receiving DMARC reports for example.com") {
			t.Errorf("Warnings = %v, want authorization warning", rec.Warnings)
		}
		if hasMessage(rec.Passes, "External reporting authorized") {
			t.Errorf("Passes = %v, want no authorization pass", rec.Passes)
		}
	})

	t.Run("verification failure", func(t *testing.T) {
		r := dns.MockResolver{
			Records: map[string][]string{
				"TXT _dmarc.example.com.": {`"v=DMARC1; p=reject; rua=mailto:reports@collector.example"`},
			},
			Fail: []string{"TXT example.com._report._dmarc.collector.example."},
		}

		rec := Evaluate(context.Background(), r, "example.com")

		if !hasMessage(rec.Warnings, "could not verify that collector.example accepts DMARC reports") {
			t.Errorf("Warnings = %v, want verification warning", rec.Warnings)
		}
	})
}

func TestEvaluateForensicOptions(t *testing.T) {
	tests := []struct {
		name   string
		record string
		pass   string
		warn   string
		fail   string
	}{
		{
			name:   "fo=1 passes",
			record: `"v=DMARC1; p=reject; ruf=mailto:forensic@example.com; fo=1"`,
			pass:   "sent on any authentication failure",
		},
		{
			name:   "default fo warns",
			record: `"v=DMARC1; p=reject; ruf=mailto:forensic@example.com"`,
			warn:   "only sent when all authentication mechanisms fail",
		},
		{
			name:   "invalid fo fails",
			record: `"v=DMARC1; p=reject; ruf=mailto:forensic@example.com; fo=x"`,
			fail:   `Invalid DMARC fo value "x"`,
		},
		{
			name:   "fo ignored without forensic addresses",
			record: `"v=DMARC1; p=reject; fo=x"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := dns.MockResolver{
				Records: map[string][]string{
					"TXT _dmarc.example.com.": {tt.record},
				},
			}

			rec := Evaluate(context.Background(), r, "example.com")

			if tt.pass != "" && !hasMessage(rec.Passes, tt.pass) {
				t.Errorf("Passes = %v, want %q", rec.Passes, tt.pass)
			}
			if tt.warn != "" && !hasMessage(rec.Warnings, tt.warn) {
				t.Errorf("Warnings = %v, want %q", rec.Warnings, tt.warn)
			}
			if tt.fail != "" && !hasMessage(rec.Failures, tt.fail) {
				t.Errorf("Failures = %v, want %q", rec.Failures, tt.fail)
			}
			if tt.pass == "" && tt.warn == "" && tt.fail == "" {
				if hasMessage(rec.Failures, "fo") {
					t.Errorf("Failures = %v, want no fo failure", rec.Failures)
				}
			}
		})
	}
}

func TestEvaluateReportFormat(t *testing.T) {
	r := dns.MockResolver{
		Records: map[string][]string{
			"TXT _dmarc.example.com.": {`"v=DMARC1; p=reject; rf=iodef"`},
		},
	}

	rec := Evaluate(context.Background(), r, "example.com")

	if !hasMessage(rec.Failures, `Unsupported DMARC report format "iodef"`) {
		t.Errorf("Failures = %v, want report format failure", rec.Failures)
	}
}

func TestEvaluateMissingPolicyTag(t *testing.T) {
	r := dns.MockResolver{
		Records: map[string][]string{
			"TXT _dmarc.example.com.": {`"v=DMARC1; rua=mailto:dmarc@example.com"`},
		},
	}

	rec := Evaluate(context.Background(), r, "example.com")

	if !hasMessage(rec.Failures, "missing the required p tag") {
		t.Errorf("Failures = %v, want missing p tag failure", rec.Failures)
	}
}

func TestEvaluateTransportFailure(t *testing.T) {
	r := dns.MockResolver{Fail: []string{"TXT _dmarc.example.com."}}

	rec := Evaluate(context.Background(), r, "example.com")

	if !hasMessage(rec.Failures, "could not resolve DMARC record") {
		t.Errorf("Failures = %v, want transport failure", rec.Failures)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	r := dns.MockResolver{
		Records: map[string][]string{
			"TXT _dmarc.example.com.": {`"v=DMARC1; p=quarantine; pct=50; rua=mailto:dmarc@example.com"`},
		},
	}

	first := Evaluate(context.Background(), r, "example.com")
	second := Evaluate(context.Background(), r, "example.com")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated evaluation diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

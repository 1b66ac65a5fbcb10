package osprey

import (
	"context"
	"strings"
	"testing"

	"github.com/synqronlabs/osprey/dns"
)

const testDNSKEY = "257 3 13 mdsswUyr3DPW132mOi8V9xESWE8jTo0dxCjjnopKl+GqJxpVXckHAeF+KkxLbxILfDLUT0rAK9iUzy1L53eKGQ=="

func hasMessage(msgs []string, substr string) bool {
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func TestEvaluateDNSSEC(t *testing.T) {
	t.Run("validated", func(t *testing.T) {
		r := dns.MockResolver{
			Records: map[string][]string{
				"DNSKEY example.com.": {testDNSKEY, "256 3 13 P2fGXV5DcDHRy1aKtEWQ0A=="},
			},
			AllAuthentic: true,
		}

		res := EvaluateDNSSEC(context.Background(), r, "example.com")

		if !res.Enabled || !res.Authenticated {
			t.Errorf("Enabled = %t, Authenticated = %t, want both true", res.Enabled, res.Authenticated)
		}
		if len(res.Keys) != 2 {
			t.Fatalf("len(Keys) = %d, want 2", len(res.Keys))
		}
		if !res.Keys[0].KeySigning() {
			t.Errorf("Keys[0].KeySigning() = false, want true for flags 257")
		}
		if res.Keys[1].KeySigning() {
			t.Errorf("Keys[1].KeySigning() = true, want false for flags 256")
		}
		if res.Keys[0].AlgorithmName != "ECDSAP256SHA256" {
			t.Errorf("AlgorithmName = %q, want ECDSAP256SHA256", res.Keys[0].AlgorithmName)
		}
		if !hasMessage(res.Passes, "DNSSEC is enabled and validated") {
			t.Errorf("Passes = %v, want validation pass", res.Passes)
		}
	})

	t.Run("not authenticated", func(t *testing.T) {
		r := dns.MockResolver{
			Records: map[string][]string{
				"DNSKEY example.com.": {testDNSKEY},
			},
		}

		res := EvaluateDNSSEC(context.Background(), r, "example.com")

		if !res.Enabled || res.Authenticated {
			t.Errorf("Enabled = %t, Authenticated = %t, want enabled only", res.Enabled, res.Authenticated)
		}
		if !hasMessage(res.Warnings, "did not authenticate") {
			t.Errorf("Warnings = %v, want authentication warning", res.Warnings)
		}
	})

	t.Run("not enabled", func(t *testing.T) {
		res := EvaluateDNSSEC(context.Background(), dns.MockResolver{}, "example.com")

		if res.Enabled {
			t.Error("Enabled = true, want false")
		}
		if !hasMessage(res.Failures, "DNSSEC is not enabled") {
			t.Errorf("Failures = %v, want not-enabled failure", res.Failures)
		}
	})

	t.Run("nxdomain", func(t *testing.T) {
		r := dns.MockResolver{NXDomain: []string{"DNSKEY example.com."}}

		res := EvaluateDNSSEC(context.Background(), r, "example.com")

		if !hasMessage(res.Failures, "DNSSEC is not enabled") {
			t.Errorf("Failures = %v, want not-enabled failure", res.Failures)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		r := dns.MockResolver{Fail: []string{"DNSKEY example.com."}}

		res := EvaluateDNSSEC(context.Background(), r, "example.com")

		if !hasMessage(res.Failures, "could not resolve DNSKEY records") {
			t.Errorf("Failures = %v, want transport failure", res.Failures)
		}
	})

	t.Run("malformed rdata", func(t *testing.T) {
		r := dns.MockResolver{
			Records: map[string][]string{
				"DNSKEY example.com.": {"garbage", testDNSKEY},
			},
		}

		res := EvaluateDNSSEC(context.Background(), r, "example.com")

		if len(res.Keys) != 1 {
			t.Errorf("len(Keys) = %d, want 1", len(res.Keys))
		}
		if !hasMessage(res.Warnings, "could not parse DNSKEY record") {
			t.Errorf("Warnings = %v, want parse warning", res.Warnings)
		}
	})
}

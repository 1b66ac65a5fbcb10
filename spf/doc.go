// Package spf validates a domain's published SPF policy (RFC 7208).
//
// Unlike a mail-time SPF verifier, this package does not check a sending IP
// against the policy. It resolves the policy itself: the full include and
// redirect tree is walked, DNS-querying mechanisms are counted against the
// 10-lookup budget, published IP addresses are collected, and problems are
// reported as pass/warning/failure messages on the returned Record rather
// than as errors.
//
//	rec := spf.Evaluate(ctx, resolver, "example.com", spf.Options{})
//	for _, f := range rec.Failures {
//	    fmt.Println(f)
//	}
//
// Evaluate always returns a fully populated Record, even for domains with no
// SPF record at all, so callers can render partial results.
package spf

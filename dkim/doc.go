// Package dkim validates published DKIM key records (RFC 6376 Section 3.6.1).
//
// Unlike a mail-time verifier, this package never sees a signed message. It
// resolves <selector>._domainkey.<domain> TXT records, parses their tag-value
// pairs, decodes the embedded public key, and reports on key strength and
// configuration. Every evaluation returns a fully populated Analysis; problems
// are reported through the per-selector Failures lists, never as errors.
package dkim

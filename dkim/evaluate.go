package dkim

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/pem"
	"strings"

	"github.com/synqronlabs/osprey/dns"
)

// Evaluate resolves and validates the DKIM key records for a domain, one per
// selector. Selectors typically come from the mail provider profile matched
// against the domain's MX records.
//
// It always returns a fully populated Analysis; resolution and key problems
// are reported through the per-selector Failures lists, never as an error.
func Evaluate(ctx context.Context, resolver dns.Resolver, domain string, selectors []string) *Analysis {
	analysis := &Analysis{Domain: domain}

	if len(selectors) == 0 {
		analysis.fail("no DKIM selectors were supplied for %s and none could be inferred", domain)
		return analysis
	}

	for _, selector := range selectors {
		analysis.Records = append(analysis.Records, evaluateSelector(ctx, resolver, domain, selector))
	}
	return analysis
}

// evaluateSelector resolves and validates a single selector's key record.
func evaluateSelector(ctx context.Context, resolver dns.Resolver, domain, selector string) *Record {
	rec := &Record{
		Selector:       selector,
		Domain:         domain,
		KeyType:        "rsa",
		HashAlgorithms: "all",
	}

	name := selector + "._domainkey." + domain
	txts, _, err := dns.LookupTXT(ctx, resolver, name)
	if err != nil {
		rec.fail("could not resolve DKIM record for selector %s: %v", selector, err)
		return rec
	}
	if len(txts) == 0 {
		rec.fail("selector %s does not resolve a DKIM record at %s", selector, name)
		return rec
	}

	// Long keys split across several TXT answers at one name surface the
	// complete record in the final answer, so that one is used.
	rec.Raw = txts[len(txts)-1]

	evaluateTags(rec)

	if len(rec.Failures) == 0 {
		rec.pass("No errors detected for selector %s", selector)
	}
	return rec
}

// evaluateTags parses and validates the record's tag-value pairs.
func evaluateTags(rec *Record) {
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

	for i, t := range tags {
		switch strings.ToLower(t.name) {
		case "v":
			rec.Version = t.value
			if i != 0 || t.value != "DKIM1" {
				rec.fail("v=DKIM1 must be the first tag in the DKIM record for selector %s", rec.Selector)
			}

		case "p":
			rec.PublicKey = stripWhitespace(t.value)

		case "k":
			rec.KeyType = strings.ToLower(t.value)

		case "t":
			rec.Flags = t.value
			if hasFlag(t.value, "y") {
				rec.warn("Selector %s is in DKIM testing mode (t=y)", rec.Selector)
			}

		case "n":
			rec.Notes = t.value

		case "h":
			rec.HashAlgorithms = t.value

		case "s":
			rec.ServiceType = t.value

		case "g":
			rec.Granularity = t.value

		default:
			rec.UnrecognizedTags = append(rec.UnrecognizedTags, t.name)
		}
	}

	if len(rec.UnrecognizedTags) > 0 {
		rec.warn("DKIM record for selector %s contains unrecognized tags: %s",
			rec.Selector, strings.Join(rec.UnrecognizedTags, ", "))
	}

	if rec.PublicKey == "" {
		rec.fail("DKIM record for selector %s has an empty public key; the key may be revoked", rec.Selector)
		return
	}

	evaluateKey(rec)
}

// evaluateKey decodes the p tag payload and validates key strength.
func evaluateKey(rec *Record) {
	der, err := base64.StdEncoding.DecodeString(rec.PublicKey)
	if err != nil {
		rec.fail("could not decode the DKIM public key for selector %s: %v", rec.Selector, err)
		return
	}

	rec.PublicKeyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	// Ed25519 keys are published as the raw 32 byte key (RFC 8463), not as
	// a SubjectPublicKeyInfo structure.
	if rec.KeyType == "ed25519" {
		if len(der) != ed25519.PublicKeySize {
			rec.fail("DKIM ed25519 key for selector %s must be %d bytes, got %d",
				rec.Selector, ed25519.PublicKeySize, len(der))
			return
		}
		rec.KeyInfo = &KeyInfo{Algorithm: "Ed25519", KeySizeBits: 256}
		rec.pass("DKIM key for selector %s is a 256 bit Ed25519 key", rec.Selector)
		return
	}

	info, err := DecodeRSAPublicKey(der)
	if err != nil {
		rec.fail("could not parse the DKIM public key for selector %s: %v", rec.Selector, err)
		return
	}
	rec.KeyInfo = info

	if !strings.EqualFold(rec.KeyType, info.Algorithm) {
		rec.warn("Declared key type %q does not match the decoded %s key for selector %s",
			rec.KeyType, info.Algorithm, rec.Selector)
	}

	if info.KeySizeBits < 1024 {
		rec.fail("DKIM key for selector %s is less than 1024 bit (%d bit)", rec.Selector, info.KeySizeBits)
		return
	}
	rec.pass("DKIM key for selector %s is a %d bit %s key", rec.Selector, info.KeySizeBits, info.Algorithm)
}

// stripWhitespace removes the spaces a long base64 payload can pick up when
// its TXT record chunks are joined.
func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
}

// hasFlag reports whether a colon-separated flag list contains flag.
func hasFlag(list, flag string) bool {
	for _, f := range strings.Split(list, ":") {
		if strings.EqualFold(strings.TrimSpace(f), flag) {
			return true
		}
	}
	return false
}

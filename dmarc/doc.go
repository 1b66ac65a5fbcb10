// Package dmarc validates a domain's published DMARC policy (RFC 7489).
//
// The policy record at _dmarc.<domain> is parsed as tag-value pairs and each
// tag is validated against its policy rules. External report recipients are
// cross-checked for authorization via <domain>._report._dmarc.<recipient>
// lookups. Problems are reported as pass/warning/failure messages on the
// returned Record; Evaluate never returns an error.
package dmarc

package dns

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// MockResolver is a Resolver used for testing.
//
// Records maps "TYPE name." keys (type in upper case, name as FQDN with
// trailing dot, e.g. "TXT example.com.") to answer data values. A missing or
// empty entry resolves to "no record" (nil Result).
type MockResolver struct {
	Records map[string][]string

	// NXDomain contains keys that resolve with status NXDOMAIN.
	NXDomain []string

	// Fail contains keys that return a transport error.
	Fail []string

	// AllAuthentic sets the default AuthenticData value in responses.
	// Overridden per key by Authentic and Inauthentic.
	AllAuthentic bool
	Authentic    []string
	Inauthentic  []string
}

var _ Resolver = MockResolver{}

// mockKey builds the lookup key for a query.
func mockKey(name string, qtype uint16) string {
	return TypeString(qtype) + " " + ensureFQDN(name)
}

// ensureFQDN ensures the name ends with a dot.
func ensureFQDN(name string) string {
	if !strings.HasSuffix(name, ".") {
		return name + "."
	}
	return name
}

// Resolve serves the query from the configured maps.
func (r MockResolver) Resolve(ctx context.Context, name string, qtype uint16) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	key := mockKey(name, qtype)

	if slices.Contains(r.Fail, key) {
		return nil, fmt.Errorf("%w: mock failure for %s", ErrTransport, key)
	}

	authentic := r.AllAuthentic
	if slices.Contains(r.Authentic, key) {
		authentic = true
	}
	if slices.Contains(r.Inauthentic, key) {
		authentic = false
	}

	if slices.Contains(r.NXDomain, key) {
		return &Result{Status: StatusNXDomain, AuthenticData: authentic}, nil
	}

	data := r.Records[key]
	if len(data) == 0 {
		return nil, nil
	}

	answers := make([]Answer, 0, len(data))
	for _, d := range data {
		answers = append(answers, Answer{
			Name: ensureFQDN(name),
			Type: qtype,
			TTL:  300,
			Data: d,
		})
	}

	return &Result{Status: StatusNoError, Answers: answers, AuthenticData: authentic}, nil
}

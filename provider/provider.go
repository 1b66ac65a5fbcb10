// Package provider infers a domain's mail provider from its MX records.
//
// A catalog of provider profiles maps MX hostname patterns to the SPF include
// and DKIM selectors that provider is expected to publish. The match result
// feeds expected-value hints into the SPF and DKIM evaluators.
package provider

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/synqronlabs/osprey/dns"
)

var (
	// ErrBadProfile is returned when a profile document cannot be parsed.
	ErrBadProfile = errors.New("provider: bad profile")
)

// Profile describes one mail provider's DNS signature.
//
// The JSON field names match the on-disk profile document format.
type Profile struct {
	// Name is the human-readable provider name.
	Name string `json:"Name"`

	// MxMatch is a regular expression tested against each MX hostname.
	// Named capture groups can be referenced from SpfInclude.
	MxMatch string `json:"MxMatch"`

	// SpfInclude is the SPF include domain the provider publishes. It may
	// contain {capture} placeholders filled from MxMatch groups named in
	// SpfReplace.
	SpfInclude string `json:"SpfInclude"`

	// SpfReplace lists the capture group names substituted into SpfInclude.
	SpfReplace []string `json:"SpfReplace,omitempty"`

	// Selectors are the DKIM selectors the provider signs with.
	Selectors []string `json:"Selectors,omitempty"`
}

// compiledProfile pairs a Profile with its compiled MX pattern.
type compiledProfile struct {
	Profile
	pattern *regexp.Regexp
}

// Catalog is an ordered collection of provider profiles. Earlier profiles
// take precedence when several match the same hostname.
type Catalog struct {
	profiles []compiledProfile
}

//go:embed profiles/*.json
var defaultProfiles embed.FS

// Default returns the built-in provider catalog.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(defaultProfiles, "profiles")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir loads a catalog from a directory of profile JSON documents.
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir))
}

// Load loads a catalog from every .json file at the root of fsys. Files are
// read in lexical name order, which fixes the catalog precedence.
func Load(fsys fs.FS) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("provider: reading catalog: %w", err)
	}

	c := &Catalog{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("provider: reading %s: %w", entry.Name(), err)
		}

		var p Profile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadProfile, entry.Name(), err)
		}
		if p.MxMatch == "" {
			return nil, fmt.Errorf("%w: %s: missing MxMatch", ErrBadProfile, entry.Name())
		}

		pattern, err := regexp.Compile(p.MxMatch)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadProfile, entry.Name(), err)
		}

		c.profiles = append(c.profiles, compiledProfile{Profile: p, pattern: pattern})
	}
	return c, nil
}

// Len returns the number of profiles in the catalog.
func (c *Catalog) Len() int {
	return len(c.profiles)
}

// Result is the outcome of matching a domain's MX records against a catalog.
type Result struct {
	// MXRecords are the domain's MX records sorted ascending by priority.
	MXRecords []dns.MX

	// Provider is the matched profile, nil when nothing matched.
	Provider *Profile

	// ExpectedSPFInclude is the include domain the matched provider is
	// expected to publish, with capture placeholders filled in.
	ExpectedSPFInclude string

	// Selectors are the matched provider's DKIM selectors.
	Selectors []string
}

// Match resolves the domain's MX records and tests them against the catalog.
// Hostnames are tried in priority order and profiles in catalog order; the
// first match wins.
//
// A domain without MX records yields a Result with no provider. Only a
// transport failure returns an error.
func (c *Catalog) Match(ctx context.Context, resolver dns.Resolver, domain string) (*Result, error) {
	records, _, err := dns.LookupMX(ctx, resolver, domain)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(records, func(a, b dns.MX) int {
		return a.Priority - b.Priority
	})

	res := &Result{MXRecords: records}
	for _, mx := range records {
		host := strings.ToLower(mx.Hostname)
		for i := range c.profiles {
			p := &c.profiles[i]

			m := p.pattern.FindStringSubmatch(host)
			if m == nil {
				continue
			}

			res.Provider = &p.Profile
			res.ExpectedSPFInclude = p.expandInclude(m)
			res.Selectors = p.Selectors
			return res, nil
		}
	}
	return res, nil
}

// expandInclude fills the {capture} placeholders in SpfInclude from the
// submatches of a successful MxMatch.
func (p *compiledProfile) expandInclude(submatches []string) string {
	include := p.SpfInclude
	for _, name := range p.SpfReplace {
		idx := p.pattern.SubexpIndex(name)
		if idx < 0 || idx >= len(submatches) {
			continue
		}
		include = strings.ReplaceAll(include, "{"+name+"}", submatches[idx])
	}
	return include
}

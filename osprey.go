// Osprey validates a domain's email-authentication posture.
//
// It resolves and analyzes the SPF, DMARC, and DKIM records a domain
// publishes, checks whether DNSSEC is in effect, and infers the domain's mail
// provider from its MX records to know which SPF include and DKIM selectors
// to expect. All DNS resolution goes through a DNS-over-HTTPS backend.
//
// # Analyzer
//
// Run every check for a domain in one call:
//
//	analyzer, err := osprey.NewAnalyzer(osprey.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report := analyzer.Analyze(ctx, "example.com")
//	for _, f := range report.SPF.Failures {
//	    fmt.Println("SPF:", f)
//	}
//
// Every evaluator returns a fully populated result whose Passes, Warnings,
// and Failures lists carry the findings; evaluation never returns an error.
//
// # Individual evaluators
//
// Each check is also available on its own:
//
//	rec := spf.Evaluate(ctx, resolver, "example.com", spf.Options{})
//	policy := dmarc.Evaluate(ctx, resolver, "example.com")
//	keys := dkim.Evaluate(ctx, resolver, "example.com", []string{"selector1"})
//	sec := osprey.EvaluateDNSSEC(ctx, resolver, "example.com")
package osprey

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/synqronlabs/osprey/dkim"
	"github.com/synqronlabs/osprey/dmarc"
	"github.com/synqronlabs/osprey/dns"
	"github.com/synqronlabs/osprey/provider"
	"github.com/synqronlabs/osprey/spf"
)

// Config contains configuration options for an Analyzer.
type Config struct {
	// Resolver performs all DNS resolution.
	// Default: a DNS-over-HTTPS resolver against the Google backend.
	Resolver dns.Resolver

	// Catalog is the mail provider catalog used to infer expected SPF
	// includes and DKIM selectors.
	// Default: the built-in catalog.
	Catalog *provider.Catalog

	// Selectors overrides provider-inferred DKIM selectors when set.
	Selectors []string

	// Logger receives debug logging. Default: discard.
	Logger *slog.Logger
}

// Analyzer runs every posture check for a domain.
type Analyzer struct {
	resolver  dns.Resolver
	catalog   *provider.Catalog
	selectors []string
	log       *slog.Logger
}

// NewAnalyzer creates an Analyzer from the given configuration.
func NewAnalyzer(config Config) (*Analyzer, error) {
	resolver := config.Resolver
	if resolver == nil {
		r, err := dns.NewDoHResolver(dns.DoHConfig{Logger: config.Logger})
		if err != nil {
			return nil, err
		}
		resolver = r
	}

	catalog := config.Catalog
	if catalog == nil {
		c, err := provider.Default()
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	log := config.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Analyzer{
		resolver:  resolver,
		catalog:   catalog,
		selectors: config.Selectors,
		log:       log,
	}, nil
}

// Report is the aggregate result of analyzing one domain.
type Report struct {
	// ID is a unique identifier for this report.
	ID string

	// Domain is the domain that was analyzed.
	Domain string

	// GeneratedAt is when the analysis ran, in UTC.
	GeneratedAt time.Time

	// Provider is the MX/provider match result. Nil when MX resolution
	// failed at the transport level.
	Provider *provider.Result

	// Results of the individual evaluators.
	SPF    *spf.Record
	DMARC  *dmarc.Record
	DKIM   *dkim.Analysis
	DNSSEC *DNSSECResult
}

// Analyze runs the SPF, DMARC, DKIM, and DNSSEC checks for a domain.
//
// The provider match runs first so its hints can feed the SPF and DKIM
// evaluators; the four evaluators then run concurrently. Analyze always
// returns a fully populated Report.
func (a *Analyzer) Analyze(ctx context.Context, domain string) *Report {
	report := &Report{
		ID:          ulid.Make().String(),
		Domain:      domain,
		GeneratedAt: time.Now().UTC(),
	}

	a.log.Debug("analyzing domain", "domain", domain, "report_id", report.ID)

	var (
		expectedInclude string
		selectors       = a.selectors
		dkimProvider    string
	)

	match, err := a.catalog.Match(ctx, a.resolver, domain)
	if err != nil {
		a.log.Warn("provider match failed", "domain", domain, "error", err)
	} else {
		report.Provider = match
		expectedInclude = match.ExpectedSPFInclude
		if len(selectors) == 0 {
			selectors = match.Selectors
			if match.Provider != nil && len(selectors) > 0 {
				dkimProvider = match.Provider.Name
			}
		}
		if match.Provider != nil {
			a.log.Debug("matched mail provider", "domain", domain, "provider", match.Provider.Name)
		}
	}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		report.SPF = spf.Evaluate(ctx, a.resolver, domain, spf.Options{
			ExpectedInclude: expectedInclude,
			Logger:          a.log,
		})
	}()
	go func() {
		defer wg.Done()
		report.DMARC = dmarc.Evaluate(ctx, a.resolver, domain)
	}()
	go func() {
		defer wg.Done()
		report.DKIM = dkim.Evaluate(ctx, a.resolver, domain, selectors)
		report.DKIM.Provider = dkimProvider
	}()
	go func() {
		defer wg.Done()
		report.DNSSEC = EvaluateDNSSEC(ctx, a.resolver, domain)
	}()

	wg.Wait()

	a.log.Debug("analysis complete",
		"domain", domain,
		"report_id", report.ID,
		"spf_failures", len(report.SPF.Failures),
		"dmarc_failures", len(report.DMARC.Failures),
	)
	return report
}

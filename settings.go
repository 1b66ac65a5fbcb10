package osprey

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/synqronlabs/osprey/dns"
	"github.com/synqronlabs/osprey/provider"
)

// Settings is the optional JSON configuration document. A missing document
// means defaults throughout.
//
// Example:
//
//	{
//	    "dns_backend": "cloudflare",
//	    "provider_dir": "/etc/osprey/providers",
//	    "dkim_selectors": ["selector1", "selector2"]
//	}
type Settings struct {
	// DNSBackend selects the DoH backend, "google" or "cloudflare".
	// Empty selects the default backend.
	DNSBackend string `json:"dns_backend,omitempty"`

	// ProviderDir points at a directory of provider profile documents that
	// replaces the built-in catalog. Empty keeps the built-in catalog.
	ProviderDir string `json:"provider_dir,omitempty"`

	// DKIMSelectors overrides provider-inferred DKIM selectors.
	DKIMSelectors []string `json:"dkim_selectors,omitempty"`
}

// LoadSettings reads a settings document from path. A missing file is not an
// error and yields default settings.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("osprey: reading settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("osprey: parsing settings %s: %w", path, err)
	}
	return &s, nil
}

// Analyzer builds an Analyzer from the settings.
func (s *Settings) Analyzer(logger *slog.Logger) (*Analyzer, error) {
	resolver, err := dns.NewDoHResolver(dns.DoHConfig{
		Backend: dns.Backend(s.DNSBackend),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	var catalog *provider.Catalog
	if s.ProviderDir != "" {
		catalog, err = provider.LoadDir(s.ProviderDir)
		if err != nil {
			return nil, err
		}
	}

	return NewAnalyzer(Config{
		Resolver:  resolver,
		Catalog:   catalog,
		Selectors: s.DKIMSelectors,
		Logger:    logger,
	})
}

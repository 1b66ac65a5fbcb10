package dns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Backend selects which DoH JSON endpoint to query. Both supported
// providers expose the same request and response shape.
type Backend string

const (
	// BackendGoogle queries https://dns.google/resolve.
	BackendGoogle Backend = "google"

	// BackendCloudflare queries https://cloudflare-dns.com/dns-query.
	BackendCloudflare Backend = "cloudflare"
)

// baseURL returns the query endpoint for the backend.
func (b Backend) baseURL() (string, error) {
	switch b {
	case BackendGoogle, "":
		return "https://dns.google/resolve", nil
	case BackendCloudflare:
		return "https://cloudflare-dns.com/dns-query", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, string(b))
}

// DoHConfig contains configuration for the DoH resolver.
type DoHConfig struct {
	// Backend selects the DoH provider. Default is BackendGoogle.
	Backend Backend

	// HTTPClient is the client used for queries. If nil, a client with a
	// 10 second timeout is used. No per-query timeout override exists
	// beyond the transport default.
	HTTPClient *http.Client

	// Logger receives debug output. If nil, nothing is logged.
	Logger *slog.Logger
}

// DoHResolver implements Resolver over a DNS-over-HTTPS JSON API.
type DoHResolver struct {
	base   string
	client *http.Client
	log    *slog.Logger
}

var _ Resolver = (*DoHResolver)(nil)

// NewDoHResolver creates a resolver for the configured backend.
func NewDoHResolver(config DoHConfig) (*DoHResolver, error) {
	base, err := config.Backend.baseURL()
	if err != nil {
		return nil, err
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	log := config.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &DoHResolver{base: base, client: client, log: log}, nil
}

// dohResponse is the JSON body returned by the DoH endpoints.
// Field names match the API implemented by https://dns.google/.
type dohResponse struct {
	Status  int      `json:"Status"`
	AD      bool     `json:"AD"`
	Comment string   `json:"Comment"`
	Answer  []Answer `json:"Answer"`
}

// Resolve issues a single query. See the Resolver interface for the
// (nil, nil) and error contracts.
func (r *DoHResolver) Resolve(ctx context.Context, name string, qtype uint16) (*Result, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("type", TypeString(qtype))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected HTTP status %d", ErrTransport, resp.StatusCode)
	}

	var body dohResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	r.log.Debug("doh query",
		"name", name,
		"type", TypeString(qtype),
		"status", RcodeString(body.Status),
		"answers", len(body.Answer))

	// NOERROR with an empty answer section is treated as "no record".
	if body.Status == StatusNoError && len(body.Answer) == 0 {
		return nil, nil
	}

	return &Result{
		Status:        body.Status,
		Answers:       body.Answer,
		AuthenticData: body.AD,
		Comment:       body.Comment,
	}, nil
}

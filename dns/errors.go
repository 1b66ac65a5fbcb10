package dns

import "errors"

// DNS resolution errors.
var (
	// ErrTransport indicates the DoH query could not be completed: a network
	// error, a non-2xx HTTP response, or an unreadable body.
	ErrTransport = errors.New("dns: transport failure")

	// ErrMalformedResponse indicates the DoH endpoint returned a body that
	// could not be decoded as a DNS JSON response.
	ErrMalformedResponse = errors.New("dns: malformed resolver response")

	// ErrUnknownBackend indicates an unrecognized DoH backend name.
	ErrUnknownBackend = errors.New("dns: unknown DoH backend")
)

// IsTransport reports whether err is a transport-level resolution failure,
// including malformed response bodies. Evaluators record these as failure
// entries rather than propagating them.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrMalformedResponse)
}

package provider

import "errors"

// Adapter failure taxonomy. Adapters wrap these with fmt.Errorf("...: %w")
// and the router classifies with errors.Is.
var (
	// ErrUnauthenticated means the provider rejected our credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRateLimited means the upstream refused the call for quota reasons.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnsupportedAsset means the provider cannot serve this instrument.
	ErrUnsupportedAsset = errors.New("unsupported asset")
	// ErrUpstreamUnavailable covers transport failures and timeouts.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMalformedResponse means the payload could not be normalized into
	// a series that passes schema validation.
	ErrMalformedResponse = errors.New("malformed response")
)

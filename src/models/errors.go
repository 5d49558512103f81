package models

import "errors"

// Error taxonomy shared by the aggregator, the services and the HTTP
// layer. Record-level data-quality problems (missing numeric field, null
// nested asset) never surface as errors; they are normalised to defaults
// by the coerce-on-read helpers. These sentinels cover the structural
// failures only.
var (
	// ErrNotFound: the requested portfolio/holding/asset does not exist
	// (or belongs to somebody else, which callers must not distinguish).
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument: a required identifier or parameter is missing or
	// malformed. Terminal; retrying the same request cannot succeed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUpstreamUnavailable: the raw data gateway's transport failed. The
	// underlying error is wrapped so callers can log it; retrying is
	// appropriate.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

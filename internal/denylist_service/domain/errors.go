package domain

import "errors"

var (
	// ErrNotFound is returned for lookups of absent or retired values and for
	// retiring a value that has no active entry.
	ErrNotFound = errors.New("denylist entry not found")
	// ErrUnknownCategory indicates a category name or code that does not exist.
	ErrUnknownCategory = errors.New("unknown denylist category")
	// ErrInvalidInput marks a token that cannot be turned into a canonical value.
	ErrInvalidInput = errors.New("invalid denylist input")
	// ErrFirstPartyDomain marks a domain on the allow-list.
	ErrFirstPartyDomain = errors.New("first-party domain cannot be denylisted")
	// ErrUnresolvable marks a channel token the directory could not resolve.
	ErrUnresolvable = errors.New("identity could not be resolved")
)

package initdata

import "errors"

var (
	ErrConfiguration    = errors.New("initdata: relay is not configured")
	ErrMissingSignature = errors.New("initdata: hash parameter is missing")
	ErrInvalidSignature = errors.New("initdata: invalid signature")
	ErrExpired          = errors.New("initdata: auth_date is too old")
)

// IsUnauthorized reports whether err was caused by the client's payload rather
// than by the server.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpired)
}

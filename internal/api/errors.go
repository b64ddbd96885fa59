package api

import "errors"

// Error taxonomy surfaced to the auth layer and its UI callers.
var (
	// ErrInvalidCredentials: the backend rejected the email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSecondFactorInvalid: the one-time code was wrong or expired.
	ErrSecondFactorInvalid = errors.New("invalid authentication code")

	// ErrSubscriptionExpired carries a machine-readable meaning end to
	// end so callers can show a dedicated message instead of a generic
	// failure banner.
	ErrSubscriptionExpired = errors.New("subscription expired")

	// ErrServer: the backend reported a server-side failure. The
	// backend's message, when distinguishable, is wrapped around this
	// sentinel and passed through verbatim.
	ErrServer = errors.New("server error")
)

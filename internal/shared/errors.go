package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Identity and session errors
	ErrIdentityUnavailable = fmt.Errorf("identity client unavailable")
	ErrAuthFailed          = fmt.Errorf("authentication failed")
	ErrNotConnected        = fmt.Errorf("not connected")
	ErrAlreadyConnected    = fmt.Errorf("already connected")
	ErrNoAuthFlow          = fmt.Errorf("no authentication flow in progress")
	ErrInvalidSnapshot     = fmt.Errorf("invalid session snapshot")
	ErrTimeout             = fmt.Errorf("operation timed out")

	// Remote store errors
	ErrObjectNotFound = fmt.Errorf("object not found")
	ErrRemoteWrite    = fmt.Errorf("remote write failed")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrProfileNotIndexed  = fmt.Errorf("profile not indexed")
	ErrProfileNotFound    = fmt.Errorf("profile not found")

	// Local cache errors
	ErrCacheMiss    = fmt.Errorf("cache entry not found")
	ErrCacheCorrupt = fmt.Errorf("cache entry corrupt")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidURL      = fmt.Errorf("invalid pubky url")
)

package types

import "errors"

// Error taxonomy for site control-plane operations. Callers use
// errors.Is against these sentinels; fan-out outcomes carry the wire
// kind from ErrorKind.
var (
	// ErrNotReachable is a connection or timeout failure; retryable.
	ErrNotReachable = errors.New("site not reachable")

	// ErrNotFound means the username (or object) is absent on the
	// target; not retryable without a different input.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a duplicate username or endpoint; not retryable.
	ErrConflict = errors.New("already exists")

	// ErrProtocol means the controller answered with an unexpected
	// shape, usually vendor API drift; not retryable automatically.
	ErrProtocol = errors.New("protocol error")

	// ErrSiteNotFound means the caller referenced an unregistered site id.
	ErrSiteNotFound = errors.New("site not found")

	// ErrSiteOffline means the site was excluded pre-flight because the
	// monitor currently marks it offline.
	ErrSiteOffline = errors.New("site offline")

	// ErrDuplicateEndpoint means an active site with the same
	// endpoint+credentials tuple is already registered.
	ErrDuplicateEndpoint = errors.New("duplicate endpoint")

	// ErrTokenInvalid covers every token rejection: unknown, wrong
	// site, or expired. Callers must not be able to tell these apart.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired exists for internal bookkeeping (cleanup, logs);
	// it is never surfaced to token verifiers.
	ErrTokenExpired = errors.New("token expired")
)

// Wire names for the error kinds, as carried in SiteOutcome.Error.
const (
	KindNotReachable      = "not_reachable"
	KindNotFound          = "not_found"
	KindConflict          = "conflict"
	KindProtocol          = "protocol_error"
	KindSiteNotFound      = "site_not_found"
	KindSiteOffline       = "site_offline"
	KindDuplicateEndpoint = "duplicate_endpoint"
	KindTokenInvalid      = "token_invalid"
	KindInternal          = "internal"
)

// ErrorKind maps an error to its wire kind. Unrecognized errors map to
// "internal" so an outcome never loses its entry.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotReachable):
		return KindNotReachable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrSiteNotFound):
		return KindSiteNotFound
	case errors.Is(err, ErrSiteOffline):
		return KindSiteOffline
	case errors.Is(err, ErrDuplicateEndpoint):
		return KindDuplicateEndpoint
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired):
		return KindTokenInvalid
	default:
		return KindInternal
	}
}

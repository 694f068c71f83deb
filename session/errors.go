package session

import "errors"

// Status codes with fixed meaning across the account API.
const (
	// StatusNone is the sentinel for "no HTTP response was obtained";
	// distinct from any status a server could return.
	StatusNone = 0
	// StatusUnauthorized is the service's authentication-failure status.
	// Its meaning is endpoint-specific: bad credentials at login,
	// duplicate email at register, revoked token at validate.
	StatusUnauthorized = 401
)

var (
	// ErrInvalidCredentials indicates the login email/password pair was rejected.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	// ErrEmailTaken indicates the registration email is already in use.
	ErrEmailTaken = errors.New("session: email already registered")
	// ErrTokenRevoked indicates the persisted token was rejected by the
	// validation endpoint and has been cleared locally.
	ErrTokenRevoked = errors.New("session: access token revoked")
	// ErrUnauthorized indicates an authenticated request was rejected.
	ErrUnauthorized = errors.New("session: unauthorized")
	// ErrNoSession indicates an operation requiring an authenticated
	// session was called without one.
	ErrNoSession = errors.New("session: no active session")
	// ErrRequestFailed is the generic failure for any other non-2xx status.
	ErrRequestFailed = errors.New("session: request failed")
	// ErrMalformedResponse indicates a 2xx response whose body did not
	// carry the expected entity.
	ErrMalformedResponse = errors.New("session: malformed response")
	// ErrNoEmailVerifier indicates EmailValidate was called without a
	// verification client configured.
	ErrNoEmailVerifier = errors.New("session: no email verification client configured")

	errMissingUser    = errors.New("missing user object")
	errMissingProfile = errors.New("missing profile object")
)

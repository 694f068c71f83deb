// Package session is the single source of truth for authentication state
// against the account service. A Manager wraps each account operation as a
// context-aware call resolving to the uniform (entity, statusCode, error)
// triple; the status code carries meaning independent of the error and must
// be inspected alongside it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/videocms/authkit/credentials"
	"github.com/videocms/authkit/internal/logging"
	"github.com/videocms/authkit/transport"
)

// HeaderToken is the header carrying the bearer token on authenticated
// requests.
const HeaderToken = "X-Token"

// EmailVerifier checks address deliverability against a third-party service.
// Its failure domain is independent of the account backend's.
type EmailVerifier interface {
	Verify(ctx context.Context, address string) (bool, int, error)
}

// Manager orchestrates the account lifecycle operations on top of the HTTP
// client and the credential store, keeping in-memory and persisted state
// consistent within each operation.
//
// Field mutation is guarded internally, but no ordering is guaranteed
// between concurrently issued operations (a login racing a logout is the
// caller's bug); the intended use is serialized, one-at-a-time invocation.
type Manager struct {
	baseURL  string
	http     *transport.Client
	creds    credentials.Store
	verifier EmailVerifier
	logger   *slog.Logger

	mu             sync.Mutex
	currentUser    *User
	accessToken    string
	cachedEmail    string
	cachedPassword string
	userID         string
	profile        *Profile
	observers      []func(Profile)
}

// Option customises a Manager.
type Option func(*Manager)

// WithLogger attaches a base logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithEmailVerifier attaches the third-party address-verification client.
func WithEmailVerifier(verifier EmailVerifier) Option {
	return func(m *Manager) { m.verifier = verifier }
}

// NewManager constructs a Manager for the service at baseURL. The credential
// store and HTTP client must be provided; construction performs no IO.
func NewManager(baseURL string, client *transport.Client, store credentials.Store, opts ...Option) *Manager {
	if client == nil {
		panic("session: transport client must not be nil")
	}
	if store == nil {
		panic("session: credential store must not be nil")
	}

	m := &Manager{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		creds:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads persisted credential fields into memory. Call once after
// construction; the volatile fields (current user, profile) must be
// re-derived via Validate.
func (m *Manager) Restore(ctx context.Context) error {
	load := func(key string) (string, error) {
		value, err := m.creds.Get(ctx, key)
		if errors.Is(err, credentials.ErrNotFound) {
			return "", nil
		}
		return value, err
	}

	token, err := load(credentials.KeyToken)
	if err != nil {
		return fmt.Errorf("restore token: %w", err)
	}
	email, err := load(credentials.KeyEmail)
	if err != nil {
		return fmt.Errorf("restore email: %w", err)
	}
	password, err := load(credentials.KeyPassword)
	if err != nil {
		return fmt.Errorf("restore password: %w", err)
	}
	userID, err := load(credentials.KeyUserID)
	if err != nil {
		return fmt.Errorf("restore user id: %w", err)
	}

	m.mu.Lock()
	m.accessToken = token
	m.cachedEmail = email
	m.cachedPassword = password
	m.userID = userID
	m.mu.Unlock()
	return nil
}

// OnProfileUpdate registers an observer invoked after every successful
// profile fetch or update. Observers run on the operation's goroutine.
func (m *Manager) OnProfileUpdate(fn func(Profile)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// IsAuthenticated reports whether an access token is present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken != ""
}

// CurrentUser returns a copy of the last user parsed from the service, or
// nil when anonymous.
func (m *Manager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentUser == nil {
		return nil
	}
	user := *m.currentUser
	return &user
}

// AccessToken returns the in-memory bearer token, empty when anonymous.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// CachedEmail returns the remembered account email.
func (m *Manager) CachedEmail() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cachedEmail
}

// CachedPassword returns the remembered account password.
func (m *Manager) CachedPassword() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cachedPassword
}

// Profile returns a copy of the last fetched profile, or nil.
func (m *Manager) Profile() *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil
	}
	profile := *m.profile
	return &profile
}

// Register creates an account and adopts the returned session. A 401 means
// the email is already registered. The profile is not fetched automatically.
func (m *Manager) Register(ctx context.Context, email, password string) (*User, int, error) {
	if err := checkInput(registerInput{Email: email, Password: password}); err != nil {
		return nil, StatusNone, err
	}

	ctx, op := m.startOp(ctx, "register")
	user, status, err := m.authenticate(ctx, m.url("/user"), email, password, ErrEmailTaken)
	op.End(status, err)
	return user, status, err
}

// Login authenticates with the stored service and adopts the returned
// session. A 401 means the credentials were rejected; a failed login leaves
// any previously established session untouched.
func (m *Manager) Login(ctx context.Context, email, password string) (*User, int, error) {
	if err := checkInput(loginInput{Email: email, Password: password}); err != nil {
		return nil, StatusNone, err
	}

	ctx, op := m.startOp(ctx, "login")
	user, status, err := m.authenticate(ctx, m.url("/user/login"), email, password, ErrInvalidCredentials)
	op.End(status, err)
	return user, status, err
}

// Validate checks the persisted token against the service and refreshes the
// current user. Without a persisted token it resolves (nil, StatusNone, nil)
// locally, issuing no request. A 401 clears the token, in memory and in the
// store, leaving the cached email and password in place; any other failure
// leaves the token untouched for a later retry.
func (m *Manager) Validate(ctx context.Context) (*User, int, error) {
	ctx, op := m.startOp(ctx, "validate")

	token, err := m.creds.Get(ctx, credentials.KeyToken)
	if errors.Is(err, credentials.ErrNotFound) || (err == nil && token == "") {
		op.End(StatusNone, nil)
		return nil, StatusNone, nil
	}
	if err != nil {
		op.End(StatusNone, err)
		return nil, StatusNone, fmt.Errorf("load token: %w", err)
	}

	status, body, err := m.http.Do(ctx, http.MethodPost, m.url("/token/validate"), tokenBody{Token: token}, nil)
	if err != nil {
		op.End(StatusNone, err)
		return nil, StatusNone, err
	}

	if status == StatusUnauthorized {
		clearErr := m.clearToken(ctx)
		err := ErrTokenRevoked
		if clearErr != nil {
			err = fmt.Errorf("%w (clear token: %v)", ErrTokenRevoked, clearErr)
		}
		op.End(status, err)
		return nil, status, err
	}
	if !success(status) {
		err := fmt.Errorf("%w: status %d", ErrRequestFailed, status)
		op.End(status, err)
		return nil, status, err
	}

	user, err := parseUser(body)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		op.End(status, err)
		return nil, status, err
	}

	m.mu.Lock()
	m.currentUser = user
	if user.ID != "" {
		m.userID = user.ID
	}
	if user.Token != "" {
		m.accessToken = user.Token
	}
	m.mu.Unlock()

	if user.ID != "" {
		if err := m.creds.Set(ctx, credentials.KeyUserID, user.ID); err != nil {
			op.End(status, err)
			return user, status, fmt.Errorf("persist user id: %w", err)
		}
	}
	if user.Token != "" {
		if err := m.creds.Set(ctx, credentials.KeyToken, user.Token); err != nil {
			op.End(status, err)
			return user, status, fmt.Errorf("persist token: %w", err)
		}
	}

	op.End(status, nil)
	return user, status, nil
}

// Logout clears every persisted and in-memory session field. It is
// idempotent, requires no network call, and always succeeds locally unless
// the store itself fails.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.currentUser = nil
	m.accessToken = ""
	m.cachedEmail = ""
	m.cachedPassword = ""
	m.userID = ""
	m.profile = nil
	m.mu.Unlock()

	var firstErr error
	for _, key := range []string{
		credentials.KeyToken,
		credentials.KeyEmail,
		credentials.KeyPassword,
		credentials.KeyUserID,
	} {
		if err := m.creds.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("clear %s: %w", key, err)
		}
	}
	return firstErr
}

// Reset asks the service to start a password reset for the address. On
// success the returned placeholder user carries only the submitted email;
// no local state changes.
func (m *Manager) Reset(ctx context.Context, email string) (*User, int, error) {
	if err := checkInput(emailInput{Email: email}); err != nil {
		return nil, StatusNone, err
	}

	ctx, op := m.startOp(ctx, "reset")
	status, _, err := m.http.Do(ctx, http.MethodPost, m.url("/user/reset"), emailBody{Email: email}, nil)
	if err != nil {
		op.End(StatusNone, err)
		return nil, StatusNone, err
	}
	if !success(status) {
		err := fmt.Errorf("%w: status %d", ErrRequestFailed, status)
		op.End(status, err)
		return nil, status, err
	}

	op.End(status, nil)
	return &User{Email: email}, status, nil
}

// UpdateEmail changes the account email via the per-user endpoint. On
// success the cached email is updated and persisted; a token in the
// response, if any, replaces the access token.
func (m *Manager) UpdateEmail(ctx context.Context, newEmail string) (*User, int, error) {
	if err := checkInput(emailInput{Email: newEmail}); err != nil {
		return nil, StatusNone, err
	}

	ctx, op := m.startOp(ctx, "update-email")
	user, status, err := m.updateCredential(ctx, "/email", emailBody{Email: newEmail}, credentials.KeyEmail, newEmail)
	op.End(status, err)
	return user, status, err
}

// UpdatePassword changes the account password via the per-user endpoint.
// The new password must satisfy the account policy. On success the cached
// password is updated and persisted; the contract does not promise a new
// token, but one present in the response replaces the access token.
func (m *Manager) UpdatePassword(ctx context.Context, newPassword string) (*User, int, error) {
	if err := checkInput(passwordInput{Password: newPassword}); err != nil {
		return nil, StatusNone, err
	}

	ctx, op := m.startOp(ctx, "update-password")
	user, status, err := m.updateCredential(ctx, "/password", passwordBody{Password: newPassword}, credentials.KeyPassword, newPassword)
	op.End(status, err)
	return user, status, err
}

// UpdateProfile replaces the stored profile fields via the per-user
// endpoint. The cached profile is wholesale-replaced from the response and
// registered observers are notified.
func (m *Manager) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Profile, int, error) {
	ctx, op := m.startOp(ctx, "update-profile")
	profile, status, err := m.fetchProfile(ctx, http.MethodPut, update)
	op.End(status, err)
	return profile, status, err
}

// GetProfile fetches the extended profile for the current user, replacing
// the cached copy wholesale and notifying registered observers.
func (m *Manager) GetProfile(ctx context.Context) (*Profile, int, error) {
	ctx, op := m.startOp(ctx, "get-profile")
	profile, status, err := m.fetchProfile(ctx, http.MethodGet, nil)
	op.End(status, err)
	return profile, status, err
}

// EmailValidate asks the third-party verification service whether the
// address looks deliverable. A judged-invalid address yields (false, status,
// nil); an unreachable service yields (false, status, err).
func (m *Manager) EmailValidate(ctx context.Context, email string) (bool, int, error) {
	if m.verifier == nil {
		return false, StatusNone, ErrNoEmailVerifier
	}

	ctx, op := m.startOp(ctx, "email-validate")
	valid, status, err := m.verifier.Verify(ctx, email)
	op.End(status, err)
	return valid, status, err
}

func (m *Manager) authenticate(ctx context.Context, endpoint, email, password string, unauthorized error) (*User, int, error) {
	status, body, err := m.http.Do(ctx, http.MethodPost, endpoint, credentialsBody{Email: email, Password: password}, nil)
	if err != nil {
		return nil, StatusNone, err
	}
	if status == StatusUnauthorized {
		return nil, status, unauthorized
	}
	if !success(status) {
		return nil, status, fmt.Errorf("%w: status %d", ErrRequestFailed, status)
	}

	user, err := parseUser(body)
	if err != nil {
		return nil, status, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if err := m.adoptSession(ctx, user, email, password); err != nil {
		return user, status, err
	}
	return user, status, nil
}

// adoptSession replaces the whole session, mirroring every field to the
// store within the same operation.
func (m *Manager) adoptSession(ctx context.Context, user *User, email, password string) error {
	m.mu.Lock()
	m.currentUser = user
	m.accessToken = user.Token
	m.cachedEmail = email
	m.cachedPassword = password
	m.userID = user.ID
	m.mu.Unlock()

	writes := []struct{ key, value string }{
		{credentials.KeyToken, user.Token},
		{credentials.KeyEmail, email},
		{credentials.KeyPassword, password},
		{credentials.KeyUserID, user.ID},
	}
	for _, write := range writes {
		if err := m.creds.Set(ctx, write.key, write.value); err != nil {
			return fmt.Errorf("persist %s: %w", write.key, err)
		}
	}
	return nil
}

func (m *Manager) updateCredential(ctx context.Context, suffix string, body any, key, value string) (*User, int, error) {
	userID, token, err := m.requireSession()
	if err != nil {
		return nil, StatusNone, err
	}

	endpoint := m.url("/user/" + userID + suffix)
	status, payload, err := m.http.Do(ctx, http.MethodPut, endpoint, body, map[string]string{HeaderToken: token})
	if err != nil {
		return nil, StatusNone, err
	}
	if status == StatusUnauthorized {
		return nil, status, ErrUnauthorized
	}
	if !success(status) {
		return nil, status, fmt.Errorf("%w: status %d", ErrRequestFailed, status)
	}

	m.mu.Lock()
	switch key {
	case credentials.KeyEmail:
		m.cachedEmail = value
	case credentials.KeyPassword:
		m.cachedPassword = value
	}
	m.mu.Unlock()

	if err := m.creds.Set(ctx, key, value); err != nil {
		return nil, status, fmt.Errorf("persist %s: %w", key, err)
	}

	user, err := parseUser(payload)
	if err != nil {
		return nil, status, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if user.Token != "" {
		m.mu.Lock()
		m.accessToken = user.Token
		m.currentUser = user
		m.mu.Unlock()
		if err := m.creds.Set(ctx, credentials.KeyToken, user.Token); err != nil {
			return user, status, fmt.Errorf("persist token: %w", err)
		}
	} else {
		m.mu.Lock()
		m.currentUser = user
		m.mu.Unlock()
	}

	return user, status, nil
}

func (m *Manager) fetchProfile(ctx context.Context, method string, body any) (*Profile, int, error) {
	userID, token, err := m.requireSession()
	if err != nil {
		return nil, StatusNone, err
	}

	status, payload, err := m.http.Do(ctx, method, m.url("/user/"+userID), body, map[string]string{HeaderToken: token})
	if err != nil {
		return nil, StatusNone, err
	}
	if status == StatusUnauthorized {
		return nil, status, ErrUnauthorized
	}
	if !success(status) {
		return nil, status, fmt.Errorf("%w: status %d", ErrRequestFailed, status)
	}

	profile, err := parseProfile(payload)
	if err != nil {
		return nil, status, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	m.mu.Lock()
	m.profile = profile
	observers := make([]func(Profile), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, notify := range observers {
		notify(*profile)
	}

	return profile, status, nil
}

// clearToken drops the access token from memory and the store, leaving the
// cached email and password in place for a convenience re-auth.
func (m *Manager) clearToken(ctx context.Context) error {
	m.mu.Lock()
	m.accessToken = ""
	m.currentUser = nil
	m.mu.Unlock()
	return m.creds.Delete(ctx, credentials.KeyToken)
}

func (m *Manager) requireSession() (userID, token string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userID == "" || m.accessToken == "" {
		return "", "", ErrNoSession
	}
	return m.userID, m.accessToken, nil
}

func (m *Manager) startOp(ctx context.Context, name string) (context.Context, *logging.Op) {
	if !logging.HasLogger(ctx) && m.logger != nil {
		ctx = logging.WithLogger(ctx, m.logger)
	}
	return logging.StartOp(ctx, name)
}

func (m *Manager) url(path string) string {
	return m.baseURL + path
}

func success(status int) bool {
	return status >= 200 && status <= 299
}

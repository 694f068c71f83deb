package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/videocms/authkit/credentials"
	"github.com/videocms/authkit/transport"
)

func newTestManager(t *testing.T, handler http.Handler) (*Manager, *credentials.MemoryStore, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore()
	manager := NewManager(server.URL, transport.New(), store)
	return manager, store, server
}

func userJSON(id, email, token string) string {
	return fmt.Sprintf(`{"user": {"id": %q, "email": %q, "token": %q}}`, id, email, token)
}

func TestValidateWithoutTokenShortCircuits(t *testing.T) {
	manager, _, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))

	user, status, err := manager.Validate(context.Background())
	if user != nil || status != StatusNone || err != nil {
		t.Fatalf("expected (nil, %d, nil), got (%v, %d, %v)", StatusNone, user, status, err)
	}
}

func TestValidateRevokedTokenClearsIt(t *testing.T) {
	manager, store, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token/validate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "token expired"}`)
	}))

	ctx := context.Background()
	for key, value := range map[string]string{
		credentials.KeyToken:    "stale-token",
		credentials.KeyEmail:    "a@b.com",
		credentials.KeyPassword: "Secret123",
	} {
		if err := store.Set(ctx, key, value); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	if err := manager.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	user, status, err := manager.Validate(ctx)
	if user != nil {
		t.Fatalf("expected nil user, got %+v", user)
	}
	if status != StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", status)
	}
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	if manager.AccessToken() != "" {
		t.Fatal("expected in-memory token to be cleared")
	}
	if store.Has(credentials.KeyToken) {
		t.Fatal("expected persisted token to be removed")
	}
	if !store.Has(credentials.KeyEmail) || !store.Has(credentials.KeyPassword) {
		t.Fatal("cached email and password must survive token revocation")
	}
}

func TestValidateTransientFailureKeepsToken(t *testing.T) {
	manager, store, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ctx := context.Background()
	if err := store.Set(ctx, credentials.KeyToken, "still-good"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	_, status, err := manager.Validate(ctx)
	if status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", status)
	}
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if !store.Has(credentials.KeyToken) {
		t.Fatal("transient failure must leave the token untouched")
	}
}

func TestValidateRefreshesCurrentUser(t *testing.T) {
	manager, store, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["token"] != "tok-1" {
			t.Errorf("expected token in body, got %q", body["token"])
		}
		fmt.Fprint(w, userJSON("42", "a@b.com", "tok-1"))
	}))

	ctx := context.Background()
	if err := store.Set(ctx, credentials.KeyToken, "tok-1"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	user, status, err := manager.Validate(ctx)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}
	if user == nil || user.ID != "42" || user.Email != "a@b.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if got := manager.CurrentUser(); got == nil || got.ID != "42" {
		t.Fatalf("expected current user to be refreshed, got %+v", got)
	}
}

func TestLoginStoresCredentialsAndToken(t *testing.T) {
	manager, store, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/user/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, userJSON("42", "a@b.com", "tok-1"))
	}))

	ctx := context.Background()
	user, status, err := manager.Login(ctx, "a@b.com", "Secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}
	if user == nil || user.ID != "42" || user.Email != "a@b.com" || user.Token != "tok-1" {
		t.Fatalf("unexpected user %+v", user)
	}

	if manager.AccessToken() != "tok-1" {
		t.Fatalf("expected access token tok-1, got %q", manager.AccessToken())
	}
	if manager.CachedEmail() != "a@b.com" || manager.CachedPassword() != "Secret123" {
		t.Fatal("expected credentials to be cached in memory")
	}

	for key, want := range map[string]string{
		credentials.KeyToken:    "tok-1",
		credentials.KeyEmail:    "a@b.com",
		credentials.KeyPassword: "Secret123",
		credentials.KeyUserID:   "42",
	} {
		got, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if got != want {
			t.Fatalf("expected %s=%q in store, got %q", key, want, got)
		}
	}
}

func TestLoginFailureKeepsExistingSession(t *testing.T) {
	var rejectLogins atomic.Bool
	manager, store, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rejectLogins.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error": "invalid credentials"}`)
			return
		}
		fmt.Fprint(w, userJSON("42", "a@b.com", "tok-1"))
	}))

	ctx := context.Background()
	if _, _, err := manager.Login(ctx, "a@b.com", "Secret123"); err != nil {
		t.Fatalf("first login: %v", err)
	}

	rejectLogins.Store(true)

	user, status, err := manager.Login(ctx, "a@b.com", "WrongPass1")
	if user != nil {
		t.Fatalf("expected nil user, got %+v", user)
	}
	if status != StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", status)
	}
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if manager.AccessToken() != "tok-1" {
		t.Fatal("failed login must not clear the existing session")
	}
	if got, err := store.Get(ctx, credentials.KeyToken); err != nil || got != "tok-1" {
		t.Fatalf("expected persisted token to survive, got %q (%v)", got, err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	manager, _, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, status, err := manager.Register(context.Background(), "taken@b.com", "Secret123")
	if status != StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", status)
	}
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterRejectsWeakPasswordLocally(t *testing.T) {
	manager, _, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))

	for _, password := range []string{"short1A", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere", "ThisPasswordIsWayTooLong1"} {
		_, status, err := manager.Register(context.Background(), "a@b.com", password)
		if status != StatusNone || err == nil {
			t.Fatalf("password %q: expected local rejection, got (%d, %v)", password, status, err)
		}
	}
}

func TestLogoutIdempotent(t *testing.T) {
	manager, store, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, userJSON("42", "a@b.com", "tok-1"))
	}))

	ctx := context.Background()
	if _, _, err := manager.Login(ctx, "a@b.com", "Secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := manager.Logout(ctx); err != nil {
			t.Fatalf("logout %d: %v", i+1, err)
		}

		if manager.AccessToken() != "" || manager.CachedEmail() != "" || manager.CachedPassword() != "" {
			t.Fatalf("logout %d: expected cleared in-memory state", i+1)
		}
		if manager.CurrentUser() != nil || manager.Profile() != nil {
			t.Fatalf("logout %d: expected cleared user and profile", i+1)
		}
		for _, key := range []string{credentials.KeyToken, credentials.KeyEmail, credentials.KeyPassword, credentials.KeyUserID} {
			if store.Has(key) {
				t.Fatalf("logout %d: expected %s removed from store", i+1, key)
			}
		}
	}
}

func TestResetReturnsPlaceholderUser(t *testing.T) {
	manager, store, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/user/reset" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	user, status, err := manager.Reset(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if status != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", status)
	}
	if user == nil || user.Email != "a@b.com" || user.ID != "" || user.Token != "" {
		t.Fatalf("expected placeholder user with email only, got %+v", user)
	}
	if store.Has(credentials.KeyToken) || store.Has(credentials.KeyEmail) {
		t.Fatal("reset must not touch local state")
	}
}

func TestUpdateEmailPersistsAndAdoptsNewToken(t *testing.T) {
	manager, store, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/user/login":
			fmt.Fprint(w, userJSON("42", "a@b.com", "tok-1"))
		case r.Method == http.MethodPut && r.URL.Path == "/user/42/email":
			if got := r.Header.Get(HeaderToken); got != "tok-1" {
				t.Errorf("expected X-Token tok-1, got %q", got)
			}
			fmt.Fprint(w, userJSON("42", "new@b.com", "tok-2"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()
	if _, _, err := manager.Login(ctx, "a@b.com", "Secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	user, status, err := manager.UpdateEmail(ctx, "new@b.com")
	if err != nil {
		t.Fatalf("update email: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}
	if user == nil || user.Email != "new@b.com" {
		t.Fatalf("unexpected user %+v", user)
	}

	if manager.CachedEmail() != "new@b.com" {
		t.Fatalf("expected cached email updated, got %q", manager.CachedEmail())
	}
	if got, _ := store.Get(ctx, credentials.KeyEmail); got != "new@b.com" {
		t.Fatalf("expected persisted email updated, got %q", got)
	}
	if manager.AccessToken() != "tok-2" {
		t.Fatalf("expected server-issued token adopted, got %q", manager.AccessToken())
	}
	if got, _ := store.Get(ctx, credentials.KeyToken); got != "tok-2" {
		t.Fatalf("expected persisted token updated, got %q", got)
	}
}

func TestUpdateOperationsRequireSession(t *testing.T) {
	manager, _, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))

	if _, status, err := manager.UpdateEmail(context.Background(), "a@b.com"); !errors.Is(err, ErrNoSession) || status != StatusNone {
		t.Fatalf("expected ErrNoSession, got (%d, %v)", status, err)
	}
	if _, status, err := manager.GetProfile(context.Background()); !errors.Is(err, ErrNoSession) || status != StatusNone {
		t.Fatalf("expected ErrNoSession, got (%d, %v)", status, err)
	}
}

func TestGetProfileReplacesWholesale(t *testing.T) {
	var calls atomic.Int64
	manager, _, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/user/login":
			fmt.Fprint(w, userJSON("42", "a@b.com", "tok-1"))
		case r.Method == http.MethodGet && r.URL.Path == "/user/42":
			if calls.Add(1) == 1 {
				fmt.Fprint(w, `{"profile": {"id": "p-1", "favourite": ["v-1", "v-2"], "playlist": ["v-3"]}}`)
			} else {
				fmt.Fprint(w, `{"profile": {"id": "p-1", "favourite": ["v-9"], "playlist": []}}`)
			}
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	ctx := context.Background()
	if _, _, err := manager.Login(ctx, "a@b.com", "Secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	var notified int
	manager.OnProfileUpdate(func(Profile) { notified++ })

	if _, _, err := manager.GetProfile(ctx); err != nil {
		t.Fatalf("first profile fetch: %v", err)
	}
	second, status, err := manager.GetProfile(ctx)
	if err != nil {
		t.Fatalf("second profile fetch: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}

	if len(second.Favourites) != 1 || string(second.Favourites[0]) != `"v-9"` {
		t.Fatalf("expected second response to replace favourites wholesale, got %v", second.Favourites)
	}
	cached := manager.Profile()
	if cached == nil || len(cached.Favourites) != 1 || len(cached.Playlist) != 0 {
		t.Fatalf("expected cached profile to equal second response, got %+v", cached)
	}
	if notified != 2 {
		t.Fatalf("expected 2 profile notifications, got %d", notified)
	}
}

func TestTransportFailureYieldsStatusNone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	manager := NewManager(server.URL, transport.New(), credentials.NewMemoryStore())

	user, status, err := manager.Login(context.Background(), "a@b.com", "Secret123")
	if user != nil {
		t.Fatalf("expected nil user, got %+v", user)
	}
	if status != StatusNone {
		t.Fatalf("expected status %d for transport failure, got %d", StatusNone, status)
	}
	if err == nil {
		t.Fatal("expected transport error")
	}
}

func TestEmailValidateWithoutVerifier(t *testing.T) {
	manager, _, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))

	valid, status, err := manager.EmailValidate(context.Background(), "a@b.com")
	if valid || status != StatusNone || !errors.Is(err, ErrNoEmailVerifier) {
		t.Fatalf("expected (false, %d, ErrNoEmailVerifier), got (%v, %d, %v)", StatusNone, valid, status, err)
	}
}

func TestRestoreLoadsPersistedFields(t *testing.T) {
	manager, store, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))

	ctx := context.Background()
	for key, value := range map[string]string{
		credentials.KeyToken:    "tok-1",
		credentials.KeyEmail:    "a@b.com",
		credentials.KeyPassword: "Secret123",
		credentials.KeyUserID:   "42",
	} {
		if err := store.Set(ctx, key, value); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	if err := manager.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if manager.AccessToken() != "tok-1" || manager.CachedEmail() != "a@b.com" || manager.CachedPassword() != "Secret123" {
		t.Fatal("expected persisted fields restored into memory")
	}
	if !manager.IsAuthenticated() {
		t.Fatal("expected restored session to be authenticated")
	}
	if manager.CurrentUser() != nil {
		t.Fatal("current user is volatile and must stay nil until Validate")
	}
}

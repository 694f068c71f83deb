package mockserver

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	errAccountExists   = errors.New("account already exists")
	errAccountNotFound = errors.New("account not found")
	errBadCredentials  = errors.New("bad credentials")
	errBadToken        = errors.New("bad token")
)

// account is one registered user inside the stub backend.
type account struct {
	ID           string
	Email        string
	PasswordHash string
	Token        string
	Favourites   []json.RawMessage
	Playlist     []json.RawMessage
}

// accountStore holds all stub accounts in memory. Nothing survives a restart;
// that is the point of a development stub.
type accountStore struct {
	mu      sync.Mutex
	byEmail map[string]*account
	byID    map[string]*account
}

func newAccountStore() *accountStore {
	return &accountStore{
		byEmail: make(map[string]*account),
		byID:    make(map[string]*account),
	}
}

// register creates an account and issues its first token.
func (s *accountStore) register(email, password string) (*account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, errAccountExists
	}

	acct := &account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Token:        uuid.NewString(),
	}
	s.byEmail[email] = acct
	s.byID[acct.ID] = acct
	return acct, nil
}

// login verifies the password and rotates the account token.
func (s *accountStore) login(email, password string) (*account, error) {
	s.mu.Lock()
	acct, ok := s.byEmail[email]
	s.mu.Unlock()
	if !ok {
		return nil, errBadCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, errBadCredentials
	}

	s.mu.Lock()
	acct.Token = uuid.NewString()
	s.mu.Unlock()
	return acct, nil
}

// findByToken resolves the account holding the given token.
func (s *accountStore) findByToken(token string) (*account, error) {
	if token == "" {
		return nil, errBadToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.byID {
		if acct.Token == token {
			return acct, nil
		}
	}
	return nil, errBadToken
}

// authorize checks that token belongs to the account with the given id.
func (s *accountStore) authorize(id, token string) (*account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, errAccountNotFound
	}
	if token == "" || acct.Token != token {
		return nil, errBadToken
	}
	return acct, nil
}

func (s *accountStore) updateEmail(id, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return errAccountNotFound
	}
	if other, exists := s.byEmail[email]; exists && other.ID != id {
		return errAccountExists
	}

	delete(s.byEmail, acct.Email)
	acct.Email = email
	s.byEmail[email] = acct
	return nil
}

func (s *accountStore) updatePassword(id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return errAccountNotFound
	}
	acct.PasswordHash = string(hash)
	return nil
}

func (s *accountStore) replaceProfile(id string, favourites, playlist []json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return errAccountNotFound
	}
	if favourites != nil {
		acct.Favourites = favourites
	}
	if playlist != nil {
		acct.Playlist = playlist
	}
	return nil
}

func (s *accountStore) hasEmail(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byEmail[email]
	return ok
}

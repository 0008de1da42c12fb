package session

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrNoSecret is returned when no secret is stored for an account.
var ErrNoSecret = errors.New("no secret stored for account")

// SecretStore holds the login password per account. It is used only for the
// password, never for tokens.
type SecretStore interface {
	Put(account string, secret []byte) error
	Get(account string) ([]byte, error)
	Delete(account string)
}

// EnclaveStore keeps secrets in memguard enclaves: encrypted at rest in
// memory, never written to disk.
type EnclaveStore struct {
	mu       sync.Mutex
	enclaves map[string]*memguard.Enclave
}

// NewEnclaveStore creates an empty in-memory secret store.
func NewEnclaveStore() *EnclaveStore {
	return &EnclaveStore{enclaves: make(map[string]*memguard.Enclave)}
}

// Put seals the secret for an account. The input slice is wiped.
func (s *EnclaveStore) Put(account string, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enclaves[account] = memguard.NewEnclave(secret)
	return nil
}

// Get returns a copy of the secret for an account.
func (s *EnclaveStore) Get(account string) ([]byte, error) {
	s.mu.Lock()
	enclave, ok := s.enclaves[account]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNoSecret
	}

	buf, err := enclave.Open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// Delete erases the secret for an account.
func (s *EnclaveStore) Delete(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enclaves, account)
}

package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/types"
)

// ErrSourceUnavailable means the secure store cannot produce the
// credential payload: the record is missing or the sealed data is
// malformed.
var ErrSourceUnavailable = errors.New("credential source unavailable")

// CredentialStore seals credential payloads with AES-256-GCM before they
// touch the entity store. Credentials are immutable after creation.
type CredentialStore struct {
	store store.Store
	key   []byte // 32 bytes for AES-256
}

// NewCredentialStore creates a credential store with the given key.
// The key must be 32 bytes for AES-256-GCM.
func NewCredentialStore(st store.Store, key []byte) (*CredentialStore, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("sealing key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &CredentialStore{store: st, key: key}, nil
}

// NewCredentialStoreFromSeed derives the sealing key from a seed string
// with SHA-256.
func NewCredentialStoreFromSeed(st store.Store, seed string) (*CredentialStore, error) {
	if seed == "" {
		return nil, fmt.Errorf("sealing seed cannot be empty")
	}
	hash := sha256.Sum256([]byte(seed))
	return NewCredentialStore(st, hash[:])
}

// Create stores a new sealed credential. Creating over an existing name
// fails: credentials are immutable for the lifetime of the topology.
func (cs *CredentialStore) Create(namespace, name string, plaintext []byte) (*types.Credential, error) {
	if name == "" {
		return nil, fmt.Errorf("credential name cannot be empty")
	}
	if _, err := cs.store.GetCredentialByName(namespace, name); err == nil {
		return nil, fmt.Errorf("credential %q already exists and is immutable", name)
	}

	sealed, err := cs.seal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credential: %w", err)
	}

	cred := &types.Credential{
		ID:        credentialID(namespace, name),
		Name:      name,
		Namespace: namespace,
		Data:      sealed,
		CreatedAt: time.Now(),
	}
	if err := cs.store.CreateCredential(cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// Ensure creates the credential if it does not exist. An empty value means
// generate a random payload. An existing credential is left untouched.
func (cs *CredentialStore) Ensure(namespace, name, value string) error {
	if _, err := cs.store.GetCredentialByName(namespace, name); err == nil {
		return nil
	}

	payload := []byte(value)
	if len(payload) == 0 {
		raw := make([]byte, 24)
		if _, err := io.ReadFull(rand.Reader, raw); err != nil {
			return fmt.Errorf("failed to generate credential: %w", err)
		}
		payload = []byte(base64.RawURLEncoding.EncodeToString(raw))
	}
	_, err := cs.Create(namespace, name, payload)
	return err
}

// Read returns the plaintext payload of a credential. Missing records and
// undecryptable payloads both surface as ErrSourceUnavailable so callers
// retry rather than fail hard.
func (cs *CredentialStore) Read(namespace, name string) ([]byte, error) {
	cred, err := cs.store.GetCredentialByName(namespace, name)
	if err != nil {
		return nil, fmt.Errorf("credential %q: %w", name, ErrSourceUnavailable)
	}
	plaintext, err := cs.unseal(cred.Data)
	if err != nil {
		return nil, fmt.Errorf("credential %q payload malformed: %w", name, ErrSourceUnavailable)
	}
	return plaintext, nil
}

// seal encrypts plaintext with AES-256-GCM, nonce prepended.
func (cs *CredentialStore) seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot seal empty payload")
	}
	block, err := aes.NewCipher(cs.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// unseal decrypts data produced by seal.
func (cs *CredentialStore) unseal(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(cs.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func credentialID(namespace, name string) string {
	hash := sha256.Sum256([]byte(namespace + "/" + name))
	return base64.URLEncoding.EncodeToString(hash[:16])
}

package tokenstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"authflow/internal/authstate"
	"authflow/pkg/logging"
)

// DefaultStorageDir is the default directory for persisted state, relative
// to the user's home directory.
const DefaultStorageDir = ".config/authflow/state"

// StoredState is one provider's persisted authorization state.
type StoredState struct {
	// Provider is the configured provider name.
	Provider string `json:"provider"`

	// IssuerURL is the issuer that produced this state.
	IssuerURL string `json:"issuer_url"`

	// State is the authorization state aggregate.
	State *authstate.State `json:"state"`

	// UpdatedAt is when the state was last saved.
	UpdatedAt time.Time `json:"updated_at"`
}

// OAuth2Token converts the stored tokens to an oauth2.Token, carrying the
// ID token as extra data. Returns nil when no tokens are stored.
func (s *StoredState) OAuth2Token() *oauth2.Token {
	if s.State == nil || s.State.TokenResponse == nil {
		return nil
	}
	return s.State.TokenResponse.OAuth2Token()
}

// Config configures the store.
type Config struct {
	// StorageDir is the directory for state files. Defaults to
	// ~/.config/authflow/state.
	StorageDir string

	// FileMode enables file persistence. If false, state is held in
	// memory only.
	FileMode bool
}

// Store persists authorization state per provider. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	storageDir string
	cache      map[string]*StoredState
	fileMode   bool
}

// NewStore creates a store. With FileMode set, the storage directory is
// created owner-only.
func NewStore(cfg Config) (*Store, error) {
	storageDir := cfg.StorageDir
	if storageDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		storageDir = filepath.Join(homeDir, DefaultStorageDir)
	}

	store := &Store{
		storageDir: storageDir,
		cache:      make(map[string]*StoredState),
		fileMode:   cfg.FileMode,
	}

	if cfg.FileMode {
		if err := os.MkdirAll(storageDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create state storage directory: %w", err)
		}
	}

	return store, nil
}

// StorageDir returns the directory backing the store.
func (s *Store) StorageDir() string {
	return s.storageDir
}

// Save persists a provider's authorization state. Token values are never
// logged, only provider and issuer identifiers.
func (s *Store) Save(provider, issuerURL string, state *authstate.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := &StoredState{
		Provider:  provider,
		IssuerURL: issuerURL,
		State:     state,
		UpdatedAt: time.Now(),
	}

	key := s.stateKey(provider)
	s.cache[key] = stored

	if s.fileMode {
		if err := s.writeStateFile(key, stored); err != nil {
			logging.Warn("TokenStore", "Failed to persist state for provider %s: %v", provider, err)
			return fmt.Errorf("failed to persist state: %w", err)
		}
		logging.Info("TokenStore", "Stored authorization state for provider %s (issuer %s)", provider, issuerURL)
	}

	return nil
}

// Get returns a provider's stored state, or nil when none exists.
func (s *Store) Get(provider string) *StoredState {
	key := s.stateKey(provider)

	s.mu.RLock()
	if stored, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return stored
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.cache[key]; ok {
		return stored
	}

	if s.fileMode {
		stored, err := s.readStateFile(key)
		if err == nil {
			s.cache[key] = stored
			return stored
		}
	}

	return nil
}

// IsAuthorized reports whether the provider has a usable stored credential.
func (s *Store) IsAuthorized(provider string) bool {
	stored := s.Get(provider)
	return stored != nil && stored.State != nil && stored.State.IsAuthorized()
}

// GetByIssuer returns the first stored state matching an issuer URL,
// regardless of the provider name it was saved under.
func (s *Store) GetByIssuer(issuerURL string) *StoredState {
	s.mu.RLock()
	for _, stored := range s.cache {
		if stored.IssuerURL == issuerURL {
			s.mu.RUnlock()
			return stored
		}
	}
	s.mu.RUnlock()

	if !s.fileMode {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.cache {
		if stored.IssuerURL == issuerURL {
			return stored
		}
	}
	return s.findByIssuerFromFilesLocked(issuerURL)
}

// findByIssuerFromFilesLocked scans state files for a matching issuer.
// Requires the write lock.
func (s *Store) findByIssuerFromFilesLocked(issuerURL string) *StoredState {
	entries, err := os.ReadDir(s.storageDir)
	if err != nil {
		return nil
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		stored, err := s.readStateFile(key)
		if err != nil {
			continue
		}
		if stored.IssuerURL == issuerURL {
			s.cache[key] = stored
			return stored
		}
	}
	return nil
}

// List returns all stored states, including file-only ones not yet cached.
func (s *Store) List() []*StoredState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fileMode {
		entries, err := os.ReadDir(s.storageDir)
		if err == nil {
			for _, entry := range entries {
				if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
					continue
				}
				key := strings.TrimSuffix(entry.Name(), ".json")
				if _, ok := s.cache[key]; ok {
					continue
				}
				if stored, err := s.readStateFile(key); err == nil {
					s.cache[key] = stored
				}
			}
		}
	}

	out := make([]*StoredState, 0, len(s.cache))
	for _, stored := range s.cache {
		out = append(out, stored)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Delete removes a provider's stored state.
func (s *Store) Delete(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.stateKey(provider)
	delete(s.cache, key)

	if s.fileMode {
		if err := s.deleteStateFile(key); err != nil {
			logging.Warn("TokenStore", "Failed to delete state for provider %s: %v", provider, err)
			return err
		}
	}

	logging.Info("TokenStore", "Deleted authorization state for provider %s", provider)
	return nil
}

// Clear removes all stored state, in memory and on disk.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := len(s.cache)
	s.cache = make(map[string]*StoredState)

	if s.fileMode {
		entries, err := os.ReadDir(s.storageDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to read state directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			if err := os.Remove(filepath.Join(s.storageDir, entry.Name())); err != nil {
				return fmt.Errorf("failed to remove state file %s: %w", entry.Name(), err)
			}
		}
	}

	logging.Info("TokenStore", "Cleared %d stored authorization states", cleared)
	return nil
}

// stateKey hashes a provider name into a filesystem-safe identifier.
func (s *Store) stateKey(provider string) string {
	hash := sha256.Sum256([]byte(provider))
	return hex.EncodeToString(hash[:16])
}

func (s *Store) writeStateFile(key string, stored *StoredState) error {
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	path := filepath.Join(s.storageDir, key+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

func (s *Store) readStateFile(key string) (*StoredState, error) {
	path := filepath.Join(s.storageDir, key+".json")

	// #nosec G304 -- path is built from a hashed key, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var stored StoredState
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &stored, nil
}

func (s *Store) deleteStateFile(key string) error {
	err := os.Remove(filepath.Join(s.storageDir, key+".json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Profile is the cached identity of the signed-in user.
type Profile struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

// Store holds the bearer token and cached profile for one session.
// The zero value is a usable in-memory store; use New to enable
// encrypted persistence under the profile's config directory.
type Store struct {
	mu      sync.RWMutex
	token   string
	profile *Profile
	dir     string // empty disables persistence
}

type persisted struct {
	Token   string   `json:"token"`
	Profile *Profile `json:"profile,omitempty"`
}

func GetConfigDir(profileName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "peopledesk", profileName)
}

// New returns a store persisting to dir. An empty dir keeps
// everything in memory only.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) SetProfile(p *Profile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
}

func (s *Store) Profile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// Clear wipes the token, the cached profile and the persisted file.
// Safe to call when already empty.
func (s *Store) Clear() {
	s.mu.Lock()
	s.token = ""
	s.profile = nil
	dir := s.dir
	s.mu.Unlock()

	if dir != "" {
		os.Remove(filepath.Join(dir, "credentials.json"))
	}
}

// Load restores a previously saved session. Returns false if there is
// nothing usable on disk.
func (s *Store) Load() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return false
	}

	data, err := os.ReadFile(filepath.Join(s.dir, "credentials.json"))
	if err != nil {
		return false
	}

	decrypted, err := decrypt(string(data))
	if err != nil {
		return false
	}

	var p persisted
	if err := json.Unmarshal(decrypted, &p); err != nil || p.Token == "" {
		return false
	}
	s.token = p.Token
	s.profile = p.Profile
	return true
}

// Save writes the current token and profile to disk, encrypted.
func (s *Store) Save() error {
	s.mu.RLock()
	p := persisted{Token: s.token, Profile: s.profile}
	dir := s.dir
	s.mu.RUnlock()

	if dir == "" {
		return fmt.Errorf("no config directory configured")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "credentials.json"), []byte(encrypted), 0600)
}

func getEncryptionKey() []byte {
	paths := []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}
	var id string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			id = strings.TrimSpace(string(data))
			break
		}
	}

	if id == "" {
		hostname, _ := os.Hostname()
		id = hostname
	}

	hash := sha256.Sum256([]byte(id))
	return hash[:]
}

func encrypt(data []byte) (string, error) {
	key := getEncryptionKey()
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	key := getEncryptionKey()
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

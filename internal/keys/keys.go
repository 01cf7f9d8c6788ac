package keys

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fileName = "keys.json"

// Store keeps credentials in keys.json under the config directory, readable
// by the owner only.
type Store struct {
	dir string
	now func() time.Time
}

// Entry is one stored credential.
type Entry struct {
	Key     string    `json:"key"`
	Updated time.Time `json:"updated_at,omitzero"`
}

// NewStore opens the store in ConfigDir.
func NewStore() (*Store, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return NewStoreAt(dir), nil
}

func NewStoreAt(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// ConfigDir is imgpost under the user config directory, or
// IMGPOST_CONFIG_DIR when set.
func ConfigDir() (string, error) {
	if dir := os.Getenv("IMGPOST_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "imgpost"), nil
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// load reads every entry. A file that others can read is narrowed back to
// 0600 first.
func (s *Store) load() (map[string]Entry, error) {
	path := s.Path()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return nil, fmt.Errorf("%s is readable by others and could not be restricted: %w", path, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries := map[string]Entry{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fileName, err)
	}
	return entries, nil
}

func (s *Store) save(entries map[string]Entry) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	// Replace atomically.
	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", fileName, err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", fileName, err)
	}
	return nil
}

// Set stores key under the credential's canonical name. name may also be
// the credential's environment variable.
func (s *Store) Set(name, key string) error {
	cred, err := Lookup(name)
	if err != nil {
		return err
	}

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[cred.Name] = Entry{Key: key, Updated: s.now().UTC().Truncate(time.Second)}
	return s.save(entries)
}

// Get returns the stored key, or "" when none is stored.
func (s *Store) Get(name string) (string, error) {
	cred, err := Lookup(name)
	if err != nil {
		return "", err
	}
	entries, err := s.load()
	if err != nil {
		return "", err
	}
	return entries[cred.Name].Key, nil
}

func (s *Store) Delete(name string) error {
	cred, err := Lookup(name)
	if err != nil {
		return err
	}
	entries, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := entries[cred.Name]; !ok {
		return fmt.Errorf("no key stored for %s", cred.Name)
	}

	delete(entries, cred.Name)
	return s.save(entries)
}

// Entries returns every stored credential keyed by canonical name.
func (s *Store) Entries() (map[string]Entry, error) {
	return s.load()
}

// MaskKey keeps the first and last four characters of keys longer than
// eight and hides everything else.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

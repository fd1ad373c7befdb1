// Package profile persists named hunt configurations.
package profile

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	homedir "github.com/mitchellh/go-homedir"

	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/state"
	"github.com/PentesterFlow/APIHunter/pkg/crawler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Bucket holds profiles in the store.
const Bucket = "profiles"

// ErrNotFound is returned when a profile does not exist.
var ErrNotFound = stderrors.New("profile not found")

// Profile is a saved configuration.
type Profile struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Config      *crawler.Config `json:"config"`
}

// Info is the listing view of a profile.
type Info struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	HasAuth     bool      `json:"has_auth"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store manages profiles on top of a key/value store.
type Store struct {
	kv  state.Store
	log *logger.Logger
	now func() time.Time
}

// DefaultPath returns ~/.apihunter/profiles.db.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".apihunter", "profiles.db"), nil
}

// Open opens the profile database at path, or at DefaultPath when path is empty.
func Open(path string, log *logger.Logger) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	} else if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}

	kv, err := state.NewBoltStore(path, Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open profiles: %w", err)
	}
	return New(kv, log), nil
}

// New wraps an existing store. The store must have Bucket.
func New(kv state.Store, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{kv: kv, log: log.WithComponent("profile"), now: time.Now}
}

// Close closes the underlying store.
func (s *Store) Close() error {
	return s.kv.Close()
}

// SanitizeName maps every character outside [A-Za-z0-9_-] to '_'.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Save stores cfg under name. Saving over an existing profile keeps its
// creation time.
func (s *Store) Save(name, description string, cfg *crawler.Config) (*Profile, error) {
	key := SanitizeName(name)
	if key == "" {
		return nil, fmt.Errorf("profile name is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("profile config is nil")
	}

	now := s.now().UTC()
	p := &Profile{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Config:      cfg.Clone(),
	}

	var existing Profile
	found, err := s.kv.Get(Bucket, key, &existing)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %q: %w", name, err)
	}
	if found {
		p.CreatedAt = existing.CreatedAt
	}

	if err := s.kv.Put(Bucket, key, p); err != nil {
		return nil, fmt.Errorf("failed to save profile %q: %w", name, err)
	}
	s.log.WithField("profile", key).Info("Profile saved")
	return p, nil
}

// Get returns the full profile.
func (s *Store) Get(name string) (*Profile, error) {
	key := SanitizeName(name)
	var p Profile
	found, err := s.kv.Get(Bucket, key, &p)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %q: %w", name, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if p.Config == nil {
		p.Config = crawler.DefaultConfig()
	}
	return &p, nil
}

// Load returns a copy of the configuration saved under name.
func (s *Store) Load(name string) (*crawler.Config, error) {
	p, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return p.Config, nil
}

// List returns every profile, most recently updated first.
func (s *Store) List() ([]Info, error) {
	keys, err := s.kv.Keys(Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	infos := make([]Info, 0, len(keys))
	for _, key := range keys {
		var p Profile
		found, err := s.kv.Get(Bucket, key, &p)
		if err != nil {
			s.log.WithError(err).WithField("profile", key).Warn("Skipping unreadable profile")
			continue
		}
		if !found {
			continue
		}
		info := Info{
			Name:        p.Name,
			Description: p.Description,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		}
		if info.Name == "" {
			info.Name = key
		}
		if p.Config != nil {
			info.URL = p.Config.StartURL
			info.HasAuth = p.Config.HasAuth()
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
		}
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

// Delete removes a profile.
func (s *Store) Delete(name string) error {
	key := SanitizeName(name)
	var p Profile
	found, err := s.kv.Get(Bucket, key, &p)
	if err != nil {
		return fmt.Errorf("failed to read profile %q: %w", name, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := s.kv.Delete(Bucket, key); err != nil {
		return fmt.Errorf("failed to delete profile %q: %w", name, err)
	}
	s.log.WithField("profile", key).Info("Profile deleted")
	return nil
}

// Export writes a profile to path as indented JSON. The file contains any
// saved credentials and is created with owner-only permissions.
func (s *Store) Export(name, path string) error {
	p, err := s.Get(name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Import reads an exported profile from path and saves it. An empty name
// keeps the name recorded in the file.
func (s *Store) Import(path, name string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if p.Config == nil {
		return nil, fmt.Errorf("%s holds no config", path)
	}

	// Fields the file omits keep their defaults.
	cfg := crawler.DefaultConfig()
	if err := json.Unmarshal(data, &struct {
		Config *crawler.Config `json:"config"`
	}{cfg}); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if name == "" {
		name = p.Name
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s.Save(name, p.Description, cfg)
}

package credentials

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// Sentinel errors
var (
	// ErrCredentialNotFound is returned when a profile doesn't exist.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrNoDefaultCredential is returned when no default is set.
	ErrNoDefaultCredential = errors.New("no default credential set")

	// ErrNotLoggedIn is returned when a profile holds no tokens.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Credential is a login profile: the server it belongs to and the token pair
// issued to this device.
type Credential struct {
	Name         string    `json:"name"`
	ServerURL    string    `json:"server_url"`
	Username     string    `json:"username"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LoggedIn reports whether the profile holds a token pair.
func (c *Credential) LoggedIn() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Config represents the credentials configuration file.
type Config struct {
	Version           int                   `json:"version"`
	DefaultCredential string                `json:"default_credential,omitempty"`
	Credentials       map[string]Credential `json:"credentials"`

	// DeviceFingerprint identifies this machine to the server. Every profile
	// shares it so a login replaces the previous session of the device.
	DeviceFingerprint string `json:"device_fingerprint"`
}

// Store manages credential storage on the local filesystem.
type Store struct {
	baseDir string
}

// NewStore creates a new credential store.
// If baseDir is empty, uses ~/.tsrunner/credentials/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".tsrunner", "credentials")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	store := &Store{baseDir: baseDir}

	if err := store.ensureConfig(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("credential store initialized")

	return store, nil
}

// Dir returns the directory holding the config file.
func (s *Store) Dir() string {
	return s.baseDir
}

// DeviceFingerprint returns the fingerprint this machine sends on login.
func (s *Store) DeviceFingerprint() (string, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.DeviceFingerprint, nil
}

// Save creates or replaces a profile. The first profile saved becomes the default.
func (s *Store) Save(cred Credential) error {
	err := s.update(func(cfg *Config) error {
		now := time.Now().UTC()
		cred.CreatedAt = now
		if existing, ok := cfg.Credentials[cred.Name]; ok {
			cred.CreatedAt = existing.CreatedAt
		}
		cred.UpdatedAt = now

		cfg.Credentials[cred.Name] = cred
		if cfg.DefaultCredential == "" {
			cfg.DefaultCredential = cred.Name
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().Str("name", cred.Name).Str("server", cred.ServerURL).Msg("credential saved")
	return nil
}

// Get retrieves a profile by name.
func (s *Store) Get(name string) (*Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.lookup(name)
}

// GetDefault retrieves the default profile.
// Returns ErrNoDefaultCredential if none is set.
func (s *Store) GetDefault() (*Credential, error) {
	return s.Resolve("")
}

// Resolve returns the named profile, or the default when name is empty.
func (s *Store) Resolve(name string) (*Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	if name == "" {
		if cfg.DefaultCredential == "" {
			return nil, ErrNoDefaultCredential
		}
		name = cfg.DefaultCredential
	}
	return cfg.lookup(name)
}

// List returns all stored profiles.
func (s *Store) List() ([]Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	credentials := make([]Credential, 0, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		credentials = append(credentials, cred)
	}
	return credentials, nil
}

// ClearTokens forgets the token pair of a profile but keeps the profile.
func (s *Store) ClearTokens(name string) error {
	return s.update(func(cfg *Config) error {
		cred, err := cfg.lookup(name)
		if err != nil {
			return err
		}
		cred.AccessToken = ""
		cred.RefreshToken = ""
		cred.UpdatedAt = time.Now().UTC()
		cfg.Credentials[name] = *cred
		return nil
	})
}

// Delete removes a profile, and unsets it as default when it was.
func (s *Store) Delete(name string) error {
	err := s.update(func(cfg *Config) error {
		if _, err := cfg.lookup(name); err != nil {
			return err
		}
		delete(cfg.Credentials, name)
		if cfg.DefaultCredential == name {
			cfg.DefaultCredential = ""
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("name", name).Msg("credential deleted")
	return nil
}

// SetDefault sets the default profile.
func (s *Store) SetDefault(name string) error {
	err := s.update(func(cfg *Config) error {
		if _, err := cfg.lookup(name); err != nil {
			return err
		}
		cfg.DefaultCredential = name
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("name", name).Msg("default credential set")
	return nil
}

func (c *Config) lookup(name string) (*Credential, error) {
	cred, ok := c.Credentials[name]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return &cred, nil
}

// update loads the config, applies fn and writes the result. Nothing is
// written when fn fails.
func (s *Store) update(fn func(*Config) error) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return s.saveConfig(cfg)
}

// ensureConfig creates an empty config if none exists, and gives a config
// without a device fingerprint a fresh one.
func (s *Store) ensureConfig() error {
	cfg := &Config{Version: 1, Credentials: make(map[string]Credential)}

	if _, err := os.Stat(s.configPath()); err == nil {
		if cfg, err = s.loadConfig(); err != nil {
			return err
		}
		if cfg.DeviceFingerprint != "" {
			return nil
		}
	}

	fingerprint, err := newDeviceFingerprint()
	if err != nil {
		return err
	}
	cfg.DeviceFingerprint = fingerprint

	return s.saveConfig(cfg)
}

func (s *Store) configPath() string {
	return filepath.Join(s.baseDir, "config.json")
}

// loadConfig reads the config file.
func (s *Store) loadConfig() (*Config, error) {
	data, err := os.ReadFile(s.configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Credentials == nil {
		cfg.Credentials = make(map[string]Credential)
	}

	return &cfg, nil
}

// saveConfig writes the config file atomically.
func (s *Store) saveConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := s.configPath()
	tempPath := configPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// newDeviceFingerprint returns "tsctl-" plus 16 random bytes in Base58.
func newDeviceFingerprint() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate device fingerprint: %w", err)
	}
	return "tsctl-" + base58.Encode(buf), nil
}

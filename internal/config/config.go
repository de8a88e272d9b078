package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Share    ShareConfig    `yaml:"share"`
	Auth     AuthConfig     `yaml:"auth"`
	Transfer TransferConfig `yaml:"transfer"`
	DBPath   string         `yaml:"db_path"`
}

// ShareConfig holds serving-session settings
type ShareConfig struct {
	Folder string `yaml:"folder"`
	Port   int    `yaml:"port"`
}

// AuthConfig holds share-password settings. The hash is a bcrypt digest;
// the plaintext password is never stored.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// TransferConfig holds download-engine settings
type TransferConfig struct {
	DestDir   string `yaml:"dest_dir"`
	ChunkSize int    `yaml:"chunk_size"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Share: ShareConfig{
			Folder: filepath.Join(home, "Public"),
			Port:   8080,
		},
		Auth: AuthConfig{
			Enabled:  false,
			Username: "user",
		},
		Transfer: TransferConfig{
			DestDir:   filepath.Join(home, "Downloads", "LANShare"),
			ChunkSize: 1 << 20,
		},
		DBPath: "",
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Save writes the config to the given path, creating parent directories.
// Used by the passwd command to persist share-password changes.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// SaveNew writes the config like Save but refuses to overwrite an
// existing file.
func (c *Config) SaveNew(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking config file: %w", err)
	}
	return c.Save(path)
}

// DefaultPath returns the per-user config path, used when saving and no
// explicit --config was given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "lanshare.yaml"
	}
	return filepath.Join(home, ".config", "lanshare", "lanshare.yaml")
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"lanshare.yaml",
		"/etc/lanshare/lanshare.yaml",
	}

	// Add user config path
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "lanshare", "lanshare.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// DatabasePath returns the configured DB path or a default next to the config
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "lanshare.db"
	}
	return filepath.Join(home, ".config", "lanshare", "lanshare.db")
}

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Backends a config can select for content queries.
const (
	BackendNewt   = "newt"
	BackendSQLite = "sqlite"
)

type Config struct {
	Store   Store   `yaml:"store"`
	Local   Local   `yaml:"local"`
	Site    Site    `yaml:"site"`
	Seed    Seed    `yaml:"seed"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type Store struct {
	Backend     string  `yaml:"backend"`
	SpaceUID    string  `yaml:"space_uid"`
	AppUID      string  `yaml:"app_uid"`
	APIType     string  `yaml:"api_type"`
	TokenEnv    string  `yaml:"token_env"`
	Models      Models  `yaml:"models"`
	RateLimit   float64 `yaml:"rate_limit"`
	Concurrency int     `yaml:"concurrency"`
}

type Models struct {
	Article string `yaml:"article"`
	Tag     string `yaml:"tag"`
	Author  string `yaml:"author"`
}

type Local struct {
	Path string `yaml:"path"`
}

type Site struct {
	PageLimit int `yaml:"page_limit"`
}

type Seed struct {
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for blogagg.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "blogagg")
}

// DataDir returns the XDG data directory for blogagg.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "blogagg")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/blogagg/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'blogagg init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Store: Store{
			Backend:  BackendSQLite,
			AppUID:   "blog",
			APIType:  "cdn",
			TokenEnv: "NEWT_CDN_API_TOKEN",
			Models: Models{
				Article: "article",
				Tag:     "tag",
				Author:  "author",
			},
			Concurrency: 1,
		},
		Site:    Site{PageLimit: 10},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	switch cfg.Store.Backend {
	case BackendNewt, BackendSQLite:
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if cfg.Store.Concurrency < 1 {
		cfg.Store.Concurrency = 1
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// LocalPath returns the SQLite content store path, defaulting to
// content.db inside the data directory.
func (c *Config) LocalPath() string {
	if c.Local.Path != "" {
		return c.Local.Path
	}
	return filepath.Join(c.GetDataDir(), "content.db")
}

// Token returns the delivery API token from the configured environment
// variable.
func (c *Config) Token() string {
	return os.Getenv(c.Store.TokenEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

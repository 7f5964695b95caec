package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir         = "./guard-data"
	DefaultMinUpgradeDelay = uint64(86400)
	DefaultHashAlgorithm   = "sha256"
	DefaultLogLevel        = "info"
	DefaultLogMaxSizeMB    = 64
	DefaultLogMaxBackups   = 5
	DefaultLogMaxAgeDays   = 30
)

// Config holds the settings for a guardctl data directory.
type Config struct {
	DataDir         string   `toml:"DataDir" yaml:"data_dir"`
	// Creator is the bech32 account allowed to initialise the contract.
	Creator         string   `toml:"Creator" yaml:"creator"`
	MinUpgradeDelay uint64   `toml:"MinUpgradeDelay" yaml:"min_upgrade_delay"`
	HashAlgorithm   string   `toml:"HashAlgorithm" yaml:"hash_algorithm"`
	AllowMigrate    bool     `toml:"AllowMigrate" yaml:"allow_migrate"`
	Pauses          []string `toml:"Pauses" yaml:"pauses"`
	Policy          Policy   `toml:"policy" yaml:"policy"`
	Logging         Logging  `toml:"logging" yaml:"logging"`
	Buckets         []Bucket `toml:"buckets" yaml:"buckets"`
}

// Default returns the configuration written for a fresh data directory.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML and everything else as TOML. A missing file is created with
// defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if isYAML(path) {
		if err := decodeYAML(path, cfg); err != nil {
			return nil, err
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
		}
	}

	cfg.applyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func decodeYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	cfg.Creator = strings.TrimSpace(cfg.Creator)
	cfg.HashAlgorithm = strings.ToLower(strings.TrimSpace(cfg.HashAlgorithm))
	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = DefaultHashAlgorithm
	}
	if cfg.Pauses == nil {
		cfg.Pauses = []string{}
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.MinUpgradeDelay = DefaultMinUpgradeDelay
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

package config

// Policy toggles the optional access control safety rails.
type Policy struct {
	GuardLastAdmin   bool `toml:"GuardLastAdmin" yaml:"guard_last_admin"`
	RequireHeldAdmin bool `toml:"RequireHeldAdmin" yaml:"require_held_admin"`
}

// Logging controls the structured logger.
type Logging struct {
	Env        string `toml:"Env" yaml:"env"`
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File,omitempty" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Bucket describes a rate limit bucket created when the contract is
// initialised. Limit is a base-10 integer so it can exceed 64 bits.
type Bucket struct {
	Name     string `toml:"Name" yaml:"name"`
	Limit    string `toml:"Limit" yaml:"limit"`
	Duration uint64 `toml:"Duration" yaml:"duration"`
}

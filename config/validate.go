package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"ledgerguard/core/types"
	"ledgerguard/crypto"
	"ledgerguard/native/access"
)

var knownModules = map[string]struct{}{
	"access":    {},
	"ratelimit": {},
	"upgrade":   {},
	"lifecycle": {},
	"guarded":   {},
}

// ValidateConfig checks cfg after defaults have been applied.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.Creator != "" {
		if _, err := crypto.DecodeAccount(cfg.Creator); err != nil {
			return fmt.Errorf("creator: %w", err)
		}
	}
	if _, err := crypto.HasherByName(cfg.HashAlgorithm); err != nil {
		return fmt.Errorf("hash_algorithm: %w", err)
	}
	for _, module := range cfg.Pauses {
		if _, ok := knownModules[strings.TrimSpace(module)]; !ok {
			return fmt.Errorf("pauses: unknown module %q", module)
		}
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 || cfg.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	seen := make(map[string]struct{}, len(cfg.Buckets))
	for i, b := range cfg.Buckets {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			return fmt.Errorf("buckets[%d]: name required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("buckets[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		if _, err := uint256.FromDecimal(strings.TrimSpace(b.Limit)); err != nil {
			return fmt.Errorf("buckets[%d]: invalid limit %q: %w", i, b.Limit, err)
		}
	}
	return nil
}

// CreatorAccount returns the configured creator.
func (cfg *Config) CreatorAccount() (types.Account, error) {
	if cfg.Creator == "" {
		return types.Account{}, fmt.Errorf("creator not configured")
	}
	return crypto.DecodeAccount(cfg.Creator)
}

// Hasher resolves the configured program hasher.
func (cfg *Config) Hasher() (crypto.ProgramHasher, error) {
	return crypto.HasherByName(cfg.HashAlgorithm)
}

// AccessPolicy converts the configured safety rails.
func (cfg *Config) AccessPolicy() access.Policy {
	return access.Policy{
		GuardLastAdmin:   cfg.Policy.GuardLastAdmin,
		RequireHeldAdmin: cfg.Policy.RequireHeldAdmin,
	}
}

// BucketSpec is a parsed Bucket.
type BucketSpec struct {
	ID       types.BucketID
	Name     string
	Limit    *uint256.Int
	Duration uint64
}

// BucketSpecs parses the configured buckets. Bucket ids are derived from
// their names.
func (cfg *Config) BucketSpecs() ([]BucketSpec, error) {
	specs := make([]BucketSpec, 0, len(cfg.Buckets))
	for i, b := range cfg.Buckets {
		name := strings.TrimSpace(b.Name)
		limit, err := uint256.FromDecimal(strings.TrimSpace(b.Limit))
		if err != nil {
			return nil, fmt.Errorf("buckets[%d]: invalid limit %q: %w", i, b.Limit, err)
		}
		specs = append(specs, BucketSpec{
			ID:       crypto.BucketFromName(name),
			Name:     name,
			Limit:    limit,
			Duration: b.Duration,
		})
	}
	return specs, nil
}

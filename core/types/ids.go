package types

import (
	"encoding/hex"
	"fmt"
)

// Role is an opaque 16-byte permission identifier. The zero value is the
// default admin role.
type Role [16]byte

// BucketID names a rate limit bucket.
type BucketID [32]byte

// CodeHash is the digest of a contract's program material.
type CodeHash [32]byte

// Account identifies a transaction sender or role holder.
type Account [32]byte

func (r Role) String() string     { return hex.EncodeToString(r[:]) }
func (r Role) IsZero() bool       { return r == Role{} }
func (b BucketID) String() string { return hex.EncodeToString(b[:]) }
func (h CodeHash) String() string { return hex.EncodeToString(h[:]) }
func (h CodeHash) IsZero() bool   { return h == CodeHash{} }
func (a Account) IsZero() bool    { return a == Account{} }

// String renders the account as hex. Human-facing output should prefer
// crypto.AccountAddress which applies the bech32 encoding.
func (a Account) String() string { return hex.EncodeToString(a[:]) }

// ParseRole decodes a 32 character hex string.
func ParseRole(s string) (Role, error) {
	var r Role
	if err := decodeFixed(s, r[:]); err != nil {
		return Role{}, fmt.Errorf("role: %w", err)
	}
	return r, nil
}

// ParseBucketID decodes a 64 character hex string.
func ParseBucketID(s string) (BucketID, error) {
	var b BucketID
	if err := decodeFixed(s, b[:]); err != nil {
		return BucketID{}, fmt.Errorf("bucket id: %w", err)
	}
	return b, nil
}

// ParseCodeHash decodes a 64 character hex string.
func ParseCodeHash(s string) (CodeHash, error) {
	var h CodeHash
	if err := decodeFixed(s, h[:]); err != nil {
		return CodeHash{}, fmt.Errorf("code hash: %w", err)
	}
	return h, nil
}

// ParseAccount decodes a 64 character hex string.
func ParseAccount(s string) (Account, error) {
	var a Account
	if err := decodeFixed(s, a[:]); err != nil {
		return Account{}, fmt.Errorf("account: %w", err)
	}
	return a, nil
}

func decodeFixed(s string, out []byte) error {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(out) {
		return fmt.Errorf("expected %d bytes, got %d", len(out), len(raw))
	}
	copy(out, raw)
	return nil
}

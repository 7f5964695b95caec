package crypto

import (
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	sha256 "github.com/minio/sha256-simd"
	"lukechampine.com/blake3"

	"ledgerguard/core/types"
)

// RoleFromName derives a role identifier from the first 16 bytes of the
// keccak256 digest of name.
func RoleFromName(name string) types.Role {
	var role types.Role
	copy(role[:], ethcrypto.Keccak256([]byte(name))[:len(role)])
	return role
}

// BucketFromName derives a bucket identifier from the keccak256 digest of name.
func BucketFromName(name string) types.BucketID {
	var id types.BucketID
	copy(id[:], ethcrypto.Keccak256([]byte(name)))
	return id
}

// ProgramHasher is the host hashing primitive used to fingerprint program
// material.
type ProgramHasher interface {
	Name() string
	Sum256(data []byte) [32]byte
}

type sha256Hasher struct{}

func (sha256Hasher) Name() string                { return "sha256" }
func (sha256Hasher) Sum256(data []byte) [32]byte { return sha256.Sum256(data) }

type blake3Hasher struct{}

func (blake3Hasher) Name() string                { return "blake3" }
func (blake3Hasher) Sum256(data []byte) [32]byte { return blake3.Sum256(data) }

// SHA256 is the default program hasher.
var SHA256 ProgramHasher = sha256Hasher{}

// BLAKE3 is an alternative program hasher for hosts that fingerprint code with
// BLAKE3.
var BLAKE3 ProgramHasher = blake3Hasher{}

// HasherByName resolves a configured hash algorithm.
func HasherByName(name string) (ProgramHasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256":
		return SHA256, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return nil, fmt.Errorf("crypto: unknown hash algorithm %q", name)
	}
}

// Program is the deployed program material of a contract, split into pages.
type Program struct {
	ApprovalPages [][]byte
	ClearPages    [][]byte
}

// ProgramHash computes
//
//	H("approval" || H(approval_0) || H(approval_1) || ... || "clear" || H(clear_0) || ...)
//
// so that programs larger than a single host value can be committed to.
func ProgramHash(h ProgramHasher, p Program) types.CodeHash {
	if h == nil {
		h = SHA256
	}
	buf := make([]byte, 0, len("approval")+len("clear")+32*(len(p.ApprovalPages)+len(p.ClearPages)))
	buf = append(buf, "approval"...)
	for _, page := range p.ApprovalPages {
		sum := h.Sum256(page)
		buf = append(buf, sum[:]...)
	}
	buf = append(buf, "clear"...)
	for _, page := range p.ClearPages {
		sum := h.Sum256(page)
		buf = append(buf, sum[:]...)
	}
	return types.CodeHash(h.Sum256(buf))
}

package ratelimit

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"ledgerguard/core/types"
)

// Bucket is a continuously replenishing token bucket. Limit tokens are
// restored linearly over Duration seconds. A zero Duration disables limiting.
type Bucket struct {
	Limit           *uint256.Int
	CurrentCapacity *uint256.Int
	Duration        uint64
	LastUpdated     uint64
}

// Unlimited reports whether the bucket ignores consumption.
func (b *Bucket) Unlimited() bool { return b.Duration == 0 }

// Clone returns a deep copy.
func (b *Bucket) Clone() *Bucket {
	if b == nil {
		return nil
	}
	return &Bucket{
		Limit:           cloneAmount(b.Limit),
		CurrentCapacity: cloneAmount(b.CurrentCapacity),
		Duration:        b.Duration,
		LastUpdated:     b.LastUpdated,
	}
}

// storedBucket is the persisted form; uint256 values travel as big integers
// through RLP.
type storedBucket struct {
	Limit           *big.Int
	CurrentCapacity *big.Int
	Duration        uint64
	LastUpdated     uint64
}

func (b *Bucket) toStored() *storedBucket {
	return &storedBucket{
		Limit:           cloneAmount(b.Limit).ToBig(),
		CurrentCapacity: cloneAmount(b.CurrentCapacity).ToBig(),
		Duration:        b.Duration,
		LastUpdated:     b.LastUpdated,
	}
}

func (s *storedBucket) toBucket() (*Bucket, error) {
	limit, err := fromBig(s.Limit)
	if err != nil {
		return nil, fmt.Errorf("limit: %w", err)
	}
	capacity, err := fromBig(s.CurrentCapacity)
	if err != nil {
		return nil, fmt.Errorf("capacity: %w", err)
	}
	return &Bucket{Limit: limit, CurrentCapacity: capacity, Duration: s.Duration, LastUpdated: s.LastUpdated}, nil
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("value exceeds 256 bits")
	}
	return out, nil
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// store abstracts the subset of state manager functionality required by the
// rate limiter.
type store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
	KVDelete(key []byte) error
}

var bucketPrefix = []byte("ratelimit/bucket/")

func bucketKey(id types.BucketID) []byte {
	buf := make([]byte, 0, len(bucketPrefix)+len(id))
	buf = append(buf, bucketPrefix...)
	return append(buf, id[:]...)
}

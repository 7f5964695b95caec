// Package ratelimit implements named token buckets that replenish
// continuously. There is no background tick: a bucket's capacity is
// recomputed from the time elapsed since its last update whenever it is read
// or mutated.
//
// Amounts are 256-bit unsigned integers. Bucket ids should be unique and are
// best derived with crypto.BucketFromName.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"ledgerguard/core/events"
	coreerrors "ledgerguard/core/errors"
	"ledgerguard/core/types"
)

var (
	ErrUnknownBucket        = coreerrors.ErrUnknownBucket
	ErrBucketExists         = coreerrors.ErrBucketExists
	ErrInsufficientCapacity = coreerrors.ErrInsufficientCapacity
)

// Manager owns the bucket region.
type Manager struct {
	state   store
	emitter events.Emitter
	nowFn   func() uint64
}

// NewManager constructs a rate limiter backed by state with a no-op emitter
// and the wall clock.
func NewManager(state store) *Manager {
	return &Manager{
		state:   state,
		emitter: events.NoopEmitter{},
		nowFn:   wallClock,
	}
}

func wallClock() uint64 { return uint64(time.Now().Unix()) }

// SetEmitter configures the event emitter used by the manager. Passing nil
// resets the emitter to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetNowFunc overrides the clock. Hosts supply the ledger timestamp here.
func (m *Manager) SetNowFunc(now func() uint64) {
	if now == nil {
		m.nowFn = wallClock
		return
	}
	m.nowFn = now
}

func (m *Manager) now() uint64 {
	if m == nil || m.nowFn == nil {
		return wallClock()
	}
	return m.nowFn()
}

// AddBucket creates a full bucket. It fails if id is already in use.
func (m *Manager) AddBucket(id types.BucketID, limit *uint256.Int, duration uint64) error {
	exists, err := m.state.KVHas(bucketKey(id))
	if err != nil {
		return fmt.Errorf("ratelimit: load bucket: %w", err)
	}
	if exists {
		return ErrBucketExists
	}
	bucket := &Bucket{
		Limit:           cloneAmount(limit),
		CurrentCapacity: cloneAmount(limit),
		Duration:        duration,
		LastUpdated:     m.now(),
	}
	if err := m.putBucket(id, bucket); err != nil {
		return err
	}
	m.emitter.Emit(events.NewBucketAdded(id, bucket.Limit, duration))
	return nil
}

// RemoveBucket deletes the bucket.
func (m *Manager) RemoveBucket(id types.BucketID) error {
	if err := m.checkBucketKnown(id); err != nil {
		return err
	}
	if err := m.state.KVDelete(bucketKey(id)); err != nil {
		return fmt.Errorf("ratelimit: delete bucket: %w", err)
	}
	m.emitter.Emit(events.BucketRemoved{BucketID: id})
	return nil
}

// GetBucket returns the stored bucket without refilling it.
func (m *Manager) GetBucket(id types.BucketID) (*Bucket, error) {
	var stored storedBucket
	ok, err := m.state.KVGet(bucketKey(id), &stored)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: load bucket: %w", err)
	}
	if !ok {
		return nil, ErrUnknownBucket
	}
	bucket, err := stored.toBucket()
	if err != nil {
		return nil, fmt.Errorf("ratelimit: decode bucket: %w", err)
	}
	return bucket, nil
}

// GetRateLimit returns the bucket's limit.
func (m *Manager) GetRateLimit(id types.BucketID) (*uint256.Int, error) {
	bucket, err := m.GetBucket(id)
	if err != nil {
		return nil, err
	}
	return bucket.Limit, nil
}

// GetRateDuration returns the bucket's replenish duration in seconds.
func (m *Manager) GetRateDuration(id types.BucketID) (uint64, error) {
	bucket, err := m.GetBucket(id)
	if err != nil {
		return 0, err
	}
	return bucket.Duration, nil
}

// UpdateCapacity brings the bucket's capacity up to date and persists it.
func (m *Manager) UpdateCapacity(id types.BucketID) error {
	_, err := m.refreshed(id)
	return err
}

// GetCurrentCapacity refills the bucket and returns its capacity.
func (m *Manager) GetCurrentCapacity(id types.BucketID) (*uint256.Int, error) {
	bucket, err := m.refreshed(id)
	if err != nil {
		return nil, err
	}
	return bucket.CurrentCapacity, nil
}

// HasCapacity refills the bucket and reports whether amount could be
// consumed. Unlimited buckets always have capacity.
func (m *Manager) HasCapacity(id types.BucketID, amount *uint256.Int) (bool, error) {
	bucket, err := m.refreshed(id)
	if err != nil {
		return false, err
	}
	if bucket.Unlimited() {
		return true, nil
	}
	return !cloneAmount(amount).Gt(bucket.CurrentCapacity), nil
}

// ConsumeAmount takes amount out of the bucket. Unlimited buckets are left
// untouched.
func (m *Manager) ConsumeAmount(id types.BucketID, amount *uint256.Int) error {
	bucket, err := m.refreshed(id)
	if err != nil {
		return err
	}
	if bucket.Unlimited() {
		return nil
	}
	amt := cloneAmount(amount)
	if amt.Gt(bucket.CurrentCapacity) {
		return ErrInsufficientCapacity
	}
	bucket.CurrentCapacity = new(uint256.Int).Sub(bucket.CurrentCapacity, amt)
	if err := m.putBucket(id, bucket); err != nil {
		return err
	}
	m.emitter.Emit(events.NewBucketConsumed(id, amt))
	return nil
}

// FillAmount returns up to amount to the bucket without exceeding its limit.
// The emitted event carries the amount actually applied.
func (m *Manager) FillAmount(id types.BucketID, amount *uint256.Int) error {
	bucket, err := m.refreshed(id)
	if err != nil {
		return err
	}
	if bucket.Unlimited() {
		return nil
	}
	headroom := new(uint256.Int).Sub(bucket.Limit, bucket.CurrentCapacity)
	fill := cloneAmount(amount)
	if fill.Gt(headroom) {
		fill = headroom
	}
	bucket.CurrentCapacity = new(uint256.Int).Add(bucket.CurrentCapacity, fill)
	if err := m.putBucket(id, bucket); err != nil {
		return err
	}
	m.emitter.Emit(events.NewBucketFilled(id, fill))
	return nil
}

// UpdateRateLimit changes the limit and shifts the current capacity by the
// same delta. A decrease larger than the current capacity empties the bucket.
func (m *Manager) UpdateRateLimit(id types.BucketID, newLimit *uint256.Int) error {
	bucket, err := m.refreshed(id)
	if err != nil {
		return err
	}
	limit := cloneAmount(newLimit)
	if limit.Lt(bucket.Limit) {
		diff := new(uint256.Int).Sub(bucket.Limit, limit)
		if bucket.CurrentCapacity.Gt(diff) {
			bucket.CurrentCapacity = new(uint256.Int).Sub(bucket.CurrentCapacity, diff)
		} else {
			bucket.CurrentCapacity = new(uint256.Int)
		}
	} else {
		diff := new(uint256.Int).Sub(limit, bucket.Limit)
		bucket.CurrentCapacity = new(uint256.Int).Add(bucket.CurrentCapacity, diff)
	}
	bucket.Limit = limit
	if err := m.putBucket(id, bucket); err != nil {
		return err
	}
	m.emitter.Emit(events.NewBucketRateLimitUpdated(id, limit))
	return nil
}

// UpdateRateDuration changes the replenish duration. Moving from unlimited to
// a finite duration restarts the refill clock so time spent unlimited is not
// credited.
func (m *Manager) UpdateRateDuration(id types.BucketID, newDuration uint64) error {
	bucket, err := m.refreshed(id)
	if err != nil {
		return err
	}
	if bucket.Unlimited() && newDuration != 0 {
		bucket.LastUpdated = m.now()
	}
	bucket.Duration = newDuration
	if err := m.putBucket(id, bucket); err != nil {
		return err
	}
	m.emitter.Emit(events.BucketRateDurationUpdated{BucketID: id, Duration: newDuration})
	return nil
}

func (m *Manager) checkBucketKnown(id types.BucketID) error {
	ok, err := m.state.KVHas(bucketKey(id))
	if err != nil {
		return fmt.Errorf("ratelimit: load bucket: %w", err)
	}
	if !ok {
		return ErrUnknownBucket
	}
	return nil
}

// refreshed loads the bucket, applies the refill for the current time and
// persists the result.
func (m *Manager) refreshed(id types.BucketID) (*Bucket, error) {
	bucket, err := m.GetBucket(id)
	if err != nil {
		return nil, err
	}
	if bucket.Unlimited() {
		return bucket, nil
	}
	Refill(bucket, m.now())
	if err := m.putBucket(id, bucket); err != nil {
		return nil, err
	}
	return bucket, nil
}

func (m *Manager) putBucket(id types.BucketID, bucket *Bucket) error {
	if err := m.state.KVPut(bucketKey(id), bucket.toStored()); err != nil {
		return fmt.Errorf("ratelimit: store bucket: %w", err)
	}
	return nil
}

// Refill credits limit*elapsed/duration to the bucket, capped at the limit.
// The product is formed at 512-bit width so it never truncates before the
// division. A timestamp earlier than LastUpdated credits nothing and leaves
// LastUpdated in place. Unlimited buckets are not modified.
func Refill(b *Bucket, now uint64) {
	if b == nil || b.Unlimited() {
		return
	}
	if b.Limit == nil {
		b.Limit = new(uint256.Int)
	}
	if b.CurrentCapacity == nil {
		b.CurrentCapacity = new(uint256.Int)
	}
	if now <= b.LastUpdated {
		if b.CurrentCapacity.Gt(b.Limit) {
			b.CurrentCapacity = new(uint256.Int).Set(b.Limit)
		}
		return
	}
	elapsed := uint256.NewInt(now - b.LastUpdated)
	credit, overflow := new(uint256.Int).MulDivOverflow(b.Limit, elapsed, uint256.NewInt(b.Duration))
	next, carry := new(uint256.Int).AddOverflow(b.CurrentCapacity, credit)
	if overflow || carry || next.Gt(b.Limit) {
		next.Set(b.Limit)
	}
	b.CurrentCapacity = next
	b.LastUpdated = now
}

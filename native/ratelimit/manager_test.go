package ratelimit

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"ledgerguard/core/events"
	"ledgerguard/core/state"
	"ledgerguard/core/types"
	"ledgerguard/crypto"
	"ledgerguard/storage"
)

type testClock struct{ now uint64 }

func (c *testClock) Now() uint64          { return c.now }
func (c *testClock) Advance(delta uint64) { c.now += delta }

var bucketID = crypto.BucketFromName("INBOUND")

func newTestLimiter(t *testing.T) (*Manager, *events.Recorder, *testClock) {
	t.Helper()
	clock := &testClock{now: 1_000}
	mgr := NewManager(state.NewManager(storage.NewMemDB()))
	mgr.SetNowFunc(clock.Now)
	rec := &events.Recorder{}
	mgr.SetEmitter(rec)
	return mgr, rec, clock
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func maxUint256() *uint256.Int { return new(uint256.Int).SetAllOne() }

func requireCapacity(t *testing.T, mgr *Manager, id types.BucketID, want uint64) {
	t.Helper()
	got, err := mgr.GetCurrentCapacity(id)
	require.NoError(t, err)
	require.Equal(t, want, got.Uint64(), "capacity")
}

func TestUnknownBucket(t *testing.T) {
	mgr, _, _ := newTestLimiter(t)
	_, err := mgr.GetCurrentCapacity(bucketID)
	require.ErrorIs(t, err, ErrUnknownBucket)
	_, err = mgr.GetRateLimit(bucketID)
	require.ErrorIs(t, err, ErrUnknownBucket)
	_, err = mgr.GetRateDuration(bucketID)
	require.ErrorIs(t, err, ErrUnknownBucket)
	_, err = mgr.HasCapacity(bucketID, u(1))
	require.ErrorIs(t, err, ErrUnknownBucket)
	require.ErrorIs(t, mgr.UpdateCapacity(bucketID), ErrUnknownBucket)
	require.ErrorIs(t, mgr.ConsumeAmount(bucketID, u(1)), ErrUnknownBucket)
	require.ErrorIs(t, mgr.FillAmount(bucketID, u(1)), ErrUnknownBucket)
	require.ErrorIs(t, mgr.UpdateRateLimit(bucketID, u(1)), ErrUnknownBucket)
	require.ErrorIs(t, mgr.UpdateRateDuration(bucketID, 1), ErrUnknownBucket)
	require.ErrorIs(t, mgr.RemoveBucket(bucketID), ErrUnknownBucket)
}

func TestAddBucket(t *testing.T) {
	mgr, rec, clock := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 60))

	bucket, err := mgr.GetBucket(bucketID)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bucket.Limit.Uint64())
	require.Equal(t, uint64(100), bucket.CurrentCapacity.Uint64())
	require.Equal(t, uint64(60), bucket.Duration)
	require.Equal(t, clock.now, bucket.LastUpdated)

	evts := rec.Drain()
	require.Len(t, evts, 1)
	require.Equal(t, events.NewBucketAdded(bucketID, u(100), 60), evts[0])

	require.ErrorIs(t, mgr.AddBucket(bucketID, u(1), 1), ErrBucketExists)
}

func TestConsumeThenRefillClampsToLimit(t *testing.T) {
	mgr, rec, clock := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	rec.Reset()

	require.NoError(t, mgr.ConsumeAmount(bucketID, u(40)))
	requireCapacity(t, mgr, bucketID, 60)
	require.Equal(t, []events.Event{events.NewBucketConsumed(bucketID, u(40))}, rec.Drain())

	// 60 + 100*50/100 = 110, clamped to 100
	clock.Advance(50)
	requireCapacity(t, mgr, bucketID, 100)
}

func TestRefillIsLinearAndMonotone(t *testing.T) {
	mgr, _, clock := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(1000), 100))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(1000)))
	requireCapacity(t, mgr, bucketID, 0)

	prev := uint64(0)
	for i := 0; i < 12; i++ {
		clock.Advance(10)
		got, err := mgr.GetCurrentCapacity(bucketID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got.Uint64(), prev)
		require.LessOrEqual(t, got.Uint64(), uint64(1000))
		prev = got.Uint64()
	}
	require.Equal(t, uint64(1000), prev)
}

func TestRefillSameInstantIsNoop(t *testing.T) {
	mgr, _, _ := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(30)))
	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.UpdateCapacity(bucketID))
		requireCapacity(t, mgr, bucketID, 70)
	}
}

func TestRefillTruncatesFractionalCredit(t *testing.T) {
	mgr, _, clock := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(10), 3))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(10)))
	clock.Advance(1)
	// 10*1/3 = 3
	requireCapacity(t, mgr, bucketID, 3)
}

func TestRefillDoesNotOverflowWithHugeLimit(t *testing.T) {
	mgr, _, clock := newTestLimiter(t)
	limit := maxUint256()
	require.NoError(t, mgr.AddBucket(bucketID, limit, 100))
	half := new(uint256.Int).Rsh(limit, 1)
	require.NoError(t, mgr.ConsumeAmount(bucketID, half))

	// limit*elapsed exceeds 256 bits; the credit must still be exact
	clock.Advance(10)
	got, err := mgr.GetCurrentCapacity(bucketID)
	require.NoError(t, err)
	credit, overflow := new(uint256.Int).MulDivOverflow(limit, u(10), u(100))
	require.False(t, overflow)
	want := new(uint256.Int).Sub(limit, half)
	want.Add(want, credit)
	require.Equal(t, want, got)

	clock.Advance(1_000_000)
	got, err = mgr.GetCurrentCapacity(bucketID)
	require.NoError(t, err)
	require.Equal(t, limit, got)
}

func TestRefillIgnoresClockRegression(t *testing.T) {
	b := &Bucket{Limit: u(100), CurrentCapacity: u(10), Duration: 100, LastUpdated: 500}
	Refill(b, 400)
	require.Equal(t, uint64(10), b.CurrentCapacity.Uint64())
	require.Equal(t, uint64(500), b.LastUpdated)
}

func TestUnlimitedBucket(t *testing.T) {
	mgr, rec, clock := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(0), 0))
	rec.Reset()
	before, err := mgr.GetBucket(bucketID)
	require.NoError(t, err)

	ok, err := mgr.HasCapacity(bucketID, maxUint256())
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(1_000)
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(500)))
	require.NoError(t, mgr.FillAmount(bucketID, u(500)))
	require.NoError(t, mgr.UpdateCapacity(bucketID))
	require.Zero(t, rec.Len())

	after, err := mgr.GetBucket(bucketID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestHasCapacity(t *testing.T) {
	mgr, _, _ := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(50)))

	ok, err := mgr.HasCapacity(bucketID, u(50))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = mgr.HasCapacity(bucketID, u(51))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConsumeInsufficientCapacity(t *testing.T) {
	mgr, rec, _ := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	rec.Reset()
	require.ErrorIs(t, mgr.ConsumeAmount(bucketID, u(101)), ErrInsufficientCapacity)
	require.Zero(t, rec.Len())
	requireCapacity(t, mgr, bucketID, 100)
}

func TestFillAmount(t *testing.T) {
	mgr, rec, _ := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(60)))
	rec.Reset()

	require.NoError(t, mgr.FillAmount(bucketID, u(20)))
	requireCapacity(t, mgr, bucketID, 60)
	require.Equal(t, []events.Event{events.NewBucketFilled(bucketID, u(20))}, rec.Drain())

	// only the headroom is applied and reported
	require.NoError(t, mgr.FillAmount(bucketID, u(500)))
	requireCapacity(t, mgr, bucketID, 100)
	require.Equal(t, []events.Event{events.NewBucketFilled(bucketID, u(40))}, rec.Drain())
}

func TestFillThenConsumeRestoresCapacity(t *testing.T) {
	mgr, _, _ := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(70)))
	require.NoError(t, mgr.FillAmount(bucketID, u(25)))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(25)))
	requireCapacity(t, mgr, bucketID, 30)
}

func TestFillDoesNotOverflowAtMaxLimit(t *testing.T) {
	mgr, _, _ := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	require.NoError(t, mgr.UpdateRateLimit(bucketID, maxUint256()))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(10)))
	require.NoError(t, mgr.FillAmount(bucketID, maxUint256()))
	got, err := mgr.GetCurrentCapacity(bucketID)
	require.NoError(t, err)
	require.Equal(t, maxUint256(), got)
}

func TestUpdateRateLimit(t *testing.T) {
	t.Run("decrease less than capacity", func(t *testing.T) {
		mgr, rec, _ := newTestLimiter(t)
		require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
		require.NoError(t, mgr.ConsumeAmount(bucketID, u(20)))
		rec.Reset()
		require.NoError(t, mgr.UpdateRateLimit(bucketID, u(70)))
		requireCapacity(t, mgr, bucketID, 50)
		limit, err := mgr.GetRateLimit(bucketID)
		require.NoError(t, err)
		require.Equal(t, uint64(70), limit.Uint64())
		require.Equal(t, []events.Event{events.NewBucketRateLimitUpdated(bucketID, u(70))}, rec.Drain())
	})
	t.Run("decrease beyond capacity clamps to zero", func(t *testing.T) {
		mgr, _, _ := newTestLimiter(t)
		require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
		require.NoError(t, mgr.ConsumeAmount(bucketID, u(80)))
		require.NoError(t, mgr.UpdateRateLimit(bucketID, u(50)))
		requireCapacity(t, mgr, bucketID, 0)
	})
	t.Run("increase adds delta", func(t *testing.T) {
		mgr, _, _ := newTestLimiter(t)
		require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
		require.NoError(t, mgr.ConsumeAmount(bucketID, u(80)))
		require.NoError(t, mgr.UpdateRateLimit(bucketID, u(150)))
		requireCapacity(t, mgr, bucketID, 70)
	})
	t.Run("refills before adjusting", func(t *testing.T) {
		mgr, _, clock := newTestLimiter(t)
		require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
		require.NoError(t, mgr.ConsumeAmount(bucketID, u(100)))
		clock.Advance(30)
		require.NoError(t, mgr.UpdateRateLimit(bucketID, u(90)))
		// 30 refilled, then reduced by 10
		requireCapacity(t, mgr, bucketID, 20)
	})
}

func TestUpdateRateDuration(t *testing.T) {
	mgr, rec, clock := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	rec.Reset()
	require.NoError(t, mgr.UpdateRateDuration(bucketID, 200))
	duration, err := mgr.GetRateDuration(bucketID)
	require.NoError(t, err)
	require.Equal(t, uint64(200), duration)
	require.Equal(t, []events.Event{events.BucketRateDurationUpdated{BucketID: bucketID, Duration: 200}}, rec.Drain())

	require.NoError(t, mgr.ConsumeAmount(bucketID, u(100)))
	clock.Advance(100)
	requireCapacity(t, mgr, bucketID, 50)
}

func TestUpdateRateDurationFromUnlimitedResetsClock(t *testing.T) {
	mgr, _, clock := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 0))

	// drain while finite, then go unlimited for a long time
	require.NoError(t, mgr.UpdateRateDuration(bucketID, 50))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(100)))
	require.NoError(t, mgr.UpdateRateDuration(bucketID, 0))
	clock.Advance(10_000)

	require.NoError(t, mgr.UpdateRateDuration(bucketID, 50))
	bucket, err := mgr.GetBucket(bucketID)
	require.NoError(t, err)
	require.Equal(t, clock.now, bucket.LastUpdated)
	requireCapacity(t, mgr, bucketID, 0)

	clock.Advance(25)
	requireCapacity(t, mgr, bucketID, 50)
}

func TestRemoveAndRecreateBucket(t *testing.T) {
	mgr, rec, _ := newTestLimiter(t)
	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	require.NoError(t, mgr.ConsumeAmount(bucketID, u(100)))
	rec.Reset()

	require.NoError(t, mgr.RemoveBucket(bucketID))
	require.Equal(t, []events.Event{events.BucketRemoved{BucketID: bucketID}}, rec.Drain())
	_, err := mgr.GetBucket(bucketID)
	require.ErrorIs(t, err, ErrUnknownBucket)

	require.NoError(t, mgr.AddBucket(bucketID, u(100), 100))
	requireCapacity(t, mgr, bucketID, 100)
}

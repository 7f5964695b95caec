package guarded

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"ledgerguard/core/events"
	"ledgerguard/core/host"
	"ledgerguard/core/types"
	"ledgerguard/crypto"
	"ledgerguard/native/access"
	"ledgerguard/native/lifecycle"
	"ledgerguard/native/ratelimit"
	"ledgerguard/native/upgrade"
	"ledgerguard/storage"
)

var (
	creator  = types.Account{0xC0}
	admin    = types.Account{0xAD}
	stranger = types.Account{0x99}

	withdrawals = crypto.BucketFromName("withdrawals")
)

type testClock struct{ now uint64 }

func (c *testClock) Now() uint64 { return c.now }

type fixture struct {
	rt       *host.Runtime
	contract *Contract
	clock    *testClock
	sink     *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: 1000}
	sink := &events.Recorder{}
	rt, err := host.New(storage.NewMemDB(), host.WithClock(clock.Now), host.WithSink(sink))
	require.NoError(t, err)
	c := New(rt.State(), creator)
	c.SetEmitter(rt.Emitter())
	c.SetNowFunc(rt.Now)
	f := &fixture{rt: rt, contract: c, clock: clock, sink: sink}
	f.call(t, creator, "Create", func(sender types.Account) error { return c.Create(100) })
	return f
}

func (f *fixture) call(t *testing.T, sender types.Account, method string, fn func(types.Account) error) {
	t.Helper()
	_, err := f.try(sender, method, fn)
	require.NoError(t, err)
}

func (f *fixture) try(sender types.Account, method string, fn func(types.Account) error) (*host.Receipt, error) {
	return f.rt.Call("guarded", method, sender, func(call *host.Call) error {
		return fn(call.Sender)
	})
}

func (f *fixture) initialise(t *testing.T) {
	t.Helper()
	f.call(t, creator, "Initialise", func(sender types.Account) error {
		return f.contract.Initialise(sender, admin)
	})
	f.sink.Reset()
}

func TestInitialiseOrderAndRoles(t *testing.T) {
	f := newFixture(t)

	_, err := f.try(stranger, "Initialise", func(sender types.Account) error {
		return f.contract.Initialise(sender, admin)
	})
	require.ErrorIs(t, err, lifecycle.ErrNotCreator)

	receipt, err := f.try(creator, "Initialise", func(sender types.Account) error {
		return f.contract.Initialise(sender, admin)
	})
	require.NoError(t, err)
	require.Equal(t, []events.Event{
		events.Initialised{},
		events.RoleGranted{Role: access.DefaultAdminRole, Account: admin, Sender: creator},
		events.RoleGranted{Role: upgrade.UpgradableAdminRole, Account: admin, Sender: creator},
		events.RoleGranted{Role: RateLimiterAdminRole, Account: admin, Sender: creator},
	}, receipt.Events)

	_, err = f.try(creator, "Initialise", func(sender types.Account) error {
		return f.contract.Initialise(sender, admin)
	})
	require.ErrorIs(t, err, lifecycle.ErrAlreadyInitialised)
}

func TestRateLimiterOpsRequireRoleAndInitialisation(t *testing.T) {
	f := newFixture(t)

	_, err := f.try(admin, "AddBucket", func(sender types.Account) error {
		return f.contract.AddBucket(sender, withdrawals, uint256.NewInt(100), 60)
	})
	require.ErrorIs(t, err, lifecycle.ErrNotInitialised)

	f.initialise(t)

	_, err = f.try(stranger, "AddBucket", func(sender types.Account) error {
		return f.contract.AddBucket(sender, withdrawals, uint256.NewInt(100), 60)
	})
	require.ErrorIs(t, err, access.ErrUnauthorised)

	f.call(t, admin, "AddBucket", func(sender types.Account) error {
		return f.contract.AddBucket(sender, withdrawals, uint256.NewInt(100), 60)
	})
	f.call(t, admin, "ConsumeAmount", func(sender types.Account) error {
		return f.contract.ConsumeAmount(sender, withdrawals, uint256.NewInt(100))
	})
	f.call(t, admin, "FillAmount", func(sender types.Account) error {
		return f.contract.FillAmount(sender, withdrawals, uint256.NewInt(30))
	})
	f.call(t, admin, "UpdateRateLimit", func(sender types.Account) error {
		return f.contract.UpdateRateLimit(sender, withdrawals, uint256.NewInt(50))
	})
	f.call(t, admin, "UpdateRateDuration", func(sender types.Account) error {
		return f.contract.UpdateRateDuration(sender, withdrawals, 0)
	})

	f.call(t, stranger, "GetBucket", func(types.Account) error {
		bucket, err := f.contract.Limiter().GetBucket(withdrawals)
		require.NoError(t, err)
		require.Equal(t, uint256.NewInt(50), bucket.Limit)
		require.True(t, bucket.CurrentCapacity.IsZero())
		require.True(t, bucket.Unlimited())
		return nil
	})

	_, err = f.try(stranger, "RemoveBucket", func(sender types.Account) error {
		return f.contract.RemoveBucket(sender, withdrawals)
	})
	require.ErrorIs(t, err, access.ErrUnauthorised)
	f.call(t, admin, "RemoveBucket", func(sender types.Account) error {
		return f.contract.RemoveBucket(sender, withdrawals)
	})
}

func TestAssetWithdrawals(t *testing.T) {
	f := newFixture(t)
	f.initialise(t)

	_, err := f.try(stranger, "Withdraw", func(types.Account) error {
		return f.contract.Withdraw(7, uint256.NewInt(1))
	})
	require.ErrorIs(t, err, ErrUnknownAsset)

	f.call(t, admin, "RegisterAsset", func(sender types.Account) error {
		return f.contract.RegisterAsset(sender, 7, uint256.NewInt(1000), 100)
	})
	_, err = f.try(admin, "RegisterAsset", func(sender types.Account) error {
		return f.contract.RegisterAsset(sender, 7, uint256.NewInt(1000), 100)
	})
	require.ErrorIs(t, err, ratelimit.ErrBucketExists)

	f.call(t, stranger, "Withdraw", func(types.Account) error {
		return f.contract.Withdraw(7, uint256.NewInt(800))
	})
	_, err = f.try(stranger, "Withdraw", func(types.Account) error {
		return f.contract.Withdraw(7, uint256.NewInt(300))
	})
	require.ErrorIs(t, err, ratelimit.ErrInsufficientCapacity)

	// 10% of the window refills 10% of the limit
	f.clock.now += 10
	f.call(t, stranger, "Withdraw", func(types.Account) error {
		return f.contract.Withdraw(7, uint256.NewInt(300))
	})
	f.call(t, stranger, "Deposit", func(types.Account) error {
		return f.contract.Deposit(7, uint256.NewInt(5000))
	})
	f.call(t, stranger, "Capacity", func(types.Account) error {
		capacity, err := f.contract.Limiter().GetCurrentCapacity(AssetBucket(7))
		require.NoError(t, err)
		require.Equal(t, uint256.NewInt(1000), capacity)
		assets, err := f.contract.Assets()
		require.NoError(t, err)
		require.Equal(t, []uint64{7}, assets)
		return nil
	})

	f.call(t, admin, "UnregisterAsset", func(sender types.Account) error {
		return f.contract.UnregisterAsset(sender, 7)
	})
	_, err = f.try(admin, "UnregisterAsset", func(sender types.Account) error {
		return f.contract.UnregisterAsset(sender, 7)
	})
	require.ErrorIs(t, err, ErrUnknownAsset)
	f.call(t, stranger, "Assets", func(types.Account) error {
		assets, err := f.contract.Assets()
		require.NoError(t, err)
		require.Empty(t, assets)
		return nil
	})
}

func TestUpgradeLifecycle(t *testing.T) {
	f := newFixture(t)
	f.initialise(t)
	next := crypto.Program{ApprovalPages: [][]byte{[]byte("v2")}, ClearPages: [][]byte{[]byte("clear")}}
	hash := crypto.ProgramHash(nil, next)

	_, err := f.try(admin, "ScheduleContractUpgrade", func(sender types.Account) error {
		return f.contract.Governor().ScheduleContractUpgrade(sender, hash, 1050)
	})
	require.ErrorIs(t, err, upgrade.ErrScheduleTooSoon)
	f.call(t, admin, "ScheduleContractUpgrade", func(sender types.Account) error {
		return f.contract.Governor().ScheduleContractUpgrade(sender, hash, 1100)
	})

	f.clock.now = 1100
	f.call(t, stranger, "CompleteContractUpgrade", func(types.Account) error {
		version, err := f.contract.Governor().CompleteContractUpgrade(next)
		require.EqualValues(t, 2, version)
		return err
	})

	// the upgraded code must initialise again; roles are retained so the
	// creator re-runs initialise without duplicate grants
	_, err = f.try(admin, "AddBucket", func(sender types.Account) error {
		return f.contract.AddBucket(sender, withdrawals, uint256.NewInt(1), 1)
	})
	require.ErrorIs(t, err, lifecycle.ErrNotInitialised)

	receipt, err := f.try(creator, "Initialise", func(sender types.Account) error {
		return f.contract.Initialise(sender, admin)
	})
	require.NoError(t, err)
	require.Equal(t, []events.Event{events.Initialised{}}, receipt.Events)
}

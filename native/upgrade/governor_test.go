package upgrade

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ledgerguard/core/events"
	"ledgerguard/core/state"
	"ledgerguard/core/types"
	"ledgerguard/crypto"
	"ledgerguard/native/access"
	"ledgerguard/native/lifecycle"
	"ledgerguard/storage"
)

var (
	admin    = types.Account{0xAD}
	stranger = types.Account{0x99}
)

type testClock struct{ now uint64 }

func (c *testClock) Now() uint64          { return c.now }
func (c *testClock) Advance(delta uint64) { c.now += delta }

type fixture struct {
	gov   *Governor
	clock *testClock
	rec   *events.Recorder
}

func newFixture(t *testing.T, minDelay uint64) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	acl := access.NewManager(st)
	guard := lifecycle.NewGuard(st)
	gov := NewGovernor(st, acl, guard)
	clock := &testClock{now: 1000}
	gov.SetNowFunc(clock.Now)
	rec := &events.Recorder{}
	acl.SetEmitter(rec)
	guard.SetEmitter(rec)
	gov.SetEmitter(rec)

	require.NoError(t, gov.Create(minDelay))
	require.NoError(t, gov.Initialise(admin, admin))
	rec.Reset()
	return &fixture{gov: gov, clock: clock, rec: rec}
}

func program(tag string) crypto.Program {
	return crypto.Program{
		ApprovalPages: [][]byte{[]byte("approval-" + tag)},
		ClearPages:    [][]byte{[]byte("clear-" + tag)},
	}
}

func TestCreateAndInitialise(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	acl := access.NewManager(st)
	guard := lifecycle.NewGuard(st)
	gov := NewGovernor(st, acl, guard)
	rec := &events.Recorder{}
	acl.SetEmitter(rec)
	guard.SetEmitter(rec)

	require.NoError(t, gov.Create(60))
	require.Error(t, gov.Create(60))

	delay, err := gov.MinUpgradeDelay()
	require.NoError(t, err)
	require.Equal(t, MinimumUpgradeDelay{Delay0: 0, Delay1: 60, Timestamp: 0}, delay)
	version, err := gov.Version()
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	// privileged operations are closed before initialise
	require.ErrorIs(t, gov.ScheduleContractUpgrade(admin, types.CodeHash{1}, 1<<40), ErrNotInitialised)

	require.NoError(t, gov.Initialise(admin, admin))
	require.Equal(t, []events.Event{
		events.Initialised{},
		events.RoleGranted{Role: access.DefaultAdminRole, Account: admin, Sender: admin},
		events.RoleGranted{Role: UpgradableAdminRole, Account: admin, Sender: admin},
	}, rec.Drain())

	require.ErrorIs(t, gov.Initialise(admin, admin), ErrAlreadyInitialised)
	has, err := acl.HasRole(UpgradableAdminRole, admin)
	require.NoError(t, err)
	require.True(t, has)
}

func TestUpgradableAdminRoleDerivation(t *testing.T) {
	require.Equal(t, crypto.RoleFromName("UPGRADEABLE_ADMIN"), UpgradableAdminRole)
	require.False(t, UpgradableAdminRole.IsZero())
}

func TestScheduleRespectsActiveDelay(t *testing.T) {
	f := newFixture(t, 100)
	hash := crypto.ProgramHash(nil, program("v2"))

	require.ErrorIs(t, f.gov.ScheduleContractUpgrade(stranger, hash, 2000), ErrUnauthorised)
	require.ErrorIs(t, f.gov.ScheduleContractUpgrade(admin, hash, 1099), ErrScheduleTooSoon)
	require.NoError(t, f.gov.ScheduleContractUpgrade(admin, hash, 1100))

	scheduled, ok, err := f.gov.ScheduledUpgrade()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ScheduledUpgrade{ProgramHash: hash, Timestamp: 1100}, *scheduled)
	require.Equal(t, []events.Event{events.UpgradeScheduled{ProgramHash: hash, Timestamp: 1100}}, f.rec.Drain())

	// rescheduling overwrites
	other := crypto.ProgramHash(nil, program("v3"))
	require.NoError(t, f.gov.ScheduleContractUpgrade(admin, other, 5000))
	scheduled, _, err = f.gov.ScheduledUpgrade()
	require.NoError(t, err)
	require.Equal(t, other, scheduled.ProgramHash)
	require.EqualValues(t, 5000, scheduled.Timestamp)
}

func TestScheduleOverflowIsTooSoon(t *testing.T) {
	f := newFixture(t, ^uint64(0))
	require.ErrorIs(t, f.gov.ScheduleContractUpgrade(admin, types.CodeHash{1}, ^uint64(0)), ErrScheduleTooSoon)
}

func TestCancelUpgrade(t *testing.T) {
	f := newFixture(t, 10)

	require.ErrorIs(t, f.gov.CancelContractUpgrade(admin), ErrNoScheduledUpgrade)
	require.NoError(t, f.gov.ScheduleContractUpgrade(admin, types.CodeHash{7}, 1010))
	f.rec.Reset()

	require.ErrorIs(t, f.gov.CancelContractUpgrade(stranger), ErrUnauthorised)
	f.clock.Advance(5)
	require.NoError(t, f.gov.CancelContractUpgrade(admin))
	require.Equal(t, []events.Event{events.UpgradeCancelled{Timestamp: 1005}}, f.rec.Drain())

	_, ok, err := f.gov.ScheduledUpgrade()
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, f.gov.CancelContractUpgrade(admin), ErrNoScheduledUpgrade)
}

func TestCompleteUpgrade(t *testing.T) {
	f := newFixture(t, 50)
	next := program("v2")
	hash := crypto.ProgramHash(nil, next)

	_, err := f.gov.CompleteContractUpgrade(next)
	require.ErrorIs(t, err, ErrNoScheduledUpgrade)

	require.NoError(t, f.gov.ScheduleContractUpgrade(admin, hash, 1050))
	f.rec.Reset()

	_, err = f.gov.CompleteContractUpgrade(next)
	require.ErrorIs(t, err, ErrUpgradeNotDue)

	f.clock.Advance(50)
	_, err = f.gov.CompleteContractUpgrade(program("tampered"))
	require.ErrorIs(t, err, ErrCodeHashMismatch)

	// anyone may complete; no sender is involved
	version, err := f.gov.CompleteContractUpgrade(next)
	require.NoError(t, err)
	require.EqualValues(t, 2, version)
	require.Equal(t, []events.Event{events.UpgradeCompleted{ProgramHash: hash, Version: 2}}, f.rec.Drain())

	_, ok, err := f.gov.ScheduledUpgrade()
	require.NoError(t, err)
	require.False(t, ok)

	done, err := f.gov.Guard().IsInitialised()
	require.NoError(t, err)
	require.False(t, done)

	// the new version must initialise again before completing another upgrade
	_, err = f.gov.CompleteContractUpgrade(next)
	require.ErrorIs(t, err, ErrNotInitialised)
	require.ErrorIs(t, f.gov.ScheduleContractUpgrade(admin, hash, 9999), ErrNotInitialised)

	// roles survive the upgrade
	has, err := f.gov.Access().HasRole(UpgradableAdminRole, admin)
	require.NoError(t, err)
	require.True(t, has)
}

func TestCompleteUpgradeWithBLAKE3(t *testing.T) {
	f := newFixture(t, 0)
	f.gov.SetHasher(crypto.BLAKE3)
	next := program("v2")

	require.NoError(t, f.gov.ScheduleContractUpgrade(admin, crypto.ProgramHash(nil, next), 1000))
	_, err := f.gov.CompleteContractUpgrade(next)
	require.ErrorIs(t, err, ErrCodeHashMismatch)

	require.NoError(t, f.gov.ScheduleContractUpgrade(admin, crypto.ProgramHash(crypto.BLAKE3, next), 1000))
	version, err := f.gov.CompleteContractUpgrade(next)
	require.NoError(t, err)
	require.EqualValues(t, 2, version)
}

func TestMinDelaySwitchesAtActivation(t *testing.T) {
	f := newFixture(t, 100)

	require.ErrorIs(t, f.gov.UpdateMinUpgradeDelay(stranger, 10, 2000), ErrUnauthorised)
	require.ErrorIs(t, f.gov.UpdateMinUpgradeDelay(admin, 10, 1099), ErrScheduleTooSoon)
	require.NoError(t, f.gov.UpdateMinUpgradeDelay(admin, 10, 1100))
	require.Equal(t, []events.Event{events.MinimumUpgradeDelayChanged{Delay: 10, Timestamp: 1100}}, f.rec.Drain())

	delay, err := f.gov.MinUpgradeDelay()
	require.NoError(t, err)
	require.Equal(t, MinimumUpgradeDelay{Delay0: 100, Delay1: 10, Timestamp: 1100}, delay)

	f.clock.now = 1099
	active, err := f.gov.GetActiveMinUpgradeDelay()
	require.NoError(t, err)
	require.EqualValues(t, 100, active)
	require.ErrorIs(t, f.gov.ScheduleContractUpgrade(admin, types.CodeHash{1}, 1108), ErrScheduleTooSoon)

	f.clock.now = 1100
	active, err = f.gov.GetActiveMinUpgradeDelay()
	require.NoError(t, err)
	require.EqualValues(t, 10, active)
	require.NoError(t, f.gov.ScheduleContractUpgrade(admin, types.CodeHash{1}, 1110))
}

func TestMinDelayPendingChangeIsReplaced(t *testing.T) {
	f := newFixture(t, 100)

	require.NoError(t, f.gov.UpdateMinUpgradeDelay(admin, 10, 1200))
	// still pending: the fallback stays at the original delay
	require.NoError(t, f.gov.UpdateMinUpgradeDelay(admin, 20, 1300))

	delay, err := f.gov.MinUpgradeDelay()
	require.NoError(t, err)
	require.Equal(t, MinimumUpgradeDelay{Delay0: 100, Delay1: 20, Timestamp: 1300}, delay)

	// once active, the staged value rolls into the fallback slot
	f.clock.now = 1300
	require.NoError(t, f.gov.UpdateMinUpgradeDelay(admin, 5, 1320))
	delay, err = f.gov.MinUpgradeDelay()
	require.NoError(t, err)
	require.Equal(t, MinimumUpgradeDelay{Delay0: 20, Delay1: 5, Timestamp: 1320}, delay)
}

func TestMinimumUpgradeDelayActive(t *testing.T) {
	d := MinimumUpgradeDelay{Delay0: 1, Delay1: 2, Timestamp: 10}
	require.EqualValues(t, 1, d.Active(9))
	require.EqualValues(t, 2, d.Active(10))
	require.EqualValues(t, 2, d.Active(11))
}

// Package upgrade decides when a contract may replace its own code.
//
// An upgrade must be scheduled at least the active minimum delay in the
// future, and changes to that delay must wait the same way. A new schedule
// overwrites any pending one. Completing an upgrade is open to anyone once the
// scheduled time has passed, provided the caller presents program material
// whose hash matches the schedule. Completion resets the initialisation flag
// so the new code version must run its initialise step again.
//
// The governor never swaps code itself; the host does that once
// CompleteContractUpgrade succeeds.
package upgrade

import (
	"errors"
	"fmt"
	"math"
	"time"

	"ledgerguard/core/events"
	coreerrors "ledgerguard/core/errors"
	"ledgerguard/core/types"
	"ledgerguard/crypto"
	"ledgerguard/native/access"
	"ledgerguard/native/lifecycle"
)

var (
	ErrUnauthorised       = coreerrors.ErrUnauthorised
	ErrNotInitialised     = coreerrors.ErrNotInitialised
	ErrAlreadyInitialised = coreerrors.ErrAlreadyInitialised
	ErrScheduleTooSoon    = coreerrors.ErrScheduleTooSoon
	ErrNoScheduledUpgrade = coreerrors.ErrNoScheduledUpgrade
	ErrUpgradeNotDue      = coreerrors.ErrUpgradeNotDue
	ErrCodeHashMismatch   = coreerrors.ErrCodeHashMismatch

	errAlreadyCreated = errors.New("upgrade: governor already created")
)

// UpgradableAdminRole may schedule and cancel upgrades and change the minimum
// delay.
var UpgradableAdminRole = crypto.RoleFromName("UPGRADEABLE_ADMIN")

// Governor owns the min-delay, scheduled-upgrade and version singletons. It
// consults access control and the lifecycle guard only through their public
// operations.
type Governor struct {
	state   store
	access  *access.Manager
	guard   *lifecycle.Guard
	emitter events.Emitter
	nowFn   func() uint64
	hasher  crypto.ProgramHasher
}

// NewGovernor wires a governor to its collaborators.
func NewGovernor(state store, acl *access.Manager, guard *lifecycle.Guard) *Governor {
	return &Governor{
		state:   state,
		access:  acl,
		guard:   guard,
		emitter: events.NoopEmitter{},
		nowFn:   wallClock,
		hasher:  crypto.SHA256,
	}
}

func wallClock() uint64 { return uint64(time.Now().Unix()) }

// SetEmitter configures the event emitter used by the governor. Passing nil
// resets the emitter to a no-op implementation.
func (g *Governor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

// SetNowFunc overrides the clock.
func (g *Governor) SetNowFunc(now func() uint64) {
	if now == nil {
		g.nowFn = wallClock
		return
	}
	g.nowFn = now
}

// SetHasher selects the program hashing primitive.
func (g *Governor) SetHasher(h crypto.ProgramHasher) {
	if h == nil {
		h = crypto.SHA256
	}
	g.hasher = h
}

func (g *Governor) now() uint64 {
	if g == nil || g.nowFn == nil {
		return wallClock()
	}
	return g.nowFn()
}

// Access exposes the access control manager the governor checks against.
func (g *Governor) Access() *access.Manager { return g.access }

// Guard exposes the lifecycle guard.
func (g *Governor) Guard() *lifecycle.Guard { return g.guard }

// Create records the initial minimum delay and version. It runs once, when
// the contract is deployed.
func (g *Governor) Create(minUpgradeDelay uint64) error {
	exists, err := g.state.KVHas(minDelayKey)
	if err != nil {
		return fmt.Errorf("upgrade: load min delay: %w", err)
	}
	if exists {
		return errAlreadyCreated
	}
	if err := g.putMinDelay(MinimumUpgradeDelay{Delay1: minUpgradeDelay}); err != nil {
		return err
	}
	return g.putVersion(1)
}

// Initialise completes base initialisation and grants the default admin and
// upgradable admin roles to admin. Callers are responsible for checking who
// may initialise.
func (g *Governor) Initialise(sender, admin types.Account) error {
	if err := g.guard.Initialise(); err != nil {
		return err
	}
	if _, err := g.access.GrantRoleUnchecked(sender, access.DefaultAdminRole, admin); err != nil {
		return err
	}
	if _, err := g.access.GrantRoleUnchecked(sender, UpgradableAdminRole, admin); err != nil {
		return err
	}
	return nil
}

// UpdateMinUpgradeDelay stages a new minimum delay that takes effect at
// timestamp. If the currently staged delay is already active it is rolled
// into the fallback slot first; otherwise the pending change is replaced.
func (g *Governor) UpdateMinUpgradeDelay(sender types.Account, delay, timestamp uint64) error {
	if err := g.authorise(sender); err != nil {
		return err
	}
	if err := g.checkScheduleTimestamp(timestamp); err != nil {
		return err
	}
	current, err := g.MinUpgradeDelay()
	if err != nil {
		return err
	}
	if g.now() >= current.Timestamp {
		current.Delay0 = current.Delay1
	}
	current.Delay1 = delay
	current.Timestamp = timestamp
	if err := g.putMinDelay(current); err != nil {
		return err
	}
	g.emitter.Emit(events.MinimumUpgradeDelayChanged{Delay: delay, Timestamp: timestamp})
	return nil
}

// ScheduleContractUpgrade records the hash of the program to upgrade to and
// the earliest time the upgrade may complete, replacing any pending schedule.
func (g *Governor) ScheduleContractUpgrade(sender types.Account, programHash types.CodeHash, timestamp uint64) error {
	if err := g.authorise(sender); err != nil {
		return err
	}
	if err := g.checkScheduleTimestamp(timestamp); err != nil {
		return err
	}
	scheduled := ScheduledUpgrade{ProgramHash: programHash, Timestamp: timestamp}
	if err := g.state.KVPut(scheduledKey, &scheduled); err != nil {
		return fmt.Errorf("upgrade: store schedule: %w", err)
	}
	g.emitter.Emit(events.UpgradeScheduled{ProgramHash: programHash, Timestamp: timestamp})
	return nil
}

// CancelContractUpgrade removes the pending schedule.
func (g *Governor) CancelContractUpgrade(sender types.Account) error {
	if err := g.authorise(sender); err != nil {
		return err
	}
	if _, err := g.requireScheduled(); err != nil {
		return err
	}
	if err := g.state.KVDelete(scheduledKey); err != nil {
		return fmt.Errorf("upgrade: delete schedule: %w", err)
	}
	g.emitter.Emit(events.UpgradeCancelled{Timestamp: g.now()})
	return nil
}

// CompleteContractUpgrade authorises the pending upgrade. Anyone may call it
// once the schedule is due; program must be the material the caller is
// deploying and must hash to the scheduled value. On success the schedule is
// cleared, the version is incremented and the contract becomes uninitialised.
func (g *Governor) CompleteContractUpgrade(program crypto.Program) (uint64, error) {
	if err := g.guard.RequireInitialised(); err != nil {
		return 0, err
	}
	scheduled, err := g.requireScheduled()
	if err != nil {
		return 0, err
	}
	if g.now() < scheduled.Timestamp {
		return 0, ErrUpgradeNotDue
	}
	hash := crypto.ProgramHash(g.hasher, program)
	if hash != scheduled.ProgramHash {
		return 0, ErrCodeHashMismatch
	}
	if err := g.state.KVDelete(scheduledKey); err != nil {
		return 0, fmt.Errorf("upgrade: delete schedule: %w", err)
	}
	version, err := g.Version()
	if err != nil {
		return 0, err
	}
	if version == math.MaxUint64 {
		return 0, fmt.Errorf("upgrade: version overflow")
	}
	version++
	if err := g.putVersion(version); err != nil {
		return 0, err
	}
	if err := g.guard.Reset(); err != nil {
		return 0, err
	}
	g.emitter.Emit(events.UpgradeCompleted{ProgramHash: hash, Version: version})
	return version, nil
}

// GetActiveMinUpgradeDelay returns the delay binding at the current time.
func (g *Governor) GetActiveMinUpgradeDelay() (uint64, error) {
	delay, err := g.MinUpgradeDelay()
	if err != nil {
		return 0, err
	}
	return delay.Active(g.now()), nil
}

// MinUpgradeDelay returns the raw dual-slot value.
func (g *Governor) MinUpgradeDelay() (MinimumUpgradeDelay, error) {
	var delay MinimumUpgradeDelay
	if _, err := g.state.KVGet(minDelayKey, &delay); err != nil {
		return MinimumUpgradeDelay{}, fmt.Errorf("upgrade: load min delay: %w", err)
	}
	return delay, nil
}

// ScheduledUpgrade returns the pending upgrade, if any.
func (g *Governor) ScheduledUpgrade() (*ScheduledUpgrade, bool, error) {
	var scheduled ScheduledUpgrade
	ok, err := g.state.KVGet(scheduledKey, &scheduled)
	if err != nil {
		return nil, false, fmt.Errorf("upgrade: load schedule: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &scheduled, true, nil
}

// Version returns the code version counter. It starts at 1.
func (g *Governor) Version() (uint64, error) {
	var version uint64
	ok, err := g.state.KVGet(versionKey, &version)
	if err != nil {
		return 0, fmt.Errorf("upgrade: load version: %w", err)
	}
	if !ok {
		return 1, nil
	}
	return version, nil
}

func (g *Governor) authorise(sender types.Account) error {
	if err := g.guard.RequireInitialised(); err != nil {
		return err
	}
	return g.access.CheckSenderRole(sender, UpgradableAdminRole)
}

func (g *Governor) checkScheduleTimestamp(timestamp uint64) error {
	delay, err := g.GetActiveMinUpgradeDelay()
	if err != nil {
		return err
	}
	now := g.now()
	if delay > math.MaxUint64-now {
		return ErrScheduleTooSoon
	}
	if timestamp < now+delay {
		return ErrScheduleTooSoon
	}
	return nil
}

func (g *Governor) requireScheduled() (*ScheduledUpgrade, error) {
	scheduled, ok, err := g.ScheduledUpgrade()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoScheduledUpgrade
	}
	return scheduled, nil
}

func (g *Governor) putMinDelay(delay MinimumUpgradeDelay) error {
	if err := g.state.KVPut(minDelayKey, &delay); err != nil {
		return fmt.Errorf("upgrade: store min delay: %w", err)
	}
	return nil
}

func (g *Governor) putVersion(version uint64) error {
	if err := g.state.KVPut(versionKey, version); err != nil {
		return fmt.Errorf("upgrade: store version: %w", err)
	}
	return nil
}

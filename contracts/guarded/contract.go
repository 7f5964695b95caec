// Package guarded is a contract assembled from the native safety modules. It
// rate limits withdrawals of registered assets, lets a dedicated role manage
// the limits and is upgradable under the governor's delay rules.
//
// Modules are composed explicitly; the contract's Initialise runs each
// module's setup in a fixed order.
package guarded

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"ledgerguard/core/events"
	"ledgerguard/core/types"
	"ledgerguard/crypto"
	"ledgerguard/native/access"
	"ledgerguard/native/common"
	"ledgerguard/native/lifecycle"
	"ledgerguard/native/ratelimit"
	"ledgerguard/native/upgrade"
)

// RateLimiterAdminRole manages buckets and registered assets.
var RateLimiterAdminRole = crypto.RoleFromName("RATE_LIMITER_ADMIN")

var (
	ErrUnknownAsset = fmt.Errorf("guarded: %w", ratelimit.ErrUnknownBucket)
	errAssetExists  = fmt.Errorf("guarded: %w", ratelimit.ErrBucketExists)
)

var assetsKey = []byte("guarded/assets")

type store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
	KVDelete(key []byte) error
}

// Contract owns one instance of every module over a shared state.
type Contract struct {
	state    store
	access   *access.Manager
	guard    *lifecycle.CreatorGuard
	governor *upgrade.Governor
	limiter  *ratelimit.Manager
}

// New assembles the contract. creator is the account that deployed it and
// the only one allowed to initialise it.
func New(state store, creator types.Account) *Contract {
	acl := access.NewManager(state)
	guard := lifecycle.NewCreatorGuard(lifecycle.NewGuard(state), creator)
	return &Contract{
		state:    state,
		access:   acl,
		guard:    guard,
		governor: upgrade.NewGovernor(state, acl, guard.Guard),
		limiter:  ratelimit.NewManager(state),
	}
}

// SetEmitter routes every module's events to emitter.
func (c *Contract) SetEmitter(emitter events.Emitter) {
	c.access.SetEmitter(emitter)
	c.guard.SetEmitter(emitter)
	c.governor.SetEmitter(emitter)
	c.limiter.SetEmitter(emitter)
}

// SetNowFunc sets the clock used by the time-dependent modules.
func (c *Contract) SetNowFunc(now func() uint64) {
	c.governor.SetNowFunc(now)
	c.limiter.SetNowFunc(now)
}

// SetHasher selects the program hashing primitive used for upgrades.
func (c *Contract) SetHasher(h crypto.ProgramHasher) { c.governor.SetHasher(h) }

// SetPolicy configures the access control safety rails.
func (c *Contract) SetPolicy(p access.Policy) { c.access.SetPolicy(p) }

func (c *Contract) Access() *access.Manager { return c.access }
func (c *Contract) Governor() *upgrade.Governor { return c.governor }
func (c *Contract) Limiter() *ratelimit.Manager { return c.limiter }
func (c *Contract) Lifecycle() *lifecycle.Guard { return c.guard.Guard }
func (c *Contract) Creator() types.Account { return c.guard.Creator() }

// Create runs the deploy-time setup.
func (c *Contract) Create(minUpgradeDelay uint64) error {
	return c.governor.Create(minUpgradeDelay)
}

// Initialise checks that sender is the creator, completes base
// initialisation with the default and upgradable admin roles granted to
// admin, and finally grants admin the rate limiter admin role.
func (c *Contract) Initialise(sender, admin types.Account) error {
	if err := c.guard.CheckCreator(sender); err != nil {
		return err
	}
	if err := c.governor.Initialise(sender, admin); err != nil {
		return err
	}
	_, err := c.access.GrantRoleUnchecked(sender, RateLimiterAdminRole, admin)
	return err
}

func (c *Contract) onlyRateLimiterAdmin(sender types.Account) error {
	if err := c.guard.RequireInitialised(); err != nil {
		return err
	}
	return c.access.CheckSenderRole(sender, RateLimiterAdminRole)
}

// AddBucket creates a bucket.
func (c *Contract) AddBucket(sender types.Account, id types.BucketID, limit *uint256.Int, duration uint64) error {
	if err := c.onlyRateLimiterAdmin(sender); err != nil {
		return err
	}
	return c.limiter.AddBucket(id, limit, duration)
}

// RemoveBucket deletes a bucket.
func (c *Contract) RemoveBucket(sender types.Account, id types.BucketID) error {
	if err := c.onlyRateLimiterAdmin(sender); err != nil {
		return err
	}
	return c.limiter.RemoveBucket(id)
}

// UpdateRateLimit changes a bucket's limit.
func (c *Contract) UpdateRateLimit(sender types.Account, id types.BucketID, limit *uint256.Int) error {
	if err := c.onlyRateLimiterAdmin(sender); err != nil {
		return err
	}
	return c.limiter.UpdateRateLimit(id, limit)
}

// UpdateRateDuration changes a bucket's replenish duration.
func (c *Contract) UpdateRateDuration(sender types.Account, id types.BucketID, duration uint64) error {
	if err := c.onlyRateLimiterAdmin(sender); err != nil {
		return err
	}
	return c.limiter.UpdateRateDuration(id, duration)
}

// ConsumeAmount takes amount out of a bucket.
func (c *Contract) ConsumeAmount(sender types.Account, id types.BucketID, amount *uint256.Int) error {
	if err := c.onlyRateLimiterAdmin(sender); err != nil {
		return err
	}
	return c.limiter.ConsumeAmount(id, amount)
}

// FillAmount returns amount to a bucket.
func (c *Contract) FillAmount(sender types.Account, id types.BucketID, amount *uint256.Int) error {
	if err := c.onlyRateLimiterAdmin(sender); err != nil {
		return err
	}
	return c.limiter.FillAmount(id, amount)
}

// AssetBucket returns the bucket that limits withdrawals of asset.
func AssetBucket(asset uint64) types.BucketID {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], asset)
	return crypto.BucketFromName("asset/" + string(buf[:]))
}

// Assets lists the registered asset ids.
func (c *Contract) Assets() ([]uint64, error) {
	set, err := c.assets()
	if err != nil {
		return nil, err
	}
	return set.Values(), nil
}

// RegisterAsset starts rate limiting withdrawals of asset.
func (c *Contract) RegisterAsset(sender types.Account, asset uint64, limit *uint256.Int, duration uint64) error {
	if err := c.onlyRateLimiterAdmin(sender); err != nil {
		return err
	}
	set, err := c.assets()
	if err != nil {
		return err
	}
	added, err := set.Add(asset)
	if err != nil {
		return err
	}
	if !added {
		return errAssetExists
	}
	if err := c.limiter.AddBucket(AssetBucket(asset), limit, duration); err != nil {
		return err
	}
	return c.putAssets(set)
}

// UnregisterAsset stops tracking asset and deletes its bucket.
func (c *Contract) UnregisterAsset(sender types.Account, asset uint64) error {
	if err := c.onlyRateLimiterAdmin(sender); err != nil {
		return err
	}
	set, err := c.assets()
	if err != nil {
		return err
	}
	if !set.Remove(asset) {
		return ErrUnknownAsset
	}
	if err := c.limiter.RemoveBucket(AssetBucket(asset)); err != nil {
		return err
	}
	return c.putAssets(set)
}

// Withdraw draws amount from the asset's bucket. Anyone may withdraw; the
// bucket bounds the aggregate outflow.
func (c *Contract) Withdraw(asset uint64, amount *uint256.Int) error {
	if err := c.guard.RequireInitialised(); err != nil {
		return err
	}
	set, err := c.assets()
	if err != nil {
		return err
	}
	if !set.Has(asset) {
		return ErrUnknownAsset
	}
	return c.limiter.ConsumeAmount(AssetBucket(asset), amount)
}

// Deposit credits amount back to the asset's bucket.
func (c *Contract) Deposit(asset uint64, amount *uint256.Int) error {
	if err := c.guard.RequireInitialised(); err != nil {
		return err
	}
	set, err := c.assets()
	if err != nil {
		return err
	}
	if !set.Has(asset) {
		return ErrUnknownAsset
	}
	return c.limiter.FillAmount(AssetBucket(asset), amount)
}

func (c *Contract) assets() (*common.Uint64Set, error) {
	set := &common.Uint64Set{}
	if _, err := c.state.KVGet(assetsKey, set); err != nil {
		return nil, fmt.Errorf("guarded: load assets: %w", err)
	}
	return set, nil
}

func (c *Contract) putAssets(set *common.Uint64Set) error {
	if set.Len() == 0 {
		if err := c.state.KVDelete(assetsKey); err != nil {
			return fmt.Errorf("guarded: delete assets: %w", err)
		}
		return nil
	}
	if err := c.state.KVPut(assetsKey, set); err != nil {
		return fmt.Errorf("guarded: store assets: %w", err)
	}
	return nil
}

// Package lifecycle implements the one-shot initialisation guard shared by
// contracts that need a setup step after deployment or after every upgrade.
//
// Contracts embed a Guard and expose their own top-level initialise operation
// which calls Guard.Initialise first and then performs contract specific
// setup (granting initial roles, creating buckets, ...). Privileged
// operations call RequireInitialised before touching state.
package lifecycle

import (
	"ledgerguard/core/events"
	coreerrors "ledgerguard/core/errors"
	"ledgerguard/core/types"
)

var (
	ErrAlreadyInitialised = coreerrors.ErrAlreadyInitialised
	ErrNotInitialised     = coreerrors.ErrNotInitialised
	ErrNotCreator         = coreerrors.ErrNotCreator
)

var initialisedKey = []byte("lifecycle/initialised")

type store interface {
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
	KVDelete(key []byte) error
}

// Initialiser is the single primitive a contract's initialise operation must
// complete before running its own setup.
type Initialiser interface {
	Initialise() error
}

// Guard persists the initialisation flag.
type Guard struct {
	state   store
	emitter events.Emitter
}

// NewGuard constructs a guard backed by state.
func NewGuard(state store) *Guard {
	return &Guard{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the guard. Passing nil resets
// the emitter to a no-op implementation.
func (g *Guard) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

// IsInitialised reports the current flag value.
func (g *Guard) IsInitialised() (bool, error) {
	return g.state.KVHas(initialisedKey)
}

// Initialise flips the flag. It fails if the contract is already initialised.
func (g *Guard) Initialise() error {
	done, err := g.IsInitialised()
	if err != nil {
		return err
	}
	if done {
		return ErrAlreadyInitialised
	}
	if err := g.state.KVPut(initialisedKey, true); err != nil {
		return err
	}
	g.emitter.Emit(events.Initialised{})
	return nil
}

// RequireInitialised fails unless Initialise has completed.
func (g *Guard) RequireInitialised() error {
	done, err := g.IsInitialised()
	if err != nil {
		return err
	}
	if !done {
		return ErrNotInitialised
	}
	return nil
}

// Reset clears the flag so the next code version must initialise again. Only
// the upgrade governor calls this, after completing an upgrade.
func (g *Guard) Reset() error {
	return g.state.KVDelete(initialisedKey)
}

// CreatorGuard restricts initialisation to the account that created the
// contract.
type CreatorGuard struct {
	*Guard
	creator types.Account
}

// NewCreatorGuard wraps guard with a creator check.
func NewCreatorGuard(guard *Guard, creator types.Account) *CreatorGuard {
	return &CreatorGuard{Guard: guard, creator: creator}
}

// Creator returns the account allowed to initialise.
func (c *CreatorGuard) Creator() types.Account { return c.creator }

// CheckCreator fails with ErrNotCreator unless sender created the contract.
func (c *CreatorGuard) CheckCreator(sender types.Account) error {
	if sender != c.creator {
		return ErrNotCreator
	}
	return nil
}

// InitialiseFrom checks sender against the creator before initialising.
func (c *CreatorGuard) InitialiseFrom(sender types.Account) error {
	if err := c.CheckCreator(sender); err != nil {
		return err
	}
	return c.Guard.Initialise()
}

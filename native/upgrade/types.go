package upgrade

import "ledgerguard/core/types"

// MinimumUpgradeDelay is a dual-slot delay. Delay1 becomes binding at
// Timestamp; before that Delay0 applies.
type MinimumUpgradeDelay struct {
	Delay0    uint64
	Delay1    uint64
	Timestamp uint64
}

// Active returns the delay binding at now.
func (d MinimumUpgradeDelay) Active(now uint64) uint64 {
	if now >= d.Timestamp {
		return d.Delay1
	}
	return d.Delay0
}

// ScheduledUpgrade is the single pending upgrade, if any.
type ScheduledUpgrade struct {
	ProgramHash types.CodeHash
	Timestamp   uint64
}

// store abstracts the subset of state manager functionality required by the
// governor.
type store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
	KVDelete(key []byte) error
}

var (
	minDelayKey  = []byte("upgrade/min-delay")
	scheduledKey = []byte("upgrade/scheduled")
	versionKey   = []byte("upgrade/version")
)

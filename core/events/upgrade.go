package events

import (
	"strconv"

	"ledgerguard/core/types"
)

const (
	TypeUpgradeScheduled           = "upgrade.scheduled"
	TypeUpgradeCancelled           = "upgrade.cancelled"
	TypeUpgradeCompleted           = "upgrade.completed"
	TypeMinimumUpgradeDelayChanged = "upgrade.minDelayChanged"
	TypeInitialised                = "lifecycle.initialised"
)

type UpgradeScheduled struct {
	ProgramHash types.CodeHash
	Timestamp   uint64
}

func (UpgradeScheduled) EventType() string { return TypeUpgradeScheduled }

func (e UpgradeScheduled) Event() *types.Event {
	return &types.Event{
		Type: TypeUpgradeScheduled,
		Attributes: map[string]string{
			"programHash": e.ProgramHash.String(),
			"timestamp":   strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// UpgradeCancelled records the time of cancellation.
type UpgradeCancelled struct {
	Timestamp uint64
}

func (UpgradeCancelled) EventType() string { return TypeUpgradeCancelled }

func (e UpgradeCancelled) Event() *types.Event {
	return &types.Event{
		Type:       TypeUpgradeCancelled,
		Attributes: map[string]string{"timestamp": strconv.FormatUint(e.Timestamp, 10)},
	}
}

type UpgradeCompleted struct {
	ProgramHash types.CodeHash
	Version     uint64
}

func (UpgradeCompleted) EventType() string { return TypeUpgradeCompleted }

func (e UpgradeCompleted) Event() *types.Event {
	return &types.Event{
		Type: TypeUpgradeCompleted,
		Attributes: map[string]string{
			"programHash": e.ProgramHash.String(),
			"version":     strconv.FormatUint(e.Version, 10),
		},
	}
}

type MinimumUpgradeDelayChanged struct {
	Delay     uint64
	Timestamp uint64
}

func (MinimumUpgradeDelayChanged) EventType() string { return TypeMinimumUpgradeDelayChanged }

func (e MinimumUpgradeDelayChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeMinimumUpgradeDelayChanged,
		Attributes: map[string]string{
			"delay":     strconv.FormatUint(e.Delay, 10),
			"timestamp": strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

type Initialised struct{}

func (Initialised) EventType() string { return TypeInitialised }

func (Initialised) Event() *types.Event {
	return &types.Event{Type: TypeInitialised, Attributes: map[string]string{}}
}

package events

import (
	"ledgerguard/core/types"
	"ledgerguard/crypto"
)

const (
	// TypeRoleAdminChanged is emitted when a role's admin role is replaced.
	TypeRoleAdminChanged = "access.roleAdminChanged"
	// TypeRoleGranted is emitted when an account gains a role it did not hold.
	TypeRoleGranted = "access.roleGranted"
	// TypeRoleRevoked is emitted when an account loses a role it held.
	TypeRoleRevoked = "access.roleRevoked"
)

type RoleAdminChanged struct {
	Role          types.Role
	PreviousAdmin types.Role
	NewAdmin      types.Role
}

func (RoleAdminChanged) EventType() string { return TypeRoleAdminChanged }

func (e RoleAdminChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeRoleAdminChanged,
		Attributes: map[string]string{
			"role":          e.Role.String(),
			"previousAdmin": e.PreviousAdmin.String(),
			"newAdmin":      e.NewAdmin.String(),
		},
	}
}

type RoleGranted struct {
	Role    types.Role
	Account types.Account
	Sender  types.Account
}

func (RoleGranted) EventType() string { return TypeRoleGranted }

func (e RoleGranted) Event() *types.Event {
	return &types.Event{
		Type: TypeRoleGranted,
		Attributes: map[string]string{
			"role":    e.Role.String(),
			"account": crypto.AccountAddress(e.Account),
			"sender":  crypto.AccountAddress(e.Sender),
		},
	}
}

type RoleRevoked struct {
	Role    types.Role
	Account types.Account
	Sender  types.Account
}

func (RoleRevoked) EventType() string { return TypeRoleRevoked }

func (e RoleRevoked) Event() *types.Event {
	return &types.Event{
		Type: TypeRoleRevoked,
		Attributes: map[string]string{
			"role":    e.Role.String(),
			"account": crypto.AccountAddress(e.Account),
			"sender":  crypto.AccountAddress(e.Sender),
		},
	}
}

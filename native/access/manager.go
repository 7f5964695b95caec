// Package access implements role-based access control for native contracts.
//
// Roles are opaque 16-byte identifiers, usually derived with
// crypto.RoleFromName. Every role has an admin role; only holders of the admin
// role may grant or revoke it. Unknown roles are administered by the default
// admin role (the zero Role), which administers itself.
//
// Two lockouts are reachable and intentionally not prevented by default:
// renouncing the default admin role without a successor, and configuring
// roles as each other's admins while nobody holds either. Policy enables
// optional rails against both.
package access

import (
	"fmt"

	"ledgerguard/core/events"
	coreerrors "ledgerguard/core/errors"
	"ledgerguard/core/types"
)

var (
	ErrUnauthorised    = coreerrors.ErrUnauthorised
	ErrLastAdmin       = coreerrors.ErrLastAdmin
	ErrAdminRoleUnheld = coreerrors.ErrAdminRoleUnheld
)

// DefaultAdminRole is the reserved self-administering role.
var DefaultAdminRole = types.Role{}

// Policy toggles the optional safety rails.
type Policy struct {
	// GuardLastAdmin rejects revoking or renouncing the default admin role
	// when that would leave it without holders.
	GuardLastAdmin bool
	// RequireHeldAdmin rejects SetRoleAdmin when nobody holds the new admin
	// role.
	RequireHeldAdmin bool
}

// Manager owns the role-admin, role-assignment and member-count regions.
type Manager struct {
	state   store
	emitter events.Emitter
	policy  Policy
}

// NewManager constructs a manager backed by state with a no-op emitter.
func NewManager(state store) *Manager {
	return &Manager{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the manager. Passing nil
// resets the emitter to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetPolicy replaces the safety rail configuration.
func (m *Manager) SetPolicy(policy Policy) { m.policy = policy }

// Policy returns the active safety rail configuration.
func (m *Manager) Policy() Policy { return m.policy }

// DefaultAdminRole returns the zero role.
func (m *Manager) DefaultAdminRole() types.Role { return DefaultAdminRole }

// HasRole reports whether account holds role.
func (m *Manager) HasRole(role types.Role, account types.Account) (bool, error) {
	var granted bool
	ok, err := m.state.KVGet(assignmentKey(role, account), &granted)
	if err != nil {
		return false, fmt.Errorf("access: load assignment: %w", err)
	}
	return ok && granted, nil
}

// GetRoleAdmin returns the admin role of role, defaulting to the default
// admin role when none has been recorded.
func (m *Manager) GetRoleAdmin(role types.Role) (types.Role, error) {
	var admin types.Role
	ok, err := m.state.KVGet(roleAdminKey(role), &admin)
	if err != nil {
		return types.Role{}, fmt.Errorf("access: load role admin: %w", err)
	}
	if !ok {
		return DefaultAdminRole, nil
	}
	return admin, nil
}

// RoleMemberCount returns the number of accounts currently holding role.
func (m *Manager) RoleMemberCount(role types.Role) (uint64, error) {
	var count uint64
	if _, err := m.state.KVGet(memberCountKey(role), &count); err != nil {
		return 0, fmt.Errorf("access: load member count: %w", err)
	}
	return count, nil
}

// GrantRole grants role to account on behalf of sender, who must hold the
// role's admin role. It returns false without emitting when account already
// holds role.
func (m *Manager) GrantRole(sender types.Account, role types.Role, account types.Account) (bool, error) {
	if err := m.checkAdmin(sender, role); err != nil {
		return false, err
	}
	return m.GrantRoleUnchecked(sender, role, account)
}

// RevokeRole revokes role from account on behalf of sender, who must hold the
// role's admin role. It returns false without emitting when account does not
// hold role.
func (m *Manager) RevokeRole(sender types.Account, role types.Role, account types.Account) (bool, error) {
	if err := m.checkAdmin(sender, role); err != nil {
		return false, err
	}
	return m.RevokeRoleUnchecked(sender, role, account)
}

// RenounceRole revokes role from sender. No admin check applies.
func (m *Manager) RenounceRole(sender types.Account, role types.Role) (bool, error) {
	return m.RevokeRoleUnchecked(sender, role, sender)
}

// CheckRole fails with ErrUnauthorised unless account holds role.
func (m *Manager) CheckRole(role types.Role, account types.Account) error {
	ok, err := m.HasRole(role, account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorised
	}
	return nil
}

// CheckSenderRole fails with ErrUnauthorised unless sender holds role.
func (m *Manager) CheckSenderRole(sender types.Account, role types.Role) error {
	return m.CheckRole(role, sender)
}

// SetRoleAdmin replaces the admin role of role. It is meant to be called by
// the embedding contract's own logic, never exposed directly.
func (m *Manager) SetRoleAdmin(role, admin types.Role) error {
	if m.policy.RequireHeldAdmin {
		holders, err := m.RoleMemberCount(admin)
		if err != nil {
			return err
		}
		if holders == 0 {
			return ErrAdminRoleUnheld
		}
	}
	previous, err := m.GetRoleAdmin(role)
	if err != nil {
		return err
	}
	if err := m.state.KVPut(roleAdminKey(role), admin); err != nil {
		return fmt.Errorf("access: store role admin: %w", err)
	}
	m.emitter.Emit(events.RoleAdminChanged{Role: role, PreviousAdmin: previous, NewAdmin: admin})
	return nil
}

// GrantRoleUnchecked grants role without checking sender's authority. It is
// used by initialisation logic to bootstrap the first admins.
func (m *Manager) GrantRoleUnchecked(sender types.Account, role types.Role, account types.Account) (bool, error) {
	known, err := m.state.KVHas(roleAdminKey(role))
	if err != nil {
		return false, fmt.Errorf("access: load role admin: %w", err)
	}
	if !known {
		if err := m.state.KVPut(roleAdminKey(role), DefaultAdminRole); err != nil {
			return false, fmt.Errorf("access: store role admin: %w", err)
		}
	}
	held, err := m.HasRole(role, account)
	if err != nil {
		return false, err
	}
	if held {
		return false, nil
	}
	if err := m.state.KVPut(assignmentKey(role, account), true); err != nil {
		return false, fmt.Errorf("access: store assignment: %w", err)
	}
	if err := m.adjustMembers(role, 1); err != nil {
		return false, err
	}
	m.emitter.Emit(events.RoleGranted{Role: role, Account: account, Sender: sender})
	return true, nil
}

// RevokeRoleUnchecked revokes role without checking sender's authority.
func (m *Manager) RevokeRoleUnchecked(sender types.Account, role types.Role, account types.Account) (bool, error) {
	held, err := m.HasRole(role, account)
	if err != nil {
		return false, err
	}
	if !held {
		return false, nil
	}
	if m.policy.GuardLastAdmin && role == DefaultAdminRole {
		holders, err := m.RoleMemberCount(role)
		if err != nil {
			return false, err
		}
		if holders <= 1 {
			return false, ErrLastAdmin
		}
	}
	if err := m.state.KVDelete(assignmentKey(role, account)); err != nil {
		return false, fmt.Errorf("access: delete assignment: %w", err)
	}
	if err := m.adjustMembers(role, -1); err != nil {
		return false, err
	}
	m.emitter.Emit(events.RoleRevoked{Role: role, Account: account, Sender: sender})
	return true, nil
}

func (m *Manager) checkAdmin(sender types.Account, role types.Role) error {
	admin, err := m.GetRoleAdmin(role)
	if err != nil {
		return err
	}
	return m.CheckSenderRole(sender, admin)
}

func (m *Manager) adjustMembers(role types.Role, delta int) error {
	count, err := m.RoleMemberCount(role)
	if err != nil {
		return err
	}
	switch {
	case delta > 0:
		count++
	case count > 0:
		count--
	}
	if count == 0 {
		if err := m.state.KVDelete(memberCountKey(role)); err != nil {
			return fmt.Errorf("access: delete member count: %w", err)
		}
		return nil
	}
	if err := m.state.KVPut(memberCountKey(role), count); err != nil {
		return fmt.Errorf("access: store member count: %w", err)
	}
	return nil
}

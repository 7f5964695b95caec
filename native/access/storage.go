package access

import "ledgerguard/core/types"

// store abstracts the subset of state manager functionality required by the
// access control manager.
type store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
	KVDelete(key []byte) error
}

var (
	roleAdminPrefix   = []byte("access/role/")
	assignmentPrefix  = []byte("access/account-role/")
	memberCountPrefix = []byte("access/members/")
)

func roleAdminKey(role types.Role) []byte {
	buf := make([]byte, 0, len(roleAdminPrefix)+len(role))
	buf = append(buf, roleAdminPrefix...)
	return append(buf, role[:]...)
}

func assignmentKey(role types.Role, account types.Account) []byte {
	buf := make([]byte, 0, len(assignmentPrefix)+len(role)+1+len(account))
	buf = append(buf, assignmentPrefix...)
	buf = append(buf, role[:]...)
	buf = append(buf, '/')
	return append(buf, account[:]...)
}

func memberCountKey(role types.Role) []byte {
	buf := make([]byte, 0, len(memberCountPrefix)+len(role))
	buf = append(buf, memberCountPrefix...)
	return append(buf, role[:]...)
}

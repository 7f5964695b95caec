package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"

	"ledgerguard/core/types"
)

// AddressPrefix defines the human-readable part of an encoded account.
type AddressPrefix string

const (
	AccountPrefix AddressPrefix = "acct"
)

// Address represents a 32-byte ledger account with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != len(types.Account{}) {
		panic("address must be 32 bytes long")
	}
	return Address{prefix: prefix, bytes: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// Account returns the fixed-width account identifier.
func (a Address) Account() types.Account {
	var acc types.Account
	copy(acc[:], a.bytes)
	return acc
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != len(types.Account{}) {
		return Address{}, fmt.Errorf("address must be 32 bytes long, got %d", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// AccountAddress renders acc with the default account prefix.
func AccountAddress(acc types.Account) string {
	return NewAddress(AccountPrefix, acc[:]).String()
}

// DecodeAccount parses a bech32 account string.
func DecodeAccount(s string) (types.Account, error) {
	addr, err := DecodeAddress(s)
	if err != nil {
		return types.Account{}, err
	}
	if addr.Prefix() != AccountPrefix {
		return types.Account{}, fmt.Errorf("unexpected address prefix %q", addr.Prefix())
	}
	return addr.Account(), nil
}

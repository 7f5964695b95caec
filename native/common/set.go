package common

import coreerrors "ledgerguard/core/errors"

// MaxSetItems bounds a Uint64Set. A set is stored as a single host value and
// every operation scans it linearly.
const MaxSetItems = 511

var ErrSetFull = coreerrors.ErrSetFull

// Uint64Set is a small unordered set of uint64 values backed by a slice. The
// exported field keeps it RLP encodable.
type Uint64Set struct {
	Items []uint64
}

// Has reports whether v is in the set.
func (s *Uint64Set) Has(v uint64) bool {
	for _, item := range s.Items {
		if item == v {
			return true
		}
	}
	return false
}

// Add inserts v. It returns false when v is already present.
func (s *Uint64Set) Add(v uint64) (bool, error) {
	if s.Has(v) {
		return false, nil
	}
	if len(s.Items) >= MaxSetItems {
		return false, ErrSetFull
	}
	s.Items = append(s.Items, v)
	return true, nil
}

// Remove deletes v by moving the last item into its slot. It returns false
// when v is absent.
func (s *Uint64Set) Remove(v uint64) bool {
	last := len(s.Items) - 1
	for idx, item := range s.Items {
		if item != v {
			continue
		}
		if idx != last {
			s.Items[idx] = s.Items[last]
		}
		s.Items = s.Items[:last]
		return true
	}
	return false
}

// Len returns the number of items.
func (s *Uint64Set) Len() int { return len(s.Items) }

// Values returns a copy of the items in storage order.
func (s *Uint64Set) Values() []uint64 {
	return append([]uint64(nil), s.Items...)
}

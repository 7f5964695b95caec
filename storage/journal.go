package storage

import (
	"errors"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
)

var errJournalClosed = errors.New("storage: journal already finalised")

type journalEntry struct {
	value   []byte
	deleted bool
}

// Journal buffers writes on top of a Database so that a single host call can
// be committed or discarded as a unit. Reads observe the journal's own pending
// writes before falling through to the base store.
type Journal struct {
	base    Database
	pending map[string]journalEntry
	done    bool
}

// NewJournal opens a journal over base.
func NewJournal(base Database) *Journal {
	return &Journal{base: base, pending: make(map[string]journalEntry)}
}

func (j *Journal) Get(key []byte) ([]byte, error) {
	if j.done {
		return nil, errJournalClosed
	}
	if entry, ok := j.pending[string(key)]; ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return j.base.Get(key)
}

func (j *Journal) Put(key []byte, value []byte) error {
	if j.done {
		return errJournalClosed
	}
	j.pending[string(key)] = journalEntry{value: append([]byte(nil), value...)}
	return nil
}

func (j *Journal) Delete(key []byte) error {
	if j.done {
		return errJournalClosed
	}
	j.pending[string(key)] = journalEntry{deleted: true}
	return nil
}

func (j *Journal) Has(key []byte) (bool, error) {
	if j.done {
		return false, errJournalClosed
	}
	if entry, ok := j.pending[string(key)]; ok {
		return !entry.deleted, nil
	}
	return j.base.Has(key)
}

// Dirty reports the number of keys touched since the journal was opened.
func (j *Journal) Dirty() int {
	return len(j.pending)
}

// Commit writes every pending operation to the base store in one batch. Keys
// are applied in sorted order so the batch is deterministic.
func (j *Journal) Commit() error {
	if j.done {
		return errJournalClosed
	}
	j.done = true
	if len(j.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(j.pending))
	for k := range j.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(leveldb.Batch)
	for _, k := range keys {
		entry := j.pending[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	j.pending = nil
	return j.base.Write(batch)
}

// Discard drops every pending write.
func (j *Journal) Discard() {
	j.done = true
	j.pending = nil
}

package core

import (
	"sort"
)

// KeyDirEntry represents the in-memory index entry for a single key.
//
// Each entry points to the latest record for the key. Older records may
// still exist in sealed segments but nothing references them; compaction
// reclaims them.
type KeyDirEntry struct {
	Generation uint64 // Segment generation holding the record
	Offset     int64  // Byte offset in the segment where the record starts
	RecordSize int64  // Total size of the encoded record
}

// KeyDir is the in-memory index mapping keys to their latest on-disk
// records. It is rebuilt on open by replaying every segment and is never
// persisted itself.
type KeyDir map[string]KeyDirEntry

// Get returns the entry for key.
func (kd KeyDir) Get(key []byte) (KeyDirEntry, bool) {
	entry, ok := kd[string(key)]
	return entry, ok
}

// Set points key at entry and returns the entry it replaced, if any.
func (kd KeyDir) Set(key []byte, entry KeyDirEntry) (KeyDirEntry, bool) {
	prev, ok := kd[string(key)]
	kd[string(key)] = entry
	return prev, ok
}

// Delete removes key and returns its entry. Deleting a missing key is a no-op.
func (kd KeyDir) Delete(key []byte) (KeyDirEntry, bool) {
	prev, ok := kd[string(key)]
	if ok {
		delete(kd, string(key))
	}
	return prev, ok
}

func (kd KeyDir) Len() int {
	return len(kd)
}

// Keys returns a sorted copy of every key.
func (kd KeyDir) Keys() [][]byte {
	strs := make([]string, 0, len(kd))
	for k := range kd {
		strs = append(strs, k)
	}
	sort.Strings(strs)

	keys := make([][]byte, len(strs))
	for i, k := range strs {
		keys[i] = []byte(k)
	}
	return keys
}

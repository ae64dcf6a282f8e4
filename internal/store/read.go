package store

import (
	"encoding/json"

	"SwapLedger/internal/ledger"

	"github.com/cockroachdb/pebble"
)

// Reader is satisfied by *Store (committed state) and *Batch (committed
// state plus pending writes).
type Reader interface {
	get(key []byte) ([]byte, bool, error)
	newIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// Get loads the value stored under id in m.
func Get[T any](r Reader, m Map, id uint64) (T, bool, error) {
	var v T
	data, ok, err := r.get(primaryKey(m, id))
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, ledger.ErrCorrupt.Wrapf("%s/%d: %v", m, id, err)
	}
	return v, true, nil
}

// Range returns up to limit entries of m with id >= start, ascending.
// A limit <= 0 means no limit.
func Range[T any](r Reader, m Map, start uint64, limit int) ([]T, error) {
	return collect[T](r, mapPrefix(m), m, start, limit)
}

// RangeArchive is Range over the archive copy of m.
func RangeArchive[T any](r Reader, m Map, start uint64, limit int) ([]T, error) {
	return collect[T](r, archivePrefix(m), m, start, limit)
}

func collect[T any](r Reader, prefix []byte, m Map, start uint64, limit int) ([]T, error) {
	var out []T
	err := scan(r, prefix, m, start, false, func(_ uint64, v T) (bool, error) {
		out = append(out, v)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

// Scan visits entries of m with id >= start in ascending order until fn
// returns false.
func Scan[T any](r Reader, m Map, start uint64, fn func(id uint64, v T) (bool, error)) error {
	return scan(r, mapPrefix(m), m, start, false, fn)
}

// ScanReverse visits every entry of m from the newest id down.
func ScanReverse[T any](r Reader, m Map, fn func(id uint64, v T) (bool, error)) error {
	return scan(r, mapPrefix(m), m, 0, true, fn)
}

func scan[T any](r Reader, prefix []byte, m Map, start uint64, reverse bool, fn func(uint64, T) (bool, error)) error {
	lower := append(append([]byte{}, prefix...), be64(start)...)
	iter, err := r.newIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()

	valid := iter.First()
	if reverse {
		valid = iter.Last()
	}
	for ; valid; valid = step(iter, reverse) {
		id, err := idFromKey(iter.Key())
		if err != nil {
			return err
		}
		var v T
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return ledger.ErrCorrupt.Wrapf("%s/%d: %v", m, id, err)
		}
		more, err := fn(id, v)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

func step(iter *pebble.Iterator, reverse bool) bool {
	if reverse {
		return iter.Prev()
	}
	return iter.Next()
}

// Lookup resolves a unique index key.
func Lookup(r Reader, idx Index, key string) (uint64, bool, error) {
	v, ok, err := r.get(indexKey(idx, key))
	if err != nil || !ok {
		return 0, ok, err
	}
	id, err := decodeID(v)
	if err != nil {
		return 0, false, ledger.ErrCorrupt.Wrapf("%s %q: %v", idx, key, err)
	}
	return id, true, nil
}

// Members lists the ids in a set, ascending.
func Members(r Reader, set Set, key string) ([]uint64, error) {
	prefix := setPrefix(set, key)
	iter, err := r.newIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := idFromKey(iter.Key())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, iter.Error()
}

// Meta loads an opaque metadata value.
func Meta(r Reader, name string) ([]byte, bool, error) {
	return r.get(metaKey(name))
}

package store

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Entity is a stored value whose id is assigned on insert.
type Entity interface {
	SetID(id uint64)
}

// Batch is the write side of Update. It also satisfies Reader so a batch
// sees its own pending writes.
type Batch struct {
	s        *Store
	b        *pebble.Batch
	next     map[Map]uint64
	onCommit []func()
}

// NextID reserves the next id of m without writing anything.
func (b *Batch) NextID(m Map) uint64 {
	n := b.peek(m)
	b.next[m] = n + 1
	return n
}

func (b *Batch) peek(m Map) uint64 {
	if n, ok := b.next[m]; ok {
		return n
	}
	return b.s.next[m]
}

// Insert assigns the next id of m to v and stores it. Never overwrites.
func (b *Batch) Insert(m Map, v Entity) (uint64, error) {
	id := b.NextID(m)
	v.SetID(id)
	key := primaryKey(m, id)
	if _, ok, err := b.get(key); err != nil {
		return 0, err
	} else if ok {
		return 0, fmt.Errorf("%s/%d: %w", m, id, ErrExists)
	}
	if err := b.putJSON(key, v); err != nil {
		return 0, err
	}
	return id, nil
}

// Put writes v under an id previously assigned by Insert or NextID.
func (b *Batch) Put(m Map, id uint64, v any) error {
	if id == 0 || id >= b.peek(m) {
		return fmt.Errorf("%s/%d: id was never assigned", m, id)
	}
	return b.putJSON(primaryKey(m, id), v)
}

// SetIndex points key at id, replacing any previous value.
func (b *Batch) SetIndex(idx Index, key string, id uint64) error {
	return b.b.Set(indexKey(idx, key), be64(id), nil)
}

// ClaimIndex points key at id and fails with ErrExists if key is taken.
func (b *Batch) ClaimIndex(idx Index, key string, id uint64) error {
	k := indexKey(idx, key)
	if _, ok, err := b.get(k); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%s %q: %w", idx, key, ErrExists)
	}
	return b.b.Set(k, be64(id), nil)
}

// AddMember adds id to the set under key.
func (b *Batch) AddMember(set Set, key string, id uint64) error {
	return b.b.Set(setKey(set, key, id), nil, nil)
}

// PutMeta stores an opaque metadata value.
func (b *Batch) PutMeta(name string, v []byte) error {
	return b.b.Set(metaKey(name), v, nil)
}

// OnCommit registers fn to run after a successful commit, still under the
// store's write lock.
func (b *Batch) OnCommit(fn func()) {
	b.onCommit = append(b.onCommit, fn)
}

func (b *Batch) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return b.b.Set(key, data, nil)
}

func (b *Batch) get(key []byte) ([]byte, bool, error) {
	return getCopy(b.b, key)
}

func (b *Batch) newIter(o *pebble.IterOptions) (*pebble.Iterator, error) {
	return b.b.NewIter(o)
}

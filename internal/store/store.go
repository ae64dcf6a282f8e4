package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"SwapLedger/internal/ledger"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"
)

// ErrExists is returned when a unique key is already taken.
var ErrExists = errors.New("key already exists")

// archiveChunk bounds the size of a single archive batch.
const archiveChunk = 512

// Options configures Open.
type Options struct {
	// FS overrides the filesystem; vfs.NewMem() for tests.
	FS     vfs.FS
	Logger zerolog.Logger
}

// Settings is the persisted process-wide configuration.
type Settings struct {
	Maintenance bool `json:"maintenance"`
}

// Store holds every durable map of the exchange in one Pebble database.
// Writes go through Update, which serialises batches and id allocation.
type Store struct {
	db  *pebble.DB
	log zerolog.Logger

	mu          sync.Mutex
	next        map[Map]uint64
	maintenance atomic.Bool
}

// Open opens (or creates) the store at dir and loads counters and settings.
func Open(dir string, opts Options) (*Store, error) {
	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}

	s := &Store{
		db:   db,
		log:  opts.Logger,
		next: make(map[Map]uint64, len(Maps)),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	for _, m := range Maps {
		v, ok, err := s.get(counterKey(m))
		if err != nil {
			return fmt.Errorf("load counter %s: %w", m, err)
		}
		if !ok {
			s.next[m] = 1
			continue
		}
		n, err := decodeID(v)
		if err != nil {
			return fmt.Errorf("decode counter %s: %w", m, err)
		}
		s.next[m] = n
	}

	raw, ok, err := s.get(metaKey("settings"))
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if ok {
		var st Settings
		if err := json.Unmarshal(raw, &st); err != nil {
			return ledger.ErrCorrupt.Wrapf("settings: %v", err)
		}
		s.maintenance.Store(st.Maintenance)
	}

	s.log.Info().
		Uint64("next_request", s.next[Requests]).
		Uint64("next_tx", s.next[Txs]).
		Bool("maintenance", s.maintenance.Load()).
		Msg("store loaded")
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Flush(); err != nil {
		s.log.Warn().Err(err).Msg("flush before close failed")
	}
	return s.db.Close()
}

// Checkpoint writes a consistent copy of the database to dir, which must
// not exist. Used before upgrades.
func (s *Store) Checkpoint(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Checkpoint(dir, pebble.WithFlushedWAL()); err != nil {
		return fmt.Errorf("checkpoint %s: %w", dir, err)
	}
	s.log.Info().Str("dir", dir).Msg("checkpoint written")
	return nil
}

// Maintenance reports whether the maintenance flag is set.
func (s *Store) Maintenance() bool {
	return s.maintenance.Load()
}

// SetMaintenance persists the maintenance flag.
func (s *Store) SetMaintenance(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(Settings{Maintenance: on})
	if err != nil {
		return err
	}
	if err := s.db.Set(metaKey("settings"), raw, pebble.Sync); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	s.maintenance.Store(on)
	s.log.Warn().Bool("maintenance", on).Msg("maintenance flag changed")
	return nil
}

// Count returns the number of ids ever assigned in m.
func (s *Store) Count(m Map) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next[m] - 1
}

// Update runs fn against a fresh indexed batch and commits it atomically.
// Reads through b observe writes made earlier in the same batch. Counters
// and OnCommit hooks only take effect when the commit succeeds.
func (s *Store) Update(fn func(b *Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb := s.db.NewIndexedBatch()
	defer pb.Close()

	b := &Batch{s: s, b: pb, next: make(map[Map]uint64)}
	if err := fn(b); err != nil {
		return err
	}
	for m, n := range b.next {
		if err := pb.Set(counterKey(m), be64(n), nil); err != nil {
			return err
		}
	}
	if err := pb.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for m, n := range b.next {
		s.next[m] = n
	}
	for _, hook := range b.onCommit {
		hook()
	}
	return nil
}

// Archive copies every entry of m into its archive map. Re-running it
// rewrites the same keys, so it is idempotent. Refused unless the
// maintenance flag is set.
func (s *Store) Archive(m Map) (int, error) {
	if !s.Maintenance() {
		return 0, ledger.ErrValidation.Wrapf("archiving %s requires maintenance mode", m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := mapPrefix(m)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	pending, copied := 0, 0
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := idFromKey(iter.Key())
		if err != nil {
			batch.Close()
			return copied, err
		}
		if err := batch.Set(archiveKey(m, id), iter.Value(), nil); err != nil {
			batch.Close()
			return copied, err
		}
		pending++
		if pending == archiveChunk {
			if err := batch.Commit(pebble.Sync); err != nil {
				batch.Close()
				return copied, err
			}
			batch.Close()
			copied += pending
			pending = 0
			batch = s.db.NewBatch()
		}
	}
	if err := iter.Error(); err != nil {
		batch.Close()
		return copied, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		batch.Close()
		return copied, err
	}
	batch.Close()
	copied += pending

	s.log.Info().Str("map", string(m)).Int("entries", copied).Msg("map archived")
	return copied, nil
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	return getCopy(s.db, key)
}

func (s *Store) newIter(o *pebble.IterOptions) (*pebble.Iterator, error) {
	return s.db.NewIter(o)
}

type pointGetter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func getCopy(g pointGetter, key []byte) ([]byte, bool, error) {
	val, closer, err := g.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

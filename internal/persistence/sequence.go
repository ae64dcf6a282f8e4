package persistence

import "sync"

// TxSequence tracks which Tx ids the audit log holds. Txs can reach the
// worker out of order, so the watermark may only advance over a prefix
// with no gaps; ids written ahead of a gap are held until it closes.
type TxSequence struct {
	mu         sync.Mutex
	contiguous uint64              // every id <= contiguous is written
	ahead      map[uint64]struct{} // written ids above the first gap
	outOfOrder int64
}

func NewTxSequence(start uint64) *TxSequence {
	return &TxSequence{contiguous: start, ahead: make(map[uint64]struct{})}
}

// Reset restarts tracking from a known contiguous watermark.
func (s *TxSequence) Reset(start uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contiguous = start
	s.ahead = make(map[uint64]struct{})
}

// Peek returns the contiguous watermark that would result from writing
// ids, without recording them.
func (s *TxSequence) Peek(ids []uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		pending[id] = struct{}{}
	}
	c := s.contiguous
	for {
		if _, ok := s.ahead[c+1]; ok {
			c++
			continue
		}
		if _, ok := pending[c+1]; ok {
			c++
			continue
		}
		return c
	}
}

// Commit records ids as written and returns the new watermark.
func (s *TxSequence) Commit(ids []uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		switch {
		case id <= s.contiguous:
			// already written, e.g. a replayed batch
		case id == s.contiguous+1:
			s.contiguous = id
		default:
			if _, ok := s.ahead[id]; !ok {
				s.ahead[id] = struct{}{}
				s.outOfOrder++
			}
		}
	}
	for {
		if _, ok := s.ahead[s.contiguous+1]; !ok {
			break
		}
		delete(s.ahead, s.contiguous+1)
		s.contiguous++
	}
	return s.contiguous
}

// Contiguous returns the current watermark.
func (s *TxSequence) Contiguous() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contiguous
}

// Ahead returns how many written ids sit above a gap.
func (s *TxSequence) Ahead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ahead)
}

// OutOfOrder returns how many ids arrived ahead of a gap since creation.
func (s *TxSequence) OutOfOrder() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outOfOrder
}

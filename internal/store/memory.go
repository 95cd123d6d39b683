package store

import "cryptosentry/models"

// Memory is the plain in-memory store: one nested map, no eviction.
// All access happens on the dispatch loop goroutine, so no locking.
type Memory struct {
	data map[string]map[string]models.StoreEntry
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]models.StoreEntry)}
}

func (s *Memory) Update(exchange, symbol string, price float64, timestamp int64) {
	if timestamp == 0 {
		timestamp = nowMs()
	}
	ex, ok := s.data[exchange]
	if !ok {
		ex = make(map[string]models.StoreEntry)
		s.data[exchange] = ex
	}
	ex[symbol] = models.StoreEntry{Price: price, Timestamp: timestamp}
}

func (s *Memory) GetLatest(exchange, symbol string) (models.StoreEntry, bool) {
	entry, ok := s.data[exchange][symbol]
	return entry, ok
}

func (s *Memory) GetAll() map[string]map[string]models.StoreEntry {
	out := make(map[string]map[string]models.StoreEntry, len(s.data))
	for ex, syms := range s.data {
		cp := make(map[string]models.StoreEntry, len(syms))
		for sym, entry := range syms {
			cp[sym] = entry
		}
		out[ex] = cp
	}
	return out
}

package store

import (
	"context"
	"strings"

	"cryptosentry/logger"
	"cryptosentry/models"
)

// Hybrid keeps the latest entries in a hot in-process map and, when the
// process's resident memory exceeds the configured ceiling, spills
// entries older than the hot window to the cold tier. Eviction runs
// synchronously inside Update; a slow cold write stalls the caller,
// which is the accepted trade-off over a background sweeper.
type Hybrid struct {
	local       map[string]models.StoreEntry // keyed "exchange:symbol"
	cold        ColdTier
	maxBytes    uint64
	hotWindowMs int64
	ctx         context.Context
	log         *logger.Entry
}

func NewHybrid(ctx context.Context, cold ColdTier, maxMemoryMB, hotWindowMs int64, log *logger.Log) *Hybrid {
	return &Hybrid{
		local:       make(map[string]models.StoreEntry),
		cold:        cold,
		maxBytes:    uint64(maxMemoryMB) * 1024 * 1024,
		hotWindowMs: hotWindowMs,
		ctx:         ctx,
		log:         log.WithComponent("hybrid_store"),
	}
}

func hotKey(exchange, symbol string) string { return exchange + ":" + symbol }

func (s *Hybrid) Update(exchange, symbol string, price float64, timestamp int64) {
	if timestamp == 0 {
		timestamp = nowMs()
	}
	s.local[hotKey(exchange, symbol)] = models.StoreEntry{Price: price, Timestamp: timestamp}
	s.maybeEvict()
}

func (s *Hybrid) GetLatest(exchange, symbol string) (models.StoreEntry, bool) {
	key := hotKey(exchange, symbol)
	if entry, ok := s.local[key]; ok {
		return entry, true
	}
	entry, ok, err := s.cold.Get(s.ctx, key)
	if err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"key": key}).Warn("cold tier read failed")
		return models.StoreEntry{}, false
	}
	return entry, ok
}

// GetAll snapshots the hot tier only; cold entries stay external.
func (s *Hybrid) GetAll() map[string]map[string]models.StoreEntry {
	out := make(map[string]map[string]models.StoreEntry)
	for key, entry := range s.local {
		ex, sym, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		if out[ex] == nil {
			out[ex] = make(map[string]models.StoreEntry)
		}
		out[ex][sym] = entry
	}
	return out
}

// maybeEvict spills entries older than the hot window once resident
// memory crosses the ceiling.
func (s *Hybrid) maybeEvict() {
	rss, err := processRSS()
	if err != nil {
		s.log.WithError(err).Debug("failed to sample process memory")
		return
	}
	if rss < s.maxBytes {
		return
	}

	cutoff := nowMs() - s.hotWindowMs
	victims := make(map[string]models.StoreEntry)
	for key, entry := range s.local {
		if entry.Timestamp < cutoff {
			victims[key] = entry
		}
	}
	if len(victims) == 0 {
		return
	}

	if err := s.cold.PutBatch(s.ctx, victims); err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"count": len(victims)}).Warn("cold tier flush failed")
		return
	}
	for key := range victims {
		delete(s.local, key)
	}
	s.log.WithFields(logger.Fields{"evicted": len(victims), "rss": rss}).Info("spilled cold entries")
}

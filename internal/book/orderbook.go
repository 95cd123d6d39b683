// Package book maintains a local order book reconstructed from a REST
// snapshot plus a stream of sequenced deltas.
package book

import (
	"sort"

	"cryptosentry/models"
)

// ApplyResult reports how a delta related to the book's sequence cursor.
type ApplyResult int

const (
	// Applied means the delta was contiguous and has been merged.
	Applied ApplyResult = iota
	// Stale means the delta predates the snapshot and was discarded.
	Stale
	// Gap means update ids were skipped; the book needs a resync.
	Gap
)

// Book holds one symbol's bid/ask levels keyed by price. It is owned
// exclusively by the connector that created it and is rebuilt wholesale
// on every resync.
type Book struct {
	bids         map[float64]float64
	asks         map[float64]float64
	lastUpdateID int64
}

// NewFromSnapshot builds a book from a depth snapshot, keeping only
// levels with non-zero quantity.
func NewFromSnapshot(lastUpdateID int64, bids, asks []models.PriceLevel) *Book {
	b := &Book{
		bids:         make(map[float64]float64, len(bids)),
		asks:         make(map[float64]float64, len(asks)),
		lastUpdateID: lastUpdateID,
	}
	for _, lvl := range bids {
		if lvl.Qty > 0 {
			b.bids[lvl.Price] = lvl.Qty
		}
	}
	for _, lvl := range asks {
		if lvl.Qty > 0 {
			b.asks[lvl.Price] = lvl.Qty
		}
	}
	return b
}

func (b *Book) LastUpdateID() int64 { return b.lastUpdateID }

// Apply merges a delta covering the inclusive update-id range
// [firstID, lastID]. Quantity zero removes a level, anything else
// upserts it. The cursor only advances when the delta is contiguous.
func (b *Book) Apply(firstID, lastID int64, bids, asks []models.PriceLevel) ApplyResult {
	if lastID <= b.lastUpdateID {
		return Stale
	}
	if firstID > b.lastUpdateID+1 {
		return Gap
	}

	applySide(b.bids, bids)
	applySide(b.asks, asks)
	b.lastUpdateID = lastID
	return Applied
}

func applySide(side map[float64]float64, levels []models.PriceLevel) {
	for _, lvl := range levels {
		if lvl.Qty == 0 {
			delete(side, lvl.Price)
		} else {
			side[lvl.Price] = lvl.Qty
		}
	}
}

// BestBid returns the highest bid, if any.
func (b *Book) BestBid() (models.PriceLevel, bool) {
	return top(b.bids, func(p, best float64) bool { return p > best })
}

// BestAsk returns the lowest ask, if any.
func (b *Book) BestAsk() (models.PriceLevel, bool) {
	return top(b.asks, func(p, best float64) bool { return p < best })
}

func top(side map[float64]float64, better func(p, best float64) bool) (models.PriceLevel, bool) {
	if len(side) == 0 {
		return models.PriceLevel{}, false
	}
	first := true
	var best float64
	for p := range side {
		if first || better(p, best) {
			best = p
			first = false
		}
	}
	return models.PriceLevel{Price: best, Qty: side[best]}, true
}

// Bids returns up to n bid levels, best first. n <= 0 returns nil.
func (b *Book) Bids(n int) []models.PriceLevel {
	return ladder(b.bids, n, func(a, c float64) bool { return a > c })
}

// Asks returns up to n ask levels, best first. n <= 0 returns nil.
func (b *Book) Asks(n int) []models.PriceLevel {
	return ladder(b.asks, n, func(a, c float64) bool { return a < c })
}

func ladder(side map[float64]float64, n int, less func(a, b float64) bool) []models.PriceLevel {
	if n <= 0 || len(side) == 0 {
		return nil
	}
	out := make([]models.PriceLevel, 0, len(side))
	for p, q := range side {
		out = append(out, models.PriceLevel{Price: p, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Price, out[j].Price) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Depth returns the number of populated bid and ask levels.
func (b *Book) Depth() (bids, asks int) {
	return len(b.bids), len(b.asks)
}

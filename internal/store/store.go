// Package store keeps the latest known price per (exchange, symbol).
package store

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"cryptosentry/models"
)

// Store is the contract the dispatcher writes through. Implementations
// are last-write-wins and keep no history.
type Store interface {
	Update(exchange, symbol string, price float64, timestamp int64)
	GetLatest(exchange, symbol string) (models.StoreEntry, bool)
	// GetAll returns a snapshot mapping exchange -> symbol -> entry.
	GetAll() map[string]map[string]models.StoreEntry
}

var (
	nowMs = func() int64 { return time.Now().UnixMilli() }

	processRSS = func() (uint64, error) {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return 0, err
		}
		info, err := proc.MemoryInfo()
		if err != nil {
			return 0, err
		}
		return info.RSS, nil
	}
)

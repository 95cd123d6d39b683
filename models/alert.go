package models

// Alert is the sole contract between monitors and the mail transport.
// Deduplication happens in the producing monitor; an alert has no
// identity beyond its subject and message.
type Alert struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// StoreEntry is the latest known price for one (exchange, symbol) pair.
// Last write wins; no history is retained.
type StoreEntry struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

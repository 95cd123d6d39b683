package models

// EventKind discriminates the normalized event variants produced by
// exchange connectors.
type EventKind string

const (
	KindTicker EventKind = "ticker"
	KindTrade  EventKind = "trade"
	KindDepth  EventKind = "depth"
)

// TradeSide is the aggressor side of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Event is the only contract downstream components (store, monitors,
// archiver) depend on. Connectors map exchange payloads into one of the
// three concrete variants; nothing exchange-specific crosses this boundary.
type Event interface {
	Kind() EventKind
	Venue() string
	Pair() string
	// EventTime returns the exchange event time in epoch milliseconds.
	EventTime() int64
}

// Meta carries the fields common to every normalized event.
type Meta struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol"`
	Timestamp int64  `json:"timestamp"`
}

func (m Meta) Venue() string    { return m.Exchange }
func (m Meta) Pair() string     { return m.Symbol }
func (m Meta) EventTime() int64 { return m.Timestamp }

// Ticker is a 24h rolling ticker update.
type Ticker struct {
	Meta
	Price       float64 `json:"price"`
	Volume      float64 `json:"volume"`
	QuoteVolume float64 `json:"quote_volume"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
}

func (Ticker) Kind() EventKind { return KindTicker }

// Trade is a single aggregated trade.
type Trade struct {
	Meta
	Price float64   `json:"price"`
	Qty   float64   `json:"qty"`
	Side  TradeSide `json:"side"`
}

func (Trade) Kind() EventKind { return KindTrade }

// PriceLevel is one (price, quantity) row of an order book side.
type PriceLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// DepthUpdate is emitted after a delta has been applied to a complete
// local book. Price carries the mid so depth can double as a price
// source on venues that do not publish tickers. Bids and Asks are
// truncated ladders and may be nil when ladder output is disabled.
type DepthUpdate struct {
	Meta
	BestBid PriceLevel   `json:"best_bid"`
	BestAsk PriceLevel   `json:"best_ask"`
	Price   float64      `json:"price"`
	Bids    []PriceLevel `json:"bids,omitempty"`
	Asks    []PriceLevel `json:"asks,omitempty"`
}

func (DepthUpdate) Kind() EventKind { return KindDepth }

// Mid returns the midpoint of the current best quotes.
func (d DepthUpdate) Mid() float64 {
	return (d.BestBid.Price + d.BestAsk.Price) / 2
}

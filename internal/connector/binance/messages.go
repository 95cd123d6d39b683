package binance

import (
	"strconv"

	"cryptosentry/models"
)

// wsEnvelope carries just the event discriminator; subscription acks
// and pongs have no "e" field and fall through.
type wsEnvelope struct {
	Event string `json:"e"`
	// EventTime absorbs the numeric "E" key so it cannot fold into the
	// "e" field via case-insensitive matching and fail the unmarshal.
	EventTime int64 `json:"E"`
}

type wsTicker struct {
	Event       string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	LastPrice   string `json:"c"`
	BestBid     string `json:"b"`
	BestAsk     string `json:"a"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
}

type wsAggTrade struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

type wsDepthUpdate struct {
	Event     string     `json:"e"`
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	FirstID   int64      `json:"U"`
	LastID    int64      `json:"u"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

type wsSubscribe struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseLevels converts the wire [price, qty] pairs; rows that do not
// parse are dropped rather than poisoning the book.
func parseLevels(raw [][]string) []models.PriceLevel {
	if len(raw) == 0 {
		return nil
	}
	out := make([]models.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(pair[0], 64)
		qty, err2 := strconv.ParseFloat(pair[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, models.PriceLevel{Price: price, Qty: qty})
	}
	return out
}

// side maps the maker flag to the aggressor side: when the buyer is the
// maker, the seller crossed the spread.
func (t wsAggTrade) side() models.TradeSide {
	if t.IsBuyerMaker {
		return models.SideSell
	}
	return models.SideBuy
}

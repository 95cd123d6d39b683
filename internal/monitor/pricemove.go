package monitor

import (
	"fmt"
	"sort"

	"cryptosentry/config"
	"cryptosentry/internal/rolling"
	"cryptosentry/logger"
	"cryptosentry/models"
)

// PriceMove watches for large percentage moves against two reference
// windows (typically 24h and 1h). Each (exchange, symbol) keeps one
// price history bounded by the larger window; both windows are
// evaluated on every tick and may fire in the same call.
type PriceMove struct {
	cfg  config.PriceMoveConfig
	hist *rolling.Window
	gate *cooldownGate
	log  *logger.Entry
}

func NewPriceMove(cfg config.PriceMoveConfig, log *logger.Log) *PriceMove {
	span := cfg.Window24hMs
	if cfg.WindowShortMs > span {
		span = cfg.WindowShortMs
	}
	return &PriceMove{
		cfg:  cfg,
		hist: rolling.NewWindow(span),
		gate: newCooldownGate(cfg.CooldownMs),
		log:  log.WithComponent("price_move"),
	}
}

// Check feeds a new price observation and returns any alerts due.
func (m *PriceMove) Check(exchange, symbol string, price float64, ts int64) []models.Alert {
	key := exchange + ":" + symbol
	buf := m.hist.Push(key, ts, price)

	var alerts []models.Alert

	if ref, ok := refAtOrBefore(buf, ts-m.cfg.Window24hMs); ok {
		pct := (price - ref) / ref
		if abs(pct) >= m.cfg.Pct24h && m.gate.allow(key+":24h", ts) {
			alerts = append(alerts, models.Alert{
				Subject: fmt.Sprintf("%s moved %+.2f%% over 24h", symbol, pct*100),
				Message: fmt.Sprintf("%s:%s price is %.8g, %+.2f%% versus 24h ago (%.8g).",
					exchange, symbol, price, pct*100, ref),
			})
			m.log.WithFields(logger.Fields{"symbol": symbol, "pct": pct, "window": "24h"}).Info("price move alert")
		}
	}

	if ref, ok := refAtOrBefore(buf, ts-m.cfg.WindowShortMs); ok {
		pct := (price - ref) / ref
		if abs(pct) >= m.cfg.PctShort && m.gate.allow(key+":short", ts) {
			mins := float64(m.cfg.WindowShortMs) / 60000
			alerts = append(alerts, models.Alert{
				Subject: fmt.Sprintf("%s moved %+.2f%% in %.0f min", symbol, pct*100, mins),
				Message: fmt.Sprintf("%s:%s price is %.8g, %+.2f%% within the last %.0f minutes (was %.8g).",
					exchange, symbol, price, pct*100, mins, ref),
			})
			m.log.WithFields(logger.Fields{"symbol": symbol, "pct": pct, "window": "short"}).Info("price move alert")
		}
	}

	return alerts
}

// refAtOrBefore returns the value of the latest sample whose timestamp
// is <= cutoff. The buffer is timestamp-ordered, so a binary search
// over it is enough.
func refAtOrBefore(buf []rolling.Sample, cutoff int64) (float64, bool) {
	if len(buf) == 0 || buf[0].TS > cutoff {
		return 0, false
	}
	idx := sort.Search(len(buf), func(i int) bool { return buf[i].TS > cutoff }) - 1
	return buf[idx].Value, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

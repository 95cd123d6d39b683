package monitor

import (
	"fmt"

	"cryptosentry/config"
	"cryptosentry/internal/rolling"
	"cryptosentry/logger"
	"cryptosentry/models"
)

// Spread watches the bid/ask spread in basis points and alerts on the
// worst value observed inside the window.
type Spread struct {
	cfg  config.SpreadConfig
	win  *rolling.Window
	gate *cooldownGate
	log  *logger.Entry
}

func NewSpread(cfg config.SpreadConfig, log *logger.Log) *Spread {
	return &Spread{
		cfg:  cfg,
		win:  rolling.NewWindow(cfg.WindowMs),
		gate: newCooldownGate(cfg.CooldownMs),
		log:  log.WithComponent("spread_monitor"),
	}
}

// Add consumes one depth update and returns any alert due.
func (m *Spread) Add(d models.DepthUpdate) []models.Alert {
	mid := d.Mid()
	if d.BestBid.Price <= 0 || d.BestAsk.Price <= 0 || mid <= 0 {
		return nil
	}
	spreadBps := 10000 * (d.BestAsk.Price - d.BestBid.Price) / mid

	buf := m.win.Push(d.Symbol, d.Timestamp, spreadBps)

	worst := buf[0].Value
	for _, s := range buf[1:] {
		if s.Value > worst {
			worst = s.Value
		}
	}
	if worst < m.cfg.ThresholdBps {
		return nil
	}
	if !m.gate.allow(d.Exchange+":"+d.Symbol, d.Timestamp) {
		return nil
	}

	secs := float64(m.cfg.WindowMs) / 1000
	m.log.WithFields(logger.Fields{"symbol": d.Symbol, "spread_bps": worst}).Info("spread stress alert")

	return []models.Alert{{
		Subject: fmt.Sprintf("%s spread %.0f bp (liquidity stress)", d.Symbol, worst),
		Message: fmt.Sprintf("Best bid/ask spread widened to approximately %.1f bp within the last %.0f seconds.",
			worst, secs),
	}}
}

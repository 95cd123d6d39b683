package monitor

import (
	"fmt"

	"cryptosentry/config"
	"cryptosentry/internal/rolling"
	"cryptosentry/logger"
	"cryptosentry/models"
)

// Flow tracks signed trade notional over a rolling window and alerts
// when one side dominates. Windows below the minimum notional floor are
// treated as noise and skipped.
type Flow struct {
	cfg  config.FlowConfig
	win  *rolling.Window
	gate *cooldownGate
	log  *logger.Entry
}

func NewFlow(cfg config.FlowConfig, log *logger.Log) *Flow {
	return &Flow{
		cfg:  cfg,
		win:  rolling.NewWindow(cfg.WindowMs),
		gate: newCooldownGate(cfg.CooldownMs),
		log:  log.WithComponent("flow_monitor"),
	}
}

// Add consumes one trade and returns any alert due.
func (m *Flow) Add(t models.Trade) []models.Alert {
	notional := t.Qty * t.Price
	if t.Side == models.SideSell {
		notional = -notional
	}

	buf := m.win.Push(t.Symbol, t.Timestamp, notional)

	var signed, gross float64
	for _, s := range buf {
		signed += s.Value
		gross += abs(s.Value)
	}
	if gross < m.cfg.MinNotional {
		return nil
	}

	imbalance := signed / gross
	if abs(imbalance) < m.cfg.Threshold {
		return nil
	}
	if !m.gate.allow(t.Exchange+":"+t.Symbol, t.Timestamp) {
		return nil
	}

	side := "buy"
	if imbalance < 0 {
		side = "sell"
	}
	secs := float64(m.cfg.WindowMs) / 1000
	m.log.WithFields(logger.Fields{
		"symbol":    t.Symbol,
		"imbalance": imbalance,
		"gross":     gross,
	}).Info("flow imbalance alert")

	return []models.Alert{{
		Subject: fmt.Sprintf("%s %s-flow %+.0f%% (window %.0fs)", t.Symbol, side, imbalance*100, secs),
		Message: fmt.Sprintf("Signed notional imbalance = %+.0f%% (gross ≈ $%.0f) during the last %.0f seconds.",
			imbalance*100, gross, secs),
	}}
}

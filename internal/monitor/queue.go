package monitor

import (
	"fmt"

	"cryptosentry/config"
	"cryptosentry/internal/rolling"
	"cryptosentry/logger"
	"cryptosentry/models"
)

// Queue watches level-1 queue imbalance. Unlike the other monitors it
// requires every sample in the window to clear the threshold: the
// signal is persistence, not a spike.
type Queue struct {
	cfg  config.QueueConfig
	win  *rolling.Window
	gate *cooldownGate
	log  *logger.Entry
}

func NewQueue(cfg config.QueueConfig, log *logger.Log) *Queue {
	return &Queue{
		cfg:  cfg,
		win:  rolling.NewWindow(cfg.WindowMs),
		gate: newCooldownGate(cfg.CooldownMs),
		log:  log.WithComponent("queue_monitor"),
	}
}

// Add consumes one depth update and returns any alert due.
func (m *Queue) Add(d models.DepthUpdate) []models.Alert {
	bidQty := d.BestBid.Qty
	askQty := d.BestAsk.Qty
	if bidQty+askQty == 0 {
		return nil
	}
	imbalance := (bidQty - askQty) / (bidQty + askQty)

	buf := m.win.Push(d.Symbol, d.Timestamp, imbalance)

	for _, s := range buf {
		if abs(s.Value) < m.cfg.Threshold {
			return nil
		}
	}
	if !m.gate.allow(d.Exchange+":"+d.Symbol, d.Timestamp) {
		return nil
	}

	side := "buy"
	if buf[len(buf)-1].Value < 0 {
		side = "sell"
	}
	secs := float64(m.cfg.WindowMs) / 1000
	m.log.WithFields(logger.Fields{"symbol": d.Symbol, "imbalance": imbalance}).Info("queue imbalance alert")

	return []models.Alert{{
		Subject: fmt.Sprintf("%s persistent %s-side queue imbalance ≥%.0f%%", d.Symbol, side, m.cfg.Threshold*100),
		Message: fmt.Sprintf("Level-1 queue imbalance exceeded %.0f%% for %.0fs.", m.cfg.Threshold*100, secs),
	}}
}

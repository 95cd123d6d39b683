package monitor

import (
	"strings"
	"testing"

	"cryptosentry/config"
	"cryptosentry/logger"
	"cryptosentry/models"
)

func queueConfig() config.QueueConfig {
	return config.QueueConfig{
		Threshold:  0.7,
		WindowMs:   15 * 1000,
		CooldownMs: 10 * 60 * 1000,
	}
}

// imbalanceDepth builds a depth update whose level-1 queue imbalance
// equals imb: (bid-ask)/(bid+ask) with bid+ask = 2.
func imbalanceDepth(sym string, imb float64, ts int64) models.DepthUpdate {
	return depth(sym, 100, 1+imb, 100.1, 1-imb, ts)
}

func TestQueueRequiresEverySampleAboveThreshold(t *testing.T) {
	m := NewQueue(queueConfig(), logger.GetLogger())

	// [0.8, 0.75, 0.3]: two of three qualify, which is not enough
	m.Add(imbalanceDepth("BTC/USDT", 0.8, 1000))
	m.Add(imbalanceDepth("BTC/USDT", 0.75, 2000))
	if got := m.Add(imbalanceDepth("BTC/USDT", 0.3, 3000)); len(got) != 0 {
		t.Fatalf("non-sustained imbalance alerted: %v", got)
	}
}

func TestQueueSustainedImbalanceFires(t *testing.T) {
	m := NewQueue(queueConfig(), logger.GetLogger())

	// a weak sample keeps the window from qualifying until it ages out
	m.Add(imbalanceDepth("BTC/USDT", 0.3, 1000))
	m.Add(imbalanceDepth("BTC/USDT", 0.8, 2000))
	if got := m.Add(imbalanceDepth("BTC/USDT", 0.75, 3000)); len(got) != 0 {
		t.Fatalf("window with weak sample alerted: %v", got)
	}

	alerts := m.Add(imbalanceDepth("BTC/USDT", 0.9, 17000))
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if !strings.Contains(alerts[0].Subject, "buy-side") {
		t.Errorf("subject = %q, want buy-side", alerts[0].Subject)
	}

	if got := m.Add(imbalanceDepth("BTC/USDT", 0.9, 18000)); len(got) != 0 {
		t.Errorf("cooldown violated: %v", got)
	}
}

func TestQueueSellSideDominance(t *testing.T) {
	m := NewQueue(queueConfig(), logger.GetLogger())

	alerts := m.Add(imbalanceDepth("BTC/USDT", -0.8, 1000))
	if len(alerts) != 1 || !strings.Contains(alerts[0].Subject, "sell-side") {
		t.Fatalf("alerts = %v, want single sell-side alert", alerts)
	}
}

func TestQueueSkipsEmptyTopOfBook(t *testing.T) {
	m := NewQueue(queueConfig(), logger.GetLogger())

	if got := m.Add(depth("BTC/USDT", 100, 0, 100.1, 0, 1000)); len(got) != 0 {
		t.Fatalf("zero-quantity book alerted: %v", got)
	}
	// the degenerate sample must not have entered the window: a single
	// qualifying sample is then enough for the persistence rule
	if got := m.Add(imbalanceDepth("BTC/USDT", 0.8, 2000)); len(got) != 1 {
		t.Errorf("got %d alerts, want 1", len(got))
	}
}

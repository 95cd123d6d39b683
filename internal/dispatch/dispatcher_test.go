package dispatch

import (
	"context"
	"strings"
	"sync"
	"testing"

	"cryptosentry/config"
	"cryptosentry/internal/metrics"
	"cryptosentry/internal/store"
	"cryptosentry/logger"
	"cryptosentry/models"
)

type fakeMailer struct {
	mu       sync.Mutex
	fail     int // number of sends to fail before succeeding
	subjects []string
	failures int
}

func (m *fakeMailer) Send(subject, _ string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		m.failures++
		return false
	}
	m.subjects = append(m.subjects, subject)
	return true
}

func (m *fakeMailer) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subjects...)
}

type panicArchiver struct{}

func (panicArchiver) Add(models.Event) { panic("archive exploded") }

type countingArchiver struct {
	mu    sync.Mutex
	count int
}

func (a *countingArchiver) Add(models.Event) {
	a.mu.Lock()
	a.count++
	a.mu.Unlock()
}

func testAlertsConfig() config.AlertsConfig {
	cfg := config.Defaults().Alerts
	// wide-open 24h threshold so ticker routing tests can trigger it,
	// short window pinned high so only one tag fires per test
	cfg.PriceMove.Pct24h = 0.05
	cfg.PriceMove.PctShort = 0.99
	cfg.Delivery.MaxRetries = 2
	cfg.Delivery.RetryDelayS = 0
	return cfg
}

func newTestDispatcher(t *testing.T, cfg config.AlertsConfig, mailer Mailer, archiver Archiver) (*Dispatcher, store.Store, *metrics.Registry) {
	t.Helper()
	st := store.NewMemory()
	reg := metrics.NewRegistry()
	d := NewDispatcher(context.Background(), cfg, st, archiver, mailer, reg, logger.GetLogger())
	d.retryDelay = 0
	return d, st, reg
}

const dayMs = int64(24 * 60 * 60 * 1000)

func TestTickerUpdatesStoreAndFiresMoveAlert(t *testing.T) {
	mailer := &fakeMailer{}
	d, st, reg := newTestDispatcher(t, testAlertsConfig(), mailer, nil)

	now := 2 * dayMs
	d.Handle(models.Ticker{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: now - dayMs}, Price: 100})
	d.Handle(models.Ticker{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: now}, Price: 106})
	d.Wait()

	entry, ok := st.GetLatest("binance", "BTC/USDT")
	if !ok || entry.Price != 106 {
		t.Errorf("store entry = %+v ok=%v", entry, ok)
	}
	sent := mailer.sent()
	if len(sent) != 1 || !strings.Contains(sent[0], "+6.00%") {
		t.Errorf("sent = %v", sent)
	}
	if got := reg.Snapshot()["alerts_total"]; got != 1 {
		t.Errorf("alerts_total = %d", got)
	}
}

func TestDepthFeedsSpreadQueueAndMid(t *testing.T) {
	cfg := testAlertsConfig()
	cfg.PriceMove.Pct24h = 0.99 // keep move monitor quiet
	cfg.Queue.Threshold = 0.99
	cfg.Spread.ThresholdBps = 50
	mailer := &fakeMailer{}
	d, st, _ := newTestDispatcher(t, cfg, mailer, nil)

	wide := models.DepthUpdate{
		Meta:    models.Meta{Exchange: "binance", Symbol: "ETH/USDT", Timestamp: 1000},
		BestBid: models.PriceLevel{Price: 99, Qty: 1},
		BestAsk: models.PriceLevel{Price: 101, Qty: 1},
		Price:   100,
	}
	d.Handle(wide)
	d.Wait()

	// mid-price path populates the store when use_depth_mid is on
	entry, ok := st.GetLatest("binance", "ETH/USDT")
	if !ok || entry.Price != 100 {
		t.Errorf("mid not stored: %+v ok=%v", entry, ok)
	}
	// 2 wide on 100 = 200 bp, above the 50 bp threshold
	sent := mailer.sent()
	if len(sent) != 1 || !strings.Contains(sent[0], "spread") {
		t.Errorf("sent = %v", sent)
	}
}

func TestDepthMidDisabled(t *testing.T) {
	cfg := testAlertsConfig()
	cfg.PriceMove.UseDepthMid = false
	cfg.Queue.Threshold = 0.99
	mailer := &fakeMailer{}
	d, st, _ := newTestDispatcher(t, cfg, mailer, nil)

	d.Handle(models.DepthUpdate{
		Meta:    models.Meta{Exchange: "binance", Symbol: "ETH/USDT", Timestamp: 1000},
		BestBid: models.PriceLevel{Price: 99.99, Qty: 1},
		BestAsk: models.PriceLevel{Price: 100.01, Qty: 1},
		Price:   100,
	})
	d.Wait()

	if _, ok := st.GetLatest("binance", "ETH/USDT"); ok {
		t.Error("depth mid stored despite use_depth_mid=false")
	}
}

func TestTradeRoutesToFlow(t *testing.T) {
	cfg := testAlertsConfig()
	cfg.Flow.Threshold = 0.5
	cfg.Flow.MinNotional = 1000
	mailer := &fakeMailer{}
	d, _, _ := newTestDispatcher(t, cfg, mailer, nil)

	d.Handle(models.Trade{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: 1000}, Price: 100, Qty: 50, Side: models.SideBuy})
	d.Wait()

	sent := mailer.sent()
	if len(sent) != 1 || !strings.Contains(sent[0], "buy-flow") {
		t.Errorf("sent = %v", sent)
	}
}

func TestHandleSurvivesPanicAndCountsDrop(t *testing.T) {
	mailer := &fakeMailer{}
	d, _, reg := newTestDispatcher(t, testAlertsConfig(), mailer, panicArchiver{})

	d.Handle(models.Ticker{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: 1000}, Price: 100})

	snap := reg.Snapshot()
	if snap["events_dropped_total"] != 1 {
		t.Errorf("events_dropped_total = %d", snap["events_dropped_total"])
	}
	// next event must still be processed
	arch := &countingArchiver{}
	d.archiver = arch
	d.Handle(models.Ticker{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: 2000}, Price: 100})
	if arch.count != 1 {
		t.Errorf("archiver count = %d after panic recovery", arch.count)
	}
}

func TestNonPositivePriceDropped(t *testing.T) {
	mailer := &fakeMailer{}
	d, st, reg := newTestDispatcher(t, testAlertsConfig(), mailer, nil)

	d.Handle(models.Ticker{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: 1000}, Price: -1})
	d.Handle(models.Trade{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: 1000}, Price: 0, Qty: 1, Side: models.SideBuy})

	if _, ok := st.GetLatest("binance", "BTC/USDT"); ok {
		t.Error("bad price stored")
	}
	if got := reg.Snapshot()["events_dropped_total"]; got != 2 {
		t.Errorf("events_dropped_total = %d", got)
	}
}

func TestDeliveryRetriesThenSucceeds(t *testing.T) {
	cfg := testAlertsConfig()
	mailer := &fakeMailer{fail: 2}
	d, _, reg := newTestDispatcher(t, cfg, mailer, nil)

	now := 2 * dayMs
	d.Handle(models.Ticker{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: now - dayMs}, Price: 100})
	d.Handle(models.Ticker{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: now}, Price: 110})
	d.Wait()

	if sent := mailer.sent(); len(sent) != 1 {
		t.Errorf("sent = %v, want 1 after retries", sent)
	}
	if got := reg.Snapshot()["mail_failures_total"]; got != 2 {
		t.Errorf("mail_failures_total = %d", got)
	}
}

func TestDeliveryAbandonedAfterRetriesExhausted(t *testing.T) {
	cfg := testAlertsConfig()
	cfg.Delivery.MaxRetries = 1
	mailer := &fakeMailer{fail: 10}
	d, _, reg := newTestDispatcher(t, cfg, mailer, nil)

	now := 2 * dayMs
	d.Handle(models.Ticker{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: now - dayMs}, Price: 100})
	d.Handle(models.Ticker{Meta: models.Meta{Exchange: "binance", Symbol: "BTC/USDT", Timestamp: now}, Price: 110})
	d.Wait()

	if sent := mailer.sent(); len(sent) != 0 {
		t.Errorf("sent = %v, want none", sent)
	}
	// 1 initial + 1 retry
	if got := reg.Snapshot()["mail_failures_total"]; got != 2 {
		t.Errorf("mail_failures_total = %d", got)
	}
}

// Package binance streams ticker, trade and depth data from the
// Binance spot websocket and keeps per-symbol order books in sync with
// REST snapshots.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"cryptosentry/config"
	"cryptosentry/internal/book"
	"cryptosentry/internal/connector"
	"cryptosentry/internal/metrics"
	"cryptosentry/logger"
	"cryptosentry/models"
)

const (
	exchangeName          = "binance"
	defaultReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 60 * time.Second
	defaultKeepAlive      = 20 * time.Second
	defaultSnapshotLimit  = 1000
)

func init() {
	connector.Register(exchangeName, New)
}

// Connector is the Binance feed. One websocket session carries all
// configured symbols; each symbol with a depth stream gets a local book
// rebuilt from a snapshot on connect and after any sequence gap.
type Connector struct {
	cfg     config.ExchangeConfig
	sink    connector.Sink
	rest    *gobinance.Client
	limiter *rate.Limiter

	books   map[string]*book.Book // keyed by raw symbol, e.g. BTCUSDT
	symbols map[string]string     // raw symbol -> configured pair

	conn   *websocket.Conn
	connMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	metrics *metrics.Registry
	log     *logger.Entry
}

func New(cfg config.ExchangeConfig, sink connector.Sink, reg *metrics.Registry, log *logger.Log) connector.Connector {
	rest := gobinance.NewClient("", "")
	if cfg.RestURL != "" {
		rest.BaseURL = cfg.RestURL
	}

	perSec := cfg.SnapshotsPerSec
	if perSec <= 0 {
		perSec = 2
	}
	burst := cfg.SnapshotBurst
	if burst <= 0 {
		burst = 1
	}

	symbols := make(map[string]string, len(cfg.Symbols))
	for _, pair := range cfg.Symbols {
		symbols[rawSymbol(pair)] = pair
	}

	return &Connector{
		cfg:     cfg,
		sink:    sink,
		rest:    rest,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
		books:   make(map[string]*book.Book),
		symbols: symbols,
		metrics: reg,
		log:     log.WithComponent("binance_connector"),
	}
}

// rawSymbol maps a configured pair like BTC/USDT to the exchange form.
func rawSymbol(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("binance connector already running")
	}
	if len(c.symbols) == 0 {
		return fmt.Errorf("binance connector has no symbols")
	}
	c.running = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run()

	c.log.WithFields(logger.Fields{
		"symbols": c.cfg.Symbols,
		"streams": c.cfg.Streams,
	}).Info("binance connector started")
	return nil
}

// Stop closes the session cleanly and waits for the goroutines.
func (c *Connector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.connMu.Lock()
	if c.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage, msg)
	}
	c.connMu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.log.Info("binance connector stopped")
}

// run owns the reconnect loop. The backoff doubles per failed attempt
// up to a cap, with up to 20% jitter, and resets once a session
// establishes.
func (c *Connector) run() {
	defer c.wg.Done()

	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return
		}

		connected, err := c.session()
		if c.ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 0
			c.metrics.IncReconnects()
		} else {
			attempt++
		}
		if err != nil {
			c.log.WithError(err).WithFields(logger.Fields{"attempt": attempt}).Warn("binance session ended")
		}

		if waitForReconnect(c.ctx, c.backoff(attempt)) {
			return
		}
	}
}

func (c *Connector) backoff(attempt int) time.Duration {
	base := time.Duration(c.cfg.ReconnectDelayS) * time.Second
	if base <= 0 {
		base = defaultReconnectDelay
	}
	delay := base
	for i := 0; i < attempt && delay < maxReconnectDelay; i++ {
		delay *= 2
	}
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}

// session dials, subscribes and reads until the connection dies or the
// context is cancelled. It reports whether the subscription went
// through, so the caller can reset its backoff.
func (c *Connector) session() (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.cfg.WsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.cfg.WsURL, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()

	if err := conn.WriteJSON(wsSubscribe{Method: "SUBSCRIBE", Params: c.streamParams(), ID: 1}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	// books from the previous session are stale at unknown depth
	c.books = make(map[string]*book.Book)

	pingCancel := c.startPingLoop(conn)
	defer pingCancel()

	for {
		if c.ctx.Err() != nil {
			return true, nil
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handleMessage(msg)
	}
}

// streamParams builds the subscription list, one stream per symbol per
// configured feed.
func (c *Connector) streamParams() []string {
	var params []string
	for _, pair := range c.cfg.Symbols {
		low := strings.ToLower(rawSymbol(pair))
		for _, stream := range c.cfg.Streams {
			switch stream {
			case "ticker":
				params = append(params, low+"@ticker")
			case "trades":
				params = append(params, low+"@aggTrade")
			case "depth":
				params = append(params, low+"@depth@100ms")
			}
		}
	}
	return params
}

func (c *Connector) startPingLoop(conn *websocket.Conn) context.CancelFunc {
	interval := time.Duration(c.cfg.KeepAliveSeconds) * time.Second
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	pingCtx, cancel := context.WithCancel(c.ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.WithError(err).Debug("ping failed")
					return
				}
			}
		}
	}()
	return cancel
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func (c *Connector) handleMessage(msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.log.WithError(err).Debug("unparseable message")
		return
	}
	switch env.Event {
	case "24hrTicker":
		c.handleTicker(msg)
	case "aggTrade":
		c.handleTrade(msg)
	case "depthUpdate":
		c.handleDepth(msg)
	}
	// acks, pongs and unknown events fall through silently
}

func (c *Connector) handleTicker(msg []byte) {
	var t wsTicker
	if err := json.Unmarshal(msg, &t); err != nil {
		c.log.WithError(err).Debug("bad ticker payload")
		return
	}
	pair, ok := c.symbols[t.Symbol]
	if !ok {
		return
	}
	c.sink(models.Ticker{
		Meta:        models.Meta{Exchange: exchangeName, Symbol: pair, Timestamp: t.EventTime},
		Price:       parseFloat(t.LastPrice),
		Volume:      parseFloat(t.Volume),
		QuoteVolume: parseFloat(t.QuoteVolume),
		BestBid:     parseFloat(t.BestBid),
		BestAsk:     parseFloat(t.BestAsk),
	})
}

func (c *Connector) handleTrade(msg []byte) {
	var t wsAggTrade
	if err := json.Unmarshal(msg, &t); err != nil {
		c.log.WithError(err).Debug("bad trade payload")
		return
	}
	pair, ok := c.symbols[t.Symbol]
	if !ok {
		return
	}
	ts := t.TradeTime
	if ts == 0 {
		ts = t.EventTime
	}
	c.sink(models.Trade{
		Meta:  models.Meta{Exchange: exchangeName, Symbol: pair, Timestamp: ts},
		Price: parseFloat(t.Price),
		Qty:   parseFloat(t.Qty),
		Side:  t.side(),
	})
}

func (c *Connector) handleDepth(msg []byte) {
	var d wsDepthUpdate
	if err := json.Unmarshal(msg, &d); err != nil {
		c.log.WithError(err).Debug("bad depth payload")
		return
	}
	pair, ok := c.symbols[d.Symbol]
	if !ok {
		return
	}

	b, ok := c.books[d.Symbol]
	if !ok {
		loaded, err := c.loadSnapshot(d.Symbol)
		if err != nil {
			c.log.WithError(err).WithFields(logger.Fields{"symbol": d.Symbol}).Warn("snapshot load failed")
			return
		}
		c.books[d.Symbol] = loaded
		b = loaded
	}

	switch b.Apply(d.FirstID, d.LastID, parseLevels(d.Bids), parseLevels(d.Asks)) {
	case book.Stale:
		return
	case book.Gap:
		c.metrics.IncResyncs()
		delete(c.books, d.Symbol)
		c.log.WithFields(logger.Fields{
			"symbol":   d.Symbol,
			"first_id": d.FirstID,
			"cursor":   b.LastUpdateID(),
		}).Warn("sequence gap, book dropped for resync")
		return
	}

	bestBid, okBid := b.BestBid()
	bestAsk, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		// a one-sided book has no quotable market
		return
	}

	levels := c.cfg.DepthLevels
	update := models.DepthUpdate{
		Meta:    models.Meta{Exchange: exchangeName, Symbol: pair, Timestamp: d.EventTime},
		BestBid: bestBid,
		BestAsk: bestAsk,
		Bids:    b.Bids(levels),
		Asks:    b.Asks(levels),
	}
	update.Price = update.Mid()
	c.sink(update)
}

// loadSnapshot fetches a fresh depth snapshot, rate limited so a burst
// of resyncs cannot hammer the REST API.
func (c *Connector) loadSnapshot(raw string) (*book.Book, error) {
	if err := c.limiter.Wait(c.ctx); err != nil {
		return nil, err
	}
	limit := c.cfg.SnapshotLimit
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	res, err := c.rest.NewDepthService().Symbol(raw).Limit(limit).Do(c.ctx)
	if err != nil {
		return nil, fmt.Errorf("depth snapshot %s: %w", raw, err)
	}
	bids := make([]models.PriceLevel, 0, len(res.Bids))
	for _, lvl := range res.Bids {
		bids = append(bids, models.PriceLevel{Price: parseFloat(lvl.Price), Qty: parseFloat(lvl.Quantity)})
	}
	asks := make([]models.PriceLevel, 0, len(res.Asks))
	for _, lvl := range res.Asks {
		asks = append(asks, models.PriceLevel{Price: parseFloat(lvl.Price), Qty: parseFloat(lvl.Quantity)})
	}
	c.log.WithFields(logger.Fields{
		"symbol":         raw,
		"last_update_id": res.LastUpdateID,
		"bids":           len(bids),
		"asks":           len(asks),
	}).Info("depth snapshot loaded")
	return book.NewFromSnapshot(res.LastUpdateID, bids, asks), nil
}

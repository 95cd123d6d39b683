// Package archive persists the raw normalized event flow to rotating
// local files, optionally shipping finished files to S3.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cryptosentry/config"
	"cryptosentry/logger"
	"cryptosentry/models"
)

// Row is the flat on-disk record shared by the JSONL and Parquet sinks.
type Row struct {
	Exchange  string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY" json:"exchange"`
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY" json:"symbol"`
	Kind      string  `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY" json:"kind"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64" json:"timestamp"`
	Price     float64 `parquet:"name=price, type=DOUBLE" json:"price"`
	Qty       float64 `parquet:"name=qty, type=DOUBLE" json:"qty,omitempty"`
	Side      string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8" json:"side,omitempty"`
	BestBid   float64 `parquet:"name=best_bid, type=DOUBLE" json:"best_bid,omitempty"`
	BestAsk   float64 `parquet:"name=best_ask, type=DOUBLE" json:"best_ask,omitempty"`
}

// rowSink is one open output file in a particular format.
type rowSink interface {
	write(row Row) error
	close() error
	path() string
}

// stream is the rotation state for one (exchange, symbol, kind) series.
type stream struct {
	sink     rowSink
	openedAt time.Time
	rows     int
}

// Archive consumes events from a buffered channel on its own goroutine
// so a slow disk never backs up the dispatch loop. Add drops when the
// buffer is full.
type Archive struct {
	cfg      config.ArchiveConfig
	events   chan models.Event
	streams  map[string]*stream
	uploader *Uploader
	seq      int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Entry
}

func New(cfg config.ArchiveConfig, log *logger.Log) (*Archive, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	a := &Archive{
		cfg:     cfg,
		events:  make(chan models.Event, 4096),
		streams: make(map[string]*stream),
		log:     log.WithComponent("archive"),
	}
	if cfg.S3.Enabled {
		up, err := NewUploader(context.Background(), cfg.S3, log)
		if err != nil {
			return nil, err
		}
		a.uploader = up
	}
	return a, nil
}

func (a *Archive) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.run()
	a.log.WithFields(logger.Fields{"dir": a.cfg.Dir, "format": a.cfg.Format}).Info("archive started")
}

// Stop drains the buffer, closes every open sink and ships the final
// files. Safe to call more than once.
func (a *Archive) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
}

// Add enqueues an event for archival. Never blocks.
func (a *Archive) Add(event models.Event) {
	select {
	case a.events <- event:
	default:
		a.log.Debug("archive buffer full, event dropped")
	}
}

func (a *Archive) run() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			a.drain()
			a.closeAll()
			return
		case ev := <-a.events:
			a.write(ev)
		}
	}
}

func (a *Archive) drain() {
	for {
		select {
		case ev := <-a.events:
			a.write(ev)
		default:
			return
		}
	}
}

func (a *Archive) write(event models.Event) {
	row, ok := toRow(event)
	if !ok {
		return
	}
	key := row.Exchange + ":" + row.Symbol + ":" + row.Kind
	st, err := a.streamFor(a.ctx, key, row)
	if err != nil {
		a.log.WithError(err).WithFields(logger.Fields{"key": key}).Error("failed to open sink")
		return
	}
	if err := st.sink.write(row); err != nil {
		a.log.WithError(err).WithFields(logger.Fields{"key": key}).Error("archive write failed")
		return
	}
	st.rows++
}

func (a *Archive) streamFor(ctx context.Context, key string, row Row) (*stream, error) {
	st, ok := a.streams[key]
	if ok && a.shouldRotate(st) {
		a.finish(ctx, key, st)
		ok = false
	}
	if !ok {
		sink, err := a.openSink(row)
		if err != nil {
			return nil, err
		}
		st = &stream{sink: sink, openedAt: time.Now()}
		a.streams[key] = st
	}
	return st, nil
}

func (a *Archive) shouldRotate(st *stream) bool {
	if a.cfg.MaxRows > 0 && st.rows >= a.cfg.MaxRows {
		return true
	}
	if a.cfg.RotateMinutes > 0 && time.Since(st.openedAt) >= time.Duration(a.cfg.RotateMinutes)*time.Minute {
		return true
	}
	return false
}

// finish closes one sink and hands the file to the uploader.
func (a *Archive) finish(ctx context.Context, key string, st *stream) {
	delete(a.streams, key)
	path := st.sink.path()
	if err := st.sink.close(); err != nil {
		a.log.WithError(err).WithFields(logger.Fields{"path": path}).Error("failed to close sink")
		return
	}
	if a.uploader != nil {
		if err := a.uploader.Upload(ctx, path); err != nil {
			a.log.WithError(err).WithFields(logger.Fields{"path": path}).Warn("s3 upload failed")
		}
	}
}

// closeAll runs during shutdown, after a.ctx is already cancelled, so
// the final uploads get a fresh context.
func (a *Archive) closeAll() {
	for key, st := range a.streams {
		a.finish(context.Background(), key, st)
	}
}

func (a *Archive) openSink(row Row) (rowSink, error) {
	// the sequence keeps names unique when rotation happens within a second
	a.seq++
	name := fmt.Sprintf("%s_%s_%s_%s_%04d.%s",
		row.Exchange,
		strings.ReplaceAll(row.Symbol, "/", "-"),
		row.Kind,
		time.Now().UTC().Format("20060102T150405"),
		a.seq,
		a.cfg.Format,
	)
	path := filepath.Join(a.cfg.Dir, name)
	if a.cfg.Format == "parquet" {
		return newParquetSink(path)
	}
	return newJSONLSink(path)
}

func toRow(event models.Event) (Row, bool) {
	switch ev := event.(type) {
	case models.Ticker:
		return Row{
			Exchange: ev.Exchange, Symbol: ev.Symbol, Kind: "ticker",
			Timestamp: ev.Timestamp, Price: ev.Price, Qty: ev.Volume,
			BestBid: ev.BestBid, BestAsk: ev.BestAsk,
		}, true
	case models.Trade:
		return Row{
			Exchange: ev.Exchange, Symbol: ev.Symbol, Kind: "trade",
			Timestamp: ev.Timestamp, Price: ev.Price, Qty: ev.Qty,
			Side: string(ev.Side),
		}, true
	case models.DepthUpdate:
		return Row{
			Exchange: ev.Exchange, Symbol: ev.Symbol, Kind: "depth",
			Timestamp: ev.Timestamp, Price: ev.Price,
			BestBid: ev.BestBid.Price, BestAsk: ev.BestAsk.Price,
		}, true
	}
	return Row{}, false
}

// Package eventlog implements the append-only, per-instrument CSV event
// log: one file each for orders, trades, cancels, and live-order events.
// Writes are scheduled onto a small worker pool so CSV I/O never runs on
// the dispatcher's goroutine. Grounded on
// apps/exchange/text_backup_writer.py, with the off-hot-path scheduling
// adapted from the teacher's internal/worker.go pool.
package eventlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"fenrir/internal/domain"
	"fenrir/internal/worker"
)

var (
	orderFields = []string{"order_type", "side", "instrument_id", "price_cents", "quantity",
		"timestamp", "order_id", "party_id", "cancelled", "filled_quantity", "remaining_quantity"}
	tradeFields = []string{"instrument_id", "price_cents", "quantity", "timestamp", "maker_order_id",
		"maker_party_id", "taker_order_id", "taker_party_id", "maker_is_buyer",
		"maker_quantity_remaining", "taker_quantity_remaining"}
	cancelFields = []string{"instrument_id", "order_id"}
	liveFields   = []string{"event_type", "order_type", "side", "instrument_id", "price_cents", "quantity",
		"timestamp", "order_id", "party_id", "cancelled", "filled_quantity", "remaining_quantity"}
)

// Writer is the CSV event logger. It does not support replay: its
// rebuild-side methods always return empty collections.
type Writer struct {
	dir  string
	pool *worker.Pool
	log  zerolog.Logger

	mu      sync.Mutex
	headers map[string]bool
}

// New creates a CSV event logger rooted at dir, scheduling writes on a
// pool of workerCount goroutines.
func New(dir string, workerCount int, log zerolog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog mkdir: %w", err)
	}
	w := &Writer{
		dir:     dir,
		pool:    worker.New(workerCount, 1024, log),
		log:     log,
		headers: make(map[string]bool),
	}
	w.pool.Start()
	return w, nil
}

// Stop drains the scheduling pool.
func (w *Writer) Stop() error { return w.pool.Stop() }

func (w *Writer) path(prefix string, instrumentID int64) string {
	return filepath.Join(w.dir, prefix+"_"+strconv.FormatInt(instrumentID, 10)+".csv")
}

func (w *Writer) ensureHeader(path string, fields []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.headers[path] {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		w.headers[path] = true
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			w.headers[path] = true
			return nil
		}
		return err
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write(fields); err != nil {
		return err
	}
	cw.Flush()
	w.headers[path] = true
	return cw.Error()
}

func (w *Writer) appendRow(path string, fields []string, row []string) error {
	if err := w.ensureHeader(path, fields); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func boolStr(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func i64(v int64) string { return strconv.FormatInt(v, 10) }

func (w *Writer) CreateInstrument(instrumentID int64) {
	w.pool.Submit(func() error {
		for _, spec := range []struct {
			prefix string
			fields []string
		}{
			{"orders", orderFields}, {"trades", tradeFields},
			{"cancels", cancelFields}, {"live_events", liveFields},
		} {
			if err := w.ensureHeader(w.path(spec.prefix, instrumentID), spec.fields); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Writer) RecordOrder(order *domain.Order) {
	o := order.Clone()
	w.pool.Submit(func() error {
		row := []string{
			o.OrderType.String(), o.Side.String(), i64(o.InstrumentID), i64(o.PriceCents), i64(o.Quantity),
			i64(o.Timestamp), i64(o.OrderID), o.PartyID, boolStr(o.Cancelled), i64(o.FilledQuantity), i64(o.RemainingQuantity),
		}
		return w.appendRow(w.path("orders", o.InstrumentID), orderFields, row)
	})
}

func (w *Writer) RecordTrade(trade *domain.Trade) {
	t := *trade
	w.pool.Submit(func() error {
		row := []string{
			i64(t.InstrumentID), i64(t.PriceCents), i64(t.Quantity), i64(t.Timestamp),
			i64(t.MakerOrderID), t.MakerPartyID, i64(t.TakerOrderID), t.TakerPartyID,
			boolStr(t.MakerIsBuyer), i64(t.MakerQuantityRemaining), i64(t.TakerQuantityRemaining),
		}
		return w.appendRow(w.path("trades", t.InstrumentID), tradeFields, row)
	})
}

func (w *Writer) RecordCancel(instrumentID, orderID int64) {
	w.pool.Submit(func() error {
		row := []string{i64(instrumentID), i64(orderID)}
		return w.appendRow(w.path("cancels", instrumentID), cancelFields, row)
	})
}

func (w *Writer) UpsertLiveOrder(order *domain.Order) {
	o := order.Clone()
	w.pool.Submit(func() error {
		row := []string{
			"UPS_LIVE", o.OrderType.String(), o.Side.String(), i64(o.InstrumentID), i64(o.PriceCents), i64(o.Quantity),
			i64(o.Timestamp), i64(o.OrderID), o.PartyID, boolStr(o.Cancelled), i64(o.FilledQuantity), i64(o.RemainingQuantity),
		}
		return w.appendRow(w.path("live_events", o.InstrumentID), liveFields, row)
	})
}

func (w *Writer) RemoveLiveOrder(instrumentID, orderID int64) {
	w.pool.Submit(func() error {
		row := []string{"REM_LIVE", "", "", i64(instrumentID), "", "", "", i64(orderID), "", "", "", ""}
		return w.appendRow(w.path("live_events", instrumentID), liveFields, row)
	})
}

func (w *Writer) UpdateOrderQuantity(instrumentID, orderID, quantityDelta int64) {}

func (w *Writer) ListInstruments() []int64                     { return nil }
func (w *Writer) IterOrders(instrumentID int64) []*domain.Order { return nil }

// Package durable implements the queued, at-least-once durable writer: a
// single background consumer drains a bounded channel of typed messages
// and applies them to the embedded store, while producers on the hot
// path never block on storage I/O. Adapted from the teacher's
// internal/worker.go pool pattern (tomb.v2-supervised goroutines) and
// from apps/exchange/mongo_queued_db_writer.py's message-kind design.
package durable

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/domain"
	"fenrir/internal/metrics"
	"fenrir/internal/store"
)

type kind int

const (
	kindOrder kind = iota
	kindTrade
	kindCancel
	kindUpsertLive
	kindRemoveLive
	kindUpdateLive
)

type message struct {
	kind          kind
	order         *domain.Order
	trade         *domain.Trade
	instrumentID  int64
	orderID       int64
	quantityDelta int64
}

// DefaultQueueCapacity is the channel capacity used when no override is
// given. Producers block once the queue is this full — correctness over
// latency-under-overload, per spec.md §5.
const DefaultQueueCapacity = 4096

// Writer is the queued durable writer. It implements writer.Writer.
type Writer struct {
	store    *store.Store
	metrics  *metrics.Registry
	log      zerolog.Logger
	queue    chan message
	t        tomb.Tomb
	actionCt atomic.Int64
}

// New builds a durable writer over store, with the given queue capacity
// (DefaultQueueCapacity if capacity <= 0).
func New(st *store.Store, reg *metrics.Registry, log zerolog.Logger, capacity int) *Writer {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Writer{
		store:   st,
		metrics: reg,
		log:     log,
		queue:   make(chan message, capacity),
	}
}

// ActionCount returns the process-wide count of durable mutations
// enqueued so far (advisory; used by observers to detect change).
func (w *Writer) ActionCount() int64 { return w.actionCt.Load() }

// Startup spawns the background consumer goroutine. Safe to call once.
func (w *Writer) Startup() {
	w.t.Go(w.consumeLoop)
}

// Shutdown closes the producer side, waits for the queue to drain, and
// stops the consumer.
func (w *Writer) Shutdown() error {
	close(w.queue)
	return w.t.Wait()
}

func (w *Writer) bump() {
	n := w.actionCt.Add(1)
	if w.metrics != nil {
		w.metrics.ActionCount.Set(float64(n))
		w.metrics.DurableQueueDepth.Set(float64(len(w.queue)))
	}
}

// ---- producer side: never performs storage I/O, never blocks beyond
// the queue's own back-pressure. ----

func (w *Writer) RecordOrder(order *domain.Order) {
	w.queue <- message{kind: kindOrder, order: order.Clone()}
	w.bump()
}

func (w *Writer) RecordTrade(trade *domain.Trade) {
	cp := *trade
	w.queue <- message{kind: kindTrade, trade: &cp}
	w.bump()
}

func (w *Writer) RecordCancel(instrumentID, orderID int64) {
	w.queue <- message{kind: kindCancel, instrumentID: instrumentID, orderID: orderID}
	w.bump()
}

func (w *Writer) UpsertLiveOrder(order *domain.Order) {
	w.queue <- message{kind: kindUpsertLive, order: order.Clone()}
	w.bump()
}

func (w *Writer) RemoveLiveOrder(instrumentID, orderID int64) {
	w.queue <- message{kind: kindRemoveLive, instrumentID: instrumentID, orderID: orderID}
	w.bump()
}

func (w *Writer) UpdateOrderQuantity(instrumentID, orderID, quantityDelta int64) {
	w.queue <- message{kind: kindUpdateLive, instrumentID: instrumentID, orderID: orderID, quantityDelta: quantityDelta}
	w.bump()
}

// CreateInstrument is synchronous: rebuild correctness depends on the
// per-instrument buckets existing before any ORDER/TRADE message for that
// instrument can be enqueued, so this bypasses the queue entirely.
func (w *Writer) CreateInstrument(instrumentID int64) {
	if err := w.store.CreateInstrument(instrumentID); err != nil {
		w.log.Error().Err(err).Int64("instrument_id", instrumentID).Msg("create instrument failed")
	}
}

// ---- rebuild-side read calls: synchronous, used once at startup. ----

func (w *Writer) ListInstruments() []int64 {
	ids, err := w.store.ListInstruments()
	if err != nil {
		w.log.Error().Err(err).Msg("list instruments failed")
		return nil
	}
	return ids
}

func (w *Writer) IterOrders(instrumentID int64) []*domain.Order {
	orders, err := w.store.IterOrders(instrumentID)
	if err != nil {
		w.log.Error().Err(err).Int64("instrument_id", instrumentID).Msg("iter orders failed")
		return nil
	}
	return orders
}

// ---- consumer side: the only goroutine that talks to storage. ----

func (w *Writer) consumeLoop() error {
	for msg := range w.queue {
		if w.metrics != nil {
			w.metrics.DurableQueueDepth.Set(float64(len(w.queue)))
		}
		w.apply(msg)
	}
	return nil
}

func (w *Writer) apply(msg message) {
	var err error
	switch msg.kind {
	case kindOrder:
		err = w.store.UpsertOrder(msg.order.InstrumentID, msg.order)
	case kindTrade:
		err = w.store.AppendTrade(msg.trade.InstrumentID, msg.trade)
	case kindCancel:
		err = w.store.RemoveLiveOrder(msg.instrumentID, msg.orderID)
	case kindUpsertLive:
		err = w.store.UpsertLiveOrder(msg.order.InstrumentID, msg.order)
	case kindRemoveLive:
		err = w.store.RemoveLiveOrder(msg.instrumentID, msg.orderID)
	case kindUpdateLive:
		err = w.store.UpdateLiveOrderQuantity(msg.instrumentID, msg.orderID, msg.quantityDelta)
	}
	if err != nil {
		// Storage/network errors at this layer are logged and swallowed;
		// the engine does not retry here (spec.md §7).
		w.log.Error().Err(err).Int("kind", int(msg.kind)).Msg("durable writer apply failed")
	}
}

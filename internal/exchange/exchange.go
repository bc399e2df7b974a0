// Package exchange is the dispatcher: request validation, order-id
// allocation, book routing, and the fixed event-emission sequence that
// hands every accepted action to the writer pipeline. Grounded on
// apps/exchange/exchange.py's Exchange class, translated from pydantic
// request models to explicit Go validation.
package exchange

import (
	"time"

	"github.com/rs/zerolog"

	"fenrir/internal/book"
	"fenrir/internal/domain"
	"fenrir/internal/idalloc"
	"fenrir/internal/metrics"
	"fenrir/internal/writer"
)

// Clock returns a monotonic wall-clock nanosecond timestamp. Production
// code uses time.Now().UnixNano(); tests inject a deterministic one.
type Clock func() int64

// SystemClock is the default Clock.
func SystemClock() int64 { return time.Now().UnixNano() }

// Exchange owns every per-instrument book and is the sole writer of
// process state. It is not safe for concurrent calls from multiple
// goroutines: spec.md §5 assigns it a single logical thread of control,
// and in this implementation that serialization is the transport
// layer's session-handler goroutine, not a lock here.
type Exchange struct {
	books   map[int64]*book.OrderBook
	writer  writer.Writer
	ids     *idalloc.Allocator
	metrics *metrics.Registry
	clock   Clock
	log     zerolog.Logger
}

// New builds a dispatcher with no books; call RebuildFromStorage before
// serving requests against a non-empty store.
func New(w writer.Writer, ids *idalloc.Allocator, m *metrics.Registry, log zerolog.Logger) *Exchange {
	return &Exchange{
		books:   make(map[int64]*book.OrderBook),
		writer:  w,
		ids:     ids,
		metrics: m,
		clock:   SystemClock,
		log:     log,
	}
}

// WithClock overrides the clock (used by tests for deterministic
// timestamps).
func (e *Exchange) WithClock(c Clock) *Exchange {
	e.clock = c
	return e
}

// RebuildFromStorage reconstructs every book from the durable writer's
// replay surface. Orders that are cancelled or fully filled are skipped;
// everything else is rested without matching. The id allocator is
// seeded past the highest order_id observed, so a freshly allocated id
// never collides with a replayed one. Grounded on
// Exchange.rebuild_from_database.
func (e *Exchange) RebuildFromStorage() error {
	var maxSeen int64
	for _, instrumentID := range e.writer.ListInstruments() {
		b := book.NewOrderBook(instrumentID)
		e.books[instrumentID] = b

		rows := e.writer.IterOrders(instrumentID)
		count := 0
		for _, o := range rows {
			if o.Cancelled || o.RemainingQuantity <= 0 {
				continue
			}
			b.RestOrder(o)
			count++
			if o.OrderID > maxSeen {
				maxSeen = o.OrderID
			}
		}
		e.log.Info().Int64("instrument_id", instrumentID).Int("rows", count).Msg("rebuild complete")
	}
	if maxSeen > 0 {
		return e.ids.SeedFloor(maxSeen)
	}
	return nil
}

// SubmitOrder validates, allocates an id, matches, and fans the
// resulting events out to the writer pipeline.
func (e *Exchange) SubmitOrder(req NewOrderRequest) *NewOrderResponse {
	side, orderType, priceCents, err := validateNewOrder(req)
	if err != nil {
		e.log.Warn().Err(err).Msg("validation error")
		return &NewOrderResponse{Status: StatusError, Details: err.Error()}
	}

	b, ok := e.books[req.InstrumentID]
	if !ok {
		e.log.Warn().Int64("instrument_id", req.InstrumentID).Msg("new-order unknown instrument")
		return &NewOrderResponse{Status: StatusError, Details: "unknown instrument"}
	}

	orderID, err := e.ids.Next()
	if err != nil {
		e.log.Error().Err(err).Msg("order id allocation failed")
		return &NewOrderResponse{Status: StatusError, Details: "internal error"}
	}

	order := &domain.Order{
		OrderID:           orderID,
		InstrumentID:      req.InstrumentID,
		PartyID:           req.PartyID,
		Side:              side,
		OrderType:         orderType,
		PriceCents:        priceCents,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		Timestamp:         e.clock(),
	}

	trades := b.Submit(order)
	e.emitNewOrderEvents(order, trades)

	if e.metrics != nil {
		e.metrics.OrdersSubmitted.Inc()
		e.metrics.TradesExecuted.Add(float64(len(trades)))
	}

	e.log.Info().Int64("order_id", order.OrderID).Int64("remaining", order.RemainingQuantity).
		Int("trades", len(trades)).Msg("order accepted")

	if trades == nil {
		trades = []*domain.Trade{}
	}
	return &NewOrderResponse{
		Status:       StatusAccepted,
		OrderID:      order.OrderID,
		RemainingQty: order.RemainingQuantity,
		Cancelled:    order.Cancelled,
		Trades:       trades,
	}
}

// emitNewOrderEvents applies the fixed sequence from spec.md §4.6: live
// upsert before the persisted order row, trades and their quantity
// updates in match order.
func (e *Exchange) emitNewOrderEvents(order *domain.Order, trades []*domain.Trade) {
	if order.OrderType == domain.GTC && order.RemainingQuantity > 0 && !order.Cancelled {
		e.writer.UpsertLiveOrder(order)
	}

	e.writer.RecordOrder(order)

	for _, trade := range trades {
		e.writer.RecordTrade(trade)

		for _, side := range []struct {
			orderID int64
			qtyRem  int64
		}{
			{trade.MakerOrderID, trade.MakerQuantityRemaining},
			{trade.TakerOrderID, trade.TakerQuantityRemaining},
		} {
			if side.qtyRem == 0 {
				e.writer.RemoveLiveOrder(trade.InstrumentID, side.orderID)
			} else {
				e.writer.UpdateOrderQuantity(trade.InstrumentID, side.orderID, trade.Quantity)
			}
		}
	}
}

// CancelOrder routes to the book's idempotent cancel. A repeat or
// unknown-id cancel is not an error in the storage sense but is
// reported as ERROR with no events emitted (spec.md §7).
func (e *Exchange) CancelOrder(req CancelRequest) *CancelResponse {
	if req.PartyID == "" {
		return &CancelResponse{Status: StatusError, Details: "party_id required"}
	}

	b, ok := e.books[req.InstrumentID]
	if !ok {
		e.log.Warn().Int64("instrument_id", req.InstrumentID).Msg("cancel unknown instrument")
		return &CancelResponse{Status: StatusError, Details: "unknown instrument"}
	}

	// Snapshot before cancelling: Cancel() wipes the order from the book's
	// id map on success, but the persisted row must reflect cancelled=true
	// (spec.md §9's open question on handle_cancel_all's snapshot timing).
	snapshot, _ := b.Live(req.OrderID)

	if !b.Cancel(req.OrderID) {
		e.log.Info().Int64("order_id", req.OrderID).Msg("cancel miss")
		return &CancelResponse{Status: StatusError, Details: "order not open"}
	}

	e.writer.RecordCancel(req.InstrumentID, req.OrderID)
	e.writer.RemoveLiveOrder(req.InstrumentID, req.OrderID)
	if snapshot != nil {
		e.writer.RecordOrder(snapshot)
	}
	if e.metrics != nil {
		e.metrics.CancelsProcessed.Inc()
	}

	e.log.Info().Int64("order_id", req.OrderID).Msg("order cancelled")
	return &CancelResponse{Status: StatusCancelled, OrderID: req.OrderID}
}

// CancelAll cancels every live order belonging to req.PartyID on one
// book, snapshotting the book's live orders first so concurrent-looking
// iteration semantics match a single-threaded pass over a fixed set.
func (e *Exchange) CancelAll(req CancelAllRequest) *CancelAllResponse {
	if req.PartyID == "" {
		return &CancelAllResponse{Status: StatusError, Details: "party_id required"}
	}

	b, ok := e.books[req.InstrumentID]
	if !ok {
		return &CancelAllResponse{Status: StatusError, Details: "unknown instrument"}
	}

	cancelled := []int64{}
	failed := []int64{}
	for _, order := range b.LiveOrders() {
		if order.PartyID != req.PartyID {
			continue
		}
		if b.Cancel(order.OrderID) {
			e.writer.RecordCancel(req.InstrumentID, order.OrderID)
			e.writer.RemoveLiveOrder(req.InstrumentID, order.OrderID)
			e.writer.RecordOrder(order)
			cancelled = append(cancelled, order.OrderID)
			if e.metrics != nil {
				e.metrics.CancelsProcessed.Inc()
			}
		} else {
			failed = append(failed, order.OrderID)
		}
	}

	return &CancelAllResponse{
		Status:            StatusCancelledAll,
		CancelledOrderIDs: cancelled,
		FailedOrderIDs:    failed,
	}
}

// CreateBook allocates a new empty book, failing if one already exists.
func (e *Exchange) CreateBook(req CreateBookRequest) *CreateBookResponse {
	if _, exists := e.books[req.InstrumentID]; exists {
		return &CreateBookResponse{Status: StatusError, Details: "instrument already exists"}
	}

	e.log.Info().Int64("instrument_id", req.InstrumentID).Msg("create book")
	e.books[req.InstrumentID] = book.NewOrderBook(req.InstrumentID)
	e.writer.CreateInstrument(req.InstrumentID)
	e.log.Info().Int64("instrument_id", req.InstrumentID).Int("total_books", len(e.books)).Msg("book created")

	return &CreateBookResponse{Status: StatusCreated, InstrumentID: req.InstrumentID}
}

// Book exposes a book by instrument id, for read-only external queries
// (e.g. a transport-level best-bid/ask request). The returned pointer
// must not be mutated outside the dispatcher.
func (e *Exchange) Book(instrumentID int64) (*book.OrderBook, bool) {
	b, ok := e.books[instrumentID]
	return b, ok
}

func validateNewOrder(req NewOrderRequest) (domain.Side, domain.OrderType, int64, error) {
	if req.PartyID == "" {
		return 0, 0, 0, validationErr("party_id required")
	}
	if req.Quantity <= 0 {
		return 0, 0, 0, validationErr("quantity must be > 0")
	}
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		return 0, 0, 0, validationErr("invalid side %q", req.Side)
	}
	orderType, ok := domain.ParseOrderType(req.OrderType)
	if !ok {
		return 0, 0, 0, validationErr("invalid order_type %q", req.OrderType)
	}

	var priceCents int64
	switch orderType {
	case domain.GTC, domain.IOC:
		if req.PriceCents == nil {
			return 0, 0, 0, validationErr("price_cents required for %s", req.OrderType)
		}
		if *req.PriceCents < 0 {
			return 0, 0, 0, validationErr("price_cents must be >= 0")
		}
		priceCents = *req.PriceCents
	case domain.Market:
		if req.PriceCents != nil {
			if *req.PriceCents < 0 {
				return 0, 0, 0, validationErr("price_cents must be >= 0")
			}
			priceCents = *req.PriceCents
		}
	default:
		return 0, 0, 0, validationErr("unreachable order_type %v", orderType)
	}

	if side != domain.Buy && side != domain.Sell {
		return 0, 0, 0, validationErr("unreachable side %v", side)
	}

	return side, orderType, priceCents, nil
}

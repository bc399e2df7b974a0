// Package book implements the per-instrument matching algorithm: price
// levels, the best-price index, and the limit/market/IOC/GTC dispatch
// that turns an incoming order into trades plus (optionally) a resting
// residual.
package book

import (
	"fmt"

	"fenrir/internal/domain"
)

// OrderBook holds one instrument's resting liquidity and matches incoming
// orders against it under price-time priority. It performs no I/O and
// never blocks; every operation is synchronous and in-memory.
type OrderBook struct {
	InstrumentID int64

	bidLevels map[int64]*PriceLevel
	askLevels map[int64]*PriceLevel
	bidIndex  *PriceIndex
	askIndex  *PriceIndex

	byOrderID map[int64]*domain.Order

	// revision is bumped on every state-altering operation; observers use
	// it to detect "has anything changed" without diffing the book.
	revision uint64
}

// NewOrderBook creates an empty book for instrumentID.
func NewOrderBook(instrumentID int64) *OrderBook {
	return &OrderBook{
		InstrumentID: instrumentID,
		bidLevels:    make(map[int64]*PriceLevel),
		askLevels:    make(map[int64]*PriceLevel),
		bidIndex:     NewPriceIndex(true),
		askIndex:     NewPriceIndex(false),
		byOrderID:    make(map[int64]*domain.Order),
	}
}

// Revision returns the current state counter.
func (b *OrderBook) Revision() uint64 { return b.revision }

// BestBid returns the best (highest) resting buy price, if any.
func (b *OrderBook) BestBid() (int64, bool) { return b.bidIndex.Best() }

// BestAsk returns the best (lowest) resting sell price, if any.
func (b *OrderBook) BestAsk() (int64, bool) { return b.askIndex.Best() }

// Live returns the order currently resting under orderID, if any. The
// returned pointer is only valid while the order remains on the book.
func (b *OrderBook) Live(orderID int64) (*domain.Order, bool) {
	o, ok := b.byOrderID[orderID]
	return o, ok
}

// LiveOrders returns a snapshot of every order currently resting on the
// book, in no particular order. Used by cancel-all and by rebuild
// verification.
func (b *OrderBook) LiveOrders() []*domain.Order {
	out := make([]*domain.Order, 0, len(b.byOrderID))
	for _, o := range b.byOrderID {
		out = append(out, o)
	}
	return out
}

// Submit routes order to the matching algorithm for its OrderType and
// returns the trades produced, in match order. order must already belong
// to this book's instrument; routing it to the wrong book is a
// programmer error and panics.
func (b *OrderBook) Submit(order *domain.Order) []*domain.Trade {
	if order.InstrumentID != b.InstrumentID {
		panic(fmt.Sprintf("order for instrument %d routed to book %d", order.InstrumentID, b.InstrumentID))
	}
	b.revision++

	var trades []*domain.Trade
	switch order.OrderType {
	case domain.Market:
		trades = b.matchAgainst(order, false)
	case domain.GTC:
		trades = b.matchAgainst(order, true)
		if order.RemainingQuantity > 0 {
			b.restOrderLocked(order)
		}
	case domain.IOC:
		trades = b.matchAgainst(order, true)
		if order.RemainingQuantity > 0 {
			order.Cancel()
		}
	}
	return trades
}

// RestOrder inserts order as resting liquidity without any matching. Used
// by cold-start rebuild to reconstruct the book from persisted state, and
// internally by Submit for GTC residuals.
func (b *OrderBook) RestOrder(order *domain.Order) {
	b.revision++
	b.restOrderLocked(order)
}

func (b *OrderBook) restOrderLocked(o *domain.Order) {
	levels, idx := b.sideFor(o.Side)
	lvl, ok := levels[o.PriceCents]
	if !ok {
		lvl = newPriceLevel(o.PriceCents)
		levels[o.PriceCents] = lvl
		idx.Push(o.PriceCents)
	}
	lvl.push(o)
	b.byOrderID[o.OrderID] = o
}

// Cancel transitions a known, not-yet-cancelled order to cancelled.
// Returns true iff this call performed that transition; a repeat cancel
// or cancel of an unknown order returns false and changes nothing.
func (b *OrderBook) Cancel(orderID int64) bool {
	o, ok := b.byOrderID[orderID]
	if !ok {
		return false
	}
	firstTime := !o.Cancelled
	if firstTime {
		b.revision++
		o.Cancel()
	}

	levels, idx := b.sideFor(o.Side)
	if lvl, ok := levels[o.PriceCents]; ok && lvl.empty() {
		delete(levels, o.PriceCents)
		idx.MarkEmpty(o.PriceCents)
	}
	if firstTime {
		delete(b.byOrderID, orderID)
	}
	return firstTime
}

func (b *OrderBook) sideFor(side domain.Side) (map[int64]*PriceLevel, *PriceIndex) {
	if side == domain.Buy {
		return b.bidLevels, b.bidIndex
	}
	return b.askLevels, b.askIndex
}

// matchAgainst sweeps the opposite side of the book while order has
// residual quantity. When priceSensitive is true (GTC/IOC) matching stops
// as soon as the best opposing price no longer crosses the order's limit;
// MARKET orders (priceSensitive=false) sweep until quantity is exhausted
// or the opposite side runs dry.
func (b *OrderBook) matchAgainst(order *domain.Order, priceSensitive bool) []*domain.Trade {
	var trades []*domain.Trade
	oppLevels, oppIdx := b.sideFor(oppositeSide(order.Side))

	for order.RemainingQuantity > 0 {
		bestPrice, ok := oppIdx.Best()
		if !ok {
			break
		}
		if priceSensitive && !crosses(order.Side, order.PriceCents, bestPrice) {
			break
		}

		lvl := oppLevels[bestPrice]
		maker := lvl.top()
		if maker == nil {
			// Lazy artifact: level emptied out from under the index.
			delete(oppLevels, bestPrice)
			oppIdx.MarkEmpty(bestPrice)
			continue
		}

		trade := b.matchOne(order, maker)
		trades = append(trades, trade)

		if maker.RemainingQuantity == 0 && lvl.empty() {
			delete(oppLevels, bestPrice)
			oppIdx.MarkEmpty(bestPrice)
		}
	}
	return trades
}

// matchOne fills order (the taker) and maker (the resting order) by
// min(remaining) and returns the resulting trade. The maker's price is
// always the trade price.
func (b *OrderBook) matchOne(taker, maker *domain.Order) *domain.Trade {
	qty := min64(taker.RemainingQuantity, maker.RemainingQuantity)
	taker.Fill(qty)
	maker.Fill(qty)

	if maker.RemainingQuantity == 0 {
		delete(b.byOrderID, maker.OrderID)
	}

	return &domain.Trade{
		InstrumentID:           b.InstrumentID,
		PriceCents:             maker.PriceCents,
		Quantity:               qty,
		Timestamp:              taker.Timestamp,
		MakerOrderID:           maker.OrderID,
		TakerOrderID:           taker.OrderID,
		MakerPartyID:           maker.PartyID,
		TakerPartyID:           taker.PartyID,
		MakerIsBuyer:           maker.Side == domain.Buy,
		MakerQuantityRemaining: maker.RemainingQuantity,
		TakerQuantityRemaining: taker.RemainingQuantity,
	}
}

func oppositeSide(s domain.Side) domain.Side {
	if s == domain.Buy {
		return domain.Sell
	}
	return domain.Buy
}

// crosses reports whether a limit order on side, at limitPrice, crosses
// the opposing book's best price.
func crosses(side domain.Side, limitPrice, bestOppPrice int64) bool {
	if side == domain.Buy {
		return bestOppPrice <= limitPrice
	}
	return bestOppPrice >= limitPrice
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

package book

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/domain"
)

func newOrder(id, instrument int64, side domain.Side, orderType domain.OrderType, price, qty int64) *domain.Order {
	return &domain.Order{
		OrderID:           id,
		InstrumentID:      instrument,
		PartyID:           "party",
		Side:              side,
		OrderType:         orderType,
		PriceCents:        price,
		Quantity:          qty,
		RemainingQuantity: qty,
		Timestamp:         id,
	}
}

func TestSubmit_SimpleCross(t *testing.T) {
	b := NewOrderBook(1)

	sell := newOrder(1, 1, domain.Sell, domain.GTC, 10500, 5)
	trades := b.Submit(sell)
	assert.Empty(t, trades)

	buy := newOrder(2, 1, domain.Buy, domain.GTC, 11000, 3)
	trades = b.Submit(buy)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(3), trades[0].Quantity)
	assert.Equal(t, int64(10500), trades[0].PriceCents)
	assert.Equal(t, int64(2), sell.RemainingQuantity)

	ok := b.Cancel(sell.OrderID)
	assert.True(t, ok)
	assert.Empty(t, b.LiveOrders())
}

func TestSubmit_MarketSweepAcrossLevels(t *testing.T) {
	b := NewOrderBook(2)
	b.Submit(newOrder(1, 2, domain.Sell, domain.GTC, 10000, 1))
	b.Submit(newOrder(2, 2, domain.Sell, domain.GTC, 10005, 2))
	b.Submit(newOrder(3, 2, domain.Sell, domain.GTC, 10010, 3))

	taker := newOrder(4, 2, domain.Buy, domain.Market, 0, 4)
	trades := b.Submit(taker)
	require.Len(t, trades, 3)
	assert.Equal(t, int64(1), trades[0].Quantity)
	assert.Equal(t, int64(10000), trades[0].PriceCents)
	assert.Equal(t, int64(2), trades[1].Quantity)
	assert.Equal(t, int64(10005), trades[1].PriceCents)
	assert.Equal(t, int64(1), trades[2].Quantity)
	assert.Equal(t, int64(10010), trades[2].PriceCents)
	assert.Equal(t, int64(0), taker.RemainingQuantity)

	bestAsk, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(10010), bestAsk)
}

func TestSubmit_MarketOnEmptyBook(t *testing.T) {
	b := NewOrderBook(3)
	order := newOrder(1, 3, domain.Buy, domain.Market, 0, 2)
	trades := b.Submit(order)
	assert.Empty(t, trades)
	assert.Equal(t, int64(2), order.RemainingQuantity)
	assert.False(t, order.Cancelled)
	assert.Empty(t, b.LiveOrders())
}

func TestSubmit_IOCNoFillCancelsResidual(t *testing.T) {
	b := NewOrderBook(4)
	b.Submit(newOrder(1, 4, domain.Sell, domain.GTC, 10200, 1))

	taker := newOrder(2, 4, domain.Buy, domain.IOC, 9900, 1)
	trades := b.Submit(taker)
	assert.Empty(t, trades)
	assert.True(t, taker.Cancelled)
	assert.Equal(t, int64(0), taker.RemainingQuantity)

	bestAsk, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(10200), bestAsk)
}

func TestCancel_Idempotent(t *testing.T) {
	b := NewOrderBook(5)
	order := newOrder(1, 5, domain.Buy, domain.GTC, 100, 10)
	b.Submit(order)

	assert.True(t, b.Cancel(1))
	assert.False(t, b.Cancel(1))
	_, ok := b.Live(1)
	assert.False(t, ok)
}

func TestCancel_UnknownOrder(t *testing.T) {
	b := NewOrderBook(6)
	assert.False(t, b.Cancel(999))
}

func TestMatch_FIFOWithinLevel(t *testing.T) {
	b := NewOrderBook(7)
	first := newOrder(1, 7, domain.Sell, domain.GTC, 100, 5)
	second := newOrder(2, 7, domain.Sell, domain.GTC, 100, 5)
	b.Submit(first)
	b.Submit(second)

	taker := newOrder(3, 7, domain.Buy, domain.Market, 0, 5)
	trades := b.Submit(taker)
	require.Len(t, trades, 1)
	assert.Equal(t, first.OrderID, trades[0].MakerOrderID)
	assert.Equal(t, int64(0), first.RemainingQuantity)
	assert.Equal(t, int64(5), second.RemainingQuantity)
}

func TestBestBidBelowBestAskWhenBothSidesNonEmpty(t *testing.T) {
	b := NewOrderBook(8)
	b.Submit(newOrder(1, 8, domain.Buy, domain.GTC, 100, 1))
	b.Submit(newOrder(2, 8, domain.Sell, domain.GTC, 105, 1))

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.Less(t, bid, ask)
}

func TestRestOrder_UsedForRebuildDoesNotMatch(t *testing.T) {
	b := NewOrderBook(9)
	resting := newOrder(1, 9, domain.Sell, domain.GTC, 100, 5)
	b.RestOrder(resting)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(100), ask)
	assert.Equal(t, int64(5), resting.RemainingQuantity)
}

func TestSubmit_WrongInstrumentPanics(t *testing.T) {
	b := NewOrderBook(1)
	order := newOrder(1, 2, domain.Buy, domain.GTC, 100, 1)
	assert.Panics(t, func() { b.Submit(order) })
}

// TestQuantityConservation_RandomizedStream exercises spec.md §8 scenario
// 6: 200 random GTC orders with ~30% mid-stream cancels, followed by 50
// MARKET pokes on the same book. At the end no quantity has been created
// or destroyed: every order's filled+remaining, plus the residual that a
// cancel zeroed out, still equals its original quantity, every order_id
// was seen exactly once, and the book-wide
// ledger balances — each trade debits one unit of "filled" from a maker
// and one from a taker, so the total submitted quantity must equal twice
// the traded volume plus whatever is still live, explicitly cancelled
// away, or left over unrested from a MARKET sweep.
func TestQuantityConservation_RandomizedStream(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := NewOrderBook(1)

	var nextID int64
	seenIDs := make(map[int64]bool)
	allOrders := make([]*domain.Order, 0, 260)
	liveGTC := make([]*domain.Order, 0, 200)

	var totalSubmittedQty int64
	var totalTradedQty int64
	var totalCancelledQty int64
	var totalMarketResidual int64
	cancelledResidual := make(map[int64]int64)

	newID := func() int64 {
		nextID++
		require.False(t, seenIDs[nextID], "order_id %d reused", nextID)
		seenIDs[nextID] = true
		return nextID
	}

	randomSide := func() domain.Side {
		if rng.Intn(2) == 0 {
			return domain.Buy
		}
		return domain.Sell
	}

	for i := 0; i < 200; i++ {
		id := newID()
		price := int64(9900 + rng.Intn(200)) // 9900..10099, deliberately overlapping
		qty := int64(1 + rng.Intn(10))
		order := newOrder(id, 1, randomSide(), domain.GTC, price, qty)
		allOrders = append(allOrders, order)
		totalSubmittedQty += qty

		trades := b.Submit(order)
		totalTradedQty += sumTradeQty(trades)

		if order.RemainingQuantity > 0 && !order.Cancelled {
			liveGTC = append(liveGTC, order)
		}

		if rng.Float64() < 0.30 && len(liveGTC) > 0 {
			victimIdx := rng.Intn(len(liveGTC))
			victim := liveGTC[victimIdx]
			liveGTC = append(liveGTC[:victimIdx], liveGTC[victimIdx+1:]...)

			if live, ok := b.Live(victim.OrderID); ok {
				removedQty := live.RemainingQuantity
				if b.Cancel(victim.OrderID) {
					totalCancelledQty += removedQty
					cancelledResidual[victim.OrderID] = removedQty
				}
			}
		}
	}

	for i := 0; i < 50; i++ {
		id := newID()
		qty := int64(1 + rng.Intn(15))
		order := newOrder(id, 1, randomSide(), domain.Market, 0, qty)
		allOrders = append(allOrders, order)
		totalSubmittedQty += qty

		trades := b.Submit(order)
		totalTradedQty += sumTradeQty(trades)
		totalMarketResidual += order.RemainingQuantity
	}

	for _, o := range allOrders {
		assert.Equal(t, o.Quantity, o.FilledQuantity+o.RemainingQuantity+cancelledResidual[o.OrderID],
			"order %d violates filled+remaining+cancelled==quantity", o.OrderID)
		assert.GreaterOrEqual(t, o.RemainingQuantity, int64(0))
	}

	var liveRemaining int64
	for _, o := range b.LiveOrders() {
		liveRemaining += o.RemainingQuantity
	}

	assert.Equal(t, totalSubmittedQty, 2*totalTradedQty+liveRemaining+totalCancelledQty+totalMarketResidual,
		"quantity ledger does not balance")

	if bid, ok := b.BestBid(); ok {
		if ask, ok := b.BestAsk(); ok {
			assert.Less(t, bid, ask, "best_bid must stay below best_ask once both sides are non-empty")
		}
	}
}

func sumTradeQty(trades []*domain.Trade) int64 {
	var total int64
	for _, tr := range trades {
		total += tr.Quantity
	}
	return total
}

package writer

import "fenrir/internal/domain"

// Composite is a synchronous fan-out over an ordered tuple of writers.
// Every operation is invoked on each writer in order; for operations that
// return a value, the first writer's result is the composite's result
// and the rest are discarded (but still invoked, for their side effects).
// Replaces the teacher's original __getattr__ duck-typed forwarding with
// an explicit interface and generated per-method fan-out, per spec.md
// §9's design note against reflective dispatch.
type Composite struct {
	writers []Writer
}

// New composes writers, in the order they should be invoked. The durable
// writer conventionally comes first so its ListInstruments/IterOrders
// results are the ones rebuild consumers see if they call through the
// composite rather than the durable writer directly.
func New(writers ...Writer) *Composite {
	return &Composite{writers: writers}
}

func (c *Composite) RecordOrder(order *domain.Order) {
	for _, w := range c.writers {
		w.RecordOrder(order)
	}
}

func (c *Composite) RecordTrade(trade *domain.Trade) {
	for _, w := range c.writers {
		w.RecordTrade(trade)
	}
}

func (c *Composite) RecordCancel(instrumentID, orderID int64) {
	for _, w := range c.writers {
		w.RecordCancel(instrumentID, orderID)
	}
}

func (c *Composite) UpsertLiveOrder(order *domain.Order) {
	for _, w := range c.writers {
		w.UpsertLiveOrder(order)
	}
}

func (c *Composite) RemoveLiveOrder(instrumentID, orderID int64) {
	for _, w := range c.writers {
		w.RemoveLiveOrder(instrumentID, orderID)
	}
}

func (c *Composite) UpdateOrderQuantity(instrumentID, orderID, quantityDelta int64) {
	for _, w := range c.writers {
		w.UpdateOrderQuantity(instrumentID, orderID, quantityDelta)
	}
}

func (c *Composite) CreateInstrument(instrumentID int64) {
	for _, w := range c.writers {
		w.CreateInstrument(instrumentID)
	}
}

func (c *Composite) ListInstruments() []int64 {
	var first []int64
	for i, w := range c.writers {
		ids := w.ListInstruments()
		if i == 0 {
			first = ids
		}
	}
	return first
}

func (c *Composite) IterOrders(instrumentID int64) []*domain.Order {
	var first []*domain.Order
	for i, w := range c.writers {
		orders := w.IterOrders(instrumentID)
		if i == 0 {
			first = orders
		}
	}
	return first
}

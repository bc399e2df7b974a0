// Package broadcast implements a best-effort UDP multicast publisher:
// every order, trade, and cancel record is serialized to compact JSON and
// fired at a multicast group, with no acknowledgement and no retry; the
// live-order calls publish nothing. Grounded on
// apps/exchange/multicast_writer.py.
package broadcast

import (
	"encoding/json"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"fenrir/internal/domain"
)

// Writer publishes ORDER/TRADE/CANCEL events to a UDP multicast group.
// It never stores state and its rebuild-side methods are no-ops.
type Writer struct {
	conn *net.UDPConn
	addr *net.UDPAddr
	log  zerolog.Logger
}

// Dial opens the multicast socket at group:port with the given TTL.
func Dial(group string, port int, ttl int, log zerolog.Logger) (*Writer, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(group), Port: port}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	if err := ipv4.NewConn(conn).SetMulticastTTL(ttl); err != nil {
		log.Debug().Err(err).Msg("could not set multicast TTL, using platform default")
	}
	return &Writer{conn: conn, addr: addr, log: log}, nil
}

func (w *Writer) send(payload map[string]any) {
	buf, err := json.Marshal(payload)
	if err != nil {
		w.log.Error().Err(err).Msg("broadcast marshal failed")
		return
	}
	if _, err := w.conn.Write(buf); err != nil {
		w.log.Debug().Err(err).Msg("broadcast send failed")
	}
}

func (w *Writer) RecordOrder(order *domain.Order) {
	w.send(map[string]any{
		"type":               "ORDER",
		"order_id":           order.OrderID,
		"instrument_id":      order.InstrumentID,
		"side":               order.Side.String(),
		"order_type":         order.OrderType.String(),
		"price_cents":        order.PriceCents,
		"quantity":           order.Quantity,
		"remaining_quantity": order.RemainingQuantity,
		"party_id":           order.PartyID,
		"timestamp":          order.Timestamp,
	})
}

func (w *Writer) RecordTrade(trade *domain.Trade) {
	w.send(map[string]any{
		"type":                     "TRADE",
		"instrument_id":            trade.InstrumentID,
		"price_cents":              trade.PriceCents,
		"quantity":                 trade.Quantity,
		"maker_order_id":           trade.MakerOrderID,
		"taker_order_id":           trade.TakerOrderID,
		"maker_party_id":           trade.MakerPartyID,
		"taker_party_id":           trade.TakerPartyID,
		"maker_is_buyer":           trade.MakerIsBuyer,
		"maker_quantity_remaining": trade.MakerQuantityRemaining,
		"taker_quantity_remaining": trade.TakerQuantityRemaining,
		"timestamp":                trade.Timestamp,
	})
}

func (w *Writer) RecordCancel(instrumentID, orderID int64) {
	w.send(map[string]any{"type": "CANCEL", "instrument_id": instrumentID, "order_id": orderID})
}

func (w *Writer) UpsertLiveOrder(order *domain.Order)                            {}
func (w *Writer) RemoveLiveOrder(instrumentID, orderID int64)                    {}
func (w *Writer) UpdateOrderQuantity(instrumentID, orderID, quantityDelta int64) {}
func (w *Writer) CreateInstrument(instrumentID int64)                            {}
func (w *Writer) ListInstruments() []int64                                      { return nil }
func (w *Writer) IterOrders(instrumentID int64) []*domain.Order                 { return nil }

// Close releases the underlying socket.
func (w *Writer) Close() error { return w.conn.Close() }

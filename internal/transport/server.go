package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/domain"
	"fenrir/internal/exchange"
)

// clientMessage links one decoded request envelope to the connection it
// arrived on, so the session handler can write the response back to the
// right peer. Grounded on the teacher's ClientMessage.
type clientMessage struct {
	conn     net.Conn
	envelope Envelope
}

// Server is the TCP front door. Every connection gets its own
// long-lived read loop (tomb-supervised, mirroring the teacher's
// per-connection worker), but all of them funnel decoded requests
// through a single session-handler goroutine, which is the only
// goroutine that ever calls into Exchange — preserving the
// single-logical-thread-of-control the dispatcher assumes (spec.md §5).
type Server struct {
	addr string
	ex   *exchange.Exchange
	log  zerolog.Logger

	clientMessages chan clientMessage

	// sessions maps party_id to its live connection, so execution reports
	// (SPEC_FULL.md §4.9) can be pushed to a counterparty without the
	// dispatcher knowing anything about transport. Learned the first time
	// a party's envelope is seen on a connection; a party with no
	// connection currently registered simply does not receive its report.
	mu       sync.Mutex
	sessions map[string]net.Conn

	t      tomb.Tomb
	cancel context.CancelFunc
}

// New builds a server bound to addr, dispatching accepted requests to ex.
func New(addr string, ex *exchange.Exchange, log zerolog.Logger) *Server {
	return &Server{
		addr:           addr,
		ex:             ex,
		log:            log,
		clientMessages: make(chan clientMessage, 256),
		sessions:       make(map[string]net.Conn),
	}
}

// Run listens and serves until ctx is cancelled or Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)
	s.t = *t

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", s.addr, err)
	}
	defer listener.Close()

	s.t.Go(func() error { return s.sessionHandler() })

	s.log.Info().Str("addr", s.addr).Msg("transport listening")
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}
		s.t.Go(func() error { return s.connLoop(conn) })
	}
}

// Shutdown stops accepting new work and waits for in-flight goroutines
// to exit.
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.t.Wait()
}

// registerSession records that partyID is now reachable on conn,
// overwriting any earlier connection for the same party.
func (s *Server) registerSession(partyID string, conn net.Conn) {
	if partyID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[partyID] = conn
}

// removeConn drops every session entry pointing at conn, called once the
// connection it belongs to has gone away.
func (s *Server) removeConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for partyID, c := range s.sessions {
		if c == conn {
			delete(s.sessions, partyID)
		}
	}
}

// sessionFor looks up the live connection for partyID, if any.
func (s *Server) sessionFor(partyID string) (net.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sessions[partyID]
	return c, ok
}

// connLoop reads frames off one connection for its lifetime and hands
// each decoded envelope to the session handler. It never touches
// Exchange directly.
func (s *Server) connLoop(conn net.Conn) error {
	addr := conn.RemoteAddr().String()
	defer func() {
		conn.Close()
		s.removeConn(conn)
	}()

	reader := bufio.NewReader(conn)
	for {
		var env Envelope
		if err := ReadFrame(reader, &env); err != nil {
			s.log.Debug().Err(err).Str("addr", addr).Msg("connection closed")
			return nil
		}
		if env.RequestID == "" {
			// Assign a correlation id ourselves for requests from clients
			// that don't send one, so every dispatched action is traceable
			// in the logs by a single id regardless of client version.
			env.RequestID = uuid.New().String()
		}
		select {
		case s.clientMessages <- clientMessage{conn: conn, envelope: env}:
		case <-s.t.Dying():
			return nil
		}
	}
}

// sessionHandler is the single goroutine that calls into Exchange. It
// drains clientMessages strictly in arrival order, matching spec.md
// §5's "sequence of applied actions matches the arrival order at the
// dispatcher".
func (s *Server) sessionHandler() error {
	for {
		select {
		case <-s.t.Dying():
			return nil
		case msg := <-s.clientMessages:
			s.log.Debug().Str("request_id", msg.envelope.RequestID).
				Str("action", string(msg.envelope.Action)).Msg("dispatching request")
			s.registerSession(msg.envelope.PartyID, msg.conn)
			resp := s.dispatch(msg.envelope)
			if err := WriteFrame(msg.conn, resp); err != nil {
				s.log.Debug().Err(err).Str("request_id", msg.envelope.RequestID).
					Msg("failed writing response")
			}
			if newOrderResp, ok := resp.(*exchange.NewOrderResponse); ok {
				s.pushExecutionReports(newOrderResp.Trades)
			}
		}
	}
}

// pushExecutionReports fans each trade's fill out to the two
// counterparties' connections, per SPEC_FULL.md §4.9. A counterparty not
// currently known to the session table (not connected, or connected on a
// session that hasn't sent anything yet) is silently skipped — this is
// best-effort, exactly like the broadcast writer's multicast frames.
func (s *Server) pushExecutionReports(trades []*domain.Trade) {
	for _, trade := range trades {
		s.pushExecutionReport(trade.MakerPartyID, makerReport(trade))
		s.pushExecutionReport(trade.TakerPartyID, takerReport(trade))
	}
}

func (s *Server) pushExecutionReport(partyID string, report ExecutionReport) {
	conn, ok := s.sessionFor(partyID)
	if !ok {
		return
	}
	if err := WriteFrame(conn, report); err != nil {
		s.log.Debug().Err(err).Str("party_id", partyID).Msg("failed pushing execution report")
	}
}

func makerReport(trade *domain.Trade) ExecutionReport {
	side := "SELL"
	if trade.MakerIsBuyer {
		side = "BUY"
	}
	return ExecutionReport{
		Type:              ExecutionReportType,
		InstrumentID:      trade.InstrumentID,
		OrderID:           trade.MakerOrderID,
		CounterpartyID:    trade.TakerPartyID,
		Side:              side,
		PriceCents:        trade.PriceCents,
		Quantity:          trade.Quantity,
		RemainingQuantity: trade.MakerQuantityRemaining,
		Timestamp:         trade.Timestamp,
	}
}

func takerReport(trade *domain.Trade) ExecutionReport {
	side := "BUY"
	if trade.MakerIsBuyer {
		side = "SELL"
	}
	return ExecutionReport{
		Type:              ExecutionReportType,
		InstrumentID:      trade.InstrumentID,
		OrderID:           trade.TakerOrderID,
		CounterpartyID:    trade.MakerPartyID,
		Side:              side,
		PriceCents:        trade.PriceCents,
		Quantity:          trade.Quantity,
		RemainingQuantity: trade.TakerQuantityRemaining,
		Timestamp:         trade.Timestamp,
	}
}

func (s *Server) dispatch(env Envelope) any {
	switch env.Action {
	case ActionNewOrder:
		return s.ex.SubmitOrder(exchange.NewOrderRequest{
			InstrumentID: env.InstrumentID,
			PartyID:      env.PartyID,
			Side:         env.Side,
			OrderType:    env.OrderType,
			PriceCents:   env.PriceCents,
			Quantity:     env.Quantity,
		})
	case ActionCancel:
		return s.ex.CancelOrder(exchange.CancelRequest{
			InstrumentID: env.InstrumentID,
			PartyID:      env.PartyID,
			OrderID:      env.OrderID,
		})
	case ActionCancelAll:
		return s.ex.CancelAll(exchange.CancelAllRequest{
			InstrumentID: env.InstrumentID,
			PartyID:      env.PartyID,
		})
	case ActionCreateBook:
		return s.ex.CreateBook(exchange.CreateBookRequest{
			InstrumentID: env.InstrumentID,
			PartyID:      env.PartyID,
		})
	default:
		return map[string]string{"status": "ERROR", "details": fmt.Sprintf("unknown action %q", env.Action)}
	}
}

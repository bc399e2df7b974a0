package transport

// Action tags the kind of request an incoming envelope carries, per
// spec.md §6's request payload shapes.
type Action string

const (
	ActionNewOrder   Action = "NEW_ORDER"
	ActionCancel     Action = "CANCEL"
	ActionCancelAll  Action = "CANCEL_ALL"
	ActionCreateBook Action = "CREATE_BOOK"
)

// Envelope is the single wire shape for every request kind; fields not
// relevant to Action are left zero. Password travels on the wire for
// parity with spec.md §6 but the core never inspects it — credential
// verification is an external boundary. RequestID is a client-generated
// correlation id, logged on both ends but never inspected by the
// dispatcher itself.
type Envelope struct {
	RequestID             string `json:"request_id,omitempty"`
	Action                Action `json:"action"`
	InstrumentID          int64  `json:"instrument_id"`
	PartyID               string `json:"party_id"`
	Password              string `json:"password,omitempty"`
	Side                  string `json:"side,omitempty"`
	OrderType             string `json:"order_type,omitempty"`
	PriceCents            *int64 `json:"price_cents,omitempty"`
	Quantity              int64  `json:"quantity,omitempty"`
	OrderID               int64  `json:"order_id,omitempty"`
	InstrumentName        string `json:"instrument_name,omitempty"`
	InstrumentDescription string `json:"instrument_description,omitempty"`
}

// ExecutionReport is pushed asynchronously to a counterparty's connection
// when a trade fills one of its resting or incoming orders, per
// SPEC_FULL.md §4.9. It carries that party's own side of the trade; the
// other party's identity is reported as CounterpartyID, never its order
// id. Unlike the request/response envelope this is never read back by
// the transport — it is fire-and-forget, the same way the broadcast
// writer's multicast frames are.
type ExecutionReport struct {
	Type              string `json:"type"`
	InstrumentID      int64  `json:"instrument_id"`
	OrderID           int64  `json:"order_id"`
	CounterpartyID    string `json:"counterparty_id"`
	Side              string `json:"side"`
	PriceCents        int64  `json:"price_cents"`
	Quantity          int64  `json:"quantity"`
	RemainingQuantity int64  `json:"remaining_quantity"`
	Timestamp         int64  `json:"timestamp"`
}

const ExecutionReportType = "EXECUTION_REPORT"

package exchange

import "fmt"

// NewOrderRequest is the validated shape of a new-order submission.
// PartyID/Password authentication is handled upstream of the core
// (spec.md §1 treats the HTTP/auth boundary as external); the dispatcher
// only requires PartyID to be non-empty.
type NewOrderRequest struct {
	InstrumentID int64
	PartyID      string
	Side         string
	OrderType    string
	PriceCents   *int64
	Quantity     int64
}

// CancelRequest cancels a single resting order.
type CancelRequest struct {
	InstrumentID int64
	PartyID      string
	OrderID      int64
}

// CancelAllRequest cancels every order resting for PartyID on one book.
type CancelAllRequest struct {
	InstrumentID int64
	PartyID      string
}

// CreateBookRequest creates a fresh, empty book.
type CreateBookRequest struct {
	InstrumentID int64
	PartyID      string
}

// ValidationError reports a malformed request; it never represents a
// storage or matching failure.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string { return e.Details }

func validationErr(format string, args ...any) error {
	return &ValidationError{Details: fmt.Sprintf(format, args...)}
}

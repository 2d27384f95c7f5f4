package agent

import "masmarket-go/internal/market"

// Intent is a request an agent asks the exchange to perform. The variant
// set is closed: PlaceOrder, CancelOrder, CreateDeposit.
type Intent interface {
	isIntent()
	// SeqID returns the local intent id used to correlate feedback.
	SeqID() int
}

// PlaceOrder requests a new order. Price is nil for market orders.
type PlaceOrder struct {
	IntentID int
	Side     market.Side
	Type     market.OrderType
	Quantity int
	Price    *float64
}

// CancelOrder requests removal of a previously placed order.
type CancelOrder struct {
	IntentID int
	OrderID  int
}

// CreateDeposit requests locking cash into a term deposit.
type CreateDeposit struct {
	IntentID int
	Amount   float64
	Term     int
}

func (PlaceOrder) isIntent()    {}
func (CancelOrder) isIntent()   {}
func (CreateDeposit) isIntent() {}

func (p PlaceOrder) SeqID() int    { return p.IntentID }
func (c CancelOrder) SeqID() int   { return c.IntentID }
func (d CreateDeposit) SeqID() int { return d.IntentID }

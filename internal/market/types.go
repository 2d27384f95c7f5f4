// Package market implements the paper exchange the agents trade against:
// accounts, a price-time priority limit book, a deposit desk, and the
// economy insight the longer-horizon strategies consume.
package market

// Side enumerates order directions.
type Side string

const (
	// Buy indicates a bid.
	Buy Side = "BUY"
	// Sell indicates an ask.
	Sell Side = "SELL"
)

// OrderType distinguishes resting limit orders from immediate market orders.
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// Lifecycle tracks whether an order can still trade.
type Lifecycle string

const (
	Working Lifecycle = "WORKING"
	Done    Lifecycle = "DONE"
)

// EndReason explains why a Done order stopped working.
type EndReason string

const (
	EndNone      EndReason = ""
	EndFilled    EndReason = "FILLED"
	EndCancelled EndReason = "CANCELLED"
	EndRejected  EndReason = "REJECTED"
)

// OrderView is the exchange-owned record of one order. Agents hold pointers
// to these in their local caches; the exchange is the single writer.
type OrderView struct {
	OrderID   int
	AgentID   int
	Side      Side
	Type      OrderType
	Lifecycle Lifecycle
	EndReason EndReason
	Quantity  int
	Remaining int
	Price     *float64 // nil for market orders
}

// DepositView is the exchange-owned record of one term deposit.
type DepositView struct {
	DepositID         int
	AgentID           int
	Amount            float64
	Rate              float64
	Term              int // macro ticks until maturity
	MaturityMacroTick int
}

// Quote is one side of the top of book.
type Quote struct {
	Price  float64
	Size   int
	Orders int
}

// Snapshot is the market data view handed to agents each tick. Price fields
// are nil when the book cannot produce them yet.
type Snapshot struct {
	MidPrice   *float64
	MicroPrice *float64
	LastTraded *float64
	BestBid    *Quote
	BestAsk    *Quote
}

// EconomyInsight carries the fair-value interval and the deposit terms on
// offer; refreshed once per macro tick.
type EconomyInsight struct {
	TVLow        float64
	TVHigh       float64
	DepositRates map[int]float64 // term (macro ticks) -> rate per term
}

// Fill describes one executed trade leg pair.
type Fill struct {
	OrderID   int     `json:"order_id"`
	BuyerID   int     `json:"buyer_id"`
	SellerID  int     `json:"seller_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	MacroTick int     `json:"macro_tick"`
	MicroTick int     `json:"micro_tick"`
}

// FillRecorder captures fills for later inspection.
type FillRecorder interface {
	Record(Fill)
}

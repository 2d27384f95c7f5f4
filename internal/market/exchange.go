package market

import (
	"math"
	"math/rand"
)

// Config tunes the exchange and its economy generator.
type Config struct {
	Seed              int64
	FeeRatePPM        int
	InitialPrice      float64
	TVWidth           float64
	TVDrift           float64
	DepositTerms      []int
	DepositBaseRate   float64
	DepositRateSpread float64
}

// Exchange is the paper market: sole owner of accounts, orders, and
// deposits. Agents interact with it only through the simulation engine.
type Exchange struct {
	rng     *rand.Rand
	feeRate float64

	accounts map[int]*Account
	orders   map[int]*OrderView
	bids     []*OrderView // sorted by price desc, arrival order within a level
	asks     []*OrderView // sorted by price asc, arrival order within a level
	deposits map[int]*DepositView

	nextOrderID   int
	nextDepositID int

	lastTraded *float64
	macroTick  int
	microTick  int

	tvCenter          float64
	tvWidth           float64
	tvDrift           float64
	depositTerms      []int
	depositBaseRate   float64
	depositRateSpread float64
	insight           EconomyInsight

	recorder FillRecorder
}

// NewExchange builds an exchange with its own seeded generator.
func NewExchange(cfg Config, recorder FillRecorder) *Exchange {
	ex := &Exchange{
		rng:               rand.New(rand.NewSource(cfg.Seed)),
		feeRate:           float64(cfg.FeeRatePPM) / 1_000_000.0,
		accounts:          make(map[int]*Account),
		orders:            make(map[int]*OrderView),
		deposits:          make(map[int]*DepositView),
		nextOrderID:       1,
		nextDepositID:     1,
		tvCenter:          cfg.InitialPrice,
		tvWidth:           cfg.TVWidth,
		tvDrift:           cfg.TVDrift,
		depositTerms:      cfg.DepositTerms,
		depositBaseRate:   cfg.DepositBaseRate,
		depositRateSpread: cfg.DepositRateSpread,
		recorder:          recorder,
	}
	if cfg.InitialPrice > 0 {
		last := cfg.InitialPrice
		ex.lastTraded = &last
	}
	ex.refreshInsight()
	return ex
}

// FeeRate returns the per-side fee fraction charged on trades.
func (ex *Exchange) FeeRate() float64 { return ex.feeRate }

// RegisterAgent opens an account. Returns nil for duplicate ids or
// negative endowments; callers treat nil as fatal.
func (ex *Exchange) RegisterAgent(agentID int, cash float64, shares int) *Account {
	if _, exists := ex.accounts[agentID]; exists {
		return nil
	}
	if cash < 0 || shares < 0 {
		return nil
	}
	acct := &Account{agentID: agentID, cash: cash, shares: shares}
	ex.accounts[agentID] = acct
	return acct
}

// SetClock records the current tick position for fill attribution.
func (ex *Exchange) SetClock(macro, micro int) {
	ex.macroTick = macro
	ex.microTick = micro
}

// CreateOrder validates, matches, and (for limit remainders) books an order.
// The returned view is exchange-owned and updated in place as the order
// trades or is cancelled.
func (ex *Exchange) CreateOrder(agentID int, typ OrderType, side Side, quantity int, price *float64) *OrderView {
	order := &OrderView{
		OrderID:   ex.nextOrderID,
		AgentID:   agentID,
		Side:      side,
		Type:      typ,
		Lifecycle: Working,
		Quantity:  quantity,
		Remaining: quantity,
		Price:     price,
	}
	ex.nextOrderID++
	ex.orders[order.OrderID] = order

	if quantity <= 0 || ex.accounts[agentID] == nil ||
		(typ == Limit && (price == nil || *price <= 0)) {
		order.Lifecycle = Done
		order.EndReason = EndRejected
		return order
	}

	ex.match(order)

	if order.Remaining > 0 && order.Lifecycle == Working {
		if typ == Market {
			ex.finish(order)
		} else {
			ex.book(order)
		}
	}
	return order
}

// CancelOrder removes a working order owned by the agent. Unknown ids and
// already-done orders are ignored.
func (ex *Exchange) CancelOrder(agentID, orderID int) {
	order := ex.orders[orderID]
	if order == nil || order.AgentID != agentID || order.Lifecycle != Working {
		return
	}
	order.Lifecycle = Done
	order.EndReason = EndCancelled
	ex.unbook(order)
}

// CreateDeposit locks cash into a term deposit at the currently offered
// rate. Returns nil when the term is not on offer or cash is insufficient.
func (ex *Exchange) CreateDeposit(agentID, term int, amount float64) *DepositView {
	acct := ex.accounts[agentID]
	if acct == nil || amount <= 0 || amount > acct.cash {
		return nil
	}
	rate, offered := ex.insight.DepositRates[term]
	if !offered {
		return nil
	}
	acct.cash -= amount
	dep := &DepositView{
		DepositID:         ex.nextDepositID,
		AgentID:           agentID,
		Amount:            amount,
		Rate:              rate,
		Term:              term,
		MaturityMacroTick: ex.macroTick + term,
	}
	ex.nextDepositID++
	ex.deposits[dep.DepositID] = dep
	return dep
}

// Snapshot assembles the current market data view.
func (ex *Exchange) Snapshot() *Snapshot {
	snap := &Snapshot{}
	if ex.lastTraded != nil {
		last := *ex.lastTraded
		snap.LastTraded = &last
	}
	snap.BestBid = topOfBook(ex.bids)
	snap.BestAsk = topOfBook(ex.asks)

	if snap.BestBid != nil && snap.BestAsk != nil {
		mid := (snap.BestBid.Price + snap.BestAsk.Price) / 2.0
		snap.MidPrice = &mid

		totalSize := float64(snap.BestBid.Size + snap.BestAsk.Size)
		if totalSize > 0 {
			micro := (snap.BestBid.Price*float64(snap.BestAsk.Size) +
				snap.BestAsk.Price*float64(snap.BestBid.Size)) / totalSize
			snap.MicroPrice = &micro
		}
	}
	return snap
}

// EconomyInsight returns a copy of the current macro-tick insight.
func (ex *Exchange) EconomyInsight() *EconomyInsight {
	rates := make(map[int]float64, len(ex.insight.DepositRates))
	for term, rate := range ex.insight.DepositRates {
		rates[term] = rate
	}
	return &EconomyInsight{TVLow: ex.insight.TVLow, TVHigh: ex.insight.TVHigh, DepositRates: rates}
}

// ExpireSession runs once per macro tick before any agent acts: matured
// deposits pay out and the economy insight is re-drawn.
func (ex *Exchange) ExpireSession() {
	for id, dep := range ex.deposits {
		if ex.macroTick >= dep.MaturityMacroTick {
			if acct := ex.accounts[dep.AgentID]; acct != nil {
				acct.cash += dep.Amount * (1 + dep.Rate)
			}
			delete(ex.deposits, id)
		}
	}
	ex.refreshInsight()
}

func (ex *Exchange) refreshInsight() {
	ex.tvCenter += ex.rng.NormFloat64() * ex.tvDrift
	if ex.tvCenter < ex.tvWidth {
		ex.tvCenter = ex.tvWidth
	}
	rates := make(map[int]float64, len(ex.depositTerms))
	for _, term := range ex.depositTerms {
		rates[term] = ex.depositBaseRate + ex.rng.Float64()*ex.depositRateSpread
	}
	ex.insight = EconomyInsight{
		TVLow:        ex.tvCenter - ex.tvWidth/2.0,
		TVHigh:       ex.tvCenter + ex.tvWidth/2.0,
		DepositRates: rates,
	}
}

func (ex *Exchange) match(incoming *OrderView) {
	taker := ex.accounts[incoming.AgentID]

	for incoming.Remaining > 0 {
		var resting *OrderView
		if incoming.Side == Buy {
			if len(ex.asks) == 0 {
				return
			}
			resting = ex.asks[0]
			if incoming.Type == Limit && *incoming.Price < *resting.Price {
				return
			}
		} else {
			if len(ex.bids) == 0 {
				return
			}
			resting = ex.bids[0]
			if incoming.Type == Limit && *incoming.Price > *resting.Price {
				return
			}
		}

		price := *resting.Price
		maker := ex.accounts[resting.AgentID]

		var buyer, seller *Account
		var buyOrder, sellOrder *OrderView
		if incoming.Side == Buy {
			buyer, seller = taker, maker
			buyOrder, sellOrder = incoming, resting
		} else {
			buyer, seller = maker, taker
			buyOrder, sellOrder = resting, incoming
		}

		quantity := incoming.Remaining
		if resting.Remaining < quantity {
			quantity = resting.Remaining
		}
		affordable := int(buyer.cash / (price * (1 + ex.feeRate)))
		if affordable < quantity {
			quantity = affordable
		}
		if seller.shares < quantity {
			quantity = seller.shares
		}

		if quantity <= 0 {
			// One side ran out of capacity. If it is the resting order,
			// cancel it and keep matching; otherwise stop here.
			restingCapped := (resting == sellOrder && seller.shares <= 0) ||
				(resting == buyOrder && affordable <= 0)
			if restingCapped {
				resting.Lifecycle = Done
				resting.EndReason = EndCancelled
				ex.unbook(resting)
				continue
			}
			return
		}

		buyer.cash -= float64(quantity) * price * (1 + ex.feeRate)
		buyer.shares += quantity
		seller.shares -= quantity
		seller.cash += float64(quantity) * price * (1 - ex.feeRate)

		incoming.Remaining -= quantity
		resting.Remaining -= quantity
		last := price
		ex.lastTraded = &last

		if ex.recorder != nil {
			ex.recorder.Record(Fill{
				OrderID:   incoming.OrderID,
				BuyerID:   buyOrder.AgentID,
				SellerID:  sellOrder.AgentID,
				Quantity:  quantity,
				Price:     price,
				MacroTick: ex.macroTick,
				MicroTick: ex.microTick,
			})
		}

		if resting.Remaining == 0 {
			resting.Lifecycle = Done
			resting.EndReason = EndFilled
			ex.unbook(resting)
		}
		if incoming.Remaining == 0 {
			incoming.Lifecycle = Done
			incoming.EndReason = EndFilled
		}
	}
}

// finish closes out an unfillable market-order remainder.
func (ex *Exchange) finish(order *OrderView) {
	order.Lifecycle = Done
	if order.Remaining < order.Quantity {
		order.EndReason = EndFilled
	} else {
		order.EndReason = EndCancelled
	}
}

func (ex *Exchange) book(order *OrderView) {
	if order.Side == Buy {
		idx := len(ex.bids)
		for i, o := range ex.bids {
			if *o.Price < *order.Price {
				idx = i
				break
			}
		}
		ex.bids = append(ex.bids[:idx], append([]*OrderView{order}, ex.bids[idx:]...)...)
		return
	}
	idx := len(ex.asks)
	for i, o := range ex.asks {
		if *o.Price > *order.Price {
			idx = i
			break
		}
	}
	ex.asks = append(ex.asks[:idx], append([]*OrderView{order}, ex.asks[idx:]...)...)
}

func (ex *Exchange) unbook(order *OrderView) {
	side := &ex.bids
	if order.Side == Sell {
		side = &ex.asks
	}
	for i, o := range *side {
		if o.OrderID == order.OrderID {
			*side = append((*side)[:i], (*side)[i+1:]...)
			return
		}
	}
}

func topOfBook(levels []*OrderView) *Quote {
	if len(levels) == 0 {
		return nil
	}
	best := *levels[0].Price
	quote := &Quote{Price: best}
	for _, o := range levels {
		if math.Abs(*o.Price-best) > 1e-9 {
			break
		}
		quote.Size += o.Remaining
		quote.Orders++
	}
	return quote
}

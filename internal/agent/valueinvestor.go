package agent

import (
	"math"

	"masmarket-go/internal/market"
)

// Intention is the value investor's active BDI branch. Selection is total
// and mutually exclusive, in priority order Accumulate > Distribute >
// ParkCapital > Wait.
type Intention int

const (
	IntentionWait Intention = iota
	IntentionAccumulate
	IntentionDistribute
	IntentionParkCapital
)

func (i Intention) String() string {
	switch i {
	case IntentionAccumulate:
		return "ACCUMULATE"
	case IntentionDistribute:
		return "DISTRIBUTE"
	case IntentionParkCapital:
		return "PARK_CAPITAL"
	default:
		return "WAIT"
	}
}

// ValueInvestorParams are the sampled knobs for one value investor.
type ValueInvestorParams struct {
	InitialOptimism           float64
	Stubbornness              float64
	BeliefUpdateRate          float64
	MispricingThreshold       float64
	MaxPositionFraction       float64
	DepositAffinity           float64
	DepositAllocationFraction float64
	DepositHorizonPreference  float64
	MaxOrderSize              int
	PatienceDiscount          float64
	PatiencePremium           float64
}

// ValueInvestor runs a belief-desire-intention loop over the fair-value
// interval: it forms a belief, picks one intention, and executes it. Acts
// only on macro ticks.
type ValueInvestor struct {
	agentID   int
	account   *market.Account
	constants Constants
	params    ValueInvestorParams

	optimism       float64
	belief         float64
	perceivedPnL   float64
	initialCapital float64
	intention      Intention

	activeDeposits map[int]*market.DepositView
	pendingOrders  map[int]*market.OrderView
	lastKnownPrice *float64

	seq intentSeq
}

// NewValueInvestor captures the opening portfolio value (shares marked at
// the 100.0 reference) as the baseline for perceived P&L.
func NewValueInvestor(agentID int, account *market.Account, constants Constants, params ValueInvestorParams) *ValueInvestor {
	return &ValueInvestor{
		agentID:        agentID,
		account:        account,
		constants:      constants,
		params:         params,
		optimism:       params.InitialOptimism,
		belief:         100.0,
		initialCapital: account.Cash() + float64(account.Shares())*100.0,
		intention:      IntentionWait,
		activeDeposits: make(map[int]*market.DepositView),
		pendingOrders:  make(map[int]*market.OrderView),
	}
}

// ID returns the agent identifier.
func (v *ValueInvestor) ID() int { return v.agentID }

// Belief returns the current point belief inside the fair-value interval.
func (v *ValueInvestor) Belief() float64 { return v.belief }

// Intention reports the branch chosen by the most recent Decide call.
func (v *ValueInvestor) Intention() Intention { return v.intention }

// Decide runs one BDI cycle: update beliefs, select an intention, execute it.
func (v *ValueInvestor) Decide(view View) ([]Intent, error) {
	if err := checkView(v.agentID, view, true); err != nil {
		return nil, err
	}

	v.cleanupMaturedDeposits(view.MacroTick)
	v.updateBeliefs(view)
	v.selectIntention(view)
	return v.executeIntention(view), nil
}

// Update records resulting order and deposit views; absent results mean the
// intent failed and are skipped.
func (v *ValueInvestor) Update(fb Feedback) {
	for _, dv := range fb.Deposits {
		if dv != nil {
			v.activeDeposits[dv.DepositID] = dv
		}
	}
	for _, ov := range fb.Orders {
		if ov != nil {
			v.pendingOrders[ov.OrderID] = ov
		}
	}
	v.cleanupDoneOrders()
}

func (v *ValueInvestor) updateBeliefs(view View) {
	economy := view.Economy
	v.belief = economy.TVLow + v.optimism*(economy.TVHigh-economy.TVLow)

	// Optimism drifts toward 1 on gains and 0 on losses; stubbornness
	// dampens the step.
	delta := v.params.BeliefUpdateRate * (1 - v.params.Stubbornness)
	if v.perceivedPnL > 0 {
		v.optimism = math.Min(1.0, v.optimism+delta)
	} else if v.perceivedPnL < 0 {
		v.optimism = math.Max(0.0, v.optimism-delta)
	}

	price := v.estimateMarketPrice(view)
	mark := v.belief
	if price != nil {
		mark = *price
	}
	v.perceivedPnL = v.account.Cash() + float64(v.account.Shares())*mark - v.initialCapital
}

// mispricing is (belief - price) / belief: positive means the market looks
// undervalued relative to the belief.
func (v *ValueInvestor) mispricing(view View) float64 {
	price := v.estimateMarketPrice(view)
	if price == nil || *price <= 0 {
		return 0.0
	}
	return (v.belief - *price) / v.belief
}

func (v *ValueInvestor) positionFraction() float64 {
	if v.lastKnownPrice == nil {
		return 0.0
	}
	total := v.account.Cash() + float64(v.account.Shares())**v.lastKnownPrice
	if total <= 0 {
		return 0.0
	}
	return float64(v.account.Shares()) * *v.lastKnownPrice / total
}

// bestDeposit scores each offered term as rate minus a horizon penalty and
// returns the winner if its rate clears the affinity floor.
func (v *ValueInvestor) bestDeposit(view View) (int, float64, bool) {
	rates := view.Economy.DepositRates
	if len(rates) == 0 {
		return 0, 0, false
	}

	maxTerm := 0
	for term := range rates {
		if term > maxTerm {
			maxTerm = term
		}
	}

	bestTerm := 0
	bestScore := 0.0
	first := true
	for term, rate := range rates {
		score := rate - (1-v.params.DepositHorizonPreference)*float64(term)/float64(maxTerm)
		if first || score > bestScore || (score == bestScore && term < bestTerm) {
			bestScore = score
			bestTerm = term
			first = false
		}
	}

	bestRate := rates[bestTerm]
	if bestRate >= v.params.DepositAffinity {
		return bestTerm, bestRate, true
	}
	return 0, 0, false
}

func (v *ValueInvestor) selectIntention(view View) {
	mispricing := v.mispricing(view)
	positionFraction := v.positionFraction()

	if mispricing > v.params.MispricingThreshold && positionFraction < v.params.MaxPositionFraction {
		v.intention = IntentionAccumulate
		return
	}

	if mispricing < -v.params.MispricingThreshold && positionFraction > 0.1 {
		v.intention = IntentionDistribute
		return
	}

	if _, _, ok := v.bestDeposit(view); ok && v.lastKnownPrice != nil {
		cash := v.account.Cash()
		total := cash + float64(v.account.Shares())**v.lastKnownPrice
		if total > 0 && cash/total > 0.2 {
			v.intention = IntentionParkCapital
			return
		}
	}

	v.intention = IntentionWait
}

func (v *ValueInvestor) executeIntention(view View) []Intent {
	switch v.intention {
	case IntentionAccumulate:
		return v.executeAccumulate(view)
	case IntentionDistribute:
		return v.executeDistribute(view)
	case IntentionParkCapital:
		return v.executeParkCapital(view)
	default:
		return nil
	}
}

func (v *ValueInvestor) executeAccumulate(view View) []Intent {
	cash := v.account.Cash()
	if cash <= 0 {
		return nil
	}
	price := v.estimateMarketPrice(view)
	if price == nil {
		return nil
	}

	affordable := int(cash / (*price * (1 + v.constants.FeeRate)))
	quantity := min(affordable, v.params.MaxOrderSize)
	if quantity <= 0 {
		return nil
	}

	buyPrice := *price * (1 - v.params.PatienceDiscount)
	return []Intent{PlaceOrder{
		IntentID: v.seq.Next(),
		Side:     market.Buy,
		Type:     market.Limit,
		Quantity: quantity,
		Price:    &buyPrice,
	}}
}

func (v *ValueInvestor) executeDistribute(view View) []Intent {
	shares := v.account.Shares()
	if shares <= 0 {
		return nil
	}
	price := v.estimateMarketPrice(view)
	if price == nil {
		return nil
	}

	quantity := min(shares, v.params.MaxOrderSize)
	sellPrice := *price * (1 + v.params.PatiencePremium)
	return []Intent{PlaceOrder{
		IntentID: v.seq.Next(),
		Side:     market.Sell,
		Type:     market.Limit,
		Quantity: quantity,
		Price:    &sellPrice,
	}}
}

func (v *ValueInvestor) executeParkCapital(view View) []Intent {
	cash := v.account.Cash()
	if cash <= 0 {
		return nil
	}
	term, _, ok := v.bestDeposit(view)
	if !ok {
		return nil
	}

	amount := cash * v.params.DepositAllocationFraction
	if amount <= 0 {
		return nil
	}
	return []Intent{CreateDeposit{
		IntentID: v.seq.Next(),
		Amount:   amount,
		Term:     term,
	}}
}

func (v *ValueInvestor) estimateMarketPrice(view View) *float64 {
	md := view.Market
	if md.MidPrice != nil {
		v.lastKnownPrice = md.MidPrice
		return md.MidPrice
	}
	if md.LastTraded != nil {
		v.lastKnownPrice = md.LastTraded
		return md.LastTraded
	}
	return v.lastKnownPrice
}

func (v *ValueInvestor) cleanupDoneOrders() {
	for orderID, ov := range v.pendingOrders {
		if ov.Lifecycle == market.Done {
			delete(v.pendingOrders, orderID)
		}
	}
}

func (v *ValueInvestor) cleanupMaturedDeposits(macroTick int) {
	for depositID, dv := range v.activeDeposits {
		if macroTick >= dv.MaturityMacroTick {
			delete(v.activeDeposits, depositID)
		}
	}
}

package agent

import (
	"math"

	"masmarket-go/internal/market"
)

// Signal is the momentum trader's evaluated trading decision.
type Signal int

const (
	SignalHold Signal = iota
	SignalEnterLong
	SignalEnterShort
	SignalExit
)

func (s Signal) String() string {
	switch s {
	case SignalEnterLong:
		return "ENTER_LONG"
	case SignalEnterShort:
		return "ENTER_SHORT"
	case SignalExit:
		return "EXIT"
	default:
		return "HOLD"
	}
}

// MomentumTraderParams are the sampled knobs for one momentum trader.
type MomentumTraderParams struct {
	MomentumWindow      int
	EntryThreshold      float64
	ExitThreshold       float64
	Aggressiveness      float64
	MaxExposureFraction float64
	DirectionalBias     float64
	LiquidityBaseline   int
}

// MomentumTrader runs an observe-evaluate-act cycle over a sliding window
// of reference prices, trading with market orders scaled by book depth.
type MomentumTrader struct {
	agentID   int
	account   *market.Account
	constants Constants
	params    MomentumTraderParams

	priceHistory []float64
	activeOrders map[int]*market.OrderView

	seq intentSeq
}

// NewMomentumTrader builds a momentum trader around a live account view.
func NewMomentumTrader(agentID int, account *market.Account, constants Constants, params MomentumTraderParams) *MomentumTrader {
	return &MomentumTrader{
		agentID:      agentID,
		account:      account,
		constants:    constants,
		params:       params,
		activeOrders: make(map[int]*market.OrderView),
	}
}

// ID returns the agent identifier.
func (t *MomentumTrader) ID() int { return t.agentID }

// Decide observes the current price, evaluates the biased momentum signal,
// and acts on it.
func (t *MomentumTrader) Decide(view View) ([]Intent, error) {
	if err := checkView(t.agentID, view, false); err != nil {
		return nil, err
	}

	t.observePrice(view)

	momentum := t.momentumSignal()
	signal := t.evaluateSignal(momentum + t.params.DirectionalBias)

	return t.actOnSignal(signal, view), nil
}

// Update folds exchange responses into the local cache and purges done
// orders.
func (t *MomentumTrader) Update(fb Feedback) {
	for _, ov := range fb.Orders {
		if ov != nil {
			t.activeOrders[ov.OrderID] = ov
		}
	}
	for orderID, ov := range t.activeOrders {
		if ov.Lifecycle == market.Done {
			delete(t.activeOrders, orderID)
		}
	}
}

func (t *MomentumTrader) observePrice(view View) {
	price := t.referencePrice(view)
	if price == nil {
		return
	}
	t.priceHistory = append(t.priceHistory, *price)
	if len(t.priceHistory) > t.params.MomentumWindow {
		t.priceHistory = t.priceHistory[1:]
	}
}

// referencePrice prefers last traded, then mid, then micro price.
func (t *MomentumTrader) referencePrice(view View) *float64 {
	md := view.Market
	if md.LastTraded != nil {
		return md.LastTraded
	}
	if md.MidPrice != nil {
		return md.MidPrice
	}
	return md.MicroPrice
}

// momentumSignal is the recency-weighted average of consecutive returns.
// Fewer than two samples yields exactly zero.
func (t *MomentumTrader) momentumSignal() float64 {
	if len(t.priceHistory) < 2 {
		return 0.0
	}

	var totalWeight, weightedReturn float64
	for i := 1; i < len(t.priceHistory); i++ {
		prev := t.priceHistory[i-1]
		if prev <= 0 {
			continue
		}
		ret := (t.priceHistory[i] - prev) / prev
		weight := float64(i)
		weightedReturn += ret * weight
		totalWeight += weight
	}

	if totalWeight > 0 {
		return weightedReturn / totalWeight
	}
	return 0.0
}

func (t *MomentumTrader) evaluateSignal(biasedMomentum float64) Signal {
	if biasedMomentum > t.params.EntryThreshold {
		return SignalEnterLong
	}
	if biasedMomentum < -t.params.EntryThreshold {
		return SignalEnterShort
	}
	if math.Abs(biasedMomentum) < t.params.ExitThreshold {
		return SignalExit
	}
	return SignalHold
}

// liquidityAmplifier grows target size when the top of book is thin and
// dampens it when the book is deep, clamped via the ratio to [0.5, 2.0].
func (t *MomentumTrader) liquidityAmplifier(view View) float64 {
	md := view.Market

	totalLiquidity := 0
	if md.BestBid != nil {
		totalLiquidity += md.BestBid.Size
	}
	if md.BestAsk != nil {
		totalLiquidity += md.BestAsk.Size
	}
	if totalLiquidity == 0 {
		return 1.0
	}

	ratio := float64(totalLiquidity) / float64(t.params.LiquidityBaseline)
	return 1.0 / min(2.0, max(0.5, ratio))
}

func (t *MomentumTrader) actOnSignal(signal Signal, view View) []Intent {
	switch signal {
	case SignalEnterLong:
		return t.enterLong(view)
	case SignalEnterShort:
		return t.enterShort(view)
	case SignalExit:
		return t.exitPosition()
	default:
		return nil
	}
}

func (t *MomentumTrader) enterLong(view View) []Intent {
	price := t.referencePrice(view)
	if price == nil {
		return nil
	}

	cash := t.account.Cash()
	shares := t.account.Shares()
	totalWealth := cash + float64(shares)**price

	effective := t.params.Aggressiveness * t.liquidityAmplifier(view)
	targetValue := totalWealth * t.params.MaxExposureFraction * effective
	targetShares := int(targetValue / *price)

	additional := targetShares - shares
	if additional <= 0 {
		return nil
	}

	costPerShare := *price * (1 + t.constants.FeeRate)
	if float64(additional)*costPerShare > cash {
		additional = int(cash / costPerShare)
	}
	if additional <= 0 {
		return nil
	}

	return []Intent{PlaceOrder{
		IntentID: t.seq.Next(),
		Side:     market.Buy,
		Type:     market.Market,
		Quantity: additional,
	}}
}

// enterShort reduces the long position; the trader never sells shares it
// does not hold.
func (t *MomentumTrader) enterShort(view View) []Intent {
	shares := t.account.Shares()
	if shares <= 0 {
		return nil
	}
	if t.referencePrice(view) == nil {
		return nil
	}

	effective := t.params.Aggressiveness * t.liquidityAmplifier(view)
	quantity := min(int(float64(shares)*effective), shares)
	if quantity <= 0 {
		return nil
	}

	return []Intent{PlaceOrder{
		IntentID: t.seq.Next(),
		Side:     market.Sell,
		Type:     market.Market,
		Quantity: quantity,
	}}
}

func (t *MomentumTrader) exitPosition() []Intent {
	shares := t.account.Shares()
	if shares <= 0 {
		return nil
	}
	return []Intent{PlaceOrder{
		IntentID: t.seq.Next(),
		Side:     market.Sell,
		Type:     market.Market,
		Quantity: shares,
	}}
}

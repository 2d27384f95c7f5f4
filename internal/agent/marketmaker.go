package agent

import (
	"math"
	"sort"

	"masmarket-go/internal/market"
)

// Layer is the market maker's active risk branch, in strict priority order
// Survive > Stabilize > Provide.
type Layer int

const (
	LayerProvide Layer = iota
	LayerStabilize
	LayerSurvive
)

func (l Layer) String() string {
	switch l {
	case LayerSurvive:
		return "SURVIVE"
	case LayerStabilize:
		return "STABILIZE"
	default:
		return "PROVIDE"
	}
}

// quoteEquivalenceTolerance is the absolute price distance within which a
// working order counts as already covering a target quote.
const quoteEquivalenceTolerance = 1.0

// MarketMakerParams are the sampled knobs for one market maker instance.
type MarketMakerParams struct {
	TargetInventoryFraction float64
	RiskLowerBound          float64
	RiskUpperBound          float64
	StabilizationTolerance  float64
	SpreadSize              int
	OrderSize               int
	WaitTime                int
	SkewFactor              int
}

// MarketMaker quotes both sides of the book, layering its behaviour by
// inventory risk: panic rebalancing, skewed stabilization, or symmetric
// liquidity provision.
type MarketMaker struct {
	agentID   int
	account   *market.Account
	constants Constants
	params    MarketMakerParams

	activeBids map[int]*market.OrderView
	activeAsks map[int]*market.OrderView

	lastKnownPrice     *float64
	lastMidPrice       *float64
	lastQuoteTick      *int
	lastInventoryRatio *float64
	lastLayer          Layer

	currentTick         int
	layerChanged        bool
	orderFilledThisTick bool

	seq intentSeq
}

// NewMarketMaker builds a market maker around a live account view.
func NewMarketMaker(agentID int, account *market.Account, constants Constants, params MarketMakerParams) *MarketMaker {
	return &MarketMaker{
		agentID:    agentID,
		account:    account,
		constants:  constants,
		params:     params,
		activeBids: make(map[int]*market.OrderView),
		activeAsks: make(map[int]*market.OrderView),
		lastLayer:  LayerProvide,
	}
}

// ID returns the agent identifier.
func (m *MarketMaker) ID() int { return m.agentID }

// Layer reports the branch chosen by the most recent Decide call.
func (m *MarketMaker) Layer() Layer { return m.lastLayer }

// Decide recomputes the active layer from current inventory and emits the
// matching quote intents.
func (m *MarketMaker) Decide(view View) ([]Intent, error) {
	if err := checkView(m.agentID, view, true); err != nil {
		return nil, err
	}

	m.currentTick = view.MacroTick*m.constants.MicroTicksPerMacro + view.MicroTick

	layer := m.determineLayer()
	m.layerChanged = layer != m.lastLayer
	m.lastLayer = layer

	// Crossing the target from one side to the other also counts as a
	// layer change and forces a requote.
	ratio := m.inventoryRatio()
	if m.lastInventoryRatio != nil {
		oldDir := *m.lastInventoryRatio - m.params.TargetInventoryFraction
		newDir := ratio - m.params.TargetInventoryFraction
		if oldDir*newDir < 0 {
			m.layerChanged = true
		}
	}
	m.lastInventoryRatio = &ratio

	switch layer {
	case LayerSurvive:
		return m.surviveLayer(view), nil
	case LayerStabilize:
		return m.stabilizeLayer(view), nil
	default:
		return m.provideLayer(view), nil
	}
}

// Update folds the exchange's responses into the local order caches and
// lazily purges done orders.
func (m *MarketMaker) Update(fb Feedback) {
	m.orderFilledThisTick = false

	for _, ov := range fb.Orders {
		if ov == nil {
			continue
		}
		if ov.Side == market.Buy {
			m.activeBids[ov.OrderID] = ov
		} else {
			m.activeAsks[ov.OrderID] = ov
		}
	}
	m.cleanupDoneOrders()
}

func (m *MarketMaker) determineLayer() Layer {
	ratio := m.inventoryRatio()
	if ratio < m.params.RiskLowerBound || ratio > m.params.RiskUpperBound {
		return LayerSurvive
	}
	if math.Abs(ratio-m.params.TargetInventoryFraction) > m.params.StabilizationTolerance {
		return LayerStabilize
	}
	return LayerProvide
}

// inventoryRatio is cash over total wealth: 0 = all shares, 1 = all cash.
// Without a known price it defaults to the target fraction.
func (m *MarketMaker) inventoryRatio() float64 {
	if m.lastKnownPrice == nil {
		return m.params.TargetInventoryFraction
	}
	total := m.account.Cash() + float64(m.account.Shares())**m.lastKnownPrice
	if total <= 0 {
		return m.params.TargetInventoryFraction
	}
	return m.account.Cash() / total
}

func (m *MarketMaker) surviveLayer(view View) []Intent {
	intents := m.cancelAllOrders()

	ratio := m.inventoryRatio()
	if ratio < m.params.RiskLowerBound {
		if intent := m.panicSell(view); intent != nil {
			intents = append(intents, *intent)
		}
	} else if ratio > m.params.RiskUpperBound {
		if intent := m.panicBuy(view); intent != nil {
			intents = append(intents, *intent)
		}
	}
	return intents
}

func (m *MarketMaker) panicSell(view View) *PlaceOrder {
	shares := m.account.Shares()
	if shares <= 0 {
		return nil
	}
	mid := m.estimatePrice(view)
	if mid == nil {
		return nil
	}
	price := math.Max(0.01, *mid-5*float64(m.params.SpreadSize))
	quantity := min(shares, m.params.OrderSize*3)

	m.lastMidPrice = mid
	return &PlaceOrder{
		IntentID: m.seq.Next(),
		Side:     market.Sell,
		Type:     market.Limit,
		Quantity: quantity,
		Price:    &price,
	}
}

func (m *MarketMaker) panicBuy(view View) *PlaceOrder {
	cash := m.account.Cash()
	if cash <= 0 {
		return nil
	}
	mid := m.estimatePrice(view)
	if mid == nil {
		return nil
	}
	price := *mid + 5*float64(m.params.SpreadSize)
	affordable := int(cash / (price * (1 + m.constants.FeeRate)))
	quantity := min(affordable, m.params.OrderSize*3)
	if quantity <= 0 {
		return nil
	}

	m.lastMidPrice = mid
	return &PlaceOrder{
		IntentID: m.seq.Next(),
		Side:     market.Buy,
		Type:     market.Limit,
		Quantity: quantity,
		Price:    &price,
	}
}

func (m *MarketMaker) stabilizeLayer(view View) []Intent {
	var intents []Intent

	ratio := m.inventoryRatio()
	mid := m.estimatePrice(view)
	if mid == nil {
		return intents
	}

	skew := -(ratio - m.params.TargetInventoryFraction) * float64(m.params.SkewFactor)
	bidPrice, askPrice := m.skewedPrices(*mid, skew)
	bidQty, askQty := m.skewedQuantities(ratio)

	if bidPrice >= askPrice {
		// Fee padding can cross the skewed quotes; recentre on mid and
		// drop the skew for this tick.
		spread := math.Max(1.0, float64(m.params.SpreadSize)/2.0)
		bidPrice = *mid - spread
		askPrice = *mid + spread
	}

	intents = append(intents, m.selectiveStabilizeCancel(ratio, bidPrice, askPrice)...)

	if !m.hasEquivalentWorkingOrder(market.Buy, bidPrice) && bidQty > 0 && bidPrice > 0 {
		price := bidPrice
		intents = append(intents, PlaceOrder{
			IntentID: m.seq.Next(),
			Side:     market.Buy,
			Type:     market.Limit,
			Quantity: bidQty,
			Price:    &price,
		})
	}
	if !m.hasEquivalentWorkingOrder(market.Sell, askPrice) && askQty > 0 && askPrice > 0 {
		price := askPrice
		intents = append(intents, PlaceOrder{
			IntentID: m.seq.Next(),
			Side:     market.Sell,
			Type:     market.Limit,
			Quantity: askQty,
			Price:    &price,
		})
	}

	m.lastMidPrice = mid
	return intents
}

// skewedPrices shifts the quote centre against the inventory imbalance,
// clamping the shift to half the configured spread, then pads both sides
// outward by the fee per share.
func (m *MarketMaker) skewedPrices(mid, skew float64) (float64, float64) {
	maxShift := float64(m.params.SpreadSize) / 2.0

	var direction float64
	if skew > 0 {
		direction = 1
	} else if skew < 0 {
		direction = -1
	}
	shift := direction * math.Min(math.Abs(skew/100.0*mid), maxShift)

	shiftedMid := mid + shift
	halfSpread := float64(m.params.SpreadSize) / 2.0
	feePerShare := mid * m.constants.FeeRate

	bid := shiftedMid - halfSpread - feePerShare
	ask := shiftedMid + halfSpread + feePerShare
	return math.Max(0.01, bid), math.Max(0.01, ask)
}

// skewedQuantities sizes the side that reduces the imbalance with a
// supportive multiplier and the other side with a risk multiplier, both
// scaled by the deviation magnitude.
func (m *MarketMaker) skewedQuantities(ratio float64) (int, int) {
	base := float64(m.params.OrderSize)
	deviation := math.Abs(ratio - m.params.TargetInventoryFraction)

	supportive := math.Min(2.0+deviation*2, 3.0)
	risk := math.Max(0.5-deviation, 0.25)

	var bidQty, askQty int
	if ratio > m.params.TargetInventoryFraction {
		// Too much cash: the bid rebalances.
		bidQty = int(base * supportive)
		askQty = int(base * risk)
	} else {
		// Too many shares: the ask rebalances.
		bidQty = int(base * risk)
		askQty = int(base * supportive)
	}
	return m.validateBidQuantity(bidQty), m.validateAskQuantity(askQty)
}

// selectiveStabilizeCancel cancels stale orders only on the risk side.
// Supportive-side liquidity is never removed while rebalancing.
func (m *MarketMaker) selectiveStabilizeCancel(ratio, targetBid, targetAsk float64) []Intent {
	var intents []Intent

	if ratio < m.params.TargetInventoryFraction {
		for _, orderID := range sortedOrderIDs(m.activeBids) {
			if ov := m.activeBids[orderID]; ov.Lifecycle == market.Working && !isQuoteEquivalent(ov, targetBid, market.Buy) {
				intents = append(intents, CancelOrder{IntentID: m.seq.Next(), OrderID: orderID})
			}
		}
	} else {
		for _, orderID := range sortedOrderIDs(m.activeAsks) {
			if ov := m.activeAsks[orderID]; ov.Lifecycle == market.Working && !isQuoteEquivalent(ov, targetAsk, market.Sell) {
				intents = append(intents, CancelOrder{IntentID: m.seq.Next(), OrderID: orderID})
			}
		}
	}
	return intents
}

func (m *MarketMaker) provideLayer(view View) []Intent {
	var intents []Intent

	mid := m.estimatePrice(view)
	if mid == nil {
		return intents
	}

	bidPrice, askPrice := m.providePrices(*mid)
	if bidPrice >= askPrice {
		// Never quote crossed with ourselves.
		return intents
	}

	if !m.shouldRefreshQuotes(mid) {
		return intents
	}

	intents = append(intents, m.cancelNonEquivalentOrders(bidPrice, askPrice)...)

	if !m.hasEquivalentWorkingOrder(market.Buy, bidPrice) {
		if qty := m.validateBidQuantity(m.params.OrderSize); qty > 0 {
			price := bidPrice
			intents = append(intents, PlaceOrder{
				IntentID: m.seq.Next(),
				Side:     market.Buy,
				Type:     market.Limit,
				Quantity: qty,
				Price:    &price,
			})
		}
	}
	if !m.hasEquivalentWorkingOrder(market.Sell, askPrice) {
		if qty := m.validateAskQuantity(m.params.OrderSize); qty > 0 {
			price := askPrice
			intents = append(intents, PlaceOrder{
				IntentID: m.seq.Next(),
				Side:     market.Sell,
				Type:     market.Limit,
				Quantity: qty,
				Price:    &price,
			})
		}
	}

	if len(intents) > 0 {
		tick := m.currentTick
		m.lastQuoteTick = &tick
		m.lastMidPrice = mid
	}
	return intents
}

// providePrices symmetrically pads half the spread plus half the round-trip
// fee on each side of mid.
func (m *MarketMaker) providePrices(mid float64) (float64, float64) {
	halfSpread := float64(m.params.SpreadSize) / 2.0
	roundTripFee := 2 * m.constants.FeeRate * mid

	bid := mid - halfSpread - roundTripFee/2.0
	ask := mid + halfSpread + roundTripFee/2.0
	return math.Max(0.01, bid), math.Max(0.01, ask)
}

// shouldRefreshQuotes holds quotes until the wait time elapses, then
// requotes on the first quote, a fill this tick, a layer change, price
// drift beyond half a spread, or a missing side.
func (m *MarketMaker) shouldRefreshQuotes(currentMid *float64) bool {
	if m.lastQuoteTick != nil && m.currentTick-*m.lastQuoteTick < m.params.WaitTime {
		return false
	}
	if m.lastQuoteTick == nil {
		return true
	}
	if m.orderFilledThisTick {
		return true
	}
	if m.layerChanged {
		return true
	}

	if currentMid != nil && m.lastMidPrice != nil && *m.lastMidPrice > 0 {
		drift := math.Abs(*currentMid-*m.lastMidPrice) / *m.lastMidPrice
		tolerance := float64(m.params.SpreadSize) / (2 * *m.lastMidPrice)
		if drift > tolerance {
			return true
		}
	}

	if !hasWorkingOrder(m.activeBids) || !hasWorkingOrder(m.activeAsks) {
		return true
	}
	return false
}

func (m *MarketMaker) cancelAllOrders() []Intent {
	var intents []Intent
	for _, orderID := range sortedOrderIDs(m.activeBids) {
		if m.activeBids[orderID].Lifecycle == market.Working {
			intents = append(intents, CancelOrder{IntentID: m.seq.Next(), OrderID: orderID})
		}
	}
	for _, orderID := range sortedOrderIDs(m.activeAsks) {
		if m.activeAsks[orderID].Lifecycle == market.Working {
			intents = append(intents, CancelOrder{IntentID: m.seq.Next(), OrderID: orderID})
		}
	}
	return intents
}

func (m *MarketMaker) cancelNonEquivalentOrders(bidPrice, askPrice float64) []Intent {
	var intents []Intent
	for _, orderID := range sortedOrderIDs(m.activeBids) {
		if ov := m.activeBids[orderID]; ov.Lifecycle == market.Working && !isQuoteEquivalent(ov, bidPrice, market.Buy) {
			intents = append(intents, CancelOrder{IntentID: m.seq.Next(), OrderID: orderID})
		}
	}
	for _, orderID := range sortedOrderIDs(m.activeAsks) {
		if ov := m.activeAsks[orderID]; ov.Lifecycle == market.Working && !isQuoteEquivalent(ov, askPrice, market.Sell) {
			intents = append(intents, CancelOrder{IntentID: m.seq.Next(), OrderID: orderID})
		}
	}
	return intents
}

// sortedOrderIDs keeps cancel emission order stable across runs.
func sortedOrderIDs(orders map[int]*market.OrderView) []int {
	ids := make([]int, 0, len(orders))
	for id := range orders {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m *MarketMaker) hasEquivalentWorkingOrder(side market.Side, targetPrice float64) bool {
	orders := m.activeBids
	if side == market.Sell {
		orders = m.activeAsks
	}
	for _, ov := range orders {
		if isQuoteEquivalent(ov, targetPrice, side) {
			return true
		}
	}
	return false
}

func isQuoteEquivalent(ov *market.OrderView, targetPrice float64, side market.Side) bool {
	if ov.Lifecycle != market.Working || ov.Side != side {
		return false
	}
	return ov.Price != nil && math.Abs(*ov.Price-targetPrice) <= quoteEquivalenceTolerance
}

func hasWorkingOrder(orders map[int]*market.OrderView) bool {
	for _, ov := range orders {
		if ov.Lifecycle == market.Working {
			return true
		}
	}
	return false
}

// estimatePrice prefers mid, then micro, then last traded, then the last
// price this agent ever saw, then the centre of the fair-value interval.
func (m *MarketMaker) estimatePrice(view View) *float64 {
	md := view.Market

	if md.MidPrice != nil {
		m.lastKnownPrice = md.MidPrice
		return md.MidPrice
	}
	if md.MicroPrice != nil {
		m.lastKnownPrice = md.MicroPrice
		return md.MicroPrice
	}
	if md.LastTraded != nil {
		m.lastKnownPrice = md.LastTraded
		return md.LastTraded
	}
	if m.lastKnownPrice != nil {
		return m.lastKnownPrice
	}

	centre := (view.Economy.TVLow + view.Economy.TVHigh) / 2.0
	return &centre
}

func (m *MarketMaker) validateBidQuantity(quantity int) int {
	if quantity <= 0 || m.account.Cash() <= 0 || m.lastKnownPrice == nil {
		return 0
	}
	costPerShare := *m.lastKnownPrice * (1 + m.constants.FeeRate)
	return min(quantity, int(m.account.Cash()/costPerShare))
}

func (m *MarketMaker) validateAskQuantity(quantity int) int {
	if quantity <= 0 {
		return 0
	}
	return min(quantity, m.account.Shares())
}

func (m *MarketMaker) cleanupDoneOrders() {
	for orderID, ov := range m.activeBids {
		if ov.Lifecycle == market.Done {
			if ov.EndReason == market.EndFilled {
				m.orderFilledThisTick = true
			}
			delete(m.activeBids, orderID)
		}
	}
	for orderID, ov := range m.activeAsks {
		if ov.Lifecycle == market.Done {
			if ov.EndReason == market.EndFilled {
				m.orderFilledThisTick = true
			}
			delete(m.activeAsks, orderID)
		}
	}
}

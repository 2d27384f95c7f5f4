package agent

import (
	"math"
	"testing"

	"masmarket-go/internal/market"
)

func defaultMTParams() MomentumTraderParams {
	return MomentumTraderParams{
		MomentumWindow:      10,
		EntryThreshold:      0.005,
		ExitThreshold:       0.001,
		Aggressiveness:      0.5,
		MaxExposureFraction: 0.5,
		DirectionalBias:     0,
		LiquidityBaseline:   100,
	}
}

func tradedView(agentID int, last float64) View {
	return View{
		AgentID: agentID,
		Market:  &market.Snapshot{LastTraded: &last},
	}
}

func TestMomentumSignalSign(t *testing.T) {
	account := newTestAccount(t, 30000, 1000, 0)
	mt := NewMomentumTrader(30000, account, Constants{MicroTicksPerMacro: 10}, defaultMTParams())

	mt.priceHistory = []float64{100, 101, 102}
	if signal := mt.momentumSignal(); signal <= 0 {
		t.Fatalf("rising prices must yield positive momentum, got %.6f", signal)
	}

	mt.priceHistory = []float64{102, 101, 100}
	if signal := mt.momentumSignal(); signal >= 0 {
		t.Fatalf("falling prices must yield negative momentum, got %.6f", signal)
	}
}

func TestMomentumSignalNeedsTwoSamples(t *testing.T) {
	account := newTestAccount(t, 30000, 1000, 0)
	mt := NewMomentumTrader(30000, account, Constants{MicroTicksPerMacro: 10}, defaultMTParams())

	if signal := mt.momentumSignal(); signal != 0.0 {
		t.Fatalf("empty history must yield 0.0, got %.6f", signal)
	}
	mt.priceHistory = []float64{100}
	if signal := mt.momentumSignal(); signal != 0.0 {
		t.Fatalf("single sample must yield 0.0, got %.6f", signal)
	}
}

func TestMomentumRecencyWeighting(t *testing.T) {
	account := newTestAccount(t, 30000, 1000, 0)
	mt := NewMomentumTrader(30000, account, Constants{MicroTicksPerMacro: 10}, defaultMTParams())

	// A drop followed by an equal-magnitude rise nets positive because the
	// later return carries more weight.
	mt.priceHistory = []float64{100, 99, 100}
	if signal := mt.momentumSignal(); signal <= 0 {
		t.Fatalf("recency weighting should favor the later rise, got %.6f", signal)
	}
}

func TestMomentumWindowEvictsOldest(t *testing.T) {
	params := defaultMTParams()
	params.MomentumWindow = 3
	account := newTestAccount(t, 30000, 1000, 0)
	mt := NewMomentumTrader(30000, account, Constants{MicroTicksPerMacro: 10}, params)

	for _, price := range []float64{1, 2, 3, 4} {
		mt.observePrice(tradedView(30000, price))
	}
	if len(mt.priceHistory) != 3 {
		t.Fatalf("expected window of 3, got %d", len(mt.priceHistory))
	}
	if mt.priceHistory[0] != 2 {
		t.Fatalf("expected oldest sample evicted, history starts at %.0f", mt.priceHistory[0])
	}
}

func TestMomentumEnterLongBuysShortfall(t *testing.T) {
	params := defaultMTParams()
	params.EntryThreshold = 0.001
	account := newTestAccount(t, 30000, 10000, 0)
	mt := NewMomentumTrader(30000, account, Constants{MicroTicksPerMacro: 10}, params)

	var intents []Intent
	var err error
	for _, price := range []float64{100, 101, 102} {
		intents, err = mt.Decide(tradedView(30000, price))
		if err != nil {
			t.Fatalf("Decide returned error: %v", err)
		}
	}

	if len(intents) != 1 {
		t.Fatalf("expected one market buy, got %d intents", len(intents))
	}
	po, ok := intents[0].(PlaceOrder)
	if !ok || po.Side != market.Buy || po.Type != market.Market {
		t.Fatalf("expected market buy, got %+v", intents[0])
	}
	if po.Price != nil {
		t.Fatalf("market orders carry no price")
	}
	// No book: amplifier 1.0, target = 10000*0.5*0.5/102 shares.
	targetValue := 10000 * 0.5 * 0.5
	want := int(targetValue / 102)
	if po.Quantity != want {
		t.Fatalf("expected quantity %d, got %d", want, po.Quantity)
	}
}

func TestMomentumLiquidityAmplifier(t *testing.T) {
	account := newTestAccount(t, 30000, 1000, 0)
	mt := NewMomentumTrader(30000, account, Constants{MicroTicksPerMacro: 10}, defaultMTParams())

	thin := View{AgentID: 30000, Market: &market.Snapshot{
		BestBid: &market.Quote{Price: 99, Size: 10, Orders: 1},
		BestAsk: &market.Quote{Price: 101, Size: 10, Orders: 1},
	}}
	// 20/100 clamps to 0.5: thin books double the target.
	if amp := mt.liquidityAmplifier(thin); math.Abs(amp-2.0) > 1e-9 {
		t.Fatalf("expected amplifier 2.0 on thin book, got %.4f", amp)
	}

	deep := View{AgentID: 30000, Market: &market.Snapshot{
		BestBid: &market.Quote{Price: 99, Size: 400, Orders: 4},
		BestAsk: &market.Quote{Price: 101, Size: 400, Orders: 4},
	}}
	// 800/100 clamps to 2.0: deep books halve it.
	if amp := mt.liquidityAmplifier(deep); math.Abs(amp-0.5) > 1e-9 {
		t.Fatalf("expected amplifier 0.5 on deep book, got %.4f", amp)
	}

	empty := View{AgentID: 30000, Market: &market.Snapshot{}}
	if amp := mt.liquidityAmplifier(empty); amp != 1.0 {
		t.Fatalf("expected neutral amplifier with no book, got %.4f", amp)
	}
}

func TestMomentumExitLiquidatesPosition(t *testing.T) {
	account := newTestAccount(t, 30000, 0, 80)
	mt := NewMomentumTrader(30000, account, Constants{MicroTicksPerMacro: 10}, defaultMTParams())

	// Flat prices: |signal| below exit threshold forces EXIT.
	var intents []Intent
	var err error
	for _, price := range []float64{100, 100, 100} {
		intents, err = mt.Decide(tradedView(30000, price))
		if err != nil {
			t.Fatalf("Decide returned error: %v", err)
		}
	}
	if len(intents) != 1 {
		t.Fatalf("expected liquidation order, got %d intents", len(intents))
	}
	po := intents[0].(PlaceOrder)
	if po.Side != market.Sell || po.Type != market.Market || po.Quantity != 80 {
		t.Fatalf("expected full market sell of 80, got %+v", po)
	}
}

func TestMomentumShortNeverExceedsHoldings(t *testing.T) {
	params := defaultMTParams()
	params.EntryThreshold = 0.001
	params.Aggressiveness = 1.0
	account := newTestAccount(t, 30000, 0, 10)
	mt := NewMomentumTrader(30000, account, Constants{MicroTicksPerMacro: 10}, params)

	thinBook := &market.Snapshot{
		BestBid: &market.Quote{Price: 99, Size: 5, Orders: 1},
		BestAsk: &market.Quote{Price: 101, Size: 5, Orders: 1},
	}
	var intents []Intent
	var err error
	for _, price := range []float64{102, 101, 100} {
		last := price
		view := View{AgentID: 30000, Market: &market.Snapshot{
			LastTraded: &last,
			BestBid:    thinBook.BestBid,
			BestAsk:    thinBook.BestAsk,
		}}
		intents, err = mt.Decide(view)
		if err != nil {
			t.Fatalf("Decide returned error: %v", err)
		}
	}
	if len(intents) != 1 {
		t.Fatalf("expected short entry, got %d intents", len(intents))
	}
	po := intents[0].(PlaceOrder)
	if po.Side != market.Sell {
		t.Fatalf("expected sell, got %s", po.Side)
	}
	// Amplifier 2.0 on the thin book would ask for 20; holdings cap at 10.
	if po.Quantity > 10 {
		t.Fatalf("short of %d exceeds held 10", po.Quantity)
	}
}

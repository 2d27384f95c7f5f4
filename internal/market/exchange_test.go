package market

import (
	"math"
	"testing"
)

func newTestExchange(t *testing.T, feePPM int) *Exchange {
	t.Helper()
	return NewExchange(Config{
		Seed:            1,
		FeeRatePPM:      feePPM,
		InitialPrice:    100,
		TVWidth:         10,
		TVDrift:         0,
		DepositTerms:    []int{5, 20},
		DepositBaseRate: 0.05,
	}, nil)
}

func fptr(v float64) *float64 { return &v }

func TestRegisterAgentRejectsDuplicatesAndNegatives(t *testing.T) {
	ex := newTestExchange(t, 0)
	if ex.RegisterAgent(1, 1000, 10) == nil {
		t.Fatalf("first registration must succeed")
	}
	if ex.RegisterAgent(1, 1000, 10) != nil {
		t.Fatalf("duplicate id must be rejected")
	}
	if ex.RegisterAgent(2, -1, 10) != nil {
		t.Fatalf("negative cash must be rejected")
	}
	if ex.RegisterAgent(3, 1000, -1) != nil {
		t.Fatalf("negative shares must be rejected")
	}
}

func TestLimitCrossSettlesWithFees(t *testing.T) {
	ex := newTestExchange(t, 10000) // 1% per side
	seller := ex.RegisterAgent(1, 0, 50)
	buyer := ex.RegisterAgent(2, 10000, 0)

	ask := ex.CreateOrder(1, Limit, Sell, 50, fptr(100))
	if ask.Lifecycle != Working {
		t.Fatalf("resting ask should be working, got %s/%s", ask.Lifecycle, ask.EndReason)
	}

	bid := ex.CreateOrder(2, Limit, Buy, 20, fptr(101))
	if bid.Lifecycle != Done || bid.EndReason != EndFilled {
		t.Fatalf("crossing bid should fill, got %s/%s", bid.Lifecycle, bid.EndReason)
	}
	if ask.Remaining != 30 {
		t.Fatalf("expected 30 remaining on the ask, got %d", ask.Remaining)
	}

	// Trade prints at the resting price, 100.
	if buyer.Shares() != 20 || seller.Shares() != 30 {
		t.Fatalf("shares not transferred: buyer %d seller %d", buyer.Shares(), seller.Shares())
	}
	wantBuyerCash := 10000 - 20*100*1.01
	if math.Abs(buyer.Cash()-wantBuyerCash) > 1e-9 {
		t.Fatalf("buyer cash %.2f, want %.2f", buyer.Cash(), wantBuyerCash)
	}
	wantSellerCash := 20 * 100 * 0.99
	if math.Abs(seller.Cash()-wantSellerCash) > 1e-9 {
		t.Fatalf("seller cash %.2f, want %.2f", seller.Cash(), wantSellerCash)
	}

	snap := ex.Snapshot()
	if snap.LastTraded == nil || *snap.LastTraded != 100 {
		t.Fatalf("last traded should be 100")
	}
}

func TestPriceTimePriority(t *testing.T) {
	ex := newTestExchange(t, 0)
	ex.RegisterAgent(1, 0, 100)
	ex.RegisterAgent(2, 0, 100)
	ex.RegisterAgent(3, 100000, 0)

	first := ex.CreateOrder(1, Limit, Sell, 10, fptr(100))
	second := ex.CreateOrder(2, Limit, Sell, 10, fptr(100))
	better := ex.CreateOrder(2, Limit, Sell, 10, fptr(99))

	ex.CreateOrder(3, Limit, Buy, 15, fptr(100))

	if better.Lifecycle != Done || better.EndReason != EndFilled {
		t.Fatalf("cheapest ask must trade first")
	}
	if first.Remaining != 5 {
		t.Fatalf("earlier ask at 100 must trade before later one, remaining %d", first.Remaining)
	}
	if second.Remaining != 10 {
		t.Fatalf("later ask at 100 must be untouched, remaining %d", second.Remaining)
	}
}

func TestMarketOrderRemainderCancelled(t *testing.T) {
	ex := newTestExchange(t, 0)
	ex.RegisterAgent(1, 0, 10)
	ex.RegisterAgent(2, 100000, 0)

	ex.CreateOrder(1, Limit, Sell, 10, fptr(100))
	order := ex.CreateOrder(2, Market, Buy, 25, nil)

	if order.Lifecycle != Done || order.EndReason != EndFilled {
		t.Fatalf("partially filled market order ends filled, got %s/%s", order.Lifecycle, order.EndReason)
	}
	if order.Remaining != 15 {
		t.Fatalf("expected 15 unfilled, got %d", order.Remaining)
	}
	if snap := ex.Snapshot(); snap.BestBid != nil {
		t.Fatalf("market remainder must not rest on the book")
	}

	// No liquidity at all: the market order ends cancelled.
	empty := ex.CreateOrder(2, Market, Buy, 5, nil)
	if empty.Lifecycle != Done || empty.EndReason != EndCancelled {
		t.Fatalf("unfillable market order ends cancelled, got %s/%s", empty.Lifecycle, empty.EndReason)
	}
}

func TestRejectedOrders(t *testing.T) {
	ex := newTestExchange(t, 0)
	ex.RegisterAgent(1, 1000, 10)

	cases := []*OrderView{
		ex.CreateOrder(1, Limit, Buy, 10, nil),      // limit without price
		ex.CreateOrder(1, Limit, Buy, 10, fptr(-5)), // non-positive price
		ex.CreateOrder(1, Limit, Buy, 0, fptr(100)), // zero quantity
		ex.CreateOrder(99, Market, Buy, 10, nil),    // unknown agent
	}
	for i, order := range cases {
		if order.Lifecycle != Done || order.EndReason != EndRejected {
			t.Fatalf("case %d: expected rejection, got %s/%s", i, order.Lifecycle, order.EndReason)
		}
	}
}

func TestCancelOrder(t *testing.T) {
	ex := newTestExchange(t, 0)
	ex.RegisterAgent(1, 0, 10)
	ex.RegisterAgent(2, 1000, 0)

	order := ex.CreateOrder(1, Limit, Sell, 10, fptr(100))

	ex.CancelOrder(2, order.OrderID) // not the owner
	if order.Lifecycle != Working {
		t.Fatalf("foreign cancel must be ignored")
	}

	ex.CancelOrder(1, order.OrderID)
	if order.Lifecycle != Done || order.EndReason != EndCancelled {
		t.Fatalf("owner cancel must land, got %s/%s", order.Lifecycle, order.EndReason)
	}
	if snap := ex.Snapshot(); snap.BestAsk != nil {
		t.Fatalf("cancelled order must leave the book")
	}

	ex.CancelOrder(1, order.OrderID) // second cancel is a no-op
	if order.EndReason != EndCancelled {
		t.Fatalf("repeat cancel must not change the end reason")
	}
}

func TestSnapshotMidAndMicroPrice(t *testing.T) {
	ex := newTestExchange(t, 0)
	ex.RegisterAgent(1, 100000, 100)

	ex.CreateOrder(1, Limit, Buy, 30, fptr(99))
	ex.CreateOrder(1, Limit, Sell, 10, fptr(101))

	snap := ex.Snapshot()
	if snap.BestBid == nil || snap.BestAsk == nil {
		t.Fatalf("both sides quoted, book must show them")
	}
	if snap.MidPrice == nil || *snap.MidPrice != 100 {
		t.Fatalf("mid should be 100")
	}
	// Size-weighted toward the thin side: (99*10 + 101*30) / 40.
	wantMicro := (99.0*10 + 101.0*30) / 40
	if snap.MicroPrice == nil || math.Abs(*snap.MicroPrice-wantMicro) > 1e-9 {
		t.Fatalf("micro price %.4f, want %.4f", *snap.MicroPrice, wantMicro)
	}
}

func TestTopOfBookAggregatesLevel(t *testing.T) {
	ex := newTestExchange(t, 0)
	ex.RegisterAgent(1, 0, 100)

	ex.CreateOrder(1, Limit, Sell, 10, fptr(100))
	ex.CreateOrder(1, Limit, Sell, 15, fptr(100))
	ex.CreateOrder(1, Limit, Sell, 20, fptr(102))

	snap := ex.Snapshot()
	if snap.BestAsk.Price != 100 || snap.BestAsk.Size != 25 || snap.BestAsk.Orders != 2 {
		t.Fatalf("best ask should aggregate the 100 level, got %+v", snap.BestAsk)
	}
}

func TestDepositLifecycle(t *testing.T) {
	ex := newTestExchange(t, 0)
	acct := ex.RegisterAgent(1, 1000, 0)

	if ex.CreateDeposit(1, 7, 100) != nil {
		t.Fatalf("term 7 is not on offer")
	}
	if ex.CreateDeposit(1, 5, 2000) != nil {
		t.Fatalf("deposit above cash must be refused")
	}

	ex.SetClock(3, 0)
	dep := ex.CreateDeposit(1, 5, 400)
	if dep == nil {
		t.Fatalf("valid deposit refused")
	}
	if dep.MaturityMacroTick != 8 {
		t.Fatalf("maturity should be 8, got %d", dep.MaturityMacroTick)
	}
	if acct.Cash() != 600 {
		t.Fatalf("cash not locked: %.2f", acct.Cash())
	}

	ex.SetClock(7, 0)
	ex.ExpireSession()
	if acct.Cash() != 600 {
		t.Fatalf("deposit paid out before maturity")
	}

	ex.SetClock(8, 0)
	ex.ExpireSession()
	want := 600 + 400*(1+dep.Rate)
	if math.Abs(acct.Cash()-want) > 1e-9 {
		t.Fatalf("payout cash %.4f, want %.4f", acct.Cash(), want)
	}
}

func TestEconomyInsightIsCopied(t *testing.T) {
	ex := newTestExchange(t, 0)

	insight := ex.EconomyInsight()
	if insight.TVHigh-insight.TVLow != 10 {
		t.Fatalf("insight band should span the configured width")
	}
	insight.DepositRates[5] = 99
	if ex.EconomyInsight().DepositRates[5] == 99 {
		t.Fatalf("returned insight must not alias internal state")
	}
}

func TestRestingOrderCancelledWhenSellerOutOfShares(t *testing.T) {
	ex := newTestExchange(t, 0)
	ex.RegisterAgent(1, 0, 10)
	ex.RegisterAgent(2, 100000, 0)

	stale := ex.CreateOrder(1, Limit, Sell, 10, fptr(100))

	// Drain the seller through a direct fill.
	ex.CreateOrder(2, Limit, Buy, 10, fptr(100))
	if stale.Lifecycle != Done || stale.EndReason != EndFilled {
		t.Fatalf("covered ask should fill, got %s/%s", stale.Lifecycle, stale.EndReason)
	}

	// Now a second resting ask from the emptied seller gets swept away when
	// a buyer arrives.
	uncovered := ex.CreateOrder(1, Limit, Sell, 5, fptr(100))
	ex.CreateOrder(2, Limit, Buy, 5, fptr(100))
	if uncovered.Lifecycle != Done || uncovered.EndReason != EndCancelled {
		t.Fatalf("uncovered ask should be cancelled, got %s/%s", uncovered.Lifecycle, uncovered.EndReason)
	}
}

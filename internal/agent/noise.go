package agent

import (
	"math/rand"

	"masmarket-go/internal/market"
)

// NoiseTraderParams are the sampled knobs for one noise trader.
type NoiseTraderParams struct {
	PTrade           float64
	PBuy             float64
	PMarketOrder     float64
	MinQuantity      int
	MaxQuantity      int
	PriceOffsetTicks int
}

// NoiseTrader flips weighted coins: with probability PTrade it emits one
// order on a random side, market or limit, sized uniformly. It carries its
// own seeded generator so the rest of the population stays reproducible.
type NoiseTrader struct {
	agentID   int
	account   *market.Account
	constants Constants
	params    NoiseTraderParams
	rng       *rand.Rand

	lastKnownPrice *float64

	seq intentSeq
}

// NewNoiseTrader builds a noise trader with a dedicated generator.
func NewNoiseTrader(agentID int, account *market.Account, constants Constants, params NoiseTraderParams, rng *rand.Rand) *NoiseTrader {
	return &NoiseTrader{
		agentID:   agentID,
		account:   account,
		constants: constants,
		params:    params,
		rng:       rng,
	}
}

// ID returns the agent identifier.
func (n *NoiseTrader) ID() int { return n.agentID }

// Decide rolls the trade coin and, on success, emits one random order.
func (n *NoiseTrader) Decide(view View) ([]Intent, error) {
	if err := checkView(n.agentID, view, false); err != nil {
		return nil, err
	}

	price := n.referencePrice(view)
	if price == nil {
		return nil, nil
	}

	if n.rng.Float64() >= n.params.PTrade {
		return nil, nil
	}

	side := market.Sell
	if n.rng.Float64() < n.params.PBuy {
		side = market.Buy
	}

	span := n.params.MaxQuantity - n.params.MinQuantity
	quantity := n.params.MinQuantity
	if span > 0 {
		quantity += n.rng.Intn(span + 1)
	}

	if side == market.Buy {
		costPerShare := *price * (1 + n.constants.FeeRate)
		affordable := int(n.account.Cash() / costPerShare)
		quantity = min(quantity, affordable)
	} else {
		quantity = min(quantity, n.account.Shares())
	}
	if quantity <= 0 {
		return nil, nil
	}

	if n.rng.Float64() < n.params.PMarketOrder {
		return []Intent{PlaceOrder{
			IntentID: n.seq.Next(),
			Side:     side,
			Type:     market.Market,
			Quantity: quantity,
		}}, nil
	}

	// Limit orders rest a few ticks away from the reference, on the
	// passive side.
	offset := float64(n.rng.Intn(n.params.PriceOffsetTicks + 1))
	limitPrice := *price
	if side == market.Buy {
		limitPrice -= offset
	} else {
		limitPrice += offset
	}
	if limitPrice <= 0 {
		return nil, nil
	}

	return []Intent{PlaceOrder{
		IntentID: n.seq.Next(),
		Side:     side,
		Type:     market.Limit,
		Quantity: quantity,
		Price:    &limitPrice,
	}}, nil
}

// Update is a no-op beyond keeping the contract: the noise trader carries
// no order bookkeeping between ticks.
func (n *NoiseTrader) Update(fb Feedback) {
	_ = fb
}

func (n *NoiseTrader) referencePrice(view View) *float64 {
	md := view.Market
	if md.LastTraded != nil {
		n.lastKnownPrice = md.LastTraded
		return md.LastTraded
	}
	if md.MidPrice != nil {
		n.lastKnownPrice = md.MidPrice
		return md.MidPrice
	}
	return n.lastKnownPrice
}

// Package sim hosts the coordination loop: population construction and the
// macro/micro tick engine that drives agents against the market.
package sim

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"masmarket-go/internal/agent"
	"masmarket-go/internal/config"
	"masmarket-go/internal/market"
)

// Class-scoped identifier blocks keep agent ids stable and collision-free
// across types.
const (
	marketMakerIDBase    = 10000
	valueInvestorIDBase  = 20000
	momentumTraderIDBase = 30000
	noiseTraderIDBase    = 40000
)

// Registrar opens an account with the market collaborator. A nil account
// view signals failure and aborts population construction.
type Registrar func(agentID int, cash float64, shares int) *market.Account

// Manager builds the agent population from configuration and produces the
// per-tick scheduling order from one population-wide seeded generator.
type Manager struct {
	rng *rand.Rand
	log zerolog.Logger

	agents          map[int]agent.Agent
	order           []int // build order, the stable base for shuffles
	marketMakers    map[int]*agent.MarketMaker
	valueInvestors  map[int]*agent.ValueInvestor
	momentumTraders map[int]*agent.MomentumTrader
	noiseTraders    map[int]*agent.NoiseTrader
}

// NewManager samples every agent's parameters, registers accounts through
// the registrar, and wires up the population.
func NewManager(cfg *config.Config, register Registrar, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		rng:             rand.New(rand.NewSource(cfg.Simulation.Seed)),
		log:             log,
		agents:          make(map[int]agent.Agent),
		marketMakers:    make(map[int]*agent.MarketMaker),
		valueInvestors:  make(map[int]*agent.ValueInvestor),
		momentumTraders: make(map[int]*agent.MomentumTrader),
		noiseTraders:    make(map[int]*agent.NoiseTrader),
	}

	constants := agent.Constants{
		MicroTicksPerMacro: cfg.Simulation.MicroTicksPerMacro,
		FeeRate:            float64(cfg.Market.FeeRatePPM) / 1_000_000.0,
	}

	if err := m.buildMarketMakers(cfg, register, constants); err != nil {
		return nil, err
	}
	if err := m.buildValueInvestors(cfg, register, constants); err != nil {
		return nil, err
	}
	if err := m.buildMomentumTraders(cfg, register, constants); err != nil {
		return nil, err
	}
	if err := m.buildNoiseTraders(cfg, register, constants); err != nil {
		return nil, err
	}

	log.Info().
		Int("market_makers", len(m.marketMakers)).
		Int("value_investors", len(m.valueInvestors)).
		Int("momentum_traders", len(m.momentumTraders)).
		Int("noise_traders", len(m.noiseTraders)).
		Int("total", len(m.agents)).
		Msg("population initialized")
	return m, nil
}

// Agents returns the number of agents in the population.
func (m *Manager) Agents() int { return len(m.agents) }

// MacroTickAgents yields every agent in a fresh shuffled order.
func (m *Manager) MacroTickAgents() []agent.Agent {
	return m.shuffled(m.order)
}

// MicroTickAgents yields a shuffled order excluding value investors, which
// act only on macro ticks.
func (m *Manager) MicroTickAgents() []agent.Agent {
	candidates := make([]int, 0, len(m.order))
	for _, id := range m.order {
		if _, isVI := m.valueInvestors[id]; !isVI {
			candidates = append(candidates, id)
		}
	}
	return m.shuffled(candidates)
}

func (m *Manager) shuffled(ids []int) []agent.Agent {
	picked := make([]agent.Agent, len(ids))
	for i, id := range ids {
		picked[i] = m.agents[id]
	}
	m.rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked
}

func (m *Manager) add(a agent.Agent) {
	m.agents[a.ID()] = a
	m.order = append(m.order, a.ID())
}

func (m *Manager) register(register Registrar, agentID int, endowment config.Endowment) (*market.Account, error) {
	cash, err := endowment.Cash.Sample(m.rng)
	if err != nil {
		return nil, fmt.Errorf("sample cash endowment: %w", err)
	}
	shares, err := endowment.Shares.Sample(m.rng)
	if err != nil {
		return nil, fmt.Errorf("sample shares endowment: %w", err)
	}
	account := register(agentID, cash, int(shares))
	if account == nil {
		return nil, fmt.Errorf("failed to register agent %d", agentID)
	}
	return account, nil
}

// sampleParameters draws every parameter of a group in sorted key order so
// a fixed seed always reproduces the same population.
func (m *Manager) sampleParameters(specs map[string]config.Dist) (map[string]float64, error) {
	keys := make([]string, 0, len(specs))
	for key := range specs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	samples := make(map[string]float64, len(specs))
	for _, key := range keys {
		value, err := specs[key].Sample(m.rng)
		if err != nil {
			return nil, fmt.Errorf("sample parameter %q: %w", key, err)
		}
		samples[key] = value
	}
	return samples, nil
}

func param(samples map[string]float64, name string) (float64, error) {
	value, ok := samples[name]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", name)
	}
	return value, nil
}

func (m *Manager) buildMarketMakers(cfg *config.Config, register Registrar, constants agent.Constants) error {
	group := cfg.Agents.MarketMaker
	for i := 0; i < group.Count; i++ {
		agentID := marketMakerIDBase + i

		account, err := m.register(register, agentID, cfg.Endowment.MarketMaker)
		if err != nil {
			return err
		}
		samples, err := m.sampleParameters(group.Parameters)
		if err != nil {
			return fmt.Errorf("market maker %d: %w", agentID, err)
		}

		params := agent.MarketMakerParams{}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"target_inventory_fraction", &params.TargetInventoryFraction},
			{"risk_lower_bound", &params.RiskLowerBound},
			{"risk_upper_bound", &params.RiskUpperBound},
			{"stabilization_tolerance", &params.StabilizationTolerance},
		}
		for _, f := range fields {
			if *f.dst, err = param(samples, f.name); err != nil {
				return fmt.Errorf("market maker %d: %w", agentID, err)
			}
		}
		ints := []struct {
			name string
			dst  *int
		}{
			{"spread_size", &params.SpreadSize},
			{"order_size", &params.OrderSize},
			{"wait_time", &params.WaitTime},
			{"skew_factor", &params.SkewFactor},
		}
		for _, f := range ints {
			value, err := param(samples, f.name)
			if err != nil {
				return fmt.Errorf("market maker %d: %w", agentID, err)
			}
			*f.dst = int(value)
		}

		mm := agent.NewMarketMaker(agentID, account, constants, params)
		m.marketMakers[agentID] = mm
		m.add(mm)
	}
	return nil
}

func (m *Manager) buildValueInvestors(cfg *config.Config, register Registrar, constants agent.Constants) error {
	group := cfg.Agents.ValueInvestor
	for i := 0; i < group.Count; i++ {
		agentID := valueInvestorIDBase + i

		account, err := m.register(register, agentID, cfg.Endowment.Others)
		if err != nil {
			return err
		}
		samples, err := m.sampleParameters(group.Parameters)
		if err != nil {
			return fmt.Errorf("value investor %d: %w", agentID, err)
		}

		params := agent.ValueInvestorParams{}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"initial_optimism", &params.InitialOptimism},
			{"stubbornness", &params.Stubbornness},
			{"belief_update_rate", &params.BeliefUpdateRate},
			{"mispricing_threshold", &params.MispricingThreshold},
			{"max_position_fraction", &params.MaxPositionFraction},
			{"deposit_affinity", &params.DepositAffinity},
			{"deposit_allocation_fraction", &params.DepositAllocationFraction},
			{"deposit_horizon_preference", &params.DepositHorizonPreference},
			{"patience_discount", &params.PatienceDiscount},
			{"patience_premium", &params.PatiencePremium},
		}
		for _, f := range fields {
			if *f.dst, err = param(samples, f.name); err != nil {
				return fmt.Errorf("value investor %d: %w", agentID, err)
			}
		}
		maxOrderSize, err := param(samples, "max_order_size")
		if err != nil {
			return fmt.Errorf("value investor %d: %w", agentID, err)
		}
		params.MaxOrderSize = int(maxOrderSize)

		vi := agent.NewValueInvestor(agentID, account, constants, params)
		m.valueInvestors[agentID] = vi
		m.add(vi)
	}
	return nil
}

func (m *Manager) buildMomentumTraders(cfg *config.Config, register Registrar, constants agent.Constants) error {
	group := cfg.Agents.MomentumTrader
	for i := 0; i < group.Count; i++ {
		agentID := momentumTraderIDBase + i

		account, err := m.register(register, agentID, cfg.Endowment.Others)
		if err != nil {
			return err
		}
		samples, err := m.sampleParameters(group.Parameters)
		if err != nil {
			return fmt.Errorf("momentum trader %d: %w", agentID, err)
		}

		params := agent.MomentumTraderParams{}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"entry_threshold", &params.EntryThreshold},
			{"exit_threshold", &params.ExitThreshold},
			{"aggressiveness", &params.Aggressiveness},
			{"max_exposure_fraction", &params.MaxExposureFraction},
			{"directional_bias", &params.DirectionalBias},
		}
		for _, f := range fields {
			if *f.dst, err = param(samples, f.name); err != nil {
				return fmt.Errorf("momentum trader %d: %w", agentID, err)
			}
		}
		ints := []struct {
			name string
			dst  *int
		}{
			{"momentum_window", &params.MomentumWindow},
			{"liquidity_baseline", &params.LiquidityBaseline},
		}
		for _, f := range ints {
			value, err := param(samples, f.name)
			if err != nil {
				return fmt.Errorf("momentum trader %d: %w", agentID, err)
			}
			*f.dst = int(value)
		}

		mt := agent.NewMomentumTrader(agentID, account, constants, params)
		m.momentumTraders[agentID] = mt
		m.add(mt)
	}
	return nil
}

func (m *Manager) buildNoiseTraders(cfg *config.Config, register Registrar, constants agent.Constants) error {
	group := cfg.Agents.NoiseTrader
	for i := 0; i < group.Count; i++ {
		agentID := noiseTraderIDBase + i

		account, err := m.register(register, agentID, cfg.Endowment.Others)
		if err != nil {
			return err
		}
		samples, err := m.sampleParameters(group.Parameters)
		if err != nil {
			return fmt.Errorf("noise trader %d: %w", agentID, err)
		}

		params := agent.NoiseTraderParams{}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"p_trade", &params.PTrade},
			{"p_buy", &params.PBuy},
			{"p_market_order", &params.PMarketOrder},
		}
		for _, f := range fields {
			if *f.dst, err = param(samples, f.name); err != nil {
				return fmt.Errorf("noise trader %d: %w", agentID, err)
			}
		}
		ints := []struct {
			name string
			dst  *int
		}{
			{"min_quantity", &params.MinQuantity},
			{"max_quantity", &params.MaxQuantity},
			{"price_offset_ticks", &params.PriceOffsetTicks},
		}
		for _, f := range ints {
			value, err := param(samples, f.name)
			if err != nil {
				return fmt.Errorf("noise trader %d: %w", agentID, err)
			}
			*f.dst = int(value)
		}

		// Noise traders roll their own dice; a derived seed keeps the
		// population generator's stream independent of how often they act.
		agentRNG := rand.New(rand.NewSource(m.rng.Int63()))

		nt := agent.NewNoiseTrader(agentID, account, constants, params, agentRNG)
		m.noiseTraders[agentID] = nt
		m.add(nt)
	}
	return nil
}

package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"masmarket-go/internal/agent"
	"masmarket-go/internal/market"
	"masmarket-go/internal/metrics"
)

// Market is the external collaborator the engine dispatches intents to.
// *market.Exchange satisfies it; tests may substitute their own.
type Market interface {
	CreateOrder(agentID int, typ market.OrderType, side market.Side, quantity int, price *float64) *market.OrderView
	CancelOrder(agentID, orderID int)
	CreateDeposit(agentID, term int, amount float64) *market.DepositView
	Snapshot() *market.Snapshot
	EconomyInsight() *market.EconomyInsight
	ExpireSession()
	SetClock(macro, micro int)
}

// TickSummary is the per-macro-tick telemetry handed to the publish hook.
type TickSummary struct {
	MacroTick  int      `json:"macro_tick"`
	MicroTick  int      `json:"micro_tick"`
	MidPrice   *float64 `json:"mid_price,omitempty"`
	LastTraded *float64 `json:"last_traded,omitempty"`
	Agents     int      `json:"agents"`
}

// Engine drives the two-resolution tick loop: one agent at a time, decide
// then dispatch then feedback then update, never interleaved.
type Engine struct {
	market  Market
	manager *Manager
	log     zerolog.Logger

	macroTicks    int
	microPerMacro int

	// insight is refreshed at each macro tick start and served unchanged
	// to agents on the following micro ticks.
	insight *market.EconomyInsight

	// publish, when set, receives a summary once per macro tick.
	publish func(TickSummary)
}

// NewEngine wires the engine to its market and population.
func NewEngine(mkt Market, manager *Manager, macroTicks, microPerMacro int, log zerolog.Logger) *Engine {
	if microPerMacro < 1 {
		microPerMacro = 1
	}
	return &Engine{
		market:        mkt,
		manager:       manager,
		log:           log,
		macroTicks:    macroTicks,
		microPerMacro: microPerMacro,
	}
}

// OnMacroTick installs an optional telemetry hook.
func (e *Engine) OnMacroTick(publish func(TickSummary)) {
	e.publish = publish
}

// Run executes the whole simulation. It returns early on context
// cancellation or on an agent contract violation.
func (e *Engine) Run(ctx context.Context) error {
	for macro := 0; macro < e.macroTicks; macro++ {
		for micro := 0; micro < e.microPerMacro; micro++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			e.market.SetClock(macro, micro)
			metrics.TicksTotal.Inc()

			if micro == 0 {
				e.market.ExpireSession()
				snapshot := e.market.Snapshot()
				e.insight = e.market.EconomyInsight()
				if err := e.agentLoop(e.manager.MacroTickAgents(), macro, micro, snapshot, e.insight); err != nil {
					return err
				}
				if e.publish != nil {
					e.publish(TickSummary{
						MacroTick:  macro,
						MicroTick:  micro,
						MidPrice:   snapshot.MidPrice,
						LastTraded: snapshot.LastTraded,
						Agents:     e.manager.Agents(),
					})
				}
			} else {
				snapshot := e.market.Snapshot()
				if err := e.agentLoop(e.manager.MicroTickAgents(), macro, micro, snapshot, e.insight); err != nil {
					return err
				}
			}
		}
		e.log.Debug().Int("macro_tick", macro).Msg("macro tick complete")
	}
	return nil
}

func (e *Engine) agentLoop(agents []agent.Agent, macro, micro int, snapshot *market.Snapshot, insight *market.EconomyInsight) error {
	for _, a := range agents {
		view := agent.View{
			AgentID:   a.ID(),
			Timestamp: time.Now(),
			MacroTick: macro,
			MicroTick: micro,
			Market:    snapshot,
		}
		// Only strategies that reason about fair value see the economy.
		switch a.(type) {
		case *agent.MarketMaker, *agent.ValueInvestor:
			view.Economy = insight
		}

		intents, err := a.Decide(view)
		if err != nil {
			return fmt.Errorf("macro %d micro %d: %w", macro, micro, err)
		}
		if len(intents) == 0 {
			continue
		}

		feedback, err := e.dispatch(a, intents)
		if err != nil {
			return fmt.Errorf("macro %d micro %d: %w", macro, micro, err)
		}
		a.Update(feedback)
	}
	return nil
}

// dispatch converts one agent's intents into market calls and assembles the
// feedback keyed by intent id.
func (e *Engine) dispatch(a agent.Agent, intents []agent.Intent) (agent.Feedback, error) {
	feedback := agent.Feedback{
		AgentID:  a.ID(),
		Orders:   make(map[int]*market.OrderView),
		Deposits: make(map[int]*market.DepositView),
	}

	for _, intent := range intents {
		switch in := intent.(type) {
		case agent.PlaceOrder:
			view := e.market.CreateOrder(a.ID(), in.Type, in.Side, in.Quantity, in.Price)
			feedback.Orders[in.IntentID] = view
			metrics.OrdersTotal.WithLabelValues(string(in.Type), string(in.Side)).Inc()

		case agent.CancelOrder:
			e.market.CancelOrder(a.ID(), in.OrderID)
			feedback.Orders[in.IntentID] = nil
			metrics.CancelsTotal.Inc()

		case agent.CreateDeposit:
			if _, ok := a.(*agent.ValueInvestor); !ok {
				return feedback, fmt.Errorf("agent %d: deposit intent from non value investor", a.ID())
			}
			view := e.market.CreateDeposit(a.ID(), in.Term, in.Amount)
			feedback.Deposits[in.IntentID] = view
			metrics.DepositsTotal.Inc()

		default:
			return feedback, fmt.Errorf("agent %d: unknown intent %T", a.ID(), intent)
		}
	}
	return feedback, nil
}

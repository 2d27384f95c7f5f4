// Package agent defines the strategy contract and the trading strategies
// that implement it. Each agent owns its state outright; the only way in is
// Decide and the only way back is Update.
package agent

import (
	"errors"
	"fmt"
	"time"

	"masmarket-go/internal/market"
)

// Constants is the immutable bundle shared by every agent at build time.
type Constants struct {
	// MicroTicksPerMacro is the number of micro ticks inside one macro tick.
	MicroTicksPerMacro int
	// FeeRate is the per-side fee fraction charged by the exchange.
	FeeRate float64
}

// View is the per-tick snapshot handed to one agent. Economy is nil for
// strategies that do not consume economy insight.
type View struct {
	AgentID   int
	Timestamp time.Time
	MacroTick int
	MicroTick int
	Market    *market.Snapshot
	Economy   *market.EconomyInsight
}

// Feedback maps each intent id issued in the previous Decide call to its
// result. Cancels map to a nil order view; failed intents are simply absent
// or nil.
type Feedback struct {
	AgentID  int
	Orders   map[int]*market.OrderView
	Deposits map[int]*market.DepositView
}

// Agent is the capability set the engine talks to. Decide returns an error
// only on contract violations (wrong view, missing required snapshot); soft
// non-events degrade to an empty intent slice. Update must tolerate any
// subset of intents having failed.
type Agent interface {
	ID() int
	Decide(view View) ([]Intent, error)
	Update(fb Feedback)
}

var (
	errViewMismatch  = errors.New("view addressed to another agent")
	errNoMarketData  = errors.New("view missing market data")
	errNoEconomyData = errors.New("view missing economy insight")
)

// checkView enforces the shared preconditions of every Decide call.
func checkView(agentID int, view View, needsEconomy bool) error {
	if view.AgentID != agentID {
		return fmt.Errorf("agent %d: %w (got %d)", agentID, errViewMismatch, view.AgentID)
	}
	if view.Market == nil {
		return fmt.Errorf("agent %d: %w", agentID, errNoMarketData)
	}
	if needsEconomy && view.Economy == nil {
		return fmt.Errorf("agent %d: %w", agentID, errNoEconomyData)
	}
	return nil
}

// intentSeq issues the per-agent monotonic intent id sequence.
type intentSeq struct {
	next int
}

// Next returns the next id, starting at zero.
func (s *intentSeq) Next() int {
	id := s.next
	s.next++
	return id
}

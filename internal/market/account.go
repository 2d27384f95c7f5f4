package market

// Account holds one agent's custody balances. The exchange is the only
// writer; agents read through the accessors. The simulation is single
// threaded, so no locking is required.
type Account struct {
	agentID int
	cash    float64
	shares  int
}

// AgentID returns the owning agent's identifier.
func (a *Account) AgentID() int { return a.agentID }

// Cash returns the currently free cash balance.
func (a *Account) Cash() float64 { return a.cash }

// Shares returns the current share holding.
func (a *Account) Shares() int { return a.shares }

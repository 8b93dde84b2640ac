package sim

import (
	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchangeapi"
)

// Agent is a market participant driven by the Environment.
type Agent interface {
	ID() string
	Side() core.Side
	// Bid returns the bid placed in the bid stage.
	Bid() core.Bid
	// BeginInterval resets per-interval accounting before bids are placed.
	BeginInterval()
	// Receive books one cleared-bid notice addressed to the agent.
	Receive(notice exchangeapi.ClearedBidNotice)
	// EndInterval settles the interval after all notices were received.
	EndInterval()
	// Report returns the accounting of the last settled interval.
	Report() AgentReport
}

// AgentReport is one agent's view of an interval.
type AgentReport struct {
	ID      string    `json:"id"`
	Side    core.Side `json:"side"`
	Offered float64   `json:"offered"`
	Matched float64   `json:"matched"`
	Missed  float64   `json:"missed"`
	Paid    float64   `json:"paid"`
	Trades  int       `json:"trades"`
}

// GeneratorAgent offers a fixed capacity at a fixed price every interval.
type GeneratorAgent struct {
	id       string
	capacity float64
	price    float64

	capacityLeft     float64
	suppliedCapacity float64
	missedCapacity   float64
	revenue          float64
	trades           int
}

func NewGeneratorAgent(id string, capacity, price float64) *GeneratorAgent {
	return &GeneratorAgent{id: id, capacity: capacity, price: price}
}

func (g *GeneratorAgent) ID() string      { return g.id }
func (g *GeneratorAgent) Side() core.Side { return core.SideSupply }

func (g *GeneratorAgent) Bid() core.Bid {
	return core.Bid{ParticipantID: g.id, Quantity: g.capacity, Price: g.price}
}

func (g *GeneratorAgent) BeginInterval() {
	g.capacityLeft = g.capacity
	g.suppliedCapacity = 0
	g.missedCapacity = 0
	g.revenue = 0
	g.trades = 0
}

// Receive adds the traded quantity; a generator split across several buyers
// receives one notice per buyer.
func (g *GeneratorAgent) Receive(notice exchangeapi.ClearedBidNotice) {
	if notice.SellerID != g.id {
		return
	}
	g.suppliedCapacity += notice.Quantity
	g.capacityLeft -= notice.Quantity
	g.revenue += notice.Quantity * notice.Price
	g.trades++
}

func (g *GeneratorAgent) EndInterval() {
	g.missedCapacity = g.capacityLeft
}

func (g *GeneratorAgent) Report() AgentReport {
	return AgentReport{
		ID:      g.id,
		Side:    core.SideSupply,
		Offered: g.capacity,
		Matched: g.suppliedCapacity,
		Missed:  g.missedCapacity,
		Paid:    -g.revenue,
		Trades:  g.trades,
	}
}

// DemandAgent bids for a fixed demand at a fixed price every interval.
type DemandAgent struct {
	id     string
	demand float64
	price  float64

	demandLeft      float64
	satisfiedDemand float64
	missedDemand    float64
	cost            float64
	trades          int
}

func NewDemandAgent(id string, demand, price float64) *DemandAgent {
	return &DemandAgent{id: id, demand: demand, price: price}
}

func (d *DemandAgent) ID() string      { return d.id }
func (d *DemandAgent) Side() core.Side { return core.SideDemand }

func (d *DemandAgent) Bid() core.Bid {
	return core.Bid{ParticipantID: d.id, Quantity: d.demand, Price: d.price}
}

func (d *DemandAgent) BeginInterval() {
	d.demandLeft = d.demand
	d.satisfiedDemand = 0
	d.missedDemand = 0
	d.cost = 0
	d.trades = 0
}

func (d *DemandAgent) Receive(notice exchangeapi.ClearedBidNotice) {
	if notice.BuyerID != d.id {
		return
	}
	d.satisfiedDemand += notice.Quantity
	d.demandLeft -= notice.Quantity
	d.cost += notice.Quantity * notice.Price
	d.trades++
}

func (d *DemandAgent) EndInterval() {
	d.missedDemand = d.demandLeft
}

func (d *DemandAgent) Report() AgentReport {
	return AgentReport{
		ID:      d.id,
		Side:    core.SideDemand,
		Offered: d.demand,
		Matched: d.satisfiedDemand,
		Missed:  d.missedDemand,
		Paid:    d.cost,
		Trades:  d.trades,
	}
}

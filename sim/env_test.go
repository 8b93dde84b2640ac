package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchangeapi"
)

func agentReport(t *testing.T, report IntervalReport, id string, side core.Side) AgentReport {
	t.Helper()
	for _, agent := range report.Agents {
		if agent.ID == id && agent.Side == side {
			return agent
		}
	}
	t.Fatalf("no report for %s agent %s", side, id)
	return AgentReport{}
}

func TestEnvironment_PinsonDay(t *testing.T) {
	env, err := NewEnvironment(PinsonAgents(), Options{})
	assert.Nil(t, err)
	check.Equal(t, DefaultSteps, env.NumSteps())

	reports, err := env.Run(context.Background())
	assert.Nil(t, err)
	check.True(t, env.Done())

	// Every other step is a clearing stage
	assert.Equal(t, 12, len(reports))
	for i, report := range reports {
		check.Equal(t, i+1, report.Interval)
		check.Equal(t, 2*i+1, report.Step)
		check.Equal(t, 37.5, *report.Result.ClearingPrice)
		check.Equal(t, 16, len(report.Result.Trades))
		check.Equal(t, 995.0, report.Summary.TotalVolume)
		check.Equal(t, 27, len(report.Agents))
	}

	last := reports[len(reports)-1]

	d1 := agentReport(t, last, "D1", core.SideDemand)
	check.Equal(t, 250.0, d1.Matched)
	check.Equal(t, 0.0, d1.Missed)
	check.Equal(t, 9375.0, d1.Paid)
	check.Equal(t, 3, d1.Trades)

	// G3 is split between D1 and D2; both notices count
	g3 := agentReport(t, last, "G3", core.SideSupply)
	check.Equal(t, 200.0, g3.Matched)
	check.Equal(t, 0.0, g3.Missed)
	check.Equal(t, 2, g3.Trades)

	g8 := agentReport(t, last, "G8", core.SideSupply)
	check.Equal(t, 55.0, g8.Matched)
	check.Equal(t, 45.0, g8.Missed)

	g9 := agentReport(t, last, "G9", core.SideSupply)
	check.Equal(t, 0.0, g9.Matched)
	check.Equal(t, 70.0, g9.Missed)

	d10 := agentReport(t, last, "D10", core.SideDemand)
	check.Equal(t, 0.0, d10.Matched)
	check.Equal(t, 35.0, d10.Missed)

	_, err = env.Step(context.Background())
	check.True(t, errors.Is(err, ErrDone))
}

func TestEnvironment_StagesAlternate(t *testing.T) {
	env, err := NewEnvironment(PinsonAgents(), Options{Steps: 3})
	assert.Nil(t, err)

	check.Equal(t, StageBid, env.Stage())
	report, err := env.Step(context.Background())
	assert.Nil(t, err)
	check.Nil(t, report)
	check.Equal(t, StageClearing, env.Stage())
	check.Equal(t, 1, env.CurrentStep())

	report, err = env.Step(context.Background())
	assert.Nil(t, err)
	assert.NotNil(t, report)
	check.Equal(t, 1, report.Interval)
	check.Equal(t, StageBid, env.Stage())

	// An odd step count ends after a bid stage without clearing it
	reports, err := env.Run(context.Background())
	assert.Nil(t, err)
	check.Equal(t, 0, len(reports))
	check.True(t, env.Done())
}

func TestEnvironment_Logging(t *testing.T) {
	logCore, logs := observer.New(zap.DebugLevel)
	env, err := NewEnvironment(PinsonAgents(), Options{Steps: 2, Logger: zap.New(logCore)})
	assert.Nil(t, err)

	_, err = env.Run(context.Background())
	assert.Nil(t, err)

	check.Equal(t, 1, logs.FilterMessage("interval settled").Len())
	check.Equal(t, 16, logs.FilterMessage("cleared bid").Len())
	check.Equal(t, 1, logs.FilterMessage("interval cleared").Len())
}

func TestEnvironment_NoCrossing(t *testing.T) {
	agents := []Agent{
		NewGeneratorAgent("G1", 100, 50),
		NewDemandAgent("D1", 100, 20),
	}
	env, err := NewEnvironment(agents, Options{Steps: 2})
	assert.Nil(t, err)

	reports, err := env.Run(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 1, len(reports))
	check.Nil(t, reports[0].Result.ClearingPrice)
	check.Equal(t, core.TerminationPriceCrossed, reports[0].Result.Termination)
	check.Equal(t, 100.0, agentReport(t, reports[0], "G1", core.SideSupply).Missed)
	check.Equal(t, 100.0, agentReport(t, reports[0], "D1", core.SideDemand).Missed)
}

func TestEnvironment_SameParticipantBothSides(t *testing.T) {
	agents := []Agent{
		NewGeneratorAgent("P1", 40, 10),
		NewDemandAgent("P1", 30, 20),
		NewDemandAgent("D1", 20, 15),
	}
	env, err := NewEnvironment(agents, Options{Steps: 2})
	assert.Nil(t, err)

	reports, err := env.Run(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 1, len(reports))

	// P1 sells 30 to itself and 10 to D1
	check.Equal(t, 40.0, agentReport(t, reports[0], "P1", core.SideSupply).Matched)
	check.Equal(t, 30.0, agentReport(t, reports[0], "P1", core.SideDemand).Matched)
	check.Equal(t, 10.0, agentReport(t, reports[0], "D1", core.SideDemand).Matched)
}

func TestEnvironment_RejectsBadSetup(t *testing.T) {
	_, err := NewEnvironment(nil, Options{})
	check.NotNil(t, err)

	_, err = NewEnvironment([]Agent{NewDemandAgent("D1", 1, 1), NewDemandAgent("D1", 2, 2)}, Options{})
	check.NotNil(t, err)

	env, err := NewEnvironment([]Agent{NewGeneratorAgent("G1", 0, 1)}, Options{})
	assert.Nil(t, err)
	_, err = env.Step(context.Background())
	check.True(t, errors.Is(err, core.ErrInvalidBid))
}

func TestEnvironment_RejectedBidKeepsBidStage(t *testing.T) {
	agents := []Agent{
		NewGeneratorAgent("G1", 10, 5),
		NewDemandAgent("D1", 10, 9),
		NewGeneratorAgent("G2", 0, 1),
	}
	env, err := NewEnvironment(agents, Options{})
	assert.Nil(t, err)

	_, err = env.Step(context.Background())
	check.True(t, errors.Is(err, core.ErrInvalidBid))
	check.Equal(t, StageBid, env.Stage())
	check.Equal(t, 0, env.CurrentStep())

	// Bids placed before the rejection are not cleared later
	supply, demand := env.book.Pending()
	check.Equal(t, 0, supply)
	check.Equal(t, 0, demand)
}

func TestEnvironment_CancelledRun(t *testing.T) {
	env, err := NewEnvironment(PinsonAgents(), Options{})
	assert.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := env.Run(ctx)
	check.True(t, errors.Is(err, context.Canceled))
	check.Equal(t, 0, len(reports))
	check.Equal(t, 0, env.CurrentStep())
}

func TestDemandAgent_AccumulatesNotices(t *testing.T) {
	agent := NewDemandAgent("D1", 100, 30)
	agent.BeginInterval()

	agent.Receive(exchangeapi.ClearedBidNotice{SellerID: "G1", BuyerID: "D1", Quantity: 60, Price: 10})
	agent.Receive(exchangeapi.ClearedBidNotice{SellerID: "G2", BuyerID: "D1", Quantity: 25, Price: 10})
	// Addressed to someone else
	agent.Receive(exchangeapi.ClearedBidNotice{SellerID: "G2", BuyerID: "D2", Quantity: 5, Price: 10})
	agent.EndInterval()

	check.Equal(t, AgentReport{
		ID:      "D1",
		Side:    core.SideDemand,
		Offered: 100,
		Matched: 85,
		Missed:  15,
		Paid:    850,
		Trades:  2,
	}, agent.Report())

	// The next interval starts from scratch
	agent.BeginInterval()
	agent.EndInterval()
	check.Equal(t, 100.0, agent.Report().Missed)
	check.Equal(t, 0.0, agent.Report().Matched)
}

func TestGeneratorAgent_Bid(t *testing.T) {
	agent := NewGeneratorAgent("G4", 400, 30)
	check.Equal(t, core.Bid{ParticipantID: "G4", Quantity: 400, Price: 30}, agent.Bid())
	check.Equal(t, core.SideSupply, agent.Side())

	agent.BeginInterval()
	agent.Receive(exchangeapi.ClearedBidNotice{SellerID: "G4", BuyerID: "D3", Quantity: 120, Price: 37.5})
	agent.EndInterval()

	report := agent.Report()
	check.Equal(t, 120.0, report.Matched)
	check.Equal(t, 280.0, report.Missed)
	check.Equal(t, -4500.0, report.Paid)
}

func TestPinsonScenario(t *testing.T) {
	supply, demand := PinsonScenario()
	check.Equal(t, 15, len(supply))
	check.Equal(t, 12, len(demand))
	check.Nil(t, core.ValidateBidSet(core.SideSupply, supply))
	check.Nil(t, core.ValidateBidSet(core.SideDemand, demand))
	check.Equal(t, 27, len(PinsonAgents()))
}

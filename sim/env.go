package sim

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchange"
	"github.com/openmerit/elmarket/exchangeapi"
)

// Stage is a state of the Environment's bid/clear cycle.
type Stage string

const (
	StageBid      Stage = "bid"
	StageClearing Stage = "clearing"
)

// DefaultSteps is one day of hourly stages.
const DefaultSteps = 24

// ErrDone is returned by Step once every step has run.
var ErrDone = errors.New("simulation finished")

// IntervalReport describes one cleared interval of a simulation.
type IntervalReport struct {
	Step     int                  `json:"step"`
	Interval int                  `json:"interval"`
	Result   *core.ClearingResult `json:"result"`
	Summary  core.Summary         `json:"summary"`
	Agents   []AgentReport        `json:"agents"`
}

// Options configures an Environment.
type Options struct {
	MarketID string      // defaults to "sim"
	Steps    int         // defaults to DefaultSteps
	Logger   *zap.Logger // defaults to a no-op logger
}

// Environment runs agents through alternating bid and clearing stages
// against an exchange book. Each stage is one step.
type Environment struct {
	logger   *zap.Logger
	book     *exchange.Book
	notifier *exchange.MemoryNotifier
	agents   []Agent

	numSteps    int
	currentStep int
	stage       Stage
}

// NewEnvironment returns an environment in the bid stage at step 0.
func NewEnvironment(agents []Agent, opts Options) (*Environment, error) {
	if len(agents) == 0 {
		return nil, errors.New("simulation needs at least one agent")
	}
	seen := make(map[string]bool, len(agents))
	for _, agent := range agents {
		key := string(agent.Side()) + "/" + agent.ID()
		if seen[key] {
			return nil, fmt.Errorf("duplicate %s agent %s", agent.Side(), agent.ID())
		}
		seen[key] = true
	}

	if opts.MarketID == "" {
		opts.MarketID = "sim"
	}
	if opts.Steps <= 0 {
		opts.Steps = DefaultSteps
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sim")

	return &Environment{
		logger:   logger,
		book:     exchange.NewBook(opts.MarketID, core.NewEngine(logger)),
		notifier: exchange.NewMemoryNotifier(),
		agents:   agents,
		numSteps: opts.Steps,
		stage:    StageBid,
	}, nil
}

func (e *Environment) CurrentStep() int { return e.currentStep }
func (e *Environment) NumSteps() int    { return e.numSteps }
func (e *Environment) Stage() Stage     { return e.stage }
func (e *Environment) Done() bool       { return e.currentStep >= e.numSteps }

// Step runs the current stage and moves to the next one. It returns a
// report after a clearing stage and nil after a bid stage.
func (e *Environment) Step(ctx context.Context) (*IntervalReport, error) {
	if e.Done() {
		return nil, ErrDone
	}

	var (
		report *IntervalReport
		err    error
	)
	stage := e.stage
	switch stage {
	case StageBid:
		if err = e.bidStage(); err == nil {
			e.stage = StageClearing
		}
	case StageClearing:
		report, err = e.clearingStage(ctx)
		e.stage = StageBid
	}
	if err != nil {
		return nil, fmt.Errorf("step %d (%s stage): %w", e.currentStep, stage, err)
	}

	e.currentStep++
	return report, nil
}

// Run steps until the environment is done and returns every interval report.
func (e *Environment) Run(ctx context.Context) ([]IntervalReport, error) {
	var reports []IntervalReport
	for !e.Done() {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := e.Step(ctx)
		if err != nil {
			return reports, err
		}
		if report != nil {
			reports = append(reports, *report)
		}
	}
	return reports, nil
}

func (e *Environment) bidStage() error {
	for _, agent := range e.agents {
		agent.BeginInterval()
		if _, _, err := e.book.Submit(agent.Side(), agent.Bid()); err != nil {
			// No partial batch is left behind for the clearing stage
			dropped := e.book.Discard()
			e.logger.Warn("bid stage aborted",
				zap.Int("step", e.currentStep),
				zap.String("agent", agent.ID()),
				zap.Int("dropped_bids", dropped),
				zap.Error(err))
			return fmt.Errorf("agent %s: %w", agent.ID(), err)
		}
	}
	e.logger.Debug("bids placed", zap.Int("step", e.currentStep), zap.Int("agents", len(e.agents)))
	return nil
}

func (e *Environment) clearingStage(ctx context.Context) (*IntervalReport, error) {
	outcome, err := e.book.Clear()
	if err != nil {
		return nil, err
	}

	if err := exchange.Deliver(ctx, e.notifier, outcome); err != nil {
		return nil, err
	}

	report := &IntervalReport{
		Step:     e.currentStep,
		Interval: outcome.Interval,
		Result:   outcome.Result,
		Summary:  core.Summarize(outcome.Result),
		Agents:   make([]AgentReport, 0, len(e.agents)),
	}

	// One mailbox per participant id, shared by its supply and demand agents
	mailboxes := make(map[string][]exchangeapi.ClearedBidNotice)
	for _, agent := range e.agents {
		if _, ok := mailboxes[agent.ID()]; !ok {
			mailboxes[agent.ID()] = e.notifier.Drain(agent.ID())
		}
	}

	for _, agent := range e.agents {
		for _, notice := range mailboxes[agent.ID()] {
			agent.Receive(notice)
		}
		agent.EndInterval()
		report.Agents = append(report.Agents, agent.Report())
	}

	for _, trade := range outcome.Result.Trades {
		e.logger.Debug("cleared bid",
			zap.String("seller", trade.SellerID),
			zap.String("buyer", trade.BuyerID),
			zap.Float64("quantity", trade.Quantity),
			zap.Float64("price", trade.Price))
	}

	fields := []zap.Field{
		zap.Int("step", e.currentStep),
		zap.Int("interval", outcome.Interval),
		zap.Int("trades", len(outcome.Result.Trades)),
		zap.Float64("volume", report.Summary.TotalVolume),
	}
	if outcome.Result.ClearingPrice != nil {
		fields = append(fields, zap.Float64("clearing_price", *outcome.Result.ClearingPrice))
	}
	e.logger.Info("interval settled", fields...)

	return report, nil
}

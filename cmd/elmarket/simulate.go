package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/openmerit/elmarket/sim"
)

var simulateCmd = &cli.Command{
	Name:  "simulate",
	Usage: "Run the reference 15 generator / 12 load market through bid and clearing stages",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "steps",
			Value: sim.DefaultSteps,
			Usage: "number of stages to run (two per cleared interval)",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "log every cleared bid",
		},
		formatFlag,
	},
	Action: func(ctx *cli.Context) error {
		format := ctx.String("format")
		if err := checkFormat(format); err != nil {
			return err
		}
		if ctx.Int("steps") <= 0 {
			return fmt.Errorf("invalid steps %d", ctx.Int("steps"))
		}

		logger := zap.NewNop()
		if ctx.Bool("verbose") {
			var err error
			logger, err = zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
		}

		env, err := sim.NewEnvironment(sim.PinsonAgents(), sim.Options{
			MarketID: "pinson",
			Steps:    ctx.Int("steps"),
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		reports, err := env.Run(ctx.Context)
		if err != nil {
			return err
		}

		if format == "json" {
			return writeJSON(ctx.App.Writer, reports)
		}
		writeSimulationText(ctx.App.Writer, reports)
		return nil
	},
}

func writeSimulationText(w io.Writer, reports []sim.IntervalReport) {
	fmt.Fprintf(w, "Simulated %d intervals\n", len(reports))
	for _, report := range reports {
		price := "none"
		if report.Result.ClearingPrice != nil {
			price = fmt.Sprintf("%.6g", *report.Result.ClearingPrice)
		}
		fmt.Fprintf(w, "  interval %3d (step %3d): price %-8s volume %-10.6g trades %d\n",
			report.Interval, report.Step, price, report.Summary.TotalVolume, len(report.Result.Trades))
	}

	if len(reports) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Participants (last interval):")
	for _, agent := range reports[len(reports)-1].Agents {
		fmt.Fprintf(w, "  %-4s %-6s offered %-6.6g matched %-6.6g missed %-6.6g paid %.6g\n",
			agent.ID, agent.Side, agent.Offered, agent.Matched, agent.Missed, agent.Paid)
	}
}

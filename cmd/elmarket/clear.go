package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/openmerit/elmarket/core"
)

var clearCmd = &cli.Command{
	Name:  "clear",
	Usage: "Clear one interval from supply and demand bid lists",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "supply",
			Required: true,
			Usage:    "supply bids: JSON file or inline JSON array",
		},
		&cli.StringFlag{
			Name:     "demand",
			Required: true,
			Usage:    "demand bids: JSON file or inline JSON array",
		},
		formatFlag,
	},
	Action: func(ctx *cli.Context) error {
		format := ctx.String("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		supply, err := parseBids(readInput(ctx.String("supply")))
		if err != nil {
			return fmt.Errorf("supply: %w", err)
		}
		demand, err := parseBids(readInput(ctx.String("demand")))
		if err != nil {
			return fmt.Errorf("demand: %w", err)
		}

		result, err := core.Clear(supply, demand)
		if err != nil {
			return err
		}

		if format == "json" {
			return writeJSON(ctx.App.Writer, clearOutput{ClearingResult: result, Summary: core.Summarize(result)})
		}
		writeClearingText(ctx.App.Writer, result)
		return nil
	},
}

type clearOutput struct {
	*core.ClearingResult
	Summary core.Summary `json:"summary"`
}

func parseBids(data []byte) (core.BidSet, error) {
	var bids core.BidSet
	if err := json.Unmarshal(data, &bids); err != nil {
		return nil, fmt.Errorf("parse bids: %w", err)
	}
	return bids, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeClearingText(w io.Writer, result *core.ClearingResult) {
	fmt.Fprintln(w, "Clearing Result")
	fmt.Fprintln(w, "===============")
	if result.ClearingPrice != nil {
		fmt.Fprintf(w, "  Clearing Price:  %.6g\n", *result.ClearingPrice)
	} else {
		fmt.Fprintln(w, "  Clearing Price:  none")
	}
	fmt.Fprintf(w, "  Termination:     %s\n", result.Termination)

	summary := core.Summarize(result)
	fmt.Fprintf(w, "  Volume:          %.6g\n", summary.TotalVolume)
	fmt.Fprintf(w, "  Turnover:        %.6g\n", summary.Turnover)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Trades (%d):\n", len(result.Trades))
	for _, trade := range result.Trades {
		fmt.Fprintf(w, "  %-8s -> %-8s %10.6g @ %.6g\n", trade.SellerID, trade.BuyerID, trade.Quantity, trade.Price)
	}

	writeUnmatched(w, "Unmatched Supply", result.UnmatchedSupply)
	writeUnmatched(w, "Unmatched Demand", result.UnmatchedDemand)
}

func writeUnmatched(w io.Writer, title string, bids core.BidSet) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s (%d):\n", title, len(bids))
	if len(bids) == 0 {
		return
	}
	parts := make([]string, 0, len(bids))
	for _, bid := range bids {
		parts = append(parts, fmt.Sprintf("%s %.6g@%.6g", bid.ParticipantID, bid.Quantity, bid.Price))
	}
	fmt.Fprintf(w, "  %s\n", strings.Join(parts, ", "))
}

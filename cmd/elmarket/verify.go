package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchangeapi"
	"github.com/openmerit/elmarket/validation"
)

var verifyCmd = &cli.Command{
	Name:  "verify",
	Usage: "Validate a signed clearing receipt",
	Description: "Exit codes: 0 validation passed, 1 validation failed, 2 invalid input or runtime error.\n" +
		"--receipt, --public-key, --trade and --bid accept a file path or an inline value.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "receipt",
			Required: true,
			Usage:    "receipt as base64 COSE_Sign1 (or gzip URL-safe base64 with --gzip)",
		},
		&cli.BoolFlag{
			Name:  "gzip",
			Usage: "receipt is gzip compressed",
		},
		&cli.StringFlag{
			Name:     "public-key",
			Required: true,
			Usage:    "exchange public key (PEM)",
		},
		&cli.StringFlag{
			Name:     "market",
			Required: true,
			Usage:    "market id",
		},
		&cli.IntFlag{
			Name:     "interval",
			Required: true,
			Usage:    "interval number",
		},
		&cli.StringFlag{
			Name:  "trade",
			Usage: `trade to check, e.g. {"seller_id":"G1","buyer_id":"D1","quantity":120,"price":37.5}`,
		},
		&cli.StringFlag{
			Name:  "bid",
			Usage: `bid to check, e.g. {"side":"supply","bid":{"participant_id":"G1","quantity":120,"price":0}}`,
		},
		&cli.Float64Flag{
			Name:  "clearing-price",
			Usage: "expected clearing price (omit when no trades are expected)",
		},
		formatFlag,
	},
	Action: func(ctx *cli.Context) error {
		format := ctx.String("format")
		if err := checkFormat(format); err != nil {
			return cli.Exit(err, 2)
		}

		input, err := buildValidationInput(ctx)
		if err != nil {
			return cli.Exit(err, 2)
		}

		result, err := validation.ValidateClearingReceipt(input)
		if err != nil {
			return cli.Exit(fmt.Errorf("validation error: %w", err), 2)
		}

		if format == "json" {
			if err := writeValidationJSON(ctx.App.Writer, result); err != nil {
				return cli.Exit(err, 2)
			}
		} else {
			writeValidationText(ctx.App.Writer, result)
		}

		if !result.IsValid() {
			return cli.Exit("", 1)
		}
		return nil
	},
}

func buildValidationInput(ctx *cli.Context) (*validation.ReceiptValidationInput, error) {
	receipt := strings.TrimSpace(string(readInput(ctx.String("receipt"))))

	input := &validation.ReceiptValidationInput{
		PublicKeyPEM: string(readInput(ctx.String("public-key"))),
		MarketID:     ctx.String("market"),
		Interval:     ctx.Int("interval"),
	}
	if ctx.Bool("gzip") {
		input.ReceiptCOSEGzip = exchangeapi.ReceiptCOSEGzip(receipt)
	} else {
		input.ReceiptCOSEBase64 = exchangeapi.ReceiptCOSEBase64(receipt)
	}

	if ctx.IsSet("trade") {
		var trade core.Trade
		if err := json.Unmarshal(readInput(ctx.String("trade")), &trade); err != nil {
			return nil, fmt.Errorf("parse trade: %w", err)
		}
		input.Trade = &trade
	}

	if ctx.IsSet("bid") {
		var bid validation.SubmittedBid
		if err := json.Unmarshal(readInput(ctx.String("bid")), &bid); err != nil {
			return nil, fmt.Errorf("parse bid: %w", err)
		}
		input.Bid = &bid
	}

	if ctx.IsSet("clearing-price") {
		price := ctx.Float64("clearing-price")
		input.ClearingPrice = &price
	}

	return input, nil
}

func writeValidationText(w io.Writer, result *validation.ReceiptValidationResult) {
	fmt.Fprintln(w, "Clearing Receipt Validator")
	fmt.Fprintln(w, "==========================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Signature Valid:         %v\n", result.SignatureValid)
	fmt.Fprintf(w, "  Market Valid:            %v\n", result.MarketValid)
	fmt.Fprintf(w, "  Trade Hash Valid:        %v\n", result.TradeHashValid)
	fmt.Fprintf(w, "  Bid Hash Valid:          %v\n", result.BidHashValid)
	fmt.Fprintf(w, "  Clearing Price Valid:    %v\n", result.ClearingPriceValid)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Fprintf(w, "  - %s\n", detail)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "==========================")
	if result.IsValid() {
		fmt.Fprintln(w, "VALIDATION: ✓ PASSED")
	} else {
		fmt.Fprintln(w, "VALIDATION: ✗ FAILED")
	}
}

func writeValidationJSON(w io.Writer, result *validation.ReceiptValidationResult) error {
	output := map[string]any{
		"valid":                result.IsValid(),
		"signature_valid":      result.SignatureValid,
		"market_valid":         result.MarketValid,
		"trade_hash_valid":     result.TradeHashValid,
		"bid_hash_valid":       result.BidHashValid,
		"clearing_price_valid": result.ClearingPriceValid,
		"details":              result.ValidationDetails,
	}
	if result.Payload != nil {
		output["receipt"] = result.Payload
	}
	return writeJSON(w, output)
}

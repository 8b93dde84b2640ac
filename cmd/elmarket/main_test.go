package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/urfave/cli/v2"

	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchange"
	"github.com/openmerit/elmarket/sim"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"elmarket"}, args...))
	return out.String(), err
}

func TestClearCommand_Text(t *testing.T) {
	out, err := runApp(t, "clear",
		"--supply", `[{"participant_id":"G1","quantity":120,"price":0},{"participant_id":"G2","quantity":50,"price":0},{"participant_id":"G3","quantity":200,"price":15}]`,
		"--demand", `[{"participant_id":"D2","quantity":300,"price":110},{"participant_id":"D1","quantity":250,"price":200}]`,
	)
	assert.Nil(t, err)

	check.True(t, strings.Contains(out, "Clearing Price:  15"))
	check.True(t, strings.Contains(out, "Termination:     exhausted"))
	check.True(t, strings.Contains(out, "Trades (4):"))
	check.True(t, strings.Contains(out, "D2 180@110"))
}

func TestClearCommand_JSONFromFiles(t *testing.T) {
	supply, demand := sim.PinsonScenario()
	dir := t.TempDir()

	supplyFile := filepath.Join(dir, "supply.json")
	demandFile := filepath.Join(dir, "demand.json")
	for path, bids := range map[string]core.BidSet{supplyFile: supply, demandFile: demand} {
		data, err := json.Marshal(bids)
		assert.Nil(t, err)
		assert.Nil(t, os.WriteFile(path, data, 0o600))
	}

	out, err := runApp(t, "clear", "--supply", supplyFile, "--demand", demandFile, "--format", "json")
	assert.Nil(t, err)

	var decoded struct {
		Trades        []core.Trade     `json:"trades"`
		ClearingPrice *float64         `json:"clearing_price"`
		Termination   core.Termination `json:"termination"`
		Summary       core.Summary     `json:"summary"`
	}
	assert.Nil(t, json.Unmarshal([]byte(out), &decoded))
	check.Equal(t, 16, len(decoded.Trades))
	check.Equal(t, 37.5, *decoded.ClearingPrice)
	check.Equal(t, core.TerminationPriceCrossed, decoded.Termination)
	check.Equal(t, 995.0, decoded.Summary.TotalVolume)
}

func TestClearCommand_Errors(t *testing.T) {
	_, err := runApp(t, "clear", "--supply", "[", "--demand", "[]")
	check.NotNil(t, err)

	_, err = runApp(t, "clear",
		"--supply", `[{"participant_id":"G1","quantity":-1,"price":0}]`,
		"--demand", `[]`)
	check.NotNil(t, err)

	_, err = runApp(t, "clear", "--supply", "[]", "--demand", "[]", "--format", "xml")
	check.NotNil(t, err)
}

func TestSimulateCommand(t *testing.T) {
	out, err := runApp(t, "simulate", "--steps", "4", "--format", "json")
	assert.Nil(t, err)

	var reports []sim.IntervalReport
	assert.Nil(t, json.Unmarshal([]byte(out), &reports))
	assert.Equal(t, 2, len(reports))
	check.Equal(t, 37.5, *reports[1].Result.ClearingPrice)

	out, err = runApp(t, "simulate", "--steps", "2")
	assert.Nil(t, err)
	check.True(t, strings.Contains(out, "Simulated 1 intervals"))
	check.True(t, strings.Contains(out, "Participants (last interval):"))

	_, err = runApp(t, "simulate", "--steps", "0")
	check.NotNil(t, err)
}

func TestVerifyCommand(t *testing.T) {
	book := exchange.NewBook("dk1", nil)
	_, _, err := book.Submit(core.SideSupply, core.Bid{ParticipantID: "G1", Quantity: 100, Price: 10})
	assert.Nil(t, err)
	_, _, err = book.Submit(core.SideDemand, core.Bid{ParticipantID: "D1", Quantity: 60, Price: 30})
	assert.Nil(t, err)
	outcome, err := book.Clear()
	assert.Nil(t, err)

	key, err := exchange.NewSigningKey()
	assert.Nil(t, err)
	publicPEM, err := key.PublicKeyPEM()
	assert.Nil(t, err)
	receipt, err := exchange.IssueReceipt(key, outcome)
	assert.Nil(t, err)
	gz, err := receipt.CompressGzip()
	assert.Nil(t, err)

	trade := `{"seller_id":"G1","buyer_id":"D1","quantity":60,"price":10}`

	out, err := runApp(t, "verify",
		"--receipt", receipt.EncodeBase64().String(),
		"--public-key", publicPEM,
		"--market", "dk1", "--interval", "1",
		"--trade", trade,
		"--bid", `{"side":"supply","bid":{"participant_id":"G1","quantity":100,"price":10}}`,
		"--clearing-price", "10",
	)
	assert.Nil(t, err)
	check.True(t, strings.Contains(out, "VALIDATION: ✓ PASSED"))

	out, err = runApp(t, "verify",
		"--receipt", gz.String(), "--gzip",
		"--public-key", publicPEM,
		"--market", "dk1", "--interval", "1",
		"--trade", trade,
		"--clearing-price", "10",
		"--format", "json",
	)
	assert.Nil(t, err)
	var decoded map[string]any
	assert.Nil(t, json.Unmarshal([]byte(out), &decoded))
	check.Equal(t, true, decoded["valid"])

	// Wrong clearing price fails validation with exit code 1
	_, err = runApp(t, "verify",
		"--receipt", receipt.EncodeBase64().String(),
		"--public-key", publicPEM,
		"--market", "dk1", "--interval", "1",
		"--clearing-price", "11",
	)
	var exitErr cli.ExitCoder
	assert.True(t, errors.As(err, &exitErr))
	check.Equal(t, 1, exitErr.ExitCode())

	// Malformed input is exit code 2
	_, err = runApp(t, "verify",
		"--receipt", "!!!",
		"--public-key", publicPEM,
		"--market", "dk1", "--interval", "1",
	)
	assert.True(t, errors.As(err, &exitErr))
	check.Equal(t, 2, exitErr.ExitCode())
}

func TestKeygenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.pem")

	out, err := runApp(t, "keygen", "--out", path)
	assert.Nil(t, err)
	check.True(t, strings.HasPrefix(out, "-----BEGIN PUBLIC KEY-----"))

	key, err := exchange.LoadSigningKey(path)
	assert.Nil(t, err)
	publicPEM, err := key.PublicKeyPEM()
	assert.Nil(t, err)
	check.Equal(t, publicPEM, out)
}

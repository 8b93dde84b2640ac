package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		code := 2
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, "Error: ", msg)
		}
		os.Exit(code)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "elmarket",
		Usage: "Clear, simulate and verify a uniform-price electricity market",
		Commands: []*cli.Command{
			clearCmd,
			simulateCmd,
			verifyCmd,
			keygenCmd,
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

var formatFlag = &cli.StringFlag{
	Name:  "format",
	Value: "text",
	Usage: "output format: text or json",
}

func checkFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q (must be text or json)", format)
	}
	return nil
}

// readInput returns the contents of the file named by input, or input itself
// when no such file exists.
func readInput(input string) []byte {
	if data, err := os.ReadFile(input); err == nil {
		return data
	}
	return []byte(input)
}

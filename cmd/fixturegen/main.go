// The fixturegen command generates blockchain test fixtures.
//
// The 'fill' subcommand executes scenario files against a transition tool:
//
//	fixturegen fill -tool geth -bin ./evm -output fixtures/ scenarios/*.yaml
//
// The 'print' subcommand pretty-prints a generated fixture:
//
//	fixturegen print fixtures/value-transfer.json
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	ethlog "github.com/ethereum/go-ethereum/log"
)

const usage = "Usage: fixturegen fill|print [ options ] ..."

func main() {
	ethlog.SetDefault(ethlog.NewLogger(ethlog.NewTerminalHandlerWithLevel(os.Stderr, ethlog.LevelInfo, false)))

	if len(os.Args) < 2 {
		fatalf(usage)
	}
	switch os.Args[1] {
	case "fill":
		fillCommand(os.Args[2:])
	case "print":
		printCommand(os.Args[2:])
	default:
		fatalf(usage)
	}
}

// printCommand re-indents a fixture file for reading.
func printCommand(args []string) {
	flag.CommandLine.Parse(args)
	if flag.NArg() != 1 {
		fatalf("Usage: fixturegen print <fixture.json>")
	}
	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fatal(err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fatal(err)
	}
	fmt.Println(buf.String())
}

func fatalf(format string, args ...interface{}) {
	fatal(fmt.Errorf(format, args...))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

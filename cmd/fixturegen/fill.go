package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"gopkg.in/inconshreveable/log15.v2"

	"github.com/ethereum/fixturegen/blocktest"
	"github.com/ethereum/fixturegen/t8n"
)

// fillCommand executes scenario files against a transition tool and writes
// the resulting fixtures. Scenarios fill concurrently, each with its own
// isolated tool instance.
func fillCommand(args []string) {
	var (
		toolName = flag.String("tool", "geth", "Transition tool flavor: "+strings.Join(t8n.KnownTools(), ", "))
		binary   = flag.String("bin", "", "Path to the transition tool binary")
		server   = flag.String("server", "", "URL of a server-mode transition tool")
		outdir   = flag.String("output", ".", "Fixture destination folder")
		shape    = flag.String("shape", "blockchain", "Fixture shape: blockchain, engine or enginex")
		jobs     = flag.Int("jobs", 1, "Number of scenarios to fill concurrently")
		trace    = flag.Bool("trace", false, "Collect opcode traces from the tool")
		debugDir = flag.String("debug", "", "Directory for tool invocation dumps")
	)
	flag.CommandLine.Parse(args)
	if flag.NArg() == 0 {
		fatalf("Usage: fixturegen fill [ options ] <scenario.yaml> ...")
	}
	if err := os.MkdirAll(*outdir, 0755); err != nil {
		fatal(err)
	}

	paths := flag.Args()
	slices.Sort(paths)

	log := log15.New("module", "fixturegen")
	var group errgroup.Group
	group.SetLimit(*jobs)
	for _, path := range paths {
		path := path
		group.Go(func() error {
			sc, bt, err := loadScenario(path)
			if err != nil {
				return err
			}
			// One tool per scenario: trace buffers and scratch space
			// must not cross test boundaries.
			tool, err := t8n.NewKnownTool(*toolName, t8n.Config{
				Binary:    *binary,
				ServerURL: *server,
				Trace:     *trace,
				DebugDir:  debugPath(*debugDir, sc.Name),
				Logger:    log.New("scenario", sc.Name),
			})
			if err != nil {
				return err
			}
			fixture, err := fill(bt, tool, *shape)
			if err != nil {
				return fmt.Errorf("%s: %w", sc.Name, err)
			}
			out := filepath.Join(*outdir, sc.Name+".json")
			if err := writeFixture(out, fixture); err != nil {
				return err
			}
			log.Info("fixture written", "scenario", sc.Name, "file", out)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		fatal(err)
	}
}

func fill(bt *blocktest.BlockchainTest, tool *t8n.Tool, shape string) (any, error) {
	ctx := context.Background()
	switch shape {
	case "blockchain":
		return bt.MakeFixture(ctx, tool)
	case "engine":
		return bt.MakeEngineFixture(ctx, tool)
	case "enginex":
		return bt.MakeEngineXFixture(ctx, tool)
	default:
		return nil, fmt.Errorf("unknown fixture shape %q", shape)
	}
}

func writeFixture(path string, fixture any) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func debugPath(base, name string) string {
	if base == "" {
		return ""
	}
	return filepath.Join(base, name)
}

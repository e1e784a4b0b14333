// Strategy log analyser
// Parses a strategy log file (or stdin) and prints the extracted run as JSON

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/parser"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pointValue := fs.Float64("point-value", parser.DefaultPointValue, "Currency value of one instrument point")
	pretty := fs.Bool("pretty", false, "Indent JSON output")
	verbose := fs.Bool("v", false, "Log parser diagnostics to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: analyse [flags] [log-file]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return 2
	}

	logger := zap.NewNop()
	if *verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		if l, err := cfg.Build(); err == nil {
			logger = l
		}
	}
	defer logger.Sync()

	text, err := readInput(fs.Arg(0), stdin)
	if err != nil {
		fmt.Fprintf(stderr, "analyse: %v\n", err)
		return 1
	}

	p := parser.NewParser(parser.DefaultRegistry(), logger, parser.WithPointValue(*pointValue))
	result, err := p.Parse(text)
	if err != nil {
		fmt.Fprintf(stderr, "analyse: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "analyse: failed to write output: %v\n", err)
		return 1
	}
	return 0
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read log file: %w", err)
	}
	return string(data), nil
}

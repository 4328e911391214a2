package main

import (
	"flag"
	"fmt"
	"io"
)

var flagErrHelp = flag.ErrHelp

func newFlagSet(stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("karva", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: karva [flags] <paths...>")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Discovers and runs test_* functions across worker subprocesses,")
		fmt.Fprintln(stderr, "partitioning by recent duration or AST size (longest-processing-time-first).")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Paths accept a `file::function` selector to run a single test.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}
	return fs
}

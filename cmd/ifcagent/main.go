// Command ifcagent is the CLI surface of spec.md §6: the mandatory
// run_agent subcommand, plus the additive serve and doctor
// subcommands from SPEC_FULL.md.
package main

import (
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches on args[1], writing to stdout/stderr for testability
// (the teacher's `Run(args, stdout, stderr) int` pattern).
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 1
	}

	switch args[1] {
	case "run_agent":
		return runAgentCommand(args[2:], stdout, stderr)
	case "serve":
		return serveCommand(args[2:], stdout, stderr)
	case "doctor":
		return doctorCommand(args[2:], stdout, stderr)
	default:
		printUsage(stderr)
		return 1
	}
}

func printUsage(stderr io.Writer) {
	io.WriteString(stderr, "usage: ifcagent <run_agent|serve|doctor> ...\n")
	io.WriteString(stderr, "  run_agent <config.json> <url> [url...]\n")
	io.WriteString(stderr, "  serve <config.json>\n")
	io.WriteString(stderr, "  doctor <config.json>\n")
}

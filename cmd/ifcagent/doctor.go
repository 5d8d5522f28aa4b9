package main

import (
	"fmt"
	"io"

	"github.com/ahjcgit/ifcagent/internal/config"
	"github.com/ahjcgit/ifcagent/pkg/policy"
)

// doctorCommand validates a config file without running anything
// (SPEC_FULL.md addition): schema validation, lattice construction,
// and CEL rule compilation if configured.
func doctorCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		io.WriteString(stderr, "usage: ifcagent doctor <config.json>\n")
		return 1
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		fmt.Fprintf(stdout, "[ERROR] %v\n", err)
		return 0
	}

	if err := validateConfig(cfg); err != nil {
		fmt.Fprintf(stdout, "[ERROR] %v\n", err)
		return 0
	}

	fmt.Fprintln(stdout, "config OK")
	return 0
}

func validateConfig(cfg *config.Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid lattice: %v", r)
		}
	}()
	lt := cfg.BuildLattice()
	if !lt.IsValidLevel(cfg.UserOutputMax.Level) {
		return fmt.Errorf("user_output_max level %q is not in the configured lattice", cfg.UserOutputMax.Level)
	}
	for _, l := range cfg.ExternalLLMAllowed {
		if !lt.IsValidLevel(l.Level) {
			return fmt.Errorf("external_llm_allowed level %q is not in the configured lattice", l.Level)
		}
	}
	if len(cfg.Policy.CELRules) > 0 {
		if _, err := policy.NewCELBackend(cfg.Policy.CELRules); err != nil {
			return err
		}
	}
	return nil
}

package llm

import (
	"context"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// StaticLLM is a fixed-response test double, used by orchestrator
// tests that don't need real HTTP round trips.
type StaticLLM struct {
	External  bool
	Text      string
	LabelFunc func(inputLabel lattice.Label) lattice.Label // nil means echo inputLabel
	Err       error
}

// IsExternal reports the configured External flag.
func (s *StaticLLM) IsExternal() bool { return s.External }

// Generate returns the configured Text, labeled via LabelFunc (or
// inputLabel unchanged if LabelFunc is nil).
func (s *StaticLLM) Generate(ctx context.Context, prompt string, inputLabel lattice.Label) (Response, error) {
	if s.Err != nil {
		return Response{}, s.Err
	}
	label := inputLabel
	if s.LabelFunc != nil {
		label = s.LabelFunc(inputLabel)
	}
	return Response{Text: s.Text, Label: label}, nil
}

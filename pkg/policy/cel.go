package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// CELBackend is an optional supplementary policy backend letting an
// operator add extra, declarative denial rules without recompiling the
// binary (SPEC_FULL.md policy.cel_rules). Each rule is a CEL boolean
// expression over `level`, `categories` (list of string), and
// `boundary` ("external_llm" or "user"); a rule evaluating to true
// denies the flow. CELBackend can only narrow what LatticeBackend
// already allowed — see Engine — and fails closed: a rule that won't
// compile makes NewCELBackend return an error, and a rule that won't
// evaluate counts as a denial, never a silent pass.
type CELBackend struct {
	env   *cel.Env
	rules []cel.Program
	exprs []string
}

// NewCELBackend compiles each rule expression once at construction.
// A compile error is returned immediately rather than deferred to
// evaluation time, matching the teacher's "fail fast on construction"
// discipline for immutable configuration.
func NewCELBackend(rules []string) (*CELBackend, error) {
	env, err := cel.NewEnv(
		cel.Variable("level", cel.StringType),
		cel.Variable("categories", cel.ListType(cel.StringType)),
		cel.Variable("boundary", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env: %w", err)
	}

	programs := make([]cel.Program, 0, len(rules))
	for _, expr := range rules {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy: compile cel rule %q: %w", expr, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("policy: cel program %q: %w", expr, err)
		}
		programs = append(programs, prg)
	}

	return &CELBackend{env: env, rules: programs, exprs: rules}, nil
}

func (b *CELBackend) evaluate(payload lattice.Label, boundary string) (Decision, error) {
	vars := map[string]interface{}{
		"level":      payload.Level(),
		"categories": payload.Categories(),
		"boundary":   boundary,
	}
	for i, prg := range b.rules {
		out, _, err := prg.Eval(vars)
		if err != nil {
			return Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("Label %s denied: policy rule %q failed to evaluate.", payload.String(), b.exprs[i]),
			}, nil
		}
		if isTrue(out) {
			return Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("Label %s denied by policy rule %q.", payload.String(), b.exprs[i]),
			}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

func isTrue(v ref.Val) bool {
	b, ok := v.(types.Bool)
	return ok && bool(b)
}

// CanSendToExternalLLM evaluates the compiled rules with boundary="external_llm".
func (b *CELBackend) CanSendToExternalLLM(payload lattice.Label) (Decision, error) {
	return b.evaluate(payload, "external_llm")
}

// CanSendToUser evaluates the compiled rules with boundary="user".
func (b *CELBackend) CanSendToUser(payload lattice.Label) (Decision, error) {
	return b.evaluate(payload, "user")
}

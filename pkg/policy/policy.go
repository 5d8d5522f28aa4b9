// Package policy implements the egress decisions of spec.md §4.5: pure,
// stateless flow checks performed immediately before a labeled payload
// crosses a trust boundary.
package policy

import (
	"fmt"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// Decision is the result of an egress check. Denials are a normal
// outcome, not a programmer error (spec.md §9 "Result propagation").
type Decision struct {
	Allowed bool
	Reason  string
}

// Backend is one flow-decision source. LatticeBackend is mandatory;
// additional backends (e.g. CELBackend) may only turn an allow into a
// deny, never the reverse — see Engine.
type Backend interface {
	CanSendToExternalLLM(payload lattice.Label) (Decision, error)
	CanSendToUser(payload lattice.Label) (Decision, error)
}

// LatticeBackend is the mandatory flow-check engine: pure can_flow
// comparisons against the configured whitelist and ceiling.
type LatticeBackend struct {
	lt                 *lattice.Lattice
	externalLLMAllowed []lattice.Label
	userOutputMax      lattice.Label
}

// NewLatticeBackend builds the mandatory backend from spec.md §4.5's
// configuration: a whitelist of upper-bound labels accepted by the
// external LLM boundary, and a single ceiling label for the user
// boundary.
func NewLatticeBackend(lt *lattice.Lattice, externalLLMAllowed []lattice.Label, userOutputMax lattice.Label) *LatticeBackend {
	return &LatticeBackend{lt: lt, externalLLMAllowed: externalLLMAllowed, userOutputMax: userOutputMax}
}

// CanSendToExternalLLM allows iff some configured upper bound
// dominates payload under can_flow.
func (b *LatticeBackend) CanSendToExternalLLM(payload lattice.Label) (Decision, error) {
	for _, allowed := range b.externalLLMAllowed {
		ok, err := b.lt.CanFlow(payload, allowed)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return Decision{Allowed: true}, nil
		}
	}
	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("Label %s exceeds external LLM policy.", payload.String()),
	}, nil
}

// CanSendToUser allows iff payload can flow to the configured ceiling.
func (b *LatticeBackend) CanSendToUser(payload lattice.Label) (Decision, error) {
	ok, err := b.lt.CanFlow(payload, b.userOutputMax)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return Decision{Allowed: true}, nil
	}
	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("Label %s exceeds user clearance.", payload.String()),
	}, nil
}

// Engine composes the mandatory LatticeBackend with an optional
// supplementary backend (e.g. CELBackend). The supplementary backend
// may only add denials: if the lattice backend denies, its reason
// wins; if the lattice backend allows, the supplementary backend gets
// a veto but never an override to allow what the lattice denied.
type Engine struct {
	lattice *LatticeBackend
	extra   Backend // optional, nil means lattice-only
}

// NewEngine builds a policy Engine. extra may be nil.
func NewEngine(latticeBackend *LatticeBackend, extra Backend) *Engine {
	return &Engine{lattice: latticeBackend, extra: extra}
}

// CanSendToExternalLLM evaluates the mandatory backend, then the
// optional one as a fail-closed veto.
func (e *Engine) CanSendToExternalLLM(payload lattice.Label) (Decision, error) {
	d, err := e.lattice.CanSendToExternalLLM(payload)
	if err != nil || !d.Allowed || e.extra == nil {
		return d, err
	}
	extraDecision, err := e.extra.CanSendToExternalLLM(payload)
	if err != nil {
		return Decision{}, err
	}
	if !extraDecision.Allowed {
		return extraDecision, nil
	}
	return d, nil
}

// CanSendToUser evaluates the mandatory backend, then the optional one
// as a fail-closed veto.
func (e *Engine) CanSendToUser(payload lattice.Label) (Decision, error) {
	d, err := e.lattice.CanSendToUser(payload)
	if err != nil || !d.Allowed || e.extra == nil {
		return d, err
	}
	extraDecision, err := e.extra.CanSendToUser(payload)
	if err != nil {
		return Decision{}, err
	}
	if !extraDecision.Allowed {
		return extraDecision, nil
	}
	return d, nil
}

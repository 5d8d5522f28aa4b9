// Package ifcerrors holds the sentinel error values for the
// domain-level error kinds of spec.md §7. Callers wrap these with
// fmt.Errorf("%w: ...") for context; errors.Is still resolves to the
// sentinel at any wrap depth.
package ifcerrors

import "errors"

var (
	// ErrEmptyJoin: joining zero labels. Programmer error, fatal to the call.
	ErrEmptyJoin = errors.New("empty join")

	// ErrUnknownLevel: a label references a level absent from the lattice.
	ErrUnknownLevel = errors.New("unknown level")

	// ErrFetch: transient I/O failure fetching a URL.
	ErrFetch = errors.New("fetch failed")

	// ErrStorage: I/O failure persisting or loading documents.
	ErrStorage = errors.New("storage failed")

	// ErrLLM: timeout, transport error, or missing credentials calling the LLM.
	ErrLLM = errors.New("llm call failed")

	// ErrPolicyViolation: a flow was denied at an egress boundary.
	ErrPolicyViolation = errors.New("policy violation")
)

package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// LedgerEntry is one audit record for an egress decision
// (SPEC_FULL.md §4.5.1's optional decision ledger).
type LedgerEntry struct {
	Timestamp    string `json:"timestamp"`
	Boundary     string `json:"boundary"` // "external_llm" or "user"
	PayloadLabel string `json:"payload_label"`
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	Hash         string `json:"hash"`
}

// Sink persists opaque ledger records; storage.FileStore's
// AppendPolicyDecision satisfies this.
type Sink interface {
	AppendPolicyDecision(record json.RawMessage) error
}

// DecisionLedger records every egress decision with a JSON
// Canonicalization Scheme (RFC 8785) + SHA-256 hash, grounded on the teacher's
// ComputeDecisionHash. The hash lets an auditor verify no entry has
// been altered after the fact without depending on field ordering.
type DecisionLedger struct {
	sink Sink
}

// NewDecisionLedger wires a ledger to a persistence sink. A nil sink
// disables recording; Record becomes a no-op.
func NewDecisionLedger(sink Sink) *DecisionLedger {
	return &DecisionLedger{sink: sink}
}

// Record computes the entry's hash and persists it. now is injected
// by the caller so the ledger itself stays deterministic and testable.
func (l *DecisionLedger) Record(now time.Time, boundary string, payload lattice.Label, decision Decision) (LedgerEntry, error) {
	entry := LedgerEntry{
		Timestamp:    now.UTC().Format(time.RFC3339),
		Boundary:     boundary,
		PayloadLabel: payload.String(),
		Allowed:      decision.Allowed,
		Reason:       decision.Reason,
	}

	hash, err := computeDecisionHash(entry)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("policy: compute decision hash: %w", err)
	}
	entry.Hash = hash

	if l.sink == nil {
		return entry, nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("policy: marshal ledger entry: %w", err)
	}
	if err := l.sink.AppendPolicyDecision(raw); err != nil {
		return LedgerEntry{}, fmt.Errorf("policy: persist ledger entry: %w", err)
	}
	return entry, nil
}

// computeDecisionHash canonicalizes entry (with Hash cleared) via JCS
// and SHA-256-hashes the result.
func computeDecisionHash(entry LedgerEntry) (string, error) {
	entry.Hash = ""
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

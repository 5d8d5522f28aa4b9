// Package lattice implements the label algebra that underlies the
// information-flow-controlled pipeline: levels, category sets, the
// flow relation, and label joins.
package lattice

import (
	"sort"
	"strings"

	"github.com/ahjcgit/ifcagent/pkg/ifcerrors"
)

// ErrEmptyJoin is returned when joining zero labels. Aliased onto the
// shared sentinel in pkg/ifcerrors so errors.Is resolves the same way
// regardless of which package a caller imports it from.
var ErrEmptyJoin = ifcerrors.ErrEmptyJoin

// ErrUnknownLevel is returned when a label references a level absent
// from the configured lattice.
var ErrUnknownLevel = ifcerrors.ErrUnknownLevel

// Label is an immutable (level, categories) pair. Equality is
// structural: two labels are equal iff their levels match and their
// category sets match.
type Label struct {
	level      string
	categories []string // sorted, unique
}

// NewLabel normalizes categories into a sorted, unique-element set.
func NewLabel(level string, categories []string) Label {
	return Label{level: level, categories: normalizeCategories(categories)}
}

func normalizeCategories(cats []string) []string {
	if len(cats) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(cats))
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Level returns the label's level.
func (l Label) Level() string { return l.level }

// Categories returns a copy of the label's sorted category set.
func (l Label) Categories() []string {
	if len(l.categories) == 0 {
		return nil
	}
	out := make([]string, len(l.categories))
	copy(out, l.categories)
	return out
}

// Equal reports structural equality.
func (l Label) Equal(other Label) bool {
	if l.level != other.level {
		return false
	}
	if len(l.categories) != len(other.categories) {
		return false
	}
	for i, c := range l.categories {
		if other.categories[i] != c {
			return false
		}
	}
	return true
}

// String renders "level" when there are no categories, else
// "level+c1,c2,..." with categories in sorted order.
func (l Label) String() string {
	if len(l.categories) == 0 {
		return l.level
	}
	return l.level + "+" + strings.Join(l.categories, ",")
}

func (l Label) hasCategory(c string) bool {
	for _, existing := range l.categories {
		if existing == c {
			return true
		}
	}
	return false
}

func unionCategories(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return normalizeCategories(out)
}

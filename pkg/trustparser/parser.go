// Package trustparser derives a trust score and an IFC label from
// heuristic evidence on scraped web content (spec.md §4.2).
package trustparser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// Default level names the parser maps scores onto. Callers whose
// lattice doesn't contain these must re-map (spec.md §4.2, §9).
const (
	LevelPublic       = "Public"
	LevelInternal     = "Internal"
	LevelConfidential = "Confidential"

	CategoryUntrusted = "Untrusted"
)

// Assessment is the parser's output, prior to any caller-supplied
// label joining.
type Assessment struct {
	Score   float64
	Label   lattice.Label
	Signals map[string]float64
}

// Parser classifies scraped content using domain reputation, basic
// structural signals, and boilerplate density. Trusted/blocked domain
// sets are configured once and shared across calls.
type Parser struct {
	trustedDomains map[string]struct{}
	blockedDomains map[string]struct{}
}

// New builds a Parser from case-insensitive trusted/blocked domain lists.
func New(trustedDomains, blockedDomains []string) *Parser {
	return &Parser{
		trustedDomains: toSet(trustedDomains),
		blockedDomains: toSet(blockedDomains),
	}
}

func toSet(domains []string) map[string]struct{} {
	out := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		out[strings.ToLower(d)] = struct{}{}
	}
	return out
}

var tokenRE = regexp.MustCompile(`\S+`)

var boilerplateWords = map[string]struct{}{
	"cookie":         {},
	"privacy":        {},
	"terms":          {},
	"subscribe":      {},
	"advertisement":  {},
	"login":          {},
}

const punctTrim = ".,:;!?()[]{}"

// Parse extracts signals, computes the score, and maps it to a
// default-named label (spec.md §4.2).
func (p *Parser) Parse(rawURL, cleanText, rawHTML string) Assessment {
	lowerText := strings.ToLower(cleanText)
	lowerHTML := strings.ToLower(rawHTML)

	host := parseHost(rawURL)
	isHTTPS := isHTTPSScheme(rawURL)
	authorPresent := strings.Contains(lowerHTML, "author") || strings.Contains(lowerText, "by ")
	datePresent := containsAny(lowerHTML, "datetime", "published", "date")
	orgPresent := containsAny(lowerText, "inc", "corp", "university", "government")
	refs := float64(strings.Count(lowerText, "http") + strings.Count(lowerText, "www."))
	boilerplateRatio := p.boilerplateRatio(cleanText)
	domainSignal := p.domainSignal(host)

	score := 0.30*domainSignal +
		0.15*boolFloat(isHTTPS) +
		0.20*boolFloat(authorPresent || datePresent || orgPresent) +
		0.20*min(refs, 5)/5 +
		0.15*(1-boilerplateRatio)
	score = clip(score, 0, 1)

	signals := map[string]float64{
		"https":              boolFloat(isHTTPS),
		"author_present":     boolFloat(authorPresent),
		"date_present":       boolFloat(datePresent),
		"org_present":        boolFloat(orgPresent),
		"refs":               refs,
		"boilerplate_ratio":  boilerplateRatio,
		"domain_signal":      domainSignal,
	}

	return Assessment{
		Score:   score,
		Label:   labelForScore(score),
		Signals: signals,
	}
}

func labelForScore(score float64) lattice.Label {
	switch {
	case score >= 0.8:
		return lattice.NewLabel(LevelPublic, nil)
	case score >= 0.5:
		return lattice.NewLabel(LevelInternal, nil)
	default:
		return lattice.NewLabel(LevelConfidential, []string{CategoryUntrusted})
	}
}

func (p *Parser) domainSignal(host string) float64 {
	if _, ok := p.trustedDomains[host]; ok {
		return 1.0
	}
	if _, ok := p.blockedDomains[host]; ok {
		return 0.0
	}
	return 0.5
}

func (p *Parser) boilerplateRatio(text string) float64 {
	tokens := tokenRE.FindAllString(text, -1)
	if len(tokens) == 0 {
		return 1.0
	}
	matches := 0
	for _, tok := range tokens {
		stripped := strings.ToLower(strings.Trim(tok, punctTrim))
		if _, ok := boilerplateWords[stripped]; ok {
			matches++
		}
	}
	return clip(float64(matches)/float64(len(tokens)), 0, 1)
}

func parseHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func isHTTPSScheme(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "https"
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahjcgit/ifcagent/pkg/fetcher"
	"github.com/ahjcgit/ifcagent/pkg/ifcerrors"
	"github.com/ahjcgit/ifcagent/pkg/lattice"
	"github.com/ahjcgit/ifcagent/pkg/llm"
	"github.com/ahjcgit/ifcagent/pkg/policy"
	"github.com/ahjcgit/ifcagent/pkg/retriever"
	"github.com/ahjcgit/ifcagent/pkg/storage"
	"github.com/ahjcgit/ifcagent/pkg/trustparser"
)

func newTestLattice() *lattice.Lattice {
	return lattice.New([]string{"Public", "Internal", "Confidential", "Secret"})
}

func newOrchestrator(t *testing.T, pages map[string]storage.ScrapedContent, trustedDomains []string, llmClient llm.Client, externalLLMAllowed []lattice.Label, userOutputMax lattice.Label) *Orchestrator {
	t.Helper()
	lt := newTestLattice()
	parser := trustparser.New(trustedDomains, nil)
	fetch := fetcher.NewStaticFetcher(pages)
	store := storage.NewMemoryStore()
	retr := retriever.New(lt)
	lb := policy.NewLatticeBackend(lt, externalLLMAllowed, userOutputMax)
	pol := policy.NewEngine(lb, nil)
	return New(lt, parser, fetch, store, retr, pol, llmClient, nil)
}

// S1 — Happy path, local LLM.
func TestRun_S1_HappyPathLocalLLM(t *testing.T) {
	pages := map[string]storage.ScrapedContent{
		"https://a.test": {URL: "https://a.test", CleanText: "alpha beta university"},
		"https://b.test": {URL: "https://b.test", CleanText: "gamma delta university"},
	}
	// Neither domain is trusted; org_present pushes score into [0.5, 0.8) -> Internal label.
	llmClient := &llm.StaticLLM{External: false, Text: "answer"}
	orch := newOrchestrator(t, pages, nil, llmClient, nil, lattice.NewLabel("Secret", nil))

	userLabel := lattice.NewLabel("Internal", nil)
	result, err := orch.Run(context.Background(), "alpha", userLabel, []string{"https://a.test", "https://b.test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", result.Text)
	assert.Equal(t, "Internal", result.Label.Level())
}

// S2 — Label cap excludes all documents.
func TestRun_S2_LabelCapExcludesAll(t *testing.T) {
	pages := map[string]storage.ScrapedContent{
		"https://a.test": {URL: "https://a.test", CleanText: "cookie privacy terms subscribe login advertisement alpha"},
	}
	llmClient := &llm.StaticLLM{External: false, Text: "should not be called"}
	orch := newOrchestrator(t, pages, nil, llmClient, nil, lattice.NewLabel("Secret", nil))

	userLabel := lattice.NewLabel("Public", nil)
	result, err := orch.Run(context.Background(), "alpha", userLabel, []string{"https://a.test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, noResultsText, result.Text)
	assert.True(t, result.Label.Equal(userLabel))
}

// S3 — External LLM blocked.
func TestRun_S3_ExternalLLMBlocked(t *testing.T) {
	pages := map[string]storage.ScrapedContent{
		"https://a.test": {URL: "https://a.test", CleanText: "cookie privacy terms subscribe login advertisement alpha"},
	}
	llmClient := &llm.StaticLLM{External: true, Text: "should not be returned"}
	orch := newOrchestrator(t, pages, nil, llmClient, []lattice.Label{lattice.NewLabel("Internal", nil)}, lattice.NewLabel("Secret", nil))

	userLabel := lattice.NewLabel("Confidential", []string{"Untrusted"})
	_, err := orch.Run(context.Background(), "alpha", userLabel, []string{"https://a.test"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ifcerrors.ErrPolicyViolation))
	assert.Contains(t, err.Error(), "Confidential")
}

// S4 — Flow to user blocked.
func TestRun_S4_UserEgressBlocked(t *testing.T) {
	pages := map[string]storage.ScrapedContent{
		"https://a.test": {URL: "https://a.test", CleanText: "alpha some text here with inc and http www."},
	}
	llmClient := &llm.StaticLLM{External: false, Text: "answer"}
	orch := newOrchestrator(t, pages, nil, llmClient, nil, lattice.NewLabel("Public", nil))

	userLabel := lattice.NewLabel("Internal", nil)
	_, err := orch.Run(context.Background(), "alpha", userLabel, []string{"https://a.test"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ifcerrors.ErrPolicyViolation))
	assert.Contains(t, err.Error(), "exceeds user clearance")
}

func TestRun_FetchErrorAbortsRun(t *testing.T) {
	llmClient := &llm.StaticLLM{External: false, Text: "unused"}
	orch := newOrchestrator(t, map[string]storage.ScrapedContent{}, nil, llmClient, nil, lattice.NewLabel("Secret", nil))

	_, err := orch.Run(context.Background(), "alpha", lattice.NewLabel("Public", nil), []string{"https://missing.test"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ifcerrors.ErrFetch))
}

func TestRun_UnknownScrapeLabelLevelFails(t *testing.T) {
	llmClient := &llm.StaticLLM{External: false, Text: "unused"}
	orch := newOrchestrator(t, map[string]storage.ScrapedContent{}, nil, llmClient, nil, lattice.NewLabel("Secret", nil))

	badLabel := lattice.NewLabel("NotALevel", nil)
	_, err := orch.Run(context.Background(), "alpha", lattice.NewLabel("Public", nil), nil, &badLabel)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ifcerrors.ErrUnknownLevel))
}

func TestBuildPrompt_FormatsNumberedSources(t *testing.T) {
	retrieved := []retriever.RetrievedDocument{
		{ID: "1", URL: "https://a.test", TextSnippet: "snippet one"},
		{ID: "2", URL: "https://b.test", TextSnippet: "snippet two"},
	}
	prompt := buildPrompt("what is alpha?", retrieved)
	assert.Contains(t, prompt, "what is alpha?")
	assert.Contains(t, prompt, "[Source 1] (https://a.test)")
	assert.Contains(t, prompt, "[Source 2] (https://b.test)")
	assert.Contains(t, prompt, "snippet one")
	assert.Contains(t, prompt, "snippet two")
}

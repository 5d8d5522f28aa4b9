// Package agent implements the orchestrator of spec.md §4.6: the
// single entry point that drives a user query through
// scrape -> assess -> store -> retrieve -> LLM -> policy-gate,
// propagating IFC labels at every step.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ahjcgit/ifcagent/pkg/fetcher"
	"github.com/ahjcgit/ifcagent/pkg/ifcerrors"
	"github.com/ahjcgit/ifcagent/pkg/lattice"
	"github.com/ahjcgit/ifcagent/pkg/llm"
	"github.com/ahjcgit/ifcagent/pkg/policy"
	"github.com/ahjcgit/ifcagent/pkg/retriever"
	"github.com/ahjcgit/ifcagent/pkg/storage"
	"github.com/ahjcgit/ifcagent/pkg/trustparser"
)

var tracer = otel.Tracer("github.com/ahjcgit/ifcagent/pkg/agent")

const noResultsText = "No relevant or authorized documents were found for this query."

const promptHeader = "You are answering a question using only the sources provided below. Do not use outside knowledge.\n\nQuestion: "
const promptFooter = "\n\nAnswer concisely, citing sources by their [Source N] marker where relevant."

// AgentResult is the orchestrator's output: generated text and the
// label it carries, dominating the join of every input that shaped it.
type AgentResult struct {
	Text  string
	Label lattice.Label
}

// Orchestrator wires the seven components together. Construct once
// per process; the configuration is immutable after construction
// (spec.md §9 "Global state").
type Orchestrator struct {
	lattice   *lattice.Lattice
	parser    *trustparser.Parser
	fetcher   fetcher.Fetcher
	store     storage.Store
	retriever *retriever.Retriever
	policy    *policy.Engine
	llm       llm.Client
	ledger    *policy.DecisionLedger // optional, nil disables decision recording
}

// New builds an Orchestrator. ledger may be nil.
func New(
	lt *lattice.Lattice,
	parser *trustparser.Parser,
	f fetcher.Fetcher,
	store storage.Store,
	retr *retriever.Retriever,
	pol *policy.Engine,
	llmClient llm.Client,
	ledger *policy.DecisionLedger,
) *Orchestrator {
	return &Orchestrator{
		lattice:   lt,
		parser:    parser,
		fetcher:   f,
		store:     store,
		retriever: retr,
		policy:    pol,
		llm:       llmClient,
		ledger:    ledger,
	}
}

// Run implements spec.md §4.6's ten steps. scrapeLabel may be nil, in
// which case it defaults to userLabel (step 1).
func (o *Orchestrator) Run(ctx context.Context, userPrompt string, userLabel lattice.Label, urls []string, scrapeLabel *lattice.Label) (AgentResult, error) {
	ctx, span := tracer.Start(ctx, "agent.Run")
	defer span.End()

	effectiveScrapeLabel := userLabel
	if scrapeLabel != nil {
		effectiveScrapeLabel = *scrapeLabel
	}
	if !o.lattice.IsValidLevel(effectiveScrapeLabel.Level()) {
		err := fmt.Errorf("%w: scrape_label level %q", ifcerrors.ErrUnknownLevel, effectiveScrapeLabel.Level())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AgentResult{}, err
	}

	if err := o.scrapeAndStore(ctx, urls, effectiveScrapeLabel); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AgentResult{}, err
	}

	retrieved, err := o.retrieve(ctx, userPrompt, userLabel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AgentResult{}, err
	}

	if len(retrieved) == 0 {
		span.AddEvent("no_results")
		return AgentResult{Text: noResultsText, Label: userLabel}, nil
	}

	combinedLabel, err := o.combinedLabel(userLabel, retrieved)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AgentResult{}, err
	}

	prompt := buildPrompt(userPrompt, retrieved)

	result, err := o.generate(ctx, prompt, combinedLabel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AgentResult{}, err
	}
	return result, nil
}

// scrapeAndStore implements step 2: fetch -> parse -> join -> persist,
// in URL order, aborting on the first failure.
func (o *Orchestrator) scrapeAndStore(ctx context.Context, urls []string, scrapeLabel lattice.Label) error {
	ctx, span := tracer.Start(ctx, "agent.scrapeAndStore")
	defer span.End()
	span.SetAttributes(attribute.Int("url_count", len(urls)))

	for _, u := range urls {
		content, err := o.fetcher.Fetch(ctx, u)
		if err != nil {
			return err
		}

		assessment := o.parser.Parse(u, content.CleanText, content.RawHTML)

		finalLevel, err := o.lattice.JoinLevel(assessment.Label.Level(), scrapeLabel.Level())
		if err != nil {
			return err
		}
		finalCategories := append(append([]string{}, assessment.Label.Categories()...), scrapeLabel.Categories()...)
		finalLabel := lattice.NewLabel(finalLevel, finalCategories)

		_, _, err = o.store.Store(content, storage.TrustAssessment{
			Score:   assessment.Score,
			Label:   finalLabel,
			Signals: assessment.Signals,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// retrieve implements step 3.
func (o *Orchestrator) retrieve(ctx context.Context, userPrompt string, userLabel lattice.Label) ([]retriever.RetrievedDocument, error) {
	_, span := tracer.Start(ctx, "agent.retrieve")
	defer span.End()

	documents, err := o.store.LoadDocuments()
	if err != nil {
		return nil, err
	}
	assessments, err := o.store.LoadTrustAssessments()
	if err != nil {
		return nil, err
	}

	retrieved, err := o.retriever.Retrieve(userPrompt, documents, assessments, &userLabel, 3)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieved_count", len(retrieved)))
	return retrieved, nil
}

// combinedLabel implements step 5.
func (o *Orchestrator) combinedLabel(userLabel lattice.Label, retrieved []retriever.RetrievedDocument) (lattice.Label, error) {
	labels := make([]lattice.Label, 0, len(retrieved)+1)
	labels = append(labels, userLabel)
	for _, d := range retrieved {
		labels = append(labels, d.Label)
	}
	return o.lattice.JoinLabels(labels)
}

// buildPrompt implements step 6's fixed header/footer and numbered
// source formatting.
func buildPrompt(userPrompt string, retrieved []retriever.RetrievedDocument) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString(userPrompt)
	b.WriteString("\n\n")
	for i, d := range retrieved {
		b.WriteString(fmt.Sprintf("[Source %d] (%s)\n", i+1, d.URL))
		b.WriteString(truncate(d.TextSnippet, 2000))
		b.WriteString("\n\n")
	}
	b.WriteString(promptFooter)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// generate implements steps 7-10: the external-LLM gate, the call
// itself, and the user-egress gate.
func (o *Orchestrator) generate(ctx context.Context, prompt string, combinedLabel lattice.Label) (AgentResult, error) {
	ctx, span := tracer.Start(ctx, "agent.generate")
	defer span.End()

	if o.llm.IsExternal() {
		decision, err := o.policy.CanSendToExternalLLM(combinedLabel)
		if err != nil {
			return AgentResult{}, err
		}
		o.recordDecision("external_llm", combinedLabel, decision)
		if !decision.Allowed {
			return AgentResult{}, fmt.Errorf("%w: %s", ifcerrors.ErrPolicyViolation, decision.Reason)
		}
	}

	response, err := o.llm.Generate(ctx, prompt, combinedLabel)
	if err != nil {
		return AgentResult{}, err
	}

	decision, err := o.policy.CanSendToUser(response.Label)
	if err != nil {
		return AgentResult{}, err
	}
	o.recordDecision("user", response.Label, decision)
	if !decision.Allowed {
		return AgentResult{}, fmt.Errorf("%w: %s", ifcerrors.ErrPolicyViolation, decision.Reason)
	}

	span.SetAttributes(attribute.String("result_label", response.Label.String()))
	return AgentResult{Text: response.Text, Label: response.Label}, nil
}

func (o *Orchestrator) recordDecision(boundary string, payload lattice.Label, decision policy.Decision) {
	if o.ledger == nil {
		return
	}
	// Best-effort: a ledger failure must not abort an otherwise-valid
	// flow decision that has already been computed.
	_, _ = o.ledger.Record(time.Now(), boundary, payload, decision)
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/ahjcgit/ifcagent/internal/config"
	"github.com/ahjcgit/ifcagent/pkg/agent"
	"github.com/ahjcgit/ifcagent/pkg/fetcher"
	"github.com/ahjcgit/ifcagent/pkg/lattice"
	"github.com/ahjcgit/ifcagent/pkg/llm"
	"github.com/ahjcgit/ifcagent/pkg/policy"
	"github.com/ahjcgit/ifcagent/pkg/retriever"
	"github.com/ahjcgit/ifcagent/pkg/storage"
	"github.com/ahjcgit/ifcagent/pkg/trustparser"
)

// runAgentCommand implements `run_agent <config.json> <url> [url...]`
// (spec.md §6). The user prompt is read from stdin: the CLI surface
// names only a config path and URLs, so the query text has to come
// from somewhere else. The invoking user's label defaults to the
// lattice's lowest (least-privileged) level, since the CLI surface has
// no notion of an authenticated caller; `serve` derives a real
// user_label from JWT claims instead.
func runAgentCommand(args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewJSONHandler(stderr, nil))

	if len(args) < 2 {
		io.WriteString(stderr, "usage: ifcagent run_agent <config.json> <url> [url...]\n")
		return 1
	}

	configPath := args[0]
	urls := args[1:]
	for _, u := range urls {
		if !hasSchemeAndNetloc(u) {
			fmt.Fprintf(stderr, "usage: invalid url %q: missing scheme or host\n", u)
			return 1
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stdout, "[ERROR] %v\n", err)
		return 0
	}

	prompt, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(stdout, "[ERROR] reading prompt from stdin: %v\n", err)
		return 0
	}
	userPrompt := strings.TrimSpace(string(prompt))

	orch, userLabel, err := buildOrchestrator(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdout, "[ERROR] %v\n", err)
		return 0
	}

	result, err := orch.Run(context.Background(), userPrompt, userLabel, urls, nil)
	if err != nil {
		fmt.Fprintf(stdout, "[ERROR] %v\n", err)
		return 0
	}

	fmt.Fprintln(stdout, result.Text)
	return 0
}

func hasSchemeAndNetloc(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// buildOrchestrator wires every component from a loaded Config,
// matching the storage.backend and OPENAI_API_KEY selection rules of
// spec.md §6 / SPEC_FULL.md.
func buildOrchestrator(cfg *config.Config, logger *slog.Logger) (*agent.Orchestrator, lattice.Label, error) {
	lt := cfg.BuildLattice()
	userLabel := lattice.NewLabel(cfg.Lattice[0], nil)

	parser := trustparser.New(cfg.Tools.TrustedDomains, cfg.Tools.BlockedDomains)
	httpFetcher := fetcher.NewHTTPFetcher(cfg.Tools.UserAgent, 2, 4)

	store, err := buildStore(cfg)
	if err != nil {
		return nil, lattice.Label{}, err
	}

	retr := retriever.New(lt)

	lb := policy.NewLatticeBackend(lt, cfg.ExternalLLMAllowedLabels(), cfg.UserOutputMax.ToLabel())
	var extra policy.Backend
	if len(cfg.Policy.CELRules) > 0 {
		celBackend, err := policy.NewCELBackend(cfg.Policy.CELRules)
		if err != nil {
			return nil, lattice.Label{}, fmt.Errorf("policy: %w", err)
		}
		extra = celBackend
	}
	engine := policy.NewEngine(lb, extra)

	llmClient := selectLLMClient(cfg)

	logger.Info("orchestrator configured",
		"storage_backend", cfg.Storage.Backend,
		"llm_external", llmClient.IsExternal(),
	)

	orch := agent.New(lt, parser, httpFetcher, store, retr, engine, llmClient, nil)
	return orch, userLabel, nil
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Tools.StoragePath)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return storage.NewFileStore(cfg.Tools.StoragePath)
	}
}

// selectLLMClient implements spec.md §6's environment rule:
// OPENAI_API_KEY selects the external client if set, else local.
func selectLLMClient(cfg *config.Config) llm.Client {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		return llm.NewOpenAICompatibleLLM(cfg.OpenAICompatible.Model, cfg.OpenAICompatible.BaseURL, apiKey)
	}
	return llm.NewLocalLLM(cfg.Ollama.Model, cfg.Ollama.BaseURL)
}

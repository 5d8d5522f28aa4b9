package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ahjcgit/ifcagent/pkg/ifcerrors"
	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// LocalLLM speaks Ollama's /api/chat, the pack's recurring
// "local model" reference point. It is never external: it always
// returns output_label = input_label (spec.md §4.7).
type LocalLLM struct {
	model   string
	baseURL string
	client  *http.Client
}

// NewLocalLLM builds a LocalLLM against an Ollama-compatible endpoint.
func NewLocalLLM(model, baseURL string) *LocalLLM {
	return &LocalLLM{
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// IsExternal always reports false: a local model never crosses the
// external-LLM policy boundary.
func (l *LocalLLM) IsExternal() bool { return false }

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

// Generate posts a single-turn chat request and returns the model's
// reply, labeled exactly with inputLabel.
func (l *LocalLLM) Generate(ctx context.Context, prompt string, inputLabel lattice.Label) (Response, error) {
	reqBody := ollamaChatRequest{
		Model:    l.model,
		Stream:   false,
		Messages: []ollamaChatMessage{{Role: "user", Content: prompt}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("%w: encode request: %v", ifcerrors.ErrLLM, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("%w: build request: %v", ifcerrors.ErrLLM, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: request ollama: %v", ifcerrors.ErrLLM, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("%w: ollama returned status %d", ifcerrors.ErrLLM, resp.StatusCode)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Response{}, fmt.Errorf("%w: decode response: %v", ifcerrors.ErrLLM, err)
	}

	return Response{Text: chatResp.Message.Content, Label: inputLabel}, nil
}

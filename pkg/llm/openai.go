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

// OpenAICompatibleLLM talks to any OpenAI-chat-completions-compatible
// endpoint (OpenAI itself, or a local gateway exposing the same
// shape). It is always external: the orchestrator must clear the
// external-LLM policy gate before calling Generate (spec.md §4.7).
type OpenAICompatibleLLM struct {
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAICompatibleLLM builds a bearer-authenticated client.
func NewOpenAICompatibleLLM(model, baseURL, apiKey string) *OpenAICompatibleLLM {
	return &OpenAICompatibleLLM{
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// IsExternal always reports true.
func (o *OpenAICompatibleLLM) IsExternal() bool { return true }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionChoice struct {
	Message chatMessage `json:"message"`
}

type chatCompletionResponse struct {
	Choices []chatCompletionChoice `json:"choices"`
}

// Generate issues a single-turn chat completion request. The returned
// label is exactly inputLabel: this client makes the conservative
// choice spec.md §4.7 permits, rather than trusting any label the
// remote model might claim to emit.
func (o *OpenAICompatibleLLM) Generate(ctx context.Context, prompt string, inputLabel lattice.Label) (Response, error) {
	reqBody := chatCompletionRequest{
		Model:    o.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("%w: encode request: %v", ifcerrors.ErrLLM, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("%w: build request: %v", ifcerrors.ErrLLM, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: request %s: %v", ifcerrors.ErrLLM, o.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("%w: %s returned status %d", ifcerrors.ErrLLM, o.baseURL, resp.StatusCode)
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return Response{}, fmt.Errorf("%w: decode response: %v", ifcerrors.ErrLLM, err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: empty choices in response", ifcerrors.ErrLLM)
	}

	return Response{Text: completion.Choices[0].Message.Content, Label: inputLabel}, nil
}

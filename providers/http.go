package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/voicecollect/callcore/logger"
	"github.com/voicecollect/callcore/types"
)

const defaultChatURL = "https://api.openai.com/v1/chat/completions"

// HTTPProvider generates turns through an OpenAI-compatible chat
// completions endpoint. The model is instructed to reply with a JSON
// object; the body of the first choice is returned verbatim as the raw
// turn for downstream validation.
type HTTPProvider struct {
	id     string
	model  string
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPProvider creates a chat-completions backed provider. The API
// key is read from OPENAI_API_KEY, falling back to LLM_API_KEY. An
// empty baseURL selects the default endpoint.
func NewHTTPProvider(id, model, baseURL string) *HTTPProvider {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("LLM_API_KEY")
	}
	url := baseURL
	if url == "" {
		url = defaultChatURL
	}
	return &HTTPProvider{
		id:     id,
		model:  model,
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// ID returns the provider identifier.
func (p *HTTPProvider) ID() string { return p.id }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float32       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
}

// GenerateTurn sends the conversation to the completion endpoint and
// returns the model's structured turn payload.
func (p *HTTPProvider) GenerateTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	if len(req.Transcript) == 0 {
		return TurnResponse{}, ErrEmptyTranscript
	}

	params := DefaultParams()
	if req.Temperature > 0 {
		params.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}

	body := chatCompletionRequest{
		Model:       p.model,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Messages:    buildMessages(req.System, req.Transcript),
	}
	body.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(body)
	if err != nil {
		return TurnResponse{}, NewProviderError(p.id, "marshal request", err, false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return TurnResponse{}, NewProviderError(p.id, "build request", err, false)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return TurnResponse{}, NewProviderError(p.id, "chat completion", err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
		return TurnResponse{}, NewProviderError(p.id, "chat completion", err, resp.StatusCode >= 500)
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return TurnResponse{}, NewProviderError(p.id, "decode response", err, false)
	}
	if len(completion.Choices) == 0 {
		return TurnResponse{}, NewProviderError(p.id, "decode response",
			fmt.Errorf("no choices returned"), false)
	}

	latency := time.Since(start)
	logger.Debug("turn generated",
		"provider", p.id,
		"model", completion.Model,
		"latency_ms", latency.Milliseconds())

	return TurnResponse{
		RawTurn: json.RawMessage(completion.Choices[0].Message.Content),
		Model:   completion.Model,
		Latency: latency,
	}, nil
}

// Close releases idle HTTP connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// buildMessages maps the call transcript to chat roles. The debtor
// speaks as the user; the agent's prior turns come back as assistant
// messages so the model sees its own history.
func buildMessages(system string, transcript []types.Utterance) []chatMessage {
	msgs := make([]chatMessage, 0, len(transcript)+1)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	for _, u := range transcript {
		role := "user"
		if u.Speaker == types.SpeakerAgent {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: u.Text})
	}
	return msgs
}

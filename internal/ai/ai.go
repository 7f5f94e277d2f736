// Package ai proposes flashcards from text using an OpenRouter chat model.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/decksmith/internal/dedupe"
	"github.com/conorfennell/decksmith/internal/domain"
)

const (
	apiURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel = "anthropic/claude-3-haiku"

	// Longer texts are truncated before prompting; the model only needs
	// enough material for 15 cards.
	maxContentLen = 3000
)

const systemPrompt = `Eres un experto en enseñanza de español como lengua extranjera. Genera tarjetas de estudio (flashcards) del texto proporcionado para estudiantes de nivel B1-C1.

Reglas:
- Máximo 15 tarjetas por texto
- Solo palabras/frases de nivel B1-C1 (evita muy básicas o muy avanzadas)
- Front: palabra/frase + contexto mínimo (máximo 80 caracteres)
- Back: traduccion en ingles y explicación en español simple
- Context: frase del texto original (máximo 500 caracteres)
- Enfócate en vocabulario útil y expresiones comunes
- Evita nombres propios, tecnicismos muy específicos
- Cada tarjeta debe ser muy distinta de las otras

Formato JSON:
{
  "cards": [
    {
      "front": "palabra/frase (contexto breve)",
      "back": "significado o explicación",
      "context": "frase original del texto"
    }
  ]
}`

// Client calls the OpenRouter chat-completions API to generate card
// candidates. It pre-filters its own output against the fronts it is
// given, but callers own the final deduplication pass.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClient creates a proposer client. model may be empty to use the
// default.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: apiURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Propose generates card candidates for the content at the given level.
// Candidates whose normalized front is already in existing are dropped,
// and at most 15 are returned.
func (c *Client) Propose(ctx context.Context, content, level string, existing map[string]struct{}) ([]domain.Candidate, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("AI service not configured: missing API key")
	}

	if len(content) > maxContentLen {
		content = content[:maxContentLen] + "..."
	}
	userPrompt := fmt.Sprintf("Genera flashcards del siguiente texto en español:\n\n%s\n\nNivel objetivo: %s", content, level)

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call AI service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AI service returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read AI response: %w", err)
	}

	var reply chatResponse
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, fmt.Errorf("decode AI response: %w", err)
	}
	if len(reply.Choices) == 0 {
		return nil, fmt.Errorf("AI response contained no choices")
	}

	candidates, err := parseCards(reply.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	// Filter against a copy: the caller runs its own pass over the same
	// set, so recording kept fronts here would make it drop everything.
	taken := maps.Clone(existing)
	if taken == nil {
		taken = make(map[string]struct{})
	}
	kept := dedupe.Filter(taken, candidates)
	slog.Info("AI generation complete",
		"model", c.model,
		"generated", len(candidates),
		"unique", len(kept),
	)
	return kept, nil
}

// parseCards extracts the JSON card envelope from a model reply, which
// may wrap it in extra prose.
func parseCards(reply string) ([]domain.Candidate, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("AI reply contains no JSON object")
	}

	var envelope struct {
		Cards []domain.Candidate `json:"cards"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &envelope); err != nil {
		return nil, fmt.Errorf("AI returned invalid JSON: %w", err)
	}
	return envelope.Cards, nil
}

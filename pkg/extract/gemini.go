package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quotemine/pkg/domain"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const geminiSystemPrompt = `You are an editor selecting quotations from book pages.
Analyze the page text and pick 1-2 key ideas that would interest entrepreneurs, marketers, and course creators.
Each quote must be a complete, self-contained thought: it has a beginning and an end, is understandable without the surrounding context, and carries practical value.
Never return tables of contents, acknowledgements, links, or chapter headings.
Respond with strict JSON: {"quotes": [{"quote", "original", "summary", "translated", "engaging", "category", "style", "confidence", "target_audience"}]}.
Keep each quote under 250 characters. confidence is a number from 0 to 1.`

// GeminiExtractor extracts candidate quotes via the Google AI Studio API.
type GeminiExtractor struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiExtractor constructs an extractor with the provided API key.
func NewGeminiExtractor(apiKey, model string) (*GeminiExtractor, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiExtractor{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Extract asks the model for candidate quotes on one page.
func (g *GeminiExtractor) Extract(ctx context.Context, book domain.Book, page domain.PageText) ([]RawCandidate, error) {
	userPrompt := fmt.Sprintf("Book: %s by %s (topic: %s)\nPage %d:\n%s",
		book.Title, book.Author, book.Topic, page.Number, truncatePrompt(page.Text, 6000))
	reqBody := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: geminiSystemPrompt}}},
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
	}
	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, normalizeModel(g.model), g.apiKey)
	if err := g.doJSON(ctx, url, reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from gemini")
	}
	return parseQuotesJSON(resp.Candidates[0].Content.Parts[0].Text)
}

// parseQuotesJSON decodes the model reply, tolerating markdown code fences.
func parseQuotesJSON(raw string) ([]RawCandidate, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	var payload struct {
		Quotes []RawCandidate `json:"quotes"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return payload.Quotes, nil
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	return strings.TrimPrefix(model, "models/")
}

func truncatePrompt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func (g *GeminiExtractor) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("gemini api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("gemini api error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

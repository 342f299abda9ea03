package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iconidentify/mediagrabba/internal/config"
	"github.com/iconidentify/mediagrabba/internal/domain"
)

// maxKeywords caps both model-provided and fallback keyword lists.
const maxKeywords = 15

// Client produces AI enrichment for posts.
type Client interface {
	// AnalyzePost summarizes a post and extracts sentiment and keywords.
	AnalyzePost(ctx context.Context, req PostAnalysisRequest) (*domain.PostAnalysis, error)
}

// PostAnalysisRequest contains information for analyzing a post.
type PostAnalysisRequest struct {
	PostID         domain.PostID
	Text           string
	AuthorUsername string
	ImageCount     int
	VideoCount     int
	VideoDuration  int // seconds, longest video
}

// HTTPClient implements Client using HTTP requests to the Grok API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a new Grok API client.
func NewClient(cfg config.GrokConfig) *HTTPClient {
	return &HTTPClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
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
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// analysisAnswer is the JSON shape the model is asked to return.
type analysisAnswer struct {
	Summary   string `json:"summary"`
	Sentiment *struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"sentiment"`
	Keywords []string `json:"keywords"`
}

const analysisSystemPrompt = `You are a content analyzer that extracts searchable metadata from social media posts.
Return your analysis as JSON with these fields:
- summary: 1-2 sentence description of what the post shows or discusses
- sentiment: object with "label" (one of "positive", "neutral", "negative") and "score" between -1 and 1
- keywords: array of 5-15 searchable keywords (people, places, objects, events, concepts)

Example output:
{"summary":"Launch footage of a reusable rocket landing at sea","sentiment":{"label":"positive","score":0.7},"keywords":["rocket","launch","landing","spaceflight","booster"]}

Return ONLY valid JSON, no markdown, no explanation.`

// AnalyzePost implements Client.
func (c *HTTPClient) AnalyzePost(ctx context.Context, req PostAnalysisRequest) (*domain.PostAnalysis, error) {
	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: buildAnalysisPrompt(req)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAnalysisFailed, err)
	}
	return parseAnalysis(content, req.Text), nil
}

// complete sends one chat-completions request and returns the first choice.
func (c *HTTPClient) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from Grok")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// parseAnalysis decodes the model answer. Unparsable answers degrade to the
// post text plus keywords pulled from it, with no sentiment.
func parseAnalysis(content, postText string) *domain.PostAnalysis {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var answer analysisAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil || answer.Summary == "" {
		summary := strings.TrimSpace(postText)
		if summary == "" {
			summary = content
		}
		return &domain.PostAnalysis{
			Summary:  summary,
			Keywords: extractBasicKeywords(postText),
		}
	}

	out := &domain.PostAnalysis{
		Summary:  strings.TrimSpace(answer.Summary),
		Keywords: normalizeKeywords(answer.Keywords),
	}
	if answer.Sentiment != nil && answer.Sentiment.Label != "" {
		out.Sentiment = &domain.Sentiment{
			Label: strings.ToLower(strings.TrimSpace(answer.Sentiment.Label)),
			Score: clampScore(answer.Sentiment.Score),
		}
	}
	return out
}

func buildAnalysisPrompt(req PostAnalysisRequest) string {
	var sb strings.Builder
	sb.WriteString("Analyze this post and extract searchable metadata:\n\n")
	if req.AuthorUsername != "" {
		sb.WriteString(fmt.Sprintf("Author: @%s\n", req.AuthorUsername))
	}

	if req.Text != "" {
		sb.WriteString(fmt.Sprintf("Post text: %q\n", req.Text))
	} else {
		sb.WriteString("Post text: (no text, media only)\n")
	}

	switch {
	case req.VideoCount > 0 && req.VideoDuration > 0:
		sb.WriteString(fmt.Sprintf("Media: %d video(s), longest %d seconds\n", req.VideoCount, req.VideoDuration))
	case req.VideoCount > 0:
		sb.WriteString(fmt.Sprintf("Media: %d video(s)\n", req.VideoCount))
	case req.ImageCount > 0:
		sb.WriteString(fmt.Sprintf("Media: %d image(s)\n", req.ImageCount))
	}

	sb.WriteString("\nBased on the author, text, and media, infer what this post likely shows or discusses.")
	return sb.String()
}

func normalizeKeywords(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
		if len(out) >= maxKeywords {
			break
		}
	}
	return out
}

func clampScore(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

func extractBasicKeywords(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	var keywords []string
	seen := make(map[string]bool)

	for _, word := range words {
		word = strings.Trim(word, ".,!?\"'()[]{}:;")
		if strings.HasPrefix(word, "http") || strings.HasPrefix(word, "@") {
			continue
		}
		word = strings.TrimPrefix(word, "#")
		if len(word) < 3 || len(word) > 30 || commonWords[word] {
			continue
		}
		if !seen[word] {
			seen[word] = true
			keywords = append(keywords, word)
		}
		if len(keywords) >= 10 {
			break
		}
	}
	return keywords
}

var commonWords = map[string]bool{
	"the": true, "are": true, "was": true, "were": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true,
	"must": true, "shall": true, "can": true, "and": true, "but": true, "nor": true,
	"for": true, "yet": true, "from": true, "into": true, "with": true, "this": true,
	"that": true, "these": true, "those": true, "its": true, "you": true, "your": true,
	"our": true, "they": true, "their": true, "she": true, "his": true, "her": true,
	"just": true, "like": true, "get": true, "got": true, "all": true, "when": true,
	"what": true, "who": true, "how": true, "why": true, "where": true, "which": true,
	"there": true, "here": true, "not": true,
}

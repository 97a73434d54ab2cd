package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"labelbot/internal/domain"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Item is a sample the model should classify.
type Item struct {
	Index       int
	Instruction string
	Output      string
}

func (i Item) text() string {
	return strings.TrimSpace(i.Instruction + " " + i.Output)
}

// Suggestion is a proposed label. It is shown to labelers, never written to
// the ledger.
type Suggestion struct {
	Label      domain.Label
	Confidence float64
	FromGuide  bool
}

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"
const maxBatchConcurrency = 4

type completer func(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)

// ModelName returns the configured model or the provider default.
func ModelName(cfg Config) string {
	if cfg.LLMModel != "" {
		return cfg.LLMModel
	}
	if cfg.LLMProvider == "openai" {
		return defaultOpenAIModel
	}
	return defaultAnthropicModel
}

// SuggestLabels asks the configured provider for a label per item. Examples
// are already-labeled samples used as few-shot context.
func SuggestLabels(ctx context.Context, cfg Config, items []Item, examples []Example) (map[int]Suggestion, Usage, error) {
	guide, err := loadGuideIfConfigured(cfg)
	if err != nil {
		return nil, Usage{}, err
	}
	model := ModelName(cfg)
	var call completer
	switch cfg.LLMProvider {
	case "anthropic":
		call = func(ctx context.Context, system, user string) (string, Usage, error) {
			return callAnthropic(ctx, cfg.AnthropicAPIKey, model, system, user)
		}
	case "openai":
		call = func(ctx context.Context, system, user string) (string, Usage, error) {
			return callOpenAI(ctx, cfg.OpenAIAPIKey, model, system, user)
		}
	default:
		return nil, Usage{}, fmt.Errorf("label suggestions are disabled (llm_provider=%s)", cfg.LLMProvider)
	}
	log.Printf("llm suggest provider=%s model=%s items=%d examples=%d", cfg.LLMProvider, model, len(items), len(examples))
	return suggestWith(ctx, cfg, items, examples, guide, call)
}

func suggestWith(ctx context.Context, cfg Config, items []Item, examples []Example, guide *LabelGuide, call completer) (map[int]Suggestion, Usage, error) {
	if len(items) == 0 {
		return nil, Usage{}, nil
	}

	batchSize := cfg.LLMBatchSize
	if batchSize < 1 {
		batchSize = 20
	}
	var idx *tfidfIndex
	if len(examples) > 0 {
		idx = buildTFIDFIndex(examples)
	}

	var batches [][]Item
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		batches = append(batches, items[start:end])
	}

	type batchResult struct {
		suggestions map[int]Suggestion
		usage       Usage
		err         error
	}
	results := make([]batchResult, len(batches))
	sem := make(chan struct{}, llmBatchConcurrencyLimit(len(batches)))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(n int, batch []Item) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var batchExamples []Example
			if idx != nil {
				queries := make([]string, 0, len(batch))
				for _, item := range batch {
					queries = append(queries, item.text())
				}
				exampleCount := cfg.LLMExampleCount
				if exampleCount < 1 {
					exampleCount = 20
				}
				batchExamples = idx.topKForBatch(queries, exampleCount)
			}
			systemPrompt, userPrompt := buildPrompts(cfg, batch, batchExamples, guide)
			text, usage, err := call(ctx, systemPrompt, userPrompt)
			if err != nil {
				results[n] = batchResult{usage: usage, err: err}
				return
			}
			parsed, err := parseSuggestionResponse(text)
			if err != nil {
				results[n] = batchResult{usage: usage, err: err}
				return
			}
			applyGuideOverrides(batch, parsed, guide)
			results[n] = batchResult{suggestions: parsed, usage: usage}
		}(i, batch)
	}
	wg.Wait()

	all := make(map[int]Suggestion, len(items))
	total := Usage{}
	for _, r := range results {
		total.Add(r.usage)
		if r.err != nil {
			return nil, total, r.err
		}
		for index, s := range r.suggestions {
			all[index] = s
		}
	}
	return all, total, nil
}

func llmBatchConcurrencyLimit(batches int) int {
	if batches < 1 {
		return 1
	}
	return min(batches, maxBatchConcurrency)
}

type suggestionItem struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func parseSuggestionResponse(responseText string) (map[int]Suggestion, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var items []suggestionItem
	if err := json.Unmarshal([]byte(responseText), &items); err != nil {
		return nil, fmt.Errorf("parsing LLM label response: %w (response: %s)", err, responseText)
	}
	out := make(map[int]Suggestion, len(items))
	for _, it := range items {
		label, err := domain.ParseLabel(it.Label)
		if err != nil || label.IsUnset() {
			log.Printf("llm suggestion skipped index=%d label=%q", it.Index, it.Label)
			continue
		}
		conf := it.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		out[it.Index] = Suggestion{Label: label, Confidence: conf}
	}
	return out, nil
}

// --- Anthropic ---

func callAnthropic(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, Usage, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(externalHTTPClient),
	)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d", len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

var openAIEndpoint = "https://api.openai.com/v1/chat/completions"

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func callOpenAI(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, Usage, error) {
	bodyBytes, err := json.Marshal(openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", Usage{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}
	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := Usage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}

	log.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d", len(openAIResp.Choices[0].Message.Content), usage.InputTokens, usage.OutputTokens)
	return openAIResp.Choices[0].Message.Content, usage, nil
}

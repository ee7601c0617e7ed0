// Package llm wraps the OpenAI API behind the extraction operations the
// pipeline needs: link extraction, event extraction, merge decisions and
// embeddings.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/topicwatch/topicwatch/internal/config"
	"github.com/topicwatch/topicwatch/internal/models"
)

const (
	maxRetries     = 3
	baseRetryDelay = 1 * time.Second
	maxTokens      = 4000
)

// OpenAIClient implements Client against the OpenAI API using JSON-mode
// chat completions.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	timeout        time.Duration
	logger         *slog.Logger
}

func NewOpenAIClient(cfg config.OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	return &OpenAIClient{
		client:         openai.NewClient(cfg.APIKey),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		timeout:        cfg.Timeout,
		logger:         logger,
	}
}

func (c *OpenAIClient) ExtractLinks(ctx context.Context, topic models.Topic, pageMarkdown string) ([]CandidateLink, error) {
	system := linkExtractionSystemPrompt(topic.Name, topic.Description, topic.Country)

	raw, err := c.completeJSON(ctx, "extract_links", system, pageMarkdown)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Sources []struct {
			URL   string  `json:"url"`
			Title *string `json:"title"`
			Date  *string `json:"date"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decoding link extraction response: %w", err)
	}

	links := make([]CandidateLink, 0, len(payload.Sources))
	for _, src := range payload.Sources {
		if src.URL == "" {
			continue
		}
		link := CandidateLink{URL: src.URL}
		if src.Title != nil {
			link.Title = strings.TrimSpace(*src.Title)
		}
		if src.Date != nil && *src.Date != "" {
			if t, _, err := parseEventDate(*src.Date); err == nil {
				link.Date = &t
			}
		}
		links = append(links, link)
	}
	return links, nil
}

func (c *OpenAIClient) ExtractEvents(ctx context.Context, topic models.Topic, language string, publishDate time.Time, pageMarkdown string) ([]CandidateEvent, error) {
	if language == "" {
		language = "English"
	}
	system := eventExtractionSystemPrompt(
		topic.Name, topic.Description, topic.Country, language,
		time.Now(), publishDate)

	raw, err := c.completeJSON(ctx, "extract_events", system, pageMarkdown)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Events []struct {
			Title           string   `json:"title"`
			Description     string   `json:"description"`
			Date            string   `json:"date"`
			CountryCode     *string  `json:"country_code"`
			Location        *string  `json:"location"`
			Significance    float64  `json:"significance"`
			Duration        *string  `json:"duration"`
			AdditionalInfos []struct {
				InfoName  string `json:"info_name"`
				InfoValue string `json:"info_value"`
			} `json:"additional_infos"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decoding event extraction response: %w", err)
	}

	events := make([]CandidateEvent, 0, len(payload.Events))
	for _, ev := range payload.Events {
		if ev.Title == "" || ev.Date == "" {
			c.logger.Warn("dropping extracted event without title or date", "title", ev.Title)
			continue
		}
		date, _, err := parseEventDate(ev.Date)
		if err != nil {
			c.logger.Warn("dropping extracted event with unparseable date",
				"title", ev.Title, "date", ev.Date, "error", err)
			continue
		}

		candidate := CandidateEvent{
			Title:        strings.TrimSpace(ev.Title),
			Description:  strings.TrimSpace(ev.Description),
			Date:         date,
			Significance: clampUnit(ev.Significance),
		}
		if ev.CountryCode != nil {
			candidate.CountryCode = strings.ToUpper(strings.TrimSpace(*ev.CountryCode))
		}
		if ev.Location != nil {
			candidate.Location = strings.TrimSpace(*ev.Location)
		}
		if ev.Duration != nil && *ev.Duration != "" {
			if d, err := parseISODuration(*ev.Duration); err == nil && d > 0 {
				candidate.Duration = &d
			}
		}
		if len(ev.AdditionalInfos) > 0 {
			candidate.Notes = make(map[string]string, len(ev.AdditionalInfos))
			for _, info := range ev.AdditionalInfos {
				if info.InfoName == "" || info.InfoValue == "" {
					continue
				}
				candidate.Notes[info.InfoName] = info.InfoValue
			}
			if len(candidate.Notes) == 0 {
				candidate.Notes = nil
			}
		}
		events = append(events, candidate)
	}
	return events, nil
}

func (c *OpenAIClient) MergeDecision(ctx context.Context, title1, desc1, title2, desc2 string) (*MergeResult, error) {
	raw, err := c.completeJSON(ctx, "merge_decision", mergeSystemPrompt,
		mergeUserPrompt(title1, desc1, title2, desc2))
	if err != nil {
		return nil, err
	}

	var payload struct {
		IsSameEvent       bool    `json:"is_same_event"`
		MergedTitle       *string `json:"merged_title"`
		MergedDescription *string `json:"merged_description"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decoding merge decision response: %w", err)
	}

	result := &MergeResult{SameEvent: payload.IsSameEvent}
	if payload.MergedTitle != nil {
		result.MergedTitle = strings.TrimSpace(*payload.MergedTitle)
	}
	if payload.MergedDescription != nil {
		result.MergedDescription = strings.TrimSpace(*payload.MergedDescription)
	}
	if result.SameEvent && result.MergedTitle == "" {
		// A same-event verdict without merged wording keeps the second
		// event's wording upstream; signal it so callers can fall back.
		c.logger.Warn("merge verdict missing merged title")
	}
	return result, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) (models.Vector, error) {
	apiCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(apiCtx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	raw := resp.Data[0].Embedding
	vector := make(models.Vector, len(raw))
	for i, v := range raw {
		vector[i] = float64(v)
	}
	return vector, nil
}

// completeJSON runs one JSON-mode chat completion with retry on rate limits.
func (c *OpenAIClient) completeJSON(ctx context.Context, operation, systemPrompt, userPrompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			delay += time.Duration(rand.Int63n(int64(delay / 2)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		apiCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(apiCtx, openai.ChatCompletionRequest{
			Model:               c.model,
			Temperature:         c.temperature,
			MaxCompletionTokens: maxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		cancel()

		c.logger.Debug("completion finished",
			"operation", operation,
			"attempt", attempt+1,
			"duration_ms", time.Since(start).Milliseconds(),
			"success", err == nil)

		if err != nil {
			lastErr = err
			if isRateLimited(err) && attempt < maxRetries-1 {
				c.logger.Warn("rate limited, retrying", "operation", operation, "attempt", attempt+1)
				continue
			}
			return "", fmt.Errorf("%s completion: %w", operation, err)
		}

		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s completion returned no choices", operation)
		}
		return stripJSONFences(resp.Choices[0].Message.Content), nil
	}

	return "", fmt.Errorf("%s completion: %w", operation, lastErr)
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") ||
		strings.Contains(msg, "rate limit")
}

// stripJSONFences removes markdown code fencing some models emit despite
// JSON mode.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"DigestScheduler/internal/config"
	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/ports"
)

// ChatGPTClient implements ports.ReportGenerator backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	maxArticles  int
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ ports.ReportGenerator = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig, logger *slog.Logger) *ChatGPTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = 8
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		maxArticles:  cfg.MaxArticles,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// GenerateReport asks the model for a pickup line and summary per topic. A topic
// that fails gets fallback text; the report fails only when no topic succeeds.
func (c *ChatGPTClient) GenerateReport(ctx context.Context, profile domain.UserProfile, content domain.ContentSet) (domain.Report, error) {
	if c == nil {
		return domain.Report{}, errors.New("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.Report{}, errors.New("chatgpt client misconfigured")
	}

	language := content.Language
	if language == "" {
		language = profile.Language
	}
	report := domain.Report{UserID: profile.UserID, Language: language}

	var lastErr error
	generated := 0
	for _, topic := range content.Topics {
		if err := ctx.Err(); err != nil {
			return domain.Report{}, err
		}
		if len(topic.Articles) == 0 {
			report.Topics = append(report.Topics, fallbackTopic(topic.Topic))
			continue
		}

		tr, err := c.topicReport(ctx, topic, language)
		if err != nil {
			lastErr = err
			c.logger.Warn("topic report failed", "user_id", profile.UserID, "topic", topic.Topic, "error", err)
			report.Topics = append(report.Topics, fallbackTopic(topic.Topic))
			continue
		}
		generated++
		report.Topics = append(report.Topics, tr)
	}

	if generated == 0 {
		if lastErr == nil {
			lastErr = errors.New("no topic had articles")
		}
		return domain.Report{}, errors.Wrap(lastErr, "no topic report generated")
	}
	return report, nil
}

func fallbackTopic(topic string) domain.TopicReport {
	return domain.TopicReport{
		Topic:      topic,
		PickupLine: fmt.Sprintf("Discover the latest %s developments and trends.", topic),
		Summary:    fmt.Sprintf("# %s\n\nReport generation failed. Please try again.", topic),
		Fallback:   true,
	}
}

type topicReply struct {
	PickupLine string `json:"pickup_line"`
	Summary    string `json:"summary"`
}

func (c *ChatGPTClient) topicReport(ctx context.Context, topic domain.TopicContent, language string) (domain.TopicReport, error) {
	raw, err := c.complete(ctx, buildTopicPrompt(topic, language, c.maxArticles))
	if err != nil {
		return domain.TopicReport{}, err
	}

	var reply topicReply
	if err := json.Unmarshal([]byte(stripFence(raw)), &reply); err != nil {
		return domain.TopicReport{}, errors.Wrap(err, "decode topic report")
	}
	reply.PickupLine = strings.TrimSpace(reply.PickupLine)
	reply.Summary = strings.TrimSpace(reply.Summary)
	if reply.PickupLine == "" || reply.Summary == "" {
		return domain.TopicReport{}, errors.Newf("incomplete report for topic %s", topic.Topic)
	}
	return domain.TopicReport{Topic: topic.Topic, PickupLine: reply.PickupLine, Summary: reply.Summary}, nil
}

func buildTopicPrompt(topic domain.TopicContent, language string, maxArticles int) string {
	if language == "" {
		language = "en"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nLanguage: %s\n\n", topic.Topic, language)
	b.WriteString("Write in the given language. Respond with a JSON object with keys ")
	b.WriteString(`"pickup_line" (one engaging sentence to entice the user to open the digest) and `)
	b.WriteString(`"summary" (a markdown summary of the articles, a few short paragraphs).`)
	b.WriteString("\n\nArticles:\n")

	for i, a := range topic.Articles {
		if i >= maxArticles {
			break
		}
		text := a.Body
		if text == "" {
			text = a.Snippet
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n%s\n\n", i+1, a.Title, a.Source, truncate(text, 1200))
	}
	return b.String()
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatGPTClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal chatgpt payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "send completion")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Newf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errors.Wrap(err, "decode completion")
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("chatgpt returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a news editor writing short digests."
	}
	return prompt
}

// stripFence removes a ```json fence some models wrap around JSON output.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "..."
}

// Package lookup asks an OpenAI-compatible chat model to explain a word.
package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/vocabsync/internal/domain"
)

// Defaults for an unconfigured client.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
)

var (
	// ErrNotConfigured is returned before any request when no API key is set.
	ErrNotConfigured = errors.New("lookup API key is not configured")
	ErrEmptyWord     = errors.New("word is empty")
	ErrEmptyResponse = errors.New("model returned no content")
)

// Config points the client at a chat-completions endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client explains words.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

// New creates a Client, filling defaults for empty fields.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, now: time.Now}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Lookup returns a plain-language explanation of word, stamped with the current time.
func (c *Client) Lookup(ctx context.Context, word string) (domain.Word, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return domain.Word{}, ErrEmptyWord
	}
	if !c.Configured() {
		return domain.Word{}, ErrNotConfigured
	}

	content, err := c.complete(ctx, prompt(word))
	if err != nil {
		return domain.Word{}, err
	}
	w, err := parseWord(content, word)
	if err != nil {
		return domain.Word{}, err
	}
	w.Timestamp = domain.Millis(c.now())
	return w, nil
}

func (c *Client) complete(ctx context.Context, content string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read lookup response: %w", err)
	}

	var out chatResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("lookup API error: %s", out.Error.Message)
		}
		return "", fmt.Errorf("lookup API request failed with status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode lookup response: %w", decodeErr)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

// StripFences removes a surrounding markdown code fence, with or without a json tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = rest
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseWord(content, original string) (domain.Word, error) {
	var w domain.Word
	if err := json.Unmarshal([]byte(StripFences(content)), &w); err != nil {
		return domain.Word{}, fmt.Errorf("failed to parse lookup result: %w", err)
	}
	if w.OriginalWord == "" {
		w.OriginalWord = original
	}
	if w.UsageScenarios == nil {
		w.UsageScenarios = []string{}
	}
	w.Category = domain.NormalizeCategory(w.Category)
	return w, nil
}

func prompt(word string) string {
	categories := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		categories = append(categories, string(c))
	}
	return `你是一个大白话翻译专家。请将以下词汇翻译成通俗易懂的大白话解释。

词汇：` + word + `

请按以下 JSON 格式返回（不要包含 markdown 代码块标记）：
{
  "originalWord": "原词",
  "plainExplanation": "用最简单的话解释这个词是什么意思",
  "lifeAnalogy": "用一个生活中的比喻来说明",
  "essenceExplanation": "这个词的本质是什么",
  "usageScenarios": ["场景1", "场景2", "场景3"],
  "englishWord": "对应的英文单词或短语",
  "phonetic": "英文音标",
  "category": "从以下分类中选择最合适的一个：` + strings.Join(categories, "、") + `"
}

要求：
1. 解释要通俗易懂，像跟朋友聊天一样
2. 比喻要生动形象，贴近日常生活
3. 场景要具体，让人一看就知道什么时候用
4. 如果输入是中文，提供对应英文；如果输入是英文，提供中文解释`
}

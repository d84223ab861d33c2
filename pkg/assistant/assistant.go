// Package assistant asks an OpenAI-compatible chat-completion endpoint for a
// second opinion on a message and parses the reply into a typed result.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"go-threatnet/pkg/models"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1/"
	DefaultModel   = "llama-3.3-70b-versatile"
)

var ErrNoCredential = errors.New("assistant: no api key configured")

const systemPrompt = `You are a cybersecurity expert. Analyze the user's message for spam and threats.
CRITICAL:
1. "Hi" or normal chat is SAFE.
2. "Verify account", "Bitcoin", "Urgent" are THREATS.
3. Return JSON ONLY.`

const userPromptFormat = `Analyze this %s message:
"%s"

Respond with JSON:
{
  "threat_type": "Phishing|Malware|Ransomware|SQL Injection|DDoS|Spam|Legitimate",
  "confidence": 0.95,
  "spam_score": 85,
  "explanation": "Reasoning...",
  "caution": "Warning if any",
  "precautions": ["Step 1", "Step 2"],
  "solution": "Fix...",
  "attack_flow": { "source": "...", "vulnerability": "...", "impact": "..." }
}`

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// Client 外部大模型客户端，不做重试，超时由调用方的 context 控制
type Client struct {
	api         openai.Client
	model       string
	temperature float64
}

// New 没有 API key 时返回 ErrNoCredential，调用方据此关闭该信号
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	api := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	)
	return &Client{api: api, model: cfg.Model, temperature: cfg.Temperature}, nil
}

// Analyze 发送固定的系统提示词和包含原文的用户提示词，解析返回内容
func (c *Client) Analyze(ctx context.Context, text, messageType string) (*models.AIResult, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(UserPrompt(text, messageType)),
		},
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrNoJSON)
	}
	return ParseReply(resp.Choices[0].Message.Content)
}

// UserPrompt 拼出用户提示词
func UserPrompt(text, messageType string) string {
	if messageType == "" {
		messageType = "email"
	}
	return fmt.Sprintf(userPromptFormat, messageType, text)
}

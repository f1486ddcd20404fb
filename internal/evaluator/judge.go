package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// JudgeRequest is what the judgment service sees: the clause and the fact, nothing else.
type JudgeRequest struct {
	Condition   string
	Description string
	Type        models.ObligationType
	Fact        *models.LiveFact
}

// JudgeResult is a judgment service answer. Outcome is never empty.
type JudgeResult struct {
	Outcome   models.Outcome
	Rationale string
}

// Judge decides qualitative clauses. Implementations must honour ctx cancellation.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (JudgeResult, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, req JudgeRequest) (JudgeResult, error)

func (f JudgeFunc) Judge(ctx context.Context, req JudgeRequest) (JudgeResult, error) {
	return f(ctx, req)
}

const judgeSystemPrompt = `You are a contract compliance analyst. You receive one contract obligation clause and a JSON record of live operational metrics for the counterparty over a time window.
Decide only from the metrics given. If they do not let you decide, answer "unknown".
Respond with a single JSON object and nothing else:
{"status": "compliant" | "non_compliant" | "unknown", "rationale": "<one or two sentences citing the metric values>"}`

type judgeResponse struct {
	Status    string `json:"status"`
	Rationale string `json:"rationale"`
}

// OpenAIJudge asks an OpenAI-compatible chat model for a verdict.
type OpenAIJudge struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	log         *slog.Logger
}

// NewOpenAIJudge builds a judge from config. BaseURL allows compatible gateways.
func NewOpenAIJudge(cfg config.AIConfig, log *slog.Logger) (*OpenAIJudge, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai.api_key is required for the judgment service")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIJudge{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         log.With("component", "openai_judge"),
	}, nil
}

// Judge implements Judge.
func (j *OpenAIJudge) Judge(ctx context.Context, req JudgeRequest) (JudgeResult, error) {
	factJSON, err := json.MarshalIndent(req.Fact, "", "  ")
	if err != nil {
		return JudgeResult{}, fmt.Errorf("encode fact: %w", err)
	}
	var user strings.Builder
	fmt.Fprintf(&user, "Obligation type: %s\n", req.Type)
	if req.Description != "" {
		fmt.Fprintf(&user, "Obligation: %s\n", req.Description)
	}
	fmt.Fprintf(&user, "Condition: %s\n\nLive data:\n%s\n", req.Condition, factJSON)

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user.String()},
		},
		MaxTokens:   j.maxTokens,
		Temperature: j.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return JudgeResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return JudgeResult{}, errors.New("chat completion returned no choices")
	}
	return parseJudgeResponse(resp.Choices[0].Message.Content)
}

// parseJudgeResponse maps the model's JSON answer onto an outcome. Anything
// unrecognised is indeterminate, never compliant.
func parseJudgeResponse(content string) (JudgeResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var r judgeResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &r); err != nil {
		return JudgeResult{}, fmt.Errorf("malformed judgment response: %w", err)
	}
	res := JudgeResult{Rationale: strings.TrimSpace(r.Rationale)}
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case "compliant":
		res.Outcome = models.OutcomeCompliant
	case "non_compliant", "non-compliant", "noncompliant", "breached":
		res.Outcome = models.OutcomeBreached
	default:
		res.Outcome = models.OutcomeIndeterminate
	}
	return res, nil
}

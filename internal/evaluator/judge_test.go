package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/pkg/models"
)

func TestParseJudgeResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		outcome models.Outcome
		wantErr bool
	}{
		{"compliant", `{"status":"compliant","rationale":"ok"}`, models.OutcomeCompliant, false},
		{"non compliant", `{"status":"non_compliant","rationale":"no orders"}`, models.OutcomeBreached, false},
		{"hyphenated", `{"status":"Non-Compliant"}`, models.OutcomeBreached, false},
		{"unknown", `{"status":"unknown"}`, models.OutcomeIndeterminate, false},
		{"unexpected status", `{"status":"probably fine"}`, models.OutcomeIndeterminate, false},
		{"fenced", "```json\n{\"status\":\"compliant\"}\n```", models.OutcomeCompliant, false},
		{"not json", "I think it is compliant", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseJudgeResponse(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
		})
	}
}

func TestNewOpenAIJudgeRequiresKey(t *testing.T) {
	_, err := NewOpenAIJudge(config.AIConfig{Model: "gpt-4o-mini"}, discardLog)
	assert.Error(t, err)
}

func TestOpenAIJudge(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": `{"status":"non_compliant","rationale":"transaction_count is 0 for the window"}`,
				},
			}},
		})
	}))
	defer srv.Close()

	judge, err := NewOpenAIJudge(config.AIConfig{
		APIKey:    "test-key",
		BaseURL:   srv.URL + "/v1",
		Model:     "gpt-4o-mini",
		MaxTokens: 200,
	}, discardLog)
	require.NoError(t, err)

	res, err := judge.Judge(context.Background(), JudgeRequest{
		Condition: "Customer must remain active every month",
		Type:      models.ObligationTypeSLA,
		Fact: &models.LiveFact{
			Operation: models.OperationTransactionActivity,
			Party:     "CUST-007",
			Metrics:   map[string]any{"transaction_count": 0.0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeBreached, res.Outcome)
	assert.Contains(t, res.Rationale, "transaction_count")

	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
	format, _ := gotBody["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIJudgeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	judge, err := NewOpenAIJudge(config.AIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"}, discardLog)
	require.NoError(t, err)
	_, err = judge.Judge(context.Background(), JudgeRequest{Condition: "x", Fact: &models.LiveFact{}})
	assert.Error(t, err)
}

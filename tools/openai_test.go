package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"balcao/apperrors"
	"balcao/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponder_Reply(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"output":[
			{"type":"reasoning"},
			{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Temos sim!"},{"type":"output_text","text":"Algo mais?"}]}
		]}`))
	}))
	defer srv.Close()

	r := NewResponder(config.OpenAI{ApiKey: "k", SystemPrompt: "Seja breve."})
	r.BaseURL = srv.URL
	out, err := r.Reply(context.Background(), ReplyContext{BusinessName: "Padaria Sol", Text: "tem pão?"})
	require.NoError(t, err)
	assert.Equal(t, "Temos sim!\nAlgo mais?", out)
	assert.Equal(t, "gpt-4.1-mini", req["model"])
	assert.Equal(t, "tem pão?", req["input"])
	assert.Contains(t, req["instructions"], "Padaria Sol")
}

func TestResponder_MissingKey(t *testing.T) {
	_, err := NewResponder(config.OpenAI{}).Reply(context.Background(), ReplyContext{Text: "oi"})
	assert.True(t, apperrors.Is(err, apperrors.CodeConfiguration))
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"balcao/apperrors"
	"balcao/config"

	"github.com/pkg/errors"
)

const openAIBaseURL = "https://api.openai.com/v1"

// ReplyContext is what the responder knows about the conversation.
type ReplyContext struct {
	TenantID     int64
	BusinessName string
	Phase        string
	OrderSummary string // filled once the intake reached "ready"
	Text         string
}

// Responder calls the OpenAI Responses API and returns assistant text.
type Responder struct {
	ApiKey       string
	Model        string
	SystemPrompt string
	BaseURL      string
	HTTP         *http.Client
}

func NewResponder(c config.OpenAI) *Responder {
	return &Responder{ApiKey: c.ApiKey, Model: c.Model, SystemPrompt: c.SystemPrompt}
}

func (r *Responder) instructions(rc ReplyContext) string {
	var b strings.Builder
	b.WriteString(r.SystemPrompt)
	if rc.BusinessName != "" {
		fmt.Fprintf(&b, "\nVocê atende em nome de %s.", rc.BusinessName)
	}
	if rc.OrderSummary != "" {
		b.WriteString("\nO cliente já informou entrega e pagamento:\n")
		b.WriteString(rc.OrderSummary)
		b.WriteString("\nAjude a montar a lista de produtos, sem pedir esses dados de novo.")
	}
	return b.String()
}

func (r *Responder) Reply(ctx context.Context, rc ReplyContext) (string, error) {
	apiKey := strings.TrimSpace(r.ApiKey)
	if apiKey == "" {
		return "", apperrors.Configuration("openai.api_key não configurada")
	}
	model := r.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}

	reqBody := map[string]any{
		"model":        model,
		"instructions": r.instructions(rc),
		"input":        rc.Text,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.Wrap(err, "openai: marshal")
	}

	base := r.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/responses", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	client := r.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Errorf("openai error %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Output []struct {
			Type    string `json:"type"`
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.Wrap(err, "openai: decode")
	}

	var sb strings.Builder
	for _, item := range parsed.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && strings.TrimSpace(c.Text) != "" {
					if sb.Len() > 0 {
						sb.WriteString("\n")
					}
					sb.WriteString(c.Text)
				}
			}
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("empty response from model (no output_text items found)")
	}
	return out, nil
}

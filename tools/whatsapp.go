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

	"github.com/pkg/errors"
)

const graphBaseURL = "https://graph.facebook.com"

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("whatsapp api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Credentials are one tenant's Cloud API credentials (models.WhatsAppConfig).
type Credentials struct {
	PhoneNumberID string
	AccessToken   string
	ApiVersion    string
}

func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.PhoneNumberID) != "" && strings.TrimSpace(c.AccessToken) != ""
}

// SendResult is what the provider reports for an accepted message.
type SendResult struct {
	ProviderMessageID string    `json:"providerMessageId"`
	RemoteIdentity    string    `json:"remoteIdentity"`
	Timestamp         time.Time `json:"timestamp"`
}

// WhatsAppClient is a thin client for WhatsApp Cloud API calls that are tenant-specific.
type WhatsAppClient struct {
	AccessToken   string
	ApiVersion    string // e.g. v24.0
	PhoneNumberID string
	BaseURL       string // tests point this at httptest
	HTTP          *http.Client
}

func ClientFor(c Credentials) WhatsAppClient {
	return WhatsAppClient{AccessToken: c.AccessToken, ApiVersion: c.ApiVersion, PhoneNumberID: c.PhoneNumberID}
}

func graphPost(ctx context.Context, hc *http.Client, baseURL, apiVersion, node, path, token string, body, out any) error {
	if strings.TrimSpace(apiVersion) == "" {
		apiVersion = "v24.0"
	}
	if baseURL == "" {
		baseURL = graphBaseURL
	}
	url := fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(baseURL, "/"), strings.TrimSpace(apiVersion), strings.TrimSpace(node), strings.TrimPrefix(path, "/"))

	var b []byte
	if body != nil {
		var err error
		if b, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, "whatsapp: marshal body")
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	req.Header.Set("Content-Type", "application/json")

	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "whatsapp: decode response")
}

func (c WhatsAppClient) post(ctx context.Context, path string, body, out any) error {
	return graphPost(ctx, c.HTTP, c.BaseURL, c.ApiVersion, c.PhoneNumberID, path, c.AccessToken, body, out)
}

// SendText sends a text message. Phone numbers are normalised; anything that
// does not look like one (group ids) goes out as given.
func (c WhatsAppClient) SendText(ctx context.Context, to, text string) (SendResult, error) {
	recipient := strings.TrimSpace(to)
	if recipient == "" {
		return SendResult{}, apperrors.Validation("destinatário vazio")
	}
	if !IsGroupAddress(recipient) {
		if phone, err := NormalizePhone(recipient); err == nil {
			recipient = phone
		}
	}

	var parsed struct {
		Contacts []struct {
			Input string `json:"input"`
			WaID  string `json:"wa_id"`
		} `json:"contacts"`
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	err := c.post(ctx, "messages", map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipient,
		"type":              "text",
		"text": map[string]any{
			"body": text,
		},
	}, &parsed)
	if err != nil {
		return SendResult{}, err
	}

	res := SendResult{RemoteIdentity: recipient, Timestamp: time.Now().UTC()}
	if len(parsed.Messages) > 0 {
		res.ProviderMessageID = parsed.Messages[0].ID
	}
	if len(parsed.Contacts) > 0 && parsed.Contacts[0].WaID != "" {
		res.RemoteIdentity = parsed.Contacts[0].WaID
	}
	if res.ProviderMessageID == "" {
		return SendResult{}, errors.New("whatsapp: response without message id")
	}
	return res, nil
}

// CloudAPIProvider is the delivery adapter used by the dispatch runner.
type CloudAPIProvider struct {
	BaseURL string
	HTTP    *http.Client
}

func (p CloudAPIProvider) SendText(ctx context.Context, creds Credentials, to, text string) (SendResult, error) {
	if !creds.Valid() {
		return SendResult{}, apperrors.Configuration("credenciais do WhatsApp não configuradas")
	}
	c := ClientFor(creds)
	c.BaseURL = p.BaseURL
	c.HTTP = p.HTTP
	return c.SendText(ctx, to, text)
}

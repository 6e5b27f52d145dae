package tools

import (
	"context"
	"strings"

	"balcao/apperrors"
)

// Cloud API number onboarding: request_code -> register (PIN) -> subscribed_apps.

var codeMethods = map[string]bool{"SMS": true, "VOICE": true}

// RequestCode asks Meta to send the verification code to the business number.
// Defaults: SMS, pt_BR.
func (c WhatsAppClient) RequestCode(ctx context.Context, method, language string) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "SMS"
	}
	if !codeMethods[method] {
		return apperrors.Validation("code_method deve ser SMS ou VOICE")
	}
	if language = strings.TrimSpace(language); language == "" {
		language = "pt_BR"
	}
	return c.post(ctx, "request_code", map[string]any{
		"code_method": method,
		"language":    language,
	}, nil)
}

func (c WhatsAppClient) Register(ctx context.Context, pin string) error {
	pin = strings.TrimSpace(pin)
	if len(pin) != 6 || strings.Trim(pin, "0123456789") != "" {
		return apperrors.Validation("pin deve ter 6 dígitos")
	}
	return c.post(ctx, "register", map[string]any{
		"messaging_product": "whatsapp",
		"pin":               pin,
	}, nil)
}

// SubscribeWABA subscribes the app to the tenant's business account so
// inbound messages reach /api/webhook/:tenantId.
func (c WhatsAppClient) SubscribeWABA(ctx context.Context, wabaID string) error {
	if strings.TrimSpace(wabaID) == "" {
		return apperrors.Validation("waba_id é obrigatório")
	}
	return graphPost(ctx, c.HTTP, c.BaseURL, c.ApiVersion, wabaID, "subscribed_apps", c.AccessToken, nil, nil)
}

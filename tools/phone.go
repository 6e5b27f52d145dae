package tools

import (
	"strings"
	"unicode"

	"balcao/apperrors"
)

// IsGroupAddress reports whether to is a group/JID style address ("...@g.us").
// Those are sent as given.
func IsGroupAddress(to string) bool {
	return strings.Contains(to, "@")
}

// NormalizePhone reduces a Brazilian or international number to the digits-only
// E.164 form the Cloud API expects (no '+'). DDD+number (10/11 digits) gets the
// 55 country code; a "00" international prefix is dropped.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperrors.Validation("telefone vazio")
	}
	phone := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if strings.HasPrefix(phone, "00") {
		phone = phone[2:]
	}
	// trunk prefix: 0 + DDD + number
	phone = strings.TrimLeft(phone, "0")

	switch n := len(phone); {
	case n == 10 || n == 11:
		phone = "55" + phone
	case n < 12 || n > 15:
		return "", apperrors.Validation("telefone inválido: " + raw)
	}
	return phone, nil
}

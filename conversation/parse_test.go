package conversation

import (
	"testing"

	"balcao/models"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "cartao de credito", fold("  Cartão   de Crédito "))
	assert.Equal(t, "nao quero", fold("NÃO quero"))
}

func TestMenuSelection(t *testing.T) {
	menu := DefaultMenu()
	opt, ok := menuSelection("2", menu)
	assert.True(t, ok)
	assert.Equal(t, ActionProducts, opt.Action)

	opt, ok = menuSelection("04)", menu)
	assert.True(t, ok)
	assert.Equal(t, ActionHuman, opt.Action)

	_, ok = menuSelection("9", menu)
	assert.False(t, ok)
	_, ok = menuSelection("2 coxinhas", menu)
	assert.False(t, ok)
}

func TestIntentAndDecline(t *testing.T) {
	for _, s := range []string{"quero pedir", "Queria fazer um pedido", "da pra encomendar um bolo?", "pedido"} {
		assert.True(t, isOrderIntent(fold(s)), s)
	}
	for _, s := range []string{"meu pedido chegou?", "qual o horário?"} {
		assert.False(t, isOrderIntent(fold(s)), s)
	}
	for _, s := range []string{"não quero pedir agora", "agora não", "Não, obrigado", "deixa pra depois", "desisto"} {
		assert.True(t, isDecline(fold(s)), s)
	}
	for _, s := range []string{"não tem mais coxinha?", "pix, na entrega", "quero pedir"} {
		assert.False(t, isDecline(fold(s)), s)
	}
}

func TestParseOrderType(t *testing.T) {
	cases := map[string]string{
		"delivery":             models.ORDER_TYPE_DELIVERY,
		"pode entregar":        models.ORDER_TYPE_DELIVERY,
		"1":                    models.ORDER_TYPE_DELIVERY,
		"vou retirar":          models.ORDER_TYPE_PICKUP,
		"2":                    models.ORDER_TYPE_PICKUP,
		"passo aí pra buscar":  models.ORDER_TYPE_PICKUP,
		"tanto faz":            "",
		"entrega ou retirada?": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseOrderType(fold(in)), in)
	}
}

func TestParseAddress(t *testing.T) {
	addr, nb, ok := parseAddress("Rua X,  bairro Y")
	assert.True(t, ok)
	assert.Equal(t, "Rua X, bairro Y", addr)
	assert.Equal(t, "Y", nb)

	addr, nb, ok = parseAddress("Av. Brasil 100, Bairro: Centro. Casa 2")
	assert.True(t, ok)
	assert.Equal(t, "Centro", nb)
	assert.Contains(t, addr, "Av. Brasil")

	_, _, ok = parseAddress("12")
	assert.False(t, ok)
}

func TestParsePayment(t *testing.T) {
	type want struct{ method, timing string }
	cases := map[string]want{
		"pix, na entrega":   {models.PAYMENT_METHOD_PIX, models.PAYMENT_TIMING_ON_DELIVERY},
		"Cartão de crédito": {models.PAYMENT_METHOD_CARD, ""},
		"dinheiro":          {models.PAYMENT_METHOD_CASH, models.PAYMENT_TIMING_ON_DELIVERY},
		"pago agora no pix": {models.PAYMENT_METHOD_PIX, models.PAYMENT_TIMING_NOW},
		"na retirada":       {"", models.PAYMENT_TIMING_ON_DELIVERY},
		"ainda não sei":     {"", ""},
	}
	for in, w := range cases {
		m, tm := parsePayment(fold(in))
		assert.Equal(t, w.method, m, in)
		assert.Equal(t, w.timing, tm, in)
	}
}

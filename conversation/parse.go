package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"balcao/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lower-cases s and strips diacritics so "Cartão" and "cartao" match the
// same pattern.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

var (
	reMenuDigit = regexp.MustCompile(`^(\d{1,2})\s*[).:-]?$`)

	reOrderIntent = regexp.MustCompile(`\b(quero|queria|gostaria de|vou|posso|pode|da pra|tem como|fazer|faz)\b.*\b(pedir|pedido|encomendar|encomenda|comprar)\b` +
		`|^(pedir|pedido|fazer pedido|encomenda|encomendar)\W*$`)

	// negation followed by an immediacy marker: "agora não", "não quero mais", "deixa pra depois"
	reDecline = regexp.MustCompile(`\b(nao|nem)\s+(quero|vou|preciso|vai dar|da)\b.*\b(agora|hoje|mais|no momento|por enquanto)\b` +
		`|\b(agora|hoje|no momento|por enquanto)\s+nao\b` +
		`|^nao,?\s+obrigad[oa]\b` +
		`|\b(deixa|fica)\s+(pra|para)\s+(depois|outra hora|amanha)\b` +
		`|^(desisto|cancela|cancelar|esquece)\W*$`)

	reDelivery = regexp.MustCompile(`\b(delivery|entrega|entregar|entregam|entregue|manda|mandar|motoboy)\b|^1\W*$`)
	rePickup   = regexp.MustCompile(`\b(retirada|retirar|retiro|buscar|busco|pegar|pego|balcao|passo ai|vou ai)\b|^2\W*$`)

	reNeighborhood = regexp.MustCompile(`(?i)bairro\s*:?\s*([^,.;\n]+)`)

	rePix       = regexp.MustCompile(`\bpix\b`)
	reCard      = regexp.MustCompile(`\b(cartao|credito|debito|card|maquininha)\b`)
	reCash      = regexp.MustCompile(`\b(dinheiro|especie|cash|nota)\b`)
	reOnDeliver = regexp.MustCompile(`\b(na entrega|na retirada|ao receber|quando chegar|quando receber|na hora|no local)\b`)
	rePayNow    = regexp.MustCompile(`\b(agora|antecipado|adiantado|ja pago|pago antes|pagar antes|antes)\b`)
)

// menuSelection returns the option chosen by a bare number ("2", "2)").
func menuSelection(folded string, menu []MenuOption) (MenuOption, bool) {
	m := reMenuDigit.FindStringSubmatch(folded)
	if m == nil {
		return MenuOption{}, false
	}
	key := strings.TrimLeft(m[1], "0")
	for _, opt := range menu {
		if strings.TrimLeft(opt.Key, "0") == key {
			return opt, true
		}
	}
	return MenuOption{}, false
}

func isOrderIntent(folded string) bool { return reOrderIntent.MatchString(folded) }

func isDecline(folded string) bool { return reDecline.MatchString(folded) }

// parseOrderType returns "" when the text names neither or both modes.
func parseOrderType(folded string) string {
	d, p := reDelivery.MatchString(folded), rePickup.MatchString(folded)
	switch {
	case d && !p:
		return models.ORDER_TYPE_DELIVERY
	case p && !d:
		return models.ORDER_TYPE_PICKUP
	}
	return ""
}

// parseAddress keeps the raw text as the address and pulls the neighborhood
// out of a "bairro X" fragment when present.
func parseAddress(text string) (address, neighborhood string, ok bool) {
	address = strings.Join(strings.Fields(text), " ")
	letters := 0
	for _, r := range address {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 3 {
		return "", "", false
	}
	if m := reNeighborhood.FindStringSubmatch(address); m != nil {
		neighborhood = strings.TrimSpace(m[1])
	}
	return address, neighborhood, true
}

func parsePayment(folded string) (method, timing string) {
	switch {
	case rePix.MatchString(folded):
		method = models.PAYMENT_METHOD_PIX
	case reCard.MatchString(folded):
		method = models.PAYMENT_METHOD_CARD
	case reCash.MatchString(folded):
		method = models.PAYMENT_METHOD_CASH
	}
	switch {
	case reOnDeliver.MatchString(folded):
		timing = models.PAYMENT_TIMING_ON_DELIVERY
	case rePayNow.MatchString(folded):
		timing = models.PAYMENT_TIMING_NOW
	}
	if method == models.PAYMENT_METHOD_CASH && timing == "" {
		timing = models.PAYMENT_TIMING_ON_DELIVERY
	}
	return method, timing
}

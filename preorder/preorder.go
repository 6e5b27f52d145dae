// Package preorder stores structured order drafts produced by the
// conversation machine or by operators. Totals are always derived from items
// and delivery; expiry is applied lazily whenever a record is read.
package preorder

import (
	"strings"
	"time"

	"balcao/apperrors"
	"balcao/models"
)

// Money values are integer cents.
type Item struct {
	ProductID         int64  `json:"productId"`
	NameSnapshot      string `json:"nameSnapshot"`
	Qty               int    `json:"qty"`
	UnitPriceSnapshot int64  `json:"unitPriceSnapshot"`
	Notes             string `json:"notes,omitempty"`
}

type Delivery struct {
	Mode    string `json:"mode"`
	Fee     int64  `json:"fee"`
	Address string `json:"address,omitempty"`
}

type Payment struct {
	Mode  string `json:"mode"`
	PixQr string `json:"pixQr,omitempty"`
}

type Totals struct {
	Subtotal    int64 `json:"subtotal"`
	DeliveryFee int64 `json:"deliveryFee"`
	Total       int64 `json:"total"`
}

type HistoryEntry struct {
	Ts     time.Time `json:"ts"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Reason string    `json:"reason,omitempty"`
}

type Preorder struct {
	ID         int64          `json:"id"`
	TenantID   int64          `json:"tenantId"`
	ContactID  string         `json:"contactId"`
	Identifier string         `json:"identifier"`
	Items      []Item         `json:"items"`
	Delivery   Delivery       `json:"delivery"`
	Payment    Payment        `json:"payment"`
	Totals     Totals         `json:"totals"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	UpdatedBy  string         `json:"updatedBy"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
	History    []HistoryEntry `json:"history"`
}

// ComputeTotals derives totals; the delivery fee only counts for delivery orders.
func ComputeTotals(items []Item, d Delivery) Totals {
	var t Totals
	for _, it := range items {
		t.Subtotal += int64(it.Qty) * it.UnitPriceSnapshot
	}
	if d.Mode == models.DELIVERY_MODE_DELIVERY {
		t.DeliveryFee = d.Fee
	}
	t.Total = t.Subtotal + t.DeliveryFee
	return t
}

// expirable: only open drafts ever expire.
func expirable(status string) bool {
	return status == models.PREORDER_STATUS_DRAFT || status == models.PREORDER_STATUS_AWAITING_HUMAN
}

func validActor(actor string) bool {
	switch actor {
	case models.ACTOR_BOT, models.ACTOR_HUMAN, models.ACTOR_SYSTEM:
		return true
	}
	return false
}

func validateItems(items []Item) error {
	for i := range items {
		items[i].NameSnapshot = strings.TrimSpace(items[i].NameSnapshot)
		if items[i].Qty <= 0 {
			return apperrors.Validation("qty deve ser maior que zero")
		}
		if items[i].UnitPriceSnapshot < 0 {
			return apperrors.Validation("unitPriceSnapshot não pode ser negativo")
		}
		if items[i].NameSnapshot == "" && items[i].ProductID <= 0 {
			return apperrors.Validation("item precisa de productId ou nameSnapshot")
		}
	}
	return nil
}

func validateDelivery(d *Delivery) error {
	d.Address = strings.TrimSpace(d.Address)
	if d.Mode == "" {
		d.Mode = models.DELIVERY_MODE_PICKUP
	}
	if d.Mode != models.DELIVERY_MODE_PICKUP && d.Mode != models.DELIVERY_MODE_DELIVERY {
		return apperrors.Validation("delivery.mode inválido: " + d.Mode)
	}
	if d.Fee < 0 {
		return apperrors.Validation("delivery.fee não pode ser negativo")
	}
	return nil
}

func validatePayment(p *Payment) error {
	if p.Mode == "" {
		p.Mode = models.PAYMENT_METHOD_CASH
	}
	switch p.Mode {
	case models.PAYMENT_METHOD_CASH, models.PAYMENT_METHOD_PIX, models.PAYMENT_METHOD_CARD:
		return nil
	}
	return apperrors.Validation("payment.mode inválido: " + p.Mode)
}

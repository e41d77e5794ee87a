// Package extraction turns raw AI output into a validated candidate receipt.
// The normalizer is a pure transform: it never drops partial or low-confidence
// data, it only flags it, so a human can correct the draft later.
package extraction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"splitsnap/internal/models"
	"splitsnap/internal/money"
)

// ErrMalformedExtraction means the AI response is structurally unusable: not
// a parseable record at all. Partial data is not malformed.
var ErrMalformedExtraction = errors.New("malformed extraction")

// minorUnitExponent is the number of minor-unit digits assumed for declared
// amounts. Every supported currency here uses two.
const minorUnitExponent = 2

// Result is the best-effort content extracted from one receipt image. Nil
// declared amounts were not extracted (or failed validation); warnings carry
// what a reviewer needs to know.
type Result struct {
	Merchant string
	Currency string
	Items    []models.LineItem
	Subtotal *money.Money
	Tax      *money.Money
	Tip      *money.Money
	Discount *money.Money
	Total    *money.Money
	Warnings []models.Warning
}

// Normalizer validates raw extractions into receipt draft content.
type Normalizer struct {
	// ConfidenceThreshold flags fields the AI itself was unsure about.
	// Warnings are advisory and never block the pipeline.
	ConfidenceThreshold float64
	// DefaultCurrency is used when the AI did not report a currency.
	DefaultCurrency string
}

// Normalize converts a raw extraction into draft content. The only hard
// failure is a structurally unusable input; everything else degrades to
// warnings plus zero-confidence fields.
func (n *Normalizer) Normalize(raw *models.RawExtraction) (*Result, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedExtraction)
	}
	if len(raw.Items) == 0 && raw.Total == "" && raw.Subtotal == "" {
		return nil, fmt.Errorf("%w: no items and no declared amounts", ErrMalformedExtraction)
	}

	res := &Result{
		Merchant: strings.TrimSpace(string(raw.Merchant)),
		Currency: n.currency(raw),
	}

	overall := 1.0
	if raw.Confidence != nil {
		overall = clamp01(*raw.Confidence)
	}
	if overall < n.ConfidenceThreshold {
		res.warn("receipt", fmt.Sprintf("overall extraction confidence %.2f below threshold %.2f", overall, n.ConfidenceThreshold))
	}

	for i, ri := range raw.Items {
		res.Items = append(res.Items, n.normalizeItem(res, i, ri, overall))
	}

	res.Subtotal = n.amount(res, "subtotal", raw.Subtotal)
	res.Tax = n.amount(res, "tax", raw.Tax)
	res.Tip = n.amount(res, "tip", raw.Tip)
	res.Discount = n.amount(res, "discount", raw.Discount)
	res.Total = n.amount(res, "total", raw.Total)

	return res, nil
}

func (n *Normalizer) normalizeItem(res *Result, idx int, ri models.RawItem, overall float64) models.LineItem {
	field := fmt.Sprintf("items[%d]", idx)

	confidence := overall
	if ri.Confidence != nil {
		confidence = clamp01(*ri.Confidence)
	}

	item := models.LineItem{
		ID:          uuid.New(),
		Description: strings.TrimSpace(string(ri.Name)),
		Quantity:    1,
		Confidence:  confidence,
	}
	if item.Description == "" {
		res.warn(field+".name", "item has no description")
		item.Confidence = 0
	}

	if qty, ok := ri.Quantity.Int(); ok && qty > 0 {
		item.Quantity = qty
	} else if ri.Quantity != "" {
		res.warn(field+".quantity", fmt.Sprintf("quantity %q is not a positive integer, assuming 1", ri.Quantity))
		item.Confidence = 0
	}

	price, err := money.Parse(string(ri.UnitPrice), res.Currency, minorUnitExponent)
	if err != nil {
		res.warn(field+".unit_price", fmt.Sprintf("unit price %q does not parse as a decimal amount", ri.UnitPrice))
		item.Confidence = 0
		price = money.Zero(res.Currency)
	}
	item.UnitPrice = price

	if item.Confidence < n.ConfidenceThreshold && item.Confidence > 0 {
		res.warn(field, fmt.Sprintf("confidence %.2f below threshold %.2f", item.Confidence, n.ConfidenceThreshold))
	}

	return item
}

// amount parses one declared amount; a missing field stays nil, an
// unparseable one becomes nil plus a warning so review can fill it in.
func (n *Normalizer) amount(res *Result, field string, v models.FlexString) *money.Money {
	if v == "" {
		return nil
	}
	m, err := money.Parse(string(v), res.Currency, minorUnitExponent)
	if err != nil {
		res.warn(field, fmt.Sprintf("declared %s %q does not parse as a decimal amount", field, v))
		return nil
	}
	return &m
}

func (n *Normalizer) currency(raw *models.RawExtraction) string {
	c := strings.ToUpper(strings.TrimSpace(string(raw.Currency)))
	if len(c) == 3 {
		return c
	}
	return n.DefaultCurrency
}

func (r *Result) warn(field, msg string) {
	r.Warnings = append(r.Warnings, models.Warning{Field: field, Message: msg})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package extraction

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"splitsnap/internal/models"
)

func newNormalizer() *Normalizer {
	return &Normalizer{ConfidenceThreshold: 0.5, DefaultCurrency: "USD"}
}

func decodeRaw(t *testing.T, payload string) *models.RawExtraction {
	t.Helper()
	var raw models.RawExtraction
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal raw extraction: %v", err)
	}
	return &raw
}

func TestNormalizeWellFormed(t *testing.T) {
	raw := decodeRaw(t, `{
		"merchant": "Luigi's",
		"currency": "usd",
		"items": [
			{"name": "Margherita", "quantity": 2, "unit_price": "12.50", "confidence": 0.95},
			{"name": "Tiramisu", "quantity": "1", "unit_price": 6.00}
		],
		"subtotal": "31.00",
		"tax": "2.48",
		"tip": 5,
		"total": "38.48",
		"confidence": 0.9
	}`)

	res, err := newNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	if res.Merchant != "Luigi's" {
		t.Errorf("merchant = %q", res.Merchant)
	}
	if res.Currency != "USD" {
		t.Errorf("currency = %q, want USD", res.Currency)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(res.Items))
	}
	if res.Items[0].UnitPrice.Amount != 1250 || res.Items[0].Quantity != 2 {
		t.Errorf("item[0] = %+v", res.Items[0])
	}
	if res.Items[0].Confidence != 0.95 {
		t.Errorf("item[0] confidence = %v, want 0.95", res.Items[0].Confidence)
	}
	// Item without its own confidence inherits the overall score.
	if res.Items[1].Confidence != 0.9 {
		t.Errorf("item[1] confidence = %v, want 0.9", res.Items[1].Confidence)
	}
	if res.Subtotal == nil || res.Subtotal.Amount != 3100 {
		t.Errorf("subtotal = %v", res.Subtotal)
	}
	if res.Tip == nil || res.Tip.Amount != 500 {
		t.Errorf("tip = %v", res.Tip)
	}
	if res.Discount != nil {
		t.Errorf("discount = %v, want nil for missing field", res.Discount)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestNormalizeBadFieldsArePassedThrough(t *testing.T) {
	raw := decodeRaw(t, `{
		"items": [
			{"name": "Mystery", "quantity": "a few", "unit_price": "twelve"},
			{"name": "", "quantity": 1, "unit_price": "3.00"}
		],
		"subtotal": "not-a-number",
		"total": "15.00"
	}`)

	res, err := newNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	// Unparseable fields are kept with zero confidence, never dropped.
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2 (partial data must not be dropped)", len(res.Items))
	}
	if res.Items[0].Confidence != 0 {
		t.Errorf("item with bad price: confidence = %v, want 0", res.Items[0].Confidence)
	}
	if res.Items[0].UnitPrice.Amount != 0 {
		t.Errorf("item with bad price: amount = %d, want 0", res.Items[0].UnitPrice.Amount)
	}
	if res.Items[0].Quantity != 1 {
		t.Errorf("item with bad quantity: quantity = %d, want default 1", res.Items[0].Quantity)
	}
	if res.Items[1].Confidence != 0 {
		t.Errorf("item without description: confidence = %v, want 0", res.Items[1].Confidence)
	}
	if res.Subtotal != nil {
		t.Errorf("unparseable subtotal = %v, want nil", res.Subtotal)
	}
	if res.Total == nil || res.Total.Amount != 1500 {
		t.Errorf("total = %v, want 15.00", res.Total)
	}

	wantWarnings := []string{"items[0].quantity", "items[0].unit_price", "items[1].name", "subtotal"}
	for _, field := range wantWarnings {
		found := false
		for _, w := range res.Warnings {
			if strings.HasPrefix(w.Field, field) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing warning for %q, got %v", field, res.Warnings)
		}
	}
}

func TestNormalizeLowOverallConfidence(t *testing.T) {
	raw := decodeRaw(t, `{
		"items": [{"name": "Coffee", "quantity": 1, "unit_price": "4.00"}],
		"total": "4.00",
		"confidence": 0.2
	}`)

	res, err := newNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if res.Items[0].Confidence != 0.2 {
		t.Errorf("item confidence = %v, want inherited 0.2", res.Items[0].Confidence)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a low-confidence warning")
	}
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  *models.RawExtraction
	}{
		{name: "nil response", raw: nil},
		{name: "empty record", raw: &models.RawExtraction{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newNormalizer().Normalize(tt.raw); !errors.Is(err, ErrMalformedExtraction) {
				t.Errorf("err = %v, want ErrMalformedExtraction", err)
			}
		})
	}
}

func TestNormalizeDefaultCurrency(t *testing.T) {
	raw := decodeRaw(t, `{"items": [{"name": "Tea", "quantity": 1, "unit_price": "2.00"}], "total": "2.00"}`)
	res, err := newNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if res.Currency != "USD" {
		t.Errorf("currency = %q, want default USD", res.Currency)
	}
	if res.Items[0].UnitPrice.Currency != "USD" {
		t.Errorf("item currency = %q, want USD", res.Items[0].UnitPrice.Currency)
	}
}

package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexString is a JSON field that AI providers render inconsistently: the
// same field arrives as a string, a number, or not at all. It decodes any
// scalar into its string form; validation happens later in the normalizer.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Int parses the field as an integer, tolerating a trailing ".0" the way
// providers emit whole numbers.
func (f FlexString) Int() (int64, bool) {
	s := string(f)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == float64(int64(v)) {
		return int64(v), true
	}
	return 0, false
}

// RawItem is one best-effort line item from the AI response.
type RawItem struct {
	Name       FlexString `json:"name"`
	Quantity   FlexString `json:"quantity"`
	UnitPrice  FlexString `json:"unit_price"`
	Confidence *float64   `json:"confidence"`
}

// RawExtraction is the unvalidated structured output of the AI extraction
// capability. Every field is optional and possibly wrong; the normalizer is
// the only consumer and it trusts nothing here.
type RawExtraction struct {
	Merchant   FlexString `json:"merchant"`
	Currency   FlexString `json:"currency"`
	Items      []RawItem  `json:"items"`
	Subtotal   FlexString `json:"subtotal"`
	Tax        FlexString `json:"tax"`
	Tip        FlexString `json:"tip"`
	Discount   FlexString `json:"discount"`
	Total      FlexString `json:"total"`
	Confidence *float64   `json:"confidence"`
}

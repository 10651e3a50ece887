package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Availability is the normalized stock state of a product.
// The zero value means the source did not state one.
type Availability string

const (
	InStock    Availability = "InStock"
	OutOfStock Availability = "OutOfStock"
	Unknown    Availability = "Unknown"
)

// ProductRecord is the canonical output of one extraction call.
type ProductRecord struct {
	// Name is trimmed; empty means absent.
	Name string

	// Description may be HTML-derived plain text; empty means absent.
	Description string

	// Images are absolute URLs in discovery order.
	Images []string

	// Price is the numeric amount only; currency is not modeled.
	Price *float64

	// Availability is empty when the source did not state one.
	Availability Availability
}

// Usable reports whether the record counts as a successful stage result.
func (r *ProductRecord) Usable() bool {
	return r != nil && (r.Name != "" || r.Price != nil)
}

// recordJSON is the wire shape: absent optionals render as null and
// images is always an array.
type recordJSON struct {
	Name         *string  `json:"name"`
	Description  *string  `json:"description"`
	Images       []string `json:"images"`
	Price        *float64 `json:"price"`
	Availability *string  `json:"availability"`
}

// MarshalJSON implements json.Marshaler.
func (r ProductRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Name:        optional(r.Name),
		Description: optional(r.Description),
		Images:      r.Images,
		Price:       r.Price,
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	if r.Availability != "" {
		s := string(r.Availability)
		out.Availability = &s
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ProductRecord) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = ProductRecord{Images: in.Images, Price: in.Price}
	if in.Name != nil {
		r.Name = *in.Name
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	if in.Availability != nil {
		r.Availability = Availability(*in.Availability)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ── Shared normalizers ─────────────────────────────────────────────────

// availabilityTerms maps schema.org ItemAvailability names, folded to
// lowercase with separators removed, to the record enum.
var availabilityTerms = map[string]Availability{
	"instock":             InStock,
	"limitedavailability": InStock,
	"onlineonly":          InStock,
	"instoreonly":         InStock,
	"outofstock":          OutOfStock,
	"soldout":             OutOfStock,
	"discontinued":        OutOfStock,
}

// NormalizeAvailability maps an availability URI or token to the record
// enum using its last path segment: ".../InStock" → InStock. Any other
// non-empty value is Unknown; empty input stays empty.
func NormalizeAvailability(raw string) Availability {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = strings.TrimRight(raw, "/")
	if i := strings.LastIndexAny(raw, "/#:"); i >= 0 {
		raw = raw[i+1:]
	}
	key := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(raw))
	if a, ok := availabilityTerms[key]; ok {
		return a
	}
	if key == "" {
		return ""
	}
	return Unknown
}

// AvailabilityFromBool maps a platform "available"/"in_stock" flag.
func AvailabilityFromBool(available bool) Availability {
	if available {
		return InStock
	}
	return OutOfStock
}

// NormalizeDigits rewrites Unicode decimal digits, such as Arabic-Indic
// "١٢٠", as ASCII digits. The Arabic decimal and thousands separators
// become '.' and ','.
func NormalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u066b':
			return '.'
		case '\u066c':
			return ','
		}
		if v, ok := digitValue(r); ok {
			return '0' + v
		}
		return r
	}, s)
}

// digitValue looks r up in the Nd table. Every decimal digit run there
// starts at its zero, so the value is the offset modulo ten.
func digitValue(r rune) (rune, bool) {
	if r >= '0' && r <= '9' {
		return r - '0', true
	}
	if !unicode.IsDigit(r) {
		return 0, false
	}
	for _, rg := range unicode.Nd.R16 {
		if lo, hi := rune(rg.Lo), rune(rg.Hi); r >= lo && r <= hi && rg.Stride == 1 {
			return (r - lo) % 10, true
		}
	}
	for _, rg := range unicode.Nd.R32 {
		if lo, hi := rune(rg.Lo), rune(rg.Hi); r >= lo && r <= hi && rg.Stride == 1 {
			return (r - lo) % 10, true
		}
	}
	return 0, false
}

// ParsePrice parses a decimal amount after removing whitespace and
// thousands separators. Any Unicode decimal digits are accepted. Negative,
// non-finite and empty values are rejected.
func ParsePrice(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\u00a0', '\t', '\n':
			return -1
		}
		return r
	}, NormalizeDigits(s))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseLoosePrice keeps only digits and '.' before parsing. Used for
// free-form price text such as "SAR 1,299.50".
func ParseLoosePrice(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, NormalizeDigits(s))
	return ParsePrice(strings.Trim(s, "."))
}

// PriceFromJSON accepts a decoded JSON number or numeric string.
func PriceFromJSON(v any) (float64, bool) {
	switch p := v.(type) {
	case float64:
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, false
		}
		return p, true
	case json.Number:
		return ParsePrice(p.String())
	case string:
		return ParsePrice(p)
	case int:
		return PriceFromJSON(float64(p))
	}
	return 0, false
}

// PriceOf is a convenience for building records from a parsed amount.
func PriceOf(f float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &f
}

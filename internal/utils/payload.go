package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MinCodeLength and MaxCodeLength bound a valid raw code
	MinCodeLength = 5
	MaxCodeLength = 500

	// FieldSeparator splits "productId|productName|batchCode" payloads
	FieldSeparator = "|"

	unknownProductName = "Unknown"
)

// PayloadKind records which parsing rule produced a payload
type PayloadKind string

const (
	PayloadStructured PayloadKind = "structured" // embedded JSON object
	PayloadDelimited  PayloadKind = "delimited"  // separator-split fields
	PayloadPlain      PayloadKind = "plain"      // whole string is the product id
)

// ParsedPayload is the best-effort structure extracted from a raw code
type ParsedPayload struct {
	Kind        PayloadKind
	ProductID   string
	ProductName string
	BatchCode   string
	RawData     string
	// Fields holds every key of a structured payload
	Fields map[string]any
}

// ParsePayload never fails. JSON objects populate fields directly,
// separator-delimited strings map by position, anything else becomes
// the product id with an unknown product name.
func ParsePayload(raw string) ParsedPayload {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
		p := ParsedPayload{
			Kind:        PayloadStructured,
			ProductID:   stringField(obj, "productId"),
			ProductName: stringField(obj, "productName"),
			BatchCode:   stringField(obj, "batchCode"),
			RawData:     raw,
			Fields:      obj,
		}
		if p.ProductID == "" {
			p.ProductID = raw
		}
		if p.ProductName == "" {
			p.ProductName = unknownProductName
		}
		return p
	}

	if parts := strings.Split(raw, FieldSeparator); len(parts) > 1 {
		p := ParsedPayload{
			Kind:        PayloadDelimited,
			ProductID:   parts[0],
			ProductName: parts[1],
			RawData:     raw,
		}
		if len(parts) > 2 {
			p.BatchCode = parts[2]
		}
		return p
	}

	return ParsedPayload{
		Kind:        PayloadPlain,
		ProductID:   raw,
		ProductName: unknownProductName,
		RawData:     raw,
	}
}

// ToMap flattens the payload for JSON responses and storage
func (p ParsedPayload) ToMap() map[string]any {
	out := make(map[string]any, len(p.Fields)+4)
	for k, v := range p.Fields {
		out[k] = v
	}
	out["productId"] = p.ProductID
	out["productName"] = p.ProductName
	if p.BatchCode != "" {
		out["batchCode"] = p.BatchCode
	}
	out["rawData"] = p.RawData
	return out
}

func stringField(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ValidateCode accepts 5..500 bytes of printable ASCII (0x20-0x7E)
func ValidateCode(raw string) bool {
	if len(raw) < MinCodeLength || len(raw) > MaxCodeLength {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < 0x20 || raw[i] > 0x7E {
			return false
		}
	}
	return true
}

// CodeFromJSON extracts a code from a raw JSON value. Only JSON strings
// yield a code; anything else reports ok=false and a printable form.
func CodeFromJSON(raw json.RawMessage) (code string, ok bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return strings.TrimSpace(string(raw)), false
}

package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldKind identifies the value type of a declared field. The set is closed:
// every kind listed here must be handled by the column target mapper.
type FieldKind string

const (
	KindData        FieldKind = "data"
	KindText        FieldKind = "text"
	KindInt         FieldKind = "int"
	KindDecimal     FieldKind = "decimal"
	KindDate        FieldKind = "date"
	KindTimestamp   FieldKind = "timestamp"
	KindBoolean     FieldKind = "boolean"
	KindPassword    FieldKind = "password"
	KindChoice      FieldKind = "choice"
	KindMultiChoice FieldKind = "multi-choice"
	KindEmail       FieldKind = "email"
	KindImage       FieldKind = "image"
	KindFile        FieldKind = "file"
	KindJSON        FieldKind = "json"
	KindPhone       FieldKind = "phone"
	KindConnection  FieldKind = "connection"
	KindRichText    FieldKind = "rich-text"
	KindURL         FieldKind = "url"
	KindList        FieldKind = "list"
	KindCurrency    FieldKind = "currency"
	KindID          FieldKind = "id"
)

// AllKinds returns every supported field kind in declaration order.
func AllKinds() []FieldKind {
	return []FieldKind{
		KindData, KindText, KindInt, KindDecimal, KindDate, KindTimestamp, KindBoolean,
		KindPassword, KindChoice, KindMultiChoice, KindEmail, KindImage, KindFile, KindJSON,
		KindPhone, KindConnection, KindRichText, KindURL, KindList, KindCurrency, KindID,
	}
}

// Valid reports whether k is one of the supported kinds.
func (k FieldKind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParseFieldKind converts a declaration tag into a FieldKind. Matching is
// case-insensitive and accepts underscores in place of dashes
// ("multi_choice", "rich_text").
func ParseFieldKind(s string) (FieldKind, error) {
	k := FieldKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !k.Valid() {
		return "", fmt.Errorf("unknown field kind %q", s)
	}
	return k, nil
}

// AcceptsDefault reports whether v can be declared as the default of a field
// of kind k. A nil default is always accepted.
func (k FieldKind) AcceptsDefault(v any) bool {
	if v == nil {
		return true
	}
	switch k {
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindInt:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		return false
	case KindDecimal, KindCurrency:
		switch n := v.(type) {
		case int, int64, float64, json.Number:
			return true
		case string:
			_, err := strconv.ParseFloat(n, 64)
			return err == nil
		}
		return false
	case KindDate, KindTimestamp:
		switch v.(type) {
		case string, time.Time:
			return true
		}
		return false
	case KindMultiChoice, KindList:
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case KindImage, KindFile:
		switch v.(type) {
		case string, map[string]any, []any:
			return true
		}
		return false
	case KindJSON:
		return true
	case KindConnection, KindID:
		switch v.(type) {
		case string, int, int64:
			return true
		}
		return false
	case KindData, KindText, KindPassword, KindChoice, KindEmail, KindPhone, KindRichText, KindURL:
		_, ok := v.(string)
		return ok
	default:
		return false
	}
}

// IDMode selects the format of a table's identifier column.
type IDMode string

const (
	IDModeULID   IDMode = "ulid"
	IDModeUUID   IDMode = "uuid"
	IDModeSerial IDMode = "serial"
)

// Valid reports whether m is a supported identifier format.
func (m IDMode) Valid() bool {
	switch m {
	case IDModeULID, IDModeUUID, IDModeSerial:
		return true
	default:
		return false
	}
}

// OrDefault returns m, or IDModeULID when m is empty.
func (m IDMode) OrDefault() IDMode {
	if m == "" {
		return IDModeULID
	}
	return m
}

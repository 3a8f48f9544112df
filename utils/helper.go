package utils

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var headerCleaner = regexp.MustCompile(`[^a-z0-9]+`)
var whitespaceCollapser = regexp.MustCompile(`\s+`)

// ParseMoney parses vendor-export money text: "$1,234.50", "(250.00)" for
// credits, "-3.00". Returns false for blank or unparseable values.
func ParseMoney(value string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasPrefix(cleaned, "-") {
		negative = true
		cleaned = cleaned[1:]
	}

	result, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		result = result.Neg()
	}
	return result, true
}

// NormalizeHeader folds a column header for alias matching:
// "Unit Price " -> "unit_price".
func NormalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = headerCleaner.ReplaceAllString(value, "_")
	return strings.Trim(value, "_")
}

// MatchHeader finds the original header matching any alias: exact normalized
// match first, then substring containment in either direction.
func MatchHeader(headers []string, aliases []string) (string, bool) {
	normalized := make(map[string]string, len(headers))
	order := make([]string, 0, len(headers))
	for _, header := range headers {
		key := NormalizeHeader(header)
		if _, seen := normalized[key]; !seen {
			normalized[key] = header
			order = append(order, key)
		}
	}

	for _, alias := range aliases {
		if original, ok := normalized[alias]; ok {
			return original, true
		}
	}
	for _, key := range order {
		for _, alias := range aliases {
			if strings.Contains(key, alias) || strings.Contains(alias, key) {
				return normalized[key], true
			}
		}
	}
	return "", false
}

// NormalizeText collapses whitespace and folds en dashes so vendor text
// compares stably across export variants.
func NormalizeText(value string) string {
	cleaned := strings.ReplaceAll(value, "–", "-")
	cleaned = whitespaceCollapser.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func Round2(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

func NewTrue() *bool {
	b := true
	return &b
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]bool, len(slice))
	result := make([]T, 0, len(slice))
	for _, item := range slice {
		if seen[item] {
			continue
		}
		seen[item] = true
		result = append(result, item)
	}
	return result
}

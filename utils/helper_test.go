package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMoney_Formats(t *testing.T) {
	cases := []struct {
		input string
		want  string
		ok    bool
	}{
		{"$1,234.50", "1234.5", true},
		{"(250.00)", "-250", true},
		{"-3.00", "-3", true},
		{" 17.99 ", "17.99", true},
		{"$ 0.00", "0", true},
		{"", "0", false},
		{"N/A", "0", false},
	}
	for _, c := range cases {
		got, ok := ParseMoney(c.input)
		if ok != c.ok {
			t.Fatalf("ParseMoney(%q) ok=%v, want %v", c.input, ok, c.ok)
		}
		if !ok {
			continue
		}
		want, _ := decimal.NewFromString(c.want)
		if !got.Equal(want) {
			t.Fatalf("ParseMoney(%q) = %s, want %s", c.input, got, want)
		}
	}
}

func TestNormalizeHeader_FoldsPunctuationAndCase(t *testing.T) {
	cases := map[string]string{
		"Unit Price ": "unit_price",
		"BRANCH NAME": "branch_name",
		"Cost ($)":    "cost",
		"  qty  ":     "qty",
		"User e-mail": "user_e_mail",
	}
	for input, want := range cases {
		if got := NormalizeHeader(input); got != want {
			t.Fatalf("NormalizeHeader(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestMatchHeader_ExactBeatsSubstring(t *testing.T) {
	headers := []string{"Branch Location", "Branch"}

	// "branch" normalizes to an exact key, so the exact-pass match wins even
	// though "Branch Location" also contains the alias.
	got, ok := MatchHeader(headers, []string{"branch"})
	if !ok || got != "Branch" {
		t.Fatalf("MatchHeader exact pass = %q (ok=%v), want Branch", got, ok)
	}
}

func TestMatchHeader_SubstringFallback(t *testing.T) {
	headers := []string{"Total Charge Amount", "License Name"}

	got, ok := MatchHeader(headers, []string{"amount"})
	if !ok || got != "Total Charge Amount" {
		t.Fatalf("MatchHeader substring pass = %q (ok=%v), want Total Charge Amount", got, ok)
	}

	if _, ok := MatchHeader(headers, []string{"invoice_number"}); ok {
		t.Fatal("MatchHeader matched a header that is not present")
	}
}

func TestNormalizeText_CollapsesWhitespaceAndDashes(t *testing.T) {
	got := NormalizeText("  Managed  Firewall –  District\tOffice ")
	want := "Managed Firewall - District Office"
	if got != want {
		t.Fatalf("NormalizeText = %q, want %q", got, want)
	}
}

func TestUniqueSlice_PreservesFirstOccurrenceOrder(t *testing.T) {
	got := UniqueSlice([]string{"b", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("UniqueSlice = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("UniqueSlice = %v, want %v", got, want)
		}
	}
}

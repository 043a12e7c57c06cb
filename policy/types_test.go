package policy

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseLoanType(t *testing.T) {
	tests := []struct {
		in      string
		want    LoanType
		wantErr bool
	}{
		{"PERSONAL_LOAN", LoanTypePersonal, false},
		{" home_loan ", LoanTypeHome, false},
		{"Loan_Against_Property", LoanTypeLoanAgainstProperty, false},
		{"", "", true},
		{"CREDIT_CARD", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLoanType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLoanType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidLoanType) {
			t.Errorf("ParseLoanType(%q) error should wrap ErrInvalidLoanType", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParseLoanType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPolicyAppliesTo(t *testing.T) {
	global := &Policy{}
	if !global.AppliesTo(LoanTypeGold) {
		t.Error("global policy should apply to every loan type")
	}

	home := &Policy{LoanType: loanTypePtr(LoanTypeHome)}
	if !home.AppliesTo(LoanTypeHome) {
		t.Error("home policy should apply to HOME_LOAN")
	}
	if home.AppliesTo(LoanTypePersonal) {
		t.Error("home policy should not apply to PERSONAL_LOAN")
	}
}

func TestPolicyJSONShape(t *testing.T) {
	p := eligibilityPolicy()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	for _, key := range []string{"id", "policyCode", "name", "category", "loanType", "status", "priority", "version", "rules"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("policy JSON is missing %q", key)
		}
	}

	global := riskPolicy()
	data, _ = json.Marshal(global)
	doc = nil
	_ = json.Unmarshal(data, &doc)
	if _, ok := doc["loanType"]; ok {
		t.Error("global policy should omit loanType")
	}
}

func TestFlattenFacts(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := FlattenFacts(map[string]any{
		"applicant": map[string]any{
			"age":     int64(30),
			"income":  85000.75,
			"pep":     false,
			"address": map[string]any{"pin": "411001"},
			"ignored": nil,
		},
		"bureau":   map[string]string{"score": "701"},
		"tags":     []any{"a", 1, true},
		"limit":    decimal.RequireFromString("1000000.00"),
		"number":   json.Number("42"),
		"seenAt":   ts,
		"products": []string{"PL", "CC"},
	})

	want := map[string]string{
		"applicant.age":         "30",
		"applicant.income":      "85000.75",
		"applicant.pep":         "false",
		"applicant.address.pin": "411001",
		"bureau.score":          "701",
		"tags":                  "a,1,true",
		"limit":                 "1000000",
		"number":                "42",
		"seenAt":                "2025-01-02T03:04:05Z",
		"products":              "PL,CC",
	}
	for k, v := range want {
		if got := ctx[k]; got != v {
			t.Errorf("ctx[%s] = %q, want %q", k, got, v)
		}
	}
	if _, ok := ctx["applicant.ignored"]; ok {
		t.Error("nil facts should be dropped")
	}
	if len(ctx) != len(want) {
		t.Errorf("context has %d fields, want %d: %v", len(ctx), len(want), ctx.Fields())
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "TRUE", " 1 ", "yes", "Yes"} {
		if b, err := parseBool(s); err != nil || !b {
			t.Errorf("parseBool(%q) = %v, %v; want true", s, b, err)
		}
	}
	for _, s := range []string{"false", "0", "no", "NO"} {
		if b, err := parseBool(s); err != nil || b {
			t.Errorf("parseBool(%q) = %v, %v; want false", s, b, err)
		}
	}
	if _, err := parseBool("maybe"); err == nil {
		t.Error("parseBool(maybe) should fail")
	}
}

func TestParseNumber(t *testing.T) {
	d, err := parseNumber(" 12.50 ")
	if err != nil {
		t.Fatalf("parseNumber() failed: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("parseNumber() = %s, want 12.5", d)
	}
	for _, s := range []string{"", "  ", "12,5", "abc", "1e900000000", "5E-1001", strings.Repeat("1", 65)} {
		if _, err := parseNumber(s); err == nil {
			t.Errorf("parseNumber(%q) should fail", s)
		}
	}
}

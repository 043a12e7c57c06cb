package policy

import (
	"strings"
	"testing"
)

func TestCompileDerivedFields(t *testing.T) {
	d, err := CompileDerivedFields([]DerivedField{
		{Name: "loan.emiEstimate", Expression: `double(facts["loan.requestedAmount"]) / double(facts["loan.tenureMonths"])`},
		{Name: "applicant.foir", Expression: `double(facts["loan.emiEstimate"]) / double(facts["applicant.monthlyIncome"])`},
		{Name: "applicant.isSalaried", Expression: `facts["applicant.employmentType"] == "SALARIED"`},
	})
	if err != nil {
		t.Fatalf("CompileDerivedFields() failed: %v", err)
	}
	if d.Len() != 3 {
		t.Errorf("Len() = %d, want 3", d.Len())
	}

	ctx := EvaluationContext{
		"loan.requestedAmount":     "120000",
		"loan.tenureMonths":        "12",
		"applicant.monthlyIncome":  "40000",
		"applicant.employmentType": "SALARIED",
	}
	if skipped := d.Apply(ctx); len(skipped) != 0 {
		t.Fatalf("Apply() skipped %v", skipped)
	}

	if ctx["loan.emiEstimate"] != "10000" {
		t.Errorf("loan.emiEstimate = %q, want 10000", ctx["loan.emiEstimate"])
	}
	if ctx["applicant.foir"] != "0.25" {
		t.Errorf("applicant.foir = %q, want 0.25", ctx["applicant.foir"])
	}
	if ctx["applicant.isSalaried"] != "true" {
		t.Errorf("applicant.isSalaried = %q, want true", ctx["applicant.isSalaried"])
	}
}

// A field that cannot be computed is skipped without affecting the others.
func TestDerivedFieldsApplySkipsFailures(t *testing.T) {
	d, err := CompileDerivedFields([]DerivedField{
		{Name: "missing", Expression: `double(facts["applicant.unknown"]) * 2.0`},
		{Name: "ok", Expression: `"yes"`},
	})
	if err != nil {
		t.Fatalf("CompileDerivedFields() failed: %v", err)
	}

	ctx := EvaluationContext{}
	skipped := d.Apply(ctx)
	if len(skipped) != 1 || !strings.HasPrefix(skipped[0], "missing:") {
		t.Errorf("skipped = %v, want one entry for missing", skipped)
	}
	if _, ok := ctx["missing"]; ok {
		t.Error("failed field should not be set")
	}
	if ctx["ok"] != "yes" {
		t.Errorf("ok = %q, want yes", ctx["ok"])
	}
}

func TestCompileDerivedFieldsErrors(t *testing.T) {
	tests := []struct {
		name string
		def  DerivedField
	}{
		{"empty name", DerivedField{Expression: `1`}},
		{"syntax error", DerivedField{Name: "bad", Expression: `facts[`}},
		{"unknown variable", DerivedField{Name: "bad", Expression: `applicant.age > 1`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileDerivedFields([]DerivedField{tt.def}); err == nil {
				t.Error("CompileDerivedFields() should fail")
			}
		})
	}
}

func TestNilDerivedFields(t *testing.T) {
	var d *DerivedFields
	if d.Len() != 0 {
		t.Error("nil Len() should be 0")
	}
	if skipped := d.Apply(EvaluationContext{}); skipped != nil {
		t.Errorf("nil Apply() = %v", skipped)
	}
}

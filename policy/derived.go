package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// DerivedField is a computed fact added to the context before rules run, e.g.
// the EMI-to-income ratio. Expression is CEL over the flat fact map `facts`:
//
//	double(facts["loan.requestedAmount"]) / double(facts["applicant.monthlyIncome"])
type DerivedField struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

type compiledField struct {
	name    string
	program cel.Program
}

// DerivedFields is a compiled, immutable set of derived field definitions.
// Safe for concurrent use.
type DerivedFields struct {
	fields []compiledField
}

// CompileDerivedFields compiles defs in order. Later fields may reference
// earlier ones through `facts`.
func CompileDerivedFields(defs []DerivedField) (*DerivedFields, error) {
	env, err := cel.NewEnv(
		cel.Variable("facts", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	compiled := make([]compiledField, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("derived field name is required")
		}
		ast, issues := env.Compile(def.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile error in derived field %s: %w", def.Name, issues.Err())
		}
		// Cost limit prevents runaway expressions
		prog, err := env.Program(ast, cel.CostLimit(100000))
		if err != nil {
			return nil, fmt.Errorf("program creation error in derived field %s: %w", def.Name, err)
		}
		compiled = append(compiled, compiledField{name: def.Name, program: prog})
	}
	return &DerivedFields{fields: compiled}, nil
}

// Len returns the number of derived fields.
func (d *DerivedFields) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Apply evaluates every derived field against ctx and stores the results in
// ctx. A field that fails to evaluate is skipped; its error is returned in
// the skipped list rather than aborting.
func (d *DerivedFields) Apply(ctx EvaluationContext) (skipped []string) {
	if d == nil {
		return nil
	}
	for _, f := range d.fields {
		out, _, err := f.program.Eval(map[string]any{"facts": map[string]string(ctx)})
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", f.name, err))
			continue
		}
		s, ok := formatFact(out.Value())
		if !ok {
			skipped = append(skipped, fmt.Sprintf("%s: unsupported result type %T", f.name, out.Value()))
			continue
		}
		ctx[f.name] = s
	}
	return skipped
}

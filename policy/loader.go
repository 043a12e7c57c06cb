package policy

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicySet is the content of a policy definition file.
type PolicySet struct {
	Policies      []*Policy
	DerivedFields []DerivedField
}

type policyFile struct {
	Policies      []policyDoc    `yaml:"policies"`
	DerivedFields []DerivedField `yaml:"derivedFields"`
}

type policyDoc struct {
	PolicyCode string    `yaml:"policyCode"`
	Name       string    `yaml:"name"`
	Category   string    `yaml:"category"`
	LoanType   string    `yaml:"loanType"`
	Status     string    `yaml:"status"`
	Priority   int       `yaml:"priority"`
	Rules      []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	Name            string      `yaml:"name"`
	LogicalOperator string      `yaml:"logicalOperator"`
	Priority        int         `yaml:"priority"`
	Enabled         *bool       `yaml:"enabled"`
	Conditions      []Condition `yaml:"conditions"`
	Actions         []Action    `yaml:"actions"`
}

// LoadPolicyFile reads a YAML policy definition file.
func LoadPolicyFile(path string) (*PolicySet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	set, err := LoadPolicies(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// LoadPolicies decodes YAML policy definitions. Omitted statuses default to
// DRAFT, omitted logical operators to AND and omitted rule enabled flags to
// true. A loan type of "" or "ALL" makes the policy global.
func LoadPolicies(r io.Reader) (*PolicySet, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc policyFile
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode policies: %w", err)
	}

	set := &PolicySet{DerivedFields: doc.DerivedFields}
	for i, pd := range doc.Policies {
		p, err := pd.toPolicy()
		if err != nil {
			return nil, fmt.Errorf("policy %d (%s): %w", i, pd.PolicyCode, err)
		}
		set.Policies = append(set.Policies, p)
	}
	return set, nil
}

func (pd policyDoc) toPolicy() (*Policy, error) {
	p := &Policy{
		PolicyCode: strings.TrimSpace(pd.PolicyCode),
		Name:       strings.TrimSpace(pd.Name),
		Category:   Category(strings.ToUpper(pd.Category)),
		Status:     StatusDraft,
		Priority:   pd.Priority,
		Version:    1,
	}
	if pd.Status != "" {
		p.Status = Status(strings.ToUpper(pd.Status))
	}

	switch lt := strings.TrimSpace(pd.LoanType); {
	case lt == "", strings.EqualFold(lt, "ALL"):
	default:
		parsed, err := ParseLoanType(lt)
		if err != nil {
			return nil, err
		}
		p.LoanType = &parsed
	}

	for _, rd := range pd.Rules {
		rule := Rule{
			Name:            rd.Name,
			LogicalOperator: LogicalOperator(strings.ToUpper(rd.LogicalOperator)),
			Priority:        rd.Priority,
			Enabled:         rd.Enabled == nil || *rd.Enabled,
			Conditions:      rd.Conditions,
			Actions:         rd.Actions,
		}
		if rule.LogicalOperator == "" {
			rule.LogicalOperator = LogicalAnd
		}
		p.Rules = append(p.Rules, rule)
	}
	return p, nil
}

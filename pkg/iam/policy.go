package iam

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DynaString represents an IAM policy field that AWS serializes as either a
// bare scalar or a JSON array of the same type, depending on how many values
// are present. Custom unmarshalling normalizes both shapes into a slice.
type DynaString []string

// UnmarshalJSON accepts a single string, a string array, or (rarely, in some
// hand-edited policies) a bare boolean, and always produces a slice.
func (d *DynaString) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*d = []string{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*d = many
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*d = []string{strconv.FormatBool(b)}
		return nil
	}

	return fmt.Errorf("iam: cannot unmarshal %s into DynaString", data)
}

// Has reports whether d contains the literal value v. A nil DynaString
// contains nothing.
func (d *DynaString) Has(v string) bool {
	if d == nil {
		return false
	}
	for _, s := range *d {
		if s == v {
			return true
		}
	}
	return false
}

// Condition is an opaque policy condition block. The evaluator never
// interprets its contents — resource/condition-aware simulation is out of
// scope — it only ever asks whether a Condition is present at all.
type Condition map[string]json.RawMessage

// Statement is a single IAM policy statement, trimmed to the fields the
// evaluator needs: NotResource and Principal/NotPrincipal are absent.
// NotAction is parsed only so that a statement using it can be reported and
// skipped; it is never evaluated.
type Statement struct {
	Sid       string      `json:"Sid,omitempty"`
	Effect    string      `json:"Effect"`
	Action    *DynaString `json:"Action,omitempty"`
	NotAction *DynaString `json:"NotAction,omitempty"`
	Resource  *DynaString `json:"Resource,omitempty"`
	Condition Condition   `json:"Condition,omitempty"`
}

// StatementList accepts either a single Statement or an array, the shape
// AWS uses for a Policy's "Statement" field.
type StatementList []Statement

func (sl *StatementList) UnmarshalJSON(data []byte) error {
	var single Statement
	if err := json.Unmarshal(data, &single); err == nil {
		*sl = []Statement{single}
		return nil
	}

	var many []Statement
	if err := json.Unmarshal(data, &many); err == nil {
		*sl = many
		return nil
	}

	return fmt.Errorf("iam: cannot unmarshal %s into StatementList", data)
}

// Policy is an ordered sequence of Statements, as produced by
// `aws iam get-account-authorization-details` inside a policy document.
type Policy struct {
	Version   string         `json:"Version"`
	Statement *StatementList `json:"Statement"`
}

// Statements returns the policy's statements, or nil if the document is empty.
func (p *Policy) Statements() []Statement {
	if p == nil || p.Statement == nil {
		return nil
	}
	return []Statement(*p.Statement)
}

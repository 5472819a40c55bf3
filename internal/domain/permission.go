package domain

import (
	"encoding/json"
	"time"
)

// Operation identifies one CRUD verb a permission rule applies to.
type Operation string

// CRUD operations.
const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations lists all CRUD verbs in canonical order.
var Operations = []Operation{OpCreate, OpRead, OpUpdate, OpDelete}

// Valid reports whether op is one of the four CRUD verbs.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		return true
	}
	return false
}

// WildcardCollection matches every collection.
const WildcardCollection = "*"

// FieldList is a permission rule's field allow-list: either the wildcard
// "*" or an explicit ordered set of field names. The zero value is an
// empty explicit list (no fields).
type FieldList struct {
	Wildcard bool
	Names    []string
}

// AllFields returns the wildcard field list.
func AllFields() FieldList { return FieldList{Wildcard: true} }

// Fields returns an explicit field list.
func Fields(names ...string) FieldList { return FieldList{Names: names} }

// Contains reports whether the list allows the named field.
func (f FieldList) Contains(name string) bool {
	if f.Wildcard {
		return true
	}
	for _, n := range f.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Union combines two field lists. The wildcard absorbs everything;
// otherwise names are merged preserving first-seen order.
func (f FieldList) Union(other FieldList) FieldList {
	if f.Wildcard || other.Wildcard {
		return AllFields()
	}
	out := FieldList{Names: append([]string(nil), f.Names...)}
	for _, n := range other.Names {
		if !out.Contains(n) {
			out.Names = append(out.Names, n)
		}
	}
	return out
}

// MarshalJSON encodes the wildcard as the string "*" and an explicit
// list as a JSON array.
func (f FieldList) MarshalJSON() ([]byte, error) {
	if f.Wildcard {
		return json.Marshal(WildcardCollection)
	}
	if f.Names == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(f.Names)
}

// UnmarshalJSON accepts "*" or an array of field names.
func (f *FieldList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != WildcardCollection {
			return ErrValidation("fields must be %q or an array of field names", WildcardCollection)
		}
		*f = AllFields()
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return ErrValidation("fields must be %q or an array of field names", WildcardCollection)
	}
	for _, n := range names {
		if n == "" {
			return ErrValidation("field names must not be empty")
		}
	}
	*f = FieldList{Names: names}
	return nil
}

// OperationRule binds a rule expression and a field allow-list to one
// CRUD verb.
type OperationRule struct {
	Rule   string    `json:"rule"`
	Fields FieldList `json:"fields"`
}

// RuleSet holds up to four operation rules. An absent operation grants
// no access for that verb through the owning permission row.
type RuleSet struct {
	Create *OperationRule `json:"create,omitempty"`
	Read   *OperationRule `json:"read,omitempty"`
	Update *OperationRule `json:"update,omitempty"`
	Delete *OperationRule `json:"delete,omitempty"`
}

// ForOperation returns the rule for the given verb, or nil when the
// permission does not cover it.
func (rs *RuleSet) ForOperation(op Operation) *OperationRule {
	switch op {
	case OpCreate:
		return rs.Create
	case OpRead:
		return rs.Read
	case OpUpdate:
		return rs.Update
	case OpDelete:
		return rs.Delete
	}
	return nil
}

// SetOperation assigns the rule for the given verb.
func (rs *RuleSet) SetOperation(op Operation, r *OperationRule) {
	switch op {
	case OpCreate:
		rs.Create = r
	case OpRead:
		rs.Read = r
	case OpUpdate:
		rs.Update = r
	case OpDelete:
		rs.Delete = r
	}
}

// Permission binds a role to a collection (or the wildcard "*") and a
// rule-set. Permissions are administrator-managed configuration, read on
// every authorization check and never mutated implicitly.
type Permission struct {
	ID         string
	Role       string
	Collection string
	Rules      RuleSet
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RuleFilter is the compiled output of authorization: a parameterized
// predicate plus an allowed-field set. Field-level enforcement using
// Fields is the caller's responsibility.
type RuleFilter struct {
	Predicate string
	Params    map[string]any
	Fields    FieldList
}

// CreatePermissionRequest holds parameters for creating a permission.
type CreatePermissionRequest struct {
	Role       string
	Collection string
	Rules      RuleSet
}

// Validate checks that the request is well-formed. Rule expression
// syntax is checked separately by the permission service.
func (r *CreatePermissionRequest) Validate() error {
	if r.Role == "" {
		return ErrValidation("role is required")
	}
	if r.Collection == "" {
		return ErrValidation("collection is required")
	}
	covered := false
	for _, op := range Operations {
		rule := r.Rules.ForOperation(op)
		if rule == nil {
			continue
		}
		covered = true
		if rule.Rule == "" {
			return ErrValidation("%s rule expression is required", op)
		}
		for _, n := range rule.Fields.Names {
			if n == "" {
				return ErrValidation("%s field names must not be empty", op)
			}
		}
	}
	if !covered {
		return ErrValidation("rule set must cover at least one operation")
	}
	return nil
}

// UpdatePermissionRequest holds partial-update parameters.
type UpdatePermissionRequest struct {
	Rules *RuleSet
}

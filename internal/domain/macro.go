package domain

import "time"

// Macro is a named, reusable rule fragment. Exactly one of Body and
// SQLQuery is set: Body holds a textual rule expression expanded in
// place, SQLQuery holds a parameterized scalar query executed through
// the macro execution engine.
type Macro struct {
	ID         string
	Name       string
	Parameters []string
	Body       string
	SQLQuery   string
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// QueryBacked reports whether the macro executes a query rather than
// expanding textually.
func (m *Macro) QueryBacked() bool { return m.SQLQuery != "" }

// CreateMacroRequest holds parameters for creating a macro.
type CreateMacroRequest struct {
	Name       string
	Parameters []string
	Body       string
	SQLQuery   string
	CreatedBy  string
}

// Validate checks that the request is well-formed.
func (r *CreateMacroRequest) Validate() error {
	if r.Name == "" {
		return ErrValidation("name is required")
	}
	if !validMacroName(r.Name) {
		return ErrValidation("name must be an identifier (letters, digits, underscore)")
	}
	if r.Body == "" && r.SQLQuery == "" {
		return ErrValidation("one of body or sql_query is required")
	}
	if r.Body != "" && r.SQLQuery != "" {
		return ErrValidation("body and sql_query are mutually exclusive")
	}
	for _, p := range r.Parameters {
		if !validMacroName(p) {
			return ErrValidation("parameter %q must be an identifier", p)
		}
	}
	return nil
}

// UpdateMacroRequest holds partial-update parameters.
type UpdateMacroRequest struct {
	Parameters []string
	Body       *string
	SQLQuery   *string
}

func validMacroName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

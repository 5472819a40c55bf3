// Package declarative loads permission and macro definitions from YAML
// files and reconciles them into the metadata store at startup.
package declarative

// SupportedAPIVersion is the only apiVersion accepted by the loader.
const SupportedAPIVersion = "basecore/v1"

// Kind names for declarative documents.
const (
	KindNamePermissionList = "PermissionList"
	KindNameMacroList      = "MacroList"
)

// PermissionListDoc is the document stored in permissions.yaml.
type PermissionListDoc struct {
	APIVersion  string                `yaml:"apiVersion"`
	Kind        string                `yaml:"kind"`
	Permissions []PermissionResource `yaml:"permissions"`
}

// PermissionResource is one declared permission row.
type PermissionResource struct {
	Role       string             `yaml:"role"`
	Collection string             `yaml:"collection"`
	Rules      map[string]RuleDef `yaml:"rules"` // keyed by create/read/update/delete
}

// RuleDef is one operation rule: the expression plus its field list.
// Fields defaults to the wildcard when omitted.
type RuleDef struct {
	Rule   string   `yaml:"rule"`
	Fields []string `yaml:"fields,omitempty"`
}

// MacroListDoc is the document stored in macros.yaml.
type MacroListDoc struct {
	APIVersion string          `yaml:"apiVersion"`
	Kind       string          `yaml:"kind"`
	Macros     []MacroResource `yaml:"macros"`
}

// MacroResource is one declared macro. Exactly one of Body and SQLQuery
// must be set.
type MacroResource struct {
	Name       string   `yaml:"name"`
	Parameters []string `yaml:"parameters,omitempty"`
	Body       string   `yaml:"body,omitempty"`
	SQLQuery   string   `yaml:"sqlQuery,omitempty"`
}

// DesiredState is the merged declarative configuration.
type DesiredState struct {
	Permissions []PermissionResource
	Macros      []MacroResource
}

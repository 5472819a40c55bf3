package declarative

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadOptions configures YAML loading behavior.
type LoadOptions struct {
	AllowUnknownFields bool
}

// LoadDirectory reads permissions.yaml and macros.yaml from the given
// directory and returns the desired state. Both files are optional.
func LoadDirectory(dir string) (*DesiredState, error) {
	return LoadDirectoryWithOptions(dir, LoadOptions{})
}

// LoadDirectoryWithOptions reads the declarative files using
// caller-provided loading options.
func LoadDirectoryWithOptions(dir string, opts LoadOptions) (*DesiredState, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("config directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config directory: %s is not a directory", dir)
	}

	state := &DesiredState{}

	macrosPath := filepath.Join(dir, "macros.yaml")
	var macroDoc MacroListDoc
	if found, err := loadYAMLFile(macrosPath, &macroDoc, opts); err != nil {
		return nil, err
	} else if found {
		if err := validateDocument(macrosPath, macroDoc.APIVersion, macroDoc.Kind, KindNameMacroList); err != nil {
			return nil, err
		}
		state.Macros = macroDoc.Macros
	}

	permsPath := filepath.Join(dir, "permissions.yaml")
	var permDoc PermissionListDoc
	if found, err := loadYAMLFile(permsPath, &permDoc, opts); err != nil {
		return nil, err
	} else if found {
		if err := validateDocument(permsPath, permDoc.APIVersion, permDoc.Kind, KindNamePermissionList); err != nil {
			return nil, err
		}
		state.Permissions = permDoc.Permissions
	}

	return state, nil
}

// loadYAMLFile reads and unmarshals a YAML file into the given target.
// Returns (false, nil) if file doesn't exist (optional files).
// Returns (false, err) on read/parse errors.
// Returns (true, nil) on success.
func loadYAMLFile(path string, target interface{}, opts LoadOptions) (bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified config files
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if opts.AllowUnknownFields {
		if err := yaml.Unmarshal(data, target); err != nil {
			return false, fmt.Errorf("parse %s: %w", path, err)
		}
		return true, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(target); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// validateDocument checks the apiVersion and kind fields.
func validateDocument(path string, apiVersion, kind, expectedKind string) error {
	if apiVersion != SupportedAPIVersion {
		return fmt.Errorf("%s: unsupported apiVersion %q (expected %q)", path, apiVersion, SupportedAPIVersion)
	}
	if kind != expectedKind {
		return fmt.Errorf("%s: unexpected kind %q (expected %q)", path, kind, expectedKind)
	}
	return nil
}

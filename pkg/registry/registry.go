// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/forms"
	"dialog-manager/internal/intent"
)

// Format of a registry document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from the file extension; anything that is not
// .json is read as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

func LoadRegistry(path string) (*Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewRegistryInvalidError(fmt.Sprintf("read %s: %v", path, err))
	}
	return Parse(data, FormatOf(path))
}

// Parse decodes and schema-checks a registry document. It does not compile
// forms; call Validate for that.
func Parse(data []byte, format Format) (*Domain, error) {
	var (
		raw interface{}
		err error
	)
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &raw)
	default:
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, apperrors.NewRegistryInvalidError(fmt.Sprintf("parse %s: %v", format, err))
	}

	result, err := documentSchema.ValidateDocument(raw)
	if err != nil {
		return nil, apperrors.NewRegistryInvalidError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewRegistryInvalidError(result.Error())
	}

	var d Domain
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &d)
	default:
		err = yaml.Unmarshal(data, &d)
	}
	if err != nil {
		return nil, apperrors.NewRegistryInvalidError(fmt.Sprintf("decode %s: %v", format, err))
	}
	return &d, nil
}

// Tree builds the intent tree.
func (d *Domain) Tree() (*intent.Tree, error) {
	return intent.NewTree(d.Intents)
}

// Store loads the forms into a memory store, validating each.
func (d *Domain) Store() (*forms.MemoryStore, error) {
	return forms.NewMemoryStore(d.Forms)
}

// Problems checks the whole document and returns every configuration error
// found: the tree, each form on its own, and forms bound to an intent that
// is not a leaf of the tree.
func (d *Domain) Problems() []error {
	var problems []error

	tree, err := d.Tree()
	if err != nil {
		problems = append(problems, err)
	}

	seen := make(map[string]bool, len(d.Forms))
	for _, f := range d.Forms {
		if err := f.Validate(); err != nil {
			problems = append(problems, err)
		}
		if seen[f.Intent] {
			problems = append(problems, apperrors.NewRegistryInvalidError(fmt.Sprintf("duplicate form for intent %s", f.Intent)))
		}
		seen[f.Intent] = true

		if tree == nil {
			continue
		}
		switch {
		case !tree.Contains(f.Intent):
			problems = append(problems, apperrors.NewRegistryInvalidError(fmt.Sprintf("form intent %s is not declared", f.Intent)))
		case !tree.IsLeaf(f.Intent):
			problems = append(problems, apperrors.NewRegistryInvalidError(fmt.Sprintf("form intent %s is not a leaf", f.Intent)))
		}
	}
	return problems
}

// Validate returns the first of Problems, or nil.
func (d *Domain) Validate() error {
	if problems := d.Problems(); len(problems) > 0 {
		return problems[0]
	}
	return nil
}

// pkg/registry/schema.go
package registry

import (
	"dialog-manager/internal/common/validation"
	"dialog-manager/internal/forms"
	"dialog-manager/internal/models"
)

// Domain is the registry document: the intent tree and the forms of its
// leaves.
type Domain struct {
	Version     string          `json:"version" yaml:"version"`
	LastUpdated string          `json:"lastUpdated,omitempty" yaml:"lastUpdated,omitempty"`
	Intents     []models.Intent `json:"intents" yaml:"intents"`
	Forms       []*forms.Form   `json:"forms" yaml:"forms"`
}

var documentSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["version", "intents"],
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"lastUpdated": {"type": "string"},
		"intents": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "pattern": "^root(\\.[^.]+)+$"},
					"description": {"type": "string"},
					"disabled": {"type": "boolean"}
				}
			}
		},
		"forms": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["intent", "action", "slots"],
				"properties": {
					"intent": {"type": "string", "minLength": 1},
					"action": {"type": "string", "minLength": 1},
					"slot_expression": {"type": "string"},
					"slots": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name", "slot_type"],
							"properties": {
								"name": {"type": "string", "minLength": 1},
								"description": {"type": "string"},
								"slot_type": {"enum": ["text", "categorical", "numeric", "boolean", "numeric_or_text"]},
								"options": {"type": "array", "items": {"type": "string"}},
								"optional": {"type": "boolean"}
							}
						}
					}
				}
			}
		}
	}
}`)

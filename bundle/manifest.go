// Package bundle implements the packaged artifact format: a zip archive
// carrying a manifest that declares the symbols the artifact exports. The
// manifest is the sole discovery surface; nothing outside it is considered
// exported.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"sigs.k8s.io/yaml"

	"github.com/loomworks/loom/plugin"
)

// ManifestFileName is the archive entry every bundle must carry at its root.
const ManifestFileName = "manifest.yaml"

// FormatV1 is the only manifest format currently understood.
const FormatV1 = "v1"

// Symbol kinds.
const (
	KindPlugin      = "plugin"
	KindLibrary     = "library"
	KindApplication = "application"
)

// PluginDecl is the capability declaration attached to a symbol of kind
// "plugin".
type PluginDecl struct {
	Type        string                          `json:"type"`
	Name        string                          `json:"name"`
	Description string                          `json:"description,omitempty"`
	Properties  map[string]plugin.PropertyField `json:"properties,omitempty"`
}

// SymbolDecl declares one exported symbol of the bundle.
type SymbolDecl struct {
	// Name is the fully qualified symbol reference, unique within the bundle.
	Name string `json:"name"`
	// Kind classifies the symbol: plugin, library or application.
	Kind string `json:"kind"`
	// Source is the archive-relative path to the symbol's content, if any.
	Source string `json:"source,omitempty"`
	// Requires lists symbol names this symbol depends on. They must resolve
	// either within the bundle itself or through the parent scope at
	// inspection time.
	Requires []string `json:"requires,omitempty"`
	// Plugin carries the capability declaration for symbols of kind plugin.
	Plugin *PluginDecl `json:"plugin,omitempty"`
}

// Manifest is the parsed, validated content of a bundle manifest.
type Manifest struct {
	Format  string       `json:"format"`
	Symbols []SymbolDecl `json:"symbols"`
}

const manifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["format", "symbols"],
  "additionalProperties": false,
  "properties": {
    "format": {"const": "v1"},
    "symbols": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "kind"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "kind": {"enum": ["plugin", "library", "application"]},
          "source": {"type": "string"},
          "requires": {"type": "array", "items": {"type": "string", "minLength": 1}},
          "plugin": {
            "type": "object",
            "required": ["type", "name"],
            "additionalProperties": false,
            "properties": {
              "type": {"type": "string", "minLength": 1},
              "name": {"type": "string", "minLength": 1},
              "description": {"type": "string"},
              "properties": {
                "type": "object",
                "additionalProperties": {
                  "type": "object",
                  "required": ["type"],
                  "additionalProperties": false,
                  "properties": {
                    "name": {"type": "string"},
                    "description": {"type": "string"},
                    "type": {"enum": ["string", "boolean", "int", "long", "float", "double"]},
                    "required": {"type": "boolean"}
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var compiledManifestSchema = func() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchema))
	if err != nil {
		panic(fmt.Sprintf("manifest schema is not valid JSON: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.schema.json", doc); err != nil {
		panic(fmt.Sprintf("failed to add manifest schema resource: %v", err))
	}
	return c.MustCompile("manifest.schema.json")
}()

// ParseManifest validates raw manifest YAML against the manifest schema and
// decodes it. Beyond the schema it enforces that symbol names are unique
// within the bundle and that plugin symbols carry a capability declaration.
func ParseManifest(raw []byte) (*Manifest, error) {
	jsonRaw, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("manifest is not valid YAML: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonRaw))
	if err != nil {
		return nil, fmt.Errorf("manifest is not valid JSON after conversion: %w", err)
	}
	if err := compiledManifestSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("manifest does not match schema: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(jsonRaw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	seen := make(map[string]struct{}, len(m.Symbols))
	for _, sym := range m.Symbols {
		if _, ok := seen[sym.Name]; ok {
			return nil, fmt.Errorf("duplicate symbol %q in manifest", sym.Name)
		}
		seen[sym.Name] = struct{}{}
		if sym.Kind == KindPlugin && sym.Plugin == nil {
			return nil, fmt.Errorf("symbol %q has kind plugin but no plugin declaration", sym.Name)
		}
	}

	// Property names mirror their map key; the key wins when both are given.
	for _, sym := range m.Symbols {
		if sym.Plugin == nil {
			continue
		}
		for key, field := range sym.Plugin.Properties {
			field.Name = key
			sym.Plugin.Properties[key] = field
		}
	}
	return &m, nil
}

// Encode renders the manifest to its YAML form.
func (m *Manifest) Encode() ([]byte, error) {
	return yaml.Marshal(m)
}

// Symbol returns the declaration for the named symbol, if present.
func (m *Manifest) Symbol(name string) (SymbolDecl, bool) {
	for _, sym := range m.Symbols {
		if sym.Name == name {
			return sym, true
		}
	}
	return SymbolDecl{}, false
}

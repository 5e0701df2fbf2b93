// Package plugin holds the model for typed, named extension implementations
// discovered inside artifacts, and the strategy used to pick one when
// several artifacts expose the same capability.
package plugin

import (
	"fmt"

	"github.com/loomworks/loom/artifact"
)

// PropertyField describes one configuration property declared by a plugin
// class, as written in the bundle manifest.
type PropertyField struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Type is one of "string", "boolean", "int", "long", "float" or "double".
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// Class is one plugin implementation discovered in an artifact. It is
// immutable once stored; inspection produces a fresh set on every add.
type Class struct {
	// Type is the capability category the plugin serves, e.g. "source".
	Type string `json:"type"`
	// Name is the identifier consumers use to request the plugin, e.g. "mysql".
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// ClassName references the implementing symbol inside the bundle.
	ClassName  string                   `json:"className"`
	Properties map[string]PropertyField `json:"properties,omitempty"`
}

// Key is the (type, name) pair under which a class is requested. Two classes
// with equal keys are interchangeable from a consumer's point of view.
func (c Class) Key() string {
	return c.Type + ":" + c.Name
}

func (c Class) String() string {
	return fmt.Sprintf("%s:%s (%s)", c.Type, c.Name, c.ClassName)
}

// Entry groups the plugin classes exposed by a single artifact. A slice of
// entries sorted by descriptor is the ordered mapping handed to selectors
// and returned from plugin queries.
type Entry struct {
	Artifact artifact.Descriptor `json:"artifact"`
	Classes  []Class             `json:"classes"`
}

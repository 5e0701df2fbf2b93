// Package inspect discovers the plugin classes an artifact exports by
// reading its bundle manifest inside an isolation scope. Inspection is the
// single gate between raw uploaded bytes and stored metadata: whatever it
// rejects never becomes visible.
package inspect

import (
	"context"
	"fmt"
	"slices"
	"strings"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/loomworks/loom/artifact"
	"github.com/loomworks/loom/bundle"
	"github.com/loomworks/loom/isolation"
	"github.com/loomworks/loom/plugin"
)

// InspectionError reports that an artifact's content could not be loaded or
// classified. It is a permanent rejection of the add request that carried
// the artifact; callers must not retry it.
type InspectionError struct {
	Coordinate artifact.Coordinate
	Err        error
}

func (e *InspectionError) Error() string {
	return fmt.Sprintf("inspection of artifact %s failed: %v", e.Coordinate, e.Err)
}

func (e *InspectionError) Unwrap() error {
	return e.Err
}

// Inspector classifies the symbols a bundle exports against a registry of
// recognized capability types. Symbols declaring an unrecognized capability
// are skipped, not rejected, so platforms can roll capability types forward
// without breaking older bundles.
type Inspector struct {
	capabilityTypes map[string]struct{}
}

// NewInspector builds an inspector recognizing the given capability types,
// e.g. "source", "transform", "sink".
func NewInspector(capabilityTypes ...string) *Inspector {
	types := make(map[string]struct{}, len(capabilityTypes))
	for _, t := range capabilityTypes {
		types[t] = struct{}{}
	}
	return &Inspector{capabilityTypes: types}
}

// Inspect reads the bundle manifest at location and produces the plugin
// classes the artifact exports. Symbol references are resolved against the
// bundle's own declarations first and the supplied scope second, so a child
// artifact may reference symbols defined by its parent without re-declaring
// them. Two classes with the same (type, name) in one artifact are rejected
// here, at inspection time, to keep later queries order-independent.
func (i *Inspector) Inspect(ctx context.Context, coordinate artifact.Coordinate, location string, scope *isolation.Scope) ([]plugin.Class, error) {
	logger := slogcontext.FromCtx(ctx)

	manifest, err := bundle.ReadManifest(location)
	if err != nil {
		return nil, &InspectionError{Coordinate: coordinate, Err: err}
	}

	own := make(map[string]struct{}, len(manifest.Symbols))
	for _, sym := range manifest.Symbols {
		own[sym.Name] = struct{}{}
	}

	classes := make([]plugin.Class, 0, len(manifest.Symbols))
	keys := make(map[string]string) // (type,name) key -> declaring symbol
	for _, sym := range manifest.Symbols {
		for _, req := range sym.Requires {
			if _, ok := own[req]; ok {
				continue
			}
			if _, err := scope.Resolve(req); err != nil {
				return nil, &InspectionError{
					Coordinate: coordinate,
					Err:        fmt.Errorf("symbol %q requires %q which is not resolvable: %w", sym.Name, req, err),
				}
			}
		}

		if sym.Kind != bundle.KindPlugin {
			continue
		}
		decl := sym.Plugin
		if _, ok := i.capabilityTypes[decl.Type]; !ok {
			logger.DebugContext(ctx, "skipping symbol with unrecognized capability type",
				"artifact", coordinate.String(), "symbol", sym.Name, "capabilityType", decl.Type)
			continue
		}

		class := plugin.Class{
			Type:        decl.Type,
			Name:        decl.Name,
			Description: decl.Description,
			ClassName:   sym.Name,
			Properties:  decl.Properties,
		}
		if prev, ok := keys[class.Key()]; ok {
			return nil, &InspectionError{
				Coordinate: coordinate,
				Err:        fmt.Errorf("plugin %s declared by both %q and %q", class.Key(), prev, sym.Name),
			}
		}
		keys[class.Key()] = sym.Name
		classes = append(classes, class)
	}

	slices.SortFunc(classes, func(a, b plugin.Class) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return classes, nil
}

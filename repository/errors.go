package repository

import (
	"fmt"
	"strings"

	"github.com/loomworks/loom/artifact"
)

// ParentNotFoundError reports that none of the parent ranges declared by an
// added artifact resolve to an existing artifact. The add is fully rejected;
// nothing is persisted.
type ParentNotFoundError struct {
	Ranges []artifact.Range
}

func (e *ParentNotFoundError) Error() string {
	formatted := make([]string, 0, len(e.Ranges))
	for _, r := range e.Ranges {
		formatted = append(formatted, r.String())
	}
	return fmt.Sprintf("no artifact matches any declared parent range: %s", strings.Join(formatted, ", "))
}

// PluginNotFoundError reports that no plugin of the requested capability is
// visible to the artifact. Permanent for this query.
type PluginNotFoundError struct {
	Coordinate     artifact.Coordinate
	CapabilityType string
	CapabilityName string
}

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("no plugin %s:%s visible to artifact %s",
		e.CapabilityType, e.CapabilityName, e.Coordinate)
}

// DependencyError reports an attempt to delete an artifact that other stored
// artifacts still extend.
type DependencyError struct {
	Coordinate artifact.Coordinate
	Dependents []artifact.Coordinate
}

func (e *DependencyError) Error() string {
	formatted := make([]string, 0, len(e.Dependents))
	for _, d := range e.Dependents {
		formatted = append(formatted, d.String())
	}
	return fmt.Sprintf("artifact %s is still extended by: %s", e.Coordinate, strings.Join(formatted, ", "))
}

package artifact

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// NamespaceSystem is the namespace that holds artifacts shipped with the
// platform itself. All other namespaces are user namespaces.
const NamespaceSystem = "system"

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Coordinate uniquely identifies one stored artifact within its namespace.
// Coordinates are immutable; construct them through NewCoordinate or
// ParseCoordinate so the fields are always validated.
type Coordinate struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	Version   *semver.Version `json:"version"`
}

// NewCoordinate validates and builds a coordinate from its parts.
func NewCoordinate(namespace, name, version string) (Coordinate, error) {
	if !namePattern.MatchString(namespace) {
		return Coordinate{}, fmt.Errorf("invalid artifact namespace %q", namespace)
	}
	if !namePattern.MatchString(name) {
		return Coordinate{}, fmt.Errorf("invalid artifact name %q", name)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid artifact version %q: %w", version, err)
	}
	return Coordinate{Namespace: namespace, Name: name, Version: v}, nil
}

// MustNewCoordinate is NewCoordinate that panics on invalid input. Intended
// for statically known coordinates, mainly in tests.
func MustNewCoordinate(namespace, name, version string) Coordinate {
	c, err := NewCoordinate(namespace, name, version)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCoordinate parses the canonical "namespace/name:version" form
// produced by String.
func ParseCoordinate(s string) (Coordinate, error) {
	namespace, rest, ok := strings.Cut(s, "/")
	if !ok {
		return Coordinate{}, fmt.Errorf("invalid artifact coordinate %q: missing namespace separator", s)
	}
	name, version, ok := strings.Cut(rest, ":")
	if !ok {
		return Coordinate{}, fmt.Errorf("invalid artifact coordinate %q: missing version separator", s)
	}
	return NewCoordinate(namespace, name, version)
}

// IsZero reports whether the coordinate is the uninitialized zero value.
func (c Coordinate) IsZero() bool {
	return c.Namespace == "" && c.Name == "" && c.Version == nil
}

// Compare orders coordinates by namespace, then name, then version.
func (c Coordinate) Compare(o Coordinate) int {
	if cmp := strings.Compare(c.Namespace, o.Namespace); cmp != 0 {
		return cmp
	}
	if cmp := strings.Compare(c.Name, o.Name); cmp != 0 {
		return cmp
	}
	return c.Version.Compare(o.Version)
}

// Equal reports whether two coordinates identify the same artifact.
func (c Coordinate) Equal(o Coordinate) bool {
	return c.Compare(o) == 0
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s/%s:%s", c.Namespace, c.Name, c.Version)
}

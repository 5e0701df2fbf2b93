package artifact

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Range is a version interval query over artifacts of one name, written in
// bracket notation, e.g. "system/etl-batch[1.0.0,2.0.0)". A square bracket
// includes the bound, a parenthesis excludes it. Ranges are only ever used
// as queries; they never identify a stored artifact.
type Range struct {
	Namespace      string          `json:"namespace"`
	Name           string          `json:"name"`
	Lower          *semver.Version `json:"lower"`
	Upper          *semver.Version `json:"upper"`
	LowerInclusive bool            `json:"lowerInclusive"`
	UpperInclusive bool            `json:"upperInclusive"`
}

// NewRange builds the common half-open interval [lower, upper).
func NewRange(namespace, name, lower, upper string) (Range, error) {
	lo, err := semver.NewVersion(lower)
	if err != nil {
		return Range{}, fmt.Errorf("invalid lower bound %q: %w", lower, err)
	}
	hi, err := semver.NewVersion(upper)
	if err != nil {
		return Range{}, fmt.Errorf("invalid upper bound %q: %w", upper, err)
	}
	return Range{
		Namespace:      namespace,
		Name:           name,
		Lower:          lo,
		Upper:          hi,
		LowerInclusive: true,
	}, nil
}

// MustNewRange is NewRange that panics on invalid input.
func MustNewRange(namespace, name, lower, upper string) Range {
	r, err := NewRange(namespace, name, lower, upper)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseRange parses the bracket notation produced by String, for example
// "system/etl-batch[1.0.0,2.0.0)".
func ParseRange(s string) (Range, error) {
	namespace, rest, ok := strings.Cut(s, "/")
	if !ok {
		return Range{}, fmt.Errorf("invalid artifact range %q: missing namespace separator", s)
	}
	open := strings.IndexAny(rest, "[(")
	if open < 0 {
		return Range{}, fmt.Errorf("invalid artifact range %q: missing interval", s)
	}
	name := rest[:open]
	if !namePattern.MatchString(namespace) {
		return Range{}, fmt.Errorf("invalid artifact range %q: bad namespace", s)
	}
	if !namePattern.MatchString(name) {
		return Range{}, fmt.Errorf("invalid artifact range %q: bad name", s)
	}

	interval := rest[open:]
	last := interval[len(interval)-1]
	if last != ')' && last != ']' {
		return Range{}, fmt.Errorf("invalid artifact range %q: interval must end with ')' or ']'", s)
	}
	bounds := strings.Split(interval[1:len(interval)-1], ",")
	if len(bounds) != 2 {
		return Range{}, fmt.Errorf("invalid artifact range %q: interval must have exactly two bounds", s)
	}
	lo, err := semver.NewVersion(strings.TrimSpace(bounds[0]))
	if err != nil {
		return Range{}, fmt.Errorf("invalid artifact range %q: %w", s, err)
	}
	hi, err := semver.NewVersion(strings.TrimSpace(bounds[1]))
	if err != nil {
		return Range{}, fmt.Errorf("invalid artifact range %q: %w", s, err)
	}
	return Range{
		Namespace:      namespace,
		Name:           name,
		Lower:          lo,
		Upper:          hi,
		LowerInclusive: interval[0] == '[',
		UpperInclusive: last == ']',
	}, nil
}

// Matches reports whether the given coordinate falls inside the range.
func (r Range) Matches(c Coordinate) bool {
	if c.Namespace != r.Namespace || c.Name != r.Name {
		return false
	}
	if cmp := c.Version.Compare(r.Lower); cmp < 0 || (cmp == 0 && !r.LowerInclusive) {
		return false
	}
	if cmp := c.Version.Compare(r.Upper); cmp > 0 || (cmp == 0 && !r.UpperInclusive) {
		return false
	}
	return true
}

// Compare orders ranges by namespace, name and then lower bound. The order
// has no semantic meaning beyond making multi-range operations deterministic.
func (r Range) Compare(o Range) int {
	if cmp := strings.Compare(r.Namespace, o.Namespace); cmp != 0 {
		return cmp
	}
	if cmp := strings.Compare(r.Name, o.Name); cmp != 0 {
		return cmp
	}
	if cmp := r.Lower.Compare(o.Lower); cmp != 0 {
		return cmp
	}
	return r.Upper.Compare(o.Upper)
}

func (r Range) String() string {
	open, clos := "(", ")"
	if r.LowerInclusive {
		open = "["
	}
	if r.UpperInclusive {
		clos = "]"
	}
	return fmt.Sprintf("%s/%s%s%s,%s%s", r.Namespace, r.Name, open, r.Lower, r.Upper, clos)
}

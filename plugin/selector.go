package plugin

import (
	"errors"
	"strings"

	"github.com/loomworks/loom/artifact"
)

// ErrNoCandidates is returned by selectors handed an empty candidate set.
// Callers normally guard against this before selecting, but a selector must
// never turn an empty set into a silent nil result.
var ErrNoCandidates = errors.New("no plugin candidates to select from")

// Match is the outcome of a selection: the winning artifact and the class
// inside it.
type Match struct {
	Artifact artifact.Descriptor
	Class    Class
}

// Selector is the tie-break strategy applied when more than one artifact
// exposes a plugin for the requested capability. Entries are always handed
// over sorted ascending by artifact descriptor.
type Selector interface {
	Select(entries []Entry) (Match, error)
}

// HighestVersionSelector is the default policy: prefer the candidate from
// the artifact with the highest version, breaking version ties by lexical
// artifact name. Version ties across distinct artifacts cannot happen while
// coordinates are unique, but the tie-break keeps the result deterministic
// even if that invariant is ever violated upstream.
type HighestVersionSelector struct{}

func (HighestVersionSelector) Select(entries []Entry) (Match, error) {
	var (
		best  *Entry
		found bool
	)
	for i := range entries {
		e := &entries[i]
		if len(e.Classes) == 0 {
			continue
		}
		if !found {
			best, found = e, true
			continue
		}
		cmp := e.Artifact.Coordinate.Version.Compare(best.Artifact.Coordinate.Version)
		if cmp > 0 || (cmp == 0 && strings.Compare(e.Artifact.Coordinate.Name, best.Artifact.Coordinate.Name) < 0) {
			best = e
		}
	}
	if !found {
		return Match{}, ErrNoCandidates
	}
	return Match{Artifact: best.Artifact, Class: best.Classes[0]}, nil
}

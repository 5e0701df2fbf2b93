package artifact

import "strings"

// Descriptor pairs a coordinate with the storage location holding the
// artifact's bytes. Descriptors carry a total order so that query results
// spanning multiple artifacts come back in a reproducible sequence.
type Descriptor struct {
	Coordinate Coordinate `json:"coordinate"`
	// Location is the store-specific reference to the artifact bytes,
	// typically a filesystem path.
	Location string `json:"location"`
}

// Compare orders descriptors by coordinate; the location is only consulted
// to keep the order total if two descriptors ever carry the same coordinate.
func (d Descriptor) Compare(o Descriptor) int {
	if cmp := d.Coordinate.Compare(o.Coordinate); cmp != 0 {
		return cmp
	}
	return strings.Compare(d.Location, o.Location)
}

func (d Descriptor) String() string {
	return d.Coordinate.String()
}

package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/artifact"
)

func entry(namespace, name, version string, classes ...Class) Entry {
	return Entry{
		Artifact: artifact.Descriptor{
			Coordinate: artifact.MustNewCoordinate(namespace, name, version),
			Location:   "/blobs/" + name + "-" + version,
		},
		Classes: classes,
	}
}

func TestHighestVersionSelectorPicksHighestVersion(t *testing.T) {
	mysqlV1 := Class{Type: "source", Name: "mysql", ClassName: "io.example.MySQLSourceV1"}
	mysqlV2 := Class{Type: "source", Name: "mysql", ClassName: "io.example.MySQLSourceV2"}

	match, err := HighestVersionSelector{}.Select([]Entry{
		entry("default", "db-plugins", "1.0.0", mysqlV1),
		entry("default", "db-plugins", "2.0.0", mysqlV2),
	})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", match.Artifact.Coordinate.Version.String())
	assert.Equal(t, "io.example.MySQLSourceV2", match.Class.ClassName)
}

func TestHighestVersionSelectorBreaksVersionTiesByName(t *testing.T) {
	// Equal versions across artifacts cannot happen while coordinates are
	// unique, but the selector must still behave deterministically.
	match, err := HighestVersionSelector{}.Select([]Entry{
		entry("default", "b-plugins", "1.0.0", Class{Type: "sink", Name: "kafka", ClassName: "B"}),
		entry("default", "a-plugins", "1.0.0", Class{Type: "sink", Name: "kafka", ClassName: "A"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "a-plugins", match.Artifact.Coordinate.Name)
	assert.Equal(t, "A", match.Class.ClassName)
}

func TestHighestVersionSelectorSkipsEmptyEntries(t *testing.T) {
	match, err := HighestVersionSelector{}.Select([]Entry{
		entry("default", "empty", "9.0.0"),
		entry("default", "full", "1.0.0", Class{Type: "source", Name: "ftp", ClassName: "F"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "full", match.Artifact.Coordinate.Name)
}

func TestHighestVersionSelectorEmptyCandidates(t *testing.T) {
	_, err := HighestVersionSelector{}.Select(nil)
	require.ErrorIs(t, err, ErrNoCandidates)

	_, err = HighestVersionSelector{}.Select([]Entry{entry("default", "empty", "1.0.0")})
	require.ErrorIs(t, err, ErrNoCandidates)
}

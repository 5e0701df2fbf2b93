package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoordinate(t *testing.T) {
	c, err := NewCoordinate("system", "etl-batch", "3.1.0")
	require.NoError(t, err)
	assert.Equal(t, "system", c.Namespace)
	assert.Equal(t, "etl-batch", c.Name)
	assert.Equal(t, "3.1.0", c.Version.String())
	assert.Equal(t, "system/etl-batch:3.1.0", c.String())
}

func TestNewCoordinateInvalid(t *testing.T) {
	for _, tc := range []struct {
		name                     string
		namespace, artifactName  string
		version                  string
	}{
		{"empty namespace", "", "etl", "1.0.0"},
		{"bad namespace", "my ns", "etl", "1.0.0"},
		{"empty name", "default", "", "1.0.0"},
		{"bad name", "default", "my plugin!", "1.0.0"},
		{"bad version", "default", "etl", "not-a-version"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCoordinate(tc.namespace, tc.artifactName, tc.version)
			require.Error(t, err)
		})
	}
}

func TestParseCoordinateRoundTrip(t *testing.T) {
	c, err := ParseCoordinate("default/my-plugins:2.0.0-beta.1")
	require.NoError(t, err)
	assert.Equal(t, "default", c.Namespace)
	assert.Equal(t, "my-plugins", c.Name)

	parsed, err := ParseCoordinate(c.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(c))
}

func TestParseCoordinateInvalid(t *testing.T) {
	for _, s := range []string{"", "no-namespace:1.0.0", "ns/no-version", "ns/name:bogus"} {
		_, err := ParseCoordinate(s)
		require.Error(t, err, s)
	}
}

func TestCoordinateCompare(t *testing.T) {
	a := MustNewCoordinate("default", "etl", "1.0.0")
	b := MustNewCoordinate("default", "etl", "2.0.0")
	c := MustNewCoordinate("default", "ztl", "1.0.0")
	d := MustNewCoordinate("system", "etl", "1.0.0")

	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(MustNewCoordinate("default", "etl", "1.0.0")))
	assert.Negative(t, a.Compare(c))
	assert.Negative(t, a.Compare(d))
}
